package money

import (
	"errors"
	"strings"
)

var (
	ErrInvalidCurrency  = errors.New("money: invalid currency code")
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	ErrNegativeAmount   = errors.New("money: amount must be non-negative")
)

// Money keeps amounts in minor units (cents) to avoid floating point issues.
type Money struct {
	Amount   int64  `json:"amount" bson:"amount"`
	Currency string `json:"currency" bson:"currency"`
}

// New constructs a Money value validating minimal invariants.
func New(amount int64, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	if amount < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}, nil
}

// Must creates Money and panics if validation fails; useful in tests and fixtures.
func Must(amount int64, currency string) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Multiply multiplies the amount by the provided factor.
func (m Money) Multiply(times int64) Money {
	return Money{Amount: m.Amount * times, Currency: m.Currency}
}

func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) ensureSameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return ErrCurrencyMismatch
	}
	return nil
}
