package property

import (
	"context"
	"errors"

	"staybook/internal/domain/shared/money"
)

var ErrPropertyNotFound = errors.New("property: not found")

type PropertyID string

// Property is the local projection of the externally-owned property record.
// Only the fields the booking flow needs are carried.
type Property struct {
	ID          PropertyID
	OwnerID     string
	Title       string
	MaxGuests   int
	NightlyRate money.Money
	Available   bool
}

type Repository interface {
	ByID(ctx context.Context, id PropertyID) (*Property, error)
	Save(ctx context.Context, p *Property) error
}

// Quote recomputes the authoritative stay price from the nightly rate.
func (p *Property) Quote(nights int) money.Money {
	return p.NightlyRate.Multiply(int64(nights))
}
