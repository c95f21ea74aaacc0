package memory

import (
	"context"

	appuow "staybook/internal/app/uow"
	domainbooking "staybook/internal/domain/booking"
	domainproperty "staybook/internal/domain/property"
)

// UoWFactory hands out units over shared in-memory repositories. Writes apply
// immediately; Commit and Rollback are accounting only. Single-process use
// keeps this safe enough for local runs and tests.
type UoWFactory struct {
	Bookings   *BookingRepository
	Properties *PropertyRepository
}

func NewUoWFactory() *UoWFactory {
	return &UoWFactory{
		Bookings:   NewBookingRepository(),
		Properties: NewPropertyRepository(),
	}
}

func (f *UoWFactory) Begin(ctx context.Context, opts appuow.TxOptions) (appuow.UnitOfWork, error) {
	return &unit{factory: f}, nil
}

type unit struct {
	factory *UoWFactory
}

func (u *unit) Bookings() domainbooking.Repository    { return u.factory.Bookings }
func (u *unit) Properties() domainproperty.Repository { return u.factory.Properties }
func (u *unit) Commit(ctx context.Context) error      { return nil }
func (u *unit) Rollback(ctx context.Context) error    { return nil }
func (u *unit) InjectContext(ctx context.Context) context.Context {
	return appuow.ContextWithUnitOfWork(ctx, u)
}

var _ appuow.UoWFactory = (*UoWFactory)(nil)
