package uow

import (
	"context"

	domainbooking "staybook/internal/domain/booking"
	domainproperty "staybook/internal/domain/property"
)

// UnitOfWork coordinates repositories inside a transaction boundary. The
// outbox hangs off the unit so recorded event intent commits atomically with
// the state write that produced it.
type UnitOfWork interface {
	Bookings() domainbooking.Repository
	Properties() domainproperty.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}
