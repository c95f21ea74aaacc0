package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"staybook/internal/app/uow"
	domainbooking "staybook/internal/domain/booking"
	domainproperty "staybook/internal/domain/property"
)

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB *mongo.Database

	BookingRepo  domainbooking.Repository
	PropertyRepo domainproperty.Repository
}

// Begin starts a MongoDB session/transaction.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().SetReadConcern(f.DB.ReadConcern()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{
		session:    session,
		bookings:   f.BookingRepo,
		properties: f.PropertyRepo,
	}, nil
}

type Unit struct {
	session mongo.Session

	bookings   domainbooking.Repository
	properties domainproperty.Repository
}

func (u *Unit) Bookings() domainbooking.Repository {
	return u.bookings
}

func (u *Unit) Properties() domainproperty.Repository {
	return u.properties
}

func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.CommitTransaction(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext makes the Mongo session visible to downstream repositories.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}
