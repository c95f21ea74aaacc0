package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "staybook/internal/domain/booking"
	domainproperty "staybook/internal/domain/property"
	domainrange "staybook/internal/domain/shared/daterange"
	"staybook/internal/domain/shared/money"
)

var ErrConcurrentUpdate = errors.New("mongo: concurrent update detected")

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	col := db.Collection("bookings")
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "property_id", Value: 1}, {Key: "status", Value: 1}, {Key: "check_in", Value: 1}},
	})
	return &BookingRepository{col: col}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

// Save persists the booking with optimistic concurrency. For a new booking
// that still blocks the calendar it re-checks overlap first, so that of two
// racing creates that both passed admission only the first one lands; the
// check and insert share the session transaction started by the unit of
// work.
func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	if b.Version == 0 && b.Status.Blocking() {
		conflicts, err := r.FindOverlapping(ctx, b.PropertyID, b.Range)
		if err != nil {
			return err
		}
		for _, other := range conflicts {
			if other.ID != b.ID {
				return domainbooking.ErrDateConflict
			}
		}
	}
	doc := newBookingDocument(b)
	filter := bson.M{"_id": doc.ID, "version": b.Version}
	doc.Version = b.Version + 1
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return ErrConcurrentUpdate
	}
	b.Version = doc.Version
	return nil
}

func (r *BookingRepository) ListByTraveler(ctx context.Context, travelerID string) ([]*domainbooking.Booking, error) {
	return r.list(ctx, bson.M{"traveler_id": travelerID})
}

func (r *BookingRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domainbooking.Booking, error) {
	return r.list(ctx, bson.M{"owner_id": ownerID})
}

func (r *BookingRepository) FindOverlapping(ctx context.Context, propertyID domainproperty.PropertyID, dr domainrange.DateRange) ([]*domainbooking.Booking, error) {
	filter := bson.M{
		"property_id": string(propertyID),
		"status":      bson.M{"$in": []string{string(domainbooking.StatusPending), string(domainbooking.StatusAccepted)}},
		"check_in":    bson.M{"$lt": dr.CheckOut.UnixMilli()},
		"check_out":   bson.M{"$gt": dr.CheckIn.UnixMilli()},
	}
	return r.list(ctx, filter)
}

func (r *BookingRepository) ListAcceptedEndedBefore(ctx context.Context, cutoff time.Time) ([]*domainbooking.Booking, error) {
	filter := bson.M{
		"status":    string(domainbooking.StatusAccepted),
		"check_out": bson.M{"$lte": cutoff.UTC().UnixMilli()},
	}
	return r.list(ctx, filter)
}

func (r *BookingRepository) list(ctx context.Context, filter bson.M) ([]*domainbooking.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []*domainbooking.Booking
	for cursor.Next(ctx) {
		var doc bookingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cursor.Err()
}

type bookingDocument struct {
	ID                 string      `bson:"_id"`
	PropertyID         string      `bson:"property_id"`
	TravelerID         string      `bson:"traveler_id"`
	OwnerID            string      `bson:"owner_id"`
	CheckIn            int64       `bson:"check_in"`
	CheckOut           int64       `bson:"check_out"`
	Guests             int         `bson:"guests"`
	TotalPrice         money.Money `bson:"total_price"`
	Status             string      `bson:"status"`
	CancelledBy        string      `bson:"cancelled_by,omitempty"`
	CancelledAt        *time.Time  `bson:"cancelled_at,omitempty"`
	CancellationReason string      `bson:"cancellation_reason,omitempty"`
	CreatedAt          int64       `bson:"created_at"`
	UpdatedAt          int64       `bson:"updated_at"`
	Version            int64       `bson:"version"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:                 string(b.ID),
		PropertyID:         string(b.PropertyID),
		TravelerID:         b.TravelerID,
		OwnerID:            b.OwnerID,
		CheckIn:            b.Range.CheckIn.UnixMilli(),
		CheckOut:           b.Range.CheckOut.UnixMilli(),
		Guests:             b.Guests,
		TotalPrice:         b.TotalPrice,
		Status:             string(b.Status),
		CancelledBy:        string(b.CancelledBy),
		CancelledAt:        b.CancelledAt,
		CancellationReason: b.CancellationReason,
		CreatedAt:          b.CreatedAt.UnixMilli(),
		UpdatedAt:          b.UpdatedAt.UnixMilli(),
		Version:            b.Version,
	}
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	return &domainbooking.Booking{
		ID:                 domainbooking.BookingID(d.ID),
		PropertyID:         domainproperty.PropertyID(d.PropertyID),
		TravelerID:         d.TravelerID,
		OwnerID:            d.OwnerID,
		Range:              domainrange.DateRange{CheckIn: timestampToTime(d.CheckIn), CheckOut: timestampToTime(d.CheckOut)},
		Guests:             d.Guests,
		TotalPrice:         d.TotalPrice,
		Status:             domainbooking.Status(d.Status),
		CancelledBy:        domainbooking.Actor(d.CancelledBy),
		CancelledAt:        d.CancelledAt,
		CancellationReason: d.CancellationReason,
		CreatedAt:          timestampToTime(d.CreatedAt),
		UpdatedAt:          timestampToTime(d.UpdatedAt),
		Version:            d.Version,
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
