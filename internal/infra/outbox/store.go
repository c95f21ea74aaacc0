package outbox

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appoutbox "staybook/internal/app/outbox"
)

const (
	stateNew     = "NEW"
	stateClaimed = "CLAIMED"
	stateSent    = "SENT"
	stateFailed  = "FAILED"
)

// MongoStore persists outbox records in the same database as the booking
// state, so Add participates in the session transaction of the unit of work.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	col := db.Collection("app_outbox")
	idx := mongo.IndexModel{Keys: bson.D{{Key: "state", Value: 1}, {Key: "next_attempt_at", Value: 1}}}
	_, _ = col.Indexes().CreateOne(context.Background(), idx)
	return &MongoStore{col: col}
}

func (s *MongoStore) Add(ctx context.Context, record appoutbox.EventRecord) error {
	doc := bson.M{
		"_id":             record.ID,
		"name":            record.Name,
		"payload":         record.Payload,
		"occurred_at":     record.OccurredAt,
		"aggregate":       record.Aggregate,
		"headers":         record.Headers,
		"state":           stateNew,
		"attempts":        0,
		"next_attempt_at": time.Now().UTC(),
		"created_at":      time.Now().UTC(),
	}
	_, err := s.col.InsertOne(ctx, doc)
	return err
}

// Flush is a no-op: records become visible when the surrounding transaction
// commits.
func (s *MongoStore) Flush(context.Context) error {
	return nil
}

type eventDocument struct {
	ID          string            `bson:"_id"`
	Name        string            `bson:"name"`
	Payload     []byte            `bson:"payload"`
	OccurredAt  time.Time         `bson:"occurred_at"`
	Aggregate   string            `bson:"aggregate"`
	Headers     map[string]string `bson:"headers"`
	State       string            `bson:"state"`
	Attempts    int               `bson:"attempts"`
	NextAttempt time.Time         `bson:"next_attempt_at"`
	ClaimedBy   string            `bson:"claimed_by"`
	ClaimedAt   time.Time         `bson:"claimed_at"`
	SentAt      time.Time         `bson:"sent_at"`
	LastError   string            `bson:"last_error"`
}

func (s *MongoStore) Claim(ctx context.Context, workerID string) (*Pending, error) {
	now := time.Now().UTC()
	held, err := s.heldAggregates(ctx, now)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"state": bson.M{"$in": []string{stateNew, stateFailed}}, "next_attempt_at": bson.M{"$lte": now}}
	if len(held) > 0 {
		filter["aggregate"] = bson.M{"$nin": held}
	}
	update := bson.M{"$set": bson.M{"state": stateClaimed, "claimed_by": workerID, "claimed_at": now}}
	// Oldest record first keeps per-booking publish order intact.
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "created_at", Value: 1}})
	var doc eventDocument
	err = s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &Pending{
		ID:         doc.ID,
		Name:       doc.Name,
		Payload:    doc.Payload,
		OccurredAt: doc.OccurredAt,
		Aggregate:  doc.Aggregate,
		Headers:    doc.Headers,
		Attempts:   doc.Attempts,
	}, nil
}

// heldAggregates lists bookings that have a record mid-flight or waiting out
// a failure backoff. Later records for those bookings stay unclaimable so a
// retried earlier status cannot be overtaken on the same key.
func (s *MongoStore) heldAggregates(ctx context.Context, now time.Time) ([]string, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"state": stateClaimed},
		bson.M{"state": stateFailed, "next_attempt_at": bson.M{"$gt": now}},
	}}
	values, err := s.col.Distinct(ctx, "aggregate", filter)
	if err != nil {
		return nil, err
	}
	held := make([]string, 0, len(values))
	for _, v := range values {
		if aggregate, ok := v.(string); ok {
			held = append(held, aggregate)
		}
	}
	return held, nil
}

func (s *MongoStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"state": stateSent, "sent_at": time.Now().UTC()}})
	return err
}

func (s *MongoStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	update := bson.M{
		"$set": bson.M{
			"state":           stateFailed,
			"next_attempt_at": next,
			"last_error":      errMsg,
		},
		"$inc": bson.M{"attempts": 1},
	}
	_, err := s.col.UpdateByID(ctx, id, update)
	return err
}

var _ appoutbox.Outbox = (*MongoStore)(nil)
var _ Store = (*MongoStore)(nil)
