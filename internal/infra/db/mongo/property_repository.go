package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainproperty "staybook/internal/domain/property"
	"staybook/internal/domain/shared/money"
)

type PropertyRepository struct {
	col *mongo.Collection
}

func NewPropertyRepository(db *mongo.Database) *PropertyRepository {
	return &PropertyRepository{col: db.Collection("properties")}
}

func (r *PropertyRepository) ByID(ctx context.Context, id domainproperty.PropertyID) (*domainproperty.Property, error) {
	var doc propertyDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domainproperty.ErrPropertyNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *PropertyRepository) Save(ctx context.Context, p *domainproperty.Property) error {
	doc := propertyDocument{
		ID:          string(p.ID),
		OwnerID:     p.OwnerID,
		Title:       p.Title,
		MaxGuests:   p.MaxGuests,
		NightlyRate: p.NightlyRate,
		Available:   p.Available,
	}
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, opts)
	return err
}

type propertyDocument struct {
	ID          string      `bson:"_id"`
	OwnerID     string      `bson:"owner_id"`
	Title       string      `bson:"title"`
	MaxGuests   int         `bson:"max_guests"`
	NightlyRate money.Money `bson:"nightly_rate"`
	Available   bool        `bson:"available"`
}

func (d propertyDocument) toAggregate() *domainproperty.Property {
	return &domainproperty.Property{
		ID:          domainproperty.PropertyID(d.ID),
		OwnerID:     d.OwnerID,
		Title:       d.Title,
		MaxGuests:   d.MaxGuests,
		NightlyRate: d.NightlyRate,
		Available:   d.Available,
	}
}
