package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const MongoCollection = "shared_state"

type stateDoc struct {
	Key       string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoBackend keeps each collection as one document keyed by collection name.
type MongoBackend struct {
	coll *mongo.Collection
}

func NewMongoBackend(db *mongo.Database) *MongoBackend {
	return &MongoBackend{coll: db.Collection(MongoCollection)}
}

func (b *MongoBackend) Get(ctx context.Context, key string) ([]byte, int64, error) {
	var doc stateDoc
	err := b.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("get %s: %w", key, err)
	}
	return doc.Data, doc.Version, nil
}

func (b *MongoBackend) Put(ctx context.Context, key string, data []byte) (int64, error) {
	var doc stateDoc
	err := b.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{
			"$set": bson.M{"data": data, "updated_at": time.Now()},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	return doc.Version, nil
}

func (b *MongoBackend) PutIfVersion(ctx context.Context, key string, data []byte, version int64) (int64, error) {
	if version == 0 {
		_, err := b.coll.InsertOne(ctx, stateDoc{Key: key, Data: data, Version: 1, UpdatedAt: time.Now()})
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return 0, ErrVersionConflict
			}
			return 0, fmt.Errorf("insert %s: %w", key, err)
		}
		return 1, nil
	}

	var doc stateDoc
	err := b.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": key, "version": version},
		bson.M{
			"$set": bson.M{"data": data, "updated_at": time.Now()},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrVersionConflict
		}
		return 0, fmt.Errorf("put %s at version %d: %w", key, version, err)
	}
	return doc.Version, nil
}

func (b *MongoBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
