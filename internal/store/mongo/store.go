package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/CynnixSinn/CyneticsIDE/internal/store"
)

// Store backs store.Store with a MongoDB collection, one document per
// key with the key as _id.
type Store struct {
	client *mongo.Client
	docs   *mongo.Collection
}

func New(ctx context.Context, uri, db string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &Store{
		client: client,
		docs:   client.Database(db).Collection("documents"),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Get(ctx context.Context, key string) (store.Document, error) {
	var doc store.Document
	err := s.docs.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("mongo get %q: %w", key, err)
	}
	return doc, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	filter := bson.D{{Key: "_id", Value: key}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "value", Value: value}}}}
	opts := options.Update().SetUpsert(true)

	if _, err := s.docs.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("mongo put %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.docs.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}})
	if err != nil {
		return fmt.Errorf("mongo delete %q: %w", key, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) QueryByPrefix(ctx context.Context, prefix string) ([]store.Document, error) {
	filter := bson.D{{Key: "_id", Value: primitive.Regex{
		Pattern: "^" + regexp.QuoteMeta(prefix),
	}}}

	cur, err := s.docs.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongo prefix query %q: %w", prefix, err)
	}
	defer cur.Close(ctx)

	var res []store.Document
	if err := cur.All(ctx, &res); err != nil {
		return nil, fmt.Errorf("mongo prefix decode %q: %w", prefix, err)
	}
	return res, nil
}
