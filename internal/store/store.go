// Package store defines the key-value document store the collaboration
// core persists to. Room state never lives here; only explicit saves
// (file documents, debug snapshots) go through a Store.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("store: key not found")

// Document is an opaque value addressed by key.
type Document struct {
	Key   string `bson:"_id" json:"key"`
	Value []byte `bson:"value" json:"value"`
}

type Store interface {
	Get(ctx context.Context, key string) (Document, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// QueryByPrefix returns all documents whose key starts with prefix,
	// in unspecified order.
	QueryByPrefix(ctx context.Context, prefix string) ([]Document, error)
}
