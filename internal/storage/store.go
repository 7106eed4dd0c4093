package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// DocumentStore persists opaque documents by key. Implementations replace
// a document as a whole: a reader never observes a partially written one.
type DocumentStore interface {
	// Get returns the document stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put atomically replaces the document stored under key.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the document, returning ErrNotFound if it is absent.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Lister is implemented by stores that can enumerate their documents.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Revisioner is implemented by stores that count writes per document.
type Revisioner interface {
	Revision(ctx context.Context, key string) (int64, error)
}
