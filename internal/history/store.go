package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/screentime/internal/clock"
	"github.com/goodtune/screentime/internal/storage"
)

// Store loads and saves the transition history as a single document.
type Store struct {
	docs  storage.DocumentStore
	key   string
	clock clock.Clock
}

// NewStore creates a history store backed by docs under key.
func NewStore(docs storage.DocumentStore, key string, clk clock.Clock) *Store {
	return &Store{docs: docs, key: key, clock: clk}
}

// Key returns the document key.
func (s *Store) Key() string {
	return s.key
}

// Load returns the persisted history pruned against the current real time.
// A missing document yields an empty history. A malformed one yields a
// *ParseError and no transitions.
func (s *Store) Load(ctx context.Context) ([]Transition, error) {
	data, err := s.docs.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	transitions, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Prune(transitions, s.clock.RealTimeSecs()), nil
}

// Save prunes transitions and replaces the persisted document, deleting it
// when nothing is left to keep.
func (s *Store) Save(ctx context.Context, transitions []Transition) error {
	pruned := Prune(transitions, s.clock.RealTimeSecs())
	if len(pruned) == 0 {
		if err := storage.IgnoreNotFound(s.docs.Delete(ctx, s.key)); err != nil {
			return fmt.Errorf("delete history: %w", err)
		}
		return nil
	}

	data, err := Encode(pruned)
	if err != nil {
		return err
	}
	if err := s.docs.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
