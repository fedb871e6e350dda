package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Collection keys.
const (
	CollectionGames       = "games"
	CollectionAssignments = "assignments"
	CollectionSessions    = "sessions"
	CollectionCards       = "cards"
)

// Store reads and writes whole collections as JSON blobs. There is no partial
// update: every write replaces the collection.
//
// Within one Store, Update holds a per-collection lock, so writers sharing the
// Store never lose each other's changes. Across processes writes are blind by
// default and two read-modify-writes on the same collection can lose one of the
// changes. WithOptimistic turns Update into compare-and-swap on the blob version.
type Store struct {
	backend    Backend
	optimistic bool
	retries    int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Store)

// WithOptimistic makes Update retry up to retries times on a version conflict.
func WithOptimistic(retries int) Option {
	return func(s *Store) {
		s.optimistic = true
		s.retries = retries
	}
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, locks: make(map[string]*sync.Mutex)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Optimistic() bool { return s.optimistic }

// lock takes the collection's lock and returns its release.
func (s *Store) lock(collection string) func() {
	s.mu.Lock()
	l, ok := s.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		s.locks[collection] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Load returns the collection, or the zero value when it is absent. A blob that
// does not decode is deleted and reported as absent.
func Load[T any](ctx context.Context, s *Store, collection string) (T, int64, error) {
	var v T

	data, version, err := s.backend.Get(ctx, collection)
	if errors.Is(err, ErrNotFound) {
		return v, 0, nil
	}
	if err != nil {
		return v, 0, fmt.Errorf("read %s: %w", collection, err)
	}

	if err := json.Unmarshal(data, &v); err != nil {
		log.Errorf("Error [Store.Load] corrupt %s collection, discarding it: %s", collection, err)
		if err := s.backend.Delete(ctx, collection); err != nil {
			log.Errorf("Error [Store.Load] unable to discard %s: %s", collection, err)
		}
		var zero T
		return zero, 0, nil
	}
	return v, version, nil
}

// Write replaces the collection unconditionally.
func (s *Store) Write(ctx context.Context, collection string, v interface{}) error {
	defer s.lock(collection)()
	return s.write(ctx, collection, v)
}

func (s *Store) write(ctx context.Context, collection string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	if _, err := s.backend.Put(ctx, collection, data); err != nil {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	return nil
}

func (s *Store) writeIfVersion(ctx context.Context, collection string, v interface{}, version int64) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	if _, err := s.backend.PutIfVersion(ctx, collection, data, version); err != nil {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	return nil
}

// Update reads the collection, applies fn and writes the result back. An error
// from fn aborts the update without writing. fn must not update the same
// collection through the same Store.
func Update[T any](ctx context.Context, s *Store, collection string, fn func(*T) error) (T, error) {
	defer s.lock(collection)()

	for attempt := 0; ; attempt++ {
		v, version, err := Load[T](ctx, s, collection)
		if err != nil {
			return v, err
		}
		if err := fn(&v); err != nil {
			return v, err
		}

		if !s.optimistic {
			return v, s.write(ctx, collection, v)
		}

		err = s.writeIfVersion(ctx, collection, v, version)
		if errors.Is(err, ErrVersionConflict) && attempt < s.retries {
			log.Debugf("[Store.Update] %s changed underneath, retry %d", collection, attempt+1)
			continue
		}
		return v, err
	}
}
