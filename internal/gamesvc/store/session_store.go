package store

import (
	"context"

	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
)

// SessionStore keeps sessions keyed by token. Expiry is the service's concern.
type SessionStore struct {
	store *Store
}

func NewSessionStore(s *Store) *SessionStore {
	return &SessionStore{store: s}
}

func (s *SessionStore) All(ctx context.Context) (map[string]models.Session, error) {
	sessions, _, err := Load[map[string]models.Session](ctx, s.store, CollectionSessions)
	return sessions, err
}

// Get returns nil, nil for an unknown token.
func (s *SessionStore) Get(ctx context.Context, token string) (*models.Session, error) {
	sessions, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	sess, ok := sessions[token]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *SessionStore) Mutate(ctx context.Context, fn func(sessions map[string]models.Session) error) error {
	_, err := Update(ctx, s.store, CollectionSessions, func(sessions *map[string]models.Session) error {
		if *sessions == nil {
			*sessions = make(map[string]models.Session)
		}
		return fn(*sessions)
	})
	return err
}
