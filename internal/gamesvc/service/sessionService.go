package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
	"github.com/avvvet/bingo-sync/internal/gamesvc/store"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const DefaultSessionTTL = 12 * time.Hour

type SessionService struct {
	store *store.SessionStore
	games *store.GameStore
	ttl   time.Duration
	now   func() time.Time
}

func NewSessionService(store *store.SessionStore, games *store.GameStore) *SessionService {
	return &SessionService{store: store, games: games, ttl: DefaultSessionTTL, now: time.Now}
}

// WithTTL sets the lifetime used when Create gets no ttl.
func (s *SessionService) WithTTL(ttl time.Duration) *SessionService {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// Create opens a session. Gestor and player sessions are bound to an existing game.
func (s *SessionService) Create(ctx context.Context, role models.Role, gameID, player string, ttl time.Duration) (*models.Session, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrForbidden, role)
	}
	if role != models.RoleAdmin {
		g, err := s.games.GetGameByID(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if g == nil {
			return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
		}
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	sess := models.Session{
		Token:      uuid.New().String(),
		Role:       role,
		GameID:     gameID,
		PlayerName: player,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	err := s.store.Mutate(ctx, func(sessions map[string]models.Session) error {
		sessions[sess.Token] = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Get returns the live session for token. An expired session is removed and
// reported as not found.
func (s *SessionService) Get(ctx context.Context, token string) (*models.Session, error) {
	sess, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.Expired(s.now()) {
		if err := s.Logout(ctx, token); err != nil {
			log.Errorf("Error [SessionService.Get] pruning expired session: %s", err)
		}
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Authorize checks that token may operate gameID.
func (s *SessionService) Authorize(ctx context.Context, token, gameID string) (*models.Session, error) {
	sess, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if !sess.CanOperate(gameID) {
		return nil, fmt.Errorf("%w: %s may not operate game %s", ErrForbidden, sess.Role, gameID)
	}
	return sess, nil
}

func (s *SessionService) Logout(ctx context.Context, token string) error {
	return s.store.Mutate(ctx, func(sessions map[string]models.Session) error {
		delete(sessions, token)
		return nil
	})
}

// PurgeExpired drops every expired session and returns how many went.
func (s *SessionService) PurgeExpired(ctx context.Context) (int, error) {
	purged := 0
	err := s.store.Mutate(ctx, func(sessions map[string]models.Session) error {
		purged = 0
		now := s.now()
		for token, sess := range sessions {
			if sess.Expired(now) {
				delete(sessions, token)
				purged++
			}
		}
		return nil
	})
	return purged, err
}
