package store

import (
	"context"

	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
)

type GameStore struct {
	store *Store
}

func NewGameStore(s *Store) *GameStore {
	return &GameStore{store: s}
}

func (s *GameStore) List(ctx context.Context) ([]models.Game, error) {
	games, _, err := Load[[]models.Game](ctx, s.store, CollectionGames)
	return games, err
}

// GetGameByID returns nil, nil when the game does not exist.
func (s *GameStore) GetGameByID(ctx context.Context, id string) (*models.Game, error) {
	games, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range games {
		if games[i].ID == id {
			return &games[i], nil
		}
	}
	return nil, nil
}

// GetGameByStatus returns the first game in the given status, or nil, nil.
func (s *GameStore) GetGameByStatus(ctx context.Context, status models.GameStatus) (*models.Game, error) {
	games, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range games {
		if games[i].Status == status {
			return &games[i], nil
		}
	}
	return nil, nil
}

// Mutate runs a read-modify-write over the whole games collection.
func (s *GameStore) Mutate(ctx context.Context, fn func(games []models.Game) ([]models.Game, error)) ([]models.Game, error) {
	return Update(ctx, s.store, CollectionGames, func(games *[]models.Game) error {
		next, err := fn(*games)
		if err != nil {
			return err
		}
		*games = next
		return nil
	})
}
