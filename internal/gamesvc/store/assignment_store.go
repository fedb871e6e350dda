package store

import (
	"context"

	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
)

type AssignmentStore struct {
	store *Store
}

func NewAssignmentStore(s *Store) *AssignmentStore {
	return &AssignmentStore{store: s}
}

func (s *AssignmentStore) List(ctx context.Context) ([]models.Assignment, error) {
	list, _, err := Load[[]models.Assignment](ctx, s.store, CollectionAssignments)
	return list, err
}

// GetByID returns nil, nil when the assignment does not exist.
func (s *AssignmentStore) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, nil
}

func (s *AssignmentStore) ListByRound(ctx context.Context, gameID string, round int) ([]models.Assignment, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Assignment
	for _, a := range list {
		if a.InRound(gameID, round) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *AssignmentStore) Mutate(ctx context.Context, fn func(list []models.Assignment) ([]models.Assignment, error)) ([]models.Assignment, error) {
	return Update(ctx, s.store, CollectionAssignments, func(list *[]models.Assignment) error {
		next, err := fn(*list)
		if err != nil {
			return err
		}
		*list = next
		return nil
	})
}
