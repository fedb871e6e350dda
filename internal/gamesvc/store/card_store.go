package store

import (
	"context"

	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
)

// CardStore holds the card catalog. It is written once and read thereafter.
type CardStore struct {
	store *Store
}

func NewCardStore(s *Store) *CardStore {
	return &CardStore{store: s}
}

func (s *CardStore) List(ctx context.Context) ([]models.Card, error) {
	cards, _, err := Load[[]models.Card](ctx, s.store, CollectionCards)
	return cards, err
}

// GetCardByID returns nil, nil when the card is not in the catalog.
func (s *CardStore) GetCardByID(ctx context.Context, id int) (*models.Card, error) {
	cards, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		if cards[i].ID == id {
			return &cards[i], nil
		}
	}
	return nil, nil
}

// Index returns the catalog keyed by card id.
func (s *CardStore) Index(ctx context.Context) (map[int]models.Card, error) {
	cards, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]models.Card, len(cards))
	for _, c := range cards {
		out[c.ID] = c
	}
	return out, nil
}

func (s *CardStore) SaveAll(ctx context.Context, cards []models.Card) error {
	return s.store.Write(ctx, CollectionCards, cards)
}
