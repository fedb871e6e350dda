package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/avvvet/bingo-sync/internal/cardgen"
	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
	"github.com/avvvet/bingo-sync/internal/gamesvc/store"
	log "github.com/sirupsen/logrus"
)

type CardService struct {
	store  *store.CardStore
	ranges [5]cardgen.Range
}

func NewCardService(store *store.CardStore) *CardService {
	return &CardService{store: store, ranges: cardgen.StandardRanges}
}

// EnsureCatalog generates n cards from seed unless a catalog already exists.
func (s *CardService) EnsureCatalog(ctx context.Context, n int, seed uint64) ([]models.Card, error) {
	existing, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	generated, err := cardgen.Seeded(seed, cardgen.WithRanges(s.ranges)).Cards(n)
	if err != nil {
		return nil, fmt.Errorf("generate catalog: %w", err)
	}
	cards := make([]models.Card, len(generated))
	for i, c := range generated {
		cards[i] = models.Card{ID: c.ID, Card: c.Grid}
	}
	if err := s.store.SaveAll(ctx, cards); err != nil {
		return nil, err
	}
	log.Infof("[CardService.EnsureCatalog] generated %d cards", len(cards))
	return cards, nil
}

// Import replaces the catalog with the cards in a JSON file of
// [{"id": 1, "card": [[...], ...]}, ...]. Every card is validated first.
func (s *CardService) Import(ctx context.Context, path string) ([]models.Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cards []models.Card
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	seen := make(map[int]bool, len(cards))
	for _, c := range cards {
		if seen[c.ID] {
			return nil, fmt.Errorf("card %d: duplicate id", c.ID)
		}
		seen[c.ID] = true
		if err := cardgen.Validate(c.Card, s.ranges); err != nil {
			return nil, fmt.Errorf("card %d: %w", c.ID, err)
		}
	}

	if err := s.store.SaveAll(ctx, cards); err != nil {
		return nil, err
	}
	log.Infof("[CardService.Import] loaded %d cards from %s", len(cards), path)
	return cards, nil
}

func (s *CardService) GetCard(ctx context.Context, id int) (*models.Card, error) {
	c, err := s.store.GetCardByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %d", ErrCardNotFound, id)
	}
	return c, nil
}

func (s *CardService) ListCards(ctx context.Context) ([]models.Card, error) {
	cards, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []models.Card{}
	}
	return cards, nil
}
