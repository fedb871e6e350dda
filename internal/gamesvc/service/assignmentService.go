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

type AssignmentRequest struct {
	GameID      string `json:"gameId"`
	CardID      int    `json:"cardId"`
	PlayerName  string `json:"playerName"`
	Contact     string `json:"contact,omitempty"`
	RoundNumber int    `json:"roundNumber,omitempty"` // 0 means the game's current round
	Paid        bool   `json:"paid"`
}

type AssignmentService struct {
	store *store.AssignmentStore
	games *store.GameStore
	cards *store.CardStore
	now   func() time.Time
}

func NewAssignmentService(store *store.AssignmentStore, games *store.GameStore, cards *store.CardStore) *AssignmentService {
	return &AssignmentService{store: store, games: games, cards: cards, now: time.Now}
}

func (s *AssignmentService) checkRefs(ctx context.Context, gameID string, cardID int) (*models.Game, error) {
	g, err := s.games.GetGameByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	card, err := s.cards.GetCardByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("%w: %d", ErrCardNotFound, cardID)
	}
	return g, nil
}

func cardTaken(list []models.Assignment, self, gameID string, round, cardID int) bool {
	for _, a := range list {
		if a.ID != self && a.InRound(gameID, round) && a.CardID == cardID {
			return true
		}
	}
	return false
}

// Create binds a card to a player. A card can be held by one player per round.
func (s *AssignmentService) Create(ctx context.Context, req AssignmentRequest) (*models.Assignment, error) {
	g, err := s.checkRefs(ctx, req.GameID, req.CardID)
	if err != nil {
		return nil, err
	}
	round := req.RoundNumber
	if round == 0 {
		round = g.RoundNumber
	}

	now := s.now()
	a := models.Assignment{
		ID:          uuid.New().String(),
		GameID:      req.GameID,
		CardID:      req.CardID,
		PlayerName:  req.PlayerName,
		Contact:     req.Contact,
		RoundNumber: round,
		Paid:        req.Paid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = s.store.Mutate(ctx, func(list []models.Assignment) ([]models.Assignment, error) {
		if cardTaken(list, "", a.GameID, a.RoundNumber, a.CardID) {
			return nil, fmt.Errorf("%w: card %d round %d", ErrCardTaken, a.CardID, a.RoundNumber)
		}
		return append(list, a), nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[AssignmentService.Create] card %d -> %s (game %s round %d)", a.CardID, a.PlayerName, a.GameID, a.RoundNumber)
	return &a, nil
}

func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrAssignmentNotFound, id)
	}
	return a, nil
}

func (s *AssignmentService) mutateOne(ctx context.Context, id string, fn func(list []models.Assignment, a *models.Assignment) error) (*models.Assignment, error) {
	var out models.Assignment
	_, err := s.store.Mutate(ctx, func(list []models.Assignment) ([]models.Assignment, error) {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			if err := fn(list, &list[i]); err != nil {
				return nil, err
			}
			list[i].UpdatedAt = s.now()
			out = list[i]
			return list, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrAssignmentNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update changes the player details and card. The game and round stay fixed.
func (s *AssignmentService) Update(ctx context.Context, id string, req AssignmentRequest) (*models.Assignment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.checkRefs(ctx, current.GameID, req.CardID); err != nil {
		return nil, err
	}

	return s.mutateOne(ctx, id, func(list []models.Assignment, a *models.Assignment) error {
		if cardTaken(list, a.ID, a.GameID, a.RoundNumber, req.CardID) {
			return fmt.Errorf("%w: card %d round %d", ErrCardTaken, req.CardID, a.RoundNumber)
		}
		a.CardID = req.CardID
		a.PlayerName = req.PlayerName
		a.Contact = req.Contact
		a.Paid = req.Paid
		return nil
	})
}

func (s *AssignmentService) SetPaid(ctx context.Context, id string, paid bool) (*models.Assignment, error) {
	return s.mutateOne(ctx, id, func(_ []models.Assignment, a *models.Assignment) error {
		a.Paid = paid
		return nil
	})
}

func (s *AssignmentService) Remove(ctx context.Context, id string) error {
	_, err := s.store.Mutate(ctx, func(list []models.Assignment) ([]models.Assignment, error) {
		for i := range list {
			if list[i].ID == id {
				return append(list[:i], list[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrAssignmentNotFound, id)
	})
	return err
}

func (s *AssignmentService) ListByRound(ctx context.Context, gameID string, round int) ([]models.Assignment, error) {
	list, err := s.store.ListByRound(ctx, gameID, round)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Assignment{}
	}
	return list, nil
}
