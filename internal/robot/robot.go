package robot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	log "github.com/sirupsen/logrus"
)

// Contact marks assignments held by robots.
const Contact = "robot"

var names = []string{
	"Aster", "bruno", "Carla Mendes", "dino", "Eli",
	"fatima", "Gus Pereira", "hana", "Ivo", "Joana Reis",
	"kai", "Lia", "Marco Tavares", "nina", "Otto",
}

// Filler seats robot players on free cards so a round never starts empty.
type Filler struct {
	games       *service.GameService
	assignments *service.AssignmentService
	cards       *service.CardService

	target int
	delay  func() time.Duration
	rnd    *rand.Rand
}

type Option func(*Filler)

// WithDelay sets the pause between two robots joining.
func WithDelay(d func() time.Duration) Option {
	return func(f *Filler) { f.delay = d }
}

func WithRand(rnd *rand.Rand) Option {
	return func(f *Filler) { f.rnd = rnd }
}

func NewFiller(games *service.GameService, assignments *service.AssignmentService, cards *service.CardService,
	target int, opts ...Option) *Filler {
	f := &Filler{
		games:       games,
		assignments: assignments,
		cards:       cards,
		target:      min(target, len(names)),
		rnd:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
	}
	f.delay = func() time.Duration { return time.Duration(1+f.rnd.IntN(2)) * time.Second }
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fill seats robots in the game's current round up to the target. A round that
// already holds only robots is left to wait for real players.
func (f *Filler) Fill(ctx context.Context, gameID string) (int, error) {
	g, err := f.games.GetGame(ctx, gameID)
	if err != nil {
		return 0, err
	}
	seated, err := f.assignments.ListByRound(ctx, gameID, g.RoundNumber)
	if err != nil {
		return 0, err
	}

	robots, humans := 0, 0
	for _, a := range seated {
		if a.Contact == Contact {
			robots++
		} else {
			humans++
		}
	}

	want := 0
	switch {
	case humans == 0 && robots == 0:
		want = f.target
	case humans > 0 && robots+humans < f.target:
		want = f.target - robots - humans
	}
	if want == 0 {
		return 0, nil
	}

	log.Infof("[Filler] game %s round %d: players=%d robots=%d, adding %d", gameID, g.RoundNumber, humans, robots, want)
	return f.add(ctx, g, want)
}

func (f *Filler) add(ctx context.Context, g *models.Game, n int) (int, error) {
	added := 0
	for attempt := 0; attempt < n*2 && added < n; attempt++ {
		// re-read before every seat, players keep joining meanwhile
		seated, err := f.assignments.ListByRound(ctx, g.ID, g.RoundNumber)
		if err != nil {
			return added, err
		}
		card, name, err := f.pick(ctx, seated)
		if err != nil {
			log.Warnf("[Filler] game %s after %d robots: %s", g.ID, added, err)
			break
		}

		_, err = f.assignments.Create(ctx, service.AssignmentRequest{
			GameID:      g.ID,
			CardID:      card,
			PlayerName:  name,
			Contact:     Contact,
			RoundNumber: g.RoundNumber,
			Paid:        true,
		})
		if errors.Is(err, service.ErrCardTaken) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++

		if added < n {
			select {
			case <-ctx.Done():
				return added, ctx.Err()
			case <-time.After(f.delay()):
			}
		}
	}
	return added, nil
}

// pick returns a random free card and a robot name not seated yet.
func (f *Filler) pick(ctx context.Context, seated []models.Assignment) (int, string, error) {
	takenCards := make(map[int]bool, len(seated))
	takenNames := make(map[string]bool, len(seated))
	for _, a := range seated {
		takenCards[a.CardID] = true
		if a.Contact == Contact {
			takenNames[a.PlayerName] = true
		}
	}

	var freeNames []string
	for _, name := range names {
		if !takenNames[name] {
			freeNames = append(freeNames, name)
		}
	}
	if len(freeNames) == 0 {
		return 0, "", fmt.Errorf("every robot is seated")
	}

	catalog, err := f.cards.ListCards(ctx)
	if err != nil {
		return 0, "", err
	}
	var freeCards []int
	for _, c := range catalog {
		if !takenCards[c.ID] {
			freeCards = append(freeCards, c.ID)
		}
	}
	if len(freeCards) == 0 {
		return 0, "", fmt.Errorf("every card is taken")
	}

	return freeCards[f.rnd.IntN(len(freeCards))], freeNames[f.rnd.IntN(len(freeNames))], nil
}

// Run fills every waiting game on each tick until ctx is done.
func (f *Filler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		games, err := f.games.ListGames(ctx)
		if err != nil {
			log.Errorf("Error [Filler.ListGames] %s", err)
			continue
		}
		for _, g := range games {
			if g.Status != models.StatusWaiting {
				continue
			}
			if _, err := f.Fill(ctx, g.ID); err != nil {
				log.Errorf("Error [Filler.Fill] game %s: %s", g.ID, err)
			}
		}
	}
}
