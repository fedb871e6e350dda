package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/avvvet/bingo-sync/internal/bus"
	"github.com/avvvet/bingo-sync/internal/comm"
	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
	"github.com/avvvet/bingo-sync/internal/gamesvc/store"
	"github.com/avvvet/bingo-sync/internal/grid"
	"github.com/avvvet/bingo-sync/internal/pattern"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Emitter publishes controller events. *bus.Socket satisfies it.
type Emitter interface {
	Emit(topic string, payload interface{}, ack func(bus.Ack)) error
}

type WinnerPolicy string

const (
	// PolicyManual publishes detections unconfirmed and waits for ConfirmWinner.
	PolicyManual WinnerPolicy = "manual"
	// PolicyAuto confirms every detection as soon as it is found.
	PolicyAuto WinnerPolicy = "auto"
)

func (p WinnerPolicy) Valid() bool {
	return p == PolicyManual || p == PolicyAuto
}

type CreateGameRequest struct {
	Name            string    `json:"name"`
	MaxNumber       int       `json:"maxNumber,omitempty"`
	EnabledPatterns []string  `json:"enabledPatterns,omitempty"`
	CustomPattern   *[25]bool `json:"customPattern,omitempty"`
}

// Detection is a card of the current round that completed a pattern.
type Detection struct {
	Assignment models.Assignment
	Card       grid.Grid
	Pattern    pattern.Pattern
}

type GameService struct {
	mu          sync.Mutex
	games       *store.GameStore
	assignments *store.AssignmentStore
	cards       *store.CardStore
	emitter     Emitter

	engine    pattern.Engine
	policy    WinnerPolicy
	maxNumber int
	now       func() time.Time
}

type GameOption func(*GameService)

func WithWinnerPolicy(p WinnerPolicy) GameOption {
	return func(s *GameService) {
		if p.Valid() {
			s.policy = p
		}
	}
}

// WithMinDrawn skips winner detection until n numbers have been drawn.
func WithMinDrawn(n int) GameOption {
	return func(s *GameService) { s.engine.MinDrawn = n }
}

// WithMaxNumber sets the domain of games created without one. Values outside
// models.ValidMaxNumber are ignored.
func WithMaxNumber(n int) GameOption {
	return func(s *GameService) {
		if models.ValidMaxNumber(n) {
			s.maxNumber = n
		} else {
			log.Warnf("[GameService] max number %d ignored, keeping %d", n, s.maxNumber)
		}
	}
}

func WithClock(now func() time.Time) GameOption {
	return func(s *GameService) { s.now = now }
}

func NewGameService(games *store.GameStore, assignments *store.AssignmentStore, cards *store.CardStore,
	emitter Emitter, opts ...GameOption) *GameService {
	s := &GameService{
		games:       games,
		assignments: assignments,
		cards:       cards,
		emitter:     emitter,
		policy:      PolicyManual,
		maxNumber:   models.DefaultMaxNumber,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GameService) Policy() WinnerPolicy { return s.policy }

func (s *GameService) CreateGame(ctx context.Context, req CreateGameRequest) (*models.Game, error) {
	if _, err := pattern.ParseAll(req.EnabledPatterns, req.CustomPattern); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPattern, err)
	}
	maxNumber := req.MaxNumber
	if maxNumber == 0 {
		maxNumber = s.maxNumber
	}
	if !models.ValidMaxNumber(maxNumber) {
		return nil, fmt.Errorf("%w: max number %d not in %d..%d", ErrOutOfRange, maxNumber, models.DefaultMaxNumber, models.MaxNumberLimit)
	}

	now := s.now()
	game := models.Game{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Status:          models.StatusWaiting,
		RoundNumber:     1,
		CalledNumbers:   []int{},
		MaxNumber:       maxNumber,
		EnabledPatterns: req.EnabledPatterns,
		CustomPattern:   req.CustomPattern,
		Winners:         []models.Winner{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.games.Mutate(ctx, func(games []models.Game) ([]models.Game, error) {
		return append(games, game), nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[GameService.CreateGame] created game %s (%s)", game.ID, game.Name)
	return &game, nil
}

func (s *GameService) GetGame(ctx context.Context, id string) (*models.Game, error) {
	g, err := s.games.GetGameByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	return g, nil
}

func (s *GameService) ListGames(ctx context.Context) ([]models.Game, error) {
	games, err := s.games.List(ctx)
	if err != nil {
		return nil, err
	}
	if games == nil {
		games = []models.Game{}
	}
	return games, nil
}

// ActiveGame returns the single active game, or ErrGameNotFound.
func (s *GameService) ActiveGame(ctx context.Context) (*models.Game, error) {
	g, err := s.games.GetGameByStatus(ctx, models.StatusActive)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: no active game", ErrGameNotFound)
	}
	return g, nil
}

// Replay returns the stored state a late joiner needs to catch up.
func (s *GameService) Replay(ctx context.Context, id string) (*models.Game, error) {
	return s.GetGame(ctx, id)
}

// mutateGame applies fn to one game within a single write of the games collection.
// fn also sees the whole collection so it can touch other games.
func (s *GameService) mutateGame(ctx context.Context, id string, fn func(games []models.Game, g *models.Game) error) (models.Game, error) {
	var out models.Game
	_, err := s.games.Mutate(ctx, func(games []models.Game) ([]models.Game, error) {
		i := indexOfGame(games, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
		}
		if err := fn(games, &games[i]); err != nil {
			return nil, err
		}
		games[i].UpdatedAt = s.now()
		out = games[i]
		return games, nil
	})
	return out, err
}

func indexOfGame(games []models.Game, id string) int {
	for i := range games {
		if games[i].ID == id {
			return i
		}
	}
	return -1
}

// finishOthers forces every other active game to finished and returns them.
func (s *GameService) finishOthers(games []models.Game, keep string) []models.Game {
	var changed []models.Game
	for i := range games {
		if games[i].ID != keep && games[i].Status == models.StatusActive {
			games[i].Status = models.StatusFinished
			games[i].UpdatedAt = s.now()
			changed = append(changed, games[i])
		}
	}
	return changed
}

// StartGame moves a waiting or finished game to active with a clean draw history.
// Any other active game is finished in the same write.
func (s *GameService) StartGame(ctx context.Context, id string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finished []models.Game
	g, err := s.mutateGame(ctx, id, func(games []models.Game, g *models.Game) error {
		if g.Status != models.StatusWaiting && g.Status != models.StatusFinished {
			return fmt.Errorf("%w: cannot start a %s game", ErrInvalidTransition, g.Status)
		}
		g.Status = models.StatusActive
		g.CalledNumbers = []int{}
		g.CurrentNumber = nil
		g.Winners = []models.Winner{}
		finished = s.finishOthers(games, g.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, other := range finished {
		log.Warnf("[GameService.StartGame] game %s was active, finished it", other.ID)
		s.publishStatus(other)
	}
	s.publishStatus(g)
	return &g, nil
}

// Draw records n for the active game, publishes it and runs winner detection.
func (s *GameService) Draw(ctx context.Context, id string, n int) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draw(ctx, id, n)
}

// DrawRandom draws a uniformly random number that has not been called yet.
func (s *GameService) DrawRandom(ctx context.Context, id string, rnd *rand.Rand) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: game %s is %s", ErrInvalidTransition, id, g.Status)
	}

	undrawn := make([]int, 0, g.MaxNumber)
	for n := 1; n <= g.MaxNumber; n++ {
		if !g.HasCalled(n) {
			undrawn = append(undrawn, n)
		}
	}
	if len(undrawn) == 0 {
		return nil, fmt.Errorf("%w: game %s", ErrDomainExhausted, id)
	}
	return s.draw(ctx, id, undrawn[rnd.IntN(len(undrawn))])
}

func (s *GameService) draw(ctx context.Context, id string, n int) (*models.Game, error) {
	g, err := s.mutateGame(ctx, id, func(_ []models.Game, g *models.Game) error {
		if g.Status != models.StatusActive {
			return fmt.Errorf("%w: game %s is %s", ErrInvalidTransition, g.ID, g.Status)
		}
		if n < 1 || n > g.MaxNumber {
			return fmt.Errorf("%w: %d not in 1..%d", ErrOutOfRange, n, g.MaxNumber)
		}
		if g.HasCalled(n) {
			return fmt.Errorf("%w: %d", ErrAlreadyDrawn, n)
		}
		g.CalledNumbers = append(g.CalledNumbers, n)
		current := n
		g.CurrentNumber = &current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(comm.TopicNumberDrawn, comm.NumberDrawn{
		GameID:        g.ID,
		Number:        n,
		CalledNumbers: append([]int(nil), g.CalledNumbers...),
		RoundNumber:   g.RoundNumber,
		Timestamp:     s.now().UnixMilli(),
	})

	// the draw is stored; a failed detection only delays winners to the next draw
	if err := s.publishDetections(ctx, &g); err != nil {
		log.Errorf("Error [GameService.Draw] winner detection for %s: %s", g.ID, err)
	}
	return &g, nil
}

// Reset clears the current round's draws and winners, and the winner flags of that
// round's assignments. Other rounds are untouched.
func (s *GameService) Reset(ctx context.Context, id string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.mutateGame(ctx, id, func(_ []models.Game, g *models.Game) error {
		if g.Status != models.StatusActive {
			return fmt.Errorf("%w: cannot reset a %s game", ErrInvalidTransition, g.Status)
		}
		g.ClearRound()
		return nil
	})
	if err != nil {
		return nil, err
	}

	_, err = s.assignments.Mutate(ctx, func(list []models.Assignment) ([]models.Assignment, error) {
		for i := range list {
			if list[i].InRound(g.ID, g.RoundNumber) {
				list[i].Winner = false
			}
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(comm.TopicRaffleReset, comm.RaffleReset{GameID: g.ID, RoundNumber: g.RoundNumber})
	return &g, nil
}

// NextRound advances the round counter of an active game and clears the draw
// history. Winners of earlier rounds are kept.
func (s *GameService) NextRound(ctx context.Context, id string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.mutateGame(ctx, id, func(_ []models.Game, g *models.Game) error {
		if g.Status != models.StatusActive {
			return fmt.Errorf("%w: cannot advance a %s game", ErrInvalidTransition, g.Status)
		}
		g.RoundNumber++
		g.CalledNumbers = []int{}
		g.CurrentNumber = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatus(g)
	return &g, nil
}

// Finish closes an active game and records the supplied winners.
func (s *GameService) Finish(ctx context.Context, id string, winners []models.Winner) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.mutateGame(ctx, id, func(_ []models.Game, g *models.Game) error {
		if g.Status != models.StatusActive {
			return fmt.Errorf("%w: cannot finish a %s game", ErrInvalidTransition, g.Status)
		}
		g.Status = models.StatusFinished
		for _, w := range winners {
			if w.RoundNumber == 0 {
				w.RoundNumber = g.RoundNumber
			}
			if w.Timestamp.IsZero() {
				w.Timestamp = s.now()
			}
			g.Winners = append(g.Winners, w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatus(g)
	return &g, nil
}

// SetStatus is the administrative override. Activating a game still finishes any
// other active game.
func (s *GameService) SetStatus(ctx context.Context, id string, status models.GameStatus) (*models.Game, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var finished []models.Game
	g, err := s.mutateGame(ctx, id, func(games []models.Game, g *models.Game) error {
		g.Status = status
		if status == models.StatusActive {
			finished = s.finishOthers(games, g.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, other := range finished {
		s.publishStatus(other)
	}
	s.publishStatus(g)
	return &g, nil
}

// RemoveGame deletes the game and every assignment bound to it.
func (s *GameService) RemoveGame(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.games.Mutate(ctx, func(games []models.Game) ([]models.Game, error) {
		i := indexOfGame(games, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
		}
		return append(games[:i], games[i+1:]...), nil
	})
	if err != nil {
		return err
	}

	_, err = s.assignments.Mutate(ctx, func(list []models.Assignment) ([]models.Assignment, error) {
		kept := list[:0]
		for _, a := range list {
			if a.GameID != id {
				kept = append(kept, a)
			}
		}
		return kept, nil
	})
	return err
}

// SetRoundSettings stores the pattern and prize for one round.
func (s *GameService) SetRoundSettings(ctx context.Context, id string, round int, settings models.RoundSettings) (*models.Game, error) {
	if round < 1 {
		return nil, fmt.Errorf("%w: round %d", ErrOutOfRange, round)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.mutateGame(ctx, id, func(_ []models.Game, g *models.Game) error {
		if settings.Pattern != "" {
			if _, err := pattern.Parse(settings.Pattern, g.CustomPattern); err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidPattern, err)
			}
		}
		if g.Rounds == nil {
			g.Rounds = make(map[int]models.RoundSettings)
		}
		g.Rounds[round] = settings
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// patterns returns what counts as a win in the game's current round: the round's
// own pattern, else the enabled set, else every line.
func (s *GameService) patterns(g *models.Game) []pattern.Pattern {
	if rs, ok := g.Round(g.RoundNumber); ok && rs.Pattern != "" {
		p, err := pattern.Parse(rs.Pattern, g.CustomPattern)
		if err == nil {
			return []pattern.Pattern{p}
		}
		log.Errorf("Error [GameService.patterns] round %d of %s: %s", g.RoundNumber, g.ID, err)
	}
	ps, err := pattern.ParseAll(g.EnabledPatterns, g.CustomPattern)
	if err != nil {
		log.Errorf("Error [GameService.patterns] game %s: %s", g.ID, err)
		return pattern.Lines()
	}
	return ps
}

// DetectWinners scans the current round's assignments that have not won yet.
func (s *GameService) DetectWinners(ctx context.Context, id string) ([]Detection, error) {
	g, err := s.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detect(ctx, g)
}

func (s *GameService) detect(ctx context.Context, g *models.Game) ([]Detection, error) {
	if len(g.CalledNumbers) < s.engine.MinDrawn {
		return nil, nil
	}

	assigned, err := s.assignments.ListByRound(ctx, g.ID, g.RoundNumber)
	if err != nil {
		return nil, err
	}
	if len(assigned) == 0 {
		return nil, nil
	}
	catalog, err := s.cards.Index(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Assignment, len(assigned))
	candidates := make([]pattern.Candidate, 0, len(assigned))
	for _, a := range assigned {
		if a.Winner || g.HasWinner(a.ID, g.RoundNumber) {
			continue
		}
		card, ok := catalog[a.CardID]
		if !ok {
			log.Warnf("[GameService.detect] assignment %s references unknown card %d", a.ID, a.CardID)
			continue
		}
		byID[a.ID] = a
		candidates = append(candidates, pattern.Candidate{ID: a.ID, Grid: card.Card})
	}

	matches := s.engine.Scan(candidates, g.CalledNumbers, s.patterns(g))
	out := make([]Detection, 0, len(matches))
	for _, m := range matches {
		out = append(out, Detection{
			Assignment: byID[m.Candidate.ID],
			Card:       m.Candidate.Grid,
			Pattern:    m.Pattern,
		})
	}
	return out, nil
}

// publishDetections announces the cards the last draw turned into winners. A card
// that was already complete before it stays pending without a second bingoWin.
func (s *GameService) publishDetections(ctx context.Context, g *models.Game) error {
	detections, err := s.detect(ctx, g)
	if err != nil || len(detections) == 0 {
		return err
	}

	before := g.CalledNumbers[:len(g.CalledNumbers)-1]
	patterns := s.patterns(g)
	for _, d := range detections {
		if _, announced := s.engine.FirstMatch(d.Card, before, patterns); announced {
			continue
		}

		confirmed := false
		if s.policy == PolicyAuto {
			if _, err := s.confirm(ctx, g.ID, d.Assignment.ID, d.Pattern.ID()); err != nil {
				log.Errorf("Error [GameService.publishDetections] confirming %s: %s", d.Assignment.ID, err)
			} else {
				confirmed = true
			}
		}

		log.Infof("[GameService] bingo on game %s: %s card %d (%s)", g.ID, d.Assignment.PlayerName, d.Assignment.CardID, d.Pattern.ID())
		s.emit(comm.TopicBingoWin, comm.BingoWin{
			GameID:        g.ID,
			PlayerName:    d.Assignment.PlayerName,
			CardID:        d.Assignment.CardID,
			AssignmentID:  d.Assignment.ID,
			Pattern:       d.Pattern.ID(),
			Card:          d.Card,
			CalledNumbers: append([]int(nil), g.CalledNumbers...),
			RoundNumber:   g.RoundNumber,
			Confirmed:     confirmed,
		})
	}
	return nil
}

// ConfirmWinner records the assignment as a winner of the current round. An empty
// patternID uses the first pattern the card completes. Confirming twice is a no-op.
func (s *GameService) ConfirmWinner(ctx context.Context, id, assignmentID, patternID string) (*models.Winner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirm(ctx, id, assignmentID, patternID)
}

func (s *GameService) confirm(ctx context.Context, id, assignmentID, patternID string) (*models.Winner, error) {
	a, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.GameID != id {
		return nil, fmt.Errorf("%w: %s", ErrAssignmentNotFound, assignmentID)
	}
	card, err := s.cards.GetCardByID(ctx, a.CardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("%w: %d", ErrCardNotFound, a.CardID)
	}

	var (
		winner  models.Winner
		already bool
	)
	g, err := s.mutateGame(ctx, id, func(_ []models.Game, g *models.Game) error {
		if g.Status != models.StatusActive {
			return fmt.Errorf("%w: game %s is %s", ErrInvalidTransition, g.ID, g.Status)
		}
		if a.RoundNumber != g.RoundNumber {
			return fmt.Errorf("%w: assignment %s belongs to round %d", ErrInvalidTransition, a.ID, a.RoundNumber)
		}
		for _, w := range g.Winners {
			if w.AssignmentID == a.ID && w.RoundNumber == g.RoundNumber {
				winner, already = w, true
				return nil
			}
		}

		p, err := s.completed(card.Card, g, patternID)
		if err != nil {
			return err
		}
		winner = models.Winner{
			PlayerName:   a.PlayerName,
			CardID:       a.CardID,
			AssignmentID: a.ID,
			Pattern:      p.ID(),
			RoundNumber:  g.RoundNumber,
			Timestamp:    s.now(),
		}
		g.Winners = append(g.Winners, winner)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if already {
		return &winner, nil
	}

	_, err = s.assignments.Mutate(ctx, func(list []models.Assignment) ([]models.Assignment, error) {
		for i := range list {
			if list[i].ID == a.ID {
				list[i].Winner = true
				list[i].UpdatedAt = s.now()
			}
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(comm.TopicWinnerConfirmed, comm.WinnerConfirmed{GameID: g.ID, RoundNumber: g.RoundNumber, Winner: winner})
	return &winner, nil
}

// completed returns the pattern card has completed with the game's called numbers:
// patternID when given, else the first winning pattern of the round.
func (s *GameService) completed(card grid.Grid, g *models.Game, patternID string) (pattern.Pattern, error) {
	if patternID == "" {
		p, ok := pattern.Engine{}.FirstMatch(card, g.CalledNumbers, s.patterns(g))
		if !ok {
			return pattern.Pattern{}, fmt.Errorf("%w: card has not completed a pattern", ErrInvalidPattern)
		}
		return p, nil
	}

	p, err := pattern.Parse(patternID, g.CustomPattern)
	if err != nil {
		return pattern.Pattern{}, fmt.Errorf("%w: %s", ErrInvalidPattern, err)
	}
	if !pattern.Matches(card, pattern.NewCalled(g.CalledNumbers), p) {
		return pattern.Pattern{}, fmt.Errorf("%w: card has not completed %s", ErrInvalidPattern, p.ID())
	}
	return p, nil
}

func (s *GameService) publishStatus(g models.Game) {
	s.emit(comm.TopicGameStatus, comm.GameStatus{GameID: g.ID, Status: g.Status, RoundNumber: g.RoundNumber})
}

func (s *GameService) emit(topic string, payload interface{}) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(topic, payload, nil); err != nil {
		log.Errorf("Error [GameService.emit] %s: %s", topic, err)
	}
}
