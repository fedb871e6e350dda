package service

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/bingo-sync/internal/bus"
	"github.com/avvvet/bingo-sync/internal/cardgen"
	"github.com/avvvet/bingo-sync/internal/comm"
	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
	"github.com/avvvet/bingo-sync/internal/gamesvc/store"
	"github.com/avvvet/bingo-sync/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	topic   string
	payload interface{}
}

// recordingEmitter stands in for a bus socket.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *recordingEmitter) Emit(topic string, payload interface{}, ack func(bus.Ack)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{topic: topic, payload: payload})
	return nil
}

func (e *recordingEmitter) all(topic string) []interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []interface{}
	for _, ev := range e.events {
		if ev.topic == topic {
			out = append(out, ev.payload)
		}
	}
	return out
}

func (e *recordingEmitter) reset() {
	e.mu.Lock()
	e.events = nil
	e.mu.Unlock()
}

// Card 1 holds 1,16,31,46,61 on its top row; card 2 is card 1 shifted by five.
func testCard(shift int) grid.Grid {
	var g grid.Grid
	for r := 0; r < grid.Size; r++ {
		for c := 0; c < grid.Size; c++ {
			g[r][c] = c*15 + r + 1 + shift
		}
	}
	g[2][2] = grid.Free
	return g
}

type fixture struct {
	ctx         context.Context
	backend     *store.MemoryBackend
	games       *GameService
	assignments *AssignmentService
	sessions    *SessionService
	cards       *CardService
	emitter     *recordingEmitter
}

func newFixture(t *testing.T, opts ...GameOption) *fixture {
	t.Helper()
	backend := store.NewMemoryBackend()
	return newFixtureOn(t, backend, &recordingEmitter{}, opts...)
}

func newFixtureOn(t *testing.T, backend *store.MemoryBackend, emitter Emitter, opts ...GameOption) *fixture {
	t.Helper()
	s := store.New(backend)
	gs := store.NewGameStore(s)
	as := store.NewAssignmentStore(s)
	cs := store.NewCardStore(s)

	require.NoError(t, cs.SaveAll(context.Background(), []models.Card{
		{ID: 1, Card: testCard(0)},
		{ID: 2, Card: testCard(5)},
	}))

	f := &fixture{
		ctx:         context.Background(),
		backend:     backend,
		games:       NewGameService(gs, as, cs, emitter, opts...),
		assignments: NewAssignmentService(as, gs, cs),
		sessions:    NewSessionService(store.NewSessionStore(s), gs),
		cards:       NewCardService(cs),
	}
	f.emitter, _ = emitter.(*recordingEmitter)
	return f
}

func (f *fixture) startedGame(t *testing.T) *models.Game {
	t.Helper()
	g, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "friday"})
	require.NoError(t, err)
	g, err = f.games.StartGame(f.ctx, g.ID)
	require.NoError(t, err)
	if f.emitter != nil {
		f.emitter.reset()
	}
	return g
}

func (f *fixture) assign(t *testing.T, gameID string, cardID int, player string) *models.Assignment {
	t.Helper()
	a, err := f.assignments.Create(f.ctx, AssignmentRequest{GameID: gameID, CardID: cardID, PlayerName: player})
	require.NoError(t, err)
	return a
}

func (f *fixture) drawAll(t *testing.T, gameID string, numbers ...int) {
	t.Helper()
	for _, n := range numbers {
		_, err := f.games.Draw(f.ctx, gameID, n)
		require.NoError(t, err)
	}
}

func TestDrawAndResetScenario(t *testing.T) {
	f := newFixture(t)

	g, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "G"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, g.Status)

	g, err = f.games.StartGame(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, g.Status)
	assert.Empty(t, g.CalledNumbers)

	g, err = f.games.Draw(f.ctx, g.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, g.CalledNumbers)
	require.NotNil(t, g.CurrentNumber)
	assert.Equal(t, 7, *g.CurrentNumber)

	drawn := f.emitter.all(comm.TopicNumberDrawn)
	require.Len(t, drawn, 1)
	assert.Equal(t, []int{7}, drawn[0].(comm.NumberDrawn).CalledNumbers)

	_, err = f.games.Draw(f.ctx, g.ID, 7)
	assert.ErrorIs(t, err, ErrAlreadyDrawn)
	stored, err := f.games.GetGame(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, stored.CalledNumbers)
	assert.Len(t, f.emitter.all(comm.TopicNumberDrawn), 1)

	g, err = f.games.Reset(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, g.CalledNumbers)
	assert.Nil(t, g.CurrentNumber)
	assert.Equal(t, []interface{}{comm.RaffleReset{GameID: g.ID, RoundNumber: 1}}, f.emitter.all(comm.TopicRaffleReset))
}

func TestDrawRejections(t *testing.T) {
	f := newFixture(t)

	g, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "G"})
	require.NoError(t, err)

	_, err = f.games.Draw(f.ctx, g.ID, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition, "waiting game")

	_, err = f.games.Draw(f.ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrGameNotFound)

	_, err = f.games.StartGame(f.ctx, g.ID)
	require.NoError(t, err)

	for _, n := range []int{0, -3, 76} {
		_, err = f.games.Draw(f.ctx, g.ID, n)
		assert.ErrorIs(t, err, ErrOutOfRange, "%d", n)
	}
}

func TestDrawNeverRepeats(t *testing.T) {
	f := newFixture(t)
	g, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "G", MaxNumber: 80})
	require.NoError(t, err)
	_, err = f.games.StartGame(f.ctx, g.ID)
	require.NoError(t, err)

	rnd := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		_, _ = f.games.Draw(f.ctx, g.ID, 1+rnd.IntN(80))
	}
	for i := 0; i < 85; i++ {
		_, err = f.games.DrawRandom(f.ctx, g.ID, rnd)
		if err != nil {
			assert.ErrorIs(t, err, ErrDomainExhausted)
		}
	}

	stored, err := f.games.GetGame(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, stored.CalledNumbers, 80)
	seen := map[int]bool{}
	for _, n := range stored.CalledNumbers {
		assert.False(t, seen[n], "%d drawn twice", n)
		seen[n] = true
	}

	_, err = f.games.DrawRandom(f.ctx, g.ID, rnd)
	assert.ErrorIs(t, err, ErrDomainExhausted)
}

func TestMaxNumberMustCoverCards(t *testing.T) {
	f := newFixture(t)

	for _, n := range []int{-1, 10, 74, 100, 1 << 30} {
		_, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "G", MaxNumber: n})
		assert.ErrorIs(t, err, ErrOutOfRange, "%d", n)
	}
	for _, n := range []int{75, 99} {
		g, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "G", MaxNumber: n})
		require.NoError(t, err)
		assert.Equal(t, n, g.MaxNumber)
	}

	assert.Equal(t, models.DefaultMaxNumber, cardgen.StandardRanges[grid.Size-1].Max, "cards reach the default domain")

	// a bad option keeps the default
	small := newFixture(t, WithMaxNumber(6))
	g, err := small.games.CreateGame(small.ctx, CreateGameRequest{Name: "G"})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultMaxNumber, g.MaxNumber)
}

func TestSingleActiveGame(t *testing.T) {
	f := newFixture(t)

	var ids []string
	for i := 0; i < 3; i++ {
		g, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "G"})
		require.NoError(t, err)
		ids = append(ids, g.ID)
	}

	countActive := func() int {
		games, err := f.games.ListGames(f.ctx)
		require.NoError(t, err)
		n := 0
		for _, g := range games {
			if g.Status == models.StatusActive {
				n++
			}
		}
		return n
	}

	for _, i := range []int{0, 1, 2, 0, 2} {
		_, err := f.games.StartGame(f.ctx, ids[i])
		if err != nil {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
		assert.LessOrEqual(t, countActive(), 1)
	}

	_, err := f.games.SetStatus(f.ctx, ids[1], models.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, 1, countActive())

	active, err := f.games.ActiveGame(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[1], active.ID)
}

func TestStartGameFinishesOtherAndPublishes(t *testing.T) {
	f := newFixture(t)
	first := f.startedGame(t)

	second, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "next"})
	require.NoError(t, err)
	_, err = f.games.StartGame(f.ctx, second.ID)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{
		comm.GameStatus{GameID: first.ID, Status: models.StatusFinished, RoundNumber: 1},
		comm.GameStatus{GameID: second.ID, Status: models.StatusActive, RoundNumber: 1},
	}, f.emitter.all(comm.TopicGameStatus))

	_, err = f.games.StartGame(f.ctx, second.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestManualPolicyWaitsForConfirmation(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)
	a := f.assign(t, g.ID, 1, "ana")
	f.assign(t, g.ID, 2, "bo")

	f.drawAll(t, g.ID, 1, 16, 31, 46)
	assert.Empty(t, f.emitter.all(comm.TopicBingoWin))

	f.drawAll(t, g.ID, 61)
	wins := f.emitter.all(comm.TopicBingoWin)
	require.Len(t, wins, 1)
	win := wins[0].(comm.BingoWin)
	assert.Equal(t, "ana", win.PlayerName)
	assert.Equal(t, "row-0", win.Pattern)
	assert.Equal(t, a.ID, win.AssignmentID)
	assert.False(t, win.Confirmed)
	assert.Empty(t, f.emitter.all(comm.TopicWinnerConfirmed))

	stored, err := f.games.GetGame(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Winners)

	// pending until confirmed, but announced once
	f.drawAll(t, g.ID, 70)
	assert.Len(t, f.emitter.all(comm.TopicBingoWin), 1)
	pending, err := f.games.DetectWinners(f.ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].Assignment.ID)

	w, err := f.games.ConfirmWinner(f.ctx, g.ID, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "row-0", w.Pattern)

	again, err := f.games.ConfirmWinner(f.ctx, g.ID, a.ID, "row-0")
	require.NoError(t, err)
	assert.True(t, w.Timestamp.Equal(again.Timestamp))
	assert.Len(t, f.emitter.all(comm.TopicWinnerConfirmed), 1)

	f.drawAll(t, g.ID, 71)
	assert.Len(t, f.emitter.all(comm.TopicBingoWin), 1, "confirmed winner not detected again")
	pending, err = f.games.DetectWinners(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stored, err = f.games.GetGame(f.ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, stored.Winners, 1)
	assert.Equal(t, "ana", stored.Winners[0].PlayerName)

	got, err := f.assignments.Get(f.ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Winner)
}

func TestBingoAnnouncedOnceWhileUnconfirmed(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)
	f.assign(t, g.ID, 1, "ana")
	late := f.assign(t, g.ID, 2, "bo")

	f.drawAll(t, g.ID, 1, 16, 31, 46, 61)
	f.drawAll(t, g.ID, 70, 71, 72)
	require.Len(t, f.emitter.all(comm.TopicBingoWin), 1)

	// card 2 completes its own column later and gets its own announcement
	f.drawAll(t, g.ID, 6, 7, 8, 9, 10)
	wins := f.emitter.all(comm.TopicBingoWin)
	require.Len(t, wins, 2)
	assert.Equal(t, late.ID, wins[1].(comm.BingoWin).AssignmentID)
}

func TestConfirmRequiresCompletedPattern(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)
	a := f.assign(t, g.ID, 1, "ana")
	f.drawAll(t, g.ID, 1)

	_, err := f.games.ConfirmWinner(f.ctx, g.ID, a.ID, "full-card")
	assert.ErrorIs(t, err, ErrInvalidPattern)
	_, err = f.games.ConfirmWinner(f.ctx, g.ID, a.ID, "")
	assert.ErrorIs(t, err, ErrInvalidPattern)
	_, err = f.games.ConfirmWinner(f.ctx, g.ID, a.ID, "zigzag")
	assert.ErrorIs(t, err, ErrInvalidPattern)

	stored, err := f.games.GetGame(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Winners)
	got, err := f.assignments.Get(f.ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Winner)
	assert.Empty(t, f.emitter.all(comm.TopicWinnerConfirmed))

	f.drawAll(t, g.ID, 16, 31, 46, 61)
	w, err := f.games.ConfirmWinner(f.ctx, g.ID, a.ID, "row-0")
	require.NoError(t, err)
	assert.Equal(t, "row-0", w.Pattern)
}

func TestNextRoundNeedsActiveGame(t *testing.T) {
	f := newFixture(t)
	g, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "G"})
	require.NoError(t, err)

	_, err = f.games.NextRound(f.ctx, g.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.games.StartGame(f.ctx, g.ID)
	require.NoError(t, err)
	g, err = f.games.NextRound(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, g.RoundNumber)
}

func TestAutoPolicyConfirmsImmediately(t *testing.T) {
	f := newFixture(t, WithWinnerPolicy(PolicyAuto))
	g := f.startedGame(t)
	f.assign(t, g.ID, 1, "ana")

	f.drawAll(t, g.ID, 1, 2, 3, 4, 5)

	wins := f.emitter.all(comm.TopicBingoWin)
	require.Len(t, wins, 1)
	assert.True(t, wins[0].(comm.BingoWin).Confirmed)
	assert.Equal(t, "column-0", wins[0].(comm.BingoWin).Pattern)

	confirmed := f.emitter.all(comm.TopicWinnerConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "ana", confirmed[0].(comm.WinnerConfirmed).Winner.PlayerName)
}

func TestMinDrawnDelaysDetection(t *testing.T) {
	f := newFixture(t, WithWinnerPolicy(PolicyAuto), WithMinDrawn(6))
	g := f.startedGame(t)
	f.assign(t, g.ID, 1, "ana")

	f.drawAll(t, g.ID, 1, 2, 3, 4, 5)
	assert.Empty(t, f.emitter.all(comm.TopicBingoWin))

	f.drawAll(t, g.ID, 75)
	assert.Len(t, f.emitter.all(comm.TopicBingoWin), 1)
}

func TestRoundPatternOverridesEnabledSet(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)
	f.assign(t, g.ID, 1, "ana")

	_, err := f.games.SetRoundSettings(f.ctx, g.ID, 1, models.RoundSettings{Pattern: "four-corners", Prize: "hamper"})
	require.NoError(t, err)

	_, err = f.games.SetRoundSettings(f.ctx, g.ID, 1, models.RoundSettings{Pattern: "zigzag"})
	assert.ErrorIs(t, err, ErrInvalidPattern)

	f.drawAll(t, g.ID, 1, 2, 3, 4, 5)
	assert.Empty(t, f.emitter.all(comm.TopicBingoWin), "a column is not four corners")

	f.drawAll(t, g.ID, 61, 65)
	wins := f.emitter.all(comm.TopicBingoWin)
	require.Len(t, wins, 1)
	assert.Equal(t, "four-corners", wins[0].(comm.BingoWin).Pattern)
}

func TestCreateGameValidatesPatterns(t *testing.T) {
	f := newFixture(t)

	_, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "G", EnabledPatterns: []string{"row-9"}})
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = f.games.CreateGame(f.ctx, CreateGameRequest{Name: "G", EnabledPatterns: []string{"custom"}})
	assert.ErrorIs(t, err, ErrInvalidPattern, "custom needs a mask")

	mask := [25]bool{0: true, 6: true}
	g, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "G", EnabledPatterns: []string{"custom"}, CustomPattern: &mask})
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, g.EnabledPatterns)
}

func TestResetClearsOnlyCurrentRound(t *testing.T) {
	f := newFixture(t, WithWinnerPolicy(PolicyAuto))
	g := f.startedGame(t)

	first := f.assign(t, g.ID, 1, "ana")
	f.drawAll(t, g.ID, 1, 2, 3, 4, 5)

	g, err := f.games.NextRound(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, g.RoundNumber)
	assert.Empty(t, g.CalledNumbers)

	second := f.assign(t, g.ID, 1, "bo")
	f.drawAll(t, g.ID, 1, 2, 3, 4, 5)

	g, err = f.games.Reset(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, g.CalledNumbers)
	assert.Nil(t, g.CurrentNumber)
	require.Len(t, g.Winners, 1)
	assert.Equal(t, 1, g.Winners[0].RoundNumber)

	a1, err := f.assignments.Get(f.ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, a1.Winner, "round 1 untouched")

	a2, err := f.assignments.Get(f.ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, a2.Winner)
}

func TestFinishRecordsWinners(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)

	g, err := f.games.Finish(f.ctx, g.ID, []models.Winner{{PlayerName: "ana", CardID: 1, Pattern: "full-card"}})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, g.Status)
	require.Len(t, g.Winners, 1)
	assert.Equal(t, 1, g.Winners[0].RoundNumber)
	assert.False(t, g.Winners[0].Timestamp.IsZero())

	_, err = f.games.Finish(f.ctx, g.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.games.Reset(f.ctx, g.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// a finished game can be started again
	g, err = f.games.StartGame(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, g.Winners)
}

func TestRemoveGameDropsAssignments(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)
	other, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "other"})
	require.NoError(t, err)

	f.assign(t, g.ID, 1, "ana")
	kept := f.assign(t, other.ID, 1, "bo")

	require.NoError(t, f.games.RemoveGame(f.ctx, g.ID))
	assert.ErrorIs(t, f.games.RemoveGame(f.ctx, g.ID), ErrGameNotFound)

	_, err = f.games.GetGame(f.ctx, g.ID)
	assert.ErrorIs(t, err, ErrGameNotFound)

	_, err = f.assignments.Get(f.ctx, kept.ID)
	require.NoError(t, err)
	list, err := f.assignments.ListByRound(f.ctx, g.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// A consumer that listened throughout and one that reads the store afterwards see
// the same draws.
func TestLateJoinerResyncsFromStore(t *testing.T) {
	hub := bus.NewLocalHub()
	controller := bus.New(hub, "game")
	require.NoError(t, controller.Connect())
	t.Cleanup(controller.Close)

	var (
		mu      sync.Mutex
		applied []int
	)
	controller.On(comm.TopicNumberDrawn, func(p json.RawMessage) {
		var ev comm.NumberDrawn
		require.NoError(t, json.Unmarshal(p, &ev))
		mu.Lock()
		applied = ev.CalledNumbers
		mu.Unlock()
	})

	backend := store.NewMemoryBackend()
	f := newFixtureOn(t, backend, controller)
	g := f.startedGame(t)
	f.drawAll(t, g.ID, 9, 23, 41, 57)

	// a fresh context on the same backend
	late := newFixtureOn(t, backend, nil)
	replay, err := late.games.Replay(context.Background(), g.ID)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, applied, replay.CalledNumbers)
	assert.Equal(t, []int{9, 23, 41, 57}, replay.CalledNumbers)
}

func TestClockStampsUpdates(t *testing.T) {
	at := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return at }))

	g, err := f.games.CreateGame(f.ctx, CreateGameRequest{Name: "G"})
	require.NoError(t, err)
	assert.Equal(t, at, g.CreatedAt)

	g, err = f.games.StartGame(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, at, g.UpdatedAt)
}
