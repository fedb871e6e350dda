package caller

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/avvvet/bingo-sync/internal/bus"
	"github.com/avvvet/bingo-sync/internal/comm"
	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	log "github.com/sirupsen/logrus"
)

type run struct {
	cancel context.CancelFunc
}

// Caller draws numbers for every active game on a fixed interval.
type Caller struct {
	socket   *bus.Socket
	games    *service.GameService
	interval time.Duration

	mu      sync.Mutex
	running map[string]*run
	wg      sync.WaitGroup
	sub     bus.Subscription
}

func New(socket *bus.Socket, games *service.GameService, interval time.Duration) *Caller {
	return &Caller{
		socket:   socket,
		games:    games,
		interval: interval,
		running:  make(map[string]*run),
	}
}

// Subscribe follows gameStatus and picks up a game that is already active.
func (c *Caller) Subscribe(ctx context.Context) {
	c.sub = c.socket.On(comm.TopicGameStatus, func(data json.RawMessage) {
		var ev comm.GameStatus
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Errorf("Error [Caller.gameStatus] %s", err)
			return
		}
		if ev.Status == models.StatusActive {
			c.start(ev.GameID)
		} else {
			c.stop(ev.GameID)
		}
	})

	if g, err := c.games.ActiveGame(ctx); err == nil {
		c.start(g.ID)
	}
}

// Running reports whether a game is being called.
func (c *Caller) Running(gameID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[gameID]
	return ok
}

func (c *Caller) start(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.running[gameID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel}
	c.running[gameID] = r

	log.Infof("starting caller for game %s", gameID)
	c.wg.Add(1)
	// the gameStatus handler may run inside the controller's lock, so drawing waits for the loop
	go c.loop(ctx, gameID, r)
}

func (c *Caller) stop(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.running[gameID]; ok {
		r.cancel()
		delete(c.running, gameID)
	}
}

// finish forgets r unless a newer run replaced it.
func (c *Caller) finish(gameID string, r *run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.cancel()
	if c.running[gameID] == r {
		delete(c.running, gameID)
	}
}

func (c *Caller) loop(ctx context.Context, gameID string, r *run) {
	defer c.wg.Done()
	defer c.finish(gameID, r)

	rnd := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		g, err := c.games.DrawRandom(ctx, gameID, rnd)
		switch {
		case err == nil:
			log.Debugf("[Caller] game %s called %d", gameID, *g.CurrentNumber)
		case errors.Is(err, service.ErrDomainExhausted):
			log.Infof("caller done for game %s", gameID)
			return
		case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrGameNotFound):
			log.Infof("caller stopped, game %s no longer active", gameID)
			return
		case ctx.Err() != nil:
			return
		default:
			// store hiccup; try again on the next tick
			log.Errorf("Error [Caller.DrawRandom] game %s: %s", gameID, err)
		}
	}
}

// Close stops every loop and waits for them.
func (c *Caller) Close() {
	c.socket.Off(comm.TopicGameStatus, c.sub)

	c.mu.Lock()
	for id, r := range c.running {
		r.cancel()
		delete(c.running, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}
