package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusActive   GameStatus = "active"
	StatusFinished GameStatus = "finished"
)

func (s GameStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusFinished:
		return true
	}
	return false
}

// DefaultMaxNumber is the size of the 75-ball domain. Card values reach it, so
// it is also the smallest domain a game may draw from.
const DefaultMaxNumber = 75

// MaxNumberLimit is the largest domain a game may draw from.
const MaxNumberLimit = 99

// ValidMaxNumber reports whether n can be a game's domain size.
func ValidMaxNumber(n int) bool {
	return n >= DefaultMaxNumber && n <= MaxNumberLimit
}

type Game struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Status          GameStatus            `json:"status"`
	RoundNumber     int                   `json:"roundNumber"`
	CalledNumbers   []int                 `json:"calledNumbers"`
	CurrentNumber   *int                  `json:"currentNumber"`
	MaxNumber       int                   `json:"maxNumber"`
	EnabledPatterns []string              `json:"enabledPatterns,omitempty"`
	CustomPattern   *[25]bool             `json:"customPattern,omitempty"`
	Rounds          map[int]RoundSettings `json:"rounds,omitempty"`
	Winners         []Winner              `json:"winners"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// RoundSettings override the game's pattern set and carry the prize for one round.
type RoundSettings struct {
	Pattern     string          `json:"pattern,omitempty"`
	Prize       string          `json:"prize,omitempty"`
	PrizeAmount decimal.Decimal `json:"prizeAmount"`
}

type Winner struct {
	PlayerName   string    `json:"playerName"`
	CardID       int       `json:"cardId"`
	AssignmentID string    `json:"assignmentId,omitempty"`
	Pattern      string    `json:"pattern"`
	RoundNumber  int       `json:"roundNumber"`
	Timestamp    time.Time `json:"timestamp"`
}

func (g *Game) HasCalled(n int) bool {
	for _, c := range g.CalledNumbers {
		if c == n {
			return true
		}
	}
	return false
}

// ClearRound empties the draw history and drops the current round's winners.
func (g *Game) ClearRound() {
	g.CalledNumbers = []int{}
	g.CurrentNumber = nil

	kept := make([]Winner, 0, len(g.Winners))
	for _, w := range g.Winners {
		if w.RoundNumber != g.RoundNumber {
			kept = append(kept, w)
		}
	}
	g.Winners = kept
}

// HasWinner reports whether the assignment already won in the given round.
func (g *Game) HasWinner(assignmentID string, round int) bool {
	for _, w := range g.Winners {
		if w.AssignmentID == assignmentID && w.RoundNumber == round {
			return true
		}
	}
	return false
}

func (g *Game) Round(n int) (RoundSettings, bool) {
	rs, ok := g.Rounds[n]
	return rs, ok
}
