package models

import "time"

// Assignment binds a catalog card to a participant for one round of a game.
type Assignment struct {
	ID          string    `json:"id"`
	GameID      string    `json:"gameId"`
	CardID      int       `json:"cardId"`
	PlayerName  string    `json:"playerName"`
	Contact     string    `json:"contact,omitempty"`
	RoundNumber int       `json:"roundNumber"`
	Paid        bool      `json:"paid"`
	Winner      bool      `json:"winner"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (a Assignment) InRound(gameID string, round int) bool {
	return a.GameID == gameID && a.RoundNumber == round
}
