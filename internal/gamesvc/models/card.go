package models

import "github.com/avvvet/bingo-sync/internal/grid"

// Card is one entry of the read-only card catalog.
type Card struct {
	ID   int       `json:"id"`
	Card grid.Grid `json:"card"`
}
