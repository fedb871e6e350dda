package models

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleGestor Role = "gestor"
	RolePlayer Role = "player"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleGestor, RolePlayer:
		return true
	}
	return false
}

type Session struct {
	Token      string    `json:"token"`
	Role       Role      `json:"role"`
	GameID     string    `json:"gameId,omitempty"`
	PlayerName string    `json:"playerName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired is true once now is past the expiry.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CanOperate reports whether the session may drive the given game.
func (s Session) CanOperate(gameID string) bool {
	switch s.Role {
	case RoleAdmin:
		return true
	case RoleGestor:
		return s.GameID == gameID
	}
	return false
}
