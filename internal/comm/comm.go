package comm

import (
	"encoding/json"

	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
	"github.com/avvvet/bingo-sync/internal/grid"
)

// WSMessage is the envelope used on the bus and on websockets. SocketId is the
// sender's bus identity on the bus, and the client socket on the gateway.
type WSMessage struct {
	Type     string          `json:"type"` // topic, e.g. "numberDrawn", "joinGame"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
}

// Lifecycle topics, dispatched locally by a bus socket.
const (
	TopicConnect    = "connect"
	TopicDisconnect = "disconnect"
	TopicReconnect  = "reconnect"
)

// Events published by the game controller.
const (
	TopicNumberDrawn     = "numberDrawn"
	TopicRaffleReset     = "raffleReset"
	TopicBingoWin        = "bingoWin"
	TopicWinnerConfirmed = "winnerConfirmed"
	TopicGameStatus      = "gameStatus"
	TopicGameState       = "gameState"
	TopicCommandRejected = "commandRejected"
)

// Requests sent by role consumers.
const (
	TopicJoinGame      = "joinGame"
	TopicStartGame     = "startGame"
	TopicDrawNumber    = "drawNumber"
	TopicResetRaffle   = "resetRaffle"
	TopicFinishGame    = "finishGame"
	TopicConfirmWinner = "confirmWinner"
)

// Commands lists the topics the broker executes on behalf of a session.
var Commands = []string{TopicStartGame, TopicDrawNumber, TopicResetRaffle, TopicFinishGame, TopicConfirmWinner}

// Broadcasts lists the topics the gateway forwards to joined websocket clients.
var Broadcasts = []string{
	TopicNumberDrawn, TopicRaffleReset, TopicBingoWin, TopicWinnerConfirmed,
	TopicGameStatus, TopicGameState, TopicCommandRejected,
}

type NumberDrawn struct {
	GameID        string `json:"gameId"`
	Number        int    `json:"number"`
	CalledNumbers []int  `json:"calledNumbers"`
	RoundNumber   int    `json:"roundNumber"`
	Timestamp     int64  `json:"timestamp"` // unix millis
}

type RaffleReset struct {
	GameID      string `json:"gameId"`
	RoundNumber int    `json:"roundNumber"`
}

type BingoWin struct {
	GameID        string    `json:"gameId"`
	PlayerName    string    `json:"playerName"`
	CardID        int       `json:"cardId"`
	AssignmentID  string    `json:"assignmentId"`
	Pattern       string    `json:"pattern"`
	Card          grid.Grid `json:"card"`
	CalledNumbers []int     `json:"calledNumbers"`
	RoundNumber   int       `json:"roundNumber"`
	Confirmed     bool      `json:"confirmed"`
}

type WinnerConfirmed struct {
	GameID      string        `json:"gameId"`
	RoundNumber int           `json:"roundNumber"`
	Winner      models.Winner `json:"winner"`
}

type GameStatus struct {
	GameID      string            `json:"gameId"`
	Status      models.GameStatus `json:"status"`
	RoundNumber int               `json:"roundNumber"`
}

// GameState answers a joinGame with the stored game.
type GameState struct {
	Game    models.Game `json:"game"`
	ReplyTo string      `json:"replyTo,omitempty"`
}

type JoinGame struct {
	GameID  string `json:"gameId"`
	ReplyTo string `json:"replyTo,omitempty"`
}

// Command carries every consumer command; unused fields stay empty.
type Command struct {
	Token        string          `json:"token"`
	GameID       string          `json:"gameId"`
	Number       int             `json:"number,omitempty"`
	AssignmentID string          `json:"assignmentId,omitempty"`
	Pattern      string          `json:"pattern,omitempty"`
	Winners      []models.Winner `json:"winners,omitempty"`
	ReplyTo      string          `json:"replyTo,omitempty"`
}

type CommandRejected struct {
	Command string `json:"command"`
	GameID  string `json:"gameId"`
	Error   string `json:"error"`
	ReplyTo string `json:"replyTo,omitempty"`
}

// Target extracts the game and reply address shared by most payloads, so the
// gateway can route without knowing every type.
type Target struct {
	GameID  string `json:"gameId"`
	ReplyTo string `json:"replyTo"`
	Game    *struct {
		ID string `json:"id"`
	} `json:"game"`
}

func ReadTarget(data json.RawMessage) (gameID, replyTo string) {
	var t Target
	if err := json.Unmarshal(data, &t); err != nil {
		return "", ""
	}
	gameID = t.GameID
	if gameID == "" && t.Game != nil {
		gameID = t.Game.ID
	}
	return gameID, t.ReplyTo
}
