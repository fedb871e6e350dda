package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avvvet/bingo-sync/internal/bus"
	"github.com/avvvet/bingo-sync/internal/comm"
	gamebroker "github.com/avvvet/bingo-sync/internal/gamesvc/broker"
	"github.com/avvvet/bingo-sync/internal/gamesvc/models"
	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	"github.com/avvvet/bingo-sync/internal/gamesvc/store"
	"github.com/avvvet/bingo-sync/internal/socketsvc/ws"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateway struct {
	server   *httptest.Server
	games    *service.GameService
	sessions *service.SessionService
}

// newGateway runs the controller and the gateway as two contexts on one hub.
func newGateway(t *testing.T) *gateway {
	t.Helper()
	hub := bus.NewLocalHub()

	gameSocket := bus.New(hub, "bingo")
	require.NoError(t, gameSocket.Connect())
	t.Cleanup(gameSocket.Close)

	s := store.New(store.NewMemoryBackend())
	gs := store.NewGameStore(s)
	games := service.NewGameService(gs, store.NewAssignmentStore(s), store.NewCardStore(s), gameSocket)
	sessions := service.NewSessionService(store.NewSessionStore(s), gs)
	gamebroker.NewBroker(gameSocket, games, sessions).Subscribe()

	gatewaySocket := bus.New(hub, "bingo")
	require.NoError(t, gatewaySocket.Connect())
	t.Cleanup(gatewaySocket.Close)

	w := ws.NewWs()
	w.Attach(gatewaySocket)

	r := chi.NewRouter()
	SetRoutes(r, w, jwtauth.New("HS256", []byte("test-secret"), nil))
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &gateway{server: server, games: games, sessions: sessions}
}

func (g *gateway) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, topic string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(comm.WSMessage{Type: topic, Data: data}))
}

// next reads until a message of the given type arrives.
func next(t *testing.T, conn *websocket.Conn, topic string) comm.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg comm.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == topic {
			return msg
		}
	}
}

func TestJoinGameRelaysReplay(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	game, err := g.games.CreateGame(ctx, service.CreateGameRequest{Name: "friday"})
	require.NoError(t, err)
	_, err = g.games.StartGame(ctx, game.ID)
	require.NoError(t, err)
	_, err = g.games.Draw(ctx, game.ID, 42)
	require.NoError(t, err)

	conn := g.dial(t)
	send(t, conn, comm.TopicJoinGame, comm.JoinGame{GameID: game.ID})

	msg := next(t, conn, comm.TopicGameState)
	var state comm.GameState
	require.NoError(t, json.Unmarshal(msg.Data, &state))
	assert.Equal(t, game.ID, state.Game.ID)
	assert.Equal(t, []int{42}, state.Game.CalledNumbers)

	// joined sockets get the game's broadcasts from now on
	_, err = g.games.Draw(ctx, game.ID, 7)
	require.NoError(t, err)

	msg = next(t, conn, comm.TopicNumberDrawn)
	var drawn comm.NumberDrawn
	require.NoError(t, json.Unmarshal(msg.Data, &drawn))
	assert.Equal(t, []int{42, 7}, drawn.CalledNumbers)
}

func TestCommandRejectionReachesSenderOnly(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	game, err := g.games.CreateGame(ctx, service.CreateGameRequest{Name: "friday"})
	require.NoError(t, err)
	player, err := g.sessions.Create(ctx, models.RolePlayer, game.ID, "ana", time.Hour)
	require.NoError(t, err)

	conn := g.dial(t)
	send(t, conn, comm.TopicJoinGame, comm.JoinGame{GameID: game.ID})
	next(t, conn, comm.TopicGameState)

	send(t, conn, comm.TopicStartGame, comm.Command{Token: player.Token})
	msg := next(t, conn, comm.TopicCommandRejected)

	var rejected comm.CommandRejected
	require.NoError(t, json.Unmarshal(msg.Data, &rejected))
	assert.Equal(t, comm.TopicStartGame, rejected.Command)
	assert.Equal(t, game.ID, rejected.GameID, "game taken from the joined room")
	assert.Equal(t, msg.SocketId, rejected.ReplyTo)
}

func TestMalformedMessageGetsError(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	msg := next(t, conn, "error")
	assert.Contains(t, string(msg.Data), "Invalid message format")

	send(t, conn, "dance", map[string]string{})
	msg = next(t, conn, "error")
	assert.Contains(t, string(msg.Data), "unknown event dance")
}

func TestHealthNeedsToken(t *testing.T) {
	g := newGateway(t)

	resp, err := http.Get(g.server.URL + "/v1/ws/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
