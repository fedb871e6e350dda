package ws

import (
	"encoding/json"
	"sync"

	"github.com/avvvet/bingo-sync/internal/bus"
	"github.com/avvvet/bingo-sync/internal/comm"
	"github.com/avvvet/bingo-sync/internal/socketsvc/broker"
	log "github.com/sirupsen/logrus"
)

type Ws struct {
	connMap sync.Map // socketId -> *Client
	roomMap sync.Map // socketId -> gameId
	Broker  *broker.Broker
}

func NewWs() *Ws {
	return &Ws{}
}

// Attach bridges the gateway onto a bus socket.
func (s *Ws) Attach(socket *bus.Socket) *broker.Broker {
	s.Broker = broker.NewBroker(socket, s.Send, s.GetRoomSockets)
	s.Broker.Subscribe()
	return s.Broker
}

// SocketMessage handles a message from a web client.
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case comm.TopicJoinGame:
		s.handleJoin(socketId, message)
	case comm.TopicStartGame, comm.TopicDrawNumber, comm.TopicResetRaffle,
		comm.TopicFinishGame, comm.TopicConfirmWinner:
		s.forward(socketId, message)
	default:
		log.Warnf("unknown event received: %s", message.Type)
		s.SendError(socketId, "unknown event "+message.Type)
	}
}

func (s *Ws) handleJoin(socketId string, msg *comm.WSMessage) {
	var payload comm.JoinGame
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Errorf("Error: invalid joinGame payload from %s: %s", socketId, err)
		s.SendError(socketId, "invalid joinGame payload")
		return
	}
	if payload.GameID == "" {
		s.SendError(socketId, "joinGame needs a gameId")
		return
	}

	s.StoreRoom(socketId, payload.GameID)
	payload.ReplyTo = socketId

	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Error [Ws.handleJoin] %s", err)
		return
	}
	if err := s.Broker.Publish(comm.TopicJoinGame, data); err != nil {
		s.SendError(socketId, "unable to join, try again")
		return
	}
	log.Infof("socket %s joined game %s", socketId, payload.GameID)
}

// forward stamps the command with the socket so the answer finds its way back.
func (s *Ws) forward(socketId string, msg *comm.WSMessage) {
	var cmd comm.Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		log.Errorf("Error: invalid %s payload from %s: %s", msg.Type, socketId, err)
		s.SendError(socketId, "invalid "+msg.Type+" payload")
		return
	}
	if cmd.GameID == "" {
		if gameId, ok := s.GetRoom(socketId); ok {
			cmd.GameID = gameId
		}
	}
	cmd.ReplyTo = socketId

	data, err := json.Marshal(cmd)
	if err != nil {
		log.Errorf("Error [Ws.forward] %s", err)
		return
	}
	if err := s.Broker.Publish(msg.Type, data); err != nil {
		s.SendError(socketId, "unable to send "+msg.Type)
	}
}

func (s *Ws) StoreConnection(socketId string, c *Client) {
	s.connMap.Store(socketId, c)
}

func (s *Ws) GetConnection(socketId string) (*Client, bool) {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return c.(*Client), true
}

func (s *Ws) StoreRoom(socketId string, gameId string) {
	s.roomMap.Store(socketId, gameId)
}

func (s *Ws) GetRoom(socketId string) (string, bool) {
	room, ok := s.roomMap.Load(socketId)
	if !ok {
		return "", false
	}
	return room.(string), true
}

func (s *Ws) GetRoomSockets(gameId string) ([]string, bool) {
	var sockets []string
	s.roomMap.Range(func(key, value interface{}) bool {
		if value.(string) == gameId {
			sockets = append(sockets, key.(string))
		}
		return true
	})
	return sockets, len(sockets) > 0
}

// Send queues m for the socket. A client that cannot keep up is disconnected.
func (s *Ws) Send(socketId string, m *comm.WSMessage) bool {
	c, ok := s.GetConnection(socketId)
	if !ok {
		return false
	}
	if !c.Send(m) {
		log.Warnf("socket %s is not draining its messages, disconnecting", socketId)
		s.HandleDisconnect(socketId)
		return false
	}
	return true
}

func (s *Ws) SendError(socketId string, errorMsg string) {
	data, err := json.Marshal(map[string]string{"error": errorMsg})
	if err != nil {
		return
	}
	s.Send(socketId, &comm.WSMessage{Type: "error", Data: data, SocketId: socketId})
}

// HandleDisconnect forgets the socket. Safe to call more than once.
func (s *Ws) HandleDisconnect(socketId string) {
	s.roomMap.Delete(socketId)
	if c, ok := s.connMap.LoadAndDelete(socketId); ok {
		c.(*Client).Close()
	}
}

// Count returns the number of open connections.
func (s *Ws) Count() int {
	n := 0
	s.connMap.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
