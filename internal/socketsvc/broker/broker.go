package broker

import (
	"encoding/json"

	"github.com/avvvet/bingo-sync/internal/bus"
	"github.com/avvvet/bingo-sync/internal/comm"
	log "github.com/sirupsen/logrus"
)

// Broker is the gateway's side of the bus. Client requests go out through Publish;
// controller events come back through the handlers registered by Subscribe and
// are routed to websocket clients.
type Broker struct {
	Socket         *bus.Socket
	Send           func(socketId string, m *comm.WSMessage) bool
	GetRoomSockets func(gameId string) ([]string, bool)

	subs map[string]bus.Subscription
}

func NewBroker(socket *bus.Socket, fncSend func(string, *comm.WSMessage) bool, fncGetRoomSockets func(string) ([]string, bool)) *Broker {
	return &Broker{
		Socket:         socket,
		Send:           fncSend,
		GetRoomSockets: fncGetRoomSockets,
		subs:           make(map[string]bus.Subscription),
	}
}

// Subscribe listens for every topic clients may see.
func (b *Broker) Subscribe() {
	for _, topic := range comm.Broadcasts {
		topic := topic
		b.subs[topic] = b.Socket.On(topic, func(data json.RawMessage) {
			b.handleMessages(topic, data)
		})
	}
}

func (b *Broker) Unsubscribe() {
	for topic, sub := range b.subs {
		b.Socket.Off(topic, sub)
		delete(b.subs, topic)
	}
}

// Publish puts a client request on the bus.
func (b *Broker) Publish(topic string, data json.RawMessage) error {
	if err := b.Socket.Emit(topic, data, nil); err != nil {
		log.Errorf("Error publishing %s: %s", topic, err)
		return err
	}
	return nil
}

// handleMessages sends a reply to the socket it names, and anything else to every
// socket that joined the game.
func (b *Broker) handleMessages(topic string, data json.RawMessage) {
	gameId, replyTo := comm.ReadTarget(data)

	if replyTo != "" {
		b.sendMessage(replyTo, &comm.WSMessage{Type: topic, Data: data, SocketId: replyTo})
		return
	}
	if gameId == "" {
		log.Debugf("[Broker.handleMessages] %s has no game, dropped", topic)
		return
	}

	sockets, ok := b.GetRoomSockets(gameId)
	if !ok {
		return
	}
	for _, socketId := range sockets {
		b.sendMessage(socketId, &comm.WSMessage{Type: topic, Data: data, SocketId: socketId})
	}
}

func (b *Broker) sendMessage(socketId string, m *comm.WSMessage) {
	if !b.Send(socketId, m) {
		log.Debugf("[Broker.sendMessage] socket %s gone, %s dropped", socketId, m.Type)
	}
}
