package nats

import (
	"fmt"

	config "github.com/avvvet/bingo-sync/configs"
	"github.com/avvvet/bingo-sync/internal/bus"
	log "github.com/sirupsen/logrus"
)

// OpenSocket builds the bus socket named by BUS_TRANSPORT and connects it. With the
// local transport the socket only reaches other sockets on hub, so hub is required
// then and ignored for nats. The returned func closes the socket and its connection.
func OpenSocket(s config.Settings, name string, hub *bus.LocalHub) (*bus.Socket, func(), error) {
	opts := []bus.Option{
		bus.WithHeartbeat(s.BusHeartbeat),
		bus.WithAckDelay(s.BusAckDelay),
	}

	var (
		transport bus.Transport
		release   = func() {}
	)
	switch s.BusTransport {
	case "nats":
		n, err := Connect(s.NatsURL, s.NatsToken, name)
		if err != nil {
			return nil, nil, fmt.Errorf("nats: %w", err)
		}
		log.Infof("NATS connection established successfully %s", n.Url)
		transport = bus.NewNatsTransport(n.Conn)
		release = n.Close
	default:
		if hub == nil {
			return nil, nil, fmt.Errorf("%s needs BUS_TRANSPORT=nats to reach other services", name)
		}
		transport = hub
	}

	socket := bus.New(transport, s.BusChannel, opts...)
	if err := socket.Connect(); err != nil {
		// the heartbeat keeps trying
		log.Warnf("bus channel %s not joined yet: %s", socket.Channel(), err)
	} else {
		log.Infof("%s joined bus channel %s as %s", name, socket.Channel(), socket.ID())
	}
	return socket, func() {
		socket.Close()
		release()
	}, nil
}
