package bus

import (
	"sync"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const subjectPrefix = "bingo.bus."

// NatsTransport carries channels over NATS subjects so contexts in separate
// processes share a bus. NATS echoes a publisher's own messages back to it; the
// Socket drops those by sender id.
type NatsTransport struct {
	Conn *nats.Conn
}

func NewNatsTransport(nc *nats.Conn) *NatsTransport {
	return &NatsTransport{Conn: nc}
}

type natsEndpoint struct {
	conn      *nats.Conn
	subject   string
	sub       *nats.Subscription
	closeOnce sync.Once
}

func (t *NatsTransport) Open(channel string, deliver func([]byte)) (Endpoint, error) {
	subject := subjectPrefix + channel
	sub, err := t.Conn.Subscribe(subject, func(m *nats.Msg) {
		deliver(m.Data)
	})
	if err != nil {
		return nil, err
	}
	return &natsEndpoint{conn: t.Conn, subject: subject, sub: sub}, nil
}

func (e *natsEndpoint) Post(data []byte) error {
	if !e.sub.IsValid() {
		return ErrClosed
	}
	if err := e.conn.Publish(e.subject, data); err != nil {
		log.Errorf("Error publishing to subject %s: %s", e.subject, err)
		return err
	}
	return nil
}

func (e *natsEndpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.sub.Unsubscribe()
	})
	return err
}
