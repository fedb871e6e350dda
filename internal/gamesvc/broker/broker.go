package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/bingo-sync/internal/bus"
	"github.com/avvvet/bingo-sync/internal/comm"
	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	log "github.com/sirupsen/logrus"
)

const requestTimeout = 10 * time.Second

// Broker answers consumer requests arriving on the bus: joinGame replays the
// stored game, commands run against the controller once the session checks out.
type Broker struct {
	Socket         *bus.Socket
	GameService    *service.GameService
	SessionService *service.SessionService

	subs map[string]bus.Subscription
}

func NewBroker(socket *bus.Socket, gameService *service.GameService, sessionService *service.SessionService) *Broker {
	return &Broker{
		Socket:         socket,
		GameService:    gameService,
		SessionService: sessionService,
		subs:           make(map[string]bus.Subscription),
	}
}

// Subscribe registers the broker's handlers on its socket.
func (b *Broker) Subscribe() {
	b.subs[comm.TopicJoinGame] = b.Socket.On(comm.TopicJoinGame, b.handleJoin)
	for _, topic := range comm.Commands {
		b.subs[topic] = b.Socket.On(topic, b.commandHandler(topic))
	}
}

func (b *Broker) Unsubscribe() {
	for topic, sub := range b.subs {
		b.Socket.Off(topic, sub)
		delete(b.subs, topic)
	}
}

func (b *Broker) handleJoin(data json.RawMessage) {
	var req comm.JoinGame
	if err := json.Unmarshal(data, &req); err != nil {
		log.Errorf("Error [Broker.handleJoin] %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	game, err := b.GameService.Replay(ctx, req.GameID)
	if err != nil {
		log.Errorf("Error [GameService.Replay] %s", err)
		b.reject(comm.TopicJoinGame, req.GameID, req.ReplyTo, err)
		return
	}

	b.emit(comm.TopicGameState, comm.GameState{Game: *game, ReplyTo: req.ReplyTo})
}

func (b *Broker) commandHandler(topic string) bus.Handler {
	return func(data json.RawMessage) {
		var cmd comm.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Errorf("Error [Broker.%s] %s", topic, err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := b.execute(ctx, topic, cmd); err != nil {
			log.Warnf("[Broker.%s] game %s: %s", topic, cmd.GameID, err)
			b.reject(topic, cmd.GameID, cmd.ReplyTo, err)
		}
	}
}

// execute runs one command. The controller publishes the resulting events itself.
func (b *Broker) execute(ctx context.Context, topic string, cmd comm.Command) error {
	if _, err := b.SessionService.Authorize(ctx, cmd.Token, cmd.GameID); err != nil {
		return err
	}

	var err error
	switch topic {
	case comm.TopicStartGame:
		_, err = b.GameService.StartGame(ctx, cmd.GameID)
	case comm.TopicDrawNumber:
		_, err = b.GameService.Draw(ctx, cmd.GameID, cmd.Number)
	case comm.TopicResetRaffle:
		_, err = b.GameService.Reset(ctx, cmd.GameID)
	case comm.TopicFinishGame:
		_, err = b.GameService.Finish(ctx, cmd.GameID, cmd.Winners)
	case comm.TopicConfirmWinner:
		_, err = b.GameService.ConfirmWinner(ctx, cmd.GameID, cmd.AssignmentID, cmd.Pattern)
	default:
		err = fmt.Errorf("unknown command %q", topic)
	}
	return err
}

func (b *Broker) reject(topic, gameID, replyTo string, err error) {
	b.emit(comm.TopicCommandRejected, comm.CommandRejected{
		Command: topic,
		GameID:  gameID,
		Error:   reason(err),
		ReplyTo: replyTo,
	})
}

// reason maps an error to the message shown to the consumer.
func reason(err error) string {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return "session expired, log in again"
	case errors.Is(err, service.ErrForbidden):
		return "not allowed to operate this game"
	case errors.Is(err, service.ErrGameNotFound),
		errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrCardNotFound):
		return "not found"
	}
	return err.Error()
}

func (b *Broker) emit(topic string, payload interface{}) {
	if err := b.Socket.Emit(topic, payload, nil); err != nil {
		log.Errorf("Error [Broker.emit] %s: %s", topic, err)
	}
}
