// cmd/callersvc/main.go
package main

import (
	"context"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/bingo-sync/configs"
	"github.com/avvvet/bingo-sync/internal/caller"
	"github.com/avvvet/bingo-sync/internal/db"
	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	"github.com/avvvet/bingo-sync/internal/gamesvc/store"
	natscli "github.com/avvvet/bingo-sync/internal/nats"
)

const SERVICE_NAME = "caller"

var instanceId string

func init() {
	instanceId = "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := settings.RequireSharedStore(); err != nil {
		log.Fatalf("the caller must draw on the game service's store: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// the caller draws against the same shared state as the game service
	st, closeStore, err := db.OpenStore(ctx, settings)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	socket, closeSocket, err := natscli.OpenSocket(settings, SERVICE_NAME, nil)
	if err != nil {
		log.Fatalf("unable to open the bus: %v", err)
	}
	defer closeSocket()

	gameService := service.NewGameService(store.NewGameStore(st), store.NewAssignmentStore(st), store.NewCardStore(st), socket,
		service.WithWinnerPolicy(service.WinnerPolicy(settings.WinnerPolicy)),
		service.WithMinDrawn(settings.MinDrawn),
		service.WithMaxNumber(settings.MaxNumber),
	)

	c := caller.New(socket, gameService, settings.CallInterval)
	c.Subscribe(ctx)
	log.Infof("%s service calling every %s", SERVICE_NAME, settings.CallInterval)

	<-ctx.Done()

	c.Close()
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
