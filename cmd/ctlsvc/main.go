package main

import (
	"context"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/bingo-sync/configs"
	"github.com/avvvet/bingo-sync/internal/db"
	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	"github.com/avvvet/bingo-sync/internal/gamesvc/store"
	"github.com/avvvet/bingo-sync/internal/janitor"
)

const SERVICE_NAME = "ctl"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := settings.RequireSharedStore(); err != nil {
		log.Fatalf("the janitor only sees its own empty store: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	st, closeStore, err := db.OpenStore(ctx, settings)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	gameStore := store.NewGameStore(st)
	sessionService := service.NewSessionService(store.NewSessionStore(st), gameStore)

	log.Infof("%s service purging expired sessions every %s", SERVICE_NAME, settings.JanitorInterval)
	janitor.Run(ctx, sessionService, settings.JanitorInterval)
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
