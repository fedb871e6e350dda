// cmd/robosvc/main.go
package main

import (
	"context"
	"os"
	"os/signal"

	config "github.com/avvvet/bingo-sync/configs"
	"github.com/avvvet/bingo-sync/internal/db"
	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	"github.com/avvvet/bingo-sync/internal/gamesvc/store"
	"github.com/avvvet/bingo-sync/internal/robot"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "robot"

var instanceId string

func init() {
	instanceId = "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	log.Printf("Starting Robot Service...")

	settings, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := settings.RequireSharedStore(); err != nil {
		log.Fatalf("robots must share the game service's store: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	st, closeStore, err := db.OpenStore(ctx, settings)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	gameStore := store.NewGameStore(st)
	assignmentStore := store.NewAssignmentStore(st)
	cardStore := store.NewCardStore(st)

	// robots only seat players; no events are published from here
	gameService := service.NewGameService(gameStore, assignmentStore, cardStore, nil)
	filler := robot.NewFiller(gameService,
		service.NewAssignmentService(assignmentStore, gameStore, cardStore),
		service.NewCardService(cardStore),
		settings.RobotCount)

	log.Printf("Game monitoring started - checking every %s", settings.RobotInterval)
	filler.Run(ctx, settings.RobotInterval)
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
