package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/avvvet/bingo-sync/configs"
	"github.com/avvvet/bingo-sync/internal/bus"
	"github.com/avvvet/bingo-sync/internal/db"
	"github.com/avvvet/bingo-sync/internal/gamesvc/broker"
	handlers "github.com/avvvet/bingo-sync/internal/gamesvc/handlers"
	"github.com/avvvet/bingo-sync/internal/gamesvc/service"
	"github.com/avvvet/bingo-sync/internal/gamesvc/store"
	natscli "github.com/avvvet/bingo-sync/internal/nats"
	"github.com/avvvet/bingo-sync/internal/notify"
	"github.com/avvvet/bingo-sync/internal/socketsvc/routes"
	"github.com/avvvet/bingo-sync/internal/socketsvc/ws"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "game"

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
	if err := settings.RequireJWT(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	config.CreateUniqueInstance(SERVICE_NAME)

	ctx := context.Background()

	// shared state
	st, closeStore, err := db.OpenStore(ctx, settings)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	// one socket carries the controller, the embedded gateway and the notifier
	socket, closeSocket, err := natscli.OpenSocket(settings, SERVICE_NAME, bus.NewLocalHub())
	if err != nil {
		log.Fatalf("Failed to open bus: %v", err)
	}
	defer closeSocket()

	gameStore := store.NewGameStore(st)
	assignmentStore := store.NewAssignmentStore(st)
	cardStore := store.NewCardStore(st)

	gameService := service.NewGameService(gameStore, assignmentStore, cardStore, socket,
		service.WithWinnerPolicy(service.WinnerPolicy(settings.WinnerPolicy)),
		service.WithMinDrawn(settings.MinDrawn),
		service.WithMaxNumber(settings.MaxNumber),
	)
	assignmentService := service.NewAssignmentService(assignmentStore, gameStore, cardStore)
	sessionService := service.NewSessionService(store.NewSessionStore(st), gameStore).WithTTL(settings.SessionTTL)
	cardService := service.NewCardService(cardStore)

	// card catalog
	if settings.CardsFile != "" {
		cards, err := cardService.Import(ctx, settings.CardsFile)
		if err != nil {
			log.Fatalf("Failed to import cards from %s: %v", settings.CardsFile, err)
		}
		log.Infof("%d cards imported from %s", len(cards), settings.CardsFile)
	} else if _, err := cardService.EnsureCatalog(ctx, settings.CardCount, settings.CardSeed); err != nil {
		log.Fatalf("Failed to prepare card catalog: %v", err)
	}

	// controller side of the bus
	b := broker.NewBroker(socket, gameService, sessionService)
	b.Subscribe()

	// websocket clients
	s := ws.NewWs()
	gateway := s.Attach(socket)

	if len(settings.TelegramChatIDs) > 0 && settings.TelegramToken != "" {
		notifier, err := notify.NewTelegramNotifier(settings.TelegramToken, settings.TelegramChatIDs)
		if err != nil {
			log.Errorf("Failed to initialize Telegram notifier: %v", err)
		} else {
			notifier.Attach(socket)
			log.Infof("Telegram notifier initialized with %d chat IDs", len(settings.TelegramChatIDs))
		}
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN or chat ids not set, notifications disabled")
	}

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(settings.RateLimit, 1*time.Minute))

	// Init handlers and routes
	tokenAuth := config.NewTokenAuth(settings.JWTSecret)
	h := handlers.NewHandler(tokenAuth, gameService, assignmentService, sessionService, cardService)
	r.Route("/v1", func(r chi.Router) {
		// websocket upgrades must not sit behind the request timeout
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			h.Register(r)
		})
		routes.Register(r, s, tokenAuth)
	})

	// Create server with timeout settings
	server := &http.Server{
		Addr:        ":" + settings.GameServicePort,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s (winner policy %s, bus %s)",
		SERVICE_NAME, server.Addr, gameService.Policy(), settings.BusTransport)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	gateway.Unsubscribe()
	b.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
