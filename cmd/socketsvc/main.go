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
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/bingo-sync/configs"
	natscli "github.com/avvvet/bingo-sync/internal/nats"

	"github.com/avvvet/bingo-sync/internal/socketsvc/routes"
	"github.com/avvvet/bingo-sync/internal/socketsvc/ws"
)

const SERVICE_NAME = "socket"

func init() {
	instanceId := "001"
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

	// a standalone gateway only reaches the controller over nats
	socket, closeSocket, err := natscli.OpenSocket(settings, SERVICE_NAME, nil)
	if err != nil {
		log.Errorf("Error: unable to open the bus %v", err)
		os.Exit(1)
	}
	defer closeSocket()

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(settings.RateLimit, 1*time.Minute))

	// Initialize websocket handler and bridge it onto the bus
	s := ws.NewWs()
	b := s.Attach(socket)

	// Initialize routes
	routes.SetRoutes(r, s, config.NewTokenAuth(settings.JWTSecret))

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + settings.SocketServicePort,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	b.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
