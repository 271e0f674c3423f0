package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ludorush/ludorush/go/internal/broadcast"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up database")
	}
	defer pool.Close()

	// NATS handlers are late-bound: services exist only after connect.
	var services *Services
	natsOpts := broadcast.DefaultConnectOptions()
	natsOpts.OnDisconnected = func(error) {
		if services != nil {
			services.Hub.TransportLost()
		}
	}
	natsOpts.OnReconnected = func() {
		if services != nil {
			services.Hub.SetOnline(true)
		}
	}
	nc, err := broadcast.Connect(config.NATS.URL, natsOpts)
	if err != nil {
		log.Fatal().Err(err).Str("url", config.NATS.URL).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	services = setupServices(ctx, config, pool, nc)
	go services.Connections.Start(ctx)

	server := setupServer(services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	services.Hub.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
