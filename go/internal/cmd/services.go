package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"

	"github.com/ludorush/ludorush/go/clients"
	"github.com/ludorush/ludorush/go/internal/broadcast"
	"github.com/ludorush/ludorush/go/internal/engine"
	"github.com/ludorush/ludorush/go/internal/gateway"
	"github.com/ludorush/ludorush/go/internal/store"
)

type Services struct {
	Hub         *gateway.Hub
	Connections *gateway.ConnectionManager
	Repository  *store.Repository
	Wallet      *clients.WalletClient
	NATS        *nats.Conn
}

func setupServices(appCtx context.Context, config *Config, pool *pgxpool.Pool, nc *nats.Conn) *Services {
	repo := store.NewRepository(pool)
	wallet := clients.NewWalletClient(config.Wallet.BaseURL, config.Wallet.APIKey)
	sessionCfg := config.sessionConfig()
	clock := clockwork.NewRealClock()

	// Session factory: one broadcaster per (room, user), feeding events
	// back through the connection manager.
	factory := func(ctx context.Context, roomID uuid.UUID, userID string, onEvent func(engine.Event)) (*engine.Session, error) {
		snap, err := repo.GetSnapshot(ctx, roomID)
		if err != nil {
			return nil, err
		}

		pub := broadcast.New(nc, roomID.String(), userID)
		session, err := engine.NewSession(sessionCfg, snap, userID, engine.Deps{
			Clock:   clock,
			Pub:     pub,
			Store:   repo,
			Ledger:  wallet,
			OnEvent: onEvent,
		})
		if err != nil {
			return nil, err
		}
		// The session outlives the upgrade request; it runs until the
		// user detaches or the process shuts down.
		if err := session.Start(appCtx); err != nil {
			return nil, err
		}
		return session, nil
	}

	hub := gateway.NewHub(factory)
	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), hub)

	return &Services{
		Hub:         hub,
		Connections: cm,
		Repository:  repo,
		Wallet:      wallet,
		NATS:        nc,
	}
}
