package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/ludorush/ludorush/go/internal/broadcast"
	"github.com/ludorush/ludorush/go/internal/models"
	"github.com/ludorush/ludorush/go/internal/store"
	"github.com/ludorush/ludorush/go/internal/wire"
)

// Publisher is the per-room broadcast surface the session talks
// through. *broadcast.Broadcaster satisfies it; tests substitute an
// in-memory fake.
type Publisher interface {
	Publish(ch broadcast.Channel, t wire.MessageType, payload any) (wire.Envelope, error)
	Subscribe(ch broadcast.Channel, handler func(wire.Envelope)) error
	Unsubscribe()
}

// SnapshotStore is the canonical store contract: reads return the
// latest persisted snapshot, updates are partial merges by room id.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, roomID uuid.UUID) (*models.MatchSnapshot, error)
	UpdateSnapshot(ctx context.Context, roomID uuid.UUID, upd store.SnapshotUpdate) (*models.MatchSnapshot, error)
	CloseSnapshot(ctx context.Context, roomID uuid.UUID, status models.MatchStatus, winnerID string) error
	ResetSnapshot(ctx context.Context, roomID uuid.UUID, players []models.Player) (*models.MatchSnapshot, error)
}

// Ledger is the external wallet API, touched only at terminal
// transitions.
type Ledger interface {
	Credit(ctx context.Context, userID string, amount int64) error
	Debit(ctx context.Context, userID string, amount int64) error
}
