// Package store implements the canonical snapshot contract against
// Postgres. The persistence layer is last-writer-wins by nature; the
// version column adds optimistic concurrency so a concurrent
// turn-boundary write surfaces as ErrVersionConflict instead of being
// silently dropped.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ludorush/ludorush/go/internal/models"
)

var (
	ErrNotFound        = errors.New("snapshot not found")
	ErrVersionConflict = errors.New("snapshot version conflict")
)

// Repository reads and partially merges match snapshots by room id.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SnapshotUpdate is a partial merge: nil fields are left untouched.
// ExpectedVersion must match the stored row for the update to apply.
type SnapshotUpdate struct {
	Status          *models.MatchStatus
	Players         []models.Player
	CurrentTurn     *int
	DiceValue       *int
	Phase           *string
	WinnerID        *string
	ExpectedVersion int64
}

// CreateSnapshot inserts the snapshot for a freshly opened room.
func (r *Repository) CreateSnapshot(ctx context.Context, snap *models.MatchSnapshot) error {
	playersJSON, err := json.Marshal(snap.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
        INSERT INTO match_snapshots
            (room_id, status, players, current_turn, dice_value, phase,
             entry_amount, reward_amount, winner_id, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, now(), now())`,
		snap.RoomID, snap.Status, playersJSON, snap.CurrentTurn, snap.DiceValue,
		snap.Phase, snap.EntryAmount, snap.RewardAmount, snap.WinnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the latest persisted snapshot for the room.
func (r *Repository) GetSnapshot(ctx context.Context, roomID uuid.UUID) (*models.MatchSnapshot, error) {
	row := r.pool.QueryRow(ctx, `
        SELECT room_id, status, players, current_turn, dice_value, phase,
               entry_amount, reward_amount, winner_id, version, created_at, updated_at
        FROM match_snapshots
        WHERE room_id = $1`, roomID)

	var snap models.MatchSnapshot
	var playersJSON []byte
	err := row.Scan(
		&snap.RoomID, &snap.Status, &playersJSON, &snap.CurrentTurn, &snap.DiceValue,
		&snap.Phase, &snap.EntryAmount, &snap.RewardAmount, &snap.WinnerID,
		&snap.Version, &snap.CreatedAt, &snap.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if err := json.Unmarshal(playersJSON, &snap.Players); err != nil {
		return nil, fmt.Errorf("unmarshal players: %w", err)
	}
	return &snap, nil
}

// UpdateSnapshot applies a partial merge keyed by room id, guarded by
// the expected version. A missing row and a stale version are
// distinguished so callers know whether to refetch.
func (r *Repository) UpdateSnapshot(ctx context.Context, roomID uuid.UUID, upd SnapshotUpdate) (*models.MatchSnapshot, error) {
	set := "updated_at = now(), version = version + 1"
	args := []any{roomID, upd.ExpectedVersion}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if upd.Status != nil {
		set += ", status = " + arg(*upd.Status)
	}
	if upd.Players != nil {
		playersJSON, err := json.Marshal(upd.Players)
		if err != nil {
			return nil, fmt.Errorf("marshal players: %w", err)
		}
		set += ", players = " + arg(playersJSON)
	}
	if upd.CurrentTurn != nil {
		set += ", current_turn = " + arg(*upd.CurrentTurn)
	}
	if upd.DiceValue != nil {
		set += ", dice_value = " + arg(*upd.DiceValue)
	}
	if upd.Phase != nil {
		set += ", phase = " + arg(*upd.Phase)
	}
	if upd.WinnerID != nil {
		set += ", winner_id = " + arg(*upd.WinnerID)
	}

	query := fmt.Sprintf(`
        UPDATE match_snapshots SET %s
        WHERE room_id = $1 AND version = $2`, set)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a vanished room from a concurrent writer.
		if _, err := r.GetSnapshot(ctx, roomID); errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
		}
		return nil, fmt.Errorf("room %s at version %d: %w", roomID, upd.ExpectedVersion, ErrVersionConflict)
	}

	return r.GetSnapshot(ctx, roomID)
}

// CloseSnapshot records a terminal transition. Terminal writes are
// unconditional: a win, forfeit, or disconnect-timeout outcome must
// land even if the loser wrote a turn update concurrently.
func (r *Repository) CloseSnapshot(ctx context.Context, roomID uuid.UUID, status models.MatchStatus, winnerID string) error {
	var winner *string
	if winnerID != "" {
		winner = &winnerID
	}

	tag, err := r.pool.Exec(ctx, `
        UPDATE match_snapshots
        SET status = $2, winner_id = $3, version = version + 1, updated_at = now()
        WHERE room_id = $1 AND status NOT IN ('completed', 'cancelled')`,
		roomID, status, winner,
	)
	if err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already terminal or gone; closing twice is not an error.
		return nil
	}
	return nil
}

// ResetSnapshot re-initializes the board for an accepted rematch:
// tokens to base, turn to the first player, status back to playing.
func (r *Repository) ResetSnapshot(ctx context.Context, roomID uuid.UUID, players []models.Player) (*models.MatchSnapshot, error) {
	fresh := make([]models.Player, len(players))
	for i, p := range players {
		fresh[i] = models.NewPlayer(p.ID, p.Name, p.Color)
		fresh[i].IsBot = p.IsBot
	}
	playersJSON, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("marshal players: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
        UPDATE match_snapshots
        SET status = 'playing', players = $2, current_turn = 0, dice_value = 0,
            phase = 'waiting_for_roll', winner_id = NULL,
            version = version + 1, updated_at = now()
        WHERE room_id = $1`,
		roomID, playersJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reset snapshot: %w", err)
	}
	return r.GetSnapshot(ctx, roomID)
}
