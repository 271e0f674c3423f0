package reconnect

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ludorush/ludorush/go/internal/models"
)

func TestDelayFor_ExponentialWithCeiling(t *testing.T) {
	m := NewManager(DefaultConfig(), clockwork.NewFakeClock(), Hooks{})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 500 * time.Millisecond},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 5, want: 15 * time.Second},
		{attempt: 7, want: 15 * time.Second},
	}
	for _, tt := range tests {
		if got := m.DelayFor(tt.attempt); got != tt.want {
			t.Fatalf("DelayFor(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestManager_RecoversAndDeliversSnapshot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	roomID := uuid.New()

	var failures atomic.Int64
	failures.Store(2)
	recovered := make(chan *models.MatchSnapshot, 1)

	m := NewManager(DefaultConfig(), clock, Hooks{
		Resubscribe: func(ctx context.Context) error {
			if failures.Add(-1) >= 0 {
				return errors.New("transport still down")
			}
			return nil
		},
		FetchSnapshot: func(ctx context.Context) (*models.MatchSnapshot, error) {
			return &models.MatchSnapshot{RoomID: roomID, Status: models.MatchStatusPlaying}, nil
		},
		OnRecovered: func(snap *models.MatchSnapshot) { recovered <- snap },
	})

	m.ConnectionLost(context.Background())

	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-recovered:
			if snap.RoomID != roomID {
				t.Fatalf("recovered snapshot for room %s, want %s", snap.RoomID, roomID)
			}
			if m.State() != StateIdle {
				t.Fatalf("state = %s after recovery, want idle", m.State())
			}
			return
		case <-deadline:
			t.Fatal("manager never recovered")
		default:
			clock.Advance(time.Second)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestManager_ExhaustsBudgetThenRetries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	exhausted := make(chan struct{}, 1)
	var attempts atomic.Int64

	m := NewManager(DefaultConfig(), clock, Hooks{
		Resubscribe: func(ctx context.Context) error {
			attempts.Add(1)
			return errors.New("still down")
		},
		FetchSnapshot: func(ctx context.Context) (*models.MatchSnapshot, error) {
			return nil, errors.New("unreachable")
		},
		OnExhausted: func() { exhausted <- struct{}{} },
	})

	m.ConnectionLost(context.Background())

	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-exhausted:
		case <-deadline:
			t.Fatal("budget never exhausted")
		default:
			clock.Advance(time.Second)
			time.Sleep(time.Millisecond)
			continue
		}
		break
	}

	if got := attempts.Load(); got != int64(DefaultConfig().MaxAttempts) {
		t.Fatalf("attempts = %d, want %d", got, DefaultConfig().MaxAttempts)
	}
	if m.State() != StateExhausted {
		t.Fatalf("state = %s, want exhausted", m.State())
	}

	// ConnectionLost must not restart an exhausted manager.
	m.ConnectionLost(context.Background())
	if m.State() != StateExhausted {
		t.Fatal("ConnectionLost restarted an exhausted manager")
	}

	// Manual retry resets the budget.
	m.Retry(context.Background())
	if m.State() != StateReconnecting {
		t.Fatalf("state = %s after Retry, want reconnecting", m.State())
	}
	m.Stop()
}

func TestManager_StopAbortsRecovery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var attempts atomic.Int64

	m := NewManager(DefaultConfig(), clock, Hooks{
		Resubscribe:   func(ctx context.Context) error { attempts.Add(1); return errors.New("down") },
		FetchSnapshot: func(ctx context.Context) (*models.MatchSnapshot, error) { return nil, errors.New("down") },
	})

	m.ConnectionLost(context.Background())
	clock.BlockUntil(1)
	m.Stop()

	if m.State() != StateIdle {
		t.Fatalf("state = %s after Stop, want idle", m.State())
	}
}
