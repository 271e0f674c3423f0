package gateway

import (
	"testing"

	"github.com/google/uuid"

	"github.com/ludorush/ludorush/go/internal/engine"
)

func TestBroadcastRacingUnregisterDoesNotPanic(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), NewHub(nil))
	roomID := uuid.New()

	// A connection torn down mid-broadcast must never receive a send on
	// a closed channel; events for it are dropped instead.
	for i := 0; i < 200; i++ {
		conn := &Connection{
			ID:      uuid.New().String(),
			UserID:  "p1",
			RoomID:  roomID,
			Send:    make(chan []byte, 64),
			quit:    make(chan struct{}),
			Manager: cm,
		}
		cm.registerConnection(conn)

		done := make(chan struct{})
		go func() {
			for j := 0; j < 50; j++ {
				cm.handleOutbound(outboundEvent{
					RoomID: roomID,
					UserID: "p1",
					Event:  engine.Event{Type: engine.EventStateChanged},
				})
			}
			close(done)
		}()
		cm.unregisterConnection(conn)
		<-done
	}
}

func TestUnregisterTwiceIsIdempotent(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), NewHub(nil))
	conn := &Connection{
		ID:      uuid.New().String(),
		UserID:  "p1",
		RoomID:  uuid.New(),
		Send:    make(chan []byte, 1),
		quit:    make(chan struct{}),
		Manager: cm,
	}
	cm.registerConnection(conn)

	cm.unregisterConnection(conn)
	cm.unregisterConnection(conn) // second close of quit would panic

	if total, rooms := cm.Stats(); total != 0 || rooms != 0 {
		t.Fatalf("stats after unregister = (%d, %d), want (0, 0)", total, rooms)
	}
}
