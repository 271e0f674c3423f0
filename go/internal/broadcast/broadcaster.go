// Package broadcast carries the per-room message channels over NATS.
// Publishing is fire-and-forget: core NATS gives at-most-once delivery
// and no ordering guarantee, which is exactly the transport contract
// the reconciliation engine is built to backstop.
package broadcast

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ludorush/ludorush/go/internal/wire"
)

// Channel names one of the per-room subjects.
type Channel string

const (
	ChannelGame     Channel = "game"
	ChannelChecksum Channel = "checksum"
	ChannelPresence Channel = "presence"
	ChannelRematch  Channel = "rematch"
	ChannelChat     Channel = "chat"
)

// Channels lists every per-room subject, in resubscription order.
var Channels = []Channel{ChannelGame, ChannelChecksum, ChannelPresence, ChannelRematch, ChannelChat}

// ConnectOptions tune the NATS connection and expose drop/restore
// hooks for the reconnection manager.
type ConnectOptions struct {
	MaxReconnects  int
	ReconnectWait  time.Duration
	OnDisconnected func(error)
	OnReconnected  func()
}

// DefaultConnectOptions keeps the client redialing forever: a capped
// reconnect count closes the connection permanently and no later
// resubscription can ever succeed. The reconnection manager layers on
// top, owning resubscription and the snapshot refetch; the client owns
// only the dial.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Connect dials NATS with logging handlers wired in.
func Connect(url string, cfg ConnectOptions) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
			if cfg.OnDisconnected != nil {
				cfg.OnDisconnected(err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			if cfg.OnReconnected != nil {
				cfg.OnReconnected()
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Broadcaster publishes and receives envelopes on one room's subjects.
type Broadcaster struct {
	nc     *nats.Conn
	roomID string
	selfID string

	lastStamp atomic.Int64

	mu   sync.Mutex
	subs []*nats.Subscription
}

// New returns a broadcaster bound to a room.
func New(nc *nats.Conn, roomID, selfID string) *Broadcaster {
	return &Broadcaster{nc: nc, roomID: roomID, selfID: selfID}
}

func (b *Broadcaster) subject(ch Channel) string {
	return fmt.Sprintf("room.%s.%s", b.roomID, ch)
}

// Stamp returns a timestamp strictly greater than any previously issued
// by this broadcaster. Wall-clock milliseconds when the clock moves,
// last+1 when it does not.
func (b *Broadcaster) Stamp() int64 {
	for {
		now := time.Now().UnixMilli()
		last := b.lastStamp.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if b.lastStamp.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Publish frames and sends a payload on a room channel. Send failure is
// returned for the caller's transport-error policy, but there is no
// delivery guarantee even on success.
func (b *Broadcaster) Publish(ch Channel, t wire.MessageType, payload any) (wire.Envelope, error) {
	env, err := wire.NewEnvelope(b.roomID, b.selfID, t, b.Stamp(), payload)
	if err != nil {
		return wire.Envelope{}, err
	}
	data, err := env.Marshal()
	if err != nil {
		return wire.Envelope{}, err
	}
	if err := b.nc.Publish(b.subject(ch), data); err != nil {
		return env, fmt.Errorf("publish %s on %s: %w", t, ch, err)
	}
	return env, nil
}

// Subscribe delivers inbound envelopes on a room channel. The
// broadcaster filters the subscriber's own messages; watermark checks
// stay with the session, which knows which types mutate state.
func (b *Broadcaster) Subscribe(ch Channel, handler func(wire.Envelope)) error {
	sub, err := b.nc.Subscribe(b.subject(ch), func(msg *nats.Msg) {
		env, err := wire.Unmarshal(msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping undecodable message")
			return
		}
		if env.SenderID == b.selfID {
			return
		}
		handler(env)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ch, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// Unsubscribe drops every room subscription, used on teardown and
// before a reconnect attempt resubscribes from scratch.
func (b *Broadcaster) Unsubscribe() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Msg("unsubscribe failed")
		}
	}
}
