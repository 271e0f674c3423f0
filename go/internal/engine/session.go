// Package engine owns the live game session: predictive local
// execution, action broadcast, and the event loop that feeds inbound
// messages through the reducer. All mutable session state lives behind
// one goroutine; peers share nothing but messages and the canonical
// snapshot.
package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ludorush/ludorush/go/internal/broadcast"
	"github.com/ludorush/ludorush/go/internal/forfeit"
	"github.com/ludorush/ludorush/go/internal/match"
	"github.com/ludorush/ludorush/go/internal/models"
	"github.com/ludorush/ludorush/go/internal/presence"
	"github.com/ludorush/ludorush/go/internal/reconcile"
	"github.com/ludorush/ludorush/go/internal/reconnect"
	"github.com/ludorush/ludorush/go/internal/rematch"
	"github.com/ludorush/ludorush/go/internal/store"
	"github.com/ludorush/ludorush/go/internal/wire"
)

var ErrNoActiveMatch = errors.New("no active match")

// Config tunes the session's timers and collaborator engines.
type Config struct {
	// AnimationDelay is the minimum dice animation duration: the
	// confirmed value is broadcast no sooner than this after
	// dice_rolling, so slower peers never see the result land before
	// the animation finishes.
	AnimationDelay time.Duration

	// HeartbeatInterval drives presence publishing and absence checks.
	HeartbeatInterval time.Duration

	Reconcile reconcile.Config
	Presence  presence.TrackerConfig
	Latency   presence.MonitorConfig
	Forfeit   forfeit.Config
	Reconnect reconnect.Config

	RematchTimeout time.Duration
}

// DefaultConfig is the shipped tuning.
func DefaultConfig() Config {
	return Config{
		AnimationDelay:    800 * time.Millisecond,
		HeartbeatInterval: 3 * time.Second,
		Reconcile:         reconcile.DefaultConfig(),
		Presence:          presence.DefaultTrackerConfig(),
		Latency:           presence.DefaultMonitorConfig(),
		Forfeit:           forfeit.DefaultConfig(),
		Reconnect:         reconnect.DefaultConfig(),
		RematchTimeout:    rematch.DefaultTimeout,
	}
}

// Deps are the session's collaborators.
type Deps struct {
	Clock   clockwork.Clock
	Pub     Publisher
	Store   SnapshotStore
	Ledger  Ledger
	OnEvent func(Event)
	// Roll overrides the dice source (tests).
	Roll func() int
}

// Session is one player's synchronization engine instance for a room.
type Session struct {
	cfg   Config
	clock clockwork.Clock
	log   zerolog.Logger

	roomID uuid.UUID
	selfID string
	isHost bool

	machine   *match.Machine
	pub       Publisher
	snapStore SnapshotStore
	ledger    Ledger
	roll      func() int

	watermark broadcast.Watermark
	recon     *reconcile.Engine
	tracker   *presence.Tracker
	monitor   *presence.Monitor
	forfeits  *forfeit.Manager
	rematches *rematch.Negotiator
	recovery  *reconnect.Manager

	status       models.MatchStatus
	version      int64
	rewardAmount int64
	lastQuality  presence.Quality
	lastPing     time.Time
	ended        bool

	onEvent func(Event)
	mailbox chan func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession builds a session from the canonical snapshot. The caller
// starts it with Start.
func NewSession(cfg Config, snap *models.MatchSnapshot, selfID string, deps Deps) (*Session, error) {
	selfIdx := snap.PlayerIndex(selfID)
	if selfIdx < 0 {
		return nil, ErrNoActiveMatch
	}

	s := &Session{
		cfg:          cfg,
		clock:        deps.Clock,
		log:          log.With().Str("room_id", snap.RoomID.String()).Str("user_id", selfID).Logger(),
		roomID:       snap.RoomID,
		selfID:       selfID,
		isHost:       selfIdx == 0,
		pub:          deps.Pub,
		snapStore:    deps.Store,
		ledger:       deps.Ledger,
		roll:         deps.Roll,
		status:       snap.Status,
		version:      snap.Version,
		rewardAmount: snap.RewardAmount,
		lastQuality:  presence.QualityGood,
		onEvent:      deps.OnEvent,
		mailbox:      make(chan func(), 256),
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.roll == nil {
		s.roll = func() int { return rand.IntN(6) + 1 }
	}

	s.machine = match.NewMachine(snap.Players)
	s.machine.CurrentTurn = snap.CurrentTurn
	s.machine.DiceValue = snap.DiceValue
	if snap.Phase != "" {
		s.machine.Phase = match.Phase(snap.Phase)
	}

	s.recon = reconcile.NewEngine(cfg.Reconcile, s.clock)
	s.tracker = presence.NewTracker(cfg.Presence, s.clock, s.opponentID())
	s.monitor = presence.NewMonitor(cfg.Latency, s.clock)
	s.forfeits = forfeit.NewManager(cfg.Forfeit, s.clock,
		func(remaining time.Duration) {
			s.post(func() { s.emit(Event{Type: EventCountdownTick, Data: CountdownPayload{Remaining: remaining}}) })
		},
		func() {
			s.post(func() { s.winUnilaterally("disconnect_timeout") })
		})
	s.rematches = rematch.NewNegotiator(cfg.RematchTimeout, s.clock, func(o rematch.Outcome) {
		s.post(func() { s.rematchResolved(o) })
	})
	s.recovery = reconnect.NewManager(cfg.Reconnect, s.clock, reconnect.Hooks{
		Resubscribe: func(ctx context.Context) error {
			// Drop any half-dead subscriptions first so a retried
			// attempt never registers duplicate handlers.
			s.pub.Unsubscribe()
			return s.subscribeAll()
		},
		FetchSnapshot: func(ctx context.Context) (*models.MatchSnapshot, error) {
			return s.snapStore.GetSnapshot(ctx, s.roomID)
		},
		OnRecovered: func(snap *models.MatchSnapshot) {
			s.post(func() { s.recovered(snap) })
		},
		OnExhausted: func() {
			s.post(func() {
				s.emit(Event{Type: EventReconnectState, Data: ReconnectPayload{State: reconnect.StateExhausted}})
			})
		},
	})

	return s, nil
}

// Start subscribes the room channels and runs the event loop until the
// context is cancelled or Stop is called.
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.subscribeAll(); err != nil {
		s.cancel()
		return err
	}

	s.wg.Add(1)
	go s.loop()

	s.log.Info().Str("status", string(s.status)).Msg("session started")
	return nil
}

// Stop tears the session down: every timer dies with the loop, so no
// orphaned timer can keep mutating state after phase exit.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.forfeits.Stop()
	s.rematches.Stop()
	s.recovery.Stop()
	s.pub.Unsubscribe()
	s.wg.Wait()
	s.log.Info().Msg("session stopped")
}

// TransportLost feeds a dropped-connection signal into the recovery
// loop; wired to the NATS disconnect handler.
func (s *Session) TransportLost() {
	s.pub.Unsubscribe()
	s.recovery.ConnectionLost(s.ctx)
	s.emit(Event{Type: EventReconnectState, Data: ReconnectPayload{State: reconnect.StateReconnecting}})
}

// SetOnline feeds host online/offline transitions to the recovery loop.
func (s *Session) SetOnline(online bool) {
	s.recovery.SetOnline(s.ctx, online)
}

// RetryReconnect restarts recovery after the attempt budget ran out.
func (s *Session) RetryReconnect() {
	s.recovery.Retry(s.ctx)
}

// RollDice performs the local player's roll: optimistic application,
// dice_rolling broadcast up front, the value after the animation delay.
func (s *Session) RollDice() error {
	return s.call(func() error {
		if s.ended {
			return ErrNoActiveMatch
		}
		idx := s.selfIndex()
		if err := s.machine.BeginRolling(idx); err != nil {
			return err
		}

		s.recon.NoteLocalAction()
		s.publish(broadcast.ChannelGame, wire.TypeDiceRolling, nil)
		s.emit(Event{Type: EventDiceRolling})

		res, err := s.machine.ApplyRoll(idx, s.roll())
		if err != nil {
			return err
		}

		// Reveal after the minimum animation duration.
		timer := s.clock.NewTimer(s.cfg.AnimationDelay)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			select {
			case <-timer.Chan():
				s.post(func() { s.revealRoll(res) })
			case <-s.ctx.Done():
				timer.Stop()
			}
		}()
		return nil
	})
}

// MoveToken moves the local player's token using the outstanding dice
// value, applies it optimistically, and broadcasts the result.
func (s *Session) MoveToken(tokenID int) error {
	return s.call(func() error {
		if s.ended {
			return ErrNoActiveMatch
		}
		idx := s.selfIndex()
		res, err := s.machine.MoveToken(idx, tokenID)
		if err != nil {
			return err
		}

		s.recon.NoteLocalAction()
		s.publish(broadcast.ChannelGame, wire.TypeTokenMove, wire.TokenMovePayload{
			Color:            s.machine.Players[idx].Color,
			TokenID:          tokenID,
			ResultingPlayers: s.machine.Players,
			NextTurn:         res.NextTurn,
			GotSix:           res.GotSix,
			WinnerID:         res.WinnerID,
		})
		s.emit(Event{Type: EventTokenMoved, Data: TokenMovedPayload{
			Color:    s.machine.Players[idx].Color,
			TokenID:  tokenID,
			From:     res.Outcome.From,
			To:       res.Outcome.To,
			Captured: res.Outcome.CapturedOpponent,
			NextTurn: res.NextTurn,
		}})

		if res.WinnerID == s.selfID {
			s.finishMatch(s.selfID, "win", true)
			return nil
		}
		if res.TurnAdvanced {
			s.persistTurnBoundary()
		}
		s.emitState()
		return nil
	})
}

// Forfeit concedes the match. The forfeit message is fire-and-forget:
// the local UI transitions to a loss even if delivery fails.
func (s *Session) Forfeit() error {
	return s.call(func() error {
		if s.ended {
			return ErrNoActiveMatch
		}
		s.publish(broadcast.ChannelGame, wire.TypePlayerForfeit, nil)
		s.finishMatch(s.opponentID(), "forfeit", false)
		return nil
	})
}

// Leave exits the room for good. Leaving mid-match counts as a
// concession; after a result it is a plain teardown.
func (s *Session) Leave() {
	if err := s.Forfeit(); err != nil && !errors.Is(err, ErrNoActiveMatch) {
		s.log.Warn().Err(err).Msg("forfeit on leave failed")
	}
	s.Stop()
}

// RequestRematch opens the post-match handshake.
func (s *Session) RequestRematch() error {
	return s.call(func() error {
		if !s.ended {
			return rematch.ErrNoPendingRequest
		}
		if !s.rematches.Request() {
			return nil
		}
		s.publish(broadcast.ChannelRematch, wire.TypeRematchRequest, nil)
		return nil
	})
}

// AcceptRematch answers the opponent's pending request.
func (s *Session) AcceptRematch() error {
	return s.call(func() error {
		s.publish(broadcast.ChannelRematch, wire.TypeRematchAccept, nil)
		return s.rematches.Resolve(rematch.OutcomeAccepted)
	})
}

// DeclineRematch answers the opponent's pending request.
func (s *Session) DeclineRematch() error {
	return s.call(func() error {
		s.publish(broadcast.ChannelRematch, wire.TypeRematchDecline, nil)
		return s.rematches.Resolve(rematch.OutcomeDeclined)
	})
}

// State returns a copy of the live board, for the UI's initial render.
func (s *Session) State() StatePayload {
	var out StatePayload
	_ = s.call(func() error {
		out = StatePayload{
			Players:     models.ClonePlayers(s.machine.Players),
			CurrentTurn: s.machine.CurrentTurn,
			DiceValue:   s.machine.DiceValue,
			Phase:       s.machine.Phase,
		}
		return nil
	})
	return out
}

func (s *Session) loop() {
	defer s.wg.Done()

	checksumTick := s.clock.NewTicker(s.cfg.Reconcile.Interval)
	heartbeatTick := s.clock.NewTicker(s.cfg.HeartbeatInterval)
	pingPulse := s.clock.NewTicker(500 * time.Millisecond)
	defer checksumTick.Stop()
	defer heartbeatTick.Stop()
	defer pingPulse.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.mailbox:
			fn()
		case <-checksumTick.Chan():
			s.broadcastChecksum()
		case <-heartbeatTick.Chan():
			s.heartbeat()
		case <-pingPulse.Chan():
			s.maybePing()
		}
	}
}

// post hands work to the event loop without blocking transport
// callbacks; overload drops the message and lets reconciliation
// backstop the loss.
func (s *Session) post(fn func()) {
	select {
	case s.mailbox <- fn:
	default:
		s.log.Warn().Msg("session mailbox full, dropping message")
	}
}

// call runs fn on the event loop and waits for its result.
func (s *Session) call(fn func() error) error {
	errCh := make(chan error, 1)
	select {
	case s.mailbox <- func() { errCh <- fn() }:
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
	select {
	case err := <-errCh:
		return err
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *Session) subscribeAll() error {
	handler := func(env wire.Envelope) {
		s.post(func() { s.applyMessage(env) })
	}
	for _, ch := range broadcast.Channels {
		if err := s.pub.Subscribe(ch, handler); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) selfIndex() int {
	for i, p := range s.machine.Players {
		if p.ID == s.selfID {
			return i
		}
	}
	return -1
}

func (s *Session) opponentID() string {
	for _, p := range s.machine.Players {
		if p.ID != s.selfID {
			return p.ID
		}
	}
	return ""
}

func (s *Session) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

func (s *Session) emitState() {
	s.emit(Event{Type: EventStateChanged, Data: StatePayload{
		Players:     models.ClonePlayers(s.machine.Players),
		CurrentTurn: s.machine.CurrentTurn,
		DiceValue:   s.machine.DiceValue,
		Phase:       s.machine.Phase,
	}})
}

// publish is fire-and-forget; send failures are logged and left to the
// reconciliation engine and reconnection manager.
func (s *Session) publish(ch broadcast.Channel, t wire.MessageType, payload any) {
	if _, err := s.pub.Publish(ch, t, payload); err != nil {
		s.log.Warn().Err(err).Str("type", string(t)).Msg("broadcast failed")
	}
}

// revealRoll broadcasts the confirmed dice value once the animation
// window has passed, then persists if the roll ended the turn.
func (s *Session) revealRoll(res match.RollResult) {
	s.publish(broadcast.ChannelGame, wire.TypeDiceRoll, wire.DiceRollPayload{Value: res.Value})
	s.emit(Event{Type: EventDiceRolled, Data: DiceRolledPayload{
		Value:         res.Value,
		Mine:          true,
		TurnForfeited: res.TurnForfeited,
		NextTurn:      res.NextTurn,
	}})

	if res.TurnAdvanced {
		s.persistTurnBoundary()
	}
	s.emitState()
}

func (s *Session) broadcastChecksum() {
	if s.status != models.MatchStatusPlaying || s.ended {
		return
	}
	s.publish(broadcast.ChannelChecksum, wire.TypeChecksum, wire.ChecksumPayload{
		Hash: reconcile.Checksum(s.machine.Players, s.machine.CurrentTurn, s.machine.DiceValue),
		Turn: s.machine.CurrentTurn,
		Dice: s.machine.DiceValue,
	})
}

func (s *Session) heartbeat() {
	s.publish(broadcast.ChannelPresence, wire.TypeHeartbeat, wire.HeartbeatPayload{
		UserID:        s.selfID,
		LastHeartbeat: s.clock.Now().UnixMilli(),
	})

	if s.tracker.Check() == presence.TransitionOffline {
		s.log.Warn().Str("opponent_id", s.opponentID()).Msg("opponent presence lost")
		s.emit(Event{Type: EventOpponentOffline})
		if s.status == models.MatchStatusPlaying && !s.ended {
			s.forfeits.OpponentLost()
		}
	}
}

func (s *Session) maybePing() {
	if s.ended {
		return
	}
	now := s.clock.Now()
	if !s.lastPing.IsZero() && now.Sub(s.lastPing) < s.monitor.Cadence() {
		return
	}
	s.lastPing = now
	s.publish(broadcast.ChannelPresence, wire.TypePing, s.monitor.NextPing())
}

// resync fetches the canonical snapshot and overwrites local state
// wholesale. The fetch is retried once; a second failure surfaces a
// non-fatal notice while play continues on last-known-good state.
func (s *Session) resync() {
	snap, err := s.fetchWithRetry()
	if err != nil {
		s.log.Error().Err(err).Msg("resync fetch failed, continuing on local state")
		s.emit(Event{Type: EventStoreDegraded})
		return
	}

	s.overwriteFromSnapshot(snap)
	s.recon.NoteResync()
	s.log.Info().Int64("version", snap.Version).Msg("hard resync applied")
	s.emit(Event{Type: EventResynced})
	s.emitState()
}

func (s *Session) recovered(snap *models.MatchSnapshot) {
	s.overwriteFromSnapshot(snap)
	s.recon.NoteResync()
	// Ask the peer for anything newer than the persisted snapshot.
	s.publish(broadcast.ChannelGame, wire.TypeStateRequest, nil)
	s.emit(Event{Type: EventReconnectState, Data: ReconnectPayload{State: reconnect.StateIdle}})
	s.emitState()
}

func (s *Session) overwriteFromSnapshot(snap *models.MatchSnapshot) {
	phase := match.Phase(snap.Phase)
	if phase == "" {
		phase = match.PhaseWaitingForRoll
	}
	s.machine.Overwrite(snap.Players, snap.CurrentTurn, snap.DiceValue, phase)
	s.status = snap.Status
	s.version = snap.Version
	if snap.Status.Terminal() && !s.ended {
		s.ended = true
		winner := ""
		if snap.WinnerID != nil {
			winner = *snap.WinnerID
		}
		s.machine.Finish(winner)
	}
}

func (s *Session) fetchWithRetry() (*models.MatchSnapshot, error) {
	snap, err := s.snapStore.GetSnapshot(s.ctx, s.roomID)
	if err == nil {
		return snap, nil
	}
	s.log.Warn().Err(err).Msg("snapshot fetch failed, retrying once")
	return s.snapStore.GetSnapshot(s.ctx, s.roomID)
}

// persistTurnBoundary writes the snapshot back at a turn boundary.
// Write failures are non-fatal: the client keeps operating on local
// state and the opponent's write or the next boundary catches up.
func (s *Session) persistTurnBoundary() {
	turn := s.machine.CurrentTurn
	dice := s.machine.DiceValue
	phase := string(s.machine.Phase)

	upd := store.SnapshotUpdate{
		Players:         s.machine.Players,
		CurrentTurn:     &turn,
		DiceValue:       &dice,
		Phase:           &phase,
		ExpectedVersion: s.version,
	}

	snap, err := s.snapStore.UpdateSnapshot(s.ctx, s.roomID, upd)
	if errors.Is(err, store.ErrVersionConflict) {
		// A concurrent writer got there first; refetch and retry once.
		fresh, ferr := s.snapStore.GetSnapshot(s.ctx, s.roomID)
		if ferr == nil {
			upd.ExpectedVersion = fresh.Version
			snap, err = s.snapStore.UpdateSnapshot(s.ctx, s.roomID, upd)
		} else {
			err = ferr
		}
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("snapshot write failed, continuing on local state")
		s.emit(Event{Type: EventStoreDegraded})
		return
	}
	s.version = snap.Version
}

// finishMatch handles every terminal transition. credited gates the
// reward call so only the declared winner's client invokes the ledger.
func (s *Session) finishMatch(winnerID, reason string, credited bool) {
	if s.ended {
		return
	}
	s.ended = true
	s.status = models.MatchStatusCompleted
	s.machine.Finish(winnerID)
	s.forfeits.Stop()

	if err := s.snapStore.CloseSnapshot(s.ctx, s.roomID, models.MatchStatusCompleted, winnerID); err != nil {
		s.log.Error().Err(err).Msg("failed to close snapshot")
	}
	if credited && winnerID == s.selfID && s.ledger != nil && s.rewardAmount > 0 {
		if err := s.ledger.Credit(s.ctx, s.selfID, s.rewardAmount); err != nil {
			s.log.Error().Err(err).Int64("amount", s.rewardAmount).Msg("reward credit failed")
		}
	}

	s.log.Info().Str("winner_id", winnerID).Str("reason", reason).Msg("match ended")
	s.emit(Event{Type: EventMatchEnded, Data: MatchEndedPayload{
		WinnerID: winnerID,
		Won:      winnerID == s.selfID,
		Reason:   reason,
	}})
}

// winUnilaterally closes the match in the local player's favor after
// the disconnect grace window expired.
func (s *Session) winUnilaterally(reason string) {
	if s.ended || s.status != models.MatchStatusPlaying {
		return
	}
	s.finishMatch(s.selfID, reason, true)
}

func (s *Session) rematchResolved(o rematch.Outcome) {
	s.emit(Event{Type: EventRematchResolved, Data: RematchPayload{Outcome: o}})
	if o != rematch.OutcomeAccepted {
		return
	}

	if s.isHost {
		snap, err := s.snapStore.ResetSnapshot(s.ctx, s.roomID, s.machine.Players)
		if err != nil {
			s.log.Error().Err(err).Msg("rematch snapshot reset failed")
			s.emit(Event{Type: EventStoreDegraded})
			return
		}
		s.restartFrom(snap)
		s.publish(broadcast.ChannelGame, wire.TypeFullSync, wire.FullSyncPayload{
			Players:     s.machine.Players,
			CurrentTurn: s.machine.CurrentTurn,
			DiceValue:   s.machine.DiceValue,
			Phase:       string(s.machine.Phase),
		})
	}
	// The guest restarts when the host's full_sync arrives.
}

func (s *Session) restartFrom(snap *models.MatchSnapshot) {
	s.ended = false
	s.overwriteFromSnapshot(snap)
	s.status = models.MatchStatusPlaying
	s.watermark.Reset()
	s.emitState()
}
