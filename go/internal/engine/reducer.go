package engine

import (
	"errors"

	"github.com/ludorush/ludorush/go/internal/broadcast"
	"github.com/ludorush/ludorush/go/internal/match"
	"github.com/ludorush/ludorush/go/internal/models"
	"github.com/ludorush/ludorush/go/internal/presence"
	"github.com/ludorush/ludorush/go/internal/reconcile"
	"github.com/ludorush/ludorush/go/internal/rematch"
	"github.com/ludorush/ludorush/go/internal/wire"
)

// applyMessage folds one inbound envelope into session state. Runs on
// the event loop only. State-mutating types pass through the watermark
// first so replayed and out-of-order deliveries are dropped before they
// can touch the machine.
func (s *Session) applyMessage(env wire.Envelope) {
	if env.Type.StateMutating() && !s.watermark.Observe(env.Timestamp) {
		s.log.Debug().
			Str("type", string(env.Type)).
			Int64("ts", env.Timestamp).
			Int64("watermark", s.watermark.Last()).
			Msg("dropping stale or duplicate message")
		return
	}

	payload, err := wire.ParsePayload(env)
	if err != nil {
		s.log.Warn().Err(err).Str("type", string(env.Type)).Msg("dropping malformed payload")
		return
	}

	switch env.Type {
	case wire.TypeDiceRolling:
		s.onRemoteDiceRolling()
	case wire.TypeDiceRoll:
		s.onRemoteDiceRoll(env, payload.(wire.DiceRollPayload))
	case wire.TypeTokenMove:
		s.onRemoteTokenMove(env, payload.(wire.TokenMovePayload))
	case wire.TypePlayerForfeit:
		s.onRemoteForfeit(env)
	case wire.TypeTurnTimeout:
		s.onRemoteTurnTimeout(payload.(wire.TurnTimeoutPayload))
	case wire.TypeFullSync:
		s.onFullSync(payload.(wire.FullSyncPayload))
	case wire.TypeChecksum:
		s.onChecksum(payload.(wire.ChecksumPayload))
	case wire.TypeStateRequest:
		s.onStateRequest()
	case wire.TypePing:
		s.onPing(payload.(wire.PingPayload))
	case wire.TypePong:
		s.onPong(payload.(wire.PongPayload))
	case wire.TypeHeartbeat:
		s.onHeartbeat(payload.(wire.HeartbeatPayload))
	case wire.TypeActionConfirm:
		// Delivery is best effort; confirms are informational.
	case wire.TypeRematchRequest:
		s.onRematchRequest()
	case wire.TypeRematchAccept:
		s.onRematchAnswer(rematch.OutcomeAccepted)
	case wire.TypeRematchDecline:
		s.onRematchAnswer(rematch.OutcomeDeclined)
	default:
		s.log.Debug().Str("type", string(env.Type)).Msg("ignoring unknown message type")
	}
}

func (s *Session) onRemoteDiceRolling() {
	if s.ended {
		return
	}
	// Start the opponent's dice animation in lockstep. An illegal phase
	// here means we are behind; the checksum loop will catch it.
	if err := s.machine.BeginRolling(s.machine.CurrentTurn); err != nil {
		s.log.Debug().Err(err).Msg("remote dice_rolling out of phase")
		return
	}
	s.emit(Event{Type: EventDiceRolling})
}

func (s *Session) onRemoteDiceRoll(env wire.Envelope, p wire.DiceRollPayload) {
	if s.ended {
		return
	}
	res, err := s.machine.ApplyRoll(s.machine.CurrentTurn, p.Value)
	if err != nil {
		s.log.Warn().Err(err).Int("value", p.Value).Msg("remote dice_roll rejected")
		return
	}

	s.confirm(env)
	s.emit(Event{Type: EventDiceRolled, Data: DiceRolledPayload{
		Value:         res.Value,
		Mine:          false,
		TurnForfeited: res.TurnForfeited,
		NextTurn:      res.NextTurn,
	}})
	s.emitState()
}

// onRemoteTokenMove applies the sender's declared outcome verbatim
// rather than re-simulating the move: the payload carries the full
// resulting player list, so both boards are bitwise identical after
// application regardless of local rule evaluation.
func (s *Session) onRemoteTokenMove(env wire.Envelope, p wire.TokenMovePayload) {
	if s.ended {
		return
	}

	phase := match.PhaseWaitingForRoll
	if p.WinnerID != "" {
		phase = match.PhaseResult
	}
	s.machine.Overwrite(p.ResultingPlayers, p.NextTurn, 0, phase)

	s.confirm(env)
	s.emit(Event{Type: EventTokenMoved, Data: TokenMovedPayload{
		Color:    p.Color,
		TokenID:  p.TokenID,
		NextTurn: p.NextTurn,
	}})

	if p.WinnerID != "" {
		// The opponent declared the win; persistence and reward are the
		// winner's side to run, we only settle locally.
		s.settleRemoteWin(p.WinnerID, "win")
		return
	}
	s.emitState()
}

func (s *Session) onRemoteForfeit(env wire.Envelope) {
	if s.ended {
		return
	}
	s.confirm(env)
	// The opponent conceded: this client is the winner and owns the
	// terminal writes.
	s.finishMatch(s.selfID, "forfeit", true)
}

func (s *Session) onRemoteTurnTimeout(p wire.TurnTimeoutPayload) {
	if s.ended {
		return
	}
	s.machine.SetTurn(p.ToTurn)
	s.emitState()
}

func (s *Session) onFullSync(p wire.FullSyncPayload) {
	phase := match.Phase(p.Phase)
	if phase == "" {
		phase = match.PhaseWaitingForRoll
	}

	wasEnded := s.ended
	s.machine.Overwrite(p.Players, p.CurrentTurn, p.DiceValue, phase)
	s.recon.NoteResync()

	if wasEnded && phase != match.PhaseResult {
		// Host pushed the rematch board; the match is live again on
		// this side too, with the full playing-phase machinery.
		s.ended = false
		s.status = models.MatchStatusPlaying
		s.watermark.Reset()
		s.version++
	}
	s.emitState()
}

func (s *Session) onChecksum(p wire.ChecksumPayload) {
	if s.status.Terminal() || s.ended {
		return
	}
	local := reconcile.Checksum(s.machine.Players, s.machine.CurrentTurn, s.machine.DiceValue)
	decision := s.recon.Compare(local, p.Hash)
	switch decision {
	case reconcile.DecisionCounted:
		s.log.Debug().
			Int("streak", s.recon.Mismatches()).
			Int("remote_turn", p.Turn).
			Msg("checksum mismatch counted")
	case reconcile.DecisionResync:
		s.log.Warn().Str("local", local).Str("remote", p.Hash).Msg("sustained checksum divergence, resyncing")
		s.resync()
	}
}

func (s *Session) onStateRequest() {
	s.publish(broadcast.ChannelGame, wire.TypeFullSync, wire.FullSyncPayload{
		Players:     s.machine.Players,
		CurrentTurn: s.machine.CurrentTurn,
		DiceValue:   s.machine.DiceValue,
		Phase:       string(s.machine.Phase),
	})
}

func (s *Session) onPing(p wire.PingPayload) {
	s.publish(broadcast.ChannelPresence, wire.TypePong, wire.PongPayload{ID: p.ID, TS: p.TS})
}

func (s *Session) onPong(p wire.PongPayload) {
	rtt, ok := s.monitor.ObservePong(p)
	if !ok {
		return
	}

	quality := s.monitor.Classify()
	if quality != s.lastQuality {
		s.lastQuality = quality
		s.emit(Event{Type: EventLinkQuality, Data: LinkQualityPayload{
			Quality:   quality,
			LatencyMs: s.monitor.Latency(),
			DropRate:  s.monitor.DropRate(),
		}})
	}
	if s.monitor.ShouldAdvise() {
		s.log.Warn().Float64("rtt_ms", rtt).Float64("smoothed_ms", s.monitor.Latency()).Msg("high latency advisory")
		s.emit(Event{Type: EventLatencyAdvisory, Data: LinkQualityPayload{
			Quality:   quality,
			LatencyMs: s.monitor.Latency(),
			DropRate:  s.monitor.DropRate(),
		}})
	}
}

func (s *Session) onHeartbeat(p wire.HeartbeatPayload) {
	if s.tracker.ObserveHeartbeat(p.UserID) == presence.TransitionOnline {
		s.log.Info().Str("opponent_id", p.UserID).Msg("opponent online")
		s.emit(Event{Type: EventOpponentOnline})
	}
	if s.forfeits.Running() && p.UserID == s.opponentID() {
		s.forfeits.OpponentBack()
		s.emit(Event{Type: EventOpponentOnline})
	}
}

func (s *Session) onRematchRequest() {
	if !s.ended {
		return
	}
	if s.rematches.ObserveRequest() {
		s.emit(Event{Type: EventRematchPrompt, Data: RematchPayload{Inbound: true}})
	}
}

func (s *Session) onRematchAnswer(o rematch.Outcome) {
	if err := s.rematches.Resolve(o); err != nil {
		if !errors.Is(err, rematch.ErrNoPendingRequest) {
			s.log.Warn().Err(err).Msg("rematch resolve failed")
		}
	}
}

// settleRemoteWin ends the match locally after the opponent's declared
// terminal outcome. No snapshot write and no ledger call happen here,
// that side of the settlement belongs to the winner's client.
func (s *Session) settleRemoteWin(winnerID, reason string) {
	if s.ended {
		return
	}
	s.ended = true
	s.status = models.MatchStatusCompleted
	s.machine.Finish(winnerID)
	s.forfeits.Stop()

	s.log.Info().Str("winner_id", winnerID).Str("reason", reason).Msg("match ended by remote outcome")
	s.emit(Event{Type: EventMatchEnded, Data: MatchEndedPayload{
		WinnerID: winnerID,
		Won:      winnerID == s.selfID,
		Reason:   reason,
	}})
}

func (s *Session) confirm(env wire.Envelope) {
	s.publish(broadcast.ChannelGame, wire.TypeActionConfirm, wire.ActionConfirmPayload{ID: env.ID})
}
