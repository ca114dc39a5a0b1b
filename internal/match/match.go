// Package match hosts one running mood duel behind an actor loop. All
// mutations funnel through a single event channel; a sub-second ticker
// drives turn timeouts and offline-seat cleanup. Broadcasts carry a
// per-match server sequence so replicas can order and dedupe them.
package match

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moodclash/deck"
	"moodclash/internal/ledger"
	"moodclash/internal/oracle"
	"moodclash/session"
)

// Match is a single session coordinator with an actor model.
type Match struct {
	ID string

	mu       sync.RWMutex
	game     *session.Game
	cfg      session.Config
	players  map[uint64]*ParticipantConn // userID -> connection state
	closed   bool
	stopOnce sync.Once

	events chan Event
	done   chan struct{}

	serverSeq uint64

	// evalGen fences evaluation completions: a verdict minted before a
	// reset or force-end carries a stale generation and is discarded.
	evalGen uint64

	emptySince time.Time

	broadcast func(userID uint64, data []byte)
	ledger    ledger.Service
	scorer    *oracle.Scorer
	catalog   *deck.Catalog

	log zerolog.Logger
}

// ParticipantConn tracks one connected user within the match.
type ParticipantConn struct {
	UserID        uint64
	Name          string
	ParticipantID string
	Online        bool
	LastSeen      time.Time
}

type EventType int

const (
	EventJoin EventType = iota
	EventLeave
	EventPlay
	EventForceEnd
	EventReset
	EventTimeout
	EventEvalDone
	EventConnLost
	EventConnResume
	EventClose
)

// Event is a message to the match actor.
type Event struct {
	Type      EventType
	UserID    uint64
	Name      string
	DeckID    deck.ID
	ActionID  int
	Timestamp time.Time

	// Evaluation completion payload. EvalSwitchSeq is the turn the verdict
	// scored, captured when the evaluation launched.
	EvalGen       uint64
	EvalSwitchSeq uint64
	Verdict       oracle.Verdict

	Response chan error
}

var ErrMatchClosed = errors.New("match closed")

// RejectError carries an admission refusal back to the requesting client.
type RejectError struct {
	Reason session.RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("play rejected: %s", e.Reason)
}

const offlineSeatTTL = 30 * time.Second

// New creates a match and starts its actor goroutine.
func New(
	id string,
	cfg session.Config,
	broadcastFn func(userID uint64, data []byte),
	ledgerService ledger.Service,
	scorer *oracle.Scorer,
	catalog *deck.Catalog,
) (*Match, error) {
	game, err := session.NewGame(cfg, true)
	if err != nil {
		return nil, err
	}
	if err := game.Open(); err != nil {
		return nil, err
	}

	m := &Match{
		ID:         id,
		game:       game,
		cfg:        cfg,
		players:    make(map[uint64]*ParticipantConn),
		events:     make(chan Event, 256),
		done:       make(chan struct{}),
		emptySince: time.Now(),
		broadcast:  broadcastFn,
		ledger:     ledgerService,
		scorer:     scorer,
		catalog:    catalog,
		log:        log.With().Str("match", id).Logger(),
	}

	go m.run()

	m.log.Info().Dur("turn", cfg.TurnDuration).Int("threshold", cfg.WinThreshold).Msg("match created")
	return m, nil
}

// run is the main actor loop.
func (m *Match) run() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case event := <-m.events:
			err := m.handleEvent(event)
			if event.Response != nil {
				event.Response <- err
			}
		case <-ticker.C:
			m.tick()
		case <-m.done:
			m.log.Info().Msg("actor stopped")
			return
		}
	}
}

func (m *Match) handleEvent(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed && e.Type != EventClose {
		return ErrMatchClosed
	}

	switch e.Type {
	case EventJoin:
		return m.handleJoin(e.UserID, e.Name, e.DeckID, e.Timestamp)
	case EventLeave:
		return m.handleLeave(e.UserID, e.Timestamp)
	case EventPlay:
		return m.handlePlay(e.UserID, e.ActionID, e.Timestamp)
	case EventForceEnd:
		return m.handleForceEnd(e.UserID)
	case EventReset:
		return m.handleReset(e.UserID)
	case EventTimeout:
		return m.handleTimeout(e.Timestamp)
	case EventEvalDone:
		return m.handleEvalDone(e.EvalGen, e.EvalSwitchSeq, e.Verdict, e.Timestamp)
	case EventConnLost:
		return m.handleConnLost(e.UserID, e.Timestamp)
	case EventConnResume:
		return m.handleConnResume(e.UserID, e.Timestamp)
	case EventClose:
		m.stopLocked()
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", e.Type)
	}
}

func participantID(userID uint64) string {
	return strconv.FormatUint(userID, 10)
}

func (m *Match) handleJoin(userID uint64, name string, deckID deck.ID, now time.Time) error {
	pid := participantID(userID)

	if existing, ok := m.players[userID]; ok {
		existing.Online = true
		existing.LastSeen = now
		if m.game.SeatOf(pid) != session.InvalidSeat || m.game.IsObserver(pid) {
			m.sendSnapshot(userID)
			return nil
		}
		// Known connection but no registration: a reset cleared the roster,
		// fall through and register again.
	}

	seat, role, err := m.game.Join(pid, deckID)
	if err != nil {
		return err
	}

	m.players[userID] = &ParticipantConn{
		UserID:        userID,
		Name:          name,
		ParticipantID: pid,
		Online:        true,
		LastSeen:      now,
	}
	m.updateEmptySinceLocked(now)

	m.log.Info().Uint64("user", userID).Str("role", role.String()).Msg("participant joined")

	m.sendWelcome(userID, pid, seat, role)
	if role == session.RolePlayer {
		m.broadcastSeatUpdate(seat, pid, deckID, false)
	}
	m.sendSnapshot(userID)

	if m.game.RosterReady() && m.game.Phase() == session.PhaseAwaitingRoster {
		if err := m.game.Start(now); err != nil {
			m.log.Error().Err(err).Msg("start failed with full roster")
			return nil
		}
		m.log.Info().Msg("roster complete, match started")
		m.broadcastSnapshotAll()
		m.broadcastTurnChanged()
	}
	return nil
}

func (m *Match) handleLeave(userID uint64, now time.Time) error {
	conn := m.players[userID]
	if conn == nil {
		return nil
	}

	beforeSeat := m.game.SeatOf(conn.ParticipantID)
	beforeTurn := m.game.Turn()

	if err := m.game.Leave(conn.ParticipantID, now); err != nil && !errors.Is(err, session.ErrNotRegistered) {
		return err
	}
	delete(m.players, userID)
	m.updateEmptySinceLocked(now)

	m.log.Info().Uint64("user", userID).Msg("participant left")

	if beforeSeat != session.InvalidSeat {
		m.broadcastSeatUpdate(beforeSeat, conn.ParticipantID, 0, true)
		// Leaving mid-turn hands the turn over; surface the switch.
		afterTurn := m.game.Turn()
		if afterTurn.Started && afterTurn.SwitchSeq != beforeTurn.SwitchSeq {
			m.broadcastTurnChanged()
		}
	}
	return nil
}

func (m *Match) handlePlay(userID uint64, actionID int, now time.Time) error {
	conn := m.players[userID]
	if conn == nil {
		return &RejectError{Reason: session.RejectObserverNotAllowed}
	}

	action, reason, err := m.game.TryPlay(conn.ParticipantID, actionID, now)
	if err != nil {
		return err
	}
	// Rejections come back with a nil error; only RejectNone is an admit.
	if reason != session.RejectNone {
		m.log.Debug().Uint64("user", userID).Str("reason", reason.String()).Msg("play rejected")
		return &RejectError{Reason: reason}
	}

	m.log.Info().Uint64("user", userID).Int("action", actionID).Int("seq", action.SequenceIndex).Msg("action admitted")

	m.broadcastActionAdmitted(action)
	m.broadcastEvaluationStarted()

	m.evalGen++
	m.launchEvaluationLocked(m.evalGen, action)
	return nil
}

func (m *Match) handleForceEnd(userID uint64) error {
	if err := m.game.ForceEnd(); err != nil {
		return err
	}
	// Invalidate any in-flight evaluation.
	m.evalGen++

	m.log.Info().Uint64("user", userID).Msg("match force-ended")
	m.broadcastGameOver(session.InvalidSeat, "", true)
	m.persistHistoryLocked()
	return nil
}

func (m *Match) handleReset(userID uint64) error {
	if err := m.game.Reset(); err != nil {
		return err
	}
	m.evalGen++
	if err := m.game.Open(); err != nil {
		return err
	}

	m.log.Info().Uint64("user", userID).Msg("match reset")

	// Seats are gone but connections stay up: everyone re-joins with a
	// fresh deck choice. handleJoin re-registers known connections.
	m.broadcastSnapshotAll()
	return nil
}

func (m *Match) handleTimeout(now time.Time) error {
	before := m.game.Phase()
	switched, err := m.game.HandleTimeout(now)
	if err != nil {
		return err
	}
	if switched {
		m.log.Info().Msg("turn expired, switched")
		m.broadcastTurnChanged()
		return nil
	}
	// An expiry with no opponent left drops the game back to its roster
	// wait; push the resulting state to everyone.
	if before == session.PhaseTurnActive && m.game.Phase() == session.PhaseAwaitingRoster {
		m.log.Info().Msg("turn expired with a single seat, awaiting roster")
		m.broadcastSnapshotAll()
	}
	return nil
}

func (m *Match) handleConnLost(userID uint64, ts time.Time) error {
	conn := m.players[userID]
	if conn == nil {
		return nil
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	conn.Online = false
	conn.LastSeen = ts
	m.log.Info().Uint64("user", userID).Msg("connection lost")
	return nil
}

func (m *Match) handleConnResume(userID uint64, ts time.Time) error {
	conn := m.players[userID]
	if conn == nil {
		return nil
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	conn.Online = true
	conn.LastSeen = ts
	m.sendSnapshot(userID)
	m.log.Info().Uint64("user", userID).Msg("connection resumed")
	return nil
}

func (m *Match) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	now := time.Now()
	if err := m.handleTimeout(now); err != nil {
		m.log.Error().Err(err).Msg("timeout handler failed")
	}
	m.releaseOfflineSeats(now)
}

func (m *Match) releaseOfflineSeats(now time.Time) {
	for userID, conn := range m.players {
		if conn == nil || conn.Online {
			continue
		}
		if m.game.SeatOf(conn.ParticipantID) == session.InvalidSeat {
			continue
		}
		if now.Sub(conn.LastSeen) < offlineSeatTTL {
			continue
		}
		if err := m.handleLeave(userID, now); err != nil {
			conn.LastSeen = now
			m.log.Error().Err(err).Uint64("user", userID).Msg("auto-leave failed")
			continue
		}
		m.log.Info().Uint64("user", userID).Dur("ttl", offlineSeatTTL).Msg("auto-left offline seat")
	}
}

// SubmitEvent sends an event to the actor and waits for the result.
func (m *Match) SubmitEvent(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Response == nil {
		e.Response = make(chan error, 1)
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrMatchClosed
	}

	select {
	case m.events <- e:
	case <-m.done:
		return ErrMatchClosed
	}

	select {
	case err := <-e.Response:
		return err
	case <-m.done:
		return ErrMatchClosed
	}
}

// Stop shuts down the match actor.
func (m *Match) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Match) stopLocked() {
	m.closed = true
	m.stopOnce.Do(func() {
		close(m.done)
	})
}

func (m *Match) updateEmptySinceLocked(now time.Time) {
	if len(m.players) == 0 {
		if m.emptySince.IsZero() {
			m.emptySince = now
		}
		return
	}
	m.emptySince = time.Time{}
}

// IsIdleFor reports whether the match has been empty long enough to reap.
func (m *Match) IsIdleFor(ttl time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return true
	}
	if len(m.players) > 0 {
		return false
	}
	if m.emptySince.IsZero() {
		return false
	}
	return time.Since(m.emptySince) >= ttl
}

func (m *Match) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Snapshot returns the current session state (thread-safe).
func (m *Match) Snapshot() session.Snapshot {
	return m.game.Snapshot()
}

// HasParticipant reports whether the user has a live connection record here.
func (m *Match) HasParticipant(userID uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.players[userID]
	return ok
}

// RoleOf resolves the session role of a connected user.
func (m *Match) RoleOf(userID uint64) session.Role {
	m.mu.RLock()
	conn := m.players[userID]
	m.mu.RUnlock()
	if conn == nil {
		return session.RoleObserver
	}
	if m.game.SeatOf(conn.ParticipantID) == session.InvalidSeat {
		return session.RoleObserver
	}
	return session.RolePlayer
}
