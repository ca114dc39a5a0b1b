package match

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"moodclash/deck"
	"moodclash/internal/oracle"
	"moodclash/session"
)

// stubProvider replies with a fixed completion (or error) after an optional
// delay, standing in for the real scoring backend.
type stubProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	delay time.Duration
	calls int
}

func (s *stubProvider) Complete(ctx context.Context, _ string, _ string) (string, error) {
	s.mu.Lock()
	s.calls++
	reply, err, delay := s.reply, s.err, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// recorder captures per-user broadcast frames.
type recorder struct {
	mu     sync.Mutex
	frames map[uint64][][]byte
}

func newRecorder() *recorder {
	return &recorder{frames: make(map[uint64][][]byte)}
}

func (r *recorder) send(userID uint64, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[userID] = append(r.frames[userID], data)
}

func (r *recorder) count(userID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames[userID])
}

// allDeltasReply scores +n on every category, so both seats move together and
// tests stay independent of the random seat/category assignment.
const allDeltasReply = `{"deltas":{"joy":5,"sorrow":5,"fury":5,"serenity":5,"dread":5},"rationale":"steady"}`

func testConfig() session.Config {
	return session.Config{
		TurnDuration: 30 * time.Second,
		WinThreshold: 100,
		StartValue:   50,
		MaxDelta:     20,
		LogCapacity:  40,
		Seed:         42,
	}
}

func newTestMatch(t *testing.T, cfg session.Config, provider oracle.Provider) (*Match, *recorder) {
	t.Helper()

	rec := newRecorder()
	scorer, err := oracle.NewScorer(provider, time.Second, cfg.MaxDelta, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScorer err: %v", err)
	}
	m, err := New("match_test", cfg, rec.send, nil, scorer, deck.NewCatalog())
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	t.Cleanup(m.Stop)
	return m, rec
}

func joinTwoPlayers(t *testing.T, m *Match) {
	t.Helper()
	if err := m.SubmitEvent(Event{Type: EventJoin, UserID: 1, Name: "p1", DeckID: deck.DeckStreetLife}); err != nil {
		t.Fatalf("join p1: %v", err)
	}
	if err := m.SubmitEvent(Event{Type: EventJoin, UserID: 2, Name: "p2", DeckID: deck.DeckWildNature}); err != nil {
		t.Fatalf("join p2: %v", err)
	}
}

func currentUserID(t *testing.T, m *Match) uint64 {
	t.Helper()
	snap := m.Snapshot()
	for _, entry := range snap.Roster {
		if entry.Seat == snap.CurrentSeat {
			id, err := strconv.ParseUint(entry.ParticipantID, 10, 64)
			if err != nil {
				t.Fatalf("parse participant id %q: %v", entry.ParticipantID, err)
			}
			return id
		}
	}
	t.Fatalf("no roster entry for current seat %d", snap.CurrentSeat)
	return 0
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestFullRosterStartsMatch(t *testing.T) {
	m, rec := newTestMatch(t, testConfig(), &stubProvider{reply: allDeltasReply})
	joinTwoPlayers(t, m)

	snap := m.Snapshot()
	if snap.Phase != "turn_active" {
		t.Fatalf("phase = %q, want turn_active", snap.Phase)
	}
	if len(snap.Roster) != 2 {
		t.Fatalf("roster size = %d", len(snap.Roster))
	}
	if snap.SwitchSeq != 1 {
		t.Fatalf("switchSeq = %d, want 1", snap.SwitchSeq)
	}
	if snap.DeadlineMs == 0 {
		t.Fatal("no deadline after start")
	}
	if rec.count(1) == 0 || rec.count(2) == 0 {
		t.Fatal("players received no frames")
	}
}

func TestThirdJoinerBecomesObserver(t *testing.T) {
	m, _ := newTestMatch(t, testConfig(), &stubProvider{reply: allDeltasReply})
	joinTwoPlayers(t, m)

	if err := m.SubmitEvent(Event{Type: EventJoin, UserID: 3, Name: "late", DeckID: deck.DeckNightCity}); err != nil {
		t.Fatalf("join observer: %v", err)
	}
	if role := m.RoleOf(3); role != session.RoleObserver {
		t.Fatalf("role = %v, want observer", role)
	}
	if snap := m.Snapshot(); snap.Observers != 1 {
		t.Fatalf("observers = %d, want 1", snap.Observers)
	}
}

func TestPlayAppliesVerdictAndSwitchesTurn(t *testing.T) {
	m, _ := newTestMatch(t, testConfig(), &stubProvider{reply: allDeltasReply})
	joinTwoPlayers(t, m)

	before := m.Snapshot()
	actor := currentUserID(t, m)
	if err := m.SubmitEvent(Event{Type: EventPlay, UserID: actor, ActionID: 0}); err != nil {
		t.Fatalf("play: %v", err)
	}

	waitFor(t, "evaluation to finish", func() bool {
		return m.Snapshot().Phase == "turn_active" && m.Snapshot().SwitchSeq > before.SwitchSeq
	})

	after := m.Snapshot()
	if after.CurrentSeat == before.CurrentSeat {
		t.Fatalf("turn did not switch from seat %d", before.CurrentSeat)
	}
	for _, mood := range after.Moods {
		if mood.Value != 55 {
			t.Fatalf("seat %d mood = %d, want 55", mood.Seat, mood.Value)
		}
	}
	if len(after.Actions) != 1 {
		t.Fatalf("action log size = %d, want 1", len(after.Actions))
	}
}

func TestOracleFailureFailsOpen(t *testing.T) {
	m, _ := newTestMatch(t, testConfig(), &stubProvider{err: errors.New("connection refused")})
	joinTwoPlayers(t, m)

	before := m.Snapshot()
	actor := currentUserID(t, m)
	if err := m.SubmitEvent(Event{Type: EventPlay, UserID: actor, ActionID: 0}); err != nil {
		t.Fatalf("play: %v", err)
	}

	waitFor(t, "fail-open release", func() bool {
		return m.Snapshot().Phase == "turn_active" && m.Snapshot().SwitchSeq > before.SwitchSeq
	})

	for _, mood := range m.Snapshot().Moods {
		if mood.Value != 50 {
			t.Fatalf("seat %d mood = %d, want unchanged 50", mood.Seat, mood.Value)
		}
	}
}

func TestObserverPlayRejected(t *testing.T) {
	m, _ := newTestMatch(t, testConfig(), &stubProvider{reply: allDeltasReply})
	joinTwoPlayers(t, m)
	if err := m.SubmitEvent(Event{Type: EventJoin, UserID: 3, Name: "late", DeckID: deck.DeckNightCity}); err != nil {
		t.Fatalf("join observer: %v", err)
	}

	err := m.SubmitEvent(Event{Type: EventPlay, UserID: 3, ActionID: 0})
	var reject *RejectError
	if !errors.As(err, &reject) || reject.Reason != session.RejectObserverNotAllowed {
		t.Fatalf("got %v, want observer rejection", err)
	}
}

func TestOutOfTurnPlayRejected(t *testing.T) {
	m, _ := newTestMatch(t, testConfig(), &stubProvider{reply: allDeltasReply})
	joinTwoPlayers(t, m)

	actor := currentUserID(t, m)
	other := uint64(1)
	if actor == 1 {
		other = 2
	}

	err := m.SubmitEvent(Event{Type: EventPlay, UserID: other, ActionID: 0})
	var reject *RejectError
	if !errors.As(err, &reject) || reject.Reason != session.RejectNotYourTurn {
		t.Fatalf("got %v, want not-your-turn rejection", err)
	}
}

func TestSecondPlayDuringEvaluationRejected(t *testing.T) {
	slow := &stubProvider{reply: allDeltasReply, delay: 300 * time.Millisecond}
	m, _ := newTestMatch(t, testConfig(), slow)
	joinTwoPlayers(t, m)

	actor := currentUserID(t, m)
	if err := m.SubmitEvent(Event{Type: EventPlay, UserID: actor, ActionID: 0}); err != nil {
		t.Fatalf("first play: %v", err)
	}

	err := m.SubmitEvent(Event{Type: EventPlay, UserID: actor, ActionID: 1})
	var reject *RejectError
	if !errors.As(err, &reject) || reject.Reason != session.RejectEvaluationInProgress {
		t.Fatalf("got %v, want evaluation-in-progress rejection", err)
	}
}

func TestRejectedPlayKeepsPendingVerdict(t *testing.T) {
	slow := &stubProvider{reply: allDeltasReply, delay: 300 * time.Millisecond}
	m, _ := newTestMatch(t, testConfig(), slow)
	joinTwoPlayers(t, m)

	actor := currentUserID(t, m)
	if err := m.SubmitEvent(Event{Type: EventPlay, UserID: actor, ActionID: 0}); err != nil {
		t.Fatalf("first play: %v", err)
	}

	// Rejections while the oracle is out must not start a second evaluation
	// or discard the one in flight.
	var reject *RejectError
	if err := m.SubmitEvent(Event{Type: EventPlay, UserID: 3, ActionID: 1}); !errors.As(err, &reject) {
		t.Fatalf("observer play: got %v, want rejection", err)
	}
	if err := m.SubmitEvent(Event{Type: EventPlay, UserID: actor, ActionID: 1}); !errors.As(err, &reject) {
		t.Fatalf("second play: got %v, want rejection", err)
	}

	waitFor(t, "pending verdict applied", func() bool {
		for _, mood := range m.Snapshot().Moods {
			if mood.Value != 55 {
				return false
			}
		}
		return len(m.Snapshot().Moods) == 2
	})
	slow.mu.Lock()
	calls := slow.calls
	slow.mu.Unlock()
	if calls != 1 {
		t.Fatalf("oracle calls = %d, want 1", calls)
	}
}

func TestWinEndsMatch(t *testing.T) {
	cfg := testConfig()
	cfg.WinThreshold = 55
	m, _ := newTestMatch(t, cfg, &stubProvider{reply: allDeltasReply})
	joinTwoPlayers(t, m)

	actor := currentUserID(t, m)
	if err := m.SubmitEvent(Event{Type: EventPlay, UserID: actor, ActionID: 0}); err != nil {
		t.Fatalf("play: %v", err)
	}

	waitFor(t, "game over", func() bool {
		return m.Snapshot().Phase == "game_over"
	})

	snap := m.Snapshot()
	if snap.Result == nil {
		t.Fatal("no result recorded")
	}
	// Both seats crossed the threshold together; the lower seat takes it.
	if snap.Result.WinningSeat != 0 {
		t.Fatalf("winning seat = %d, want 0", snap.Result.WinningSeat)
	}

	err := m.SubmitEvent(Event{Type: EventPlay, UserID: actor, ActionID: 1})
	var reject *RejectError
	if !errors.As(err, &reject) || reject.Reason != session.RejectGameOver {
		t.Fatalf("post-win play: got %v, want game-over rejection", err)
	}
}

func TestForceEndDiscardsPendingVerdict(t *testing.T) {
	slow := &stubProvider{reply: allDeltasReply, delay: 500 * time.Millisecond}
	m, _ := newTestMatch(t, testConfig(), slow)
	joinTwoPlayers(t, m)

	actor := currentUserID(t, m)
	if err := m.SubmitEvent(Event{Type: EventPlay, UserID: actor, ActionID: 0}); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := m.SubmitEvent(Event{Type: EventForceEnd, UserID: actor}); err != nil {
		t.Fatalf("force end: %v", err)
	}

	if snap := m.Snapshot(); snap.Phase != "game_over" {
		t.Fatalf("phase = %q, want game_over", snap.Phase)
	}

	// Let the slow verdict land; it must not resurrect the match or move moods.
	time.Sleep(700 * time.Millisecond)
	snap := m.Snapshot()
	if snap.Phase != "game_over" {
		t.Fatalf("phase after late verdict = %q", snap.Phase)
	}
	for _, mood := range snap.Moods {
		if mood.Value != 50 {
			t.Fatalf("seat %d mood = %d after discarded verdict", mood.Seat, mood.Value)
		}
	}
}

func TestResetRequiresRejoin(t *testing.T) {
	m, _ := newTestMatch(t, testConfig(), &stubProvider{reply: allDeltasReply})
	joinTwoPlayers(t, m)

	if err := m.SubmitEvent(Event{Type: EventReset, UserID: 1}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	snap := m.Snapshot()
	if snap.Phase != "awaiting_roster" {
		t.Fatalf("phase = %q, want awaiting_roster", snap.Phase)
	}
	if len(snap.Roster) != 0 {
		t.Fatalf("roster not cleared: %d entries", len(snap.Roster))
	}

	// Known connections re-register with a fresh deck choice.
	joinTwoPlayers(t, m)
	if snap := m.Snapshot(); snap.Phase != "turn_active" {
		t.Fatalf("phase after rejoin = %q, want turn_active", snap.Phase)
	}
}

func TestStaleEvalGenerationIgnored(t *testing.T) {
	m, _ := newTestMatch(t, testConfig(), &stubProvider{reply: allDeltasReply})
	joinTwoPlayers(t, m)

	err := m.SubmitEvent(Event{
		Type:    EventEvalDone,
		EvalGen: 99,
		Verdict: oracle.Verdict{Deltas: map[string]int{"joy": 20}},
	})
	if err != nil {
		t.Fatalf("stale eval event: %v", err)
	}
	for _, mood := range m.Snapshot().Moods {
		if mood.Value != 50 {
			t.Fatalf("seat %d mood = %d, stale verdict applied", mood.Seat, mood.Value)
		}
	}
}

func TestLeaveOfCurrentPlayerPassesTurn(t *testing.T) {
	m, _ := newTestMatch(t, testConfig(), &stubProvider{reply: allDeltasReply})
	joinTwoPlayers(t, m)

	before := m.Snapshot()
	actor := currentUserID(t, m)
	if err := m.SubmitEvent(Event{Type: EventLeave, UserID: actor}); err != nil {
		t.Fatalf("leave: %v", err)
	}

	after := m.Snapshot()
	if after.CurrentSeat == before.CurrentSeat {
		t.Fatal("turn stayed with the departed seat")
	}
	if after.SwitchSeq <= before.SwitchSeq {
		t.Fatalf("switchSeq did not advance: %d -> %d", before.SwitchSeq, after.SwitchSeq)
	}
}
