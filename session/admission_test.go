package session

import (
	"testing"
	"time"

	"moodclash/deck"
)

func TestTryPlay_BeforeStart(t *testing.T) {
	g := newOpenGame(t, 3)
	g.Join("p1", deck.DeckStreetLife)

	_, reason, err := g.TryPlay("p1", 0, time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reason != RejectNotInitialized {
		t.Fatalf("reason = %v, want NotInitialized", reason)
	}
}

func TestTryPlay_ObserverRejected(t *testing.T) {
	g, now := newStartedGame(t, 3)
	g.Join("spectator", deck.DeckNightCity)

	_, reason, err := g.TryPlay("spectator", 0, now)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reason != RejectObserverNotAllowed {
		t.Fatalf("reason = %v, want ObserverNotAllowed", reason)
	}
}

func TestTryPlay_OutOfTurnRejected(t *testing.T) {
	g, now := newStartedGame(t, 3)

	cur := currentParticipant(t, g)
	other := "p1"
	if cur == "p1" {
		other = "p2"
	}
	_, reason, err := g.TryPlay(other, 0, now)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reason != RejectNotYourTurn {
		t.Fatalf("reason = %v, want NotYourTurn", reason)
	}
}

func TestTryPlay_AcceptRaisesGateAndFreezesCountdown(t *testing.T) {
	g, now := newStartedGame(t, 3)
	cur := currentParticipant(t, g)
	seat := g.SeatOf(cur)

	played, reason, err := g.TryPlay(cur, 7, now)
	if err != nil || reason != RejectNone {
		t.Fatalf("accept failed: reason=%v err=%v", reason, err)
	}
	if played.Seat != seat || played.ActionID != 7 || played.SequenceIndex != 0 {
		t.Fatalf("bad played action: %+v", played)
	}
	if !g.GateRaised() {
		t.Fatal("gate not raised")
	}
	if g.Phase() != PhaseEvaluationPending {
		t.Fatalf("phase = %v, want EvaluationPending", g.Phase())
	}
	if !g.Turn().Deadline.IsZero() {
		t.Fatal("countdown not frozen during evaluation")
	}

	// No second admission while the gate is up, not even for the same seat.
	_, reason, err = g.TryPlay(cur, 8, now)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reason != RejectEvaluationInProgress {
		t.Fatalf("reason = %v, want EvaluationInProgress", reason)
	}
	if len(g.Actions()) != 1 {
		t.Fatalf("log grew to %d during evaluation", len(g.Actions()))
	}
}

func TestTryPlay_AfterGameOverRejected(t *testing.T) {
	g, now := newStartedGame(t, 3)
	if err := g.ForceEnd(); err != nil {
		t.Fatalf("ForceEnd err: %v", err)
	}
	_, reason, err := g.TryPlay(currentParticipant(t, g), 0, now)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reason != RejectGameOver {
		t.Fatalf("reason = %v, want GameOver", reason)
	}
}

func TestTryPlay_LogCapacityBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 3
	cfg.LogCapacity = 2
	g, err := NewGame(cfg, true)
	if err != nil {
		t.Fatalf("NewGame err: %v", err)
	}
	g.Open()
	g.Join("p1", deck.DeckStreetLife)
	g.Join("p2", deck.DeckWildNature)
	now := time.Unix(1000, 0)
	g.Start(now)

	for i := 0; i < 2; i++ {
		cur := currentParticipant(t, g)
		if _, reason, err := g.TryPlay(cur, i, now); err != nil || reason != RejectNone {
			t.Fatalf("play %d: reason=%v err=%v", i, reason, err)
		}
		if _, err := g.CompleteEvaluation(nil, now); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}

	_, _, err = g.TryPlay(currentParticipant(t, g), 9, now)
	if err != ErrActionLogFull {
		t.Fatalf("expected ErrActionLogFull, got %v", err)
	}
	if g.GateRaised() {
		t.Fatal("gate raised despite full log")
	}
}

func TestRecent_BoundedHistory(t *testing.T) {
	g, now := newStartedGame(t, 4)
	for i := 0; i < 5; i++ {
		cur := currentParticipant(t, g)
		if _, reason, err := g.TryPlay(cur, i, now); err != nil || reason != RejectNone {
			t.Fatalf("play %d: reason=%v err=%v", i, reason, err)
		}
		if _, err := g.CompleteEvaluation(nil, now); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}

	recent := g.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("Recent(3) returned %d entries", len(recent))
	}
	for i, a := range recent {
		if a.SequenceIndex != i+2 {
			t.Fatalf("recent[%d].SequenceIndex = %d, want %d", i, a.SequenceIndex, i+2)
		}
	}
}
