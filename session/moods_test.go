package session

import (
	"testing"
	"time"
)

func playCurrent(t *testing.T, g *Game, now time.Time) Seat {
	t.Helper()
	cur := currentParticipant(t, g)
	seat := g.SeatOf(cur)
	if _, reason, err := g.TryPlay(cur, 0, now); err != nil || reason != RejectNone {
		t.Fatalf("play: reason=%v err=%v", reason, err)
	}
	return seat
}

// Scenario: seat plays at mood 50, oracle answers +30 for its category;
// the clamp caps the delta at MaxDelta and the turn passes on.
func TestCompleteEvaluation_AppliesClampedDelta(t *testing.T) {
	g, now := newStartedGame(t, 7)
	seat := playCurrent(t, g, now)
	mood, _ := g.Mood(seat)

	out, err := g.CompleteEvaluation(map[MoodCategory]int{mood.Category: 30}, now)
	if err != nil {
		t.Fatalf("CompleteEvaluation err: %v", err)
	}
	if len(out.Changes) != 1 {
		t.Fatalf("changes = %+v", out.Changes)
	}
	ch := out.Changes[0]
	if ch.Seat != seat || ch.Delta != DefaultMaxDelta || ch.Value != DefaultStartValue+DefaultMaxDelta {
		t.Fatalf("change = %+v", ch)
	}
	if g.GateRaised() {
		t.Fatal("gate still raised")
	}
	if g.Phase() != PhaseTurnActive {
		t.Fatalf("phase = %v", g.Phase())
	}
	if out.NextSeat == seat {
		t.Fatal("turn did not pass to opponent")
	}
	if want := now.Add(DefaultTurnDuration); !out.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", out.Deadline, want)
	}
}

// Oracle failure path: zero deltas still release the turn (fail-open).
func TestCompleteEvaluation_FailOpenZeroDeltas(t *testing.T) {
	g, now := newStartedGame(t, 7)
	seat := playCurrent(t, g, now)

	out, err := g.CompleteEvaluation(nil, now)
	if err != nil {
		t.Fatalf("CompleteEvaluation err: %v", err)
	}
	if len(out.Changes) != 0 {
		t.Fatalf("unexpected changes: %+v", out.Changes)
	}
	if out.NextSeat == seat || g.Phase() != PhaseTurnActive {
		t.Fatalf("turn not released: next=%d phase=%v", out.NextSeat, g.Phase())
	}
}

func TestCompleteEvaluation_ExactlyOncePerGate(t *testing.T) {
	g, now := newStartedGame(t, 7)
	playCurrent(t, g, now)

	if _, err := g.CompleteEvaluation(nil, now); err != nil {
		t.Fatalf("first release err: %v", err)
	}
	if _, err := g.CompleteEvaluation(nil, now); err != ErrGateNotRaised {
		t.Fatalf("second release: %v", err)
	}
}

func TestMoodValue_StaysWithinBounds(t *testing.T) {
	g, now := newStartedGame(t, 8)

	// Hammer the same seat's category down past zero, then up past 100.
	for i := 0; i < 6; i++ {
		seat := playCurrent(t, g, now)
		mood, _ := g.Mood(seat)
		delta := -100
		if i >= 3 {
			delta = -DefaultMaxDelta
		}
		out, err := g.CompleteEvaluation(map[MoodCategory]int{mood.Category: delta}, now)
		if err != nil {
			t.Fatalf("release %d err: %v", i, err)
		}
		for _, ch := range out.Changes {
			if ch.Value < 0 || ch.Value > 100 {
				t.Fatalf("value out of bounds: %+v", ch)
			}
		}
		got, _ := g.Mood(seat)
		if got.Value < 0 || got.Value > 100 {
			t.Fatalf("stored value out of bounds: %d", got.Value)
		}
	}
}

// Scenario: a delta lifts a seat to the threshold; GameOver fires once, the
// result is terminal, and no further play or evaluation is honored.
func TestWin_AtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 9
	cfg.StartValue = 90
	g, err := NewGame(cfg, true)
	if err != nil {
		t.Fatalf("NewGame err: %v", err)
	}
	g.Open()
	g.Join("p1", 0)
	g.Join("p2", 1)
	now := time.Unix(1000, 0)
	g.Start(now)

	seat := playCurrent(t, g, now)
	mood, _ := g.Mood(seat)
	out, err := g.CompleteEvaluation(map[MoodCategory]int{mood.Category: 10}, now)
	if err != nil {
		t.Fatalf("release err: %v", err)
	}
	if !out.Won {
		t.Fatalf("no win reported: %+v", out)
	}
	if out.Result.WinningSeat != seat || out.Result.WinningCategory != mood.Category {
		t.Fatalf("result = %+v", out.Result)
	}
	if g.Phase() != PhaseGameOver {
		t.Fatalf("phase = %v", g.Phase())
	}

	// Terminal: no admission, no further evaluation, result is stable.
	_, reason, err := g.TryPlay("p1", 1, now)
	if err != nil || reason != RejectGameOver {
		t.Fatalf("post-win play: reason=%v err=%v", reason, err)
	}
	if _, err := g.CompleteEvaluation(map[MoodCategory]int{mood.Category: 10}, now); err != ErrGameOver {
		t.Fatalf("post-win release: %v", err)
	}
	res, ok := g.Result()
	if !ok || res.WinningSeat != seat {
		t.Fatalf("result lookup = %+v ok=%v", res, ok)
	}
}

// Both seats cross the threshold in one evaluation: the lower roster index
// wins (documented tie-break).
func TestWin_TieBreakLowerSeat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 10
	cfg.StartValue = 95
	g, err := NewGame(cfg, true)
	if err != nil {
		t.Fatalf("NewGame err: %v", err)
	}
	g.Open()
	g.Join("p1", 0)
	g.Join("p2", 1)
	now := time.Unix(1000, 0)
	g.Start(now)

	playCurrent(t, g, now)
	m0, _ := g.Mood(0)
	m1, _ := g.Mood(1)
	out, err := g.CompleteEvaluation(map[MoodCategory]int{m0.Category: 10, m1.Category: 10}, now)
	if err != nil {
		t.Fatalf("release err: %v", err)
	}
	if !out.Won || out.Result.WinningSeat != 0 {
		t.Fatalf("tie-break result = %+v", out)
	}
}
