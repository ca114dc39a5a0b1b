package session

import "time"

// EvalOutcome is everything the authority must broadcast after one
// evaluation: applied mood changes, the winner if any, and the next turn.
type EvalOutcome struct {
	Changes []MoodChange

	Won    bool
	Result GameResult

	NextSeat  Seat
	SwitchSeq uint64
	Deadline  time.Time
}

// Mood returns a copy of the seat's mood record.
func (g *Game) Mood(seat Seat) (MoodRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.moods[seat]
	if !ok {
		return MoodRecord{}, false
	}
	return *m, true
}

// Moods returns copies of every live mood record in seat order.
func (g *Game) Moods() []MoodRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.moodsLocked()
}

func (g *Game) moodsLocked() []MoodRecord {
	out := make([]MoodRecord, 0, len(g.moods))
	for s := Seat(0); s < MaxSeats; s++ {
		if m, ok := g.moods[s]; ok {
			out = append(out, *m)
		}
	}
	return out
}

// Result returns the terminal result, if set.
func (g *Game) Result() (GameResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.result == nil {
		return GameResult{}, false
	}
	return *g.result, true
}

// CompleteEvaluation is the single turn-release path. Success, parse failure
// and timeout all end here: the caller passes whatever deltas survived
// (possibly none), each is clamped into [-MaxDelta, MaxDelta], values are
// clamped into [0, 100]; the gate drops, and either a winner is recorded or
// the turn switches with a fresh countdown. It must fire exactly once per
// raised gate.
func (g *Game) CompleteEvaluation(deltas map[MoodCategory]int, now time.Time) (*EvalOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.authoritative {
		return nil, ErrAuthorityViolation
	}
	if g.phase == PhaseGameOver {
		// A force-end raced the oracle; the verdict is discarded.
		return nil, ErrGameOver
	}
	if !g.gate || g.phase != PhaseEvaluationPending {
		return nil, ErrGateNotRaised
	}

	out := &EvalOutcome{}

	// Apply to every seat whose category appears, in roster order so the
	// documented tie-break (lower seat index wins) falls out of iteration.
	for _, seat := range g.occupiedSeatsLocked() {
		m := g.moods[seat]
		if m == nil {
			continue
		}
		delta, ok := deltas[m.Category]
		if !ok || delta == 0 {
			continue
		}
		delta = clamp(delta, -g.cfg.MaxDelta, g.cfg.MaxDelta)
		m.Value = clamp(m.Value+delta, 0, 100)
		out.Changes = append(out.Changes, MoodChange{
			Seat:     seat,
			Category: m.Category,
			Delta:    delta,
			Value:    m.Value,
		})
	}

	g.gate = false

	for _, seat := range g.occupiedSeatsLocked() {
		m := g.moods[seat]
		if m != nil && m.Value >= g.cfg.WinThreshold {
			g.result = &GameResult{WinningSeat: seat, WinningCategory: m.Category}
			g.phase = PhaseGameOver
			g.deadline = time.Time{}
			out.Won = true
			out.Result = *g.result
			return out, nil
		}
	}

	acted := g.currentSeat
	other := g.opponentLocked(acted)
	if other == InvalidSeat {
		// Opponent left during evaluation; hold the turn rather than strand
		// the machine in EvaluationPending.
		other = acted
	}
	g.phase = PhaseTurnActive
	g.switchTurnLocked(other, now)
	out.NextSeat = g.currentSeat
	out.SwitchSeq = g.switchSeq
	out.Deadline = g.deadline
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
