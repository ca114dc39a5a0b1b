package session

import "time"

// TurnState is the replicated view of whose turn it is.
type TurnState struct {
	CurrentSeat Seat
	Deadline    time.Time
	Started     bool
	SwitchSeq   uint64
}

// Turn returns the current turn state.
func (g *Game) Turn() TurnState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return TurnState{
		CurrentSeat: g.currentSeat,
		Deadline:    g.deadline,
		Started:     g.phase == PhaseTurnActive || g.phase == PhaseEvaluationPending,
		SwitchSeq:   g.switchSeq,
	}
}

// Phase returns the current machine phase.
func (g *Game) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// HandleTimeout switches the turn directly to the opponent when the countdown
// expired with no admitted action — EvaluationPending is skipped because
// there is nothing to score. Returns true when a switch happened.
func (g *Game) HandleTimeout(now time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.authoritative {
		return false, ErrAuthorityViolation
	}
	if g.phase != PhaseTurnActive {
		return false, nil
	}
	if g.deadline.IsZero() || now.Before(g.deadline) {
		return false, nil
	}

	other := g.opponentLocked(g.currentSeat)
	if other == InvalidSeat {
		// Expired with nobody to hand over to: the opponent left. Drop back
		// to AwaitingRoster so a new joiner restarts the game.
		g.phase = PhaseAwaitingRoster
		g.currentSeat = InvalidSeat
		g.deadline = time.Time{}
		return false, nil
	}
	g.switchTurnLocked(other, now)
	return true, nil
}

// switchTurnLocked hands the turn to seat with a fresh wall-clock deadline.
// Every switch gets the next sequence number so replicas can drop stale or
// duplicate turn broadcasts.
func (g *Game) switchTurnLocked(seat Seat, now time.Time) {
	g.currentSeat = seat
	g.deadline = now.Add(g.cfg.TurnDuration)
	g.switchSeq++
}
