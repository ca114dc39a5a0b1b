package session

import "time"

// TryPlay is the single admission decision for a requested play. It accepts
// iff the caller holds the current seat, no evaluation is outstanding and the
// game is live. On acceptance the action is appended to the log, the
// evaluation gate is raised and the machine enters EvaluationPending with the
// countdown frozen until the gate is released.
//
// Only the authority may decide; replicas forward the request and wait for
// the broadcast outcome.
func (g *Game) TryPlay(participantID string, actionID int, now time.Time) (PlayedAction, RejectReason, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.authoritative {
		return PlayedAction{}, RejectNone, ErrAuthorityViolation
	}

	switch g.phase {
	case PhaseUninitialized, PhaseAwaitingRoster:
		return PlayedAction{}, RejectNotInitialized, nil
	case PhaseGameOver:
		return PlayedAction{}, RejectGameOver, nil
	case PhaseEvaluationPending:
		return PlayedAction{}, RejectEvaluationInProgress, nil
	}

	seat, seated := g.seatByPart[participantID]
	if !seated {
		return PlayedAction{}, RejectObserverNotAllowed, nil
	}
	if seat != g.currentSeat {
		return PlayedAction{}, RejectNotYourTurn, nil
	}
	if g.gate {
		return PlayedAction{}, RejectEvaluationInProgress, nil
	}

	entry := g.entries[seat]
	played, err := g.log.append(PlayedAction{
		Seat:     seat,
		ActionID: actionID,
		DeckID:   entry.DeckID,
	})
	if err != nil {
		return PlayedAction{}, RejectNone, err
	}

	g.gate = true
	g.phase = PhaseEvaluationPending
	// Countdown pauses for the acting seat while the oracle scores the play.
	g.deadline = time.Time{}
	return played, RejectNone, nil
}

// GateRaised reports whether a scoring call is outstanding.
func (g *Game) GateRaised() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gate
}
