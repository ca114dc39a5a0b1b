package session

// actionLog is the fixed-capacity, append-only record of admitted plays.
// Entries are immutable once written and only a session reset drops them.
type actionLog struct {
	entries []PlayedAction
	cap     int
}

func newActionLog(capacity int) actionLog {
	return actionLog{entries: make([]PlayedAction, 0, capacity), cap: capacity}
}

func (l *actionLog) append(a PlayedAction) (PlayedAction, error) {
	if len(l.entries) >= l.cap {
		return PlayedAction{}, ErrActionLogFull
	}
	a.SequenceIndex = len(l.entries)
	l.entries = append(l.entries, a)
	return a, nil
}

func (l *actionLog) recent(n int) []PlayedAction {
	if n <= 0 || len(l.entries) == 0 {
		return nil
	}
	start := len(l.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]PlayedAction, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

func (l *actionLog) all() []PlayedAction {
	out := make([]PlayedAction, len(l.entries))
	copy(out, l.entries)
	return out
}

// Recent returns copies of the last n admitted plays, oldest first.
func (g *Game) Recent(n int) []PlayedAction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.log.recent(n)
}

// Actions returns a copy of the whole admitted-play log.
func (g *Game) Actions() []PlayedAction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.log.all()
}
