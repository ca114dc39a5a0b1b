package session

type RosterSnapshot struct {
	Seat          Seat   `json:"seat"`
	ParticipantID string `json:"participantId"`
	DeckID        byte   `json:"deckId"`
	Connected     bool   `json:"connected"`
}

type MoodSnapshot struct {
	Seat     Seat   `json:"seat"`
	Category string `json:"category"`
	Value    int    `json:"value"`
}

type ActionSnapshot struct {
	Seat          Seat `json:"seat"`
	ActionID      int  `json:"actionId"`
	DeckID        byte `json:"deckId"`
	SequenceIndex int  `json:"sequenceIndex"`
}

// Snapshot is the full read-only state the authority broadcasts. Replicas
// reconstruct countdowns from DeadlineMs (a wall-clock timestamp), never from
// a relative counter.
type Snapshot struct {
	Phase       string           `json:"phase"`
	CurrentSeat Seat             `json:"currentSeat"`
	DeadlineMs  int64            `json:"deadlineMs"`
	SwitchSeq   uint64           `json:"switchSeq"`
	Gate        bool             `json:"evaluationPending"`
	Roster      []RosterSnapshot `json:"roster"`
	Observers   int              `json:"observers"`
	Moods       []MoodSnapshot   `json:"moods"`
	Actions     []ActionSnapshot `json:"actions"`
	Result      *GameResult      `json:"result,omitempty"`
}

func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{
		Phase:       g.phase.String(),
		CurrentSeat: g.currentSeat,
		SwitchSeq:   g.switchSeq,
		Gate:        g.gate,
		Observers:   len(g.observers),
	}
	if !g.deadline.IsZero() {
		s.DeadlineMs = g.deadline.UnixMilli()
	}
	for seat := Seat(0); seat < MaxSeats; seat++ {
		if e, ok := g.entries[seat]; ok {
			s.Roster = append(s.Roster, RosterSnapshot{
				Seat:          e.Seat,
				ParticipantID: e.ParticipantID,
				DeckID:        byte(e.DeckID),
				Connected:     e.Connected,
			})
		}
	}
	for _, m := range g.moodsLocked() {
		s.Moods = append(s.Moods, MoodSnapshot{
			Seat:     m.Seat,
			Category: m.Category.String(),
			Value:    m.Value,
		})
	}
	for _, a := range g.log.all() {
		s.Actions = append(s.Actions, ActionSnapshot{
			Seat:          a.Seat,
			ActionID:      a.ActionID,
			DeckID:        byte(a.DeckID),
			SequenceIndex: a.SequenceIndex,
		})
	}
	if g.result != nil {
		r := *g.result
		s.Result = &r
	}
	return s
}
