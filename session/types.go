package session

import (
	"encoding/json"
	"fmt"

	"moodclash/deck"
)

// Seat identifies one of the decision-making slots. Stable for the session
// lifetime of its occupant.
type Seat uint8

const InvalidSeat Seat = 255

// MaxSeats is the roster capacity. Observer classification below hardcodes
// nothing else; raising this is a config change, not a rewrite.
const MaxSeats = 2

// Phase of the turn state machine.
type Phase byte

const (
	PhaseUninitialized Phase = iota
	PhaseAwaitingRoster
	PhaseTurnActive
	PhaseEvaluationPending
	PhaseGameOver
)

var PhaseDictionary = map[Phase]string{
	PhaseUninitialized:     "uninitialized",
	PhaseAwaitingRoster:    "awaiting_roster",
	PhaseTurnActive:        "turn_active",
	PhaseEvaluationPending: "evaluation_pending",
	PhaseGameOver:          "game_over",
}

func (p Phase) String() string {
	if s, ok := PhaseDictionary[p]; ok {
		return s
	}
	return "unknown"
}

// MoodCategory is the fixed enumerated set the oracle scores against. Each
// seat is bound to exactly one category for the whole session.
type MoodCategory byte

const (
	MoodJoy MoodCategory = iota
	MoodSorrow
	MoodFury
	MoodSerenity
	MoodDread
	MoodCategoryCount
)

var MoodCategoryDictionary = map[MoodCategory]string{
	MoodJoy:      "joy",
	MoodSorrow:   "sorrow",
	MoodFury:     "fury",
	MoodSerenity: "serenity",
	MoodDread:    "dread",
}

func (m MoodCategory) String() string {
	if s, ok := MoodCategoryDictionary[m]; ok {
		return s
	}
	return "unknown"
}

// Categories travel as their names on the wire, like every other payload.
func (m MoodCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *MoodCategory) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	c, ok := ParseMoodCategory(name)
	if !ok {
		return fmt.Errorf("unknown mood category %q", name)
	}
	*m = c
	return nil
}

// ParseMoodCategory maps a category name back to its value.
func ParseMoodCategory(name string) (MoodCategory, bool) {
	for c, n := range MoodCategoryDictionary {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// Role classifies a connected participant.
type Role byte

const (
	RolePlayer Role = iota
	RoleObserver
)

func (r Role) String() string {
	if r == RoleObserver {
		return "observer"
	}
	return "player"
}

// RejectReason explains a refused play request.
type RejectReason byte

const (
	RejectNone RejectReason = iota
	RejectNotInitialized
	RejectObserverNotAllowed
	RejectNotYourTurn
	RejectEvaluationInProgress
	RejectGameOver
)

var rejectReasonNames = map[RejectReason]string{
	RejectNone:                 "none",
	RejectNotInitialized:       "not_initialized",
	RejectObserverNotAllowed:   "observer_not_allowed",
	RejectNotYourTurn:          "not_your_turn",
	RejectEvaluationInProgress: "evaluation_in_progress",
	RejectGameOver:             "game_over",
}

func (r RejectReason) String() string {
	if s, ok := rejectReasonNames[r]; ok {
		return s
	}
	return "unknown"
}

// RosterEntry is one occupied seat.
type RosterEntry struct {
	Seat          Seat
	ParticipantID string
	DeckID        deck.ID
	Connected     bool
}

// PlayedAction is one admitted play, immutable once appended.
type PlayedAction struct {
	Seat          Seat
	ActionID      int
	DeckID        deck.ID
	SequenceIndex int
}

// MoodRecord is the live score of one seat.
type MoodRecord struct {
	Seat     Seat
	Category MoodCategory
	Value    int
}

// MoodChange describes one applied delta, for MoodUpdated events.
type MoodChange struct {
	Seat     Seat
	Category MoodCategory
	Delta    int
	Value    int
}

// GameResult is terminal and write-once.
type GameResult struct {
	WinningSeat     Seat         `json:"winningSeat"`
	WinningCategory MoodCategory `json:"winningCategory"`
}
