package session

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"moodclash/deck"
)

// Game is the authoritative session state: roster, observers, turn machine,
// mood scores and the played-action log. A non-authoritative Game refuses
// every mutation; replicas consume Snapshots instead (see Replica).
//
// Methods that depend on the clock take an explicit now so the actor loop and
// tests drive time the same way.
type Game struct {
	cfg           Config
	rng           *rand.Rand
	authoritative bool

	mu sync.Mutex

	// roster
	entries    map[Seat]*RosterEntry
	seatByPart map[string]Seat

	// observer registry: join order is the synchronization-free fallback for
	// classification, observers is append-only until reset.
	joinOrder []string
	observers map[string]struct{}

	// turn state
	phase       Phase
	currentSeat Seat
	deadline    time.Time
	switchSeq   uint64

	// evaluation gate: true while exactly one scoring call is outstanding
	gate bool

	moods  map[Seat]*MoodRecord
	log    actionLog
	result *GameResult
}

// NewGame builds an engine. Only the authoritative node may pass
// authoritative=true; everything else gets a read-only shell.
func NewGame(cfg Config, authoritative bool) (*Game, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Game{
		cfg:           cfg,
		rng:           rand.New(rand.NewSource(seed)),
		authoritative: authoritative,
		phase:         PhaseUninitialized,
		currentSeat:   InvalidSeat,
	}
	g.resetLocked()
	return g, nil
}

// Open moves an Uninitialized session to AwaitingRoster so joins are accepted.
func (g *Game) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.authoritative {
		return ErrAuthorityViolation
	}
	if g.phase != PhaseUninitialized {
		return ErrInvalidState(fmt.Sprintf("open in phase %s", g.phase))
	}
	g.phase = PhaseAwaitingRoster
	return nil
}

// Join registers a participant. The first MaxSeats distinct participants get
// player seats; everyone after that is classified Observer for the life of
// the session rather than erroring out.
func (g *Game) Join(participantID string, deckID deck.ID) (Seat, Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.authoritative {
		return InvalidSeat, RoleObserver, ErrAuthorityViolation
	}
	if g.phase == PhaseUninitialized {
		return InvalidSeat, RoleObserver, ErrNotInitialized
	}
	if !deckID.Valid() {
		return InvalidSeat, RoleObserver, fmt.Errorf("invalid deck %d", deckID)
	}

	if seat, ok := g.seatByPart[participantID]; ok {
		g.entries[seat].Connected = true
		return seat, RolePlayer, nil
	}
	if _, ok := g.observers[participantID]; ok {
		return InvalidSeat, RoleObserver, nil
	}

	g.joinOrder = append(g.joinOrder, participantID)

	seat, ok := g.freeSeatLocked()
	if !ok {
		// CapacityExceeded routes to observer classification, not an error.
		g.observers[participantID] = struct{}{}
		return InvalidSeat, RoleObserver, nil
	}

	g.entries[seat] = &RosterEntry{
		Seat:          seat,
		ParticipantID: participantID,
		DeckID:        deckID,
		Connected:     true,
	}
	g.seatByPart[participantID] = seat

	// A seat granted mid-game (the previous occupant left) starts with a
	// fresh mood; the leaver's record was removed with the seat.
	if (g.phase == PhaseTurnActive || g.phase == PhaseEvaluationPending) && g.moods[seat] == nil {
		g.moods[seat] = &MoodRecord{
			Seat:     seat,
			Category: g.unusedCategoryLocked(),
			Value:    g.cfg.StartValue,
		}
	}
	return seat, RolePlayer, nil
}

// unusedCategoryLocked picks a random category no live mood record holds.
func (g *Game) unusedCategoryLocked() MoodCategory {
	taken := make(map[MoodCategory]bool, len(g.moods))
	for _, m := range g.moods {
		taken[m.Category] = true
	}
	free := make([]MoodCategory, 0, int(MoodCategoryCount))
	for c := MoodCategory(0); c < MoodCategoryCount; c++ {
		if !taken[c] {
			free = append(free, c)
		}
	}
	if len(free) == 0 {
		return MoodCategory(g.rng.Intn(int(MoodCategoryCount)))
	}
	return free[g.rng.Intn(len(free))]
}

// Leave frees the participant's seat and its mood record; the action log is
// retained for evaluation context. If the departing seat held the turn, the
// turn passes to the opponent so the current-seat invariant survives mid-game
// departures.
func (g *Game) Leave(participantID string, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.authoritative {
		return ErrAuthorityViolation
	}
	seat, ok := g.seatByPart[participantID]
	if !ok {
		// Observers just disappear.
		return nil
	}
	delete(g.seatByPart, participantID)
	delete(g.entries, seat)
	delete(g.moods, seat)

	if g.phase == PhaseTurnActive && g.currentSeat == seat {
		if other := g.opponentLocked(seat); other != InvalidSeat {
			g.switchTurnLocked(other, now)
		} else {
			g.phase = PhaseAwaitingRoster
			g.currentSeat = InvalidSeat
			g.deadline = time.Time{}
		}
	}
	return nil
}

// RosterReady reports whether both seats are occupied.
func (g *Game) RosterReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries) == MaxSeats
}

// Start fires the AwaitingRoster -> TurnActive transition: random first seat,
// fresh deadline, and a seat-unique random mood category per seat.
func (g *Game) Start(now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.authoritative {
		return ErrAuthorityViolation
	}
	if g.phase != PhaseAwaitingRoster {
		return ErrInvalidState(fmt.Sprintf("start in phase %s", g.phase))
	}
	if len(g.entries) < MaxSeats {
		return ErrRosterIncomplete
	}

	categories := g.rng.Perm(int(MoodCategoryCount))
	seats := g.occupiedSeatsLocked()
	for i, seat := range seats {
		g.moods[seat] = &MoodRecord{
			Seat:     seat,
			Category: MoodCategory(categories[i]),
			Value:    g.cfg.StartValue,
		}
	}

	first := seats[g.rng.Intn(len(seats))]
	g.switchTurnLocked(first, now)
	g.phase = PhaseTurnActive
	return nil
}

// ForceEnd short-circuits any non-terminal state to GameOver. No winner is
// recorded unless one was already set.
func (g *Game) ForceEnd() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.authoritative {
		return ErrAuthorityViolation
	}
	if g.phase == PhaseGameOver {
		return nil
	}
	g.phase = PhaseGameOver
	g.gate = false
	g.deadline = time.Time{}
	return nil
}

// Reset drops every entity and re-enters Uninitialized.
func (g *Game) Reset() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.authoritative {
		return ErrAuthorityViolation
	}
	g.resetLocked()
	return nil
}

func (g *Game) resetLocked() {
	g.entries = make(map[Seat]*RosterEntry, MaxSeats)
	g.seatByPart = make(map[string]Seat, MaxSeats)
	g.joinOrder = nil
	g.observers = make(map[string]struct{})
	g.moods = make(map[Seat]*MoodRecord, MaxSeats)
	g.log = newActionLog(g.cfg.LogCapacity)
	g.phase = PhaseUninitialized
	g.currentSeat = InvalidSeat
	g.deadline = time.Time{}
	g.switchSeq = 0
	g.gate = false
	g.result = nil
}

// --- read-side lookups, safe for any caller ---

// SeatOf returns the seat of a registered player, or InvalidSeat.
func (g *Game) SeatOf(participantID string) Seat {
	g.mu.Lock()
	defer g.mu.Unlock()
	if seat, ok := g.seatByPart[participantID]; ok {
		return seat
	}
	return InvalidSeat
}

// OpponentOf returns the other occupied seat, or InvalidSeat.
func (g *Game) OpponentOf(seat Seat) Seat {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opponentLocked(seat)
}

// IsObserver answers the classification even before the roster settles: the
// explicit set first, join order beyond the seat capacity as the fallback.
func (g *Game) IsObserver(participantID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.observers[participantID]; ok {
		return true
	}
	if _, ok := g.seatByPart[participantID]; ok {
		return false
	}
	for i, id := range g.joinOrder {
		if id == participantID {
			return i >= MaxSeats
		}
	}
	return false
}

// Entry returns a copy of the roster entry at seat.
func (g *Game) Entry(seat Seat) (RosterEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[seat]
	if !ok {
		return RosterEntry{}, false
	}
	return *e, true
}

func (g *Game) opponentLocked(seat Seat) Seat {
	for s := range g.entries {
		if s != seat {
			return s
		}
	}
	return InvalidSeat
}

func (g *Game) freeSeatLocked() (Seat, bool) {
	for s := Seat(0); s < MaxSeats; s++ {
		if _, occupied := g.entries[s]; !occupied {
			return s, true
		}
	}
	return InvalidSeat, false
}

func (g *Game) occupiedSeatsLocked() []Seat {
	seats := make([]Seat, 0, MaxSeats)
	for s := Seat(0); s < MaxSeats; s++ {
		if _, ok := g.entries[s]; ok {
			seats = append(seats, s)
		}
	}
	return seats
}
