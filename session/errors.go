package session

import "errors"

var (
	// ErrAuthorityViolation is returned by mutating calls on a
	// non-authoritative engine. Callers log it at most; state is untouched.
	ErrAuthorityViolation = errors.New("mutation from non-authoritative caller")

	ErrCapacityExceeded = errors.New("player seats full")
	ErrAlreadyObserver  = errors.New("participant is an observer")
	ErrNotRegistered    = errors.New("participant not registered")
	ErrNotInitialized   = errors.New("session not initialized")
	ErrRosterIncomplete = errors.New("roster incomplete")
	ErrGameOver         = errors.New("game is over")
	ErrGateNotRaised    = errors.New("no evaluation outstanding")
	ErrGateRaised       = errors.New("evaluation already outstanding")
	ErrActionLogFull    = errors.New("action log at capacity")
	ErrInvalidSeat      = errors.New("invalid seat index")
)

type InvalidStateError string

func (e InvalidStateError) Error() string { return "invalid state: " + string(e) }

func ErrInvalidState(msg string) error { return InvalidStateError(msg) }
