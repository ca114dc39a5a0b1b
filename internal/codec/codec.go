// Package codec defines the JSON envelopes exchanged between the
// authoritative match server and its replica clients, plus the sender-role
// constraints: mutating kinds are only ever honored from players, and every
// server broadcast carries a monotonic sequence so replicas can discard
// stale or duplicate state.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"moodclash/session"
)

// ClientKind discriminates client -> server messages.
type ClientKind string

const (
	ClientJoin     ClientKind = "join"
	ClientPlay     ClientKind = "play"
	ClientForceEnd ClientKind = "forceEnd"
	ClientReset    ClientKind = "reset"
)

type JoinRequest struct {
	DeckID byte `json:"deckId"`
}

type PlayRequest struct {
	ActionID int `json:"actionId"`
}

type ClientEnvelope struct {
	Kind    ClientKind `json:"kind"`
	MatchID string     `json:"matchId,omitempty"`

	Join *JoinRequest `json:"join,omitempty"`
	Play *PlayRequest `json:"play,omitempty"`
}

// DecodeClient parses and shape-checks one client message.
func DecodeClient(data []byte) (ClientEnvelope, error) {
	var env ClientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientEnvelope{}, fmt.Errorf("decode client envelope: %w", err)
	}
	switch env.Kind {
	case ClientJoin:
		if env.Join == nil {
			return ClientEnvelope{}, fmt.Errorf("join envelope without payload")
		}
	case ClientPlay:
		if env.Play == nil {
			return ClientEnvelope{}, fmt.Errorf("play envelope without payload")
		}
	case ClientForceEnd, ClientReset:
	default:
		return ClientEnvelope{}, fmt.Errorf("unknown client kind %q", env.Kind)
	}
	return env, nil
}

// senderRoles is the explicit direction constraint: which roles may send
// which kinds. Anything absent is observer-safe.
var senderRoles = map[ClientKind]session.Role{
	ClientPlay:     session.RolePlayer,
	ClientForceEnd: session.RolePlayer,
	ClientReset:    session.RolePlayer,
}

// ValidateSender rejects mutating kinds from non-player senders before they
// ever reach the engine.
func ValidateSender(kind ClientKind, role session.Role) error {
	required, restricted := senderRoles[kind]
	if !restricted {
		return nil
	}
	if role != required {
		return fmt.Errorf("kind %q not allowed from role %s", kind, role)
	}
	return nil
}

// ServerKind discriminates server -> client messages.
type ServerKind string

const (
	ServerWelcome           ServerKind = "welcome"
	ServerSnapshot          ServerKind = "snapshot"
	ServerSeatUpdate        ServerKind = "seatUpdate"
	ServerTurnChanged       ServerKind = "turnChanged"
	ServerActionAdmitted    ServerKind = "actionAdmitted"
	ServerActionRejected    ServerKind = "actionRejected"
	ServerEvaluationStarted ServerKind = "evaluationStarted"
	ServerEvaluationEnded   ServerKind = "evaluationEnded"
	ServerMoodUpdated       ServerKind = "moodUpdated"
	ServerGameOver          ServerKind = "gameOver"
	ServerError             ServerKind = "error"
)

type Welcome struct {
	ParticipantID string       `json:"participantId"`
	Seat          session.Seat `json:"seat"`
	Role          string       `json:"role"`
}

type SeatUpdate struct {
	Seat          session.Seat `json:"seat"`
	ParticipantID string       `json:"participantId"`
	DeckID        byte         `json:"deckId"`
	Left          bool         `json:"left,omitempty"`
}

type TurnChanged struct {
	Seat       session.Seat `json:"seat"`
	SwitchSeq  uint64       `json:"switchSeq"`
	DeadlineMs int64        `json:"deadlineMs"`
}

type ActionAdmitted struct {
	Seat          session.Seat `json:"seat"`
	ActionID      int          `json:"actionId"`
	DeckID        byte         `json:"deckId"`
	SequenceIndex int          `json:"sequenceIndex"`
}

type ActionRejected struct {
	Reason string `json:"reason"`
}

type MoodUpdated struct {
	Seat     session.Seat `json:"seat"`
	Category string       `json:"category"`
	Delta    int          `json:"delta"`
	Value    int          `json:"value"`
}

type EvaluationEnded struct {
	Salvaged  bool   `json:"salvaged,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

type GameOver struct {
	WinningSeat session.Seat `json:"winningSeat"`
	Category    string       `json:"category,omitempty"`
	Forced      bool         `json:"forced,omitempty"`
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ServerEnvelope struct {
	MatchID    string     `json:"matchId"`
	ServerSeq  uint64     `json:"serverSeq"`
	ServerTsMs int64      `json:"serverTsMs"`
	Kind       ServerKind `json:"kind"`

	Welcome           *Welcome          `json:"welcome,omitempty"`
	Snapshot          *session.Snapshot `json:"snapshot,omitempty"`
	SeatUpdate        *SeatUpdate       `json:"seatUpdate,omitempty"`
	TurnChanged       *TurnChanged      `json:"turnChanged,omitempty"`
	ActionAdmitted    *ActionAdmitted   `json:"actionAdmitted,omitempty"`
	ActionRejected    *ActionRejected   `json:"actionRejected,omitempty"`
	EvaluationEnded   *EvaluationEnded  `json:"evaluationEnded,omitempty"`
	MoodUpdated       *MoodUpdated      `json:"moodUpdated,omitempty"`
	GameOver          *GameOver         `json:"gameOver,omitempty"`
	Error             *ErrorResponse    `json:"error,omitempty"`
}

// Wrap stamps the common fields onto a payload.
func Wrap(matchID string, serverSeq uint64, payload any) (*ServerEnvelope, error) {
	env := &ServerEnvelope{
		MatchID:    matchID,
		ServerSeq:  serverSeq,
		ServerTsMs: time.Now().UnixMilli(),
	}
	switch p := payload.(type) {
	case *Welcome:
		env.Kind = ServerWelcome
		env.Welcome = p
	case *session.Snapshot:
		env.Kind = ServerSnapshot
		env.Snapshot = p
	case *SeatUpdate:
		env.Kind = ServerSeatUpdate
		env.SeatUpdate = p
	case *TurnChanged:
		env.Kind = ServerTurnChanged
		env.TurnChanged = p
	case *ActionAdmitted:
		env.Kind = ServerActionAdmitted
		env.ActionAdmitted = p
	case *ActionRejected:
		env.Kind = ServerActionRejected
		env.ActionRejected = p
	case *EvaluationEnded:
		env.Kind = ServerEvaluationEnded
		env.EvaluationEnded = p
	case *MoodUpdated:
		env.Kind = ServerMoodUpdated
		env.MoodUpdated = p
	case *GameOver:
		env.Kind = ServerGameOver
		env.GameOver = p
	case *ErrorResponse:
		env.Kind = ServerError
		env.Error = p
	case nil:
		return nil, fmt.Errorf("nil payload")
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}
	return env, nil
}

// Encode marshals a server envelope for the wire.
func Encode(env *ServerEnvelope) ([]byte, error) {
	return json.Marshal(env)
}

// EvaluationStartedEnvelope builds the bare started marker (no payload body).
func EvaluationStartedEnvelope(matchID string, serverSeq uint64) *ServerEnvelope {
	return &ServerEnvelope{
		MatchID:    matchID,
		ServerSeq:  serverSeq,
		ServerTsMs: time.Now().UnixMilli(),
		Kind:       ServerEvaluationStarted,
	}
}
