package match

import (
	"time"

	"moodclash/deck"
	"moodclash/internal/codec"
	"moodclash/session"
)

// Broadcast helpers. Callers hold m.mu; nextSeq keeps every envelope of a
// match strictly ordered regardless of payload kind.

func (m *Match) nextSeq() uint64 {
	m.serverSeq++
	return m.serverSeq
}

func (m *Match) wrap(payload any) *codec.ServerEnvelope {
	env, err := codec.Wrap(m.ID, m.nextSeq(), payload)
	if err != nil {
		m.log.Error().Err(err).Msg("wrap envelope failed")
		return nil
	}
	return env
}

func (m *Match) sendToUser(userID uint64, env *codec.ServerEnvelope) {
	if env == nil {
		return
	}
	data, err := codec.Encode(env)
	if err != nil {
		m.log.Error().Err(err).Msg("encode envelope failed")
		return
	}
	m.broadcast(userID, data)
}

func (m *Match) broadcastToAll(env *codec.ServerEnvelope) {
	if env == nil {
		return
	}
	data, err := codec.Encode(env)
	if err != nil {
		m.log.Error().Err(err).Msg("encode envelope failed")
		return
	}
	if m.ledger != nil {
		encoded := make([]byte, len(data))
		copy(encoded, data)
		go m.ledger.AppendEvent(m.ID, env, encoded)
	}
	for userID := range m.players {
		m.broadcast(userID, data)
	}
}

func (m *Match) sendWelcome(userID uint64, pid string, seat session.Seat, role session.Role) {
	m.sendToUser(userID, m.wrap(&codec.Welcome{
		ParticipantID: pid,
		Seat:          seat,
		Role:          role.String(),
	}))
}

func (m *Match) sendSnapshot(userID uint64) {
	snap := m.game.Snapshot()
	m.sendToUser(userID, m.wrap(&snap))
}

func (m *Match) broadcastSnapshotAll() {
	snap := m.game.Snapshot()
	m.broadcastToAll(m.wrap(&snap))
}

func (m *Match) broadcastSeatUpdate(seat session.Seat, pid string, deckID deck.ID, left bool) {
	m.broadcastToAll(m.wrap(&codec.SeatUpdate{
		Seat:          seat,
		ParticipantID: pid,
		DeckID:        byte(deckID),
		Left:          left,
	}))
}

func (m *Match) broadcastTurnChanged() {
	turn := m.game.Turn()
	if !turn.Started {
		return
	}
	payload := &codec.TurnChanged{
		Seat:      turn.CurrentSeat,
		SwitchSeq: turn.SwitchSeq,
	}
	if !turn.Deadline.IsZero() {
		payload.DeadlineMs = turn.Deadline.UnixMilli()
	}
	m.broadcastToAll(m.wrap(payload))
}

func (m *Match) broadcastActionAdmitted(action session.PlayedAction) {
	m.broadcastToAll(m.wrap(&codec.ActionAdmitted{
		Seat:          action.Seat,
		ActionID:      action.ActionID,
		DeckID:        byte(action.DeckID),
		SequenceIndex: action.SequenceIndex,
	}))
}

func (m *Match) broadcastEvaluationStarted() {
	env := codec.EvaluationStartedEnvelope(m.ID, m.nextSeq())
	m.broadcastToAll(env)
}

func (m *Match) broadcastEvaluationEnded(salvaged bool, rationale string) {
	m.broadcastToAll(m.wrap(&codec.EvaluationEnded{
		Salvaged:  salvaged,
		Rationale: rationale,
	}))
}

func (m *Match) broadcastMoodChanges(changes []session.MoodChange) {
	for _, change := range changes {
		m.broadcastToAll(m.wrap(&codec.MoodUpdated{
			Seat:     change.Seat,
			Category: change.Category.String(),
			Delta:    change.Delta,
			Value:    change.Value,
		}))
	}
}

func (m *Match) broadcastGameOver(seat session.Seat, category string, forced bool) {
	m.broadcastToAll(m.wrap(&codec.GameOver{
		WinningSeat: seat,
		Category:    category,
		Forced:      forced,
	}))
}

// persistHistoryLocked writes a terminal summary for every connected user.
func (m *Match) persistHistoryLocked() {
	if m.ledger == nil {
		return
	}
	endedAt := time.Now().UTC()

	summary := map[string]any{
		"match_id": m.ID,
		"phase":    m.game.Phase().String(),
	}
	if result, ok := m.game.Result(); ok {
		summary["winning_seat"] = result.WinningSeat
		summary["winning_category"] = result.WinningCategory.String()
	}
	for _, mood := range m.game.Moods() {
		summary[mood.Category.String()] = mood.Value
	}

	for userID, conn := range m.players {
		perUser := make(map[string]any, len(summary)+1)
		for k, v := range summary {
			perUser[k] = v
		}
		if seat := m.game.SeatOf(conn.ParticipantID); seat != session.InvalidSeat {
			perUser["seat"] = seat
		}
		go m.ledger.UpsertMatchHistory(userID, m.ID, endedAt, perUser)
	}
}
