package match

import (
	"context"
	"errors"
	"time"

	"moodclash/internal/ledger"
	"moodclash/internal/oracle"
	"moodclash/session"
)

// recentContextPlays bounds how much play history the oracle sees.
const recentContextPlays = 3

// launchEvaluationLocked snapshots the oracle context under the actor lock,
// then scores on a detached goroutine. The verdict is re-injected as an
// EventEvalDone carrying the generation it was minted under; stale
// generations (reset or force-end raced the oracle) are dropped on arrival.
// The scorer fails open, so the goroutine always produces exactly one
// completion event and the turn is always released.
func (m *Match) launchEvaluationLocked(gen uint64, action session.PlayedAction) {
	req := m.buildEvalRequestLocked(action)
	switchSeq := m.game.Turn().SwitchSeq

	go func() {
		verdict, err := m.scorer.Score(context.Background(), req)
		if err != nil {
			m.log.Warn().Err(err).Uint64("gen", gen).Msg("oracle call failed, applying zero deltas")
			verdict = oracle.Verdict{Deltas: map[string]int{}}
		}
		_ = m.SubmitEvent(Event{
			Type:          EventEvalDone,
			EvalGen:       gen,
			EvalSwitchSeq: switchSeq,
			Verdict:       verdict,
		})
	}()
}

func (m *Match) buildEvalRequestLocked(action session.PlayedAction) oracle.Request {
	req := oracle.Request{}

	if mood, ok := m.game.Mood(action.Seat); ok {
		req.MoodCategory = mood.Category.String()
		req.MoodValue = mood.Value
	}
	for _, mood := range m.game.Moods() {
		req.Categories = append(req.Categories, mood.Category.String())
	}
	for _, played := range m.game.Recent(recentContextPlays) {
		card, err := m.catalog.Card(played.DeckID, played.ActionID)
		if err != nil {
			m.log.Warn().Err(err).Int("action", played.ActionID).Msg("unresolvable play in context")
			continue
		}
		req.RecentSubjects = append(req.RecentSubjects, card.Subject)
	}
	return req
}

func (m *Match) handleEvalDone(gen, switchSeq uint64, verdict oracle.Verdict, now time.Time) error {
	if gen != m.evalGen {
		m.log.Info().Uint64("gen", gen).Uint64("current", m.evalGen).Msg("stale verdict discarded")
		return nil
	}

	deltas := make(map[session.MoodCategory]int, len(verdict.Deltas))
	for name, delta := range verdict.Deltas {
		if category, ok := session.ParseMoodCategory(name); ok {
			deltas[category] = delta
		}
	}

	outcome, err := m.game.CompleteEvaluation(deltas, now)
	if err != nil {
		if errors.Is(err, session.ErrGameOver) || errors.Is(err, session.ErrGateNotRaised) {
			m.log.Info().Err(err).Msg("verdict arrived after terminal state, discarded")
			return nil
		}
		return err
	}

	if m.ledger != nil {
		go m.ledger.RecordVerdict(m.ID, ledger.VerdictRecord{
			MatchID:   m.ID,
			SwitchSeq: switchSeq,
			Deltas:    verdict.Deltas,
			Salvaged:  verdict.Salvaged,
			Rationale: verdict.Rationale,
		})
	}

	m.broadcastMoodChanges(outcome.Changes)
	m.broadcastEvaluationEnded(verdict.Salvaged, verdict.Rationale)

	if outcome.Won {
		m.log.Info().Uint8("seat", uint8(outcome.Result.WinningSeat)).
			Str("category", outcome.Result.WinningCategory.String()).Msg("match won")
		m.broadcastGameOver(outcome.Result.WinningSeat, outcome.Result.WinningCategory.String(), false)
		m.persistHistoryLocked()
		return nil
	}

	m.broadcastTurnChanged()
	return nil
}
