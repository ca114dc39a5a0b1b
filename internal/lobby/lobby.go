// Package lobby is the match registry: quick-start placement into a match
// with a free seat, lookup by ID, and reaping of matches nobody is in.
package lobby

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moodclash/deck"
	"moodclash/internal/ledger"
	"moodclash/internal/match"
	"moodclash/internal/oracle"
	"moodclash/session"
)

const (
	defaultIdleTTL      = 5 * time.Minute
	defaultReapInterval = 30 * time.Second
)

// Lobby manages all running matches.
type Lobby struct {
	mu      sync.RWMutex
	matches map[string]*match.Match

	cfg     session.Config
	ledger  ledger.Service
	scorer  *oracle.Scorer
	catalog *deck.Catalog

	log zerolog.Logger
}

// New creates a lobby; every match it spawns shares the given ruleset,
// ledger and scorer.
func New(cfg session.Config, ledgerService ledger.Service, scorer *oracle.Scorer, catalog *deck.Catalog) *Lobby {
	return &Lobby{
		matches: make(map[string]*match.Match),
		cfg:     cfg,
		ledger:  ledgerService,
		scorer:  scorer,
		catalog: catalog,
		log:     log.With().Str("component", "lobby").Logger(),
	}
}

// QuickStart finds a match still waiting for its roster, or creates one.
func (l *Lobby) QuickStart(userID uint64, broadcastFn func(userID uint64, data []byte)) (*match.Match, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range l.matches {
		if m.IsClosed() {
			continue
		}
		snap := m.Snapshot()
		if snap.Phase == session.PhaseAwaitingRoster.String() && len(snap.Roster) < session.MaxSeats {
			l.log.Info().Uint64("user", userID).Str("match", m.ID).Msg("quick start into existing match")
			return m, nil
		}
	}

	matchID := uuid.NewString()
	m, err := match.New(matchID, l.cfg, broadcastFn, l.ledger, l.scorer, l.catalog)
	if err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	l.matches[matchID] = m

	l.log.Info().Uint64("user", userID).Str("match", matchID).Msg("quick start created match")
	return m, nil
}

// MatchOf finds the match a user is currently part of, or nil.
func (l *Lobby) MatchOf(userID uint64) *match.Match {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, m := range l.matches {
		if !m.IsClosed() && m.HasParticipant(userID) {
			return m
		}
	}
	return nil
}

// Get returns a match by ID, or nil.
func (l *Lobby) Get(matchID string) *match.Match {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.matches[matchID]
}

// List returns all live match IDs.
func (l *Lobby) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.matches))
	for id := range l.matches {
		ids = append(ids, id)
	}
	return ids
}

// StartReaper stops and drops idle matches until ctx is cancelled.
func (l *Lobby) StartReaper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(defaultReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.reap(defaultIdleTTL)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (l *Lobby) reap(ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, m := range l.matches {
		if !m.IsIdleFor(ttl) {
			continue
		}
		m.Stop()
		delete(l.matches, id)
		l.log.Info().Str("match", id).Msg("reaped idle match")
	}
}

// Close stops every match.
func (l *Lobby) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, m := range l.matches {
		m.Stop()
		delete(l.matches, id)
	}
}
