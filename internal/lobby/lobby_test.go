package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"moodclash/deck"
	"moodclash/internal/match"
	"moodclash/internal/oracle"
	"moodclash/session"
)

type silentProvider struct{}

func (silentProvider) Complete(_ context.Context, _ string, _ string) (string, error) {
	return `{"deltas":{}}`, nil
}

func newTestLobby(t *testing.T) *Lobby {
	t.Helper()
	scorer, err := oracle.NewScorer(silentProvider{}, time.Second, 20, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScorer err: %v", err)
	}
	l := New(session.DefaultConfig(), nil, scorer, deck.NewCatalog())
	t.Cleanup(l.Close)
	return l
}

func noopSend(uint64, []byte) {}

func TestQuickStartReusesWaitingMatch(t *testing.T) {
	l := newTestLobby(t)

	first, err := l.QuickStart(1, noopSend)
	if err != nil {
		t.Fatalf("quick start: %v", err)
	}
	second, err := l.QuickStart(2, noopSend)
	if err != nil {
		t.Fatalf("quick start: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("users split across matches %s and %s", first.ID, second.ID)
	}
}

func TestQuickStartSkipsFullMatch(t *testing.T) {
	l := newTestLobby(t)

	first, err := l.QuickStart(1, noopSend)
	if err != nil {
		t.Fatalf("quick start: %v", err)
	}
	if err := first.SubmitEvent(match.Event{Type: match.EventJoin, UserID: 1, DeckID: deck.DeckStreetLife}); err != nil {
		t.Fatalf("join 1: %v", err)
	}
	if err := first.SubmitEvent(match.Event{Type: match.EventJoin, UserID: 2, DeckID: deck.DeckWildNature}); err != nil {
		t.Fatalf("join 2: %v", err)
	}

	third, err := l.QuickStart(3, noopSend)
	if err != nil {
		t.Fatalf("quick start: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("quick start placed user into a running match")
	}
	if len(l.List()) != 2 {
		t.Fatalf("match count = %d, want 2", len(l.List()))
	}
}

func TestReapDropsIdleMatches(t *testing.T) {
	l := newTestLobby(t)

	m, err := l.QuickStart(1, noopSend)
	if err != nil {
		t.Fatalf("quick start: %v", err)
	}

	// Nobody ever joined, so the match has been empty since creation.
	l.reap(0)
	if got := l.Get(m.ID); got != nil {
		t.Fatal("idle match survived reaping")
	}
	if !m.IsClosed() {
		t.Fatal("reaped match still running")
	}
}
