package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"moodclash/internal/codec"
)

func newTestService(t *testing.T) *SQLiteService {
	t.Helper()
	svc, err := NewSQLiteService(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func envelope(matchID string, seq uint64) *codec.ServerEnvelope {
	env, err := codec.Wrap(matchID, seq, &codec.TurnChanged{Seat: 0, SwitchSeq: seq, DeadlineMs: 1234})
	if err != nil {
		panic(err)
	}
	return env
}

func TestAppendAndGetMatchEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.AppendEvent("m1", envelope("m1", 1), nil)
	svc.AppendEvent("m1", envelope("m1", 2), nil)
	// duplicate seq is silently ignored
	svc.AppendEvent("m1", envelope("m1", 2), nil)
	svc.UpsertMatchHistory(7, "m1", time.Now(), map[string]any{"winner": 0})

	events, err := svc.GetMatchEvents(ctx, 7, "m1")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Seq != 1 || events[1].Seq != 2 {
		t.Fatalf("events out of order: %+v", events)
	}
	if events[0].EventType != string(codec.ServerTurnChanged) {
		t.Fatalf("event type = %q", events[0].EventType)
	}
}

func TestGetMatchEventsUnknownUser(t *testing.T) {
	svc := newTestService(t)
	svc.AppendEvent("m1", envelope("m1", 1), nil)

	_, err := svc.GetMatchEvents(context.Background(), 99, "m1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRecordVerdictIdempotent(t *testing.T) {
	svc := newTestService(t)

	rec := VerdictRecord{
		MatchID:   "m1",
		SwitchSeq: 3,
		Deltas:    map[string]int{"joy": 5, "dread": -2},
		Salvaged:  true,
		Rationale: "matched mood words",
	}
	svc.RecordVerdict("m1", rec)
	svc.RecordVerdict("m1", VerdictRecord{MatchID: "m1", SwitchSeq: 3, Deltas: map[string]int{"joy": 99}})

	got, err := svc.GetVerdicts(context.Background(), "m1")
	if err != nil {
		t.Fatalf("get verdicts: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d verdicts, want 1", len(got))
	}
	if got[0].Deltas["joy"] != 5 || !got[0].Salvaged {
		t.Fatalf("first write was not kept: %+v", got[0])
	}
}

func TestListRecentOrder(t *testing.T) {
	svc := newTestService(t)
	base := time.Unix(1000, 0)

	svc.UpsertMatchHistory(7, "m-old", base, nil)
	svc.UpsertMatchHistory(7, "m-new", base.Add(time.Hour), nil)

	items, err := svc.ListRecent(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].MatchID != "m-new" {
		t.Fatalf("most recent first, got %q", items[0].MatchID)
	}
}

func TestHistoryTrimKeepsRecent(t *testing.T) {
	svc := newTestService(t)
	svc.recentLimit = 2
	base := time.Unix(1000, 0)

	svc.UpsertMatchHistory(7, "m1", base, nil)
	svc.UpsertMatchHistory(7, "m2", base.Add(time.Minute), nil)
	svc.UpsertMatchHistory(7, "m3", base.Add(2*time.Minute), nil)

	items, err := svc.ListRecent(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 after trim", len(items))
	}
	for _, item := range items {
		if item.MatchID == "m1" {
			t.Fatal("oldest entry survived trim")
		}
	}
}
