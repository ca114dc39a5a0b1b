package oracle

import "context"

// Provider is the black-box completion backend. Implementations must respect
// ctx cancellation; the scorer aborts slow calls through it.
type Provider interface {
	Complete(ctx context.Context, systemPrompt string, prompt string) (string, error)
}

// Request is the bounded context sent for one evaluation: the acting seat's
// mood plus the most recent plays (at most three by the caller's contract).
type Request struct {
	MoodCategory string
	MoodValue    int

	// Subjects of the recent plays, oldest first, latest last.
	RecentSubjects []string

	// Categories in play this session; the salvage parser only hunts for
	// these names in free text.
	Categories []string
}

// Verdict is the parsed oracle answer. Deltas are keyed by category name and
// already clamped; Salvaged marks a best-effort regex recovery rather than a
// clean parse.
type Verdict struct {
	Deltas    map[string]int
	Rationale string
	Salvaged  bool
}
