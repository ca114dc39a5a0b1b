package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const systemPrompt = "You are the mood judge of a two-player card duel. " +
	"Each player champions one mood. Given the acting player's mood and the " +
	"recently played card subjects, answer ONLY with JSON of the form " +
	`{"deltas":{"<mood>":<integer between -20 and 20>},"rationale":"<one sentence>"}. ` +
	"Score how strongly the latest card feeds or starves each listed mood."

const verdictCacheSize = 128

// Scorer turns a play context into clamped mood deltas. Identical contexts
// hit an LRU memo instead of re-billing the provider.
type Scorer struct {
	provider Provider
	timeout  time.Duration
	maxDelta int
	log      zerolog.Logger

	cache *lru.Cache[string, Verdict]
}

func NewScorer(provider Provider, timeout time.Duration, maxDelta int, log zerolog.Logger) (*Scorer, error) {
	if provider == nil {
		return nil, fmt.Errorf("nil provider")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0")
	}
	cache, err := lru.New[string, Verdict](verdictCacheSize)
	if err != nil {
		return nil, err
	}
	return &Scorer{
		provider: provider,
		timeout:  timeout,
		maxDelta: maxDelta,
		log:      log,
		cache:    cache,
	}, nil
}

// Score submits the request and always comes back with a usable verdict:
// clean parse, regex salvage, or zero deltas. The error reports what went
// wrong for logging; callers apply the verdict regardless (fail-open).
func (s *Scorer) Score(ctx context.Context, req Request) (Verdict, error) {
	key := req.digest()
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.provider.Complete(ctx, systemPrompt, buildPrompt(req))
	if err != nil {
		return zeroVerdict(req), fmt.Errorf("oracle call: %w", err)
	}

	verdict, err := parseVerdict(raw, req.Categories, s.maxDelta)
	if err != nil {
		s.log.Warn().Err(err).Str("raw", truncate(raw, 200)).Msg("oracle verdict unusable, applying zero deltas")
		return zeroVerdict(req), nil
	}
	if verdict.Salvaged {
		s.log.Warn().Str("raw", truncate(raw, 200)).Msg("oracle verdict salvaged from free text")
	}
	s.cache.Add(key, verdict)
	return verdict, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Acting player's mood: %s at %d/100.\n", req.MoodCategory, req.MoodValue)
	fmt.Fprintf(&b, "Moods in play: %s.\n", strings.Join(req.Categories, ", "))
	if len(req.RecentSubjects) > 0 {
		b.WriteString("Recent cards, oldest first:\n")
		for _, subj := range req.RecentSubjects {
			fmt.Fprintf(&b, "- %s\n", subj)
		}
	}
	b.WriteString("Judge the latest card.")
	return b.String()
}

func zeroVerdict(req Request) Verdict {
	deltas := make(map[string]int, len(req.Categories))
	for _, c := range req.Categories {
		deltas[c] = 0
	}
	return Verdict{Deltas: deltas}
}

func (r Request) digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|", r.MoodCategory, r.MoodValue)
	for _, s := range r.RecentSubjects {
		fmt.Fprintf(h, "%s|", s)
	}
	for _, c := range r.Categories {
		fmt.Fprintf(h, "%s|", c)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
