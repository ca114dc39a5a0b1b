package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type wireVerdict struct {
	Deltas    map[string]int `json:"deltas"`
	Rationale string         `json:"rationale"`
}

// parseVerdict extracts a delta map from the raw completion. Strict JSON
// first; if that fails, a best-effort regex scan for the known category names
// with signed integers. A result with no recognizable category is an error —
// the caller then falls back to zero deltas.
func parseVerdict(raw string, categories []string, maxDelta int) (Verdict, error) {
	if v, ok := parseJSON(raw, categories, maxDelta); ok {
		return v, nil
	}
	if v, ok := salvage(raw, categories, maxDelta); ok {
		return v, nil
	}
	return Verdict{}, fmt.Errorf("no category delta recognized")
}

func parseJSON(raw string, categories []string, maxDelta int) (Verdict, bool) {
	// Models wrap JSON in prose or fences often enough that we cut the first
	// balanced-looking object out instead of decoding the whole reply.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Verdict{}, false
	}

	var wire wireVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return Verdict{}, false
	}
	if len(wire.Deltas) == 0 {
		return Verdict{}, false
	}

	deltas := make(map[string]int)
	for _, cat := range categories {
		if d, ok := wire.Deltas[cat]; ok {
			deltas[cat] = clampDelta(d, maxDelta)
		}
	}
	if len(deltas) == 0 {
		return Verdict{}, false
	}
	return Verdict{Deltas: deltas, Rationale: wire.Rationale}, true
}

// salvage regex-scans for "<category> ... <signed int>" pairs. Best effort
// only: the zero-delta fallback remains the authoritative failure mode.
func salvage(raw string, categories []string, maxDelta int) (Verdict, bool) {
	lower := strings.ToLower(raw)
	deltas := make(map[string]int)
	for _, cat := range categories {
		// The gap allows a short run of prose ("dread drops by -3"); the
		// lazy quantifier keeps the sign with the number.
		re, err := regexp.Compile(regexp.QuoteMeta(strings.ToLower(cat)) + `\D{0,16}?([+-]?\d+)`)
		if err != nil {
			continue
		}
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		d, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		deltas[cat] = clampDelta(d, maxDelta)
	}
	if len(deltas) == 0 {
		return Verdict{}, false
	}
	return Verdict{Deltas: deltas, Salvaged: true}, true
}

func clampDelta(d, maxDelta int) int {
	if d > maxDelta {
		return maxDelta
	}
	if d < -maxDelta {
		return -maxDelta
	}
	return d
}
