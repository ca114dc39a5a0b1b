package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"moodclash/internal/auth"
)

// HTTPHandler serves the read side of the ledger: a user's recent match
// history and the full event stream plus oracle verdicts of one match.
type HTTPHandler struct {
	auth   auth.Service
	ledger Service
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(authService auth.Service, ledgerService Service) *HTTPHandler {
	return &HTTPHandler{
		auth:   authService,
		ledger: ledgerService,
	}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/history/recent", h.handleRecent)
	mux.HandleFunc("/api/history/matches/", h.handleMatch)
}

func (h *HTTPHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, ok := h.resolveUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid session token")
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"))
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	items, err := h.ledger.ListRecent(ctx, userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query recent matches failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

func (h *HTTPHandler) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, ok := h.resolveUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid session token")
		return
	}

	matchID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/history/matches/"))
	if matchID == "" || strings.Contains(matchID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	events, err := h.ledger.GetMatchEvents(ctx, userID, matchID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "query match events failed")
		return
	}
	verdicts, err := h.ledger.GetVerdicts(ctx, matchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query match verdicts failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"match_id": matchID,
		"events":   events,
		"verdicts": verdicts,
	})
}

func (h *HTTPHandler) resolveUserID(r *http.Request) (uint64, bool) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return 0, false
	}
	ident, ok := h.auth.ResolveSession(token)
	if !ok {
		return 0, false
	}
	return ident.UserID, true
}

func parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 20
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 20
	}
	if n > defaultRecentLimit {
		return defaultRecentLimit
	}
	return n
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
