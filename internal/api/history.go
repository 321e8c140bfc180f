package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/NTillmann/davinci-fireplace-ha/internal/fireplace"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// handleHistory returns recent property transitions, newest first.
//
// Query parameters:
//   - property: filter to one property (optional)
//   - limit: maximum entries (default 50, max 200)
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "state history unavailable")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var key string
	if raw := r.URL.Query().Get("property"); raw != "" {
		p, err := fireplace.ParseProperty(raw)
		if err != nil {
			writeBadRequest(w, fmt.Sprintf("unknown property %q", raw))
			return
		}
		key = p.Key()
	}

	entries, err := s.history.History(r.Context(), key, limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeInternalError(w, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum of %d", maxHistoryLimit)
	}

	return limit, nil
}
