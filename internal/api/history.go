package api

import (
	"log/slog"
	"net/http"

	"github.com/leadgate/leadgate/internal/validate"
)

const historyErrorMessage = "Network issue loading history."

type historyHandler struct {
	history HistoryService
	logger  *slog.Logger
}

type historyEntry struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// get handles GET /history?session_id=...: bootstrap the session if needed
// and return its turns oldest first. Returns 201 when the welcome turn was
// just created, 200 otherwise.
func (h *historyHandler) get(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if verr := validate.SessionID(sessionID); verr != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Message})
		return
	}

	turns, created, err := h.history.Bootstrap(r.Context(), sessionID)
	if err != nil {
		requestID, _ := requestIDFromContext(r.Context())
		h.logger.Error("history load failed",
			"error", err,
			"session_id", sessionID,
			"request_id", requestID,
		)
		writeJSON(w, http.StatusInternalServerError,
			map[string]any{"error": historyErrorMessage, "session_id": sessionID})
		return
	}

	entries := make([]historyEntry, 0, len(turns))
	for _, t := range turns {
		entries = append(entries, historyEntry{Type: t.Role, Content: t.Content})
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"session_id": sessionID,
		"history":    entries,
	})
}
