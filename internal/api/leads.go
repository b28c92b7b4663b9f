package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/leadgate/leadgate/internal/validate"
)

const leadsErrorMessage = "Unable to fetch chat info. Please try again later."

type leadsHandler struct {
	leads  LeadService
	logger *slog.Logger
}

// leadView is the wire shape of a lead row. Field names follow the dashboard
// contract, which predates the internal column names.
type leadView struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Mobile    string `json:"mobile_number"`
	Country   string `json:"country"`
	Status    string `json:"status"`
	Remarks   string `json:"remarks"`
}

// list handles GET /leads: all lead records, newest first.
func (h *leadsHandler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.leads.List(r.Context())
	if err != nil {
		requestID, _ := requestIDFromContext(r.Context())
		h.logger.Error("lead list failed", "error", err, "request_id", requestID)
		writeJSON(w, http.StatusInternalServerError,
			map[string]any{"error": leadsErrorMessage})
		return
	}

	views := make([]leadView, 0, len(records))
	for _, rec := range records {
		views = append(views, leadView{
			SessionID: rec.SessionID,
			Name:      rec.ContactName,
			Email:     rec.Email,
			Mobile:    rec.Mobile,
			Country:   rec.Country,
			Status:    rec.Status,
			Remarks:   rec.Remarks,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"leads": views})
}

type leadUpdateRequest struct {
	SessionID string  `json:"session_id"`
	Status    *string `json:"status"`
	Remarks   *string `json:"remarks"`
}

// update handles PATCH /chat-info: set status and/or remarks on a lead.
// Omitted fields are left untouched.
func (h *leadsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req leadUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			map[string]any{"success": false, "error": "Invalid JSON body"})
		return
	}

	if verr := validate.SessionID(req.SessionID); verr != nil {
		writeJSON(w, http.StatusBadRequest,
			map[string]any{"success": false, "error": verr.Message})
		return
	}
	if req.Status == nil && req.Remarks == nil {
		writeJSON(w, http.StatusBadRequest,
			map[string]any{"success": false, "error": "Nothing to update: provide status or remarks"})
		return
	}

	if err := h.leads.Update(r.Context(), req.SessionID, req.Status, req.Remarks); err != nil {
		requestID, _ := requestIDFromContext(r.Context())
		h.logger.Error("lead update failed",
			"error", err,
			"session_id", req.SessionID,
			"request_id", requestID,
		)
		writeJSON(w, http.StatusInternalServerError,
			map[string]any{"success": false, "error": leadsErrorMessage})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Chat info updated successfully",
	})
}

// delete handles DELETE /chat-info/{session_id}: remove a lead record.
// Reports whether a record was actually deleted.
func (h *leadsHandler) delete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if verr := validate.SessionID(sessionID); verr != nil {
		writeJSON(w, http.StatusBadRequest,
			map[string]any{"success": false, "error": verr.Message})
		return
	}

	deleted, err := h.leads.Delete(r.Context(), sessionID)
	if err != nil {
		requestID, _ := requestIDFromContext(r.Context())
		h.logger.Error("lead delete failed",
			"error", err,
			"session_id", sessionID,
			"request_id", requestID,
		)
		writeJSON(w, http.StatusInternalServerError,
			map[string]any{"success": false, "error": leadsErrorMessage})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": deleted,
	})
}
