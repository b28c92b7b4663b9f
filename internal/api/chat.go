package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/leadgate/leadgate/internal/validate"
)

// maxChatBodyBytes bounds the request body well above the message length
// limit so oversized messages still reach the validator and get its
// user-facing error instead of a connection reset.
const maxChatBodyBytes = 1 << 20

const chatErrorMessage = "Sorry, something went wrong while processing your message. Please try again later."

type chatHandler struct {
	engine    TurnHandler
	validator *validate.Validator
	logger    *slog.Logger
}

type chatRequest struct {
	Input       string `json:"input"`
	SessionID   string `json:"session_id"`
	RequestType string `json:"request_type"`
}

// send handles POST /chat: validate, run the turn, return the model reply.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req chatRequest
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

	input, requestType, verr := h.validator.Input(req.Input, req.RequestType)
	if verr != nil {
		writeJSON(w, http.StatusBadRequest,
			map[string]any{"success": false, "error": verr.Message})
		return
	}

	response, err := h.engine.HandleTurn(r.Context(), input, req.SessionID, requestType)
	if err != nil {
		requestID, _ := requestIDFromContext(r.Context())
		h.logger.Error("chat turn failed",
			"error", err,
			"session_id", req.SessionID,
			"request_id", requestID,
		)
		writeJSON(w, http.StatusInternalServerError,
			map[string]any{"success": false, "error": chatErrorMessage})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"response": response,
	})
}
