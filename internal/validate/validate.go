// Package validate checks chat request inputs before they reach storage or
// the model. Validation messages are user-facing and returned verbatim in
// API error payloads.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/leadgate/leadgate/internal/lead"
)

// ValidationError describes a rejected input. Message is safe to show to
// end users.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator validates chat inputs against configured limits.
type Validator struct {
	// MaxInputLength is the maximum accepted message length in bytes.
	MaxInputLength int
}

// New creates a Validator. A non-positive maxInputLength falls back to 10000.
func New(maxInputLength int) *Validator {
	if maxInputLength <= 0 {
		maxInputLength = 10000
	}
	return &Validator{MaxInputLength: maxInputLength}
}

// Input validates a chat message and normalizes its request type.
// Returns the trimmed message and the normalized classification, or a
// ValidationError describing why the message was rejected.
//
// Length is checked against the trimmed message, so trailing whitespace
// cannot push an otherwise valid message over the limit. The limit counts
// characters, not bytes, matching the wording shown to the user.
func (v *Validator) Input(text, requestType string) (string, lead.RequestType, *ValidationError) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", "", &ValidationError{
			Field:   "message",
			Message: "Please enter a message before sending.",
		}
	}
	if utf8.RuneCountInString(trimmed) > v.MaxInputLength {
		return "", "", &ValidationError{
			Field:   "message",
			Message: fmt.Sprintf("Your message is too long. Please limit to %d characters.", v.MaxInputLength),
		}
	}
	return trimmed, lead.NormalizeRequestType(requestType), nil
}

// SessionID validates that id is present and a well-formed UUID.
func SessionID(id string) *ValidationError {
	if id == "" {
		return &ValidationError{
			Field:   "session_id",
			Message: "session_id is required",
		}
	}
	if _, err := uuid.Parse(id); err != nil {
		return &ValidationError{
			Field:   "session_id",
			Message: "Invalid session_id format",
		}
	}
	return nil
}
