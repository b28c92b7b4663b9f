// Package lead manages lead records extracted from chat conversations.
//
// A lead record accumulates contact details for a chat session. Extraction
// runs best-effort in the background after each exchange; the merge rules in
// Store.SaveExtraction guarantee that later extractions never erase fields an
// earlier extraction already filled.
package lead

import (
	"strings"
	"time"
)

// RequestType classifies the intent of a chat session.
type RequestType string

const (
	// RequestTypeSales marks sessions opened from a sales entry point.
	RequestTypeSales RequestType = "sales"

	// RequestTypeGeneric is the default classification.
	RequestTypeGeneric RequestType = "generic"
)

// StatusOpen is the initial status assigned to every new lead.
const StatusOpen = "OPEN"

// NormalizeRequestType maps a client-supplied request type string to a known
// RequestType. Unrecognized or empty values fall back to generic; matching is
// case-insensitive and ignores surrounding whitespace.
func NormalizeRequestType(s string) RequestType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RequestTypeSales):
		return RequestTypeSales
	default:
		return RequestTypeGeneric
	}
}

// Record is a lead for one chat session.
// Empty string fields mean the information has not been captured yet.
type Record struct {
	SessionID   string         `json:"session_id"`
	ContactName string         `json:"contact_name"`
	Email       string         `json:"email"`
	Mobile      string         `json:"mobile"`
	Country     string         `json:"country"`
	Status      string         `json:"status"`
	Remarks     string         `json:"remarks"`
	RequestType string         `json:"request_type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Extraction holds the contact fields pulled from a conversation by the
// extraction pipeline, before merging into the stored record.
type Extraction struct {
	ContactName string
	Email       string
	Mobile      string
	Country     string
	Metadata    map[string]any
}

// Empty reports whether the extraction carries no contact information at all.
func (e Extraction) Empty() bool {
	return e.ContactName == "" && e.Email == "" && e.Mobile == "" && e.Country == ""
}
