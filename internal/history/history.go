// Package history manages the ordered turn log of chat sessions.
//
// Every session is an append-only sequence of turns. Sequence numbers are
// assigned inside a transaction holding a per-session advisory lock, so
// concurrent writers cannot interleave or collide on the same number.
package history

import (
	"time"
)

// Turn roles. Mirrors the wire-level "type" field of history payloads.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// WelcomeMessage is the canned ai turn appended when a session is first seen.
const WelcomeMessage = "Hello! Welcome to our chat. How can I assist you today?"

// Turn is a single entry in a session's conversation log.
type Turn struct {
	SessionID      string    `json:"session_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SequenceNumber int       `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}
