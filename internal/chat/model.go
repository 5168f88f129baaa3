// Package chat models chat sessions and their append-only message log, and
// provides Postgres and SQLite persistence drivers.
package chat

import (
	"encoding/json"
	"time"
)

// Visibility controls who may read a chat's scoped data.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part states for tool parts. Only PartStateOutputAvailable parts carry a
// usable output payload.
const (
	PartStateOutputAvailable = "output-available"
	PartStateInputAvailable  = "input-available"
	PartStateStreaming       = "streaming"
)

// Chat is the session metadata consulted by every chat-scoped read gate.
type Chat struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title,omitempty"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Message is one entry in a chat's append-only message log.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"createdAt"`
}

// Part is a structured segment of a message: free text, or the result of a
// single agent tool invocation. Tool parts use Type "tool-<name>" and carry
// the invocation's input and output payloads.
type Part struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	State  string          `json:"state,omitempty"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// maxIDLen bounds chat identifiers; anything longer is rejected as malformed.
const maxIDLen = 64

// ValidID reports whether id is a well-formed chat identifier: non-empty,
// bounded, and limited to URL-safe characters.
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
