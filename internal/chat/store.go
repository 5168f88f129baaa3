package chat

import (
	"context"
	"encoding/json"
)

// Store defines persistence for chats, their message log, and the per-chat
// area of interest. Misses surface as apperr.KindNotFound; an unset area is
// a nil geometry with no error, which is a distinct condition.
type Store interface {
	// Chats
	CreateChat(ctx context.Context, c Chat) error
	GetChat(ctx context.Context, id string) (*Chat, error)

	// Messages (append-only, returned in insertion order)
	AppendMessage(ctx context.Context, m Message) error
	ListMessages(ctx context.Context, chatID string) ([]Message, error)

	// Area of interest. PutArea overwrites; areas are never deleted.
	GetArea(ctx context.Context, chatID string) (json.RawMessage, error)
	PutArea(ctx context.Context, chatID string, geometry json.RawMessage) error

	// Lifecycle
	Close() error
}
