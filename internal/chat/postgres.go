package chat

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mapchat/internal/apperr"
	"github.com/sells-group/mapchat/internal/db"
)

// PostgresStore implements Store on the gis.chats/messages/areas tables.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore over an existing pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateChat implements Store.
func (s *PostgresStore) CreateChat(ctx context.Context, c Chat) error {
	sql := `
		INSERT INTO gis.chats (id, user_id, title, visibility)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, sql, c.ID, c.UserID, c.Title, string(c.Visibility))
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, err, "chat: create chat")
	}
	return nil
}

// GetChat implements Store.
func (s *PostgresStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	sql := `
		SELECT id, user_id, title, visibility, created_at
		FROM gis.chats WHERE id = $1
	`
	var c Chat
	var visibility string
	err := s.pool.QueryRow(ctx, sql, id).Scan(&c.ID, &c.UserID, &c.Title, &visibility, &c.CreatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "chat: not found")
		}
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "chat: get chat")
	}
	c.Visibility = Visibility(visibility)
	return &c, nil
}

// AppendMessage implements Store.
func (s *PostgresStore) AppendMessage(ctx context.Context, m Message) error {
	parts, err := json.Marshal(m.Parts)
	if err != nil {
		return apperr.Wrap(apperr.KindUnexpected, err, "chat: encode parts")
	}
	sql := `
		INSERT INTO gis.messages (id, chat_id, role, parts)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, sql, m.ID, m.ChatID, string(m.Role), parts); err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, err, "chat: append message")
	}
	return nil
}

// ListMessages implements Store. Messages come back in insertion order so the
// layer extractors see the log exactly as it grew.
func (s *PostgresStore) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	sql := `
		SELECT id, chat_id, role, parts, created_at
		FROM gis.messages
		WHERE chat_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.pool.Query(ctx, sql, chatID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "chat: list messages")
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var role string
		var parts []byte
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &parts, &m.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindUnexpected, err, "chat: scan message")
		}
		m.Role = Role(role)
		if err := json.Unmarshal(parts, &m.Parts); err != nil {
			return nil, apperr.Wrap(apperr.KindUnexpected, err, "chat: decode parts")
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "chat: iterate messages")
	}
	return msgs, nil
}

// GetArea implements Store. A chat with no defined area returns nil with no
// error.
func (s *PostgresStore) GetArea(ctx context.Context, chatID string) (json.RawMessage, error) {
	sql := `SELECT geometry FROM gis.areas WHERE chat_id = $1`
	var geometry []byte
	err := s.pool.QueryRow(ctx, sql, chatID).Scan(&geometry)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "chat: get area")
	}
	return geometry, nil
}

// PutArea implements Store.
func (s *PostgresStore) PutArea(ctx context.Context, chatID string, geometry json.RawMessage) error {
	sql := `
		INSERT INTO gis.areas (chat_id, geometry)
		VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET
			geometry = EXCLUDED.geometry,
			updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, sql, chatID, []byte(geometry)); err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, err, "chat: put area")
	}
	return nil
}

// Close implements Store. The pool is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}
