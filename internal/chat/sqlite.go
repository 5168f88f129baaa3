package chat

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/mapchat/internal/apperr"
)

// SQLiteStore implements Store using modernc.org/sqlite. It covers chats,
// messages, and areas for local development; parcel queries still require
// Postgres with PostGIS.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode,
// and applies the schema.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.Exec(sqliteMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	visibility TEXT NOT NULL DEFAULT 'private',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	chat_id    TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	parts      TEXT NOT NULL DEFAULT '[]',
	seq        INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_seq ON messages (chat_id, seq);

CREATE TABLE IF NOT EXISTS areas (
	chat_id    TEXT PRIMARY KEY REFERENCES chats(id) ON DELETE CASCADE,
	geometry   TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// CreateChat implements Store.
func (s *SQLiteStore) CreateChat(ctx context.Context, c Chat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chats (id, user_id, title, visibility) VALUES (?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, string(c.Visibility),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, err, "sqlite: create chat")
	}
	return nil
}

// GetChat implements Store.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	var c Chat
	var visibility string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, visibility, created_at FROM chats WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.Title, &visibility, &c.CreatedAt)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "sqlite: chat not found")
		}
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "sqlite: get chat")
	}
	c.Visibility = Visibility(visibility)
	return &c, nil
}

// AppendMessage implements Store. A per-chat sequence number preserves
// insertion order even when timestamps collide.
func (s *SQLiteStore) AppendMessage(ctx context.Context, m Message) error {
	parts, err := json.Marshal(m.Parts)
	if err != nil {
		return apperr.Wrap(apperr.KindUnexpected, err, "sqlite: encode parts")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, parts, seq)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE chat_id = ?))`,
		m.ID, m.ChatID, string(m.Role), string(parts), m.ChatID,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, err, "sqlite: append message")
	}
	return nil
}

// ListMessages implements Store.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, parts, created_at FROM messages WHERE chat_id = ? ORDER BY seq`,
		chatID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "sqlite: list messages")
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var role, parts string
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &parts, &m.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindUnexpected, err, "sqlite: scan message")
		}
		m.Role = Role(role)
		if err := json.Unmarshal([]byte(parts), &m.Parts); err != nil {
			return nil, apperr.Wrap(apperr.KindUnexpected, err, "sqlite: decode parts")
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "sqlite: iterate messages")
	}
	return msgs, nil
}

// GetArea implements Store.
func (s *SQLiteStore) GetArea(ctx context.Context, chatID string) (json.RawMessage, error) {
	var geometry string
	err := s.db.QueryRowContext(ctx,
		`SELECT geometry FROM areas WHERE chat_id = ?`, chatID,
	).Scan(&geometry)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "sqlite: get area")
	}
	return json.RawMessage(geometry), nil
}

// PutArea implements Store.
func (s *SQLiteStore) PutArea(ctx context.Context, chatID string, geometry json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO areas (chat_id, geometry) VALUES (?, ?)
		 ON CONFLICT (chat_id) DO UPDATE SET geometry = excluded.geometry, updated_at = datetime('now')`,
		chatID, string(geometry),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, err, "sqlite: put area")
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
