// Package geostore resolves stored geometry payloads by opaque content id.
package geostore

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mapchat/internal/apperr"
	"github.com/sells-group/mapchat/internal/db"
	"github.com/sells-group/mapchat/internal/geojson"
)

// Store reads and writes the gis.geojson_data table. Geometry ids are not
// chat-scoped: a content id is treated as public by design, so callers
// holding chat-confidential geometry must not hand its id to unauthorized
// principals upstream.
type Store struct {
	pool db.Pool
}

// New creates a Store over an existing pool.
func New(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Resolve returns the canonical geometry stored under id. Legacy rows wrap
// the geometry in a one-element array container; the wrapper is unwrapped
// transparently and never exposed.
func (s *Store) Resolve(ctx context.Context, id string) (*geojson.Geometry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "geostore: malformed content id")
	}

	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM gis.geojson_data WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "geostore: no geometry for id")
		}
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "geostore: query payload")
	}

	inner, err := unwrap(payload)
	if err != nil {
		return nil, err
	}

	return geojson.Parse(inner)
}

// Put stores a canonical geometry and returns its generated content id.
func (s *Store) Put(ctx context.Context, g *geojson.Geometry) (string, error) {
	if g == nil || g.IsEmpty() {
		return "", apperr.New(apperr.KindInvalidArgument, "geostore: empty geometry")
	}
	payload, err := g.MarshalCanonical()
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO gis.geojson_data (id, payload) VALUES ($1, $2)`, id, payload,
	); err != nil {
		return "", apperr.Wrap(apperr.KindUpstreamUnavailable, err, "geostore: insert payload")
	}
	return id, nil
}

// unwrap peels a one-element array container off a stored payload. Direct
// records pass through untouched.
func unwrap(payload []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "geostore: empty payload")
	}
	if trimmed[0] != '[' {
		return trimmed, nil
	}

	var container []json.RawMessage
	if err := json.Unmarshal(trimmed, &container); err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, err, "geostore: decode container")
	}
	if len(container) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "geostore: empty container")
	}
	return container[0], nil
}
