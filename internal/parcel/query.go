package parcel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/mapchat/internal/apperr"
	"github.com/sells-group/mapchat/internal/db"
	"github.com/sells-group/mapchat/internal/geojson"
)

const (
	// DefaultLimit bounds queries that don't specify their own cap.
	DefaultLimit = 100

	// MaxLimit is the hard ceiling; MapPLUTO has ~860k lots and an
	// unbounded result set is never useful to a chat client.
	MaxLimit = 1000
)

// Engine runs area-scoped parcel queries against gis.mappluto. The spatial
// relation is ST_Intersects against the area polygon rather than centroid
// containment, so large lots straddling the area boundary still match.
// Attribute predicates are ANDed with the spatial test, results are ordered
// by BBL for reproducibility, and the limit is applied in SQL.
type Engine struct {
	pool db.Pool
}

// NewEngine creates an Engine over an existing pool.
func NewEngine(pool db.Pool) *Engine {
	return &Engine{pool: pool}
}

const selectColumns = `bbl, borough, address, land_use, lot_area, year_built, zoning_district, num_floors, assessed_total, ST_AsGeoJSON(geom)`

// Query returns the tax lots intersecting areaGeometry that satisfy every
// supplied predicate, ordered by BBL ascending, capped at limit. The engine
// never retries; an unreachable dataset surfaces as UpstreamUnavailable for
// the caller to retry with backoff.
func (e *Engine) Query(ctx context.Context, areaGeometry json.RawMessage, preds Predicates, limit int) ([]Record, error) {
	areaJSON, err := queryGeometry(areaGeometry)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	where := []string{"ST_Intersects(geom, ST_SetSRID(ST_GeomFromGeoJSON($1), 4326))"}
	args := []any{string(areaJSON)}

	addArg := func(clause string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if preds.LandUse != nil {
		addArg("land_use = $%d", *preds.LandUse)
	}
	if preds.MinLotArea != nil {
		addArg("lot_area >= $%d", *preds.MinLotArea)
	}
	if preds.MaxYearBuilt != nil {
		addArg("year_built > 0 AND year_built <= $%d", *preds.MaxYearBuilt)
	}
	if preds.ZoningDistrict != nil {
		addArg("zoning_district = $%d", *preds.ZoningDistrict)
	}
	if preds.Borough != nil {
		addArg("borough = $%d", *preds.Borough)
	}

	args = append(args, limit)
	sql := fmt.Sprintf(
		`SELECT %s FROM gis.mappluto WHERE %s ORDER BY bbl LIMIT $%d`,
		selectColumns,
		strings.Join(where, " AND "),
		len(args),
	)

	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "parcel: query")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var geomJSON *string
		if err := rows.Scan(
			&r.BBL, &r.Borough, &r.Address, &r.LandUse, &r.LotArea,
			&r.YearBuilt, &r.ZoningDistrict, &r.NumFloors, &r.AssessedTotal,
			&geomJSON,
		); err != nil {
			return nil, apperr.Wrap(apperr.KindUnexpected, err, "parcel: scan row")
		}
		if geomJSON != nil {
			r.Geometry = json.RawMessage(*geomJSON)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, err, "parcel: iterate rows")
	}
	return records, nil
}

// queryGeometry validates the area geometry and reduces it to a form
// ST_GeomFromGeoJSON accepts. Area-draw tools emit single-feature
// FeatureCollections; the feature's geometry is used directly. Multi-feature
// collections are rejected rather than silently unioned.
func queryGeometry(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "parcel: missing area geometry")
	}

	g, err := geojson.Parse(raw)
	if err != nil {
		return nil, err
	}
	if g.IsEmpty() {
		return nil, apperr.New(apperr.KindInvalidArgument, "parcel: empty area geometry")
	}

	if g.Type != "FeatureCollection" {
		return g.MarshalCanonical()
	}
	if len(g.Features) != 1 {
		return nil, apperr.New(apperr.KindInvalidArgument, "parcel: area must be a single geometry")
	}
	return g.Features[0].Geometry, nil
}
