// Package geojson models the canonical GeoJSON values exchanged between the
// geometry store, the parcel query engine, and the layer extractors.
//
// Upstream providers (notably ArcGIS-flavored exports) attach envelope fields
// beyond standard GeoJSON: a `crs` annotation and a top-level `properties`
// block on FeatureCollections. Those are stripped on ingress; only canonical
// fields survive. Geometries are treated as immutable once parsed.
package geojson

import (
	"bytes"
	"encoding/json"

	geom "github.com/twpayne/go-geom"
	geomjson "github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/mapchat/internal/apperr"
)

// Geometry is a GeoJSON value restricted to the types this system produces:
// Point, Polygon, MultiPolygon, and FeatureCollection.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Features    []Feature       `json:"features,omitempty"`
}

// Feature is a single GeoJSON feature.
type Feature struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties,omitempty"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
}

// geometryTypes are the simple geometry types accepted by Parse.
var geometryTypes = map[string]bool{
	"Point":        true,
	"Polygon":      true,
	"MultiPolygon": true,
}

// Parse decodes raw JSON into a canonical Geometry. Non-standard envelope
// fields are dropped, and the coordinate structure is verified by decoding
// through go-geom. Returns an InvalidArgument error for anything malformed.
func Parse(raw []byte) (*Geometry, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "geojson: empty payload")
	}

	var g Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "geojson: decode")
	}

	switch {
	case g.Type == "FeatureCollection":
		// Feature-level properties are standard and kept; only the
		// collection-level block is foreign.
		for _, f := range g.Features {
			if f.Type != "Feature" {
				return nil, apperr.New(apperr.KindInvalidArgument, "geojson: feature collection contains non-feature member")
			}
			if err := checkGeometry(f.Geometry); err != nil {
				return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "geojson: invalid feature geometry")
			}
		}
		return &g, nil

	case geometryTypes[g.Type]:
		if err := checkGeometry(raw); err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "geojson: invalid geometry")
		}
		g.Features = nil
		return &g, nil

	default:
		return nil, apperr.New(apperr.KindInvalidArgument, "geojson: unsupported type "+g.Type)
	}
}

// checkGeometry verifies that raw decodes as a GeoJSON geometry with a
// coherent coordinate structure.
func checkGeometry(raw json.RawMessage) error {
	if len(raw) == 0 {
		return apperr.New(apperr.KindInvalidArgument, "geojson: missing geometry")
	}
	var t geom.T
	return geomjson.Unmarshal(raw, &t)
}

// IsEmpty reports whether g carries no usable geometry: a nil value, a
// geometry with no coordinates, or a feature collection with no features.
func (g *Geometry) IsEmpty() bool {
	if g == nil || g.Type == "" {
		return true
	}
	if g.Type == "FeatureCollection" {
		return len(g.Features) == 0
	}
	return emptyCoordinates(g.Coordinates)
}

// IsEmptyRaw reports whether raw carries no usable geometry without requiring
// a full parse. Used as the gating rule for extracted layer items: an item
// whose geometry is absent, null, `{}`, or structurally hollow is dropped.
func IsEmptyRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return true
	}
	var g Geometry
	if err := json.Unmarshal(trimmed, &g); err != nil {
		return true
	}
	return g.IsEmpty()
}

// emptyCoordinates reports whether a coordinates payload is absent or an
// empty array.
func emptyCoordinates(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		return true
	}
	return false
}

// MarshalCanonical encodes g with canonical fields only.
func (g *Geometry) MarshalCanonical() ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, err, "geojson: encode")
	}
	return data, nil
}

// NormalizeFeatureCollection strips non-standard envelope fields (crs, a
// top-level properties block) from a raw FeatureCollection and validates its
// shape. The boolean result is false when raw is not a well-formed
// FeatureCollection; callers on the extraction path skip rather than fail.
func NormalizeFeatureCollection(raw json.RawMessage) (*Geometry, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, false
	}

	var g Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, false
	}
	if g.Type != "FeatureCollection" || len(g.Features) == 0 {
		return nil, false
	}
	for _, f := range g.Features {
		if f.Type != "Feature" || checkGeometry(f.Geometry) != nil {
			return nil, false
		}
	}
	g.Coordinates = nil
	return &g, true
}
