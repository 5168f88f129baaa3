package nycopen

import (
	"encoding/json"

	geom "github.com/twpayne/go-geom"
	geomjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"

	"github.com/sells-group/mapchat/internal/apperr"
)

// geoJSONToWKT converts a GeoJSON geometry to WKT for SoQL intersects()
// filters. Single-feature FeatureCollections are unwrapped first, matching
// how area-draw tools emit their geometry.
func geoJSONToWKT(raw json.RawMessage) (string, error) {
	var envelope struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry json.RawMessage `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", apperr.Wrap(apperr.KindInvalidArgument, err, "nycopen: decode geometry")
	}
	if envelope.Type == "FeatureCollection" {
		if len(envelope.Features) != 1 {
			return "", apperr.New(apperr.KindInvalidArgument, "nycopen: feature collection must contain exactly one feature")
		}
		raw = envelope.Features[0].Geometry
	}

	var g geom.T
	if err := geomjson.Unmarshal(raw, &g); err != nil {
		return "", apperr.Wrap(apperr.KindInvalidArgument, err, "nycopen: parse geometry")
	}

	s, err := wkt.Marshal(g)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInvalidArgument, err, "nycopen: encode wkt")
	}
	return s, nil
}
