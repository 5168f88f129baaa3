// Package parcel provides the area-scoped spatial query engine over the
// MapPLUTO tax-lot dataset, plus the shapefile loader that populates it.
package parcel

import "encoding/json"

// Record is one MapPLUTO tax lot, keyed by its borough-block-lot number.
// Read-only from the query engine's perspective.
type Record struct {
	BBL            int64           `json:"bbl"`
	Borough        string          `json:"borough"`
	Address        string          `json:"address,omitempty"`
	LandUse        string          `json:"landUse,omitempty"`
	LotArea        float64         `json:"lotArea"`
	YearBuilt      int             `json:"yearBuilt"`
	ZoningDistrict string          `json:"zoningDistrict,omitempty"`
	NumFloors      float64         `json:"numFloors"`
	AssessedTotal  float64         `json:"assessedTotal"`
	Geometry       json.RawMessage `json:"geojson,omitempty"`
}

// Predicates is the set of optional attribute constraints composed
// conjunctively with the spatial intersection test. A nil field imposes no
// constraint.
type Predicates struct {
	LandUse    *string  `json:"landUse,omitempty"`
	MinLotArea *float64 `json:"minLotArea,omitempty"`

	// MaxYearBuilt caps year_built. PLUTO records an unknown build year as
	// 0, so lots with year_built = 0 are excluded from the match rather
	// than treated as predating the cap.
	MaxYearBuilt *int `json:"maxYearBuilt,omitempty"`

	ZoningDistrict *string `json:"zoningDistrict,omitempty"`
	Borough        *string `json:"borough,omitempty"`
}
