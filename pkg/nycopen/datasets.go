package nycopen

import (
	"context"
	"encoding/json"
)

// Park is one row of the Parks Properties dataset.
type Park struct {
	ID       string          `json:"gispropnum"`
	Name     string          `json:"signname"`
	Borough  string          `json:"borough"`
	Acres    string          `json:"acres"`
	Category string          `json:"typecategory"`
	Geometry json.RawMessage `json:"multipolygon"`
}

// CensusBlock is one row of the 2020 Census Blocks dataset.
type CensusBlock struct {
	GeoID     string          `json:"geoid"`
	Borough   string          `json:"boroname"`
	BlockCode string          `json:"cb2020"`
	TractCode string          `json:"ct2020"`
	Geometry  json.RawMessage `json:"the_geom"`
}

// Neighborhood is one row of the Neighborhood Tabulation Areas dataset.
type Neighborhood struct {
	Code     string          `json:"nta2020"`
	Name     string          `json:"ntaname"`
	Borough  string          `json:"boroname"`
	Geometry json.RawMessage `json:"the_geom"`
}

// Parks returns parks matching the filter.
func (c *httpClient) Parks(ctx context.Context, f Filter) ([]Park, error) {
	params, err := f.buildParams(c.pageLimit, "multipolygon", "signname", "borough")
	if err != nil {
		return nil, err
	}
	var rows []Park
	if err := c.query(ctx, datasetParks, params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// CensusBlocks returns census blocks matching the filter. Block rows carry no
// searchable name; the Name filter is ignored.
func (c *httpClient) CensusBlocks(ctx context.Context, f Filter) ([]CensusBlock, error) {
	params, err := f.buildParams(c.pageLimit, "the_geom", "", "boroname")
	if err != nil {
		return nil, err
	}
	var rows []CensusBlock
	if err := c.query(ctx, datasetCensusBlocks, params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Neighborhoods returns neighborhood tabulation areas matching the filter.
func (c *httpClient) Neighborhoods(ctx context.Context, f Filter) ([]Neighborhood, error) {
	params, err := f.buildParams(c.pageLimit, "the_geom", "ntaname", "boroname")
	if err != nil {
		return nil, err
	}
	var rows []Neighborhood
	if err := c.query(ctx, datasetNeighborhoods, params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
