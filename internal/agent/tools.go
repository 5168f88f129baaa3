package agent

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/sells-group/mapchat/internal/area"
	"github.com/sells-group/mapchat/internal/layers"
	"github.com/sells-group/mapchat/internal/parcel"
	"github.com/sells-group/mapchat/pkg/nycopen"
)

const toolDefineArea = "defineArea"
const toolQueryParcels = "queryParcels"

// Tools executes agent tool calls server-side against the Open Data client,
// the area registry, and the parcel engine. Tool failures are reported in the
// output payload as an error field, never as a Go error: the turn continues
// and the model decides how to recover.
type Tools struct {
	open    nycopen.Client
	areas   *area.Registry
	parcels *parcel.Engine
	log     *zap.Logger
}

// NewTools wires the tool executor.
func NewTools(open nycopen.Client, areas *area.Registry, parcels *parcel.Engine) *Tools {
	return &Tools{
		open:    open,
		areas:   areas,
		parcels: parcels,
		log:     zap.L().With(zap.String("component", "agent.tools")),
	}
}

// geometryFilter is the shared input shape of the dataset lookup tools.
type geometryFilter struct {
	Name        string          `json:"name,omitempty"`
	Borough     string          `json:"borough,omitempty"`
	AreaGeoJSON json.RawMessage `json:"areaGeojson,omitempty"`
	Limit       int             `json:"limit,omitempty"`
}

func (g geometryFilter) toFilter() nycopen.Filter {
	return nycopen.Filter{
		IntersectsGeoJSON: g.AreaGeoJSON,
		Name:              g.Name,
		Borough:           g.Borough,
		Limit:             g.Limit,
	}
}

// analysisInput is the spatialAnalysis tool input. Its fields double as the
// query metadata that layer extraction folds into each result.
type analysisInput struct {
	LayerType       string          `json:"layerType"`
	Query           string          `json:"query"`
	SpatialRelation string          `json:"spatialRelation,omitempty"`
	Filters         string          `json:"filters,omitempty"`
	AreaGeoJSON     json.RawMessage `json:"areaGeojson,omitempty"`
	Limit           int             `json:"limit,omitempty"`
}

type defineAreaInput struct {
	Geometry json.RawMessage `json:"geometry"`
}

type queryParcelsInput struct {
	Predicates parcel.Predicates `json:"predicates"`
	Limit      int               `json:"limit,omitempty"`
}

// Execute dispatches one tool call and returns the output payload. The
// second return is the parts contract's error flag: true when output carries
// an error field.
func (t *Tools) Execute(ctx context.Context, chatID, userID, name string, input json.RawMessage) json.RawMessage {
	out, err := t.dispatch(ctx, chatID, userID, name, input)
	if err != nil {
		t.log.Warn("tool call failed",
			zap.String("tool", name),
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return payload
	}
	return out
}

func (t *Tools) dispatch(ctx context.Context, chatID, userID, name string, input json.RawMessage) (json.RawMessage, error) {
	switch name {
	case layers.ToolFindParks:
		return t.findParks(ctx, input)
	case layers.ToolFindCensusBlocks:
		return t.findCensusBlocks(ctx, input)
	case layers.ToolFindNeighborhoods:
		return t.findNeighborhoods(ctx, input)
	case layers.ToolSpatialAnalysis:
		return t.spatialAnalysis(ctx, input)
	case toolDefineArea:
		return t.defineArea(ctx, chatID, userID, input)
	case toolQueryParcels:
		return t.queryParcels(ctx, chatID, userID, input)
	default:
		payload, _ := json.Marshal(map[string]string{"error": "unknown tool " + name})
		return payload, nil
	}
}

// parkItem is the tool-output shape layer extraction consumes.
type parkItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Borough  string          `json:"borough,omitempty"`
	Acres    string          `json:"acres,omitempty"`
	Category string          `json:"category,omitempty"`
	GeoJSON  json.RawMessage `json:"geojson,omitempty"`
}

func (t *Tools) findParks(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in geometryFilter
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	parks, err := t.open.Parks(ctx, in.toFilter())
	if err != nil {
		return nil, err
	}
	items := make([]parkItem, 0, len(parks))
	for _, p := range parks {
		items = append(items, parkItem{
			ID:       p.ID,
			Name:     p.Name,
			Borough:  p.Borough,
			Acres:    p.Acres,
			Category: p.Category,
			GeoJSON:  p.Geometry,
		})
	}
	return json.Marshal(map[string]any{"parks": items})
}

type censusBlockItem struct {
	ID      string          `json:"id"`
	Borough string          `json:"borough,omitempty"`
	Block   string          `json:"block,omitempty"`
	Tract   string          `json:"tract,omitempty"`
	GeoJSON json.RawMessage `json:"geojson,omitempty"`
}

func (t *Tools) findCensusBlocks(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in geometryFilter
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	blocks, err := t.open.CensusBlocks(ctx, in.toFilter())
	if err != nil {
		return nil, err
	}
	items := make([]censusBlockItem, 0, len(blocks))
	for _, b := range blocks {
		items = append(items, censusBlockItem{
			ID:      b.GeoID,
			Borough: b.Borough,
			Block:   b.BlockCode,
			Tract:   b.TractCode,
			GeoJSON: b.Geometry,
		})
	}
	return json.Marshal(map[string]any{"censusBlocks": items})
}

type neighborhoodItem struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Borough string          `json:"borough,omitempty"`
	GeoJSON json.RawMessage `json:"geojson,omitempty"`
}

func (t *Tools) findNeighborhoods(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in geometryFilter
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	hoods, err := t.open.Neighborhoods(ctx, in.toFilter())
	if err != nil {
		return nil, err
	}
	items := make([]neighborhoodItem, 0, len(hoods))
	for _, n := range hoods {
		items = append(items, neighborhoodItem{
			ID:      n.Code,
			Name:    n.Name,
			Borough: n.Borough,
			GeoJSON: n.Geometry,
		})
	}
	return json.Marshal(map[string]any{"neighborhoods": items})
}

// spatialAnalysis runs an ad-hoc lookup over whichever dataset layerType
// names; results flow into the generic spatial-analysis layer.
func (t *Tools) spatialAnalysis(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in analysisInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	filter := nycopen.Filter{
		IntersectsGeoJSON: in.AreaGeoJSON,
		Name:              in.Query,
		Limit:             in.Limit,
	}

	var results []map[string]any
	switch in.LayerType {
	case "censusBlocks":
		blocks, err := t.open.CensusBlocks(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, b := range blocks {
			results = append(results, map[string]any{"id": b.GeoID, "borough": b.Borough, "geojson": b.Geometry})
		}
	case "neighborhoods":
		hoods, err := t.open.Neighborhoods(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, n := range hoods {
			results = append(results, map[string]any{"id": n.Code, "name": n.Name, "geojson": n.Geometry})
		}
	default:
		parks, err := t.open.Parks(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, p := range parks {
			results = append(results, map[string]any{"id": p.ID, "name": p.Name, "geojson": p.Geometry})
		}
	}
	if results == nil {
		results = []map[string]any{}
	}
	return json.Marshal(map[string]any{"results": results})
}

func (t *Tools) defineArea(ctx context.Context, chatID, userID string, input json.RawMessage) (json.RawMessage, error) {
	var in defineAreaInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	a, err := t.areas.Put(ctx, chatID, userID, in.Geometry)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"area": a})
}

// queryParcels resolves the chat's active area and runs the parcel engine
// against it with the supplied attribute predicates.
func (t *Tools) queryParcels(ctx context.Context, chatID, userID string, input json.RawMessage) (json.RawMessage, error) {
	var in queryParcelsInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}

	a, err := t.areas.Get(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !a.Defined() {
		payload, _ := json.Marshal(map[string]string{"error": "no area defined for this chat; call defineArea first"})
		return payload, nil
	}

	records, err := t.parcels.Query(ctx, a.Geometry, in.Predicates, in.Limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []parcel.Record{}
	}
	return json.Marshal(map[string]any{"properties": records})
}

// toolDefinitions describes every tool the agent offers the model.
func toolDefinitions() []anthropic.ToolUnionParam {
	geomProps := map[string]any{
		"name":        map[string]any{"type": "string", "description": "Name text to match"},
		"borough":     map[string]any{"type": "string", "description": "Borough name or code"},
		"areaGeojson": map[string]any{"type": "object", "description": "GeoJSON geometry to intersect with"},
		"limit":       map[string]any{"type": "integer"},
	}

	tools := []anthropic.ToolParam{
		{
			Name:        layers.ToolFindParks,
			Description: anthropic.String("Find NYC parks, optionally filtered by name, borough, or an area geometry."),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: geomProps},
		},
		{
			Name:        layers.ToolFindCensusBlocks,
			Description: anthropic.String("Find 2020 census blocks, optionally filtered by borough or an area geometry."),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: geomProps},
		},
		{
			Name:        layers.ToolFindNeighborhoods,
			Description: anthropic.String("Find NYC neighborhoods, optionally filtered by name, borough, or an area geometry."),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: geomProps},
		},
		{
			Name:        layers.ToolSpatialAnalysis,
			Description: anthropic.String("Run an ad-hoc spatial lookup over a named layer type and describe the results."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"layerType":       map[string]any{"type": "string", "enum": []string{"parks", "censusBlocks", "neighborhoods"}},
					"query":           map[string]any{"type": "string", "description": "Natural-language query text"},
					"spatialRelation": map[string]any{"type": "string"},
					"filters":         map[string]any{"type": "string"},
					"areaGeojson":     map[string]any{"type": "object"},
					"limit":           map[string]any{"type": "integer"},
				},
				Required: []string{"layerType", "query"},
			},
		},
		{
			Name:        toolDefineArea,
			Description: anthropic.String("Define or replace the chat's area of interest with a GeoJSON geometry."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"geometry": map[string]any{"type": "object", "description": "GeoJSON Polygon, MultiPolygon, or single-feature FeatureCollection"},
				},
				Required: []string{"geometry"},
			},
		},
		{
			Name:        toolQueryParcels,
			Description: anthropic.String("Query MapPLUTO tax lots intersecting the chat's defined area, with optional attribute predicates."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"predicates": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"landUse":        map[string]any{"type": "string"},
							"minLotArea":     map[string]any{"type": "number"},
							"maxYearBuilt":   map[string]any{"type": "integer"},
							"zoningDistrict": map[string]any{"type": "string"},
							"borough":        map[string]any{"type": "string"},
						},
					},
					"limit": map[string]any{"type": "integer"},
				},
			},
		},
	}

	out := make([]anthropic.ToolUnionParam, len(tools))
	for i := range tools {
		out[i] = anthropic.ToolUnionParam{OfTool: &tools[i]}
	}
	return out
}
