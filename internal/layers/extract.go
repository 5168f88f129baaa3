// Package layers derives map layer state from a chat's message log. Each
// layer kind (parks, census blocks, neighborhoods, spatial analysis) is
// recomputed in full from the assistant's tool outputs on every log change;
// nothing here is incremental or persisted.
package layers

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sells-group/mapchat/internal/chat"
	"github.com/sells-group/mapchat/internal/geojson"
)

// Kind identifies one of the fixed layer categories tracked independently.
type Kind string

const (
	KindParks           Kind = "parks"
	KindCensusBlocks    Kind = "censusBlocks"
	KindNeighborhoods   Kind = "neighborhoods"
	KindSpatialAnalysis Kind = "spatialAnalysis"
)

// Tool names as they appear in agent tool definitions. A part produced by
// tool X carries Type "tool-X".
const (
	ToolFindParks         = "findParks"
	ToolFindCensusBlocks  = "findCensusBlocks"
	ToolFindNeighborhoods = "findNeighborhoods"
	ToolSpatialAnalysis   = "spatialAnalysis"
)

// Kinds lists every layer kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindParks, KindCensusBlocks, KindNeighborhoods, KindSpatialAnalysis}
}

// Provenance records where a layer item came from, so consumers can trace a
// rendered feature back to the message that produced it.
type Provenance struct {
	MessageID string `json:"messageId"`
	ToolName  string `json:"toolName"`
}

// Result is one geometry-bearing item derived from a tool output part. Every
// Result exposed by this package has a non-empty Geometry; items without one
// are dropped during extraction.
type Result struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Geometry   json.RawMessage   `json:"geojson"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Provenance Provenance        `json:"provenance"`
}

// descriptor parameterizes the generic extractor for one layer kind. The four
// kinds share the same extraction shape and differ only in these fields.
type descriptor struct {
	toolName      string
	collectionKey string
	// enrich folds metadata from the originating tool invocation into an
	// item's attributes. Nil for kinds whose items are self-describing.
	enrich func(input json.RawMessage, attrs map[string]string)
}

var descriptors = map[Kind]descriptor{
	KindParks:           {toolName: ToolFindParks, collectionKey: "parks"},
	KindCensusBlocks:    {toolName: ToolFindCensusBlocks, collectionKey: "censusBlocks"},
	KindNeighborhoods:   {toolName: ToolFindNeighborhoods, collectionKey: "neighborhoods"},
	KindSpatialAnalysis: {toolName: ToolSpatialAnalysis, collectionKey: "results", enrich: enrichSpatialAnalysis},
}

// analysisQuery is the slice of a spatialAnalysis tool input that makes its
// results self-describing independent of the source message.
type analysisQuery struct {
	LayerType       string `json:"layerType"`
	Query           string `json:"query"`
	SpatialRelation string `json:"spatialRelation"`
	Filters         string `json:"filters"`
}

func enrichSpatialAnalysis(input json.RawMessage, attrs map[string]string) {
	var q analysisQuery
	if err := json.Unmarshal(input, &q); err != nil {
		return
	}
	if q.LayerType != "" {
		attrs["layerType"] = q.LayerType
	}
	if q.Query != "" {
		attrs["query"] = q.Query
	}
	if q.SpatialRelation != "" {
		attrs["spatialRelation"] = q.SpatialRelation
	}
	if q.Filters != "" {
		attrs["filters"] = q.Filters
	}
}

// Extract scans the full message sequence and derives the current set of
// geometry-bearing results for one layer kind. It is a pure function of its
// input: assistant messages only, terminal error-free tool parts only, items
// kept iff they carry a non-empty geometry. Calling it twice with the same
// sequence yields the same ordered output.
func Extract(kind Kind, msgs []chat.Message) []Result {
	desc, ok := descriptors[kind]
	if !ok {
		return nil
	}

	var results []Result
	for _, msg := range msgs {
		if msg.Role != chat.RoleAssistant {
			continue
		}
		for _, part := range msg.Parts {
			if part.Type != "tool-"+desc.toolName || part.State != chat.PartStateOutputAvailable {
				continue
			}
			results = append(results, extractPart(kind, desc, msg.ID, part)...)
		}
	}
	return results
}

// extractPart pulls results out of a single qualifying tool part. A part
// whose output carries an error marker, or whose output cannot be decoded,
// contributes nothing.
func extractPart(kind Kind, desc descriptor, messageID string, part chat.Part) []Result {
	var output map[string]json.RawMessage
	if err := json.Unmarshal(part.Output, &output); err != nil {
		return nil
	}
	if _, failed := output["error"]; failed {
		return nil
	}

	collection, ok := output[desc.collectionKey]
	if !ok {
		return nil
	}

	// A FeatureCollection output is admitted wholesale rather than
	// item-by-item, after stripping the non-standard envelope fields some
	// upstream providers attach.
	if fc, ok := geojson.NormalizeFeatureCollection(collection); ok {
		canonical, err := fc.MarshalCanonical()
		if err != nil {
			return nil
		}
		res := Result{
			ID:         fmt.Sprintf("%s:%s", messageID, desc.collectionKey),
			Kind:       kind,
			Geometry:   canonical,
			Attributes: map[string]string{},
			Provenance: Provenance{MessageID: messageID, ToolName: desc.toolName},
		}
		if desc.enrich != nil {
			desc.enrich(part.Input, res.Attributes)
		}
		return []Result{res}
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(collection, &items); err != nil {
		return nil
	}

	var results []Result
	for i, item := range items {
		geom, ok := item["geojson"]
		if !ok || geojson.IsEmptyRaw(geom) {
			continue
		}
		res := Result{
			ID:         itemID(item, messageID, i),
			Kind:       kind,
			Geometry:   geom,
			Attributes: itemAttributes(item),
			Provenance: Provenance{MessageID: messageID, ToolName: desc.toolName},
		}
		if desc.enrich != nil {
			desc.enrich(part.Input, res.Attributes)
		}
		results = append(results, res)
	}
	return results
}

// itemID prefers the item's own stable id and falls back to a synthetic one
// scoped by the source message, so repeated extraction stays deterministic.
func itemID(item map[string]json.RawMessage, messageID string, index int) string {
	if raw, ok := item["id"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return fmt.Sprintf("%s:%d", messageID, index)
}

// itemAttributes flattens an item's scalar fields into string attributes,
// skipping the geometry payload and any nested structures.
func itemAttributes(item map[string]json.RawMessage) map[string]string {
	attrs := make(map[string]string, len(item))
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "geojson" || k == "id" {
			continue
		}
		var s string
		if err := json.Unmarshal(item[k], &s); err == nil {
			attrs[k] = s
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item[k], &n); err == nil {
			attrs[k] = n.String()
			continue
		}
		var b bool
		if err := json.Unmarshal(item[k], &b); err == nil {
			attrs[k] = fmt.Sprintf("%t", b)
		}
	}
	return attrs
}
