package layers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mapchat/internal/chat"
)

func parkMessages(ids ...string) []chat.Message {
	items := make([]map[string]any, len(ids))
	for i, id := range ids {
		items[i] = map[string]any{
			"id":      id,
			"name":    "Park " + id,
			"geojson": json.RawMessage(parkPoint),
		}
	}
	output, _ := json.Marshal(map[string]any{"parks": items})
	return []chat.Message{
		assistantMsg("m1", toolPart(ToolFindParks, chat.PartStateOutputAvailable, "", string(output))),
	}
}

func TestSynchronizerStartsEmpty(t *testing.T) {
	s := NewSynchronizer()
	for _, k := range Kinds() {
		st := s.State(k)
		assert.False(t, st.Populated(), "kind %s", k)
		assert.False(t, st.Visible, "kind %s", k)
	}
}

func TestSynchronizerPopulateAndReplace(t *testing.T) {
	s := NewSynchronizer()

	s.Update(parkMessages("p1", "p2"))
	st := s.State(KindParks)
	require.Len(t, st.Items, 2)
	assert.True(t, st.Visible)

	// A new extraction replaces the items wholesale, not additively.
	s.Update(parkMessages("p3"))
	st = s.State(KindParks)
	require.Len(t, st.Items, 1)
	assert.Equal(t, "p3", st.Items[0].ID)
	assert.True(t, st.Visible)

	// Unrelated kinds stay untouched.
	assert.False(t, s.State(KindNeighborhoods).Populated())
}

func TestSynchronizerPopulatedToEmpty(t *testing.T) {
	s := NewSynchronizer()

	s.Update(parkMessages("p1"))
	require.True(t, s.State(KindParks).Populated())

	// No qualifying parts left: the layer empties and hides.
	s.Update(nil)
	st := s.State(KindParks)
	assert.Empty(t, st.Items)
	assert.False(t, st.Visible)

	// Repeated empty extractions are a no-op on an already-empty state.
	s.Update(nil)
	assert.Equal(t, State{}, s.State(KindParks))
}

func TestSynchronizerClear(t *testing.T) {
	s := NewSynchronizer()
	msgs := parkMessages("p1")

	s.Update(msgs)
	require.True(t, s.State(KindParks).Populated())

	s.Clear(KindParks)
	st := s.State(KindParks)
	assert.Empty(t, st.Items)
	assert.False(t, st.Visible)

	// Clearing does not stop a later update from repopulating.
	s.Update(msgs)
	assert.True(t, s.State(KindParks).Populated())
}

func TestSynchronizerVisibilityIndependentOfItems(t *testing.T) {
	s := NewSynchronizer()

	s.Update(parkMessages("p1"))
	s.SetVisible(KindParks, false)

	st := s.State(KindParks)
	require.Len(t, st.Items, 1)
	assert.False(t, st.Visible, "hiding must not discard derived items")

	s.SetVisible(KindParks, true)
	assert.True(t, s.State(KindParks).Visible)
}

func TestSynchronizerSnapshot(t *testing.T) {
	s := NewSynchronizer()
	s.Update(parkMessages("p1"))

	snap := s.Snapshot()
	require.Len(t, snap, len(Kinds()))
	assert.True(t, snap[KindParks].Populated())
	assert.False(t, snap[KindCensusBlocks].Populated())
}
