package area

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mapchat/internal/apperr"
	"github.com/sells-group/mapchat/internal/chat"
)

// fakeStore is an in-memory chat.Store covering the paths the registry uses.
type fakeStore struct {
	chats map[string]chat.Chat
	areas map[string]json.RawMessage
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chats: make(map[string]chat.Chat),
		areas: make(map[string]json.RawMessage),
	}
}

func (f *fakeStore) CreateChat(_ context.Context, c chat.Chat) error {
	f.chats[c.ID] = c
	return nil
}

func (f *fakeStore) GetChat(_ context.Context, id string) (*chat.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.chats[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "chat: not found")
	}
	return &c, nil
}

func (f *fakeStore) AppendMessage(context.Context, chat.Message) error { return nil }

func (f *fakeStore) ListMessages(context.Context, string) ([]chat.Message, error) {
	return nil, nil
}

func (f *fakeStore) GetArea(_ context.Context, chatID string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.areas[chatID], nil
}

func (f *fakeStore) PutArea(_ context.Context, chatID string, geometry json.RawMessage) error {
	f.areas[chatID] = geometry
	return nil
}

func (f *fakeStore) Close() error { return nil }

const square = `{"type":"Polygon","coordinates":[[[-74.0,40.7],[-73.9,40.7],[-73.9,40.8],[-74.0,40.8],[-74.0,40.7]]]}`

func TestGet_OwnerReadsPrivateChat(t *testing.T) {
	st := newFakeStore()
	st.chats["c1"] = chat.Chat{ID: "c1", UserID: "u1", Visibility: chat.VisibilityPrivate}
	st.areas["c1"] = json.RawMessage(square)

	a, err := NewRegistry(st).Get(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.True(t, a.Defined())
	assert.JSONEq(t, square, string(a.Geometry))
}

func TestGet_NonOwnerDeniedOnPrivateChat(t *testing.T) {
	st := newFakeStore()
	st.chats["c1"] = chat.Chat{ID: "c1", UserID: "u1", Visibility: chat.VisibilityPrivate}
	st.areas["c1"] = json.RawMessage(square)

	_, err := NewRegistry(st).Get(context.Background(), "c1", "u2")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAccessDenied, apperr.KindOf(err))
}

func TestGet_AnyoneReadsPublicChat(t *testing.T) {
	st := newFakeStore()
	st.chats["c1"] = chat.Chat{ID: "c1", UserID: "u1", Visibility: chat.VisibilityPublic}

	a, err := NewRegistry(st).Get(context.Background(), "c1", "u2")
	require.NoError(t, err)
	assert.False(t, a.Defined())
}

func TestGet_NoAreaSetIsNotAnError(t *testing.T) {
	st := newFakeStore()
	st.chats["c1"] = chat.Chat{ID: "c1", UserID: "u1", Visibility: chat.VisibilityPrivate}

	a, err := NewRegistry(st).Get(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.False(t, a.Defined())
	assert.Nil(t, a.Geometry)
}

func TestGet_ChatNotFound(t *testing.T) {
	st := newFakeStore()

	_, err := NewRegistry(st).Get(context.Background(), "ghost", "u1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGet_MalformedChatID(t *testing.T) {
	st := newFakeStore()

	for _, id := range []string{"", "c 1", "c;drop"} {
		_, err := NewRegistry(st).Get(context.Background(), id, "u1")
		require.Error(t, err, id)
		assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
	}
}

func TestGet_StoreUnavailablePropagates(t *testing.T) {
	st := newFakeStore()
	st.err = apperr.New(apperr.KindUpstreamUnavailable, "pg down")

	_, err := NewRegistry(st).Get(context.Background(), "c1", "u1")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstreamUnavailable, apperr.KindOf(err))
}

func TestPut_OwnerOverwrites(t *testing.T) {
	st := newFakeStore()
	st.chats["c1"] = chat.Chat{ID: "c1", UserID: "u1", Visibility: chat.VisibilityPrivate}
	reg := NewRegistry(st)
	ctx := context.Background()

	_, err := reg.Put(ctx, "c1", "u1", json.RawMessage(square))
	require.NoError(t, err)

	second := `{"type":"Point","coordinates":[-73.95,40.75]}`
	a, err := reg.Put(ctx, "c1", "u1", json.RawMessage(second))
	require.NoError(t, err)
	assert.JSONEq(t, second, string(a.Geometry))

	got, err := reg.Get(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.JSONEq(t, second, string(got.Geometry))
}

func TestPut_NonOwnerDenied(t *testing.T) {
	st := newFakeStore()
	st.chats["c1"] = chat.Chat{ID: "c1", UserID: "u1", Visibility: chat.VisibilityPublic}

	_, err := NewRegistry(st).Put(context.Background(), "c1", "u2", json.RawMessage(square))
	require.Error(t, err)
	assert.Equal(t, apperr.KindAccessDenied, apperr.KindOf(err))
}

func TestPut_RejectsMalformedGeometry(t *testing.T) {
	st := newFakeStore()
	st.chats["c1"] = chat.Chat{ID: "c1", UserID: "u1", Visibility: chat.VisibilityPrivate}

	for _, raw := range []string{"", "{}", `{"type":"Polygon","coordinates":[]}`} {
		_, err := NewRegistry(st).Put(context.Background(), "c1", "u1", json.RawMessage(raw))
		require.Error(t, err, raw)
		assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
	}
}

// Stored areas are canonical: foreign envelope fields never reach the store.
func TestPut_NormalizesBeforeStore(t *testing.T) {
	st := newFakeStore()
	st.chats["c1"] = chat.Chat{ID: "c1", UserID: "u1", Visibility: chat.VisibilityPrivate}

	raw := `{"type":"FeatureCollection","crs":{"type":"name"},"properties":{"x":1},"features":[{"type":"Feature","geometry":` + square + `}]}`
	a, err := NewRegistry(st).Put(context.Background(), "c1", "u1", json.RawMessage(raw))
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(a.Geometry, &decoded))
	assert.NotContains(t, decoded, "crs")
	assert.NotContains(t, decoded, "properties")
}
