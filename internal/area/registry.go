// Package area maps a chat to its single area of interest and gates every
// read behind the chat's visibility policy.
package area

import (
	"context"
	"encoding/json"

	"github.com/sells-group/mapchat/internal/apperr"
	"github.com/sells-group/mapchat/internal/chat"
	"github.com/sells-group/mapchat/internal/geojson"
)

// Area pairs a chat with its optional scoping geometry. A nil Geometry means
// the chat exists but no area has been defined yet, a valid state, distinct
// from the chat itself being absent.
type Area struct {
	ChatID   string          `json:"chatId"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
}

// Defined reports whether an area geometry has been set for the chat.
func (a *Area) Defined() bool {
	return a != nil && len(a.Geometry) > 0
}

// Registry resolves and stores per-chat areas. The outcome of Get is a closed
// set: an Area (possibly with no geometry), or exactly one of
// InvalidArgument, NotFound, AccessDenied, UpstreamUnavailable; callers
// switch exhaustively on apperr.KindOf.
type Registry struct {
	store chat.Store
}

// NewRegistry creates a Registry over the given chat store.
func NewRegistry(store chat.Store) *Registry {
	return &Registry{store: store}
}

// Get returns the area for chatID after enforcing the visibility gate.
// The gate runs before any data leaves the store: a private chat is readable
// only by its owning user.
func (r *Registry) Get(ctx context.Context, chatID, principalUserID string) (*Area, error) {
	if !chat.ValidID(chatID) {
		return nil, apperr.New(apperr.KindInvalidArgument, "area: malformed chat id")
	}

	c, err := r.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if c.Visibility == chat.VisibilityPrivate && c.UserID != principalUserID {
		return nil, apperr.New(apperr.KindAccessDenied, "area: chat is private")
	}

	geometry, err := r.store.GetArea(ctx, chatID)
	if err != nil {
		return nil, err
	}

	return &Area{ChatID: chatID, Geometry: geometry}, nil
}

// Put defines or overwrites the chat's area. The geometry is normalized to
// canonical GeoJSON before storage; only the chat owner may write. Areas are
// never deleted, only replaced.
func (r *Registry) Put(ctx context.Context, chatID, principalUserID string, raw json.RawMessage) (*Area, error) {
	if !chat.ValidID(chatID) {
		return nil, apperr.New(apperr.KindInvalidArgument, "area: malformed chat id")
	}

	c, err := r.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if c.UserID != principalUserID {
		return nil, apperr.New(apperr.KindAccessDenied, "area: only the chat owner may define its area")
	}

	g, err := geojson.Parse(raw)
	if err != nil {
		return nil, err
	}
	if g.IsEmpty() {
		return nil, apperr.New(apperr.KindInvalidArgument, "area: empty geometry")
	}

	canonical, err := g.MarshalCanonical()
	if err != nil {
		return nil, err
	}
	if err := r.store.PutArea(ctx, chatID, canonical); err != nil {
		return nil, err
	}

	return &Area{ChatID: chatID, Geometry: canonical}, nil
}
