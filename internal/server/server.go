// Package server exposes the HTTP API: area lookup, stored-geometry lookup,
// and parcel queries against MapPLUTO.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/mapchat/internal/apperr"
	"github.com/sells-group/mapchat/internal/area"
	"github.com/sells-group/mapchat/internal/geostore"
	"github.com/sells-group/mapchat/internal/parcel"
)

// Server routes API requests to the area registry, the geometry store, and
// the parcel query engine.
type Server struct {
	router  chi.Router
	areas   *area.Registry
	geo     *geostore.Store
	parcels *parcel.Engine
	log     *zap.Logger
}

// New assembles the router. allowedOrigins feeds the CORS layer; the map UI
// runs on a different origin than the API.
func New(areas *area.Registry, geo *geostore.Store, parcels *parcel.Engine, allowedOrigins []string) *Server {
	s := &Server{
		areas:   areas,
		geo:     geo,
		parcels: parcels,
		log:     zap.L().With(zap.String("component", "server")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", headerUserID},
		AllowCredentials: true,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/geojson/{id}", s.handleGeoJSON)
	r.Post("/mappluto/geojson", s.handleParcelQuery)
	r.With(requirePrincipal).Get("/chat/{chatId}/area", s.handleChatArea)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChatArea returns the active area for a chat, gated on the requesting
// principal's access to that chat.
func (s *Server) handleChatArea(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")
	principal := principalFrom(r.Context())

	a, err := s.areas.Get(r.Context(), chatID, principal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"area": a})
}

// handleGeoJSON resolves a stored geometry by content id. Per the consuming
// client's contract, unexpected failures surface as 400 here rather than 500.
func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	g, err := s.geo.Resolve(r.Context(), id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			s.writeError(w, r, err)
			return
		}
		s.writeErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"geojson": g})
}

// parcelQueryRequest is the body of POST /mappluto/geojson.
type parcelQueryRequest struct {
	GeojsonDataIDs []string    `json:"geojsonDataIds"`
	Predicates     *predicates `json:"predicates,omitempty"`
	Limit          int         `json:"limit,omitempty"`
}

type predicates struct {
	LandUse        *string  `json:"landUse,omitempty"`
	MinLotArea     *float64 `json:"minLotArea,omitempty"`
	MaxYearBuilt   *int     `json:"maxYearBuilt,omitempty"`
	ZoningDistrict *string  `json:"zoningDistrict,omitempty"`
	Borough        *string  `json:"borough,omitempty"`
}

// handleParcelQuery resolves each supplied geometry id and returns the
// parcels intersecting it.
func (s *Server) handleParcelQuery(w http.ResponseWriter, r *http.Request) {
	// Decode into a raw envelope first: a present-but-non-array
	// geojsonDataIds must be a 400, not a decode panic downstream.
	var envelope map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		s.writeErrorStatus(w, r, apperr.Wrap(apperr.KindInvalidArgument, err, "server: decode body"), http.StatusBadRequest)
		return
	}
	rawIDs, ok := envelope["geojsonDataIds"]
	if !ok {
		s.writeErrorStatus(w, r, apperr.New(apperr.KindInvalidArgument, "server: geojsonDataIds is required"), http.StatusBadRequest)
		return
	}
	var req parcelQueryRequest
	if err := json.Unmarshal(rawIDs, &req.GeojsonDataIDs); err != nil {
		s.writeErrorStatus(w, r, apperr.Wrap(apperr.KindInvalidArgument, err, "server: geojsonDataIds must be an array"), http.StatusBadRequest)
		return
	}
	if raw, ok := envelope["predicates"]; ok {
		if err := json.Unmarshal(raw, &req.Predicates); err != nil {
			s.writeErrorStatus(w, r, apperr.Wrap(apperr.KindInvalidArgument, err, "server: decode predicates"), http.StatusBadRequest)
			return
		}
	}
	if raw, ok := envelope["limit"]; ok {
		if err := json.Unmarshal(raw, &req.Limit); err != nil {
			s.writeErrorStatus(w, r, apperr.Wrap(apperr.KindInvalidArgument, err, "server: decode limit"), http.StatusBadRequest)
			return
		}
	}

	preds := parcel.Predicates{}
	if req.Predicates != nil {
		preds = parcel.Predicates{
			LandUse:        req.Predicates.LandUse,
			MinLotArea:     req.Predicates.MinLotArea,
			MaxYearBuilt:   req.Predicates.MaxYearBuilt,
			ZoningDistrict: req.Predicates.ZoningDistrict,
			Borough:        req.Predicates.Borough,
		}
	}

	properties := []parcel.Record{}
	for _, id := range req.GeojsonDataIDs {
		g, err := s.geo.Resolve(r.Context(), id)
		if err != nil {
			// This route answers 200, 400 or 500 only; an unknown id is a
			// client error, not a 404.
			status := statusFor(err)
			if status == http.StatusNotFound {
				status = http.StatusBadRequest
			}
			s.writeErrorStatus(w, r, err, status)
			return
		}
		canonical, err := g.MarshalCanonical()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		records, err := s.parcels.Query(r.Context(), canonical, preds, req.Limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		properties = append(properties, records...)
	}

	writeJSON(w, http.StatusOK, map[string]any{"properties": properties})
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// writeError maps a kinded error onto its HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorStatus(w, r, err, statusFor(err))
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, map[string]string{"error": publicMessage(err, status)})
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAccessDenied:
		return http.StatusForbidden
	case apperr.KindUpstreamUnavailable, apperr.KindUnexpected:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps backend detail out of 5xx responses.
func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
