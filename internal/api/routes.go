// Package api exposes the geography queries over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/boundaries"
	"github.com/EmpoweredVote/geo-backend/internal/regions"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handlers binds the query engines to HTTP.
type Handlers struct {
	Boundaries *boundaries.Engine
	Regions    *regions.Engine
	Log        *zap.Logger
	// Ping reports backing store health for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error
}

func (h *Handlers) SetupRoutes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register mounts the endpoints on an existing router.
func (h *Handlers) Register(r chi.Router) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	r.Get("/boundaries", h.GetBoundaries)
	r.Get("/nearby-cities", h.GetNearbyCities)
	r.Post("/cities-by-polygon", h.PostCitiesByPolygon)
	r.Get("/encompassing-region", h.GetEncompassingRegion)
	r.Get("/healthz", h.Healthz)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			h.Log.Warn("health check failed", zap.Error(err))
			writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
