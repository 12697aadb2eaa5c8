package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"github.com/EmpoweredVote/geo-backend/internal/regions"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

const (
	defaultZoom  = 6
	maxBodyBytes = 4 << 20
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors to status codes: rejected input is the
// caller's fault, anything else is ours.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var iae *geographic.InvalidArgumentError
	if errors.As(err, &iae) {
		writeJSONStatus(w, http.StatusBadRequest, errorBody{Error: iae.Error(), Field: iae.Field})
		return
	}
	if errors.Is(err, r.Context().Err()) && r.Context().Err() != nil {
		// Client went away; nobody is reading the response.
		return
	}

	h.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSONStatus(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

// floatParam parses a required or optional float query parameter.
func floatParam(r *http.Request, name string, required bool, def float64) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		if required {
			return 0, geographic.Invalid(name, "required")
		}
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, geographic.Invalid(name, "%q is not a number", raw)
	}
	return v, nil
}

// GET /boundaries?type=state&bbox=min_lng,min_lat,max_lng,max_lat&zoom=6
func (h *Handlers) GetBoundaries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	zoom, err := floatParam(r, "zoom", false, defaultZoom)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Boundaries.Query(r.Context(), q.Get("type"), q.Get("bbox"), zoom)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("ETag", res.ETag)
	if res.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.Header().Set("Cache-Control", "public, max-age=60")

	if match := r.Header.Get("If-None-Match"); match != "" && match == res.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(res.Payload)
}

// GET /nearby-cities?lat=..&lng=..&radius=20000&min_population=0
func (h *Handlers) GetNearbyCities(w http.ResponseWriter, r *http.Request) {
	lat, err := floatParam(r, "lat", true, 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lng, err := floatParam(r, "lng", true, 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	radius, err := floatParam(r, "radius", false, regions.DefaultRadiusMeters)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var minPop int64
	if raw := r.URL.Query().Get("min_population"); raw != "" {
		minPop, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, r, geographic.Invalid("min_population", "%q is not an integer", raw))
			return
		}
	}

	cities, err := h.Regions.NearestCities(r.Context(), regions.NearbyQuery{
		Lat: lat, Lng: lng, RadiusMeters: radius, MinPopulation: minPop,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, cities)
}

type polygonRequest struct {
	Geometry json.RawMessage `json:"geometry"`
}

// POST /cities-by-polygon {"geometry": <GeoJSON geometry or WKT string>}
func (h *Handlers) PostCitiesByPolygon(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, geographic.Invalid("body", "unreadable request body"))
		return
	}

	var req polygonRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, r, geographic.Invalid("body", "malformed JSON"))
		return
	}

	geom, err := decodeGeometry(req.Geometry)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cities, err := h.Regions.CitiesByPolygon(r.Context(), geom)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, cities)
}

// decodeGeometry accepts a GeoJSON geometry object, or a string holding
// either GeoJSON or WKT.
func decodeGeometry(raw json.RawMessage) (orb.Geometry, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" || trimmed == `""` {
		return nil, geographic.Invalid("geometry", "required")
	}

	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, geographic.Invalid("geometry", "malformed string")
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "{") {
			raw = json.RawMessage(s)
		} else {
			g, err := wkt.Unmarshal(s)
			if err != nil {
				return nil, geographic.Invalid("geometry", "not GeoJSON or WKT: %v", err)
			}
			return g, nil
		}
	}

	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, geographic.Invalid("geometry", "not a GeoJSON geometry: %v", err)
	}
	return g.Geometry(), nil
}

// GET /encompassing-region?lat=..&lng=..
func (h *Handlers) GetEncompassingRegion(w http.ResponseWriter, r *http.Request) {
	lat, err := floatParam(r, "lat", true, 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lng, err := floatParam(r, "lng", true, 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	region, err := h.Regions.EncompassingRegion(r.Context(), lat, lng)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, region)
}
