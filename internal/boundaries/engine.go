// Package boundaries answers viewport boundary requests: it finds the
// entities of one tier intersecting a bounding box, simplifies their shapes
// for the zoom level, and caches the serialized FeatureCollection.
package boundaries

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/cache"
	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"github.com/EmpoweredVote/geo-backend/internal/metrics"
	"github.com/EmpoweredVote/geo-backend/internal/spatial"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL          = 300 * time.Second
	DefaultQueryTimeout = 30 * time.Second
	keyPrefix           = "boundaries:"
)

type Options struct {
	Policy *spatial.Policy
	TTL    time.Duration
	// CanonicalKeys normalizes the bbox to fixed precision before building
	// the cache key. Off by default: keys use the bbox exactly as sent.
	CanonicalKeys bool
	QueryTimeout  time.Duration
	Logger        *zap.Logger
}

type Engine struct {
	store     geographic.Store
	cache     cache.Cache
	policy    *spatial.Policy
	ttl       time.Duration
	canonical bool
	timeout   time.Duration
	log       *zap.Logger
	group     singleflight.Group
}

func NewEngine(store geographic.Store, c cache.Cache, opts Options) *Engine {
	if c == nil {
		c = cache.Noop{}
	}
	if opts.Policy == nil {
		opts.Policy = spatial.DefaultPolicy()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		store:     store,
		cache:     c,
		policy:    opts.Policy,
		ttl:       opts.TTL,
		canonical: opts.CanonicalKeys,
		timeout:   opts.QueryTimeout,
		log:       opts.Logger.Named("boundaries"),
	}
}

// Request is a validated boundary query.
type Request struct {
	Type  geographic.EntityType
	BBox  orb.Bound
	Zoom  float64
	key   string
	label string
}

// Result is a serialized FeatureCollection plus how it was obtained.
type Result struct {
	Payload []byte
	ETag    string
	Cached  bool
}

// ParseRequest validates raw request parameters. It never touches the store
// or the cache.
func (e *Engine) ParseRequest(typ, bbox string, zoom float64) (Request, error) {
	kind, err := geographic.ParseBoundaryType(typ)
	if err != nil {
		return Request{}, err
	}
	if strings.TrimSpace(bbox) == "" {
		return Request{}, geographic.Invalid("bbox", "required, expected min_lng,min_lat,max_lng,max_lat")
	}
	b, err := spatial.ParseBBox(bbox)
	if err != nil {
		var reason string
		if be, ok := err.(*spatial.BBoxError); ok {
			reason = be.Reason
		} else {
			reason = err.Error()
		}
		return Request{}, geographic.Invalid("bbox", "%s", reason)
	}
	if math.IsNaN(zoom) || math.IsInf(zoom, 0) || zoom < 0 || zoom > 30 {
		return Request{}, geographic.Invalid("zoom", "must be a number between 0 and 30")
	}

	keyBBox := bbox
	if e.canonical {
		keyBBox = spatial.CanonicalBBox(b)
	}
	return Request{
		Type:  kind,
		BBox:  b,
		Zoom:  zoom,
		key:   CacheKey(kind, keyBBox, zoom),
		label: kind.String(),
	}, nil
}

// CacheKey identifies a (type, bbox, zoom) triple.
func CacheKey(kind geographic.EntityType, bbox string, zoom float64) string {
	return keyPrefix + kind.String() + ":" + bbox + ":" + strconv.FormatFloat(zoom, 'f', -1, 64)
}

// Query returns the FeatureCollection for the given raw parameters.
func (e *Engine) Query(ctx context.Context, typ, bbox string, zoom float64) (Result, error) {
	req, err := e.ParseRequest(typ, bbox, zoom)
	if err != nil {
		return Result{}, err
	}
	return e.Do(ctx, req)
}

// Do answers a parsed request from cache, or computes and caches it.
func (e *Engine) Do(ctx context.Context, req Request) (Result, error) {
	if payload, ok := e.cached(ctx, req.key); ok {
		metrics.BoundaryCacheHits.WithLabelValues(req.label).Inc()
		return Result{Payload: payload, ETag: ETag(payload), Cached: true}, nil
	}
	metrics.BoundaryCacheMisses.WithLabelValues(req.label).Inc()
	return e.compute(ctx, req)
}

// Refresh recomputes a request and overwrites its cache entry.
func (e *Engine) Refresh(ctx context.Context, req Request) (Result, error) {
	return e.compute(ctx, req)
}

func (e *Engine) cached(ctx context.Context, key string) ([]byte, bool) {
	payload, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("get").Inc()
		e.log.Warn("cache get failed, computing directly", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return payload, ok
}

// compute coalesces concurrent misses for the same key. The shared work runs
// detached from any single caller's cancellation.
func (e *Engine) compute(ctx context.Context, req Request) (Result, error) {
	ch := e.group.DoChan(req.key, func() (any, error) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		payload, err := e.build(wctx, req)
		if err != nil {
			return nil, err
		}
		if err := e.cache.Set(wctx, req.key, payload, e.ttl); err != nil {
			metrics.CacheErrorsTotal.WithLabelValues("set").Inc()
			e.log.Warn("cache set failed", zap.String("key", req.key), zap.Error(err))
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		payload := res.Val.([]byte)
		return Result{Payload: payload, ETag: ETag(payload)}, nil
	}
}

type featureCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

type properties struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type feature struct {
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties properties        `json:"properties"`
}

func (e *Engine) build(ctx context.Context, req Request) ([]byte, error) {
	start := time.Now()
	entities, err := e.store.Intersecting(ctx, req.Type, orb.MultiPolygon{req.BBox.ToPolygon()})
	metrics.StoreQueryDurationMs.WithLabelValues("intersecting", req.label).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("query %s boundaries: %w", req.label, err)
	}

	simplify := spatial.ShouldSimplify(req.Zoom)
	tolerance := e.policy.ToleranceForZoom(req.Zoom)

	start = time.Now()
	features := make([]json.RawMessage, 0, len(entities))
	for _, ent := range entities {
		if len(ent.Boundary) == 0 {
			continue
		}

		geom := ent.Boundary
		if simplify {
			s := spatial.SimplifyPreserveTopology(geom, tolerance)
			// Simplification can pull a sliver out of the viewport.
			if spatial.IntersectsBound(s, req.BBox) {
				geom = s
			}
		}

		raw, err := encodeFeature(ent, geom)
		if err != nil {
			metrics.SkippedFeaturesTotal.WithLabelValues(req.label).Inc()
			e.log.Warn("skipping feature",
				zap.String("type", req.label),
				zap.String("id", ent.ID.String()),
				zap.Error(err))
			continue
		}
		features = append(features, raw)
	}
	metrics.SimplifyDurationMs.WithLabelValues(req.label).Observe(float64(time.Since(start).Milliseconds()))
	metrics.BoundaryFeatures.WithLabelValues(req.label).Observe(float64(len(features)))

	return json.Marshal(featureCollection{Type: "FeatureCollection", Features: features})
}

// encodeFeature serializes one feature on its own so a bad geometry only
// costs that feature.
func encodeFeature(ent geographic.Entity, geom orb.MultiPolygon) (json.RawMessage, error) {
	b, err := json.Marshal(feature{
		Type:     "Feature",
		Geometry: geojson.NewGeometry(geom),
		Properties: properties{
			ID:   ent.ID.String(),
			Name: ent.Name,
			Slug: ent.Slug,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", geographic.ErrGeometrySerialization, err)
	}
	return b, nil
}

// ETag is a strong validator for a payload.
func ETag(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
