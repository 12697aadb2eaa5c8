package boundaries

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/cache"
	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"github.com/EmpoweredVote/geo-backend/internal/spatial"
	"github.com/EmpoweredVote/geo-backend/internal/store/memory"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// countingStore wraps a store and counts Intersecting calls.
type countingStore struct {
	geographic.Store
	calls atomic.Int32
	err   error
}

func (c *countingStore) Intersecting(ctx context.Context, kind geographic.EntityType, area orb.MultiPolygon) ([]geographic.Entity, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Store.Intersecting(ctx, kind, area)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

// circle approximates a state-sized shape with many vertices.
func circle(cx, cy, r float64, n int) orb.MultiPolygon {
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		rr := r
		if i%3 == 0 {
			rr *= 1.002
		}
		ring = append(ring, orb.Point{cx + rr*math.Cos(a), cy + rr*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return orb.MultiPolygon{{ring}}
}

func state(name, abbr string, boundary orb.MultiPolygon) geographic.Entity {
	return geographic.Entity{
		ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)),
		Type:     geographic.State,
		Name:     name,
		Slug:     abbr,
		Boundary: boundary,
	}
}

func fixture() *memory.Store {
	s := memory.New()
	s.Load([]geographic.Entity{
		state("Indiana", "in", circle(-86.3, 39.9, 1.5, 300)),
		state("Colorado", "co", circle(-105.5, 39.0, 2.0, 300)),
		state("Hawaii", "hi", circle(-157.0, 20.5, 1.0, 300)),
	})
	return s
}

func decode(t *testing.T, payload []byte) *geojson.FeatureCollection {
	t.Helper()
	fc, err := geojson.UnmarshalFeatureCollection(payload)
	if err != nil {
		t.Fatalf("payload is not a FeatureCollection: %v", err)
	}
	return fc
}

func TestQueryContinentalStatesAtZoom6(t *testing.T) {
	store := fixture()
	e := NewEngine(store, cache.NewLRU(16), Options{})

	res, err := e.Query(context.Background(), "state", "-125,25,-66,49", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fc := decode(t, res.Payload)
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 states, got %d", len(fc.Features))
	}

	bbox, _ := spatial.ParseBBox("-125,25,-66,49")
	originals := map[string]orb.MultiPolygon{
		"Indiana":  circle(-86.3, 39.9, 1.5, 300),
		"Colorado": circle(-105.5, 39.0, 2.0, 300),
	}
	for _, f := range fc.Features {
		name, _ := f.Properties["name"].(string)
		orig, ok := originals[name]
		if !ok {
			t.Fatalf("unexpected feature %q", name)
		}
		want := spatial.SimplifyPreserveTopology(orig, 0.02)
		got, ok := f.Geometry.(orb.MultiPolygon)
		if !ok {
			t.Fatalf("geometry is %T", f.Geometry)
		}
		if len(got[0][0]) != len(want[0][0]) {
			t.Errorf("%s: expected %d points at tolerance 0.02, got %d", name, len(want[0][0]), len(got[0][0]))
		}
		if len(got[0][0]) >= len(orig[0][0]) {
			t.Errorf("%s: geometry was not simplified", name)
		}
		if !spatial.IntersectsBound(got, bbox) {
			t.Errorf("%s: returned geometry does not intersect bbox", name)
		}
		for _, key := range []string{"id", "name", "slug"} {
			if _, ok := f.Properties[key]; !ok {
				t.Errorf("%s: missing property %q", name, key)
			}
		}
	}
}

func TestQueryFullFidelityAtHighZoom(t *testing.T) {
	e := NewEngine(fixture(), nil, Options{})
	res, err := e.Query(context.Background(), "state", "-90,38,-84,42", 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fc := decode(t, res.Payload)
	if len(fc.Features) != 1 {
		t.Fatalf("expected Indiana only, got %d", len(fc.Features))
	}
	got := fc.Features[0].Geometry.(orb.MultiPolygon)
	if len(got[0][0]) != 301 {
		t.Errorf("expected unsimplified ring of 301 points, got %d", len(got[0][0]))
	}
}

func TestRepeatedQueryIsByteIdenticalAndSkipsStore(t *testing.T) {
	store := &countingStore{Store: fixture()}
	e := NewEngine(store, cache.NewLRU(16), Options{})
	ctx := context.Background()

	first, err := e.Query(ctx, "state", "-125,25,-66,49", 6)
	if err != nil {
		t.Fatalf("first query: %v", err)
	}
	second, err := e.Query(ctx, "state", "-125,25,-66,49", 6)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}

	if !bytes.Equal(first.Payload, second.Payload) {
		t.Error("cached payload differs from computed payload")
	}
	if first.Cached || !second.Cached {
		t.Errorf("expected miss then hit, got %v then %v", first.Cached, second.Cached)
	}
	if first.ETag != second.ETag {
		t.Error("etag changed between identical responses")
	}
	if n := store.calls.Load(); n != 1 {
		t.Errorf("expected 1 store call, got %d", n)
	}
}

func TestRawKeysMissOnReformattedBBox(t *testing.T) {
	store := &countingStore{Store: fixture()}
	e := NewEngine(store, cache.NewLRU(16), Options{})
	ctx := context.Background()

	_, _ = e.Query(ctx, "state", "-125,25,-66,49", 6)
	_, _ = e.Query(ctx, "state", "-125.0,25,-66,49", 6)
	if n := store.calls.Load(); n != 2 {
		t.Errorf("raw keys should not normalize, got %d store calls", n)
	}
}

func TestCanonicalKeysHitOnReformattedBBox(t *testing.T) {
	store := &countingStore{Store: fixture()}
	e := NewEngine(store, cache.NewLRU(16), Options{CanonicalKeys: true})
	ctx := context.Background()

	_, _ = e.Query(ctx, "state", "-125,25,-66,49", 6)
	res, _ := e.Query(ctx, "state", " -125.000,25.0,-66,49", 6)
	if n := store.calls.Load(); n != 1 || !res.Cached {
		t.Errorf("canonical keys should collapse equivalent boxes, got %d store calls", n)
	}
}

func TestInvalidInputTouchesNothing(t *testing.T) {
	store := &countingStore{Store: fixture()}
	lru := cache.NewLRU(16)
	e := NewEngine(store, lru, Options{})

	tests := []struct {
		name  string
		typ   string
		bbox  string
		zoom  float64
		field string
	}{
		{"missing bbox", "state", "", 6, "bbox"},
		{"short bbox", "state", "1,2,3", 6, "bbox"},
		{"garbage bbox", "state", "a,b,c,d", 6, "bbox"},
		{"msa type", "msa", "-125,25,-66,49", 6, "type"},
		{"unknown type", "province", "-125,25,-66,49", 6, "type"},
		{"negative zoom", "state", "-125,25,-66,49", -1, "zoom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Query(context.Background(), tt.typ, tt.bbox, tt.zoom)
			if !errors.Is(err, geographic.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
			var iae *geographic.InvalidArgumentError
			if !errors.As(err, &iae) || iae.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}

	if n := store.calls.Load(); n != 0 {
		t.Errorf("store touched %d times on invalid input", n)
	}
	if lru.Len() != 0 {
		t.Errorf("cache has %d entries after invalid input", lru.Len())
	}
}

func TestCacheFailureFallsBackToStore(t *testing.T) {
	e := NewEngine(fixture(), failingCache{}, Options{})
	res, err := e.Query(context.Background(), "state", "-125,25,-66,49", 6)
	if err != nil {
		t.Fatalf("cache failure should not fail the query: %v", err)
	}
	if len(decode(t, res.Payload).Features) != 2 {
		t.Error("expected 2 features")
	}
}

func TestStoreFailurePropagates(t *testing.T) {
	store := &countingStore{Store: fixture(), err: geographic.Unavailable("intersecting state", errors.New("dial tcp: refused"))}
	lru := cache.NewLRU(16)
	e := NewEngine(store, lru, Options{})

	_, err := e.Query(context.Background(), "state", "-125,25,-66,49", 6)
	if !errors.Is(err, geographic.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if lru.Len() != 0 {
		t.Error("failed query must not be cached")
	}
}

// fixedStore returns the same entities for any query.
type fixedStore struct {
	geographic.Store
	entities []geographic.Entity
}

func (f fixedStore) Intersecting(context.Context, geographic.EntityType, orb.MultiPolygon) ([]geographic.Entity, error) {
	return f.entities, nil
}

func TestUnserializableFeatureIsSkipped(t *testing.T) {
	bad := state("Broken", "xx", orb.MultiPolygon{{{{0, 0}, {math.NaN(), 1}, {1, 1}, {0, 0}}}})
	good := state("Indiana", "in", circle(-86.3, 39.9, 1.5, 50))
	empty := state("Nowhere", "nw", nil)

	e := NewEngine(fixedStore{entities: []geographic.Entity{bad, good, empty}}, nil, Options{})
	res, err := e.Query(context.Background(), "state", "-90,38,-84,42", 13)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fc := decode(t, res.Payload)
	if len(fc.Features) != 1 || fc.Features[0].Properties["name"] != "Indiana" {
		t.Fatalf("expected only Indiana, got %d features", len(fc.Features))
	}
}

func TestEmptyResultIsValidCollection(t *testing.T) {
	e := NewEngine(fixture(), nil, Options{})
	res, err := e.Query(context.Background(), "county", "0,0,1,1", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(res.Payload, &body); err != nil {
		t.Fatal(err)
	}
	if string(body["features"]) != "[]" {
		t.Errorf("expected empty features array, got %s", body["features"])
	}
}

func TestConcurrentMissesCoalesce(t *testing.T) {
	store := &countingStore{Store: fixture()}
	e := NewEngine(store, cache.NewLRU(16), Options{})

	var wg sync.WaitGroup
	payloads := make([][]byte, 8)
	for i := range payloads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Query(context.Background(), "state", "-125,25,-66,49", 6)
			if err != nil {
				t.Errorf("query %d: %v", i, err)
				return
			}
			payloads[i] = res.Payload
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(payloads); i++ {
		if !bytes.Equal(payloads[0], payloads[i]) {
			t.Fatalf("payload %d differs", i)
		}
	}
	if n := store.calls.Load(); n > int32(len(payloads)) || n < 1 {
		t.Errorf("unexpected store call count %d", n)
	}
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey(geographic.County, "-1,-1,1,1", 6); got != "boundaries:county:-1,-1,1,1:6" {
		t.Errorf("unexpected key %q", got)
	}
	if got := CacheKey(geographic.City, "0,0,1,1", 7.5); got != "boundaries:city:0,0,1,1:7.5" {
		t.Errorf("unexpected key %q", got)
	}
}
