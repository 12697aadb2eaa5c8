// Package regions answers point and polygon questions about cities,
// counties and metro areas.
package regions

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"github.com/EmpoweredVote/geo-backend/internal/metrics"
	"github.com/EmpoweredVote/geo-backend/internal/spatial"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRadiusMeters = 20000.0
	// MaxRadiusMeters keeps a single request from scanning a continent.
	MaxRadiusMeters = 500000.0
)

type Engine struct {
	store geographic.Store
	log   *zap.Logger
}

func NewEngine(store geographic.Store, l *zap.Logger) *Engine {
	if l == nil {
		l = zap.NewNop()
	}
	return &Engine{store: store, log: l.Named("regions")}
}

// NearbyCity is one row of a nearest-cities answer.
type NearbyCity struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	DistanceKM float64 `json:"distance_km"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

// NearbyQuery selects cities around a point. MinPopulation of zero disables
// the population filter.
type NearbyQuery struct {
	Lat           float64
	Lng           float64
	RadiusMeters  float64
	MinPopulation int64
}

// NearestCities lists cities whose centroid lies within the radius of the
// point, nearest first. A city exactly at the radius is included.
func (e *Engine) NearestCities(ctx context.Context, q NearbyQuery) ([]NearbyCity, error) {
	if err := validatePoint(q.Lat, q.Lng); err != nil {
		return nil, err
	}
	radius := q.RadiusMeters
	if math.IsNaN(radius) || radius < 0 || radius > MaxRadiusMeters {
		return nil, geographic.Invalid("radius", "must be between 0 and %.0f meters", MaxRadiusMeters)
	}
	if q.MinPopulation < 0 {
		return nil, geographic.Invalid("min_population", "must not be negative")
	}

	start := time.Now()
	neighbors, err := e.store.WithinDistance(ctx, geographic.City, orb.Point{q.Lng, q.Lat}, radius)
	metrics.StoreQueryDurationMs.WithLabelValues("within_distance", "city").Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("nearest cities: %w", err)
	}

	out := make([]NearbyCity, 0, len(neighbors))
	for _, n := range neighbors {
		c := n.Entity
		if c.Centroid == nil {
			continue
		}
		if q.MinPopulation > 0 && (c.Population == nil || *c.Population < q.MinPopulation) {
			continue
		}
		out = append(out, NearbyCity{
			ID:         c.ID.String(),
			Name:       c.Name,
			DistanceKM: spatial.RoundKM(n.DistanceMeters),
			Lat:        c.Centroid.Lat(),
			Lng:        c.Centroid.Lon(),
		})
	}
	return out, nil
}

// PolygonCity is one row of a cities-by-polygon answer.
type PolygonCity struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	FIPS string  `json:"fips"`
}

// CitiesByPolygon lists cities whose boundary intersects area and whose
// centroid is known.
func (e *Engine) CitiesByPolygon(ctx context.Context, area orb.Geometry) ([]PolygonCity, error) {
	mp, err := spatial.ToMultiPolygon(area)
	if err != nil {
		return nil, geographic.Invalid("geometry", "%v", err)
	}
	if len(mp) == 0 {
		return nil, geographic.Invalid("geometry", "polygon needs a closed ring of at least 4 positions")
	}
	for pi, p := range mp {
		if len(p) == 0 {
			return nil, geographic.Invalid("geometry", "polygon %d has no rings", pi)
		}
		for ri, r := range p {
			if len(r) < 4 {
				return nil, geographic.Invalid("geometry", "polygon %d ring %d has %d positions, needs a closed ring of at least 4", pi, ri, len(r))
			}
		}
	}
	b := mp.Bound()
	if !spatial.ValidCoordinate(b.Min[1], b.Min[0]) || !spatial.ValidCoordinate(b.Max[1], b.Max[0]) {
		return nil, geographic.Invalid("geometry", "coordinates out of range")
	}

	start := time.Now()
	cities, err := e.store.Intersecting(ctx, geographic.City, mp)
	metrics.StoreQueryDurationMs.WithLabelValues("intersecting", "city").Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("cities by polygon: %w", err)
	}

	out := make([]PolygonCity, 0, len(cities))
	for _, c := range cities {
		if c.Centroid == nil {
			continue
		}
		out = append(out, PolygonCity{
			ID:   c.ID.String(),
			Name: c.Name,
			Lat:  c.Centroid.Lat(),
			Lng:  c.Centroid.Lon(),
			FIPS: c.FIPS,
		})
	}
	return out, nil
}

// Region names the city, county and metro area containing a point. Each
// tier is nil when nothing contains the point.
type Region struct {
	City   *string `json:"city"`
	County *string `json:"county"`
	MSA    *string `json:"msa"`
}

// EncompassingRegion looks up each tier independently. Tiers are not
// checked against each other: the county need not be the city's parent.
func (e *Engine) EncompassingRegion(ctx context.Context, lat, lng float64) (Region, error) {
	if err := validatePoint(lat, lng); err != nil {
		return Region{}, err
	}
	point := orb.Point{lng, lat}

	var region Region
	tiers := []struct {
		kind geographic.EntityType
		dst  **string
	}{
		{geographic.City, &region.City},
		{geographic.County, &region.County},
		{geographic.MSA, &region.MSA},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, tier := range tiers {
		tier := tier
		g.Go(func() error {
			start := time.Now()
			found, err := e.store.Containing(gctx, tier.kind, point)
			metrics.StoreQueryDurationMs.WithLabelValues("containing", tier.kind.String()).Observe(float64(time.Since(start).Milliseconds()))
			if err != nil {
				return fmt.Errorf("encompassing %s: %w", tier.kind, err)
			}
			if len(found) > 0 {
				name := found[0].Name
				*tier.dst = &name
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Region{}, err
	}
	return region, nil
}

func validatePoint(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return geographic.Invalid("lat", "must be between -90 and 90")
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return geographic.Invalid("lng", "must be between -180 and 180")
	}
	return nil
}
