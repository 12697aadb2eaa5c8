package geographic

import (
	"context"

	"github.com/paulmach/orb"
)

// Store is the read side of the geometry store. Implementations must be safe
// for concurrent use and must answer through a spatial index.
type Store interface {
	// Intersecting returns entities of kind whose boundary shares any point
	// with area, most recently created first.
	Intersecting(ctx context.Context, kind EntityType, area orb.MultiPolygon) ([]Entity, error)

	// Containing returns entities of kind whose boundary contains point,
	// most recently created first.
	Containing(ctx context.Context, kind EntityType, point orb.Point) ([]Entity, error)

	// WithinDistance returns entities of kind with a non-null centroid no
	// more than radiusMeters (geodesic, inclusive) from point, nearest first.
	WithinDistance(ctx context.Context, kind EntityType, point orb.Point, radiusMeters float64) ([]Neighbor, error)
}

// PopulationWriter applies refreshed population counts.
type PopulationWriter interface {
	UpdatePopulations(ctx context.Context, kind EntityType, updates []PopulationUpdate) (int, error)
}

// StateLister returns the FIPS codes of every stored state.
type StateLister interface {
	StateFIPS(ctx context.Context) ([]string, error)
}
