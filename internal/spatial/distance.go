package spatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// EarthRadiusMeters matches the radius orb/geo uses for haversine distances.
const EarthRadiusMeters = orb.EarthRadius

// DistanceMeters returns the great-circle distance between two lng/lat points.
func DistanceMeters(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// RoundKM converts meters to kilometers rounded to two decimals.
func RoundKM(meters float64) float64 {
	return math.Round(meters/10) / 100
}
