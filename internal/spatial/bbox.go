package spatial

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// BBoxError describes why a bounding-box string was rejected.
type BBoxError struct {
	Input  string
	Reason string
}

func (e *BBoxError) Error() string {
	return fmt.Sprintf("invalid bbox %q: %s", e.Input, e.Reason)
}

// ParseBBox parses "min_lng,min_lat,max_lng,max_lat" into a bound in SRID 4326.
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, &BBoxError{Input: s, Reason: fmt.Sprintf("expected 4 comma-separated numbers, got %d", len(parts))}
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, &BBoxError{Input: s, Reason: fmt.Sprintf("component %d is not a number", i+1)}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return orb.Bound{}, &BBoxError{Input: s, Reason: fmt.Sprintf("component %d is not finite", i+1)}
		}
		v[i] = f
	}

	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return orb.Bound{}, &BBoxError{Input: s, Reason: "min corner exceeds max corner"}
	}
	return b, nil
}

// CanonicalBBox renders a bound at fixed precision so that equivalent boxes
// written differently produce the same string.
func CanonicalBBox(b orb.Bound) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}

// ValidCoordinate reports whether lat/lng are finite and within WGS84 range.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// RadiusBound returns a bound guaranteed to contain every point within
// radiusMeters (great-circle) of center. It is used to prefilter an index
// before the exact distance check.
func RadiusBound(center orb.Point, radiusMeters float64) orb.Bound {
	lng, lat := center[0], center[1]
	angular := radiusMeters / EarthRadiusMeters

	dLat := angular * 180 / math.Pi
	minLat, maxLat := lat-dLat, lat+dLat

	if angular >= math.Pi || maxLat >= 90 || minLat <= -90 {
		// The circle reaches a pole: every longitude is in range.
		return orb.Bound{
			Min: orb.Point{-180, math.Max(minLat, -90)},
			Max: orb.Point{180, math.Min(maxLat, 90)},
		}
	}

	// Widest longitude extent of a spherical cap.
	s := math.Sin(angular) / math.Cos(lat*math.Pi/180)
	if s >= 1 {
		return orb.Bound{Min: orb.Point{-180, minLat}, Max: orb.Point{180, maxLat}}
	}
	dLng := math.Asin(s) * 180 / math.Pi

	return orb.Bound{
		Min: orb.Point{lng - dLng, minLat},
		Max: orb.Point{lng + dLng, maxLat},
	}
}

// RadiusBounds is RadiusBound split at the antimeridian, so that every
// returned bound lies within [-180, 180] longitude.
func RadiusBounds(center orb.Point, radiusMeters float64) []orb.Bound {
	b := RadiusBound(center, radiusMeters)
	switch {
	case b.Min[0] < -180:
		return []orb.Bound{
			{Min: orb.Point{-180, b.Min[1]}, Max: b.Max},
			{Min: orb.Point{b.Min[0] + 360, b.Min[1]}, Max: orb.Point{180, b.Max[1]}},
		}
	case b.Max[0] > 180:
		return []orb.Bound{
			{Min: b.Min, Max: orb.Point{180, b.Max[1]}},
			{Min: orb.Point{-180, b.Min[1]}, Max: orb.Point{b.Max[0] - 360, b.Max[1]}},
		}
	}
	return []orb.Bound{b}
}
