package spatial

import (
	"fmt"
	"sort"
)

// SRID is the spatial reference every stored and returned geometry uses (WGS84).
const SRID = 4326

// FullFidelityZoom is the first zoom level at which boundaries are returned unsimplified.
const FullFidelityZoom = 12.0

// Threshold maps a minimum zoom level to a simplification tolerance in degrees.
type Threshold struct {
	Zoom      float64 `yaml:"zoom"`
	Tolerance float64 `yaml:"tolerance"`
}

// Policy is a step function from zoom level to simplification tolerance.
// A Policy is immutable after construction and safe for concurrent use.
type Policy struct {
	thresholds []Threshold // sorted by zoom, descending
	fallback   float64
}

// DefaultThresholds is the zoom table used when no override is configured.
var DefaultThresholds = []Threshold{
	{Zoom: 3, Tolerance: 0.05},
	{Zoom: 5, Tolerance: 0.02},
	{Zoom: 7, Tolerance: 0.01},
	{Zoom: 9, Tolerance: 0.005},
	{Zoom: 12, Tolerance: 0.001},
	{Zoom: 14, Tolerance: 0.0005},
}

// DefaultFallback applies to zoom levels below every threshold.
const DefaultFallback = 0.0001

// DefaultPolicy returns the built-in zoom table.
func DefaultPolicy() *Policy {
	p, _ := NewPolicy(DefaultThresholds, DefaultFallback)
	return p
}

// NewPolicy validates and sorts the thresholds. Tolerances must be positive
// and must not increase as zoom increases.
func NewPolicy(thresholds []Threshold, fallback float64) (*Policy, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("tolerance policy: no thresholds")
	}
	if fallback <= 0 {
		return nil, fmt.Errorf("tolerance policy: fallback must be positive, got %v", fallback)
	}

	sorted := make([]Threshold, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Zoom > sorted[j].Zoom })

	for i, t := range sorted {
		if t.Tolerance <= 0 {
			return nil, fmt.Errorf("tolerance policy: zoom %v has non-positive tolerance %v", t.Zoom, t.Tolerance)
		}
		if i > 0 {
			prev := sorted[i-1]
			if prev.Zoom == t.Zoom {
				return nil, fmt.Errorf("tolerance policy: duplicate zoom %v", t.Zoom)
			}
			if prev.Tolerance > t.Tolerance {
				return nil, fmt.Errorf("tolerance policy: tolerance grows with zoom between %v and %v", t.Zoom, prev.Zoom)
			}
		}
	}

	return &Policy{thresholds: sorted, fallback: fallback}, nil
}

// ToleranceForZoom returns the tolerance of the largest threshold <= zoom,
// or the fallback when zoom is below every threshold.
func (p *Policy) ToleranceForZoom(zoom float64) float64 {
	for _, t := range p.thresholds {
		if zoom >= t.Zoom {
			return t.Tolerance
		}
	}
	return p.fallback
}

// Thresholds returns a copy of the table, highest zoom first.
func (p *Policy) Thresholds() []Threshold {
	out := make([]Threshold, len(p.thresholds))
	copy(out, p.thresholds)
	return out
}

// ShouldSimplify reports whether boundaries at zoom are simplified at all.
func ShouldSimplify(zoom float64) bool {
	return zoom < FullFidelityZoom
}
