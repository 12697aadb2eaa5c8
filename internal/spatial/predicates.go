package spatial

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/planar"
	"github.com/peterstace/simplefeatures/geom"
)

// ToMultiPolygon promotes a Polygon to a MultiPolygon. Other geometry types
// are rejected since boundaries are always areal.
func ToMultiPolygon(g orb.Geometry) (orb.MultiPolygon, error) {
	switch v := g.(type) {
	case orb.MultiPolygon:
		return v, nil
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	case orb.Bound:
		return orb.MultiPolygon{v.ToPolygon()}, nil
	case nil:
		return nil, fmt.Errorf("geometry is empty")
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

// Contains reports whether point lies inside mp, holes excluded.
func Contains(mp orb.MultiPolygon, point orb.Point) bool {
	if len(mp) == 0 || !mp.Bound().Contains(point) {
		return false
	}
	return planar.MultiPolygonContains(mp, point)
}

// IntersectsBound reports whether mp shares any point with b.
func IntersectsBound(mp orb.MultiPolygon, b orb.Bound) bool {
	return Intersects(mp, orb.MultiPolygon{b.ToPolygon()})
}

// Intersects reports whether two multipolygons share any point. Touching
// boundaries count as intersecting.
func Intersects(a, b orb.MultiPolygon) bool {
	if len(a) == 0 || len(b) == 0 || !a.Bound().Intersects(b.Bound()) {
		return false
	}
	return intersects(a, b)
}

func intersects(a, b orb.Geometry) bool {
	ga, err := toGeom(a)
	if err != nil {
		return false
	}
	gb, err := toGeom(b)
	if err != nil {
		return false
	}
	return geom.Intersects(ga, gb)
}

// toGeom converts through WKB without validating.
func toGeom(g orb.Geometry) (geom.Geometry, error) {
	b, err := wkb.Marshal(g)
	if err != nil {
		return geom.Geometry{}, err
	}
	return geom.UnmarshalWKB(b, geom.NoValidate{})
}

// validate returns why g is not a valid OGC geometry, or nil.
func validate(g orb.Geometry) error {
	b, err := wkb.Marshal(g)
	if err != nil {
		return err
	}
	_, err = geom.UnmarshalWKB(b)
	return err
}

// Valid reports whether mp is a valid OGC multipolygon: rings are simple,
// holes lie inside their shell and polygon interiors are disjoint.
func Valid(mp orb.MultiPolygon) bool {
	if len(mp) == 0 {
		return false
	}
	for _, p := range mp {
		if len(p) == 0 {
			return false
		}
		for _, hole := range p[1:] {
			if len(hole) == 0 || !planar.RingContains(p[0], hole[0]) {
				return false
			}
		}
	}
	return validate(mp) == nil
}
