package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// maxSimplifyAttempts bounds how many times a polygon's tolerance is halved
// before the polygon is kept as-is.
const maxSimplifyAttempts = 4

// SimplifyPreserveTopology reduces vertices with Douglas-Peucker at tolerance
// (degrees) while keeping the result valid. Each polygon is simplified on its
// own. A candidate is rejected, and the tolerance halved, when it is not a
// valid polygon (holes must stay inside the shell and no ring may cross
// another) or when it meets a sibling polygon the original did not meet. A
// polygon that never simplifies validly is kept at full detail. The input is
// not modified.
func SimplifyPreserveTopology(mp orb.MultiPolygon, tolerance float64) orb.MultiPolygon {
	out := mp.Clone()
	if tolerance <= 0 {
		return out
	}

	for pi := range out {
		original := mp[pi]
		if !simplifiable(original) {
			continue
		}

		tol := tolerance
		for attempt := 0; attempt < maxSimplifyAttempts; attempt++ {
			candidate := simplifyPolygon(original, tol)
			if polygonValid(candidate) && !meetsNewSibling(mp, out, pi, candidate) {
				out[pi] = candidate
				break
			}
			tol /= 2
		}
	}
	return out
}

func simplifiable(p orb.Polygon) bool {
	for _, r := range p {
		if len(r) > 4 {
			return true
		}
	}
	return false
}

// simplifyPolygon simplifies every ring. A ring that would collapse below a
// triangle keeps its original points.
func simplifyPolygon(p orb.Polygon, tol float64) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		if len(r) <= 4 {
			out[i] = r.Clone()
			continue
		}
		s := simplify.DouglasPeucker(tol).Ring(r.Clone())
		if !ringUsable(s) {
			s = r.Clone()
		}
		out[i] = s
	}
	return out
}

func ringUsable(r orb.Ring) bool {
	return len(r) >= 4 && r.Closed() && planar.Area(r) != 0
}

// polygonValid requires usable rings, every hole inside the shell, and an OGC
// valid polygon (no crossing or self-intersecting rings).
func polygonValid(p orb.Polygon) bool {
	if len(p) == 0 {
		return false
	}
	for i, r := range p {
		if !ringUsable(r) {
			return false
		}
		// Rings do not cross once validation passes, so one vertex places
		// the whole hole.
		if i > 0 && !planar.RingContains(p[0], r[0]) {
			return false
		}
	}
	return validate(p) == nil
}

// meetsNewSibling reports whether candidate meets a polygon of current that
// the original polygon pi did not meet. A shell grown over a neighbouring
// island is caught here.
func meetsNewSibling(original, current orb.MultiPolygon, pi int, candidate orb.Polygon) bool {
	cb := candidate.Bound()
	for qi, q := range current {
		if qi == pi || len(q) == 0 || !cb.Intersects(q.Bound()) {
			continue
		}
		if !intersects(candidate, q) {
			continue
		}
		if !original[pi].Bound().Intersects(original[qi].Bound()) || !intersects(original[pi], original[qi]) {
			return true
		}
	}
	return false
}
