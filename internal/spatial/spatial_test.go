package spatial

import (
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func TestToleranceForZoom(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		zoom float64
		want float64
	}{
		{0, 0.0001},
		{2, 0.0001},
		{3, 0.05},
		{4, 0.05},
		{5, 0.02},
		{6, 0.02},
		{6.5, 0.02},
		{7, 0.01},
		{9, 0.005},
		{11, 0.005},
		{12, 0.001},
		{13, 0.001},
		{14, 0.0005},
		{20, 0.0005},
	}
	for _, tt := range tests {
		if got := p.ToleranceForZoom(tt.zoom); got != tt.want {
			t.Errorf("ToleranceForZoom(%v) = %v, want %v", tt.zoom, got, tt.want)
		}
	}
}

func TestToleranceNonIncreasingAcrossTable(t *testing.T) {
	p := DefaultPolicy()
	prev := p.ToleranceForZoom(3)
	for z := 3.5; z <= 22; z += 0.5 {
		cur := p.ToleranceForZoom(z)
		if cur > prev {
			t.Fatalf("tolerance grew from %v to %v at zoom %v", prev, cur, z)
		}
		prev = cur
	}
}

func TestNewPolicyRejectsBadTables(t *testing.T) {
	cases := map[string][]Threshold{
		"empty":      nil,
		"zero tol":   {{Zoom: 3, Tolerance: 0}},
		"duplicate":  {{Zoom: 3, Tolerance: 0.1}, {Zoom: 3, Tolerance: 0.05}},
		"increasing": {{Zoom: 3, Tolerance: 0.01}, {Zoom: 5, Tolerance: 0.02}},
	}
	for name, th := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewPolicy(th, DefaultFallback); err == nil {
				t.Errorf("expected error for %s table", name)
			}
		})
	}
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("-125,25,-66,49")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Min != (orb.Point{-125, 25}) || b.Max != (orb.Point{-66, 49}) {
		t.Errorf("unexpected bound %v", b)
	}

	if _, err := ParseBBox(" -125 , 25 ,-66, 49"); err != nil {
		t.Errorf("whitespace should be tolerated: %v", err)
	}

	bad := []string{"", "1,2,3", "1,2,3,4,5", "a,2,3,4", "1,NaN,3,4", "10,0,0,10"}
	for _, s := range bad {
		if _, err := ParseBBox(s); err == nil {
			t.Errorf("ParseBBox(%q) should fail", s)
		}
	}
}

func TestCanonicalBBox(t *testing.T) {
	a, _ := ParseBBox("-125,25,-66,49")
	b, _ := ParseBBox("-125.000, 25.0,-66.0000,49")
	if CanonicalBBox(a) != CanonicalBBox(b) {
		t.Errorf("canonical forms differ: %s vs %s", CanonicalBBox(a), CanonicalBBox(b))
	}
}

func TestValidCoordinate(t *testing.T) {
	if !ValidCoordinate(39.1, -86.5) {
		t.Error("expected valid")
	}
	for _, c := range [][2]float64{{91, 0}, {0, -181}, {math.NaN(), 0}, {0, math.Inf(1)}} {
		if ValidCoordinate(c[0], c[1]) {
			t.Errorf("expected %v to be invalid", c)
		}
	}
}

func TestRadiusBoundContainsCircle(t *testing.T) {
	center := orb.Point{-86.5, 39.1}
	radius := 20000.0
	b := RadiusBound(center, radius)

	for _, bearing := range []float64{0, 45, 90, 135, 180, 225, 270, 315} {
		p := destination(center, bearing, radius*0.999)
		if !b.Contains(p) {
			t.Errorf("bearing %v point %v outside bound %v", bearing, p, b)
		}
	}
}

func TestRadiusBoundsSplitAtAntimeridian(t *testing.T) {
	bs := RadiusBounds(orb.Point{179.9, 51.8}, 50000)
	if len(bs) != 2 {
		t.Fatalf("expected two bounds, got %v", bs)
	}
	across := orb.Point{-179.9, 51.8}
	found := false
	for _, b := range bs {
		if b.Min[0] < -180 || b.Max[0] > 180 {
			t.Errorf("bound %v leaves the valid longitude range", b)
		}
		if b.Contains(across) {
			found = true
		}
	}
	if !found {
		t.Error("no bound covers the point across the antimeridian")
	}

	if bs := RadiusBounds(orb.Point{-86.5, 39.2}, 50000); len(bs) != 1 {
		t.Errorf("inland search should not split, got %v", bs)
	}
}

func TestRadiusBoundNearPole(t *testing.T) {
	b := RadiusBound(orb.Point{10, 89.9}, 50000)
	if b.Min[0] != -180 || b.Max[0] != 180 || b.Max[1] != 90 {
		t.Errorf("expected full longitude span capped at pole, got %v", b)
	}
}

func TestRoundKM(t *testing.T) {
	if got := RoundKM(12345); got != 12.35 {
		t.Errorf("RoundKM(12345) = %v", got)
	}
	if got := RoundKM(1000); got != 1 {
		t.Errorf("RoundKM(1000) = %v", got)
	}
}

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

func TestIntersects(t *testing.T) {
	a := orb.MultiPolygon{square(0, 0, 10, 10)}

	tests := []struct {
		name string
		b    orb.MultiPolygon
		want bool
	}{
		{"overlap", orb.MultiPolygon{square(5, 5, 15, 15)}, true},
		{"inside", orb.MultiPolygon{square(2, 2, 3, 3)}, true},
		{"contains", orb.MultiPolygon{square(-5, -5, 20, 20)}, true},
		{"touching edge", orb.MultiPolygon{square(10, 0, 20, 10)}, true},
		{"disjoint", orb.MultiPolygon{square(20, 20, 30, 30)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Intersects(a, tt.b); got != tt.want {
				t.Errorf("Intersects = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntersectsRespectsHoles(t *testing.T) {
	donut := orb.Polygon{
		square(0, 0, 10, 10)[0],
		{{3, 3}, {3, 7}, {7, 7}, {7, 3}, {3, 3}},
	}
	inHole := orb.MultiPolygon{square(4, 4, 6, 6)}
	if Intersects(orb.MultiPolygon{donut}, inHole) {
		t.Error("polygon inside hole should not intersect")
	}
	if Contains(orb.MultiPolygon{donut}, orb.Point{5, 5}) {
		t.Error("point in hole should not be contained")
	}
	if !Contains(orb.MultiPolygon{donut}, orb.Point{1, 1}) {
		t.Error("point in shell should be contained")
	}
}

func TestToMultiPolygon(t *testing.T) {
	if _, err := ToMultiPolygon(orb.Point{1, 2}); err == nil {
		t.Error("point should be rejected")
	}
	mp, err := ToMultiPolygon(square(0, 0, 1, 1))
	if err != nil || len(mp) != 1 {
		t.Errorf("polygon promotion failed: %v %v", mp, err)
	}
}

// wiggly builds a closed ring around a circle with small radial noise, so
// Douglas-Peucker has vertices to drop.
func wiggly(cx, cy, r float64, n int) orb.Ring {
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		rr := r
		if i%2 == 1 {
			rr += r * 0.001
		}
		ring = append(ring, orb.Point{cx + rr*math.Cos(a), cy + rr*math.Sin(a)})
	}
	return append(ring, ring[0])
}

func TestSimplifyPreserveTopologyReducesAndStaysValid(t *testing.T) {
	mp := orb.MultiPolygon{{wiggly(0, 0, 1, 400)}}
	out := SimplifyPreserveTopology(mp, 0.02)

	if len(out[0][0]) >= len(mp[0][0]) {
		t.Fatalf("expected fewer points, got %d from %d", len(out[0][0]), len(mp[0][0]))
	}
	if !Valid(out) {
		t.Error("simplified polygon is invalid")
	}
	if len(mp[0][0]) != 401 {
		t.Error("input was modified")
	}
}

func TestSimplifyPreserveTopologyKeepsHoleInsideShell(t *testing.T) {
	shell := wiggly(0, 0, 1, 200)
	hole := wiggly(0, 0, 0.98, 200)
	// Reverse the hole so orientation differs from the shell.
	for i, j := 0, len(hole)-1; i < j; i, j = i+1, j-1 {
		hole[i], hole[j] = hole[j], hole[i]
	}
	mp := orb.MultiPolygon{{shell, hole}}

	out := SimplifyPreserveTopology(mp, 0.05)
	if !Valid(out) {
		t.Fatal("simplified shell and hole are not a valid polygon")
	}
	for _, r := range out[0] {
		if len(r) < 4 || !r.Closed() {
			t.Fatalf("ring degenerated: %d points", len(r))
		}
	}
	assertHolesInside(t, out[0])
}

// The hole sits inside a small bump of the shell. Flattening the bump at
// this tolerance would leave the hole outside.
func TestSimplifyKeepsBumpThatHoldsHole(t *testing.T) {
	shell := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {6, 10}, {5, 10.4}, {4, 10}, {0, 10}, {0, 0}}
	hole := orb.Ring{{4.9, 10.15}, {5, 10.3}, {5.1, 10.15}, {4.9, 10.15}}
	mp := orb.MultiPolygon{{shell, hole}}
	if !Valid(mp) {
		t.Fatal("fixture should be valid")
	}

	out := SimplifyPreserveTopology(mp, 0.5)
	if len(out[0]) != 2 {
		t.Fatalf("expected shell and hole, got %d rings", len(out[0]))
	}
	assertHolesInside(t, out[0])
	if !Valid(out) {
		t.Error("result is not a valid polygon")
	}
}

// Removing the notch would grow the first shell over the island that sits in
// it.
func TestSimplifyDoesNotSwallowSiblingPolygon(t *testing.T) {
	notched := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {5.4, 10}, {5, 9}, {4.6, 10}, {0, 10}, {0, 0}}}
	island := orb.Polygon{{{4.95, 9.7}, {5.05, 9.7}, {5.05, 9.9}, {4.95, 9.9}, {4.95, 9.7}}}
	mp := orb.MultiPolygon{notched, island}
	if !Valid(mp) {
		t.Fatal("fixture should be valid")
	}

	out := SimplifyPreserveTopology(mp, 1.5)
	if Intersects(orb.MultiPolygon{out[0]}, orb.MultiPolygon{out[1]}) {
		t.Fatal("simplified polygons overlap")
	}
	if !Valid(out) {
		t.Error("result is not a valid multipolygon")
	}
}

func TestSimplifyLargeRingIsFast(t *testing.T) {
	if testing.Short() {
		t.Skip("large ring")
	}
	const n = 40000
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / n
		r := 1.0
		if i%2 == 1 {
			r += 0.003
		}
		ring = append(ring, orb.Point{r * math.Cos(a), r * math.Sin(a)})
	}
	ring = append(ring, ring[0])
	mp := orb.MultiPolygon{{ring}}

	start := time.Now()
	fine := SimplifyPreserveTopology(mp, 0.001)
	coarse := SimplifyPreserveTopology(mp, 0.01)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("simplifying %d vertices took %v", n, elapsed)
	}

	if !Valid(fine) || !Valid(coarse) {
		t.Error("simplified ring is invalid")
	}
	if len(coarse[0][0]) >= n/10 {
		t.Errorf("coarse tolerance kept %d of %d vertices", len(coarse[0][0]), n)
	}
}

func TestSimplifyKeepsRingsThatWouldCollapse(t *testing.T) {
	mp := orb.MultiPolygon{square(0, 0, 0.001, 0.001)}
	out := SimplifyPreserveTopology(mp, 0.05)
	if len(out[0][0]) != 5 {
		t.Errorf("small ring should be untouched, got %d points", len(out[0][0]))
	}
}

func TestValid(t *testing.T) {
	bowtie := orb.MultiPolygon{{{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}}}}
	if Valid(bowtie) {
		t.Error("bowtie should be invalid")
	}
	if !Valid(orb.MultiPolygon{square(0, 0, 1, 1)}) {
		t.Error("square should be valid")
	}
	outside := orb.MultiPolygon{{square(0, 0, 1, 1)[0], square(2, 2, 3, 3)[0]}}
	if Valid(outside) {
		t.Error("hole outside its shell should be invalid")
	}
}

func assertHolesInside(t *testing.T, p orb.Polygon) {
	t.Helper()
	for hi, hole := range p[1:] {
		for _, v := range hole {
			if !planar.RingContains(p[0], v) {
				t.Fatalf("hole %d vertex %v lies outside the shell", hi+1, v)
			}
		}
	}
}

// destination walks distance meters from p along bearing (degrees).
func destination(p orb.Point, bearing, distance float64) orb.Point {
	lat1 := p[1] * math.Pi / 180
	lng1 := p[0] * math.Pi / 180
	brng := bearing * math.Pi / 180
	d := distance / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lng2 := lng1 + math.Atan2(math.Sin(brng)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	return orb.Point{lng2 * 180 / math.Pi, lat2 * 180 / math.Pi}
}
