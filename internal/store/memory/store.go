// Package memory is a Geometry Store held entirely in process, indexed by
// R-trees over boundary bounds and centroids.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"github.com/EmpoweredVote/geo-backend/internal/spatial"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

type index struct {
	entities   map[uuid.UUID]*geographic.Entity
	boundaries rtree.RTreeG[uuid.UUID]
	centroids  rtree.RTreeG[uuid.UUID]
}

func newIndex() *index {
	return &index{entities: make(map[uuid.UUID]*geographic.Entity)}
}

// Store is safe for concurrent use. Returned entities share geometry slices
// with the store and must be treated as read-only.
type Store struct {
	mu     sync.RWMutex
	byType map[geographic.EntityType]*index
}

func New() *Store {
	s := &Store{byType: make(map[geographic.EntityType]*index)}
	for _, t := range geographic.AllTypes() {
		s.byType[t] = newIndex()
	}
	return s
}

func bounds(b orb.Bound) ([2]float64, [2]float64) {
	return [2]float64{b.Min[0], b.Min[1]}, [2]float64{b.Max[0], b.Max[1]}
}

// Upsert inserts e or replaces the entity with the same ID.
func (s *Store) Upsert(e geographic.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byType[e.Type]
	if !ok {
		return
	}
	if old, ok := idx.entities[e.ID]; ok {
		idx.remove(old)
	}

	stored := e
	idx.entities[e.ID] = &stored
	if len(stored.Boundary) > 0 {
		min, max := bounds(stored.Boundary.Bound())
		idx.boundaries.Insert(min, max, stored.ID)
	}
	if stored.Centroid != nil {
		p := [2]float64{stored.Centroid[0], stored.Centroid[1]}
		idx.centroids.Insert(p, p, stored.ID)
	}
}

func (idx *index) remove(e *geographic.Entity) {
	if len(e.Boundary) > 0 {
		min, max := bounds(e.Boundary.Bound())
		idx.boundaries.Delete(min, max, e.ID)
	}
	if e.Centroid != nil {
		p := [2]float64{e.Centroid[0], e.Centroid[1]}
		idx.centroids.Delete(p, p, e.ID)
	}
	delete(idx.entities, e.ID)
}

// Load upserts every entity.
func (s *Store) Load(entities []geographic.Entity) {
	for _, e := range entities {
		s.Upsert(e)
	}
}

// Len returns how many entities of kind are stored.
func (s *Store) Len(kind geographic.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.byType[kind]; ok {
		return len(idx.entities)
	}
	return 0
}

func (s *Store) lookup(kind geographic.EntityType) (*index, error) {
	idx, ok := s.byType[kind]
	if !ok {
		return nil, geographic.Invalid("type", "unknown entity type %s", kind)
	}
	return idx, nil
}

func (s *Store) Intersecting(ctx context.Context, kind geographic.EntityType, area orb.MultiPolygon) ([]geographic.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.lookup(kind)
	if err != nil {
		return nil, err
	}

	var out []geographic.Entity
	min, max := bounds(area.Bound())
	idx.boundaries.Search(min, max, func(_, _ [2]float64, id uuid.UUID) bool {
		e := idx.entities[id]
		if spatial.Intersects(e.Boundary, area) {
			out = append(out, *e)
		}
		return true
	})
	newestFirst(out)
	return out, nil
}

func (s *Store) Containing(ctx context.Context, kind geographic.EntityType, point orb.Point) ([]geographic.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.lookup(kind)
	if err != nil {
		return nil, err
	}

	var out []geographic.Entity
	p := [2]float64{point[0], point[1]}
	idx.boundaries.Search(p, p, func(_, _ [2]float64, id uuid.UUID) bool {
		e := idx.entities[id]
		if spatial.Contains(e.Boundary, point) {
			out = append(out, *e)
		}
		return true
	})
	newestFirst(out)
	return out, nil
}

func (s *Store) WithinDistance(ctx context.Context, kind geographic.EntityType, point orb.Point, radiusMeters float64) ([]geographic.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.lookup(kind)
	if err != nil {
		return nil, err
	}

	var out []geographic.Neighbor
	seen := map[uuid.UUID]bool{}
	for _, b := range spatial.RadiusBounds(point, radiusMeters) {
		min, max := bounds(b)
		idx.centroids.Search(min, max, func(_, _ [2]float64, id uuid.UUID) bool {
			if seen[id] {
				return true
			}
			seen[id] = true
			e := idx.entities[id]
			d := spatial.DistanceMeters(point, *e.Centroid)
			if d <= radiusMeters {
				out = append(out, geographic.Neighbor{Entity: *e, DistanceMeters: d})
			}
			return true
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].Entity.GeoID < out[j].Entity.GeoID
	})
	return out, nil
}

// UpdatePopulations matches updates by QuickFacts code and returns how many
// entities changed.
func (s *Store) UpdatePopulations(ctx context.Context, kind geographic.EntityType, updates []geographic.PopulationUpdate) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.lookup(kind)
	if err != nil {
		return 0, err
	}

	byQF := make(map[string]*geographic.Entity, len(idx.entities))
	for _, e := range idx.entities {
		byQF[e.QFFIPS] = e
	}

	n := 0
	for _, u := range updates {
		e, ok := byQF[geographic.QuickFactsFIPS(kind, u.StateFIPS, u.FIPS)]
		if !ok {
			continue
		}
		pop := u.Population
		e.Population = &pop
		n++
	}
	return n, nil
}

func (s *Store) StateFIPS(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byType[geographic.State].entities))
	for _, e := range s.byType[geographic.State].entities {
		out = append(out, e.FIPS)
	}
	sort.Strings(out)
	return out, nil
}

func newestFirst(es []geographic.Entity) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.After(es[j].CreatedAt)
		}
		return es[i].GeoID < es[j].GeoID
	})
}
