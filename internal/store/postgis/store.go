// Package postgis answers Geometry Store queries with PostGIS spatial SQL
// over the GiST-indexed geographic.* tables.
package postgis

import (
	"context"
	"fmt"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"github.com/EmpoweredVote/geo-backend/internal/spatial"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// columns selects the shared read model from each table. Tiers without a
// parent or population fill those columns with typed NULLs.
var columns = map[geographic.EntityType]string{
	geographic.State: `id, geo_id, name, fips, qf_fips, abbreviation AS slug_hint,
		NULL::uuid AS state_id, NULL::uuid AS county_id, population, created_at`,
	geographic.County: `id, geo_id, name, fips, qf_fips, '' AS slug_hint,
		state_id, NULL::uuid AS county_id, population, created_at`,
	geographic.City: `id, geo_id, name, fips, qf_fips, '' AS slug_hint,
		state_id, county_id, population, created_at`,
	geographic.MSA: `id, geo_id, name, fips, fips AS qf_fips, '' AS slug_hint,
		NULL::uuid AS state_id, NULL::uuid AS county_id, NULL::bigint AS population, created_at`,
}

const geometryColumns = `, ST_AsBinary(boundary) AS boundary_wkb, ST_AsBinary(centroid) AS centroid_wkb`

type row struct {
	ID          uuid.UUID
	GeoID       int64
	Name        string
	FIPS        string `gorm:"column:fips"`
	QFFIPS      string `gorm:"column:qf_fips"`
	SlugHint    string
	StateID     *uuid.UUID
	CountyID    *uuid.UUID
	Population  *int64
	CreatedAt   time.Time
	BoundaryWKB []byte `gorm:"column:boundary_wkb"`
	CentroidWKB []byte `gorm:"column:centroid_wkb"`
	Distance    float64
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(d *gorm.DB, l *zap.Logger) *Store {
	if l == nil {
		l = zap.NewNop()
	}
	return &Store{db: d, log: l.Named("postgis")}
}

func selectFrom(kind geographic.EntityType) (string, error) {
	cols, ok := columns[kind]
	if !ok {
		return "", geographic.Invalid("type", "unknown entity type %s", kind)
	}
	return "SELECT " + cols + geometryColumns + " FROM " + kind.Table(), nil
}

func (s *Store) Intersecting(ctx context.Context, kind geographic.EntityType, area orb.MultiPolygon) ([]geographic.Entity, error) {
	base, err := selectFrom(kind)
	if err != nil {
		return nil, err
	}
	areaWKB, err := wkb.Marshal(area)
	if err != nil {
		return nil, geographic.Invalid("geometry", "cannot encode query area: %v", err)
	}

	query := base + `
		WHERE boundary IS NOT NULL
		  AND ST_Intersects(boundary, ST_GeomFromWKB(?, 4326))
		ORDER BY created_at DESC, geo_id ASC`

	var rows []row
	if err := s.db.WithContext(ctx).Raw(query, areaWKB).Scan(&rows).Error; err != nil {
		return nil, geographic.Unavailable("intersecting "+kind.String(), err)
	}
	return s.entities(kind, rows), nil
}

func (s *Store) Containing(ctx context.Context, kind geographic.EntityType, point orb.Point) ([]geographic.Entity, error) {
	base, err := selectFrom(kind)
	if err != nil {
		return nil, err
	}

	query := base + `
		WHERE boundary IS NOT NULL
		  AND ST_Contains(boundary, ST_SetSRID(ST_MakePoint(?, ?), 4326))
		ORDER BY created_at DESC, geo_id ASC`

	var rows []row
	if err := s.db.WithContext(ctx).Raw(query, point[0], point[1]).Scan(&rows).Error; err != nil {
		return nil, geographic.Unavailable("containing "+kind.String(), err)
	}
	return s.entities(kind, rows), nil
}

func (s *Store) WithinDistance(ctx context.Context, kind geographic.EntityType, point orb.Point, radiusMeters float64) ([]geographic.Neighbor, error) {
	cols, ok := columns[kind]
	if !ok {
		return nil, geographic.Invalid("type", "unknown entity type %s", kind)
	}

	// ST_DWithin on geography is inclusive and uses the centroid_geog index.
	query := `SELECT * FROM (
		SELECT ` + cols + geometryColumns + `,
		       ST_Distance(centroid::geography, q.pt) AS distance
		FROM ` + kind.Table() + `,
		     (SELECT ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography AS pt) AS q
		WHERE centroid IS NOT NULL
		  AND ST_DWithin(centroid::geography, q.pt, ?)
	) AS near
	ORDER BY distance ASC, geo_id ASC`

	var rows []row
	if err := s.db.WithContext(ctx).Raw(query, point[0], point[1], radiusMeters).Scan(&rows).Error; err != nil {
		return nil, geographic.Unavailable("within distance "+kind.String(), err)
	}

	entities := s.entities(kind, rows)
	out := make([]geographic.Neighbor, len(entities))
	for i := range entities {
		out[i] = geographic.Neighbor{Entity: entities[i], DistanceMeters: rows[i].Distance}
	}
	return out, nil
}

func (s *Store) entities(kind geographic.EntityType, rows []row) []geographic.Entity {
	out := make([]geographic.Entity, 0, len(rows))
	for _, r := range rows {
		e := geographic.Entity{
			ID:         r.ID,
			Type:       kind,
			GeoID:      r.GeoID,
			Name:       r.Name,
			FIPS:       r.FIPS,
			QFFIPS:     r.QFFIPS,
			Slug:       geographic.Slug(kind, r.SlugHint, r.QFFIPS),
			StateID:    r.StateID,
			CountyID:   r.CountyID,
			Population: r.Population,
			CreatedAt:  r.CreatedAt,
		}

		if len(r.BoundaryWKB) > 0 {
			mp, err := decodeBoundary(r.BoundaryWKB)
			if err != nil {
				s.log.Warn("undecodable boundary", zap.String("type", kind.String()), zap.Int64("geoid", r.GeoID), zap.Error(err))
			} else {
				e.Boundary = mp
			}
		}
		if len(r.CentroidWKB) > 0 {
			g, err := wkb.Unmarshal(r.CentroidWKB)
			if p, ok := g.(orb.Point); err == nil && ok {
				e.Centroid = &p
			} else {
				s.log.Warn("undecodable centroid", zap.String("type", kind.String()), zap.Int64("geoid", r.GeoID), zap.Error(err))
			}
		}
		out = append(out, e)
	}
	return out
}

func decodeBoundary(b []byte) (orb.MultiPolygon, error) {
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	return spatial.ToMultiPolygon(g)
}

// UpdatePopulations writes every update for kind in one statement, matching
// rows on their QuickFacts code.
func (s *Store) UpdatePopulations(ctx context.Context, kind geographic.EntityType, updates []geographic.PopulationUpdate) (int, error) {
	if kind != geographic.State && kind != geographic.County && kind != geographic.City {
		return 0, geographic.Invalid("type", "%s has no population", kind)
	}
	if len(updates) == 0 {
		return 0, nil
	}

	codes := make([]string, len(updates))
	pops := make([]int64, len(updates))
	for i, u := range updates {
		codes[i] = geographic.QuickFactsFIPS(kind, u.StateFIPS, u.FIPS)
		pops[i] = u.Population
	}

	query := fmt.Sprintf(`
		UPDATE %s AS t
		SET population = u.population, updated_at = now()
		FROM (SELECT unnest(?::text[]) AS qf_fips, unnest(?::bigint[]) AS population) AS u
		WHERE t.qf_fips = u.qf_fips`, kind.Table())

	res := s.db.WithContext(ctx).Exec(query, pq.Array(codes), pq.Array(pops))
	if res.Error != nil {
		return 0, geographic.Unavailable("update "+kind.String()+" population", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *Store) StateFIPS(ctx context.Context) ([]string, error) {
	var out []string
	if err := s.db.WithContext(ctx).Table(geographic.State.Table()).Order("fips").Pluck("fips", &out).Error; err != nil {
		return nil, geographic.Unavailable("list states", err)
	}
	return out, nil
}
