package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"github.com/EmpoweredVote/geo-backend/internal/geoload"
	"github.com/google/uuid"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/schollz/progressbar/v3"
)

type Counts struct {
	States   int64
	Counties int64
	Cities   int64
	MSAs     int64
}

func (c Counts) String() string {
	return fmt.Sprintf("states=%d counties=%d cities=%d msas=%d", c.States, c.Counties, c.Cities, c.MSAs)
}

// Parents are resolved through geo_id rather than the snapshot ids, so rows
// created by an earlier seed keep their primary keys.
const (
	upsertState = `
INSERT INTO geographic.states (id, geo_id, name, abbreviation, fips, qf_fips, boundary, centroid, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, ST_Multi(ST_GeomFromText($7, 4326)), ST_GeomFromText($8, 4326), now(), now())
ON CONFLICT (geo_id) DO UPDATE SET
	name = EXCLUDED.name, abbreviation = EXCLUDED.abbreviation, fips = EXCLUDED.fips,
	qf_fips = EXCLUDED.qf_fips, boundary = EXCLUDED.boundary, centroid = EXCLUDED.centroid,
	updated_at = now()`

	upsertCounty = `
INSERT INTO geographic.counties (id, geo_id, name, fips, qf_fips, state_id, boundary, centroid, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, (SELECT id FROM geographic.states WHERE geo_id = $6),
	ST_Multi(ST_GeomFromText($7, 4326)), ST_GeomFromText($8, 4326), now(), now())
ON CONFLICT (geo_id) DO UPDATE SET
	name = EXCLUDED.name, fips = EXCLUDED.fips, qf_fips = EXCLUDED.qf_fips, state_id = EXCLUDED.state_id,
	boundary = EXCLUDED.boundary, centroid = EXCLUDED.centroid, updated_at = now()`

	upsertCity = `
INSERT INTO geographic.cities (id, geo_id, name, fips, qf_fips, state_id, county_id, boundary, centroid, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, (SELECT id FROM geographic.states WHERE geo_id = $6),
	(SELECT id FROM geographic.counties WHERE geo_id = $7),
	ST_Multi(ST_GeomFromText($8, 4326)), ST_GeomFromText($9, 4326), now(), now())
ON CONFLICT (geo_id) DO UPDATE SET
	name = EXCLUDED.name, fips = EXCLUDED.fips, qf_fips = EXCLUDED.qf_fips, state_id = EXCLUDED.state_id,
	county_id = EXCLUDED.county_id, boundary = EXCLUDED.boundary, centroid = EXCLUDED.centroid, updated_at = now()`

	upsertMSA = `
INSERT INTO geographic.msas (id, geo_id, name, fips, boundary, centroid, created_at, updated_at)
VALUES ($1, $2, $3, $4, ST_Multi(ST_GeomFromText($5, 4326)), ST_GeomFromText($6, 4326), now(), now())
ON CONFLICT (geo_id) DO UPDATE SET
	name = EXCLUDED.name, fips = EXCLUDED.fips, boundary = EXCLUDED.boundary,
	centroid = EXCLUDED.centroid, updated_at = now()`
)

func upsertSnapshot(ctx context.Context, tx *sql.Tx, snap *geoload.Snapshot) error {
	geoIDs := make(map[uuid.UUID]int64, len(snap.States)+len(snap.Counties))
	for _, s := range snap.States {
		geoIDs[s.ID] = s.GeoID
	}
	for _, c := range snap.Counties {
		geoIDs[c.ID] = c.GeoID
	}
	parent := func(id *uuid.UUID) sql.NullInt64 {
		if id == nil {
			return sql.NullInt64{}
		}
		g, ok := geoIDs[*id]
		return sql.NullInt64{Int64: g, Valid: ok}
	}

	bar := progressbar.NewOptions(len(snap.All()),
		progressbar.OptionSetDescription("Upserting boundaries"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
		progressbar.OptionFullWidth(),
	)

	exec := func(kind geographic.EntityType, query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%s %v: %w", kind, args[1], err)
		}
		return bar.Add(1)
	}

	for _, s := range snap.States {
		if err := exec(geographic.State, upsertState,
			s.ID, s.GeoID, s.Name, snap.Abbreviations[s.ID], s.FIPS, s.QFFIPS,
			wkt.MarshalString(s.Boundary), centroidWKT(s)); err != nil {
			return err
		}
	}
	for _, c := range snap.Counties {
		if err := exec(geographic.County, upsertCounty,
			c.ID, c.GeoID, c.Name, c.FIPS, c.QFFIPS, parent(c.StateID),
			wkt.MarshalString(c.Boundary), centroidWKT(c)); err != nil {
			return err
		}
	}
	for _, c := range snap.Cities {
		if err := exec(geographic.City, upsertCity,
			c.ID, c.GeoID, c.Name, c.FIPS, c.QFFIPS, parent(c.StateID), parent(c.CountyID),
			wkt.MarshalString(c.Boundary), centroidWKT(c)); err != nil {
			return err
		}
	}
	for _, m := range snap.MSAs {
		if err := exec(geographic.MSA, upsertMSA,
			m.ID, m.GeoID, m.Name, m.FIPS,
			wkt.MarshalString(m.Boundary), centroidWKT(m)); err != nil {
			return err
		}
	}
	return bar.Finish()
}

func centroidWKT(e geographic.Entity) sql.NullString {
	if e.Centroid == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: wkt.MarshalString(*e.Centroid), Valid: true}
}

func countAll(ctx context.Context, tx *sql.Tx) (Counts, error) {
	var c Counts
	targets := []struct {
		table string
		dst   *int64
	}{
		{geographic.State.Table(), &c.States},
		{geographic.County.Table(), &c.Counties},
		{geographic.City.Table(), &c.Cities},
		{geographic.MSA.Table(), &c.MSAs},
	}
	for _, t := range targets {
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM `+t.table).Scan(t.dst); err != nil {
			return c, err
		}
	}
	return c, nil
}
