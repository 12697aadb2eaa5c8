// Package geoload reads TIGER/Line boundaries exported as GeoJSON into
// geographic entities. It feeds the in-memory store and the seed tool.
package geoload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"github.com/EmpoweredVote/geo-backend/internal/spatial"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// File names expected in a snapshot directory.
const (
	StatesFile   = "states.geojson"
	CountiesFile = "counties.geojson"
	CitiesFile   = "cities.geojson"
	MSAsFile     = "msas.geojson"
)

// cityLSAD is the TIGER legal/statistical area code for incorporated cities.
const cityLSAD = "25"

// Namespace seeds the deterministic entity ids, so reloading a snapshot
// yields the same ids.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://empowered.vote/geographic"))

// Snapshot is one fully linked load.
type Snapshot struct {
	States   []geographic.Entity
	Counties []geographic.Entity
	Cities   []geographic.Entity
	MSAs     []geographic.Entity

	// Abbreviations maps state id to its postal code.
	Abbreviations map[uuid.UUID]string
}

// All returns every entity, parents first.
func (s *Snapshot) All() []geographic.Entity {
	out := make([]geographic.Entity, 0, len(s.States)+len(s.Counties)+len(s.Cities)+len(s.MSAs))
	out = append(out, s.States...)
	out = append(out, s.Counties...)
	out = append(out, s.Cities...)
	return append(out, s.MSAs...)
}

func EntityID(kind geographic.EntityType, geoid string) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(kind.String()+":"+geoid))
}

type loader struct {
	log *zap.Logger
	now time.Time

	snap       *Snapshot
	stateByFP  map[string]*geographic.Entity
	countiesFP map[string][]int
}

// LoadDir reads every snapshot file present in dir. A missing file loads
// nothing for its tier; counties and cities need states to link against.
func LoadDir(dir string, l *zap.Logger) (*Snapshot, error) {
	if l == nil {
		l = zap.NewNop()
	}
	ld := &loader{
		log:        l.Named("geoload"),
		now:        time.Now().UTC(),
		snap:       &Snapshot{Abbreviations: map[uuid.UUID]string{}},
		stateByFP:  map[string]*geographic.Entity{},
		countiesFP: map[string][]int{},
	}

	steps := []struct {
		file string
		fn   func(*geojson.FeatureCollection) error
	}{
		{StatesFile, ld.states},
		{CountiesFile, ld.counties},
		{CitiesFile, ld.cities},
		{MSAsFile, ld.msas},
	}
	for _, step := range steps {
		fc, err := readCollection(filepath.Join(dir, step.file))
		if errors.Is(err, fs.ErrNotExist) {
			ld.log.Warn("snapshot file missing, skipping", zap.String("file", step.file))
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := step.fn(fc); err != nil {
			return nil, fmt.Errorf("%s: %w", step.file, err)
		}
	}

	ld.log.Info("snapshot loaded",
		zap.String("dir", dir),
		zap.Int("states", len(ld.snap.States)),
		zap.Int("counties", len(ld.snap.Counties)),
		zap.Int("cities", len(ld.snap.Cities)),
		zap.Int("msas", len(ld.snap.MSAs)),
	)
	return ld.snap, nil
}

func readCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return fc, nil
}

// prop reads a TIGER attribute. Some exporters write codes as numbers.
func prop(f *geojson.Feature, key string) string {
	switch v := f.Properties[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// shape promotes the feature geometry to a MultiPolygon and computes its
// area-weighted centroid.
func shape(f *geojson.Feature) (orb.MultiPolygon, *orb.Point, error) {
	mp, err := spatial.ToMultiPolygon(f.Geometry)
	if err != nil {
		return nil, nil, err
	}
	if len(mp) == 0 {
		return nil, nil, errors.New("empty geometry")
	}
	c, area := planar.CentroidArea(mp)
	if area == 0 {
		return mp, nil, nil
	}
	return mp, &c, nil
}

func (ld *loader) base(kind geographic.EntityType, f *geojson.Feature, fips string) (geographic.Entity, bool) {
	geoid := prop(f, "GEOID")
	name := norm.NFC.String(prop(f, "NAME"))
	gid, err := strconv.ParseInt(geoid, 10, 64)
	if err != nil || name == "" {
		ld.log.Warn("feature missing GEOID or NAME, skipping",
			zap.String("type", kind.String()), zap.String("geoid", geoid), zap.String("name", name))
		return geographic.Entity{}, false
	}
	mp, centroid, err := shape(f)
	if err != nil {
		ld.log.Warn("feature geometry unusable, skipping",
			zap.String("type", kind.String()), zap.String("geoid", geoid), zap.Error(err))
		return geographic.Entity{}, false
	}
	return geographic.Entity{
		ID:        EntityID(kind, geoid),
		Type:      kind,
		GeoID:     gid,
		Name:      name,
		FIPS:      fips,
		Boundary:  mp,
		Centroid:  centroid,
		CreatedAt: ld.now,
	}, true
}

func (ld *loader) states(fc *geojson.FeatureCollection) error {
	for _, f := range fc.Features {
		fp := prop(f, "STATEFP")
		e, ok := ld.base(geographic.State, f, fp)
		if !ok || fp == "" {
			continue
		}
		abbr := prop(f, "STUSPS")
		e.QFFIPS = geographic.QuickFactsFIPS(geographic.State, fp, fp)
		e.Slug = geographic.Slug(geographic.State, abbr, e.QFFIPS)
		ld.snap.States = append(ld.snap.States, e)
		ld.snap.Abbreviations[e.ID] = abbr
	}
	for i := range ld.snap.States {
		ld.stateByFP[ld.snap.States[i].FIPS] = &ld.snap.States[i]
	}
	return nil
}

func (ld *loader) counties(fc *geojson.FeatureCollection) error {
	for _, f := range fc.Features {
		stateFP, countyFP := prop(f, "STATEFP"), prop(f, "COUNTYFP")
		state, ok := ld.stateByFP[stateFP]
		if !ok {
			ld.log.Warn("county state not found, skipping",
				zap.String("state_fips", stateFP), zap.String("name", prop(f, "NAME")))
			continue
		}
		e, ok := ld.base(geographic.County, f, countyFP)
		if !ok {
			continue
		}
		sid := state.ID
		e.StateID = &sid
		e.QFFIPS = geographic.QuickFactsFIPS(geographic.County, stateFP, countyFP)
		e.Slug = geographic.Slug(geographic.County, "", e.QFFIPS)

		ld.countiesFP[stateFP] = append(ld.countiesFP[stateFP], len(ld.snap.Counties))
		ld.snap.Counties = append(ld.snap.Counties, e)
	}
	return nil
}

func (ld *loader) cities(fc *geojson.FeatureCollection) error {
	skipped := 0
	for _, f := range fc.Features {
		if prop(f, "LSAD") != cityLSAD {
			skipped++
			continue
		}
		stateFP, placeFP := prop(f, "STATEFP"), prop(f, "PLACEFP")
		state, ok := ld.stateByFP[stateFP]
		if !ok {
			ld.log.Warn("city state not found, skipping",
				zap.String("state_fips", stateFP), zap.String("name", prop(f, "NAME")))
			continue
		}
		e, ok := ld.base(geographic.City, f, placeFP)
		if !ok {
			continue
		}
		sid := state.ID
		e.StateID = &sid
		e.QFFIPS = geographic.QuickFactsFIPS(geographic.City, stateFP, placeFP)
		e.Slug = geographic.Slug(geographic.City, "", e.QFFIPS)
		e.CountyID = ld.countyContaining(stateFP, e.Centroid)

		ld.snap.Cities = append(ld.snap.Cities, e)
	}
	if skipped > 0 {
		ld.log.Debug("skipped non-city places", zap.Int("count", skipped))
	}
	return nil
}

// countyContaining returns the first county of the state whose boundary
// contains the city centroid, or nil.
func (ld *loader) countyContaining(stateFP string, centroid *orb.Point) *uuid.UUID {
	if centroid == nil {
		return nil
	}
	for _, i := range ld.countiesFP[stateFP] {
		c := ld.snap.Counties[i]
		if !c.Boundary.Bound().Contains(*centroid) {
			continue
		}
		if spatial.Contains(c.Boundary, *centroid) {
			id := c.ID
			return &id
		}
	}
	return nil
}

func (ld *loader) msas(fc *geojson.FeatureCollection) error {
	for _, f := range fc.Features {
		cbsa := prop(f, "CBSAFP")
		if cbsa == "" {
			cbsa = prop(f, "GEOID")
		}
		e, ok := ld.base(geographic.MSA, f, cbsa)
		if !ok {
			continue
		}
		e.QFFIPS = cbsa
		e.Slug = geographic.Slug(geographic.MSA, "", cbsa)
		ld.snap.MSAs = append(ld.snap.MSAs, e)
	}
	return nil
}
