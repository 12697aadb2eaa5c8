package geographic

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// EntityType is one of the Census geography tiers.
type EntityType int

const (
	State EntityType = iota + 1
	County
	City
	MSA
)

// typeInfo is the static dispatch table from entity type to its wire name
// and storage table.
var typeInfo = map[EntityType]struct {
	name  string
	table string
	// boundary marks tiers served by the boundary endpoint.
	boundary bool
}{
	State:  {name: "state", table: "geographic.states", boundary: true},
	County: {name: "county", table: "geographic.counties", boundary: true},
	City:   {name: "city", table: "geographic.cities", boundary: true},
	MSA:    {name: "msa", table: "geographic.msas"},
}

func (t EntityType) String() string {
	if info, ok := typeInfo[t]; ok {
		return info.name
	}
	return fmt.Sprintf("EntityType(%d)", int(t))
}

// Table is the fully qualified table backing t.
func (t EntityType) Table() string {
	return typeInfo[t].table
}

// Valid reports whether t is a known tier.
func (t EntityType) Valid() bool {
	_, ok := typeInfo[t]
	return ok
}

// AllTypes lists every tier in hierarchy order.
func AllTypes() []EntityType {
	return []EntityType{State, County, City, MSA}
}

// ParseBoundaryType accepts the types the boundary query serves: state,
// county and city.
func ParseBoundaryType(s string) (EntityType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, info := range typeInfo {
		if info.name == s && info.boundary {
			return t, nil
		}
	}
	return 0, &InvalidArgumentError{Field: "type", Reason: fmt.Sprintf("must be one of state, county, city; got %q", s)}
}

// Entity is the read model shared by every store backend.
type Entity struct {
	ID     uuid.UUID
	Type   EntityType
	GeoID  int64
	Name   string
	FIPS   string
	QFFIPS string
	Slug   string

	// Boundary is nil when the entity was ingested without a shape.
	Boundary orb.MultiPolygon
	Centroid *orb.Point

	StateID  *uuid.UUID
	CountyID *uuid.UUID

	Population *int64
	CreatedAt  time.Time
}

// Neighbor is an entity paired with its distance from a query point.
type Neighbor struct {
	Entity         Entity
	DistanceMeters float64
}

// PopulationUpdate sets the population of the entity with the given FIPS
// code inside a state. StateFIPS is empty for state-level updates.
type PopulationUpdate struct {
	StateFIPS  string
	FIPS       string
	Population int64
}
