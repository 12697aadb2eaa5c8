package geographic

import (
	"time"

	"github.com/google/uuid"
)

// Boundary and centroid columns are PostGIS geometries in SRID 4326. They are
// written through ST_GeomFromText/ST_GeomFromWKB and read back as WKB by the
// postgis store, so the gorm fields only carry the column definitions.

type StateRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GeoID        int64     `gorm:"uniqueIndex" json:"geoid"`
	Name         string    `gorm:"size:100" json:"name"`
	Abbreviation string    `gorm:"size:2;uniqueIndex" json:"abbreviation"`
	FIPS         string    `gorm:"size:2;uniqueIndex" json:"fips"`
	QFFIPS       string    `gorm:"column:qf_fips;size:2" json:"qf_fips"`
	Population   *int64    `json:"population"`
	Boundary     *string   `gorm:"type:geometry(MultiPolygon,4326)" json:"-"`
	Centroid     *string   `gorm:"type:geometry(Point,4326)" json:"-"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (StateRecord) TableName() string {
	return "geographic.states"
}

type CountyRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GeoID      int64     `gorm:"uniqueIndex" json:"geoid"`
	Name       string    `gorm:"size:100" json:"name"`
	StateID    uuid.UUID `gorm:"type:uuid;index;not null" json:"state_id"`
	FIPS       string    `gorm:"size:3" json:"fips"`
	QFFIPS     string    `gorm:"column:qf_fips;size:5;index" json:"qf_fips"`
	Population *int64    `json:"population"`
	Boundary   *string   `gorm:"type:geometry(MultiPolygon,4326)" json:"-"`
	Centroid   *string   `gorm:"type:geometry(Point,4326)" json:"-"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	State StateRecord `gorm:"foreignKey:StateID;constraint:OnDelete:CASCADE" json:"-"`
}

func (CountyRecord) TableName() string {
	return "geographic.counties"
}

type CityRecord struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GeoID      int64      `gorm:"uniqueIndex" json:"geoid"`
	Name       string     `gorm:"size:100" json:"name"`
	StateID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"state_id"`
	CountyID   *uuid.UUID `gorm:"type:uuid;index" json:"county_id"`
	FIPS       string     `gorm:"size:5" json:"fips"`
	QFFIPS     string     `gorm:"column:qf_fips;size:7;index" json:"qf_fips"`
	Population *int64     `json:"population"`
	Boundary   *string    `gorm:"type:geometry(MultiPolygon,4326)" json:"-"`
	Centroid   *string    `gorm:"type:geometry(Point,4326)" json:"-"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	State  StateRecord   `gorm:"foreignKey:StateID;constraint:OnDelete:CASCADE" json:"-"`
	County *CountyRecord `gorm:"foreignKey:CountyID;constraint:OnDelete:SET NULL" json:"-"`
}

func (CityRecord) TableName() string {
	return "geographic.cities"
}

type MSARecord struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GeoID     int64     `gorm:"uniqueIndex" json:"geoid"`
	Name      string    `gorm:"size:150" json:"name"`
	FIPS      string    `gorm:"size:5" json:"fips"`
	Boundary  *string   `gorm:"type:geometry(MultiPolygon,4326)" json:"-"`
	Centroid  *string   `gorm:"type:geometry(Point,4326)" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MSARecord) TableName() string {
	return "geographic.msas"
}
