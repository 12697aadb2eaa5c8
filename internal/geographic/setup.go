package geographic

import (
	"fmt"

	"github.com/EmpoweredVote/geo-backend/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Init prepares the geographic schema on the shared connection.
func Init() {
	if err := Migrate(db.DB); err != nil {
		zap.L().Fatal("failed to migrate geographic schema", zap.Error(err))
	}
}

// Migrate creates the schema, tables and spatial indexes. It is idempotent.
func Migrate(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "geographic"); err != nil {
		return fmt.Errorf("ensure schema geographic: %w", err)
	}

	for _, ext := range []string{"uuid-ossp", "postgis"} {
		if err := d.Exec(`CREATE EXTENSION IF NOT EXISTS "` + ext + `"`).Error; err != nil {
			return fmt.Errorf("enable %s extension: %w", ext, err)
		}
	}

	if err := d.AutoMigrate(
		&StateRecord{},
		&CountyRecord{},
		&CityRecord{},
		&MSARecord{},
	); err != nil {
		return fmt.Errorf("auto-migrate geographic tables: %w", err)
	}

	// Every spatial predicate in the postgis store must hit one of these.
	for _, kind := range AllTypes() {
		table := kind.Table()
		short := kind.String()
		stmts := []string{
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_boundary_gist ON %s USING GIST (boundary)`, short, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_centroid_gist ON %s USING GIST (centroid)`, short, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_centroid_geog_gist ON %s USING GIST ((centroid::geography))`, short, table),
		}
		for _, stmt := range stmts {
			if err := d.Exec(stmt).Error; err != nil {
				return fmt.Errorf("create spatial index on %s: %w", table, err)
			}
		}
	}

	return nil
}
