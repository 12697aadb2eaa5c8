package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/db"
	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"github.com/EmpoweredVote/geo-backend/internal/geoload"
	"github.com/EmpoweredVote/geo-backend/internal/logging"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// CLI flags
var (
	dir         = flag.String("dir", "", "Directory holding states/counties/cities/msas .geojson (default: env GEO_SNAPSHOT_DIR)")
	dsn         = flag.String("dsn", "", "Postgres DSN (default: env DATABASE_URL)")
	dryRun      = flag.Bool("dry-run", false, "Load + link only; no DB writes")
	migrate     = flag.Bool("migrate", true, "Create schema, tables and spatial indexes first")
	advisoryKey = flag.Int64("advisory-lock", 0, "Optional Postgres advisory lock key. 0 = disabled")
)

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	l := logging.Must(os.Getenv("LOG_LEVEL"), "console")

	if *dir == "" {
		*dir = os.Getenv("GEO_SNAPSHOT_DIR")
	}
	if *dir == "" {
		fatalf("--dir not provided and GEO_SNAPSHOT_DIR not set")
	}
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}

	snap, err := geoload.LoadDir(*dir, l)
	if err != nil {
		fatalf("load snapshot: %v", err)
	}
	if len(snap.States) == 0 {
		fatalf("snapshot in %s has no states; counties and cities cannot be linked", *dir)
	}
	printPlan(snap)

	if *dryRun {
		fmt.Println("Dry run complete. No changes made.")
		return
	}
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	if *migrate {
		gdb, err := db.Open(*dsn, db.PoolConfig{MaxOpen: 2, MaxIdle: 1, MaxLifetime: time.Minute}, l)
		if err != nil {
			fatalf("connect: %v", err)
		}
		if err := geographic.Migrate(gdb); err != nil {
			fatalf("migrate: %v", err)
		}
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	conn, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer conn.Close()
	if err := conn.PingContext(ctx); err != nil {
		fatalf("ping: %v", err)
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		fatalf("begin tx: %v", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op if already committed
	}()

	if *advisoryKey != 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, *advisoryKey); err != nil {
			fatalf("advisory lock: %v", err)
		}
	}

	before, err := countAll(ctx, tx)
	if err != nil {
		fatalf("pre-count: %v", err)
	}
	fmt.Printf("Before: %s\n", before)

	if err := upsertSnapshot(ctx, tx, snap); err != nil {
		fatalf("upsert: %v", err)
	}

	after, err := countAll(ctx, tx)
	if err != nil {
		fatalf("post-count: %v", err)
	}
	fmt.Printf("After:  %s\n", after)

	if err := tx.Commit(); err != nil {
		fatalf("commit: %v", err)
	}
	l.Info("seed complete", zap.String("dir", *dir))
}

func printPlan(snap *geoload.Snapshot) {
	linked := 0
	for _, c := range snap.Cities {
		if c.CountyID != nil {
			linked++
		}
	}
	fmt.Println("Plan preview:")
	fmt.Printf("  States:   %d\n", len(snap.States))
	fmt.Printf("  Counties: %d\n", len(snap.Counties))
	fmt.Printf("  Cities:   %d (%d linked to a county)\n", len(snap.Cities), linked)
	fmt.Printf("  MSAs:     %d\n", len(snap.MSAs))
	fmt.Println("  Rows are upserted on geo_id; populations are left untouched.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "❌ "+format+"\n", args...)
	os.Exit(1)
}
