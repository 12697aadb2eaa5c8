package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/backend"
	"github.com/EmpoweredVote/geo-backend/internal/config"
	"github.com/EmpoweredVote/geo-backend/internal/logging"
	"github.com/EmpoweredVote/geo-backend/internal/regions"
	"go.uber.org/zap"
)

var (
	lat    = flag.Float64("lat", 39.1653, "Latitude")
	lng    = flag.Float64("lng", -86.5264, "Longitude")
	radius = flag.Float64("radius", regions.DefaultRadiusMeters, "Nearby-city radius in meters")
)

func orNone(s *string) string {
	if s == nil {
		return "(none)"
	}
	return *s
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	l := logging.Must(cfg.LogLevel, "console")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, _, err := backend.OpenStore(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to open geometry store", zap.Error(err))
	}
	engine := regions.NewEngine(store, l)

	region, err := engine.EncompassingRegion(ctx, *lat, *lng)
	if err != nil {
		l.Fatal("encompassing region", zap.Error(err))
	}
	fmt.Printf("Point %.5f, %.5f\n\n", *lat, *lng)
	fmt.Printf("  City:   %s\n", orNone(region.City))
	fmt.Printf("  County: %s\n", orNone(region.County))
	fmt.Printf("  MSA:    %s\n\n", orNone(region.MSA))

	cities, err := engine.NearestCities(ctx, regions.NearbyQuery{Lat: *lat, Lng: *lng, RadiusMeters: *radius})
	if err != nil {
		l.Fatal("nearby cities", zap.Error(err))
	}
	fmt.Printf("=== Cities within %.0f m (%d) ===\n", *radius, len(cities))
	for _, c := range cities {
		fmt.Printf("  - %s | %.2f km\n", c.Name, c.DistanceKM)
	}
}
