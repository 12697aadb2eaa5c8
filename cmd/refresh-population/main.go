package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/backend"
	"github.com/EmpoweredVote/geo-backend/internal/config"
	"github.com/EmpoweredVote/geo-backend/internal/logging"
	"github.com/EmpoweredVote/geo-backend/internal/population"
	"go.uber.org/zap"
)

var (
	workers = flag.Int("workers", 0, "Concurrent per-state fetches (default: env POPULATION_WORKERS)")
	timeout = flag.Duration("timeout", 30*time.Minute, "Overall deadline")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	l := logging.Must(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = l.Sync() }()

	if *workers <= 0 {
		*workers = cfg.PopulationWorkers
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, _, err := backend.OpenStore(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to open geometry store", zap.Error(err))
	}
	if cfg.GeoStore == "memory" {
		l.Warn("GEO_STORE=memory: refreshed populations live only for this process")
	}

	census := population.NewClient(cfg.CensusAPIBaseURL, cfg.CensusAPIKey, cfg.CensusAPIRPS, cfg.CensusHTTPTimeout)
	rep, err := population.NewRefresher(census, store, *workers, l).Run(ctx)
	if err != nil {
		l.Fatal("population refresh failed", zap.Error(err))
	}

	fmt.Printf("Updated states=%d counties=%d cities=%d\n", rep.States, rep.Counties, rep.Cities)
	if len(rep.FailedStates) > 0 {
		fmt.Printf("Failed states: %s\n", strings.Join(rep.FailedStates, ", "))
		os.Exit(2)
	}
}
