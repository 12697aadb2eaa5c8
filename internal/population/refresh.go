package population

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"github.com/EmpoweredVote/geo-backend/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent per-state fetches.
const DefaultWorkers = 20

// Fetcher returns population rows for one Census level.
type Fetcher interface {
	Fetch(ctx context.Context, level Level, stateFIPS string) ([]geographic.PopulationUpdate, error)
}

// Target is where refreshed counts land.
type Target interface {
	geographic.PopulationWriter
	geographic.StateLister
}

// Report summarizes one refresh run.
type Report struct {
	States       int
	Counties     int
	Cities       int
	FailedStates []string
}

type Refresher struct {
	census  Fetcher
	target  Target
	workers int
	log     *zap.Logger
}

func NewRefresher(census Fetcher, target Target, workers int, l *zap.Logger) *Refresher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Refresher{census: census, target: target, workers: workers, log: l.Named("population")}
}

// Run refreshes states first, then counties and places state by state. A
// state whose county or place fetch fails is reported in FailedStates and
// does not stop the others; only a failed state-level pass is fatal.
func (r *Refresher) Run(ctx context.Context) (Report, error) {
	var rep Report

	states, err := r.census.Fetch(ctx, LevelState, "")
	if err != nil {
		metrics.PopulationRefreshFailures.WithLabelValues(string(LevelState)).Inc()
		return rep, fmt.Errorf("state populations: %w", err)
	}
	if rep.States, err = r.target.UpdatePopulations(ctx, geographic.State, states); err != nil {
		return rep, fmt.Errorf("write state populations: %w", err)
	}

	fipsList, err := r.target.StateFIPS(ctx)
	if err != nil {
		return rep, fmt.Errorf("list states: %w", err)
	}

	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, fips := range fipsList {
		fips := fips
		g.Go(func() error {
			counties, cities, err := r.refreshState(gctx, fips)
			mu.Lock()
			defer mu.Unlock()
			rep.Counties += counties
			rep.Cities += cities
			if err != nil {
				// Parent cancellation is not a per-state failure.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Warn("state refresh failed", zap.String("state", fips), zap.Error(err))
				failed = append(failed, fips)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}

	sort.Strings(failed)
	rep.FailedStates = failed
	r.log.Info("population refresh complete",
		zap.Int("states", rep.States),
		zap.Int("counties", rep.Counties),
		zap.Int("cities", rep.Cities),
		zap.Strings("failed_states", failed),
	)
	return rep, nil
}

func (r *Refresher) refreshState(ctx context.Context, stateFIPS string) (counties, cities int, err error) {
	for _, level := range []Level{LevelCounty, LevelPlace} {
		rows, err := r.census.Fetch(ctx, level, stateFIPS)
		if err != nil {
			metrics.PopulationRefreshFailures.WithLabelValues(string(level)).Inc()
			return counties, cities, fmt.Errorf("%s: %w", level, err)
		}
		n, err := r.target.UpdatePopulations(ctx, level.Kind(), rows)
		if err != nil {
			return counties, cities, fmt.Errorf("write %s: %w", level, err)
		}
		if level == LevelCounty {
			counties = n
		} else {
			cities = n
		}
	}
	return counties, cities, nil
}
