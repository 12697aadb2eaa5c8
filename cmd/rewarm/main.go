package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/backend"
	"github.com/EmpoweredVote/geo-backend/internal/boundaries"
	"github.com/EmpoweredVote/geo-backend/internal/config"
	"github.com/EmpoweredVote/geo-backend/internal/logging"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

var (
	plan    = flag.String("plan", "rewarm.yaml", "YAML file listing viewports, types and zooms")
	flush   = flag.Bool("flush", false, "Delete every cached boundary payload before warming")
	timeout = flag.Duration("timeout", 20*time.Minute, "Overall deadline")
)

// Plan is the warm-up matrix:
//
//	types: [state, county]
//	zooms: [4, 6, 8]
//	viewports:
//	  - {name: conus, bbox: "-125,24,-66,50"}
type Plan struct {
	Types     []string   `yaml:"types"`
	Zooms     []float64  `yaml:"zooms"`
	Viewports []Viewport `yaml:"viewports"`
}

type Viewport struct {
	Name string `yaml:"name"`
	BBox string `yaml:"bbox"`
}

func loadPlan(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Plan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(p.Types) == 0 {
		p.Types = []string{"state", "county", "city"}
	}
	if len(p.Zooms) == 0 || len(p.Viewports) == 0 {
		return nil, fmt.Errorf("%s: zooms and viewports are required", path)
	}
	return &p, nil
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	l := logging.Must(cfg.LogLevel, "console")

	p, err := loadPlan(*plan)
	if err != nil {
		l.Fatal("failed to read plan", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if cfg.CacheBackend != "redis" {
		l.Fatal("rewarm only makes sense against a shared cache; set CACHE_BACKEND=redis")
	}
	c, redis := backend.OpenCache(ctx, cfg, l)
	if redis == nil {
		l.Fatal("redis unreachable")
	}
	defer redis.Close()

	if *flush {
		n, err := redis.DeleteMatching(ctx, "boundaries:*")
		if err != nil {
			l.Fatal("flush failed", zap.Error(err))
		}
		fmt.Printf("✓ Deleted %d cached boundary payloads\n", n)
	}

	store, _, err := backend.OpenStore(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to open geometry store", zap.Error(err))
	}
	engine := boundaries.NewEngine(store, c, boundaries.Options{
		Policy:        cfg.Policy,
		TTL:           cfg.BoundaryCacheTTL,
		CanonicalKeys: cfg.CanonicalCacheKeys,
		QueryTimeout:  cfg.BoundaryQueryTimeout,
		Logger:        l,
	})

	warmed, failed := 0, 0
	for _, vp := range p.Viewports {
		for _, typ := range p.Types {
			for _, zoom := range p.Zooms {
				req, err := engine.ParseRequest(typ, vp.BBox, zoom)
				if err != nil {
					l.Fatal("invalid plan entry", zap.String("viewport", vp.Name), zap.String("type", typ), zap.Error(err))
				}
				start := time.Now()
				res, err := engine.Refresh(ctx, req)
				if err != nil {
					failed++
					l.Error("warm failed", zap.String("viewport", vp.Name), zap.String("type", typ), zap.Float64("zoom", zoom), zap.Error(err))
					continue
				}
				warmed++
				l.Info("warmed",
					zap.String("viewport", vp.Name),
					zap.String("type", typ),
					zap.Float64("zoom", zoom),
					zap.Int("bytes", len(res.Payload)),
					zap.Duration("took", time.Since(start)),
				)
			}
		}
	}

	fmt.Printf("✓ Warmed %d payloads (%d failed), TTL %s\n", warmed, failed, cfg.BoundaryCacheTTL)
	if failed > 0 {
		os.Exit(2)
	}
}
