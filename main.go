package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/api"
	"github.com/EmpoweredVote/geo-backend/internal/backend"
	"github.com/EmpoweredVote/geo-backend/internal/boundaries"
	"github.com/EmpoweredVote/geo-backend/internal/config"
	"github.com/EmpoweredVote/geo-backend/internal/logging"
	"github.com/EmpoweredVote/geo-backend/internal/metrics"
	"github.com/EmpoweredVote/geo-backend/internal/middleware"
	"github.com/EmpoweredVote/geo-backend/internal/regions"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	l := logging.Must(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, ping, err := backend.OpenStore(ctx, cfg, l)
	if err != nil {
		l.Fatal("failed to open geometry store", zap.Error(err))
	}
	resultCache, redis := backend.OpenCache(ctx, cfg, l)
	if redis != nil {
		defer redis.Close()
	}

	h := &api.Handlers{
		Boundaries: boundaries.NewEngine(store, resultCache, boundaries.Options{
			Policy:        cfg.Policy,
			TTL:           cfg.BoundaryCacheTTL,
			CanonicalKeys: cfg.CanonicalCacheKeys,
			QueryTimeout:  cfg.BoundaryQueryTimeout,
			Logger:        l,
		}),
		Regions: regions.NewEngine(store, l),
		Log:     l,
		Ping:    ping,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.AccessLog(l))

	r.Get("/", RootHandler)
	r.Handle("/metrics", metrics.Handler())
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		h.Register(r)
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Info("server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.GeoStore), zap.String("cache", cfg.CacheBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	l.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("graceful shutdown failed", zap.Error(err))
	}
}
