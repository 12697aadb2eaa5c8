package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})
	HTTPDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geo_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2500},
	}, []string{"route"})
	BoundaryCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_boundary_cache_hits_total",
		Help: "Boundary queries answered from cache",
	}, []string{"type"})
	BoundaryCacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_boundary_cache_misses_total",
		Help: "Boundary queries computed from the store",
	}, []string{"type"})
	CacheErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_cache_errors_total",
		Help: "Cache backend failures treated as misses",
	}, []string{"op"})
	BoundaryFeatures = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geo_boundary_features",
		Help:    "Features per computed boundary collection",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
	}, []string{"type"})
	SkippedFeaturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_boundary_skipped_features_total",
		Help: "Features dropped because their geometry could not be serialized",
	}, []string{"type"})
	SimplifyDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geo_simplify_duration_ms",
		Help:    "Time spent simplifying one boundary collection",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	}, []string{"type"})
	StoreQueryDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geo_store_query_duration_ms",
		Help:    "Geometry store query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"op", "type"})
	PopulationRefreshFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_population_refresh_failures_total",
		Help: "Population refresh failures by level",
	}, []string{"level"})
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPDurationMs)
	prometheus.MustRegister(BoundaryCacheHits)
	prometheus.MustRegister(BoundaryCacheMisses)
	prometheus.MustRegister(CacheErrorsTotal)
	prometheus.MustRegister(BoundaryFeatures)
	prometheus.MustRegister(SkippedFeaturesTotal)
	prometheus.MustRegister(SimplifyDurationMs)
	prometheus.MustRegister(StoreQueryDurationMs)
	prometheus.MustRegister(PopulationRefreshFailures)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
