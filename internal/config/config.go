package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/spatial"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Store
	DatabaseURL string
	GeoStore    string // postgis | memory
	SnapshotDir string // GeoJSON snapshots for the memory store

	// Cache
	CacheBackend         string // redis | memory | none
	RedisHost            string
	RedisPort            string
	RedisPass            string
	RedisDB              int
	MemoryCacheSize      int
	BoundaryCacheTTL     time.Duration
	CanonicalCacheKeys   bool
	BoundaryQueryTimeout time.Duration

	// Simplification
	ZoomToleranceFile string
	Policy            *spatial.Policy

	// HTTP
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Census API
	CensusAPIBaseURL  string
	CensusAPIKey      string
	CensusAPIRPS      float64
	PopulationWorkers int
	CensusHTTPTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

var defaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
}

// Load reads .env.local when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")

	cfg := &Config{
		Port: getEnv("PORT", "5050"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		GeoStore:    strings.ToLower(getEnv("GEO_STORE", "postgis")),
		SnapshotDir: getEnv("GEO_SNAPSHOT_DIR", "./data/geojson"),

		CacheBackend:         strings.ToLower(getEnv("CACHE_BACKEND", "redis")),
		RedisHost:            getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:            getEnv("REDIS_PORT", "6379"),
		RedisPass:            os.Getenv("REDIS_PASS"),
		RedisDB:              getEnvAsInt("REDIS_DB", 0),
		MemoryCacheSize:      getEnvAsInt("MEMORY_CACHE_SIZE", 2048),
		BoundaryCacheTTL:     getEnvAsDuration("BOUNDARY_CACHE_TTL", 300*time.Second),
		CanonicalCacheKeys:   getEnvAsBool("BOUNDARY_CACHE_CANONICAL_KEYS", false),
		BoundaryQueryTimeout: getEnvAsDuration("BOUNDARY_QUERY_TIMEOUT", 30*time.Second),

		ZoomToleranceFile: os.Getenv("ZOOM_TOLERANCE_FILE"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", defaultOrigins),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),

		CensusAPIBaseURL:  getEnv("CENSUS_API_BASE_URL", "https://api.census.gov/data/2020/dec/pl"),
		CensusAPIKey:      os.Getenv("CENSUS_API_KEY"),
		CensusAPIRPS:      getEnvAsFloat("CENSUS_API_RPS", 10),
		PopulationWorkers: getEnvAsInt("POPULATION_WORKERS", 20),
		CensusHTTPTimeout: getEnvAsDuration("CENSUS_HTTP_TIMEOUT", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	policy := spatial.DefaultPolicy()
	if cfg.ZoomToleranceFile != "" {
		p, err := LoadPolicy(cfg.ZoomToleranceFile)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	cfg.Policy = policy

	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.GeoStore {
	case "postgis":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required when GEO_STORE=postgis")
		}
	case "memory":
		if c.SnapshotDir == "" {
			return fmt.Errorf("config: GEO_SNAPSHOT_DIR is required when GEO_STORE=memory")
		}
	default:
		return fmt.Errorf("config: unknown GEO_STORE %q", c.GeoStore)
	}

	switch c.CacheBackend {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf("config: unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.BoundaryCacheTTL <= 0 {
		return fmt.Errorf("config: BOUNDARY_CACHE_TTL must be positive")
	}
	if c.PopulationWorkers <= 0 {
		return fmt.Errorf("config: POPULATION_WORKERS must be positive")
	}
	return nil
}

type toleranceFile struct {
	Fallback   float64             `yaml:"fallback"`
	Thresholds []spatial.Threshold `yaml:"thresholds"`
}

// LoadPolicy reads a zoom tolerance table:
//
//	fallback: 0.0001
//	thresholds:
//	  - {zoom: 3, tolerance: 0.05}
//	  - {zoom: 5, tolerance: 0.02}
func LoadPolicy(path string) (*spatial.Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zoom tolerance file: %w", err)
	}
	return ParsePolicy(b)
}

func ParsePolicy(b []byte) (*spatial.Policy, error) {
	var tf toleranceFile
	if err := yaml.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("parse zoom tolerance file: %w", err)
	}
	if tf.Fallback == 0 {
		tf.Fallback = spatial.DefaultFallback
	}
	return spatial.NewPolicy(tf.Thresholds, tf.Fallback)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Bare integers are seconds.
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
