package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig
	Engine      Engine
}

// RedisConfig tunes the optional Redis connection used for camera leases.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Engine holds the recognized face-engine options. Defaults follow the
// calibrated values shipped with the capture pipeline.
type Engine struct {
	StabilityThreshold int           // consecutive qualifying frames before Stable
	QualityThreshold   float64       // minimum per-frame quality score
	CaptureDelay       time.Duration // countdown between Stable and capture
	PaddingPx          int           // symmetric crop padding for extraction
	DedupThreshold     float64       // similarity above which enrollment is a duplicate
	TickInterval       time.Duration // capture loop tick period
	SimulatedDetector  bool          // explicit dev-only detector; never an automatic fallback
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("FACELEDGER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return Server{
		Addr:        addr,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Engine: Engine{
			StabilityThreshold: envInt("FACE_STABILITY_THRESHOLD", 10),
			QualityThreshold:   envFloat("FACE_QUALITY_THRESHOLD", 0.7),
			CaptureDelay:       time.Duration(envInt("FACE_CAPTURE_DELAY_MS", 3000)) * time.Millisecond,
			PaddingPx:          envInt("FACE_PADDING_PX", 20),
			DedupThreshold:     envFloat("FACE_DEDUP_THRESHOLD", 0.9),
			TickInterval:       time.Duration(envInt("FACE_TICK_INTERVAL_MS", 100)) * time.Millisecond,
			SimulatedDetector:  os.Getenv("FACE_SIMULATED_DETECTOR") == "true",
		},
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
