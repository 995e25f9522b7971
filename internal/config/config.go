package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir           string
	ObesityFile       string
	HospitalFile      string
	CoverageFile      string
	EducationFile     string
	StatesGeoJSONFile string

	RefreshInterval time.Duration

	// Fallback color domain for datasets with no positive values.
	DomainFallbackMin float64
	DomainFallbackMax float64

	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	CacheSize       int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	refreshInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("REFRESH_INTERVAL", "5m"))
	if err != nil || refreshInterval <= 0 {
		return nil, errors.New("invalid REFRESH_INTERVAL")
	}

	fallbackMin, err := parseFloatEnv("DOMAIN_FALLBACK_MIN", 0)
	if err != nil {
		return nil, err
	}
	fallbackMax, err := parseFloatEnv("DOMAIN_FALLBACK_MAX", 100)
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseCacheSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:           sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		ObesityFile:       sharedcfg.EnvOrDefault("OBESITY_FILE", "strat_Total_Total.csv"),
		HospitalFile:      sharedcfg.EnvOrDefault("HOSPITAL_FILE", "chsp-hospital-linkage-2022-rev.csv"),
		CoverageFile:      sharedcfg.EnvOrDefault("COVERAGE_FILE", "public_coverage_by_state.json"),
		EducationFile:     sharedcfg.EnvOrDefault("EDUCATION_FILE", "education_by_state_years.json"),
		StatesGeoJSONFile: os.Getenv("STATES_GEOJSON_FILE"),
		RefreshInterval:   refreshInterval,
		DomainFallbackMin: fallbackMin,
		DomainFallbackMax: fallbackMax,
		KafkaEnabled:      os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:    sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "health-aggregates"),
		HTTPAddr:          sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
		CacheSize:         cacheSize,
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.DomainFallbackMin >= cfg.DomainFallbackMax {
		return nil, errors.New("DOMAIN_FALLBACK_MIN must be less than DOMAIN_FALLBACK_MAX")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parseFloatEnv(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parseCacheSize() (int, error) {
	s := os.Getenv("CACHE_SIZE")
	if s == "" {
		return 256, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid CACHE_SIZE")
	}
	return n, nil
}
