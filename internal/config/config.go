package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all job settings, populated from environment variables.
// Defaults run the full 2015-2024 SMAP pull, so an empty environment needs
// only credentials to reproduce the standard extraction.
type Config struct {
	// Date range bounds, enumerated as every (year, month, day) triple.
	YearStart, YearEnd   int
	MonthStart, MonthEnd int
	DayStart, DayEnd     int

	Bands []string

	// Earth Engine query parameters.
	EEProject          string
	EEBaseURL          string
	EECollection       string
	EEGridAsset        string
	EERegionAsset      string
	EEToken            string
	EECredentialsFile  string
	EETimeout          time.Duration
	EEMinQueryInterval time.Duration

	ScaleMeters int
	CRS         string
	MaxPixels   int64
	FillValue   float64

	OutputDir string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional completion-event notifier.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Optional per-date NetCDF sidecar.
	NetCDFEnabled bool
	NetCDFDir     string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	cfg := &Config{
		Bands: splitList(envOrDefault("BANDS", "sm_surface,sm_rootzone")),

		EEProject:         envOrDefault("EE_PROJECT", "atkins-droughts"),
		EEBaseURL:         envOrDefault("EE_BASE_URL", "https://earthengine.googleapis.com/v1"),
		EECollection:      envOrDefault("EE_COLLECTION", "NASA/SMAP/SPL4SMGP/008"),
		EEGridAsset:       envOrDefault("EE_GRID_ASSET", "projects/atkins-droughts/assets/final_grid"),
		EERegionAsset:     envOrDefault("EE_REGION_ASSET", "projects/atkins-droughts/assets/final_shp"),
		EEToken:           os.Getenv("EE_TOKEN"),
		EECredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),

		CRS:       envOrDefault("CRS", "EPSG:4326"),
		OutputDir: envOrDefault("OUTPUT_DIR", "data"),

		HTTPAddr:  envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		KafkaBrokers: splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "soil-moisture-arrays"),
	}

	var err error
	if cfg.YearStart, err = intEnv("YEAR_START", 2015); err != nil {
		return nil, err
	}
	if cfg.YearEnd, err = intEnv("YEAR_END", 2024); err != nil {
		return nil, err
	}
	if cfg.MonthStart, err = intEnv("MONTH_START", 1); err != nil {
		return nil, err
	}
	if cfg.MonthEnd, err = intEnv("MONTH_END", 12); err != nil {
		return nil, err
	}
	if cfg.DayStart, err = intEnv("DAY_START", 1); err != nil {
		return nil, err
	}
	if cfg.DayEnd, err = intEnv("DAY_END", 31); err != nil {
		return nil, err
	}
	if cfg.ScaleMeters, err = intEnv("SCALE_METERS", 4000); err != nil {
		return nil, err
	}
	if cfg.MaxPixels, err = int64Env("MAX_PIXELS", 1_000_000_000); err != nil {
		return nil, err
	}
	if cfg.FillValue, err = floatEnv("FILL_VALUE", -9999); err != nil {
		return nil, err
	}
	if cfg.EETimeout, err = durationEnv("EE_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}
	if cfg.EEMinQueryInterval, err = durationEnv("EE_MIN_QUERY_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.KafkaEnabled, err = boolEnv("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.NetCDFEnabled, err = boolEnv("NETCDF_ENABLED", false); err != nil {
		return nil, err
	}
	cfg.NetCDFDir = envOrDefault("NETCDF_DIR", cfg.OutputDir)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.YearEnd < c.YearStart {
		return fmt.Errorf("YEAR_END %d is before YEAR_START %d", c.YearEnd, c.YearStart)
	}
	if c.MonthStart < 1 || c.MonthEnd > 12 || c.MonthEnd < c.MonthStart {
		return fmt.Errorf("MONTH_START/MONTH_END must satisfy 1 <= start <= end <= 12, got %d/%d", c.MonthStart, c.MonthEnd)
	}
	if c.DayStart < 1 || c.DayEnd > 31 || c.DayEnd < c.DayStart {
		return fmt.Errorf("DAY_START/DAY_END must satisfy 1 <= start <= end <= 31, got %d/%d", c.DayStart, c.DayEnd)
	}
	if len(c.Bands) == 0 {
		return fmt.Errorf("BANDS must name at least one band")
	}
	if c.ScaleMeters <= 0 {
		return fmt.Errorf("SCALE_METERS must be positive, got %d", c.ScaleMeters)
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("MAX_PIXELS must be positive, got %d", c.MaxPixels)
	}
	if c.EETimeout <= 0 {
		return fmt.Errorf("EE_TIMEOUT must be positive")
	}
	if c.EEMinQueryInterval < 0 {
		return fmt.Errorf("EE_MIN_QUERY_INTERVAL must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_ENABLED is true but KAFKA_TOPIC is empty")
		}
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func int64Env(key string, def int64) (int64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, s)
	}
	return b, nil
}
