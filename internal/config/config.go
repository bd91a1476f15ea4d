package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database   DatabaseConfig
	Tracking   TrackingConfig
	Attendance AttendanceConfig
	Matching   MatchingConfig
	Web        WebConfig
	Log        LogConfig
}

type DatabaseConfig struct {
	Driver       string // "postgres" (default) or "mariadb"
	URL          string // PostgreSQL URL or MariaDB DSN
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type TrackingConfig struct {
	SweepInterval time.Duration // how often the exit sweeper runs
	ExitTimeout   time.Duration // silence after which a student is considered gone
	Recover       bool          // rebuild live presence from the ledger tail on start
	MaxClockSkew  time.Duration // how far observed_at may run ahead of the server clock
}

type AttendanceConfig struct {
	MaxAbsenceRatio  float64 // absence above this share of the session forces "partial"
	PresentThreshold float64 // minimum percentage for "present"
	LowThreshold     float64 // default cutoff for the low-attendance report
}

type MatchingConfig struct {
	DistanceThreshold float64 // maximum cosine distance for a gallery match
	EmbeddingDim      int     // face encoding dimension
	IndexPath         string  // optional path to persist the gallery index
	UseIndex          bool    // match in memory; false queries the store
}

type WebConfig struct {
	Host     string
	Port     int
	APIToken string // optional bearer token required on /api/v1 routes
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// defaults mirrors defaults.yaml.
type defaults struct {
	Tracking struct {
		SweepInterval string `yaml:"sweep_interval"`
		ExitTimeout   string `yaml:"exit_timeout"`
		Recover       bool   `yaml:"recover"`
		MaxClockSkew  string `yaml:"max_clock_skew"`
	} `yaml:"tracking"`
	Attendance struct {
		MaxAbsenceRatio  float64 `yaml:"max_absence_ratio"`
		PresentThreshold float64 `yaml:"present_threshold"`
		LowThreshold     float64 `yaml:"low_threshold"`
	} `yaml:"attendance"`
	Matching struct {
		DistanceThreshold float64 `yaml:"distance_threshold"`
		EmbeddingDim      int     `yaml:"embedding_dim"`
		UseIndex          bool    `yaml:"use_index"`
	} `yaml:"matching"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float from the environment, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a positive duration ("45s", "2m") from the environment.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func loadDefaults() defaults {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic("invalid duration in embedded defaults.yaml: " + s)
	}
	return d
}

func Load() *Config {
	d := loadDefaults()

	return &Config{
		Database: DatabaseConfig{
			Driver:       strings.ToLower(envString("DATABASE_DRIVER", "postgres")),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Tracking: TrackingConfig{
			SweepInterval: envDuration("TRACKING_SWEEP_INTERVAL", mustDuration(d.Tracking.SweepInterval)),
			ExitTimeout:   envDuration("TRACKING_EXIT_TIMEOUT", mustDuration(d.Tracking.ExitTimeout)),
			Recover:       envBool("TRACKING_RECOVER", d.Tracking.Recover),
			MaxClockSkew:  envDuration("TRACKING_MAX_CLOCK_SKEW", mustDuration(d.Tracking.MaxClockSkew)),
		},
		Attendance: AttendanceConfig{
			MaxAbsenceRatio:  envFloat("ATTENDANCE_MAX_ABSENCE_RATIO", d.Attendance.MaxAbsenceRatio),
			PresentThreshold: envFloat("ATTENDANCE_PRESENT_THRESHOLD", d.Attendance.PresentThreshold),
			LowThreshold:     envFloat("ATTENDANCE_LOW_THRESHOLD", d.Attendance.LowThreshold),
		},
		Matching: MatchingConfig{
			DistanceThreshold: envFloat("MATCH_DISTANCE_THRESHOLD", d.Matching.DistanceThreshold),
			EmbeddingDim:      envInt("MATCH_EMBEDDING_DIM", d.Matching.EmbeddingDim),
			IndexPath:         os.Getenv("GALLERY_INDEX_PATH"),
			UseIndex:          envBool("MATCH_USE_INDEX", d.Matching.UseIndex),
		},
		Web: WebConfig{
			Host:     envString("WEB_HOST", "0.0.0.0"),
			Port:     envInt("WEB_PORT", 8080),
			APIToken: os.Getenv("WEB_API_TOKEN"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
	}
}
