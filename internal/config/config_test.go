package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_TrackingDefaults(t *testing.T) {
	os.Unsetenv("TRACKING_SWEEP_INTERVAL")
	os.Unsetenv("TRACKING_EXIT_TIMEOUT")
	os.Unsetenv("TRACKING_RECOVER")
	os.Unsetenv("TRACKING_MAX_CLOCK_SKEW")

	cfg := Load()

	if cfg.Tracking.SweepInterval != 30*time.Second {
		t.Errorf("expected default sweep interval 30s, got %s", cfg.Tracking.SweepInterval)
	}
	if cfg.Tracking.ExitTimeout != 60*time.Second {
		t.Errorf("expected default exit timeout 60s, got %s", cfg.Tracking.ExitTimeout)
	}
	if cfg.Tracking.Recover {
		t.Error("expected recovery to be disabled by default")
	}
	if cfg.Tracking.MaxClockSkew != 5*time.Second {
		t.Errorf("expected default clock skew 5s, got %s", cfg.Tracking.MaxClockSkew)
	}
}

func TestLoad_CustomTracking(t *testing.T) {
	t.Setenv("TRACKING_SWEEP_INTERVAL", "5s")
	t.Setenv("TRACKING_EXIT_TIMEOUT", "2m")
	t.Setenv("TRACKING_RECOVER", "true")

	cfg := Load()

	if cfg.Tracking.SweepInterval != 5*time.Second {
		t.Errorf("expected sweep interval 5s, got %s", cfg.Tracking.SweepInterval)
	}
	if cfg.Tracking.ExitTimeout != 2*time.Minute {
		t.Errorf("expected exit timeout 2m, got %s", cfg.Tracking.ExitTimeout)
	}
	if !cfg.Tracking.Recover {
		t.Error("expected recovery to be enabled")
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"garbage", "soon"},
		{"negative", "-10s"},
		{"zero", "0s"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TRACKING_EXIT_TIMEOUT", tc.value)

			cfg := Load()

			if cfg.Tracking.ExitTimeout != 60*time.Second {
				t.Errorf("expected fallback 60s for %q, got %s", tc.value, cfg.Tracking.ExitTimeout)
			}
		})
	}
}

func TestLoad_AttendanceDefaults(t *testing.T) {
	os.Unsetenv("ATTENDANCE_MAX_ABSENCE_RATIO")
	os.Unsetenv("ATTENDANCE_PRESENT_THRESHOLD")
	os.Unsetenv("ATTENDANCE_LOW_THRESHOLD")

	cfg := Load()

	if cfg.Attendance.MaxAbsenceRatio != 0.10 {
		t.Errorf("expected max absence ratio 0.10, got %f", cfg.Attendance.MaxAbsenceRatio)
	}
	if cfg.Attendance.PresentThreshold != 90 {
		t.Errorf("expected present threshold 90, got %f", cfg.Attendance.PresentThreshold)
	}
	if cfg.Attendance.LowThreshold != 75 {
		t.Errorf("expected low threshold 75, got %f", cfg.Attendance.LowThreshold)
	}
}

func TestLoad_MatchingDefaults(t *testing.T) {
	os.Unsetenv("MATCH_DISTANCE_THRESHOLD")
	os.Unsetenv("MATCH_EMBEDDING_DIM")
	os.Unsetenv("MATCH_USE_INDEX")

	cfg := Load()

	if cfg.Matching.DistanceThreshold != 0.5 {
		t.Errorf("expected distance threshold 0.5, got %f", cfg.Matching.DistanceThreshold)
	}
	if cfg.Matching.EmbeddingDim != 128 {
		t.Errorf("expected embedding dim 128, got %d", cfg.Matching.EmbeddingDim)
	}
	if !cfg.Matching.UseIndex {
		t.Error("expected in-memory index enabled by default")
	}
}

func TestLoad_StoreSearch(t *testing.T) {
	t.Setenv("MATCH_USE_INDEX", "false")

	if cfg := Load(); cfg.Matching.UseIndex {
		t.Error("expected MATCH_USE_INDEX=false to disable the in-memory index")
	}
}

func TestLoad_InvalidEmbeddingDim(t *testing.T) {
	t.Setenv("MATCH_EMBEDDING_DIM", "invalid")

	cfg := Load()

	if cfg.Matching.EmbeddingDim != 128 {
		t.Errorf("expected default embedding dim 128 for invalid input, got %d", cfg.Matching.EmbeddingDim)
	}
}

func TestLoad_DatabaseConfig(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "MariaDB")
	t.Setenv("DATABASE_URL", "attendance:secret@tcp(localhost:3306)/attendance")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "10")

	cfg := Load()

	if cfg.Database.Driver != "mariadb" {
		t.Errorf("expected driver 'mariadb', got '%s'", cfg.Database.Driver)
	}
	if cfg.Database.URL != "attendance:secret@tcp(localhost:3306)/attendance" {
		t.Errorf("unexpected database URL '%s'", cfg.Database.URL)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("expected 10 open conns, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("expected default 5 idle conns, got %d", cfg.Database.MaxIdleConns)
	}
}

func TestLoad_EmptyEnvVars(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("WEB_HOST", "")
	t.Setenv("WEB_PORT", "")
	t.Setenv("LOG_LEVEL", "")

	cfg := Load()

	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected default driver 'postgres', got '%s'", cfg.Database.Driver)
	}
	if cfg.Web.Host != "0.0.0.0" || cfg.Web.Port != 8080 {
		t.Errorf("unexpected web defaults %s:%d", cfg.Web.Host, cfg.Web.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got '%s'", cfg.Log.Level)
	}
}
