package config

import (
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("SPARKLE_API_BASE_URL", "https://api.sparkle.app/api/v1")
}

func TestLoad_AllRequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIBaseURL != "https://api.sparkle.app/api/v1" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "https://api.sparkle.app/api/v1")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APITimeout != 10*time.Second {
		t.Errorf("APITimeout = %v, want %v", cfg.APITimeout, 10*time.Second)
	}
	if cfg.UploadTimeout != 60*time.Second {
		t.Errorf("UploadTimeout = %v, want %v", cfg.UploadTimeout, 60*time.Second)
	}
	if cfg.StateDBPath != "sparkle.db" {
		t.Errorf("StateDBPath = %q, want %q", cfg.StateDBPath, "sparkle.db")
	}
	if cfg.AssistPerMinute != 10 {
		t.Errorf("AssistPerMinute = %d, want %d", cfg.AssistPerMinute, 10)
	}
	if cfg.AssistBurst != 3 {
		t.Errorf("AssistBurst = %d, want %d", cfg.AssistBurst, 3)
	}
	if cfg.InspirationTimeout != 10*time.Second {
		t.Errorf("InspirationTimeout = %v, want %v", cfg.InspirationTimeout, 10*time.Second)
	}
	if cfg.InspirationMaxSize != 5242880 {
		t.Errorf("InspirationMaxSize = %d, want %d", cfg.InspirationMaxSize, 5242880)
	}
	if cfg.InspirationPerSource != 3 {
		t.Errorf("InspirationPerSource = %d, want %d", cfg.InspirationPerSource, 3)
	}
	if cfg.StatusPort != "8090" {
		t.Errorf("StatusPort = %q, want %q", cfg.StatusPort, "8090")
	}
}

func TestLoad_MissingRequiredVars_ReturnsError(t *testing.T) {
	t.Setenv("SPARKLE_API_BASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required vars, got nil")
	}
}

func TestLoad_OptionalOverrides(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SPARKLE_API_TIMEOUT", "30s")
	t.Setenv("SPARKLE_STATE_DB_PATH", "/tmp/state.db")
	t.Setenv("SPARKLE_ASSIST_PER_MINUTE", "5")
	t.Setenv("SPARKLE_STATUS_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APITimeout != 30*time.Second {
		t.Errorf("APITimeout = %v, want %v", cfg.APITimeout, 30*time.Second)
	}
	if cfg.StateDBPath != "/tmp/state.db" {
		t.Errorf("StateDBPath = %q, want %q", cfg.StateDBPath, "/tmp/state.db")
	}
	if cfg.AssistPerMinute != 5 {
		t.Errorf("AssistPerMinute = %d, want %d", cfg.AssistPerMinute, 5)
	}
	if cfg.StatusPort != "9000" {
		t.Errorf("StatusPort = %q, want %q", cfg.StatusPort, "9000")
	}
}

func TestLoad_InvalidOptionalValues_FallBackToDefaults(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SPARKLE_API_TIMEOUT", "not-a-duration")
	t.Setenv("SPARKLE_ASSIST_BURST", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APITimeout != 10*time.Second {
		t.Errorf("APITimeout = %v, want default %v", cfg.APITimeout, 10*time.Second)
	}
	if cfg.AssistBurst != 3 {
		t.Errorf("AssistBurst = %d, want default %d", cfg.AssistBurst, 3)
	}
}
