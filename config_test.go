package spice

import (
	"context"
	"log/slog"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("app|secret")

	if cfg.APIKey != "app|secret" {
		t.Errorf("Expected API key, got %q", cfg.APIKey)
	}
	if cfg.PrimaryAddress != DefaultFlightAddress {
		t.Errorf("Expected %s, got %s", DefaultFlightAddress, cfg.PrimaryAddress)
	}
	if cfg.SecondaryAddress != DefaultFirecacheAddress {
		t.Errorf("Expected %s, got %s", DefaultFirecacheAddress, cfg.SecondaryAddress)
	}
	if cfg.HTTPAddress != DefaultHTTPAddress {
		t.Errorf("Expected %s, got %s", DefaultHTTPAddress, cfg.HTTPAddress)
	}
	if err := validateConfig(cfg); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Run("Overrides", func(t *testing.T) {
		t.Setenv(EnvAPIKey, "app|secret")
		t.Setenv(EnvAPIKeyFallback, "other|key")
		t.Setenv(EnvFlightAddress, "grpc://localhost:50051")
		t.Setenv(EnvFirecacheAddress, "grpc://localhost:50052")
		t.Setenv(EnvHTTPAddress, "http://localhost:8080")

		cfg := ConfigFromEnv()
		if cfg.APIKey != "app|secret" {
			t.Errorf("Expected SPICE_API_KEY to win, got %q", cfg.APIKey)
		}
		if cfg.PrimaryAddress != "grpc://localhost:50051" ||
			cfg.SecondaryAddress != "grpc://localhost:50052" ||
			cfg.HTTPAddress != "http://localhost:8080" {
			t.Errorf("Unexpected addresses %+v", cfg)
		}
	})

	t.Run("Fallback", func(t *testing.T) {
		t.Setenv(EnvAPIKey, "")
		t.Setenv(EnvAPIKeyFallback, "other|key")
		t.Setenv(EnvFlightAddress, "")
		t.Setenv(EnvFirecacheAddress, "")
		t.Setenv(EnvHTTPAddress, "")

		cfg := ConfigFromEnv()
		if cfg.APIKey != "other|key" {
			t.Errorf("Expected API_KEY fallback, got %q", cfg.APIKey)
		}
		if cfg.PrimaryAddress != DefaultFlightAddress || cfg.SecondaryAddress != DefaultFirecacheAddress {
			t.Errorf("Expected default addresses, got %+v", cfg)
		}
	})
}

func TestNewLogger(t *testing.T) {
	custom := slog.New(slog.DiscardHandler)
	if got := newLogger(Config{Logger: custom}); got != custom {
		t.Error("Expected the configured logger")
	}

	level := slog.LevelWarn
	logger := newLogger(Config{LogLevel: &level})
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Expected info to be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("Expected warn to be enabled")
	}

	if got := newLogger(Config{}); got != slog.Default() {
		t.Error("Expected slog.Default()")
	}
}
