package config

import (
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Environment: EnvironmentConfig{
			Mode:     "mock",
			LogLevel: "info",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Provider: ProviderConfig{
			Name:            "tradier",
			APIKey:          "test-key",
			APIEndpoint:     "https://sandbox.tradier.com/v1",
			RequestTimeout:  "10s",
			RateLimitPerSec: 2,
		},
		Storage: StorageConfig{
			Path:          "volaris.db",
			RetentionDays: 90,
		},
		Refresh: RefreshConfig{
			Enabled:       true,
			Watchlist:     []string{"SPY"},
			ChainSchedule: "*/15 9-16 * * 1-5",
			IVSchedule:    "5 17 * * 1-5",
			TargetDTEs:    []int{30},
			DTETolerance:  5,
		},
	}
}

func TestLoad(t *testing.T) {
	configPath := filepath.Join("..", "..", "config.yaml.example")
	_, err := Load(configPath)
	if err != nil {
		t.Errorf("Expected config to load successfully from example file, got error: %v", err)
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestValidate_AppliesAnalysisDefaults(t *testing.T) {
	config := validConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("Expected valid config, got error: %v", err)
	}

	a := config.Analysis
	if a.IVHighThreshold != 50 || a.IVLowThreshold != 25 {
		t.Errorf("Expected IV thresholds 50/25, got %.1f/%.1f", a.IVHighThreshold, a.IVLowThreshold)
	}
	if a.ATMBandPct != 2.0 {
		t.Errorf("Expected ATM band 2.0, got %.1f", a.ATMBandPct)
	}
	if a.MinOpenInterest != 10 || a.MinVolume != 5 {
		t.Errorf("Expected liquidity floors 10/5, got %d/%d", a.MinOpenInterest, a.MinVolume)
	}
	if a.MinCreditPct != 25 {
		t.Errorf("Expected min credit 25%%, got %.1f", a.MinCreditPct)
	}
	if a.MaxRanked != 3 {
		t.Errorf("Expected max ranked 3, got %d", a.MaxRanked)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown mode", func(c *Config) { c.Environment.Mode = "sandbox" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"live mode requires api key", func(c *Config) {
			c.Environment.Mode = "live"
			c.Provider.APIKey = ""
		}},
		{"bad request timeout", func(c *Config) { c.Provider.RequestTimeout = "soon" }},
		{"negative rate limit", func(c *Config) { c.Provider.RateLimitPerSec = -1 }},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }},
		{"refresh without watchlist", func(c *Config) { c.Refresh.Watchlist = nil }},
		{"refresh without schedule", func(c *Config) { c.Refresh.ChainSchedule = "" }},
		{"non-positive target dte", func(c *Config) { c.Refresh.TargetDTEs = []int{0} }},
		{"inverted iv thresholds", func(c *Config) {
			c.Analysis.IVHighThreshold = 20
			c.Analysis.IVLowThreshold = 40
		}},
		{"width tolerance out of range", func(c *Config) { c.Analysis.WidthTolerancePct = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Errorf("Expected validation error for %q, got nil", tt.name)
			}
		})
	}
}

func TestListenAddr(t *testing.T) {
	config := validConfig()
	if got := config.ListenAddr(); got != "127.0.0.1:8080" {
		t.Errorf("Expected 127.0.0.1:8080, got %s", got)
	}
}

func TestProviderTimeout_Default(t *testing.T) {
	config := validConfig()
	config.Provider.RequestTimeout = ""
	if got := config.ProviderTimeout(); got.Seconds() != 10 {
		t.Errorf("Expected 10s default timeout, got %s", got)
	}
}
