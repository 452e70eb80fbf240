// Package config provides configuration management for the analysis service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Analysis defaults, applied when the corresponding key is unset.
const (
	// defaultIVHighThreshold marks the IV rank above which regime is "high"
	defaultIVHighThreshold = 50.0
	// defaultIVLowThreshold marks the IV rank below which regime is "low"
	defaultIVLowThreshold = 25.0
	// defaultATMBandPct is the +/- percent band around spot treated as ATM
	defaultATMBandPct = 2.0
	// defaultMinCreditPct is the minimum credit as a percent of spread width
	defaultMinCreditPct = 25.0
	// defaultRiskPct is the percent of account risked per position
	defaultRiskPct = 2.0
	// defaultMaxRanked caps how many recommendations a response carries
	defaultMaxRanked = 3
	// defaultDTETolerance is the +/- day window when matching snapshots
	defaultDTETolerance = 5
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Server      ServerConfig      `yaml:"server"`
	Provider    ProviderConfig    `yaml:"provider"`
	Storage     StorageConfig     `yaml:"storage"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // live | mock
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"` // empty disables auth
}

// ProviderConfig defines market-data provider API settings.
type ProviderConfig struct {
	Name            string  `yaml:"name"`
	APIKey          string  `yaml:"api_key"`
	APIEndpoint     string  `yaml:"api_endpoint"`
	RequestTimeout  string  `yaml:"request_timeout"`    // e.g. "10s"
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"` // 0 disables client-side limiting
}

// StorageConfig defines snapshot database settings.
type StorageConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// RefreshConfig defines the background data-refresh schedule.
type RefreshConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Watchlist     []string `yaml:"watchlist"`
	ChainSchedule string   `yaml:"chain_schedule"` // cron expression
	IVSchedule    string   `yaml:"iv_schedule"`    // cron expression
	TargetDTEs    []int    `yaml:"target_dtes"`
	DTETolerance  int      `yaml:"dte_tolerance"`
}

// AnalysisConfig defines the strike-selection and scoring knobs.
type AnalysisConfig struct {
	IVHighThreshold   float64 `yaml:"iv_high_threshold"`
	IVLowThreshold    float64 `yaml:"iv_low_threshold"`
	ATMBandPct        float64 `yaml:"atm_band_pct"`
	WidthLowPrice     int     `yaml:"width_low_price"`
	WidthMidPrice     int     `yaml:"width_mid_price"`
	WidthHighPrice    int     `yaml:"width_high_price"`
	WidthTolerancePct float64 `yaml:"width_tolerance_pct"`
	MinOpenInterest   int64   `yaml:"min_open_interest"`
	MinVolume         int64   `yaml:"min_volume"`
	MinMarkPrice      float64 `yaml:"min_mark_price"`
	MinCreditPct      float64 `yaml:"min_credit_pct"`
	DefaultRiskPct    float64 `yaml:"default_risk_pct"`
	MaxRanked         int     `yaml:"max_ranked"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
// Unset analysis knobs are normalized to their defaults first.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode != "live" && c.Environment.Mode != "mock" {
		return fmt.Errorf("environment.mode must be 'live' or 'mock'")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0,65535]")
	}

	// Provider validation; mock mode needs no credentials
	if c.Environment.Mode == "live" {
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key is required in live mode")
		}
		if c.Provider.APIEndpoint == "" {
			return fmt.Errorf("provider.api_endpoint is required in live mode")
		}
	}
	if c.Provider.RequestTimeout != "" {
		if _, err := time.ParseDuration(c.Provider.RequestTimeout); err != nil {
			return fmt.Errorf("provider.request_timeout invalid: %w", err)
		}
	}
	if c.Provider.RateLimitPerSec < 0 {
		return fmt.Errorf("provider.rate_limit_per_sec must be >= 0")
	}

	// Storage validation
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage.retention_days must be >= 0")
	}

	// Refresh validation
	if c.Refresh.Enabled {
		if len(c.Refresh.Watchlist) == 0 {
			return fmt.Errorf("refresh.watchlist must not be empty when refresh is enabled")
		}
		if c.Refresh.ChainSchedule == "" {
			return fmt.Errorf("refresh.chain_schedule is required when refresh is enabled")
		}
		if len(c.Refresh.TargetDTEs) == 0 {
			return fmt.Errorf("refresh.target_dtes must not be empty when refresh is enabled")
		}
		for _, dte := range c.Refresh.TargetDTEs {
			if dte <= 0 {
				return fmt.Errorf("refresh.target_dtes must all be > 0, got %d", dte)
			}
		}
	}
	if c.Refresh.DTETolerance == 0 {
		c.Refresh.DTETolerance = defaultDTETolerance
	}
	if c.Refresh.DTETolerance < 0 {
		return fmt.Errorf("refresh.dte_tolerance must be >= 0")
	}

	c.normalizeAnalysis()

	// Analysis validation
	a := &c.Analysis
	if a.IVLowThreshold >= a.IVHighThreshold {
		return fmt.Errorf("analysis.iv_low_threshold (%.1f) must be < analysis.iv_high_threshold (%.1f)",
			a.IVLowThreshold, a.IVHighThreshold)
	}
	if a.ATMBandPct <= 0 || a.ATMBandPct > 10 {
		return fmt.Errorf("analysis.atm_band_pct must be in (0,10]")
	}
	if a.WidthLowPrice <= 0 || a.WidthMidPrice <= 0 || a.WidthHighPrice <= 0 {
		return fmt.Errorf("analysis width tiers must all be > 0")
	}
	if a.WidthTolerancePct <= 0 || a.WidthTolerancePct >= 1 {
		return fmt.Errorf("analysis.width_tolerance_pct must be in (0,1)")
	}
	if a.MinCreditPct <= 0 || a.MinCreditPct > 100 {
		return fmt.Errorf("analysis.min_credit_pct must be in (0,100]")
	}
	if a.DefaultRiskPct <= 0 || a.DefaultRiskPct > 100 {
		return fmt.Errorf("analysis.default_risk_pct must be in (0,100]")
	}
	if a.MaxRanked <= 0 {
		return fmt.Errorf("analysis.max_ranked must be > 0")
	}

	return nil
}

// IsMockMode returns true if the service runs against synthetic data.
func (c *Config) IsMockMode() bool {
	return c.Environment.Mode == "mock"
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ProviderTimeout returns the provider request timeout, defaulting to 10s.
func (c *Config) ProviderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Provider.RequestTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// normalizeAnalysis fills unset analysis knobs with their defaults.
func (c *Config) normalizeAnalysis() {
	a := &c.Analysis
	if a.IVHighThreshold == 0 {
		a.IVHighThreshold = defaultIVHighThreshold
	}
	if a.IVLowThreshold == 0 {
		a.IVLowThreshold = defaultIVLowThreshold
	}
	if a.ATMBandPct == 0 {
		a.ATMBandPct = defaultATMBandPct
	}
	if a.WidthLowPrice == 0 {
		a.WidthLowPrice = 5
	}
	if a.WidthMidPrice == 0 {
		a.WidthMidPrice = 5
	}
	if a.WidthHighPrice == 0 {
		a.WidthHighPrice = 5
	}
	if a.WidthTolerancePct == 0 {
		a.WidthTolerancePct = 0.20
	}
	if a.MinOpenInterest == 0 {
		a.MinOpenInterest = 10
	}
	if a.MinVolume == 0 {
		a.MinVolume = 5
	}
	if a.MinMarkPrice == 0 {
		a.MinMarkPrice = 0.01
	}
	if a.MinCreditPct == 0 {
		a.MinCreditPct = defaultMinCreditPct
	}
	if a.DefaultRiskPct == 0 {
		a.DefaultRiskPct = defaultRiskPct
	}
	if a.MaxRanked == 0 {
		a.MaxRanked = defaultMaxRanked
	}
}
