// Package config provides configuration management for the structure scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	appErrors "smc-scanner/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Scan        ScanConfig    `mapstructure:"scan"`
	Server      ServerConfig  `mapstructure:"server"`
	Symbols     SymbolsConfig `mapstructure:"symbols"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately
}

// ScanConfig holds the structure-analysis thresholds and scheduling knobs.
type ScanConfig struct {
	Source                  string  `mapstructure:"source"` // "live" or "mock"
	ScanIntervalSeconds     int     `mapstructure:"scan_interval_seconds"`
	MaxConcurrentSymbols    int     `mapstructure:"max_concurrent_symbols"`
	MinMatchingTimeframes   int     `mapstructure:"min_matching_timeframes"`
	BOSThresholdPct         float64 `mapstructure:"bos_threshold_pct"`
	CHOCHThresholdPct       float64 `mapstructure:"choch_threshold_pct"`
	MinStructureDistancePct float64 `mapstructure:"min_structure_distance_pct"`
	StructureLockBars       int     `mapstructure:"structure_lock_bars"`
	MinFVGSizePct           float64 `mapstructure:"min_fvg_size_pct"`
	FVGPruneBars            int     `mapstructure:"fvg_prune_bars"`
	ProximityNearPct        float64 `mapstructure:"proximity_near_pct"`
	ProximityFarPct         float64 `mapstructure:"proximity_far_pct"`
	BaseLookback            int     `mapstructure:"base_lookback"`
}

// ScanInterval returns the scan interval as a time.Duration.
func (s ScanConfig) ScanInterval() time.Duration {
	return time.Duration(s.ScanIntervalSeconds) * time.Second
}

// ServerConfig holds the HTTP/WebSocket surface configuration.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	MetricsOn  bool   `mapstructure:"metrics_enabled"`
}

// SymbolsConfig holds the watchlist of symbols to scan and, among those,
// the subset a user has flagged as favorites for the stats endpoint's
// favorites count.
type SymbolsConfig struct {
	Watchlist []string `mapstructure:"watchlist"`
	Favorites []string `mapstructure:"favorites"`
}

// Credentials holds API credentials for the live candle source.
type Credentials struct {
	Zerodha ZerodhaCredentials `mapstructure:"zerodha"`
}

// ZerodhaCredentials holds Zerodha Kite Connect API credentials.
type ZerodhaCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/smc-scanner"
	}
	return filepath.Join(home, ".config", "smc-scanner")
}

// DefaultScanConfig returns the scanner's built-in defaults, applied before
// any config.toml is read.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Source:                  "mock",
		ScanIntervalSeconds:     120,
		MaxConcurrentSymbols:    8,
		MinMatchingTimeframes:   2,
		BOSThresholdPct:         0.3,
		CHOCHThresholdPct:       0.5,
		MinStructureDistancePct: 1.0,
		StructureLockBars:       5,
		MinFVGSizePct:           0.2,
		FVGPruneBars:            50,
		ProximityNearPct:        2,
		ProximityFarPct:         3,
		BaseLookback:            20,
	}
}

// Load loads configuration from the specified directory. If configDir is
// empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{
		Scan: DefaultScanConfig(),
		Server: ServerConfig{
			ListenAddr: ":8080",
			MetricsOn:  true,
		},
	}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, appErrors.Wrap(err, "validating config")
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetDefault("scan", DefaultScanConfig())
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("symbols.watchlist", []string{"NIFTY50", "BANKNIFTY"})
	v.SetDefault("symbols.favorites", []string{})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return writeTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return writeTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("ZERODHA_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Zerodha.AccessToken = v
	}
	if v := os.Getenv("SMC_SCAN_SOURCE"); v != "" {
		cfg.Scan.Source = v
	}
	if v := os.Getenv("SMC_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
}

// Validate validates the configuration, returning a *errors.ConfigError on
// the first violated constraint.
func (c *Config) Validate() error {
	s := c.Scan

	if s.Source != "live" && s.Source != "mock" {
		return appErrors.NewConfigError("scan.source", s.Source, "must be 'live' or 'mock'")
	}
	if s.ScanIntervalSeconds <= 0 {
		return appErrors.NewConfigError("scan.scan_interval_seconds", s.ScanIntervalSeconds, "must be positive")
	}
	if s.MaxConcurrentSymbols <= 0 {
		return appErrors.NewConfigError("scan.max_concurrent_symbols", s.MaxConcurrentSymbols, "must be positive")
	}
	if s.MinMatchingTimeframes < 0 || s.MinMatchingTimeframes > 6 {
		return appErrors.NewConfigError("scan.min_matching_timeframes", s.MinMatchingTimeframes, "must be between 0 and 6")
	}
	if s.BOSThresholdPct < 0 {
		return appErrors.NewConfigError("scan.bos_threshold_pct", s.BOSThresholdPct, "must be non-negative")
	}
	if s.CHOCHThresholdPct < 0 {
		return appErrors.NewConfigError("scan.choch_threshold_pct", s.CHOCHThresholdPct, "must be non-negative")
	}
	if s.MinStructureDistancePct < 0 {
		return appErrors.NewConfigError("scan.min_structure_distance_pct", s.MinStructureDistancePct, "must be non-negative")
	}
	if s.StructureLockBars < 0 {
		return appErrors.NewConfigError("scan.structure_lock_bars", s.StructureLockBars, "must be non-negative")
	}
	if s.MinFVGSizePct < 0 {
		return appErrors.NewConfigError("scan.min_fvg_size_pct", s.MinFVGSizePct, "must be non-negative")
	}
	if s.FVGPruneBars <= 0 {
		return appErrors.NewConfigError("scan.fvg_prune_bars", s.FVGPruneBars, "must be positive")
	}
	if s.BaseLookback < 0 {
		return appErrors.NewConfigError("scan.base_lookback", s.BaseLookback, "must be non-negative")
	}
	if s.ProximityNearPct <= 0 || s.ProximityNearPct >= s.ProximityFarPct {
		return appErrors.NewConfigError("scan.proximity_near_pct", s.ProximityNearPct, "must be positive and less than proximity_far_pct")
	}
	if c.Server.ListenAddr == "" {
		return appErrors.NewConfigError("server.listen_addr", c.Server.ListenAddr, "must not be empty")
	}

	return nil
}

// IsLive returns true if the live broker-backed candle source is configured.
func (c *Config) IsLive() bool {
	return c.Scan.Source == "live"
}
