// Package config provides configuration management for the roll monitor.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Default thresholds applied when the corresponding keys are unset.
const (
	// defaultDTEThreshold is the evaluation gate: positions further out are skipped.
	defaultDTEThreshold = 14
	// defaultExpiringDTEMax separates skip_expiring from missing_data on absent marks.
	defaultExpiringDTEMax = 2
	// defaultRollForwardDays is how far past the current expiry the replacement lands.
	defaultRollForwardDays = 7
	// defaultTargetDeltaCall/Put are the replacement deltas to hunt for.
	defaultTargetDeltaCall = 0.10
	defaultTargetDeltaPut  = -0.90
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Provider    ProviderConfig    `yaml:"provider"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Roll        RollConfig        `yaml:"roll"`
	Cache       CacheConfig       `yaml:"cache"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ProviderConfig selects and tunes the market-data source.
type ProviderConfig struct {
	Kind   string   `yaml:"kind"`   // sim
	Venues []string `yaml:"venues"` // option venue fallback order
	// Symbols seeds the sim provider's universe; ignored by other kinds.
	Symbols []SymbolConfig `yaml:"symbols"`
}

// SymbolConfig seeds one simulated underlying.
type SymbolConfig struct {
	Symbol         string  `yaml:"symbol"`
	Spot           float64 `yaml:"spot"`
	IV             float64 `yaml:"iv"`
	StrikeInterval float64 `yaml:"strike_interval"`
}

// ScheduleConfig defines the evaluation schedule and market hours.
type ScheduleConfig struct {
	CheckInterval   string `yaml:"check_interval"`
	Timezone        string `yaml:"timezone"`      // e.g., "America/New_York"
	TradingStart    string `yaml:"trading_start"` // "HH:MM"
	TradingEnd      string `yaml:"trading_end"`   // "HH:MM"
	SkipMarketCheck bool   `yaml:"skip_market_check"`
}

// RollConfig defines roll evaluation parameters.
type RollConfig struct {
	// Rights limits evaluation to these option rights (default [C, P]).
	Rights          []string      `yaml:"rights"`
	TargetDeltaCall float64       `yaml:"target_delta_call"`
	TargetDeltaPut  float64       `yaml:"target_delta_put"`
	DTEThreshold    int           `yaml:"dte_threshold"`
	ExpiringDTEMax  int           `yaml:"expiring_dte_max"`
	RollForwardDays int           `yaml:"roll_forward_days"`
	DTEWindow       []int         `yaml:"dte_window"` // [min, max]
	QuoteTimeout    string        `yaml:"quote_timeout"`
	ExpiryTimeout   string        `yaml:"expiry_timeout"`
	Sampler         SamplerConfig `yaml:"sampler"`
}

// SamplerConfig defines strike sampling parameters.
type SamplerConfig struct {
	MaxUniverse       int       `yaml:"max_universe"`
	ClampPct          float64   `yaml:"clamp_pct"`
	BandCallPct       []float64 `yaml:"band_low_pct"`     // [lo, hi] multiples of spot
	BandPutPct        []float64 `yaml:"band_put_low_pct"` // [lo, hi] multiples of spot
	BandDollar        []float64 `yaml:"band_dollar"`      // [below, above] offsets
	LowDeltaCutoff    float64   `yaml:"low_delta_cutoff"`
	LowDeltaCutoffPut float64   `yaml:"low_delta_cutoff_put"`
	SampleSize        int       `yaml:"sample_size"`
	GoodMatches       int       `yaml:"good_matches"`
	DeltaTolerance    float64   `yaml:"delta_tolerance"`
	MaxReturned       int       `yaml:"max_returned"`
	VenueTimeout      string    `yaml:"venue_timeout"`
	OverallTimeout    string    `yaml:"overall_timeout"`
	Parallel          bool      `yaml:"parallel"`
	ParallelLimit     int       `yaml:"parallel_limit"`
}

// CacheConfig defines quote cache TTLs.
type CacheConfig struct {
	OptionTTL     string `yaml:"option_ttl"`
	StockTTL      string `yaml:"stock_ttl"`
	SweepInterval string `yaml:"sweep_interval"`
}

// StorageConfig defines run snapshot persistence.
type StorageConfig struct {
	Path         string `yaml:"path"`
	HistoryLimit int    `yaml:"history_limit"`
}

// DashboardConfig defines the JSON status API.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
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

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
// Call normalize first when constructing a Config by hand.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	if c.Provider.Kind != "sim" {
		return fmt.Errorf("provider.kind %q is not supported (only 'sim')", c.Provider.Kind)
	}
	if c.Provider.Kind == "sim" && len(c.Provider.Symbols) == 0 {
		return fmt.Errorf("provider.symbols is required for the sim provider")
	}
	for i, s := range c.Provider.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("provider.symbols[%d].symbol is required", i)
		}
		if s.Spot <= 0 {
			return fmt.Errorf("provider.symbols[%d].spot must be > 0", i)
		}
	}

	for _, r := range c.Roll.Rights {
		if r != "C" && r != "P" {
			return fmt.Errorf("roll.rights entries must be 'C' or 'P', got %q", r)
		}
	}
	if c.Roll.TargetDeltaCall <= 0 || c.Roll.TargetDeltaCall >= 1 {
		return fmt.Errorf("roll.target_delta_call must be in (0,1)")
	}
	if c.Roll.TargetDeltaPut >= 0 || c.Roll.TargetDeltaPut <= -1 {
		return fmt.Errorf("roll.target_delta_put must be in (-1,0)")
	}
	if c.Roll.DTEThreshold <= 0 {
		return fmt.Errorf("roll.dte_threshold must be > 0")
	}
	if c.Roll.ExpiringDTEMax < 0 {
		return fmt.Errorf("roll.expiring_dte_max must be >= 0")
	}
	if c.Roll.RollForwardDays <= 0 {
		return fmt.Errorf("roll.roll_forward_days must be > 0")
	}
	// DTE window must be [min,max] with positive ints and min <= max
	if len(c.Roll.DTEWindow) != 2 ||
		c.Roll.DTEWindow[0] <= 0 ||
		c.Roll.DTEWindow[1] <= 0 ||
		c.Roll.DTEWindow[0] > c.Roll.DTEWindow[1] {
		return fmt.Errorf("roll.dte_window must be [min,max] with positive values and min <= max")
	}

	if len(c.Roll.Sampler.BandCallPct) != 2 || c.Roll.Sampler.BandCallPct[0] >= c.Roll.Sampler.BandCallPct[1] {
		return fmt.Errorf("roll.sampler.band_low_pct must be [lo,hi] with lo < hi")
	}
	if len(c.Roll.Sampler.BandPutPct) != 2 || c.Roll.Sampler.BandPutPct[0] >= c.Roll.Sampler.BandPutPct[1] {
		return fmt.Errorf("roll.sampler.band_put_low_pct must be [lo,hi] with lo < hi")
	}
	if len(c.Roll.Sampler.BandDollar) != 2 || c.Roll.Sampler.BandDollar[0] <= 0 || c.Roll.Sampler.BandDollar[1] <= 0 {
		return fmt.Errorf("roll.sampler.band_dollar must be [below,above] with positive values")
	}
	if c.Roll.Sampler.SampleSize <= 0 {
		return fmt.Errorf("roll.sampler.sample_size must be > 0")
	}
	if c.Roll.Sampler.MaxReturned <= 0 {
		return fmt.Errorf("roll.sampler.max_returned must be > 0")
	}

	for key, value := range map[string]string{
		"schedule.check_interval":      c.Schedule.CheckInterval,
		"roll.quote_timeout":           c.Roll.QuoteTimeout,
		"roll.expiry_timeout":          c.Roll.ExpiryTimeout,
		"roll.sampler.venue_timeout":   c.Roll.Sampler.VenueTimeout,
		"roll.sampler.overall_timeout": c.Roll.Sampler.OverallTimeout,
		"cache.option_ttl":             c.Cache.OptionTTL,
		"cache.stock_ttl":              c.Cache.StockTTL,
		"cache.sweep_interval":         c.Cache.SweepInterval,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s invalid: %w", key, err)
		}
	}

	tz := c.Schedule.Timezone
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Fallback for minimal containers
		loc = time.FixedZone("ET", -5*60*60)
	}
	s, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	e, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil || (s.Hour() > e.Hour() || (s.Hour() == e.Hour() && s.Minute() >= e.Minute())) {
		return fmt.Errorf("schedule trading window invalid (start/end parse/order)")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.HistoryLimit <= 0 {
		return fmt.Errorf("storage.history_limit must be > 0")
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be in (0,65535]")
	}

	return nil
}

// normalize fills defaults for unset keys so hand-constructed and sparse
// configs behave the same as a fully specified file.
func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Provider.Kind == "" {
		c.Provider.Kind = "sim"
	}

	if c.Schedule.CheckInterval == "" {
		c.Schedule.CheckInterval = "60s"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "America/New_York"
	}
	if c.Schedule.TradingStart == "" {
		c.Schedule.TradingStart = "09:30"
	}
	if c.Schedule.TradingEnd == "" {
		c.Schedule.TradingEnd = "16:00"
	}

	if len(c.Roll.Rights) == 0 {
		c.Roll.Rights = []string{"C", "P"}
	}
	if c.Roll.TargetDeltaCall == 0 {
		c.Roll.TargetDeltaCall = defaultTargetDeltaCall
	}
	if c.Roll.TargetDeltaPut == 0 {
		c.Roll.TargetDeltaPut = defaultTargetDeltaPut
	}
	if c.Roll.DTEThreshold == 0 {
		c.Roll.DTEThreshold = defaultDTEThreshold
	}
	if c.Roll.ExpiringDTEMax == 0 {
		c.Roll.ExpiringDTEMax = defaultExpiringDTEMax
	}
	if c.Roll.RollForwardDays == 0 {
		c.Roll.RollForwardDays = defaultRollForwardDays
	}
	if len(c.Roll.DTEWindow) == 0 {
		c.Roll.DTEWindow = []int{30, 60}
	}
	if c.Roll.QuoteTimeout == "" {
		c.Roll.QuoteTimeout = "3s"
	}
	if c.Roll.ExpiryTimeout == "" {
		c.Roll.ExpiryTimeout = "30s"
	}

	sp := &c.Roll.Sampler
	if sp.MaxUniverse == 0 {
		sp.MaxUniverse = 200
	}
	if sp.ClampPct == 0 {
		sp.ClampPct = 0.30
	}
	if len(sp.BandCallPct) == 0 {
		sp.BandCallPct = []float64{1.05, 1.15}
	}
	if len(sp.BandPutPct) == 0 {
		sp.BandPutPct = []float64{0.85, 0.95}
	}
	if len(sp.BandDollar) == 0 {
		sp.BandDollar = []float64{50, 150}
	}
	if sp.LowDeltaCutoff == 0 {
		sp.LowDeltaCutoff = 0.15
	}
	if sp.LowDeltaCutoffPut == 0 {
		sp.LowDeltaCutoffPut = -0.85
	}
	if sp.SampleSize == 0 {
		sp.SampleSize = 10
	}
	if sp.GoodMatches == 0 {
		sp.GoodMatches = 8
	}
	if sp.DeltaTolerance == 0 {
		sp.DeltaTolerance = 0.05
	}
	if sp.MaxReturned == 0 {
		sp.MaxReturned = 12
	}
	if sp.VenueTimeout == "" {
		sp.VenueTimeout = "60s"
	}
	if sp.OverallTimeout == "" {
		sp.OverallTimeout = "180s"
	}
	if sp.ParallelLimit == 0 {
		sp.ParallelLimit = 4
	}

	if c.Cache.OptionTTL == "" {
		c.Cache.OptionTTL = "60s"
	}
	if c.Cache.StockTTL == "" {
		c.Cache.StockTTL = "30s"
	}
	if c.Cache.SweepInterval == "" {
		c.Cache.SweepInterval = "5m"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "data/runs.json"
	}
	if c.Storage.HistoryLimit == 0 {
		c.Storage.HistoryLimit = 50
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 9090
	}
}

// IsPaperTrading returns true if the monitor is configured for paper mode.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// GetCheckInterval returns the configured evaluation interval duration.
func (c *Config) GetCheckInterval() time.Duration {
	return parseDurationOr(c.Schedule.CheckInterval, time.Minute)
}

// GetQuoteTimeout returns the per-venue greeks polling ceiling.
func (c *Config) GetQuoteTimeout() time.Duration {
	return parseDurationOr(c.Roll.QuoteTimeout, 3*time.Second)
}

// GetExpiryTimeout returns the total expiry-selection ceiling.
func (c *Config) GetExpiryTimeout() time.Duration {
	return parseDurationOr(c.Roll.ExpiryTimeout, 30*time.Second)
}

// GetSamplerVenueTimeout returns the per-venue strike-sampling ceiling.
func (c *Config) GetSamplerVenueTimeout() time.Duration {
	return parseDurationOr(c.Roll.Sampler.VenueTimeout, 60*time.Second)
}

// GetSamplerOverallTimeout returns the total strike-sampling ceiling.
func (c *Config) GetSamplerOverallTimeout() time.Duration {
	return parseDurationOr(c.Roll.Sampler.OverallTimeout, 180*time.Second)
}

// GetOptionTTL returns the option cache TTL.
func (c *Config) GetOptionTTL() time.Duration {
	return parseDurationOr(c.Cache.OptionTTL, time.Minute)
}

// GetStockTTL returns the stock cache TTL.
func (c *Config) GetStockTTL() time.Duration {
	return parseDurationOr(c.Cache.StockTTL, 30*time.Second)
}

// GetSweepInterval returns the cache sweep period.
func (c *Config) GetSweepInterval() time.Duration {
	return parseDurationOr(c.Cache.SweepInterval, 5*time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// IsWithinTradingHours checks if the given time falls within configured trading hours.
func (c *Config) IsWithinTradingHours(now time.Time) bool {
	if c.Schedule.SkipMarketCheck {
		return true
	}

	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Try fallback to America/New_York
		if fallbackLoc, err2 := time.LoadLocation("America/New_York"); err2 == nil {
			loc = fallbackLoc
		} else {
			// Final fallback to DST-agnostic FixedZone
			loc = time.FixedZone("ET", -5*60*60)
		}
	}
	today := now.In(loc)

	// Only allow Monday–Friday evaluation
	if today.Weekday() == time.Saturday || today.Weekday() == time.Sunday {
		return false
	}

	startClock, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	endClock, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil {
		// Safe defaults if misconfigured
		startClock = time.Date(0, 1, 1, 9, 30, 0, 0, loc)
		endClock = time.Date(0, 1, 1, 16, 0, 0, 0, loc)
	}
	start := time.Date(today.Year(), today.Month(), today.Day(),
		startClock.Hour(), startClock.Minute(), 0, 0, loc)
	end := time.Date(today.Year(), today.Month(), today.Day(),
		endClock.Hour(), endClock.Minute(), 0, 0, loc)

	// Inclusive start, exclusive end
	return !today.Before(start) && today.Before(end)
}

// Normalize exposes default filling for configs constructed in code.
func (c *Config) Normalize() {
	c.normalize()
}
