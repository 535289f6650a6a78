package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/backtest/cost"
	"github.com/rustyeddy/backtest/internal/logging"
	"github.com/rustyeddy/backtest/risk"
	"github.com/rustyeddy/backtest/strategies"
)

// Config represents the complete backtest configuration
type Config struct {
	Engine     EngineConfig        `json:"engine" yaml:"engine"`
	Liquidity  LiquidityConfig     `json:"liquidity" yaml:"liquidity"`
	Risk       RiskConfig          `json:"risk" yaml:"risk"`
	Costs      CostConfig          `json:"costs" yaml:"costs"`
	Data       DataConfig          `json:"data" yaml:"data"`
	Strategies []strategies.Config `json:"strategies" yaml:"strategies"`
	Journal    JournalConfig       `json:"journal" yaml:"journal"`
	Log        LogConfig           `json:"log" yaml:"log"`
}

const (
	DispatchSync  = "sync"
	DispatchAsync = "async"
)

// EngineConfig controls event dispatch and order routing
type EngineConfig struct {
	Dispatch       string   `json:"dispatch" yaml:"dispatch"`
	OrderLatency   Duration `json:"order_latency" yaml:"order_latency"`
	SignalQuantity uint64   `json:"signal_quantity" yaml:"signal_quantity"`
	// Start seeds the clock; zero means the first tick's time.
	Start time.Time `json:"start,omitempty" yaml:"start,omitempty"`
}

// LiquidityConfig controls the synthetic quotes posted from each tick
type LiquidityConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	DefaultSize   uint64  `json:"default_size" yaml:"default_size"`
	DefaultSpread float64 `json:"default_spread" yaml:"default_spread"`
}

// RiskLimits is risk.Limits with a readable cooldown.
type RiskLimits struct {
	MaxPositionSize      int64    `json:"max_position_size" yaml:"max_position_size"`
	MaxNotionalExposure  float64  `json:"max_notional_exposure" yaml:"max_notional_exposure"`
	MaxPortfolioExposure float64  `json:"max_portfolio_exposure" yaml:"max_portfolio_exposure"`
	MaxDailyLoss         float64  `json:"max_daily_loss" yaml:"max_daily_loss"`
	MaxTotalLoss         float64  `json:"max_total_loss" yaml:"max_total_loss"`
	MaxOrdersPerMinute   int      `json:"max_orders_per_minute" yaml:"max_orders_per_minute"`
	MaxOrdersPerDay      int      `json:"max_orders_per_day" yaml:"max_orders_per_day"`
	MaxOrderSize         uint64   `json:"max_order_size" yaml:"max_order_size"`
	LossCooldown         Duration `json:"loss_cooldown" yaml:"loss_cooldown"`
	SevereLossThreshold  float64  `json:"severe_loss_threshold" yaml:"severe_loss_threshold"`

	EnablePositionLimits bool `json:"enable_position_limits" yaml:"enable_position_limits"`
	EnableLossLimits     bool `json:"enable_loss_limits" yaml:"enable_loss_limits"`
	EnableExposureLimits bool `json:"enable_exposure_limits" yaml:"enable_exposure_limits"`
	EnableRateLimiting   bool `json:"enable_rate_limiting" yaml:"enable_rate_limiting"`
}

func FromLimits(l risk.Limits) RiskLimits {
	return RiskLimits{
		MaxPositionSize:      l.MaxPositionSize,
		MaxNotionalExposure:  l.MaxNotionalExposure,
		MaxPortfolioExposure: l.MaxPortfolioExposure,
		MaxDailyLoss:         l.MaxDailyLoss,
		MaxTotalLoss:         l.MaxTotalLoss,
		MaxOrdersPerMinute:   l.MaxOrdersPerMinute,
		MaxOrdersPerDay:      l.MaxOrdersPerDay,
		MaxOrderSize:         l.MaxOrderSize,
		LossCooldown:         Duration(l.LossCooldown),
		SevereLossThreshold:  l.SevereLossThreshold,
		EnablePositionLimits: l.EnablePositionLimits,
		EnableLossLimits:     l.EnableLossLimits,
		EnableExposureLimits: l.EnableExposureLimits,
		EnableRateLimiting:   l.EnableRateLimiting,
	}
}

func (r RiskLimits) Limits() risk.Limits {
	return risk.Limits{
		MaxPositionSize:      r.MaxPositionSize,
		MaxNotionalExposure:  r.MaxNotionalExposure,
		MaxPortfolioExposure: r.MaxPortfolioExposure,
		MaxDailyLoss:         r.MaxDailyLoss,
		MaxTotalLoss:         r.MaxTotalLoss,
		MaxOrdersPerMinute:   r.MaxOrdersPerMinute,
		MaxOrdersPerDay:      r.MaxOrdersPerDay,
		MaxOrderSize:         r.MaxOrderSize,
		LossCooldown:         r.LossCooldown.Std(),
		SevereLossThreshold:  r.SevereLossThreshold,
		EnablePositionLimits: r.EnablePositionLimits,
		EnableLossLimits:     r.EnableLossLimits,
		EnableExposureLimits: r.EnableExposureLimits,
		EnableRateLimiting:   r.EnableRateLimiting,
	}
}

func (r RiskLimits) validate(prefix string) error {
	switch {
	case r.MaxPositionSize < 0:
		return fmt.Errorf("%s.max_position_size must not be negative", prefix)
	case r.MaxNotionalExposure < 0 || r.MaxPortfolioExposure < 0:
		return fmt.Errorf("%s exposure limits must not be negative", prefix)
	case r.MaxDailyLoss > 0 || r.MaxTotalLoss > 0:
		return fmt.Errorf("%s loss limits are negative amounts", prefix)
	case r.MaxOrdersPerMinute < 0 || r.MaxOrdersPerDay < 0:
		return fmt.Errorf("%s order rate limits must not be negative", prefix)
	case r.LossCooldown < 0:
		return fmt.Errorf("%s.loss_cooldown must not be negative", prefix)
	}
	return nil
}

// RiskConfig holds the default limits and complete per-strategy overrides.
type RiskConfig struct {
	Limits     RiskLimits            `json:"limits" yaml:"limits"`
	Strategies map[string]RiskLimits `json:"strategies,omitempty" yaml:"strategies,omitempty"`
}

const (
	SlippageNone   = "none"
	SlippageLinear = "linear"
	SlippageSqrt   = "sqrt"
)

type SlippageConfig struct {
	Model  string  `json:"model" yaml:"model"`
	Base   float64 `json:"base" yaml:"base"`
	Impact float64 `json:"impact" yaml:"impact"`
}

func (s SlippageConfig) Slippage() (cost.Slippage, error) {
	switch s.Model {
	case "", SlippageNone:
		return cost.NoSlippage{}, nil
	case SlippageLinear:
		return cost.LinearSlippage{Base: s.Base, Impact: s.Impact}, nil
	case SlippageSqrt:
		return cost.SqrtSlippage{Base: s.Base, Impact: s.Impact}, nil
	}
	return nil, fmt.Errorf("unknown slippage model %q", s.Model)
}

// CostConfig picks a preset or builds a model from a schedule and slippage.
// Instrument schedules apply on top of either.
type CostConfig struct {
	Preset      string                   `json:"preset,omitempty" yaml:"preset,omitempty"`
	Schedule    cost.Schedule            `json:"schedule" yaml:"schedule"`
	Instruments map[string]cost.Schedule `json:"instruments,omitempty" yaml:"instruments,omitempty"`
	Slippage    SlippageConfig           `json:"slippage" yaml:"slippage"`
}

func (c CostConfig) Model() (*cost.Standard, error) {
	var m *cost.Standard
	if c.Preset != "" {
		p, err := cost.Preset(c.Preset)
		if err != nil {
			return nil, err
		}
		m = p
	} else {
		slip, err := c.Slippage.Slippage()
		if err != nil {
			return nil, err
		}
		m = cost.NewStandard(c.Schedule, slip)
	}
	for inst, s := range c.Instruments {
		m.SetInstrumentSchedule(inst, s)
	}
	return m, nil
}

// DataConfig points at the tick CSV and an optional [from, to] window
type DataConfig struct {
	Path string    `json:"path" yaml:"path"`
	From time.Time `json:"from,omitempty" yaml:"from,omitempty"`
	To   time.Time `json:"to,omitempty" yaml:"to,omitempty"`
}

const (
	JournalNone   = "none"
	JournalCSV    = "csv"
	JournalSQLite = "sqlite"
)

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// LoadFromFile loads configuration from a file. .json files are decoded as
// JSON; anything else is tried as YAML first, falling back to JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if filepath.Ext(path) == ".json" {
		return decode(data, json.Unmarshal)
	}
	return Parse(data)
}

// Parse decodes data over Default, so omitted sections keep their defaults.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data, yaml.Unmarshal)
	if err == nil {
		return cfg, nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return nil, err
	}
	cfg, jerr := decode(data, json.Unmarshal)
	if jerr != nil {
		if errors.As(jerr, &ve) {
			return nil, jerr
		}
		return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
	}
	return cfg, nil
}

func decode(data []byte, unmarshal func([]byte, any) error) (*Config, error) {
	cfg := Default()
	cfg.Strategies = nil
	if err := unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}
	return cfg, nil
}

// ValidationError reports a config that decoded but is not usable.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid config: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Engine.Dispatch {
	case DispatchSync, DispatchAsync:
	default:
		return fmt.Errorf("engine.dispatch must be %q or %q", DispatchSync, DispatchAsync)
	}
	if c.Engine.OrderLatency < 0 {
		return fmt.Errorf("engine.order_latency must not be negative")
	}
	if c.Liquidity.Enabled && c.Liquidity.DefaultSize == 0 {
		return fmt.Errorf("liquidity.default_size must be positive when liquidity is enabled")
	}
	if c.Liquidity.DefaultSpread < 0 {
		return fmt.Errorf("liquidity.default_spread must not be negative")
	}

	if err := c.Risk.Limits.validate("risk.limits"); err != nil {
		return err
	}
	for id, l := range c.Risk.Strategies {
		if err := l.validate("risk.strategies." + id); err != nil {
			return err
		}
	}

	if err := c.Costs.Schedule.Validate(); err != nil {
		return fmt.Errorf("costs.schedule: %w", err)
	}
	if _, err := c.Costs.Model(); err != nil {
		return fmt.Errorf("costs: %w", err)
	}

	if c.Data.Path == "" {
		return fmt.Errorf("data.path is required")
	}
	if !c.Data.From.IsZero() && !c.Data.To.IsZero() && c.Data.To.Before(c.Data.From) {
		return fmt.Errorf("data.to is before data.from")
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	seen := make(map[string]bool, len(c.Strategies))
	for i, sc := range c.Strategies {
		if sc.ID == "" {
			return fmt.Errorf("strategies[%d].id is required", i)
		}
		if seen[sc.ID] {
			return fmt.Errorf("duplicate strategy id %q", sc.ID)
		}
		seen[sc.ID] = true
		if _, err := strategies.ByName(sc); err != nil {
			return fmt.Errorf("strategies[%d]: %w", i, err)
		}
	}

	switch c.Journal.Type {
	case JournalNone, "":
	case JournalCSV:
		if c.Journal.Dir == "" {
			return fmt.Errorf("journal dir required for CSV type")
		}
	case JournalSQLite:
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Dispatch:       DispatchSync,
			SignalQuantity: 100,
		},
		Liquidity: LiquidityConfig{
			Enabled:       true,
			DefaultSize:   1000,
			DefaultSpread: 0.01,
		},
		Risk: RiskConfig{
			Limits: FromLimits(risk.DefaultLimits()),
		},
		Costs: CostConfig{
			Schedule: cost.DefaultSchedule(),
			Slippage: SlippageConfig{Model: SlippageLinear, Base: 0.0001, Impact: 0.01},
		},
		Data: DataConfig{
			Path: "./data/ticks.csv",
		},
		Strategies: []strategies.Config{
			{ID: "sma", Type: "sma-cross", Instrument: "AAPL", Fast: 10, Slow: 30, Quantity: 100},
		},
		Journal: JournalConfig{
			Type: JournalCSV,
			Dir:  "./journal",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
