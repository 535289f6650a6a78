package strategies

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Config describes one strategy instance.
type Config struct {
	ID           string  `yaml:"id" json:"id"`
	Type         string  `yaml:"type" json:"type"`
	Instrument   string  `yaml:"instrument" json:"instrument"`
	Fast         int     `yaml:"fast" json:"fast"`
	Slow         int     `yaml:"slow" json:"slow"`
	Quantity     uint64  `yaml:"quantity" json:"quantity"`
	RiskPct      float64 `yaml:"risk_pct" json:"risk_pct"`
	StopDistance float64 `yaml:"stop_distance" json:"stop_distance"`
	Equity       float64 `yaml:"equity" json:"equity"`
	// ATRPeriod sizes from a stop ATRMultiple average true ranges away
	// when StopDistance is zero.
	ATRPeriod   int     `yaml:"atr_period,omitempty" json:"atr_period,omitempty"`
	ATRMultiple float64 `yaml:"atr_multiple,omitempty" json:"atr_multiple,omitempty"`
}

type Factory func(cfg Config) (Strategy, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		"noop":      func(cfg Config) (Strategy, error) { return Noop{Name: cfg.ID}, nil },
		"open-once": newOpenOnce,
		"sma-cross": func(cfg Config) (Strategy, error) { return NewCross(cfg, SMA) },
		"ema-cross": func(cfg Config) (Strategy, error) { return NewCross(cfg, EMA) },
	}
)

// Register adds or replaces a named factory.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[normalize(name)] = f
}

// ByName builds a strategy from cfg.Type.
func ByName(cfg Config) (Strategy, error) {
	mu.RLock()
	f, ok := factories[normalize(cfg.Type)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", cfg.Type, strings.Join(Names(), ", "))
	}
	if cfg.ID == "" {
		cfg.ID = normalize(cfg.Type)
	}
	return f(cfg)
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "none":
		return "noop"
	case "smacross":
		return "sma-cross"
	case "emacross":
		return "ema-cross"
	}
	return n
}
