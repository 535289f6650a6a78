package risk

import "time"

// Limits configures one set of risk checks. Loss limits and the severe loss
// threshold are negative amounts in account currency.
type Limits struct {
	MaxPositionSize      int64         `yaml:"max_position_size" json:"max_position_size"`
	MaxNotionalExposure  float64       `yaml:"max_notional_exposure" json:"max_notional_exposure"`
	MaxPortfolioExposure float64       `yaml:"max_portfolio_exposure" json:"max_portfolio_exposure"`
	MaxDailyLoss         float64       `yaml:"max_daily_loss" json:"max_daily_loss"`
	MaxTotalLoss         float64       `yaml:"max_total_loss" json:"max_total_loss"`
	MaxOrdersPerMinute   int           `yaml:"max_orders_per_minute" json:"max_orders_per_minute"`
	MaxOrdersPerDay      int           `yaml:"max_orders_per_day" json:"max_orders_per_day"`
	MaxOrderSize         uint64        `yaml:"max_order_size" json:"max_order_size"`
	LossCooldown         time.Duration `yaml:"loss_cooldown" json:"loss_cooldown"`
	SevereLossThreshold  float64       `yaml:"severe_loss_threshold" json:"severe_loss_threshold"`

	EnablePositionLimits bool `yaml:"enable_position_limits" json:"enable_position_limits"`
	EnableLossLimits     bool `yaml:"enable_loss_limits" json:"enable_loss_limits"`
	EnableExposureLimits bool `yaml:"enable_exposure_limits" json:"enable_exposure_limits"`
	EnableRateLimiting   bool `yaml:"enable_rate_limiting" json:"enable_rate_limiting"`
}

// RateWindow is the rolling window for MaxOrdersPerMinute.
const RateWindow = time.Minute

func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:      1_000_000,
		MaxNotionalExposure:  10_000_000,
		MaxPortfolioExposure: 50_000_000,
		MaxDailyLoss:         -10_000,
		MaxTotalLoss:         -50_000,
		MaxOrdersPerMinute:   100,
		MaxOrdersPerDay:      10_000,
		MaxOrderSize:         10_000,
		LossCooldown:         30 * time.Minute,
		SevereLossThreshold:  -1_000,
		EnablePositionLimits: true,
		EnableLossLimits:     true,
		EnableExposureLimits: true,
		EnableRateLimiting:   true,
	}
}
