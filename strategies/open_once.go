package strategies

import (
	"errors"

	"github.com/rustyeddy/backtest/events"
)

// OpenOnce emits one buy signal on the first tick of its instrument and
// closes the position when the run stops.
type OpenOnce struct {
	Name       string
	Instrument string
	Strength   float64

	opened bool
}

func newOpenOnce(cfg Config) (Strategy, error) {
	if cfg.Instrument == "" {
		return nil, errors.New("open-once: instrument is required")
	}
	return &OpenOnce{Name: cfg.ID, Instrument: cfg.Instrument, Strength: 1}, nil
}

func (s *OpenOnce) ID() string { return s.Name }

func (s *OpenOnce) OnMarketData(ev events.MarketEvent, o Orders) error {
	if s.opened || ev.Tick.Instrument != s.Instrument {
		return nil
	}
	if s.Strength <= 0 {
		return errors.New("open-once: strength must be positive")
	}
	s.opened = true
	o.Signal(s.Instrument, events.SignalBuy, s.Strength)
	return nil
}

func (s *OpenOnce) Hooks() Hooks {
	return Hooks{
		OnStop: func(o Orders) error {
			if !o.Position(s.Instrument).Flat() {
				o.Signal(s.Instrument, events.SignalClose, 1)
			}
			return nil
		},
	}
}
