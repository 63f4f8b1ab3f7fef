// Package macro implements the four-factor mean-reverting macro state.
//
// Each factor follows an AR(1) update:
//
//	new = mean + φ·(old − mean) + shock
//
// with φ ∈ [0, 1). Only the four levels are persisted; means and
// persistence come from Config.
package macro

import (
	"errors"
	"fmt"

	"github.com/atmx/allocation-game/internal/model"
)

// ErrInvalidPersistence is returned when a φ coefficient is outside [0, 1).
var ErrInvalidPersistence = errors.New("macro: persistence must be in [0, 1)")

// Factor is the long-run mean and persistence of one macro variable.
type Factor struct {
	Mean        float64 `mapstructure:"mean" json:"mean"`
	Persistence float64 `mapstructure:"persistence" json:"persistence"`
}

func (f Factor) step(old, shock float64) float64 {
	return f.Mean + f.Persistence*(old-f.Mean) + shock
}

// Config holds the parameters of the four factors.
type Config struct {
	Growth    Factor `mapstructure:"growth" json:"growth"`
	Inflation Factor `mapstructure:"inflation" json:"inflation"`
	Rate      Factor `mapstructure:"rate" json:"rate"`
	Equity    Factor `mapstructure:"equity" json:"equity"`
}

// DefaultConfig returns the standard calibration: growth 2% (φ 0.5),
// inflation 2% (φ 0.6), policy rate 3% (φ 0.8), equity factor 0 (φ 0.3).
func DefaultConfig() Config {
	return Config{
		Growth:    Factor{Mean: 0.02, Persistence: 0.50},
		Inflation: Factor{Mean: 0.02, Persistence: 0.60},
		Rate:      Factor{Mean: 0.03, Persistence: 0.80},
		Equity:    Factor{Mean: 0.00, Persistence: 0.30},
	}
}

// Validate checks every persistence coefficient.
func (c Config) Validate() error {
	for name, f := range map[string]Factor{
		"growth": c.Growth, "inflation": c.Inflation, "rate": c.Rate, "equity": c.Equity,
	} {
		if f.Persistence < 0 || f.Persistence >= 1 {
			return fmt.Errorf("%w: %s φ=%v", ErrInvalidPersistence, name, f.Persistence)
		}
	}
	return nil
}

// State is the current macro state. It is not safe for concurrent use;
// the owning session serialises access.
type State struct {
	cfg    Config
	levels model.MacroLevels
}

// New returns a state sitting at the long-run means.
func New(cfg Config) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &State{cfg: cfg}
	s.Reset()
	return s, nil
}

// Restore rebuilds a state from persisted levels.
func Restore(cfg Config, levels model.MacroLevels) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &State{cfg: cfg, levels: levels}, nil
}

// Config returns the parameters the state was built with.
func (s *State) Config() Config { return s.cfg }

// Levels returns the current four levels.
func (s *State) Levels() model.MacroLevels { return s.levels }

// Reset returns every factor to its long-run mean.
func (s *State) Reset() {
	s.levels = model.MacroLevels{
		Growth:    s.cfg.Growth.Mean,
		Inflation: s.cfg.Inflation.Mean,
		Rate:      s.cfg.Rate.Mean,
		Equity:    s.cfg.Equity.Mean,
	}
}

// Update advances all four factors by one period and returns the shock set
// consumed by the factor return model.
func (s *State) Update(shocks model.Shocks) model.ShockSet {
	old := s.levels
	s.levels = model.MacroLevels{
		Growth:    s.cfg.Growth.step(old.Growth, shocks.Growth),
		Inflation: s.cfg.Inflation.step(old.Inflation, shocks.Inflation),
		Rate:      s.cfg.Rate.step(old.Rate, shocks.Rate),
		Equity:    s.cfg.Equity.step(old.Equity, shocks.Equity),
	}
	return model.ShockSet{
		DeltaGrowth:    s.levels.Growth - s.cfg.Growth.Mean,
		DeltaInflation: s.levels.Inflation - s.cfg.Inflation.Mean,
		DeltaRate:      s.levels.Rate - old.Rate,
		EquityShock:    s.levels.Equity,
	}
}
