// Package factor computes one year of per-asset returns from a macro shock
// set, with residual noise correlated across assets.
package factor

import (
	"math/rand/v2"

	"github.com/atmx/allocation-game/internal/correlation"
	"github.com/atmx/allocation-game/internal/model"
	"github.com/atmx/allocation-game/internal/sampler"
)

// Bounds applied to every simulated annual return.
const (
	MinReturn = -0.90
	MaxReturn = 3.00
)

// Result holds one year of returns keyed by asset name.
type Result struct {
	Returns map[string]float64

	// Fallback is set when the residual correlation matrix could not be
	// factorised and the noise was drawn uncorrelated.
	Fallback bool
}

// Returns simulates one annual return per asset.
//
// Standard assets:
//
//	μ + βg·Δg + βi·Δi + βr·Δr + βe·equity + σ·ε
//
// Fixed income (Bonds with a positive duration):
//
//	rateLevel − duration·Δr + βg·Δg + βe·equity + σ·ε
//
// ε is a correlated standard normal vector across assets. Every result is
// clamped to [MinReturn, MaxReturn]. rng is the only source of randomness.
func Returns(assets []model.Asset, set model.ShockSet, rateLevel float64, rng *rand.Rand) Result {
	out := Result{Returns: make(map[string]float64, len(assets))}
	if len(assets) == 0 {
		return out
	}

	s := sampler.New(len(assets), correlation.Matrix(assets))
	out.Fallback = s.Fallback()
	eps := s.Draw(rng)

	for i, a := range assets {
		noise := a.Volatility * eps[i]

		var r float64
		if a.IsFixedIncome() {
			r = rateLevel -
				a.Duration*set.DeltaRate +
				a.BetaGrowth*set.DeltaGrowth +
				a.BetaEquity*set.EquityShock +
				noise
		} else {
			r = a.ExpectedReturn +
				a.BetaGrowth*set.DeltaGrowth +
				a.BetaInflation*set.DeltaInflation +
				a.BetaRate*set.DeltaRate +
				a.BetaEquity*set.EquityShock +
				noise
		}
		out.Returns[a.Name] = Clamp(r)
	}
	return out
}

// Clamp bounds r to [MinReturn, MaxReturn].
func Clamp(r float64) float64 {
	return max(MinReturn, min(MaxReturn, r))
}
