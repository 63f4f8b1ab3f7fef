package macro

import (
	"math/rand/v2"

	"github.com/atmx/allocation-game/internal/model"
	"github.com/atmx/allocation-game/internal/sampler"
)

// Joint distribution of annual macro shocks, ordered growth, inflation,
// rate, equity. Growth and equity move together; rates lean against
// equity and with inflation.
var (
	shockCorrelation = []float64{
		1.0, 0.3, -0.2, 0.6,
		0.3, 1.0, 0.5, 0.0,
		-0.2, 0.5, 1.0, -0.4,
		0.6, 0.0, -0.4, 1.0,
	}
	shockStdDev = [4]float64{0.025, 0.015, 0.020, 0.15}

	shockSampler = sampler.New(4, shockCorrelation)
)

// GenerateShocks draws one set of correlated macro shocks.
func GenerateShocks(rng *rand.Rand) model.Shocks {
	z := shockSampler.Draw(rng)
	return model.Shocks{
		Growth:    z[0] * shockStdDev[0],
		Inflation: z[1] * shockStdDev[1],
		Rate:      z[2] * shockStdDev[2],
		Equity:    z[3] * shockStdDev[3],
	}
}
