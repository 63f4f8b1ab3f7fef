package projection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/allocation-game/internal/catalog"
)

func TestSummarize_Deterministic(t *testing.T) {
	res := &Result{
		StartValue:  100,
		Gross:       [][]float64{{100, 90}, {100, 110}, {100, 130}, {100, 70}},
		Liquidation: [][]float64{{90, 90}, {90, 110}, {90, 130}, {90, 70}},
	}

	sum, err := Summarize(res, nil)
	require.NoError(t, err)

	assert.InDelta(t, 100.0, sum.Mean, 1e-12)
	// Population std of {70, 90, 110, 130}.
	assert.InDelta(t, 22.360679775, sum.StdDev, 1e-6)
	assert.InDelta(t, 0.5, sum.ProbabilityOfLoss, 1e-12)

	require.Len(t, sum.Percentiles, 3)
	assert.Equal(t, 5.0, sum.Percentiles[0].Percentile)
	assert.Equal(t, 70.0, sum.Percentiles[0].Value)
	assert.Equal(t, 130.0, sum.Percentiles[2].Value)

	assert.Equal(t, []float64{100, 90}, sum.MedianPath)
	assert.Equal(t, []float64{90, 90}, sum.MedianLiquidationPath)
	require.Len(t, sum.PercentilePaths, 3)
	assert.Equal(t, []float64{100, 70}, sum.PercentilePaths[0].Path)
}

func TestSummarize_Errors(t *testing.T) {
	_, err := Summarize(nil, nil)
	assert.ErrorIs(t, err, ErrNoTrajectories)

	res := &Result{Gross: [][]float64{{1}}, Liquidation: [][]float64{{1}}}
	_, err = Summarize(res, []float64{150})
	assert.ErrorIs(t, err, ErrInvalidPercentile)
}

func TestSummarize_PercentilesOrdered(t *testing.T) {
	c := catalog.MustDefault()
	etf, _ := c.Lookup("ETF World (MSCI)")
	gold, _ := c.Lookup("Gold Bullion")

	res, err := Run(context.Background(), Input{
		Holdings:     []Holding{{etf, 70_000}, {gold, 30_000}},
		Horizon:      10,
		Trajectories: 2_000,
		Scenario:     Normal,
		Seed:         7,
	})
	require.NoError(t, err)

	sum, err := Summarize(res, []float64{5, 50, 95})
	require.NoError(t, err)

	p5, p50, p95 := sum.Percentiles[0].Value, sum.Percentiles[1].Value, sum.Percentiles[2].Value
	assert.Less(t, p5, p50)
	assert.Less(t, p50, p95)
	assert.Equal(t, 100_000.0, sum.MedianPath[0])
	assert.Len(t, sum.MedianPath, 11)
	for _, pp := range sum.PercentilePaths {
		assert.Len(t, pp.Path, 11)
	}
	assert.Greater(t, sum.Mean, 100_000.0)
}
