package projection

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrInvalidPercentile is returned for percentiles outside [0, 100].
var ErrInvalidPercentile = errors.New("projection: percentile must be in [0, 100]")

// DefaultPercentiles are the bands reported when none are requested.
var DefaultPercentiles = []float64{5, 50, 95}

// PercentileValue is one percentile of the final-year distribution.
type PercentileValue struct {
	Percentile float64 `json:"percentile"`
	Value      float64 `json:"value"`
}

// PercentilePath is one percentile of gross value, year by year.
type PercentilePath struct {
	Percentile float64   `json:"percentile"`
	Path       []float64 `json:"path"`
}

// Summary condenses a Result into distribution statistics.
type Summary struct {
	StartValue            float64           `json:"start_value"`
	Mean                  float64           `json:"mean"`
	StdDev                float64           `json:"std_dev"` // population
	Percentiles           []PercentileValue `json:"percentiles"`
	MedianPath            []float64         `json:"median_path"`
	MedianLiquidationPath []float64         `json:"median_liquidation_path"`
	PercentilePaths       []PercentilePath  `json:"percentile_paths"`
	ProbabilityOfLoss     float64           `json:"probability_of_loss"` // P(final < start)
	Volatility            float64           `json:"volatility"`
	Fallback              bool              `json:"correlation_fallback"`
}

// Summarize computes statistics over the final year and per-year
// percentile paths. Quantiles use the empirical CDF.
func Summarize(res *Result, percentiles []float64) (Summary, error) {
	if res == nil || len(res.Gross) == 0 {
		return Summary{}, ErrNoTrajectories
	}
	if len(percentiles) == 0 {
		percentiles = DefaultPercentiles
	}
	for _, p := range percentiles {
		if p < 0 || p > 100 {
			return Summary{}, fmt.Errorf("%w: %v", ErrInvalidPercentile, p)
		}
	}

	years := len(res.Gross[0])
	final := column(res.Gross, years-1)

	sum := Summary{
		StartValue: res.StartValue,
		Volatility: res.Volatility,
		Fallback:   res.Fallback,
	}
	sum.Mean, sum.StdDev = stat.PopMeanStdDev(final, nil)

	var losses int
	for _, v := range final {
		if v < res.StartValue {
			losses++
		}
	}
	sum.ProbabilityOfLoss = float64(losses) / float64(len(final))

	sort.Float64s(final)
	for _, p := range percentiles {
		sum.Percentiles = append(sum.Percentiles, PercentileValue{
			Percentile: p,
			Value:      quantile(p, final),
		})
	}

	sum.MedianPath = make([]float64, years)
	sum.MedianLiquidationPath = make([]float64, years)
	paths := make([]PercentilePath, len(percentiles))
	for i, p := range percentiles {
		paths[i] = PercentilePath{Percentile: p, Path: make([]float64, years)}
	}

	for t := 0; t < years; t++ {
		gross := column(res.Gross, t)
		sort.Float64s(gross)
		sum.MedianPath[t] = quantile(50, gross)
		for i, p := range percentiles {
			paths[i].Path[t] = quantile(p, gross)
		}

		liquid := column(res.Liquidation, t)
		sort.Float64s(liquid)
		sum.MedianLiquidationPath[t] = quantile(50, liquid)
	}
	sum.PercentilePaths = paths
	return sum, nil
}

// quantile expects sorted input.
func quantile(percentile float64, sorted []float64) float64 {
	return stat.Quantile(percentile/100, stat.Empirical, sorted, nil)
}

func column(m [][]float64, t int) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		out[i] = row[t]
	}
	return out
}
