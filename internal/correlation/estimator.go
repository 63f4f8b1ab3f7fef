// Package correlation estimates pairwise asset correlations from category
// heuristics and assembles them into symmetric correlation matrices.
package correlation

import (
	"github.com/atmx/allocation-game/internal/model"
)

// Heuristic correlation levels.
const (
	SameAsset           = 1.0
	SameCategory        = 0.8
	EquityCrypto        = 0.6
	EquityPrivateEquity = 0.7
	EquityBonds         = 0.1
	Baseline            = 0.3
)

// Estimate returns the pairwise correlation between two assets.
//
// Rules are evaluated in order:
//   - same name → 1.0
//   - same category → 0.8
//   - Equity/Crypto → 0.6
//   - Equity/Bonds → 0.1
//   - Equity/Private Equity → 0.7
//   - anything else → 0.3
//
// Every cross-category rule is matched in both orderings, so Estimate is
// symmetric. The resulting matrix is not guaranteed positive semi-definite;
// callers must go through the sampler's fallback.
func Estimate(a, b model.Asset) float64 {
	if a.Name == b.Name {
		return SameAsset
	}
	if a.Category == b.Category {
		return SameCategory
	}
	switch {
	case pair(a, b, model.CategoryEquity, model.CategoryCrypto):
		return EquityCrypto
	case pair(a, b, model.CategoryEquity, model.CategoryBonds):
		return EquityBonds
	case pair(a, b, model.CategoryEquity, model.CategoryPrivateEquity):
		return EquityPrivateEquity
	}
	return Baseline
}

func pair(a, b model.Asset, x, y string) bool {
	return (a.Category == x && b.Category == y) || (a.Category == y && b.Category == x)
}

// Matrix builds the n×n correlation matrix for assets in the given order,
// stored row-major.
func Matrix(assets []model.Asset) []float64 {
	n := len(assets)
	m := make([]float64, n*n)
	for i := 0; i < n; i++ {
		m[i*n+i] = SameAsset
		for j := i + 1; j < n; j++ {
			rho := Estimate(assets[i], assets[j])
			m[i*n+j] = rho
			m[j*n+i] = rho
		}
	}
	return m
}
