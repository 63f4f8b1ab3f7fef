// Package projection runs multi-year Monte Carlo projections of a
// multi-asset portfolio.
//
// Each asset follows a geometric random walk with annual steps:
//
//	R = exp((μ − σ²/2)·Δt + σ·√Δt·Z),  Δt = 1
//
// where Z is drawn jointly across assets through the Cholesky factor of the
// heuristic correlation matrix. The portfolio is rebalanced to its initial
// weights every year, external cash flows are added after growth, and the
// value is floored at zero. A second matrix carries the liquidation value:
// gross value minus the exit penalties of positions still locked up.
package projection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/atmx/allocation-game/internal/correlation"
	"github.com/atmx/allocation-game/internal/model"
	"github.com/atmx/allocation-game/internal/sampler"
)

var (
	ErrEmptyPortfolio   = errors.New("projection: portfolio has no holdings")
	ErrInvalidHorizon   = errors.New("projection: horizon must be >= 0")
	ErrNoTrajectories   = errors.New("projection: trajectories must be > 0")
	ErrNonPositiveValue = errors.New("projection: portfolio value must be positive")
	ErrInvalidScenario  = errors.New("projection: volatility multiplier must be >= 0")
)

// chunkSize is the number of trajectories simulated by one worker task.
// Chunks, not workers, own random streams, so output for a given seed does
// not depend on the worker count.
const chunkSize = 256

// Holding is one position of the projected portfolio.
type Holding struct {
	Asset  model.Asset
	Amount float64
}

// Input parameterises a projection run.
type Input struct {
	Holdings     []Holding
	Horizon      int // years
	Trajectories int
	Scenario     Scenario
	CashFlows    map[int]float64 // year → signed external flow
	Seed         uint64
	Workers      int // <= 0 means GOMAXPROCS
}

// Result holds the simulated paths. Gross and Liquidation are
// [Trajectories][Horizon+1]; column 0 is the starting point.
type Result struct {
	Gross       [][]float64
	Liquidation [][]float64

	Assets     []model.Asset
	Weights    []float64
	StartValue float64

	// Volatility is the one-year portfolio volatility sqrt(wᵀΣw) under
	// the adjusted scenario.
	Volatility float64

	// Fallback is set when correlated draws degraded to independent ones.
	Fallback bool
}

type prepared struct {
	assets  []model.Asset
	weights []float64
	start   float64
	drift   []float64 // μ − σ²/2
	sigma   []float64
	penalty []float64 // Σ w·penalty over assets locked at year t, t in [0, horizon]
}

// Run simulates in.Trajectories independent paths.
func Run(ctx context.Context, in Input) (*Result, error) {
	p, err := prepare(in)
	if err != nil {
		return nil, err
	}

	corr := correlation.Matrix(p.assets)
	s := sampler.New(len(p.assets), corr)

	res := &Result{
		Gross:       make([][]float64, in.Trajectories),
		Liquidation: make([][]float64, in.Trajectories),
		Assets:      p.assets,
		Weights:     p.weights,
		StartValue:  p.start,
		Volatility:  portfolioVolatility(Covariance(p.assets, in.Scenario), p.weights),
		Fallback:    s.Fallback(),
	}

	workers := in.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	chunks := (in.Trajectories + chunkSize - 1) / chunkSize
	for c := 0; c < chunks; c++ {
		lo := c * chunkSize
		hi := min(lo+chunkSize, in.Trajectories)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(in.Seed, uint64(c)))
			simulateChunk(p, s, in, rng, res, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("projection cancelled: %w", err)
	}
	return res, nil
}

func simulateChunk(p *prepared, s *sampler.Sampler, in Input, rng *rand.Rand, res *Result, lo, hi int) {
	n := len(p.assets)
	z := make([]float64, n)
	scratch := make([]float64, n)

	for i := lo; i < hi; i++ {
		gross := make([]float64, in.Horizon+1)
		liquid := make([]float64, in.Horizon+1)
		gross[0] = p.start
		liquid[0] = p.start * (1 - p.penalty[0])

		for t := 1; t <= in.Horizon; t++ {
			s.DrawInto(rng, z, scratch)

			var growth float64
			for k := 0; k < n; k++ {
				growth += p.weights[k] * math.Exp(p.drift[k]+p.sigma[k]*z[k])
			}

			v := gross[t-1]*growth + in.CashFlows[t]
			if v < 0 {
				v = 0
			}
			gross[t] = v
			liquid[t] = v * (1 - p.penalty[t])
		}
		res.Gross[i] = gross
		res.Liquidation[i] = liquid
	}
}

func prepare(in Input) (*prepared, error) {
	if len(in.Holdings) == 0 {
		return nil, ErrEmptyPortfolio
	}
	if in.Horizon < 0 {
		return nil, ErrInvalidHorizon
	}
	if in.Trajectories <= 0 {
		return nil, ErrNoTrajectories
	}
	if in.Scenario.VolatilityMultiplier < 0 || math.IsNaN(in.Scenario.VolatilityMultiplier) {
		return nil, ErrInvalidScenario
	}

	// Merge duplicate holdings; the same asset twice would make the
	// correlation matrix singular.
	p := &prepared{}
	index := make(map[string]int)
	var amounts []float64
	for _, h := range in.Holdings {
		if h.Amount < 0 || math.IsNaN(h.Amount) || math.IsInf(h.Amount, 0) {
			return nil, fmt.Errorf("%w: %s amount %v", ErrNonPositiveValue, h.Asset.Name, h.Amount)
		}
		if i, ok := index[h.Asset.Name]; ok {
			amounts[i] += h.Amount
			continue
		}
		index[h.Asset.Name] = len(p.assets)
		p.assets = append(p.assets, h.Asset)
		amounts = append(amounts, h.Amount)
	}

	for _, a := range amounts {
		p.start += a
	}
	if p.start <= 0 {
		return nil, ErrNonPositiveValue
	}

	n := len(p.assets)
	p.weights = make([]float64, n)
	p.drift = make([]float64, n)
	p.sigma = make([]float64, n)
	for i, a := range p.assets {
		p.weights[i] = amounts[i] / p.start
		mu := a.ExpectedReturn + in.Scenario.ReturnShift
		sigma := a.Volatility * in.Scenario.VolatilityMultiplier
		p.drift[i] = mu - 0.5*sigma*sigma
		p.sigma[i] = sigma
	}

	// Year 0 is an immediate exit: every penalty applies. Afterwards only
	// positions still inside their lockup pay it.
	p.penalty = make([]float64, in.Horizon+1)
	for i, a := range p.assets {
		p.penalty[0] += p.weights[i] * a.ExitPenalty
		for t := 1; t <= in.Horizon && t < a.Lockup; t++ {
			p.penalty[t] += p.weights[i] * a.ExitPenalty
		}
	}
	return p, nil
}

// Covariance returns Σij = ρij·σi·σj with σ scaled by the scenario.
func Covariance(assets []model.Asset, sc Scenario) *mat.SymDense {
	n := len(assets)
	if n == 0 {
		return nil
	}
	corr := correlation.Matrix(assets)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		si := assets[i].Volatility * sc.VolatilityMultiplier
		for j := i; j < n; j++ {
			sj := assets[j].Volatility * sc.VolatilityMultiplier
			cov.SetSym(i, j, corr[i*n+j]*si*sj)
		}
	}
	return cov
}

func portfolioVolatility(cov *mat.SymDense, weights []float64) float64 {
	if cov == nil {
		return 0
	}
	w := mat.NewVecDense(len(weights), weights)
	return math.Sqrt(math.Max(0, mat.Inner(w, cov, w)))
}
