// Package sampler turns independent standard normals into correlated ones
// using the Cholesky factor of a correlation matrix.
//
// When the matrix cannot be factorised (not positive definite, malformed,
// or carrying non-finite entries) the sampler degrades to the identity,
// i.e. uncorrelated noise, and reports it through Fallback. It never
// panics on bad input.
package sampler

import (
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Sampler draws correlated standard normal vectors of a fixed dimension.
// It is immutable after New and safe for concurrent use as long as each
// goroutine supplies its own rand source.
type Sampler struct {
	n        int
	l        *mat.TriDense // nil when falling back to the identity
	fallback bool
	reason   string
}

// New factorises the n×n row-major correlation matrix corr.
func New(n int, corr []float64) *Sampler {
	s := &Sampler{n: n}
	if n <= 0 {
		return s
	}
	if reason := check(n, corr); reason != "" {
		return s.degrade(reason)
	}

	sym := mat.NewSymDense(n, append([]float64(nil), corr...))
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return s.degrade("not positive definite")
	}
	var l mat.TriDense
	chol.LTo(&l)
	s.l = &l
	return s
}

// diagTolerance bounds how far a diagonal entry may sit from 1.
const diagTolerance = 1e-9

func check(n int, corr []float64) string {
	if len(corr) != n*n {
		return "dimension mismatch"
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := corr[i*n+j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return "non-finite entry"
			}
			if i == j && math.Abs(v-1) > diagTolerance {
				return "diagonal entry not 1"
			}
			if i != j && math.Abs(v) > 1 {
				return "off-diagonal entry outside [-1, 1]"
			}
			if v != corr[j*n+i] {
				return "not symmetric"
			}
		}
	}
	return ""
}

func (s *Sampler) degrade(reason string) *Sampler {
	s.fallback = true
	s.reason = reason
	s.l = nil
	slog.Warn("correlation matrix rejected, sampling uncorrelated noise",
		"dim", s.n,
		"reason", reason,
	)
	return s
}

// Dim returns the vector dimension.
func (s *Sampler) Dim() int { return s.n }

// Fallback reports whether the identity was substituted for the Cholesky factor.
func (s *Sampler) Fallback() bool { return s.fallback }

// Reason describes why the fallback fired; empty otherwise.
func (s *Sampler) Reason() string { return s.reason }

// Correlate writes L·z into dst. Both slices must have length Dim.
func (s *Sampler) Correlate(dst, z []float64) {
	if s.n == 0 {
		return
	}
	if s.l == nil {
		copy(dst, z)
		return
	}
	out := mat.NewVecDense(s.n, dst)
	out.MulVec(s.l, mat.NewVecDense(s.n, z))
}

// DrawInto fills dst with one correlated standard normal vector, using
// scratch (length Dim) for the independent draws.
func (s *Sampler) DrawInto(rng *rand.Rand, dst, scratch []float64) {
	for i := 0; i < s.n; i++ {
		scratch[i] = rng.NormFloat64()
	}
	s.Correlate(dst, scratch)
}

// Draw returns one correlated standard normal vector.
func (s *Sampler) Draw(rng *rand.Rand) []float64 {
	dst := make([]float64, s.n)
	s.DrawInto(rng, dst, make([]float64, s.n))
	return dst
}
