package macro

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/atmx/allocation-game/internal/model"
)

const eps = 1e-12

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

func TestNew_StartsAtMeans(t *testing.T) {
	s, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	want := model.MacroLevels{Growth: 0.02, Inflation: 0.02, Rate: 0.03, Equity: 0}
	if s.Levels() != want {
		t.Errorf("levels = %+v, want %+v", s.Levels(), want)
	}
}

func TestNew_RejectsBadPersistence(t *testing.T) {
	for _, phi := range []float64{-0.1, 1.0, 1.5} {
		cfg := DefaultConfig()
		cfg.Rate.Persistence = phi
		if _, err := New(cfg); !errors.Is(err, ErrInvalidPersistence) {
			t.Errorf("φ=%v: expected ErrInvalidPersistence, got %v", phi, err)
		}
	}
}

func TestUpdate_ZeroShocksStayAtMean(t *testing.T) {
	s, _ := New(DefaultConfig())
	set := s.Update(model.Shocks{})

	if set != (model.ShockSet{}) {
		t.Errorf("expected zero shock set, got %+v", set)
	}
	if s.Levels().Rate != 0.03 {
		t.Errorf("rate drifted to %v", s.Levels().Rate)
	}
}

func TestUpdate_AR1(t *testing.T) {
	s, _ := New(DefaultConfig())

	// First update from the means: new = mean + shock.
	set := s.Update(model.Shocks{Growth: 0.01, Inflation: 0.02, Rate: 0.01, Equity: -0.10})
	lv := s.Levels()
	if !approx(lv.Growth, 0.03) || !approx(lv.Inflation, 0.04) || !approx(lv.Rate, 0.04) || !approx(lv.Equity, -0.10) {
		t.Fatalf("unexpected levels after first update: %+v", lv)
	}
	if !approx(set.DeltaGrowth, 0.01) || !approx(set.DeltaInflation, 0.02) ||
		!approx(set.DeltaRate, 0.01) || !approx(set.EquityShock, -0.10) {
		t.Errorf("unexpected shock set: %+v", set)
	}

	// Second update with no shocks decays toward the means.
	set = s.Update(model.Shocks{})
	lv = s.Levels()
	// growth: 0.02 + 0.5·0.01
	if !approx(lv.Growth, 0.025) {
		t.Errorf("growth = %v, want 0.025", lv.Growth)
	}
	// inflation: 0.02 + 0.6·0.02
	if !approx(lv.Inflation, 0.032) {
		t.Errorf("inflation = %v, want 0.032", lv.Inflation)
	}
	// rate: 0.03 + 0.8·0.01; delta is new − old
	if !approx(lv.Rate, 0.038) || !approx(set.DeltaRate, 0.038-0.04) {
		t.Errorf("rate = %v delta = %v", lv.Rate, set.DeltaRate)
	}
	// equity: 0.3·(−0.10)
	if !approx(lv.Equity, -0.03) || !approx(set.EquityShock, -0.03) {
		t.Errorf("equity = %v shock = %v", lv.Equity, set.EquityShock)
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	s, _ := New(cfg)
	s.Update(model.Shocks{Growth: -0.04, Inflation: 0.08, Rate: 0.05, Equity: -0.15})
	s.Update(model.Shocks{Growth: 0.013, Inflation: -0.007, Rate: 0.002, Equity: 0.21})

	restored, err := Restore(cfg, s.Levels())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Levels() != s.Levels() {
		t.Errorf("round trip changed levels: %+v vs %+v", restored.Levels(), s.Levels())
	}

	// Both evolve identically afterwards.
	shock := model.Shocks{Growth: 0.01, Rate: -0.01}
	if a, b := s.Update(shock), restored.Update(shock); a != b {
		t.Errorf("diverged after restore: %+v vs %+v", a, b)
	}
}

func TestReset(t *testing.T) {
	s, _ := New(DefaultConfig())
	s.Update(model.Shocks{Growth: 0.5, Inflation: 0.5, Rate: 0.5, Equity: 0.5})
	s.Reset()
	want := model.MacroLevels{Growth: 0.02, Inflation: 0.02, Rate: 0.03, Equity: 0}
	if s.Levels() != want {
		t.Errorf("reset levels = %+v, want %+v", s.Levels(), want)
	}
}

func TestGenerateShocks(t *testing.T) {
	if shockSampler.Fallback() {
		t.Fatalf("macro shock correlation should factorise: %s", shockSampler.Reason())
	}

	rng := rand.New(rand.NewPCG(2024, 1))
	const n = 20000
	var sumG, sumE, sumGE, sumGG, sumEE float64
	for i := 0; i < n; i++ {
		s := GenerateShocks(rng)
		sumG += s.Growth
		sumE += s.Equity
		sumGE += s.Growth * s.Equity
		sumGG += s.Growth * s.Growth
		sumEE += s.Equity * s.Equity
	}
	sdG := math.Sqrt(sumGG/n - (sumG/n)*(sumG/n))
	sdE := math.Sqrt(sumEE/n - (sumE/n)*(sumE/n))
	if math.Abs(sdG-0.025) > 0.002 {
		t.Errorf("growth std %.4f, want ≈ 0.025", sdG)
	}
	if math.Abs(sdE-0.15) > 0.01 {
		t.Errorf("equity std %.4f, want ≈ 0.15", sdE)
	}
	rho := (sumGE/n - (sumG/n)*(sumE/n)) / (sdG * sdE)
	if math.Abs(rho-0.6) > 0.05 {
		t.Errorf("growth/equity correlation %.3f, want ≈ 0.6", rho)
	}
}
