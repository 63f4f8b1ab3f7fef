package factor

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/atmx/allocation-game/internal/catalog"
	"github.com/atmx/allocation-game/internal/model"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0x5eed))
}

func TestReturns_Empty(t *testing.T) {
	res := Returns(nil, model.ShockSet{}, 0.03, newRNG(1))
	if len(res.Returns) != 0 || res.Fallback {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestReturns_StandardAssetNoNoise(t *testing.T) {
	a := model.Asset{
		Name: "Test Equity", Category: model.CategoryEquity,
		ExpectedReturn: 0.07,
		BetaGrowth:     1.0, BetaInflation: 0.1, BetaRate: -0.45, BetaEquity: 1.0,
	}
	set := model.ShockSet{DeltaGrowth: 0.01, DeltaInflation: 0.02, DeltaRate: 0.01, EquityShock: 0.05}

	got := Returns([]model.Asset{a}, set, 0.03, newRNG(1)).Returns[a.Name]
	want := 0.07 + 0.01 + 0.002 - 0.0045 + 0.05
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("return = %v, want %v", got, want)
	}
}

func TestReturns_BondTracksYield(t *testing.T) {
	bond := model.Asset{
		Name: "Test Bond", Category: model.CategoryBonds,
		ExpectedReturn: 0.035, Volatility: 0.0001, Duration: 7,
		BetaGrowth: -0.1, BetaInflation: -0.6, BetaRate: -0.9,
	}
	rng := newRNG(7)
	for i := 0; i < 50; i++ {
		r := Returns([]model.Asset{bond}, model.ShockSet{}, 0.03, rng).Returns[bond.Name]
		if math.Abs(r-0.03) > 0.001 {
			t.Fatalf("zero-shock bond return %v, want ≈ prevailing yield 0.03", r)
		}
	}
}

func TestReturns_BondDurationEffect(t *testing.T) {
	bond := model.Asset{Name: "Bond", Category: model.CategoryBonds, Duration: 7, BetaGrowth: 0.3, BetaEquity: 0.25}
	set := model.ShockSet{DeltaGrowth: -0.02, DeltaInflation: 0.05, DeltaRate: 0.01, EquityShock: -0.2}

	got := Returns([]model.Asset{bond}, set, 0.04, newRNG(3)).Returns[bond.Name]
	// Inflation beta is ignored on the bond path.
	want := 0.04 - 0.07 - 0.006 - 0.05
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("bond return = %v, want %v", got, want)
	}
}

func TestReturns_DurationOutsideBondsUsesFactors(t *testing.T) {
	pd := model.Asset{
		Name: "Private Debt", Category: model.CategoryPrivateEquity,
		ExpectedReturn: 0.07, Duration: 3, BetaRate: -0.5,
	}
	set := model.ShockSet{DeltaRate: 0.02}

	got := Returns([]model.Asset{pd}, set, 0.05, newRNG(3)).Returns[pd.Name]
	if want := 0.07 - 0.01; math.Abs(got-want) > 1e-12 {
		t.Errorf("return = %v, want %v", got, want)
	}
}

func TestReturns_ClampedUnderExtremeShock(t *testing.T) {
	crash := model.ShockSet{EquityShock: -2.0}
	boom := model.ShockSet{EquityShock: 5.0}

	tech := model.Asset{Name: "Tech", Category: model.CategoryEquity, ExpectedReturn: 0.10, BetaEquity: 1.2}
	if got := Returns([]model.Asset{tech}, crash, 0.03, newRNG(1)).Returns["Tech"]; got != MinReturn {
		t.Errorf("crash return = %v, want %v", got, MinReturn)
	}
	if got := Returns([]model.Asset{tech}, boom, 0.03, newRNG(1)).Returns["Tech"]; got != MaxReturn {
		t.Errorf("boom return = %v, want %v", got, MaxReturn)
	}

	// Whole catalog stays in bounds.
	assets := catalog.MustDefault().All()
	rng := newRNG(99)
	for i := 0; i < 200; i++ {
		res := Returns(assets, crash, 0.03, rng)
		if res.Fallback {
			t.Fatal("default catalog correlation should factorise")
		}
		for name, r := range res.Returns {
			if r < MinReturn || r > MaxReturn {
				t.Fatalf("%s return %v outside bounds", name, r)
			}
		}
	}
}

func TestReturns_CoversEveryAsset(t *testing.T) {
	assets := catalog.MustDefault().All()
	res := Returns(assets, model.ShockSet{}, 0.03, newRNG(5))
	if len(res.Returns) != len(assets) {
		t.Fatalf("expected %d returns, got %d", len(assets), len(res.Returns))
	}
	for _, a := range assets {
		if _, ok := res.Returns[a.Name]; !ok {
			t.Errorf("missing return for %s", a.Name)
		}
	}
}

func TestReturns_Reproducible(t *testing.T) {
	assets := catalog.MustDefault().All()
	set := model.ShockSet{DeltaGrowth: 0.01, EquityShock: 0.1}
	a := Returns(assets, set, 0.03, newRNG(11)).Returns
	b := Returns(assets, set, 0.03, newRNG(11)).Returns
	for name := range a {
		if a[name] != b[name] {
			t.Errorf("%s: %v vs %v", name, a[name], b[name])
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-5, -0.90}, {-0.90, -0.90}, {0.1, 0.1}, {3, 3}, {10, 3},
	}
	for _, tc := range tests {
		if got := Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
