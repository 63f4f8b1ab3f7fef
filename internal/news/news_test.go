package news

import (
	"errors"
	"math"
	"testing"

	"github.com/atmx/allocation-game/internal/model"
)

func TestPresets(t *testing.T) {
	ps := Presets()
	if len(ps) != 4 {
		t.Fatalf("expected 4 presets, got %d", len(ps))
	}
	for _, p := range ps {
		if len(p.Headlines) == 0 {
			t.Errorf("%s: no headlines", p.Key)
		}
	}

	// Callers get copies.
	ps[0].Headlines[0].Title = "changed"
	if Presets()[0].Headlines[0].Title == "changed" {
		t.Fatal("Presets leaked internal state")
	}
}

func TestNearest(t *testing.T) {
	tests := []struct {
		name   string
		shocks model.Shocks
		want   string
	}{
		{"exact goldilocks", model.Shocks{Growth: 0.03, Inflation: 0.02, Equity: 0.10}, "goldilocks"},
		{"exact crisis", model.Shocks{Growth: -0.06, Inflation: -0.01, Rate: -0.02, Equity: -0.35}, "financial_crisis"},
		{"hot inflation", model.Shocks{Growth: -0.01, Inflation: 0.06, Rate: 0.04, Equity: -0.05}, "stagflation"},
		{"easing rally", model.Shocks{Growth: 0.01, Inflation: 0.01, Rate: -0.025, Equity: 0.2}, "fed_pivot"},
		{"equity crash dominates", model.Shocks{Equity: -0.5}, "financial_crisis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Nearest(tt.shocks).Key; got != tt.want {
				t.Errorf("Nearest = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDistance(t *testing.T) {
	a := model.Shocks{Growth: 0.01, Inflation: -0.02, Rate: 0.03, Equity: -0.04}
	if got := Distance(a, a); got != 0 {
		t.Errorf("self distance = %v", got)
	}
	if got := Distance(a, model.Shocks{}); math.Abs(got-0.10) > 1e-12 {
		t.Errorf("distance to zero = %v, want 0.10", got)
	}
}

func TestLookup(t *testing.T) {
	p, err := Lookup("FED_PIVOT")
	if err != nil {
		t.Fatal(err)
	}
	if p.Shocks.Rate != -0.03 {
		t.Errorf("rate shock = %v", p.Shocks.Rate)
	}
	if _, err := Lookup("Goldilocks"); err != nil {
		t.Errorf("lookup by name: %v", err)
	}
	if _, err := Lookup("boom"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("expected ErrPresetNotFound, got %v", err)
	}
}

func TestSuggest(t *testing.T) {
	h := Suggest(model.Shocks{Growth: -0.04, Inflation: 0.08, Rate: 0.05, Equity: -0.15})
	if len(h) != 3 || h[0].Title != "Oil spikes: Brent tops $140" {
		t.Errorf("unexpected headlines: %+v", h)
	}
}
