package game

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/atmx/allocation-game/internal/metrics"
	"github.com/atmx/allocation-game/internal/model"
	"github.com/atmx/allocation-game/internal/news"
	"github.com/atmx/allocation-game/internal/projection"
)

var (
	errUnknownScenario     = errors.New("unknown scenario")
	errTooManyTrajectories = errors.New("too many trajectories")
)

// HoldingRequest is one position of a projected portfolio.
type HoldingRequest struct {
	Asset  string  `json:"asset" validate:"required"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

// ProjectionRequest is the JSON body for POST /api/v1/projections.
// Scenario selects a named scenario; ReturnShift and VolatilityMultiplier,
// when set, override it.
type ProjectionRequest struct {
	Holdings             []HoldingRequest `json:"holdings" validate:"required,min=1,dive"`
	Horizon              int              `json:"horizon" validate:"gte=0,lte=100"`
	Trajectories         int              `json:"trajectories" validate:"gte=1"`
	Scenario             string           `json:"scenario,omitempty"`
	ReturnShift          *float64         `json:"return_shift,omitempty"`
	VolatilityMultiplier *float64         `json:"volatility_multiplier,omitempty" validate:"omitempty,gte=0"`
	CashFlows            map[int]float64  `json:"cash_flows,omitempty"`
	Percentiles          []float64        `json:"percentiles,omitempty" validate:"omitempty,dive,gte=0,lte=100"`
	Seed                 uint64           `json:"seed,omitempty"`
}

// ProjectionResponse is the summary of a projection run.
type ProjectionResponse struct {
	Scenario projection.Scenario `json:"scenario"`
	Weights  map[string]float64  `json:"weights"`
	projection.Summary
}

// ListAssets handles GET /api/v1/assets
// Returns the catalog, optionally filtered by ?category=<name>.
func (s *Service) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets := s.catalog.All()
	if cat := r.URL.Query().Get("category"); cat != "" {
		assets = s.catalog.ByCategory(cat)
	}
	if assets == nil {
		assets = []model.Asset{}
	}
	writeJSON(w, http.StatusOK, assets)
}

// ListPresets handles GET /api/v1/presets
func (s *Service) ListPresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"macro":     news.Presets(),
		"scenarios": projection.Scenarios(),
	})
}

// Project handles POST /api/v1/projections
func (s *Service) Project(w http.ResponseWriter, r *http.Request) {
	var req ProjectionRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	if req.Trajectories > s.cfg.MaxTrajectories {
		fail(w, fmt.Errorf("%w: %d > %d", errTooManyTrajectories, req.Trajectories, s.cfg.MaxTrajectories))
		return
	}

	sc := projection.Normal
	if req.Scenario != "" {
		named, ok := projection.ScenarioByName(req.Scenario)
		if !ok {
			fail(w, fmt.Errorf("%w: %q", errUnknownScenario, req.Scenario))
			return
		}
		sc = named
	}
	if req.ReturnShift != nil {
		sc.Name = "custom"
		sc.ReturnShift = *req.ReturnShift
	}
	if req.VolatilityMultiplier != nil {
		sc.Name = "custom"
		sc.VolatilityMultiplier = *req.VolatilityMultiplier
	}

	in := projection.Input{
		Horizon:      req.Horizon,
		Trajectories: req.Trajectories,
		Scenario:     sc,
		CashFlows:    req.CashFlows,
		Seed:         req.Seed,
		Workers:      s.cfg.ProjectionWorkers,
	}
	if in.Seed == 0 {
		in.Seed = uint64(time.Now().UnixNano())
	}
	for _, h := range req.Holdings {
		a, err := s.catalog.Lookup(h.Asset)
		if err != nil {
			fail(w, err)
			return
		}
		in.Holdings = append(in.Holdings, projection.Holding{Asset: a, Amount: h.Amount})
	}

	start := time.Now()
	res, err := projection.Run(r.Context(), in)
	if err != nil {
		fail(w, err)
		return
	}
	sum, err := projection.Summarize(res, req.Percentiles)
	if err != nil {
		fail(w, err)
		return
	}
	metrics.ProjectionLatency.Observe(time.Since(start).Seconds())
	if res.Fallback {
		metrics.CorrelationFallbacks.WithLabelValues("projection").Inc()
	}

	weights := make(map[string]float64, len(res.Assets))
	for i, a := range res.Assets {
		weights[a.Name] = res.Weights[i]
	}
	writeJSON(w, http.StatusOK, ProjectionResponse{Scenario: sc, Weights: weights, Summary: sum})
}
