package game_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/allocation-game/internal/catalog"
	"github.com/atmx/allocation-game/internal/game"
	"github.com/atmx/allocation-game/internal/model"
	"github.com/atmx/allocation-game/internal/session"
	"github.com/atmx/allocation-game/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// flakyStore fails turn-record writes on demand.
type flakyStore struct {
	store.Store
	failTurnRecord bool
}

func (f *flakyStore) InsertTurnRecord(ctx context.Context, rec *model.TurnRecord) error {
	if f.failTurnRecord {
		return errors.New("disk full")
	}
	return f.Store.InsertTurnRecord(ctx, rec)
}

func testConfig() game.Config {
	cfg := session.DefaultConfig()
	cfg.Seed = 7
	return game.Config{Session: cfg, MaxTrajectories: 2000, ProjectionWorkers: 2}
}

func newRouter(svc *game.Service) chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return r
}

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T) (*game.Service, *flakyStore, chi.Router) {
	t.Helper()
	fs := &flakyStore{Store: store.NewMemoryStore()}
	svc := game.NewService(fs, catalog.MustDefault(), testConfig(), nil)
	return svc, fs, newRouter(svc)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

// seedActive creates a session, registers participants and starts it.
func seedActive(t *testing.T, router http.Handler, participants ...string) string {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/sessions", game.CreateSessionRequest{Name: "Class A"})
	expectStatus(t, w, http.StatusCreated)
	var resp game.SessionResponse
	decodeBody(t, w, &resp)
	id := resp.Session.ID

	for _, p := range participants {
		w = do(t, router, "POST", "/api/v1/sessions/"+id+"/participants", game.RegisterRequest{Participant: p})
		expectStatus(t, w, http.StatusCreated)
	}
	w = do(t, router, "POST", "/api/v1/sessions/"+id+"/start", nil)
	expectStatus(t, w, http.StatusOK)
	return id
}

func buy(t *testing.T, router http.Handler, id, participant, asset, amount string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, "POST", "/api/v1/sessions/"+id+"/transactions", game.TransactionRequest{
		Participant: participant,
		Asset:       asset,
		Direction:   "buy",
		Amount:      d(amount),
	})
}

// --- Session lifecycle ---

func TestCreateSession(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/sessions", game.CreateSessionRequest{
		Name:            "Evening class",
		StartingCapital: d("50000"),
		Tradeable:       []string{"Bitcoin", "Gold Bullion"},
	})
	expectStatus(t, w, http.StatusCreated)

	var resp game.SessionResponse
	decodeBody(t, w, &resp)
	if resp.Session.ID == "" {
		t.Error("expected a session id")
	}
	if resp.Session.Status != model.StatusWaiting {
		t.Errorf("status = %s", resp.Session.Status)
	}
	if !resp.Session.StartingCapital.Equal(d("50000")) {
		t.Errorf("starting capital = %s", resp.Session.StartingCapital)
	}
	if len(resp.Session.Tradeable) != 2 || resp.Session.Tradeable[0] != "Gold Bullion" {
		t.Errorf("tradeable should be in catalog order, got %v", resp.Session.Tradeable)
	}

	w = do(t, router, "GET", "/api/v1/sessions", nil)
	expectStatus(t, w, http.StatusOK)
	var list []model.SessionRecord
	decodeBody(t, w, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 session, got %d", len(list))
	}
}

func TestCreateSession_Validation(t *testing.T) {
	_, _, router := newTestEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing name", game.CreateSessionRequest{}, http.StatusBadRequest},
		{"negative capital", game.CreateSessionRequest{Name: "x", StartingCapital: d("-1")}, http.StatusBadRequest},
		{"unknown asset", game.CreateSessionRequest{Name: "x", Tradeable: []string{"Tulips"}}, http.StatusNotFound},
		{"malformed", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/sessions", tt.body)
			expectStatus(t, w, tt.want)
		})
	}
}

func TestLifecycle_Transitions(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/sessions", game.CreateSessionRequest{Name: "x"})
	var resp game.SessionResponse
	decodeBody(t, w, &resp)
	id := resp.Session.ID

	// No participants yet.
	w = do(t, router, "POST", "/api/v1/sessions/"+id+"/start", nil)
	expectStatus(t, w, http.StatusConflict)

	// Turns need an active session.
	w = do(t, router, "POST", "/api/v1/sessions/"+id+"/turns", game.TurnRequest{})
	expectStatus(t, w, http.StatusConflict)

	do(t, router, "POST", "/api/v1/sessions/"+id+"/participants", game.RegisterRequest{Participant: "ana"})
	w = do(t, router, "POST", "/api/v1/sessions/"+id+"/participants", game.RegisterRequest{Participant: "ana"})
	expectStatus(t, w, http.StatusConflict)

	expectStatus(t, do(t, router, "POST", "/api/v1/sessions/"+id+"/start", nil), http.StatusOK)
	expectStatus(t, do(t, router, "POST", "/api/v1/sessions/"+id+"/start", nil), http.StatusConflict)
	expectStatus(t, do(t, router, "POST", "/api/v1/sessions/"+id+"/end", nil), http.StatusOK)
	expectStatus(t, do(t, router, "POST", "/api/v1/sessions/"+id+"/end", nil), http.StatusConflict)

	w = buy(t, router, id, "ana", "Bitcoin", "100")
	expectStatus(t, w, http.StatusConflict)
}

func TestUnknownSession(t *testing.T) {
	_, _, router := newTestEnv(t)
	expectStatus(t, do(t, router, "GET", "/api/v1/sessions/nope", nil), http.StatusNotFound)
	expectStatus(t, do(t, router, "GET", "/api/v1/sessions/nope/leaderboard", nil), http.StatusNotFound)
}

// --- Transactions ---

func TestExecuteTransaction_FeeOverride(t *testing.T) {
	_, _, router := newTestEnv(t)
	id := seedActive(t, router, "ana")

	path := "/api/v1/sessions/" + id + "/fees/" + url.PathEscape("ETF World (MSCI)")
	w := do(t, router, "PUT", path, game.FeeRequest{Rate: d("0.01")})
	expectStatus(t, w, http.StatusOK)

	w = buy(t, router, id, "ana", "ETF World (MSCI)", "50000")
	expectStatus(t, w, http.StatusOK)

	var resp game.TransactionResponse
	decodeBody(t, w, &resp)
	if !resp.Snapshot.Cash.Equal(d("49500")) {
		t.Errorf("cash = %s, want 49500", resp.Snapshot.Cash)
	}
	if !resp.Snapshot.TotalFees.Equal(d("500")) {
		t.Errorf("fees = %s, want 500", resp.Snapshot.TotalFees)
	}
	if !resp.Trade.Fee.Equal(d("500")) {
		t.Errorf("trade fee = %s", resp.Trade.Fee)
	}
}

func TestExecuteTransaction_DefaultScheduleFee(t *testing.T) {
	_, _, router := newTestEnv(t)
	id := seedActive(t, router, "ana")

	w := buy(t, router, id, "ana", "Bitcoin", "10000")
	expectStatus(t, w, http.StatusOK)

	var resp game.TransactionResponse
	decodeBody(t, w, &resp)
	if !resp.Trade.Fee.Equal(d("150")) {
		t.Errorf("bitcoin fee = %s, want 150 (1.5%%)", resp.Trade.Fee)
	}
}

func TestExecuteTransaction_Rejections(t *testing.T) {
	_, _, router := newTestEnv(t)
	id := seedActive(t, router, "ana")

	tests := []struct {
		name string
		req  game.TransactionRequest
		want int
	}{
		{"bad direction", game.TransactionRequest{Participant: "ana", Asset: "Bitcoin", Direction: "hold", Amount: d("1")}, http.StatusBadRequest},
		{"missing participant", game.TransactionRequest{Asset: "Bitcoin", Direction: "buy", Amount: d("1")}, http.StatusBadRequest},
		{"zero amount", game.TransactionRequest{Participant: "ana", Asset: "Bitcoin", Direction: "buy", Amount: d("0")}, http.StatusBadRequest},
		{"unknown participant", game.TransactionRequest{Participant: "bob", Asset: "Bitcoin", Direction: "buy", Amount: d("1")}, http.StatusNotFound},
		{"unknown asset", game.TransactionRequest{Participant: "ana", Asset: "Tulips", Direction: "buy", Amount: d("1")}, http.StatusNotFound},
		{"insufficient funds", game.TransactionRequest{Participant: "ana", Asset: "Bitcoin", Direction: "buy", Amount: d("100000")}, http.StatusConflict},
		{"nothing to sell", game.TransactionRequest{Participant: "ana", Asset: "Silver", Direction: "sell", Amount: d("10")}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/sessions/"+id+"/transactions", tt.req)
			expectStatus(t, w, tt.want)
		})
	}

	// Nothing was recorded.
	w := do(t, router, "GET", "/api/v1/sessions/"+id+"/participants/ana/history", nil)
	expectStatus(t, w, http.StatusOK)
	var hist []model.LedgerSnapshot
	decodeBody(t, w, &hist)
	if len(hist) != 0 {
		t.Errorf("expected empty history, got %d snapshots", len(hist))
	}
}

func TestSetTradeable(t *testing.T) {
	_, _, router := newTestEnv(t)
	id := seedActive(t, router, "ana")

	expectStatus(t, buy(t, router, id, "ana", "Bitcoin", "1000"), http.StatusOK)

	w := do(t, router, "PUT", "/api/v1/sessions/"+id+"/assets", game.TradeableRequest{Assets: []string{"Gold Bullion"}})
	expectStatus(t, w, http.StatusOK)

	expectStatus(t, buy(t, router, id, "ana", "Bitcoin", "1000"), http.StatusConflict)
	w = do(t, router, "POST", "/api/v1/sessions/"+id+"/transactions", game.TransactionRequest{
		Participant: "ana", Asset: "Bitcoin", Direction: "sell", Amount: d("500"),
	})
	expectStatus(t, w, http.StatusOK)

	w = do(t, router, "PUT", "/api/v1/sessions/"+id+"/assets", game.TradeableRequest{})
	expectStatus(t, w, http.StatusBadRequest)
}

// --- Turns ---

func TestSimulateTurn(t *testing.T) {
	_, _, router := newTestEnv(t)
	id := seedActive(t, router, "ana", "ben")
	expectStatus(t, buy(t, router, id, "ana", "US Tech Equities", "60000"), http.StatusOK)

	w := do(t, router, "POST", "/api/v1/sessions/"+id+"/turns", game.TurnRequest{
		Growth: 0.03, Inflation: 0.02, Equity: 0.10,
	})
	expectStatus(t, w, http.StatusOK)

	var resp game.TurnResponse
	decodeBody(t, w, &resp)
	if resp.Record.Turn != 0 || resp.Record.Version != model.TurnRecordVersion {
		t.Errorf("record turn=%d version=%d", resp.Record.Turn, resp.Record.Version)
	}
	if resp.Record.Label != "Goldilocks" {
		t.Errorf("label should default to the nearest preset, got %q", resp.Record.Label)
	}
	if len(resp.Snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(resp.Snapshots))
	}
	if len(resp.Headlines) == 0 {
		t.Error("expected headlines")
	}
	if len(resp.Record.Returns) != catalog.MustDefault().Len() {
		t.Errorf("returns for %d assets", len(resp.Record.Returns))
	}

	// ben held only cash: unchanged.
	if !resp.Snapshots[1].TotalValue.Equal(d("100000")) {
		t.Errorf("cash-only value moved: %s", resp.Snapshots[1].TotalValue)
	}

	w = do(t, router, "GET", "/api/v1/sessions/"+id+"/turns", nil)
	expectStatus(t, w, http.StatusOK)
	var turns []model.TurnRecord
	decodeBody(t, w, &turns)
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn record, got %d", len(turns))
	}

	w = do(t, router, "GET", "/api/v1/sessions/"+id, nil)
	var sr game.SessionResponse
	decodeBody(t, w, &sr)
	if sr.Session.Turn != 1 {
		t.Errorf("turn = %d, want 1", sr.Session.Turn)
	}
	if len(sr.Leaderboard) != 2 || sr.Leaderboard[0].Rank != 1 {
		t.Errorf("leaderboard = %+v", sr.Leaderboard)
	}
}

func TestSimulateTurn_PresetAndRandom(t *testing.T) {
	_, _, router := newTestEnv(t)
	id := seedActive(t, router, "ana")

	w := do(t, router, "POST", "/api/v1/sessions/"+id+"/turns", game.TurnRequest{Preset: "stagflation"})
	expectStatus(t, w, http.StatusOK)
	var resp game.TurnResponse
	decodeBody(t, w, &resp)
	if resp.Record.Shocks.Inflation != 0.08 {
		t.Errorf("preset shocks not applied: %+v", resp.Record.Shocks)
	}

	w = do(t, router, "POST", "/api/v1/sessions/"+id+"/turns", game.TurnRequest{Random: true, Label: "Year 2"})
	expectStatus(t, w, http.StatusOK)
	decodeBody(t, w, &resp)
	if resp.Record.Turn != 1 || resp.Record.Label != "Year 2" {
		t.Errorf("turn=%d label=%q", resp.Record.Turn, resp.Record.Label)
	}

	expectStatus(t, do(t, router, "POST", "/api/v1/sessions/"+id+"/turns", game.TurnRequest{Preset: "boom"}), http.StatusBadRequest)
	expectStatus(t, do(t, router, "POST", "/api/v1/sessions/"+id+"/turns", game.TurnRequest{Equity: 3}), http.StatusBadRequest)
}

func TestSimulateTurn_PersistFailureEvictsAndBlocks(t *testing.T) {
	_, fs, router := newTestEnv(t)
	id := seedActive(t, router, "ana")

	fs.failTurnRecord = true
	w := do(t, router, "POST", "/api/v1/sessions/"+id+"/turns", game.TurnRequest{})
	expectStatus(t, w, http.StatusInternalServerError)
	fs.failTurnRecord = false

	// Reloaded from the store: the header never advanced.
	w = do(t, router, "GET", "/api/v1/sessions/"+id, nil)
	expectStatus(t, w, http.StatusOK)
	var sr game.SessionResponse
	decodeBody(t, w, &sr)
	if sr.Session.Turn != 0 {
		t.Errorf("turn = %d, want 0", sr.Session.Turn)
	}

	// Snapshots for turn 0 exist without a turn record.
	w = do(t, router, "POST", "/api/v1/sessions/"+id+"/turns", game.TurnRequest{})
	expectStatus(t, w, http.StatusConflict)
}

// --- Restart ---

func TestRestoreAfterRestart(t *testing.T) {
	_, fs, router := newTestEnv(t)
	id := seedActive(t, router, "ana", "ben")
	expectStatus(t, buy(t, router, id, "ana", "Gold Bullion", "20000"), http.StatusOK)
	expectStatus(t, do(t, router, "POST", "/api/v1/sessions/"+id+"/turns", game.TurnRequest{Growth: 0.01}), http.StatusOK)

	w := do(t, router, "GET", "/api/v1/sessions/"+id+"/participants/ana", nil)
	var before model.LedgerSnapshot
	decodeBody(t, w, &before)

	// A fresh service over the same store.
	restarted := newRouter(game.NewService(fs, catalog.MustDefault(), testConfig(), nil))

	w = do(t, restarted, "GET", "/api/v1/sessions/"+id+"/participants/ana", nil)
	expectStatus(t, w, http.StatusOK)
	var after model.LedgerSnapshot
	decodeBody(t, w, &after)
	if !after.TotalValue.Equal(before.TotalValue) || !after.Cash.Equal(before.Cash) {
		t.Errorf("restored ledger differs: before %s/%s after %s/%s",
			before.TotalValue, before.Cash, after.TotalValue, after.Cash)
	}

	w = do(t, restarted, "GET", "/api/v1/sessions/"+id, nil)
	var sr game.SessionResponse
	decodeBody(t, w, &sr)
	if sr.Session.Turn != 1 || sr.Session.Status != model.StatusActive {
		t.Errorf("restored header: %+v", sr.Session)
	}
	if len(sr.Participants) != 2 || sr.Participants[0] != "ana" {
		t.Errorf("participants = %v", sr.Participants)
	}

	expectStatus(t, do(t, restarted, "POST", "/api/v1/sessions/"+id+"/turns", game.TurnRequest{}), http.StatusOK)
}

// --- News ---

func TestNews(t *testing.T) {
	_, _, router := newTestEnv(t)
	id := seedActive(t, router, "ana")

	w := do(t, router, "POST", "/api/v1/sessions/"+id+"/news", game.NewsRequest{Preset: "fed_pivot"})
	expectStatus(t, w, http.StatusCreated)
	var items []model.NewsItem
	decodeBody(t, w, &items)
	if len(items) != 3 {
		t.Fatalf("expected 3 preset headlines, got %d", len(items))
	}

	w = do(t, router, "POST", "/api/v1/sessions/"+id+"/news", game.NewsRequest{Title: "Class notice", Content: "Quiz next week"})
	expectStatus(t, w, http.StatusCreated)

	expectStatus(t, do(t, router, "POST", "/api/v1/sessions/"+id+"/news", game.NewsRequest{}), http.StatusBadRequest)

	w = do(t, router, "GET", "/api/v1/sessions/"+id+"/news", nil)
	expectStatus(t, w, http.StatusOK)
	decodeBody(t, w, &items)
	if len(items) != 4 || items[3].Title != "Class notice" {
		t.Errorf("unexpected news: %+v", items)
	}
}

// --- Reference data & projections ---

func TestListAssets(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "GET", "/api/v1/assets?category=Crypto", nil)
	expectStatus(t, w, http.StatusOK)
	var assets []model.Asset
	decodeBody(t, w, &assets)
	if len(assets) != 2 {
		t.Errorf("expected 2 crypto assets, got %d", len(assets))
	}

	w = do(t, router, "GET", "/api/v1/assets?category=Stamps", nil)
	decodeBody(t, w, &assets)
	if len(assets) != 0 {
		t.Errorf("expected empty list, got %d", len(assets))
	}
}

func TestProject(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/projections", game.ProjectionRequest{
		Holdings: []game.HoldingRequest{
			{Asset: "ETF World (MSCI)", Amount: 60000},
			{Asset: "Gov Bonds Euro (10Y)", Amount: 40000},
		},
		Horizon:      10,
		Trajectories: 500,
		Scenario:     "crisis",
		Seed:         42,
	})
	expectStatus(t, w, http.StatusOK)

	var resp game.ProjectionResponse
	decodeBody(t, w, &resp)
	if resp.Scenario.Name != "crisis" {
		t.Errorf("scenario = %q", resp.Scenario.Name)
	}
	if resp.StartValue != 100000 {
		t.Errorf("start value = %v", resp.StartValue)
	}
	if len(resp.MedianPath) != 11 {
		t.Errorf("median path has %d points, want 11", len(resp.MedianPath))
	}
	if resp.Weights["ETF World (MSCI)"] != 0.6 {
		t.Errorf("weights = %v", resp.Weights)
	}
}

func TestProject_Rejections(t *testing.T) {
	_, _, router := newTestEnv(t)
	holdings := []game.HoldingRequest{{Asset: "Bitcoin", Amount: 1000}}

	tests := []struct {
		name string
		req  game.ProjectionRequest
		want int
	}{
		{"no holdings", game.ProjectionRequest{Trajectories: 10}, http.StatusBadRequest},
		{"unknown asset", game.ProjectionRequest{Holdings: []game.HoldingRequest{{Asset: "Tulips", Amount: 1}}, Trajectories: 10}, http.StatusNotFound},
		{"unknown scenario", game.ProjectionRequest{Holdings: holdings, Trajectories: 10, Scenario: "apocalypse"}, http.StatusBadRequest},
		{"too many trajectories", game.ProjectionRequest{Holdings: holdings, Trajectories: 5000}, http.StatusBadRequest},
		{"bad percentile", game.ProjectionRequest{Holdings: holdings, Trajectories: 10, Percentiles: []float64{150}}, http.StatusBadRequest},
		{"zero value", game.ProjectionRequest{Holdings: []game.HoldingRequest{{Asset: "Bitcoin", Amount: 0}}, Trajectories: 10}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/projections", tt.req)
			expectStatus(t, w, tt.want)
		})
	}
}

func TestProject_DeadlineExceeded(t *testing.T) {
	_, _, router := newTestEnv(t)

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(game.ProjectionRequest{
		Holdings:     []game.HoldingRequest{{Asset: "Bitcoin", Amount: 1000}},
		Horizon:      5,
		Trajectories: 1000,
	})
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	req := httptest.NewRequest("POST", "/api/v1/projections", &buf).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	expectStatus(t, w, http.StatusGatewayTimeout)
}
