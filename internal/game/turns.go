package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/allocation-game/internal/ledger"
	"github.com/atmx/allocation-game/internal/metrics"
	"github.com/atmx/allocation-game/internal/model"
	"github.com/atmx/allocation-game/internal/news"
	"github.com/atmx/allocation-game/internal/session"
)

// --- Request/Response types ---

// TurnRequest is the JSON body for POST /sessions/{id}/turns. Shocks come
// from a named preset, a random draw, or the explicit fields, in that order.
type TurnRequest struct {
	Preset    string  `json:"preset,omitempty"`
	Random    bool    `json:"random,omitempty"`
	Growth    float64 `json:"growth" validate:"gte=-1,lte=1"`
	Inflation float64 `json:"inflation" validate:"gte=-1,lte=1"`
	Rate      float64 `json:"rate" validate:"gte=-1,lte=1"`
	Equity    float64 `json:"equity" validate:"gte=-1,lte=1"`
	Label     string  `json:"label,omitempty" validate:"max=120"`
}

// TurnResponse is the JSON body returned from a simulated turn.
type TurnResponse struct {
	Record    model.TurnRecord       `json:"record"`
	Snapshots []model.LedgerSnapshot `json:"snapshots"`
	Bailouts  []string               `json:"bailouts"`
	Headlines []news.Headline        `json:"headlines"`
}

// TransactionRequest is the JSON body for POST /sessions/{id}/transactions.
type TransactionRequest struct {
	Participant string          `json:"participant" validate:"required"`
	Asset       string          `json:"asset" validate:"required"`
	Direction   string          `json:"direction" validate:"required,oneof=buy sell"`
	Amount      decimal.Decimal `json:"amount"` // currency units, positive
}

// TransactionResponse is the executed trade and the participant's book after it.
type TransactionResponse struct {
	Trade    ledger.Trade         `json:"trade"`
	Snapshot model.LedgerSnapshot `json:"snapshot"`
}

// FeeRequest is the JSON body for PUT /sessions/{id}/fees/{asset}.
type FeeRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

// TradeableRequest is the JSON body for PUT /sessions/{id}/assets.
type TradeableRequest struct {
	Assets []string `json:"assets" validate:"required,min=1,dive,required"`
}

// NewsRequest publishes one custom headline, or every headline of a preset
// when Title is empty.
type NewsRequest struct {
	Title   string `json:"title,omitempty" validate:"required_without=Preset,max=200"`
	Content string `json:"content,omitempty" validate:"max=4000"`
	Preset  string `json:"preset,omitempty"`
}

// --- HTTP Handlers ---

// SimulateTurn handles POST /api/v1/sessions/{sessionID}/turns
// Advances the macro state, applies one year of returns to every ledger,
// then persists snapshots, the turn record and the session header, in
// that order.
func (s *Service) SimulateTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req TurnRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, err)
		return
	}

	defer s.lock(id)()
	ctx := r.Context()
	start := time.Now()

	sess, err := s.load(ctx, id)
	if err != nil {
		fail(w, err)
		return
	}
	if st := sess.Status(); st != model.StatusActive {
		fail(w, fmt.Errorf("%w: status %s", session.ErrNotActive, st))
		return
	}

	// Refuse to build on a turn whose writes did not all land.
	partial, err := s.store.HasTurnData(ctx, id, sess.Turn())
	if err != nil {
		fail(w, err)
		return
	}
	if partial {
		s.registry.Remove(id)
		fail(w, fmt.Errorf("%w: turn %d", ErrPartialTurn, sess.Turn()))
		return
	}

	var shocks model.Shocks
	switch {
	case req.Preset != "":
		p, err := news.Lookup(req.Preset)
		if err != nil {
			fail(w, err)
			return
		}
		shocks = p.Shocks
	case req.Random:
		shocks = sess.RandomShocks()
	default:
		shocks = model.Shocks{Growth: req.Growth, Inflation: req.Inflation, Rate: req.Rate, Equity: req.Equity}
	}

	nearest := news.Nearest(shocks)
	label := req.Label
	if label == "" {
		label = nearest.Name
	}

	res, err := sess.SimulateTurn(ctx, shocks, label)
	if err != nil {
		fail(w, err)
		return
	}

	// The turn already happened in memory: finish persisting it even if
	// the client goes away.
	if err := s.persistTurn(context.WithoutCancel(ctx), sess, res); err != nil {
		s.evict(id, "simulate_turn", err)
		fail(w, err)
		return
	}

	metrics.TurnsTotal.Inc()
	metrics.TurnLatency.Observe(time.Since(start).Seconds())
	metrics.Bankruptcies.Add(float64(len(res.Bailouts)))
	if res.Record.CorrelationFallback {
		metrics.CorrelationFallbacks.WithLabelValues("turn").Inc()
	}

	s.broadcast(WSMessage{
		Type:      EventTurnSimulated,
		SessionID: id,
		Turn:      res.Record.Turn,
		Label:     label,
		Bailouts:  res.Bailouts,
	})

	bailouts := res.Bailouts
	if bailouts == nil {
		bailouts = []string{}
	}
	writeJSON(w, http.StatusOK, TurnResponse{
		Record:    res.Record,
		Snapshots: res.Snapshots,
		Bailouts:  bailouts,
		Headlines: nearest.Headlines,
	})
}

func (s *Service) persistTurn(ctx context.Context, sess *session.Session, res *session.TurnResult) error {
	if err := s.store.InsertSnapshots(ctx, res.Snapshots); err != nil {
		return fmt.Errorf("persist snapshots: %w", err)
	}
	if err := s.store.InsertTurnRecord(ctx, &res.Record); err != nil {
		return fmt.Errorf("persist turn record: %w", err)
	}
	rec := sess.Record()
	if err := s.store.UpdateSession(ctx, &rec); err != nil {
		return fmt.Errorf("persist session state: %w", err)
	}
	return nil
}

// ListTurns handles GET /api/v1/sessions/{sessionID}/turns
func (s *Service) ListTurns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	defer s.lock(id)()
	ctx := r.Context()

	if _, err := s.load(ctx, id); err != nil {
		fail(w, err)
		return
	}
	turns, err := s.store.GetTurnRecords(ctx, id)
	if err != nil {
		fail(w, err)
		return
	}
	if turns == nil {
		turns = []model.TurnRecord{}
	}
	writeJSON(w, http.StatusOK, turns)
}

// ExecuteTransaction handles POST /api/v1/sessions/{sessionID}/transactions
func (s *Service) ExecuteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req TransactionRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	dir, err := ledger.ParseDirection(req.Direction)
	if err != nil {
		fail(w, err)
		return
	}

	defer s.lock(id)()
	ctx := r.Context()

	sess, err := s.load(ctx, id)
	if err != nil {
		fail(w, err)
		return
	}

	res, err := sess.Execute(req.Participant, req.Asset, dir, req.Amount)
	if err != nil {
		metrics.TransactionRejections.WithLabelValues(rejectionReason(err)).Inc()
		fail(w, err)
		return
	}
	if err := s.store.InsertSnapshots(context.WithoutCancel(ctx), []model.LedgerSnapshot{res.Snapshot}); err != nil {
		s.evict(id, "transaction", err)
		fail(w, err)
		return
	}

	metrics.TransactionsTotal.WithLabelValues(string(dir)).Inc()
	metrics.FeesCollected.Add(res.Trade.Fee.InexactFloat64())

	s.broadcast(WSMessage{
		Type:        EventTradeExecuted,
		SessionID:   id,
		Turn:        res.Snapshot.Turn,
		Participant: req.Participant,
		Asset:       req.Asset,
		Direction:   string(dir),
		Amount:      req.Amount.String(),
	})

	writeJSON(w, http.StatusOK, TransactionResponse{Trade: res.Trade, Snapshot: res.Snapshot})
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInsufficientPosition):
		return "insufficient_position"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, session.ErrAssetNotTradeable):
		return "not_tradeable"
	case errors.Is(err, session.ErrNotActive):
		return "not_active"
	}
	return "other"
}

// Leaderboard handles GET /api/v1/sessions/{sessionID}/leaderboard
func (s *Service) Leaderboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	defer s.lock(id)()

	sess, err := s.load(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Leaderboard())
}

// SetFee handles PUT /api/v1/sessions/{sessionID}/fees/{asset}
func (s *Service) SetFee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	asset, err := url.PathUnescape(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, "invalid asset name", http.StatusBadRequest)
		return
	}
	var req FeeRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, err)
		return
	}

	defer s.lock(id)()
	ctx := r.Context()

	sess, err := s.load(ctx, id)
	if err != nil {
		fail(w, err)
		return
	}
	if err := sess.SetFeeRate(asset, req.Rate); err != nil {
		fail(w, err)
		return
	}
	if err := s.store.SetFeeOverride(ctx, id, asset, req.Rate); err != nil {
		s.evict(id, "set_fee", err)
		fail(w, err)
		return
	}

	slog.Info("fee override set", "session", id, "asset", asset, "rate", req.Rate.String())
	writeJSON(w, http.StatusOK, map[string]any{"asset": asset, "rate": req.Rate})
}

// SetTradeable handles PUT /api/v1/sessions/{sessionID}/assets
func (s *Service) SetTradeable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req TradeableRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, err)
		return
	}

	defer s.lock(id)()
	ctx := r.Context()

	sess, err := s.load(ctx, id)
	if err != nil {
		fail(w, err)
		return
	}
	if err := sess.SetTradeable(req.Assets); err != nil {
		fail(w, err)
		return
	}
	rec := sess.Record()
	if err := s.store.UpdateSession(ctx, &rec); err != nil {
		s.evict(id, "set_tradeable", err)
		fail(w, err)
		return
	}

	slog.Info("tradeable set updated", "session", id, "assets", len(rec.Tradeable))
	writeJSON(w, http.StatusOK, describe(sess))
}

// ListNews handles GET /api/v1/sessions/{sessionID}/news
func (s *Service) ListNews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	defer s.lock(id)()
	ctx := r.Context()

	if _, err := s.load(ctx, id); err != nil {
		fail(w, err)
		return
	}
	items, err := s.store.GetNews(ctx, id)
	if err != nil {
		fail(w, err)
		return
	}
	if items == nil {
		items = []model.NewsItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// PublishNews handles POST /api/v1/sessions/{sessionID}/news
func (s *Service) PublishNews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req NewsRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, err)
		return
	}

	var headlines []news.Headline
	if req.Title != "" {
		headlines = []news.Headline{{Title: req.Title, Content: req.Content}}
	} else {
		p, err := news.Lookup(req.Preset)
		if err != nil {
			fail(w, err)
			return
		}
		headlines = p.Headlines
	}

	defer s.lock(id)()
	ctx := r.Context()

	sess, err := s.load(ctx, id)
	if err != nil {
		fail(w, err)
		return
	}

	now := time.Now().UTC()
	items := make([]model.NewsItem, 0, len(headlines))
	for _, h := range headlines {
		item := model.NewsItem{
			ID:        uuid.NewString(),
			SessionID: id,
			Turn:      sess.Turn(),
			Title:     h.Title,
			Content:   h.Content,
			CreatedAt: now,
		}
		if err := s.store.InsertNews(ctx, &item); err != nil {
			fail(w, err)
			return
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusCreated, items)
}
