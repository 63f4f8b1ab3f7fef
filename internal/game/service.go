// Package game provides the HTTP handlers and orchestration for running
// allocation game sessions: lifecycle, turns, transactions, fees, news and
// portfolio projections.
//
// Sessions live in memory (session.Registry) and are persisted after every
// state change. A session that fails to persist is evicted from memory and
// reloaded from the store on next access, so the store stays the source of
// truth. All monetary values use shopspring/decimal.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/atmx/allocation-game/internal/catalog"
	"github.com/atmx/allocation-game/internal/ledger"
	"github.com/atmx/allocation-game/internal/metrics"
	"github.com/atmx/allocation-game/internal/model"
	"github.com/atmx/allocation-game/internal/news"
	"github.com/atmx/allocation-game/internal/projection"
	"github.com/atmx/allocation-game/internal/session"
	"github.com/atmx/allocation-game/internal/store"
)

// ErrPartialTurn is returned when the store holds data for a turn the
// session header does not account for.
var ErrPartialTurn = errors.New("game: previous turn was only partially recorded")

// Config holds service-level settings.
type Config struct {
	Session session.Config

	// MaxTrajectories caps projection requests. Zero means 10,000.
	MaxTrajectories int

	// ProjectionWorkers bounds projection parallelism. Zero means GOMAXPROCS.
	ProjectionWorkers int
}

// Service handles session operations. Each session has its own operation
// lock so a turn's simulation and persistence are atomic with respect to
// trades on the same session; different sessions proceed in parallel.
type Service struct {
	store    store.Store
	catalog  *catalog.Catalog
	cfg      Config
	registry *session.Registry
	validate *validator.Validate
	wsHub    *WSHub // optional WebSocket hub for real-time broadcasts

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService creates a new game service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, cat *catalog.Catalog, cfg Config, hub *WSHub) *Service {
	if cfg.MaxTrajectories <= 0 {
		cfg.MaxTrajectories = 10_000
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{
		store:    st,
		catalog:  cat,
		cfg:      cfg,
		registry: session.NewRegistry(),
		validate: v,
		wsHub:    hub,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lock takes the operation lock of a session and returns its release.
func (s *Service) lock(id string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// load returns the live session, rebuilding it from the store on a miss.
// Callers hold the session's operation lock.
func (s *Service) load(ctx context.Context, id string) (*session.Session, error) {
	if sess, err := s.registry.Get(id); err == nil {
		return sess, nil
	}

	rec, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	fees, err := s.store.GetFeeOverrides(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load fees: %w", err)
	}
	turns, err := s.store.GetTurnRecords(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	p := session.Persisted{
		Record:       *rec,
		FeeOverrides: fees,
		Participants: participants,
		History:      make(map[string][]model.LedgerSnapshot, len(participants)),
		Turns:        turns,
	}
	for _, pid := range participants {
		snaps, err := s.store.GetSnapshots(ctx, id, pid)
		if err != nil {
			return nil, fmt.Errorf("load snapshots of %s: %w", pid, err)
		}
		p.History[pid] = snaps
	}

	sess, err := session.Restore(s.catalog, s.cfg.Session, p)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Add(sess); err != nil {
		return s.registry.Get(id)
	}
	slog.Info("session restored from store",
		"session", id,
		"turn", rec.Turn,
		"status", string(rec.Status),
		"participants", len(participants),
	)
	return sess, nil
}

// evict drops a session whose in-memory state may be ahead of the store.
func (s *Service) evict(id, op string, err error) {
	s.registry.Remove(id)
	metrics.PersistFailures.WithLabelValues(op).Inc()
	slog.Error("persist failed, session evicted",
		"session", id,
		"op", op,
		"err", err,
	)
}

func (s *Service) broadcast(msg WSMessage) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
}

// decode reads a JSON body into dst and validates it.
func (s *Service) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errInvalidBody
	}
	if err := s.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", errValidation, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", errValidation, err)
	}
	return nil
}

var (
	errInvalidBody = errors.New("invalid request body")
	errValidation  = errors.New("validation failed")
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidBody),
		errors.Is(err, errValidation),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidFeeRate),
		errors.Is(err, ledger.ErrInvalidDirection),
		errors.Is(err, session.ErrNoTradeableAssets),
		errors.Is(err, session.ErrInvalidParticipant),
		errors.Is(err, session.ErrInvalidShocks),
		errors.Is(err, projection.ErrEmptyPortfolio),
		errors.Is(err, projection.ErrInvalidHorizon),
		errors.Is(err, projection.ErrNoTrajectories),
		errors.Is(err, projection.ErrNonPositiveValue),
		errors.Is(err, projection.ErrInvalidScenario),
		errors.Is(err, projection.ErrInvalidPercentile),
		errors.Is(err, errUnknownScenario),
		errors.Is(err, errTooManyTrajectories),
		errors.Is(err, news.ErrPresetNotFound):
		return http.StatusBadRequest

	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, session.ErrUnknownParticipant),
		errors.Is(err, catalog.ErrAssetNotFound):
		return http.StatusNotFound

	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrNoParticipants),
		errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrSessionEnded),
		errors.Is(err, session.ErrParticipantExists),
		errors.Is(err, session.ErrAssetNotTradeable),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientPosition),
		errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, ErrPartialTurn):
		return http.StatusConflict

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Internal errors are logged and
// hidden from the client.
func fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
