package game

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/allocation-game/internal/ledger"
	"github.com/atmx/allocation-game/internal/metrics"
	"github.com/atmx/allocation-game/internal/model"
	"github.com/atmx/allocation-game/internal/session"
)

// --- Request/Response types ---

// CreateSessionRequest is the JSON body for session creation.
type CreateSessionRequest struct {
	Name            string          `json:"name" validate:"required,max=120"`
	StartingCapital decimal.Decimal `json:"starting_capital"` // 0 → configured default
	Tradeable       []string        `json:"tradeable,omitempty" validate:"omitempty,min=1,dive,required"`
}

// RegisterRequest is the JSON body for joining a session.
type RegisterRequest struct {
	Participant string `json:"participant" validate:"required,max=64"`
}

// SessionResponse describes a session and its current standings.
type SessionResponse struct {
	Session      model.SessionRecord        `json:"session"`
	Participants []string                   `json:"participants"`
	FeeOverrides map[string]decimal.Decimal `json:"fee_overrides"`
	Leaderboard  []model.LeaderboardEntry   `json:"leaderboard"`
}

func describe(sess *session.Session) SessionResponse {
	parts := sess.Participants()
	if parts == nil {
		parts = []string{}
	}
	return SessionResponse{
		Session:      sess.Record(),
		Participants: parts,
		FeeOverrides: sess.FeeOverrides(),
		Leaderboard:  sess.Leaderboard(),
	}
}

// --- HTTP Handlers ---

// CreateSession handles POST /api/v1/sessions
func (s *Service) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, err)
		return
	}

	cfg := s.cfg.Session
	switch {
	case req.StartingCapital.IsNegative():
		writeError(w, ledger.ErrInvalidAmount.Error(), http.StatusBadRequest)
		return
	case req.StartingCapital.IsPositive():
		cfg.StartingCapital = req.StartingCapital
	}

	sess, err := session.New(uuid.NewString(), req.Name, s.catalog, cfg)
	if err != nil {
		fail(w, err)
		return
	}
	if len(req.Tradeable) > 0 {
		if err := sess.SetTradeable(req.Tradeable); err != nil {
			fail(w, err)
			return
		}
	}

	rec := sess.Record()
	if err := s.store.CreateSession(r.Context(), &rec); err != nil {
		fail(w, err)
		return
	}
	if err := s.registry.Add(sess); err != nil {
		fail(w, err)
		return
	}

	slog.Info("session created",
		"session", rec.ID,
		"name", rec.Name,
		"starting_capital", rec.StartingCapital.String(),
		"tradeable", len(rec.Tradeable),
	)

	writeJSON(w, http.StatusCreated, describe(sess))
}

// ListSessions handles GET /api/v1/sessions
func (s *Service) ListSessions(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.ListSessions(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	if recs == nil {
		recs = []model.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// GetSession handles GET /api/v1/sessions/{sessionID}
func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	defer s.lock(id)()

	sess, err := s.load(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(sess))
}

// Register handles POST /api/v1/sessions/{sessionID}/participants
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req RegisterRequest
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
	if err := sess.Register(req.Participant); err != nil {
		fail(w, err)
		return
	}
	if err := s.store.AddParticipant(ctx, id, req.Participant); err != nil {
		s.evict(id, "add_participant", err)
		fail(w, err)
		return
	}

	view, _ := sess.View(req.Participant)
	slog.Info("participant registered",
		"session", id,
		"participant", req.Participant,
		"status", string(sess.Status()),
	)
	writeJSON(w, http.StatusCreated, view)
}

// GetParticipant handles GET /api/v1/sessions/{sessionID}/participants/{participantID}
// Returns the live ledger view without recording a snapshot.
func (s *Service) GetParticipant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	pid := chi.URLParam(r, "participantID")
	defer s.lock(id)()

	sess, err := s.load(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	view, err := sess.View(pid)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetHistory handles GET /api/v1/sessions/{sessionID}/participants/{participantID}/history
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	pid := chi.URLParam(r, "participantID")
	defer s.lock(id)()

	sess, err := s.load(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	hist, err := sess.History(pid)
	if err != nil {
		fail(w, err)
		return
	}
	if hist == nil {
		hist = []model.LedgerSnapshot{}
	}
	writeJSON(w, http.StatusOK, hist)
}

// Start handles POST /api/v1/sessions/{sessionID}/start
func (s *Service) Start(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "start", (*session.Session).Start)
}

// End handles POST /api/v1/sessions/{sessionID}/end
func (s *Service) End(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "end", (*session.Session).End)
}

func (s *Service) transition(w http.ResponseWriter, r *http.Request, op string, apply func(*session.Session) error) {
	id := chi.URLParam(r, "sessionID")
	defer s.lock(id)()
	ctx := r.Context()

	sess, err := s.load(ctx, id)
	if err != nil {
		fail(w, err)
		return
	}
	before := sess.Status()
	if err := apply(sess); err != nil {
		fail(w, err)
		return
	}

	rec := sess.Record()
	if err := s.store.UpdateSession(ctx, &rec); err != nil {
		s.evict(id, op, err)
		fail(w, err)
		return
	}

	switch {
	case rec.Status == model.StatusActive:
		metrics.ActiveSessions.Inc()
	case before == model.StatusActive:
		metrics.ActiveSessions.Dec()
	}

	slog.Info("session status changed",
		"session", id,
		"from", string(before),
		"to", string(rec.Status),
	)
	s.broadcast(WSMessage{
		Type:      EventSessionStatus,
		SessionID: id,
		Turn:      rec.Turn,
		Status:    string(rec.Status),
	})

	writeJSON(w, http.StatusOK, describe(sess))
}
