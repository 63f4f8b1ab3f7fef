// Package session runs a turn-based allocation game: one macro state, one
// ledger per participant, and a one-directional lifecycle
// (waiting → active → ended).
//
// Every exported method takes the session mutex, so mutating operations
// on one session are serialised while different sessions stay independent.
// A call that returns an error leaves the session untouched.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/allocation-game/internal/catalog"
	"github.com/atmx/allocation-game/internal/factor"
	"github.com/atmx/allocation-game/internal/ledger"
	"github.com/atmx/allocation-game/internal/macro"
	"github.com/atmx/allocation-game/internal/model"
)

var (
	ErrInvalidTransition  = errors.New("session: invalid status transition")
	ErrNoParticipants     = errors.New("session: no participants registered")
	ErrNotActive          = errors.New("session: session is not active")
	ErrSessionEnded       = errors.New("session: session has ended")
	ErrParticipantExists  = errors.New("session: participant already registered")
	ErrUnknownParticipant = errors.New("session: unknown participant")
	ErrAssetNotTradeable  = errors.New("session: asset is not tradeable in this session")
	ErrNoTradeableAssets  = errors.New("session: tradeable set cannot be empty")
	ErrInvalidParticipant = errors.New("session: participant id is required")
	ErrInvalidShocks      = errors.New("session: shocks must be finite")
)

// Session is one game. Use New or Restore.
type Session struct {
	mu sync.Mutex

	id        string
	name      string
	createdAt time.Time
	cfg       Config
	catalog   *catalog.Catalog
	rng       *rand.Rand
	now       func() time.Time

	status       model.SessionStatus
	turn         int
	macro        *macro.State
	tradeable    []string
	feeOverrides map[string]decimal.Decimal

	order   []string // join order
	ledgers map[string]*ledger.Ledger
	history map[string][]model.LedgerSnapshot
	turns   []model.TurnRecord
}

// TurnResult is everything one simulated turn produced.
type TurnResult struct {
	Record    model.TurnRecord
	Snapshots []model.LedgerSnapshot // join order
	Bailouts  []string
}

// TradeResult is an executed transaction and the snapshot taken after it.
type TradeResult struct {
	Trade    ledger.Trade
	Snapshot model.LedgerSnapshot
}

// New creates a waiting session where every catalog asset is tradeable.
func New(id, name string, cat *catalog.Catalog, cfg Config) (*Session, error) {
	ms, err := macro.New(cfg.Macro)
	if err != nil {
		return nil, err
	}
	s := newSession(id, name, cat, cfg)
	s.macro = ms
	s.status = model.StatusWaiting
	s.tradeable = cat.Names()
	s.createdAt = s.now()
	return s, nil
}

func newSession(id, name string, cat *catalog.Catalog, cfg Config) *Session {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Session{
		id:           id,
		name:         name,
		cfg:          cfg,
		catalog:      cat,
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:          func() time.Time { return time.Now().UTC() },
		feeOverrides: make(map[string]decimal.Decimal),
		ledgers:      make(map[string]*ledger.Ledger),
		history:      make(map[string][]model.LedgerSnapshot),
	}
}

// --- Accessors ---

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Status returns the lifecycle state.
func (s *Session) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Turn returns the index of the next turn to simulate.
func (s *Session) Turn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// Macro returns the current macro levels.
func (s *Session) Macro() model.MacroLevels {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.macro.Levels()
}

// Record returns the persisted header of the session.
func (s *Session) Record() model.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked()
}

func (s *Session) recordLocked() model.SessionRecord {
	return model.SessionRecord{
		ID:              s.id,
		Name:            s.name,
		Status:          s.status,
		Turn:            s.turn,
		StartingCapital: s.cfg.StartingCapital,
		Macro:           s.macro.Levels(),
		Tradeable:       append([]string(nil), s.tradeable...),
		CreatedAt:       s.createdAt,
	}
}

// Participants returns participant ids in join order.
func (s *Session) Participants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Tradeable returns the names buyable in this session.
func (s *Session) Tradeable() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tradeable...)
}

// Turns returns the turn history, oldest first.
func (s *Session) Turns() []model.TurnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TurnRecord(nil), s.turns...)
}

// View returns a live snapshot of a participant's ledger without recording it.
func (s *Session) View(participant string) (model.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[participant]
	if !ok {
		return model.LedgerSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownParticipant, participant)
	}
	snap := l.Snapshot(s.turn, model.SnapshotSimulation, s.now())
	snap.SessionID = s.id
	return snap, nil
}

// History returns every recorded snapshot of a participant, oldest first.
func (s *Session) History(participant string) ([]model.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledgers[participant]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, participant)
	}
	return append([]model.LedgerSnapshot(nil), s.history[participant]...), nil
}

// --- Lifecycle ---

// Register adds a participant with the starting capital in cash. Allowed
// while waiting or active.
func (s *Session) Register(participant string) error {
	if participant == "" {
		return ErrInvalidParticipant
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == model.StatusEnded {
		return ErrSessionEnded
	}
	if _, ok := s.ledgers[participant]; ok {
		return fmt.Errorf("%w: %s", ErrParticipantExists, participant)
	}
	s.ledgers[participant] = ledger.New(participant, s.cfg.StartingCapital)
	s.order = append(s.order, participant)
	return nil
}

// Start moves a waiting session with at least one participant to active
// and resets the turn counter.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.StatusWaiting {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.status, model.StatusActive)
	}
	if len(s.order) == 0 {
		return ErrNoParticipants
	}
	s.status = model.StatusActive
	s.turn = 0
	return nil
}

// End closes the session from waiting or active.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == model.StatusEnded {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.status, model.StatusEnded)
	}
	s.status = model.StatusEnded
	return nil
}

// --- Turns ---

// RandomShocks draws correlated macro shocks from the session's stream.
func (s *Session) RandomShocks() model.Shocks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return macro.GenerateShocks(s.rng)
}

// SimulateTurn advances the macro state, draws one set of annual returns
// for every catalog asset, applies them to all ledgers, bails out
// insolvent participants, records snapshots and a turn record, and
// increments the turn. Returns are computed once and shared by every
// ledger.
func (s *Session) SimulateTurn(ctx context.Context, shocks model.Shocks, label string) (*TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.StatusActive {
		return nil, fmt.Errorf("%w: status %s", ErrNotActive, s.status)
	}
	for _, v := range []float64{shocks.Growth, shocks.Inflation, shocks.Rate, shocks.Equity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %+v", ErrInvalidShocks, shocks)
		}
	}
	// Last point where the turn can be abandoned without side effects.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	at := s.now()
	set := s.macro.Update(shocks)
	levels := s.macro.Levels()
	fr := factor.Returns(s.catalog.All(), set, levels.Rate, s.rng)

	snaps := make([]model.LedgerSnapshot, len(s.order))
	bailed := make([]bool, len(s.order))

	var g errgroup.Group
	for i, id := range s.order {
		l := s.ledgers[id]
		g.Go(func() error {
			l.ApplyReturns(fr.Returns)
			bailed[i] = l.ResolveInsolvency(s.cfg.BailoutAmount)
			snap := l.Snapshot(s.turn, model.SnapshotSimulation, at)
			snap.ID = uuid.NewString()
			snap.SessionID = s.id
			snaps[i] = snap
			return nil
		})
	}
	_ = g.Wait()

	var bailouts []string
	for i, id := range s.order {
		s.history[id] = append(s.history[id], snaps[i])
		if bailed[i] {
			bailouts = append(bailouts, id)
			slog.Warn("participant bailed out",
				"session", s.id,
				"participant", id,
				"turn", s.turn,
				"bankruptcies", snaps[i].Bankruptcies,
			)
		}
	}

	rec := model.TurnRecord{
		Version:             model.TurnRecordVersion,
		SessionID:           s.id,
		Turn:                s.turn,
		Label:               label,
		Shocks:              shocks,
		Macro:               levels,
		ShockSet:            set,
		Returns:             fr.Returns,
		CorrelationFallback: fr.Fallback,
		Timestamp:           at,
	}
	s.turns = append(s.turns, rec)
	s.turn++

	slog.Info("turn simulated",
		"session", s.id,
		"turn", rec.Turn,
		"label", label,
		"participants", len(s.order),
		"bailouts", len(bailouts),
		"rate", levels.Rate,
	)

	return &TurnResult{Record: rec, Snapshots: snaps, Bailouts: bailouts}, nil
}

// --- Trading ---

// Execute buys or sells for a participant at the session fee. Buys require
// the asset to be tradeable; sells only require a holding, so positions in
// assets removed from the tradeable set can still be exited.
func (s *Session) Execute(participant, asset string, dir ledger.Direction, amount decimal.Decimal) (*TradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.StatusActive {
		return nil, fmt.Errorf("%w: status %s", ErrNotActive, s.status)
	}
	l, ok := s.ledgers[participant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, participant)
	}
	if !s.catalog.Contains(asset) {
		return nil, fmt.Errorf("%w: %q", catalog.ErrAssetNotFound, asset)
	}
	if dir == ledger.Buy && !s.isTradeable(asset) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotTradeable, asset)
	}

	tr, err := l.Execute(asset, dir, amount, s.feeRateLocked(asset))
	if err != nil {
		return nil, err
	}

	snap := l.Snapshot(s.turn, model.SnapshotTrade, s.now())
	snap.ID = uuid.NewString()
	snap.SessionID = s.id
	s.history[participant] = append(s.history[participant], snap)

	slog.Info("trade executed",
		"session", s.id,
		"participant", participant,
		"asset", asset,
		"direction", string(dir),
		"amount", amount.String(),
		"fee", tr.Fee.String(),
	)
	return &TradeResult{Trade: tr, Snapshot: snap}, nil
}

func (s *Session) isTradeable(asset string) bool {
	for _, n := range s.tradeable {
		if n == asset {
			return true
		}
	}
	return false
}

// Order is a prospective transaction used for fee estimates.
type Order struct {
	Asset  string
	Amount decimal.Decimal
}

// EstimateFees sums the fees a batch of orders would pay at current rates.
func (s *Session) EstimateFees(orders []Order) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Amount.Abs().Mul(s.feeRateLocked(o.Asset)))
	}
	return total
}

// --- Fees and tradeable set ---

// FeeRate resolves the fee for an asset: explicit override, then the
// configured schedule, then the default rate.
func (s *Session) FeeRate(asset string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeRateLocked(asset)
}

func (s *Session) feeRateLocked(asset string) decimal.Decimal {
	if r, ok := s.feeOverrides[asset]; ok {
		return r
	}
	if r, ok := s.cfg.FeeRates[asset]; ok {
		return r
	}
	return s.cfg.DefaultFeeRate
}

// FeeOverrides returns the explicit per-asset fees set on this session.
func (s *Session) FeeOverrides() map[string]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(s.feeOverrides))
	for k, v := range s.feeOverrides {
		out[k] = v
	}
	return out
}

// SetFeeRate overrides the fee for one catalog asset.
func (s *Session) SetFeeRate(asset string, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s", ledger.ErrInvalidFeeRate, rate)
	}
	if !s.catalog.Contains(asset) {
		return fmt.Errorf("%w: %q", catalog.ErrAssetNotFound, asset)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == model.StatusEnded {
		return ErrSessionEnded
	}
	s.feeOverrides[asset] = rate
	return nil
}

// SetTradeable replaces the buyable set. Names are validated against the
// catalog and stored in catalog order.
func (s *Session) SetTradeable(names []string) error {
	if len(names) == 0 {
		return ErrNoTradeableAssets
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if !s.catalog.Contains(n) {
			return fmt.Errorf("%w: %q", catalog.ErrAssetNotFound, n)
		}
		want[n] = true
	}
	var ordered []string
	for _, n := range s.catalog.Names() {
		if want[n] {
			ordered = append(ordered, n)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == model.StatusEnded {
		return ErrSessionEnded
	}
	s.tradeable = ordered
	return nil
}

// --- Ranking ---

// Leaderboard ranks participants by total value, highest first. Ties keep
// join order.
func (s *Session) Leaderboard() []model.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]model.LeaderboardEntry, len(s.order))
	for i, id := range s.order {
		l := s.ledgers[id]
		entries[i] = model.LeaderboardEntry{
			Participant:  id,
			TotalValue:   l.TotalValue(),
			Performance:  l.Performance(),
			TotalFees:    l.TotalFees(),
			Bankruptcies: l.Bankruptcies(),
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalValue.GreaterThan(entries[j].TotalValue)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
