// Package model defines the core domain types shared across the allocation game.
// Money (cash, positions, fees) uses shopspring/decimal; the stochastic
// models work in float64 and convert at the ledger boundary.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset categories understood by the correlation estimator and the
// factor return model.
const (
	CategoryEquity        = "Equity"
	CategoryBonds         = "Bonds"
	CategoryPrivateEquity = "Private Equity"
	CategoryRealEstate    = "Real Estate"
	CategoryMetals        = "Metals"
	CategoryCommodities   = "Commodities"
	CategoryCrypto        = "Crypto"
)

// CashLabel is the allocation key used for uninvested cash.
const CashLabel = "Cash"

// Asset is an immutable instrument descriptor. Name is the unique key.
type Asset struct {
	Name           string  `json:"name" yaml:"name"`
	Category       string  `json:"category" yaml:"category"`
	SubCategory    string  `json:"sub_category,omitempty" yaml:"sub_category"`
	ExpectedReturn float64 `json:"expected_return" yaml:"expected_return"` // annual μ
	Volatility     float64 `json:"volatility" yaml:"volatility"`           // annual σ, >= 0
	BetaGrowth     float64 `json:"beta_growth" yaml:"beta_growth"`
	BetaInflation  float64 `json:"beta_inflation" yaml:"beta_inflation"`
	BetaRate       float64 `json:"beta_rate" yaml:"beta_rate"`
	BetaEquity     float64 `json:"beta_equity" yaml:"beta_equity"`
	Duration       float64 `json:"duration" yaml:"duration"`         // 0 unless fixed income
	Lockup         int     `json:"lockup" yaml:"lockup"`             // turns
	ExitPenalty    float64 `json:"exit_penalty" yaml:"exit_penalty"` // fraction in [0,1]
}

// IsFixedIncome reports whether the asset takes the duration-based return path.
func (a Asset) IsFixedIncome() bool {
	return a.Category == CategoryBonds && a.Duration > 0
}

// MacroLevels is the persisted form of the macro state: the four current levels.
type MacroLevels struct {
	Growth    float64 `json:"growth" db:"growth"`
	Inflation float64 `json:"inflation" db:"inflation"`
	Rate      float64 `json:"rate" db:"rate"`
	Equity    float64 `json:"equity" db:"equity"`
}

// Shocks are the exogenous inputs of one macro update.
type Shocks struct {
	Growth    float64 `json:"growth"`
	Inflation float64 `json:"inflation"`
	Rate      float64 `json:"rate"`
	Equity    float64 `json:"equity"`
}

// ShockSet is what the factor return model consumes after a macro update.
// DeltaGrowth and DeltaInflation are deviations from the long-run mean,
// DeltaRate is the absolute change in the rate level, and EquityShock is
// the new equity factor level.
type ShockSet struct {
	DeltaGrowth    float64 `json:"delta_growth"`
	DeltaInflation float64 `json:"delta_inflation"`
	DeltaRate      float64 `json:"delta_rate"`
	EquityShock    float64 `json:"equity_shock"`
}

// SnapshotKind tags why a ledger snapshot was taken.
type SnapshotKind string

const (
	SnapshotSimulation SnapshotKind = "simulation"
	SnapshotTrade      SnapshotKind = "trade"
)

// LedgerSnapshot is an immutable point-in-time copy of one participant's ledger.
type LedgerSnapshot struct {
	ID           string                     `json:"id" db:"id"`
	SessionID    string                     `json:"session_id" db:"session_id"`
	Participant  string                     `json:"participant" db:"participant"`
	Turn         int                        `json:"turn" db:"turn"`
	Kind         SnapshotKind               `json:"kind" db:"kind"`
	TotalValue   decimal.Decimal            `json:"total_value" db:"total_value"`
	Cash         decimal.Decimal            `json:"cash" db:"cash"`
	Positions    map[string]decimal.Decimal `json:"positions" db:"positions"`
	Allocation   map[string]float64         `json:"allocation" db:"allocation"`   // percent of total
	Performance  float64                    `json:"performance" db:"performance"` // percent vs initial capital
	TotalFees    decimal.Decimal            `json:"total_fees" db:"total_fees"`
	Bankruptcies int                        `json:"bankruptcies" db:"bankruptcies"`
	Timestamp    time.Time                  `json:"timestamp" db:"timestamp"`
}

// TurnRecordVersion is the current schema version of TurnRecord.
const TurnRecordVersion = 1

// TurnRecord is the append-only history entry written once per simulated turn.
type TurnRecord struct {
	Version             int                `json:"version" db:"version"`
	SessionID           string             `json:"session_id" db:"session_id"`
	Turn                int                `json:"turn" db:"turn"`
	Label               string             `json:"label" db:"label"`
	Shocks              Shocks             `json:"shocks" db:"shocks"`
	Macro               MacroLevels        `json:"macro" db:"macro"`
	ShockSet            ShockSet           `json:"shock_set" db:"shock_set"`
	Returns             map[string]float64 `json:"returns" db:"returns"`
	CorrelationFallback bool               `json:"correlation_fallback" db:"correlation_fallback"`
	Timestamp           time.Time          `json:"timestamp" db:"timestamp"`
}

// SessionStatus is the lifecycle state of a session. Transitions are
// one-directional: waiting → active → ended.
type SessionStatus string

const (
	StatusWaiting SessionStatus = "waiting"
	StatusActive  SessionStatus = "active"
	StatusEnded   SessionStatus = "ended"
)

// SessionRecord is the persisted header of a session.
type SessionRecord struct {
	ID              string          `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Status          SessionStatus   `json:"status" db:"status"`
	Turn            int             `json:"turn" db:"turn"`
	StartingCapital decimal.Decimal `json:"starting_capital" db:"starting_capital"`
	Macro           MacroLevels     `json:"macro" db:"macro"`
	Tradeable       []string        `json:"tradeable" db:"tradeable"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// LeaderboardEntry is one ranked row of a session leaderboard.
type LeaderboardEntry struct {
	Rank         int             `json:"rank"`
	Participant  string          `json:"participant"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Performance  float64         `json:"performance"`
	TotalFees    decimal.Decimal `json:"total_fees"`
	Bankruptcies int             `json:"bankruptcies"`
}

// NewsItem is a headline published into a session for a given turn.
type NewsItem struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Turn      int       `json:"turn" db:"turn"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
