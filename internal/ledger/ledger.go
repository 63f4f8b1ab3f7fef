// Package ledger tracks one participant's cash, positions, fees and
// bankruptcies.
//
// All monetary values use shopspring/decimal. Returns arrive as float64
// from the factor model and are converted once per position.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/allocation-game/internal/model"
)

var (
	ErrInvalidAmount        = errors.New("ledger: amount must be positive")
	ErrInvalidFeeRate       = errors.New("ledger: fee rate must be in [0, 1)")
	ErrInvalidDirection     = errors.New("ledger: direction must be buy or sell")
	ErrInsufficientFunds    = errors.New("ledger: insufficient cash")
	ErrInsufficientPosition = errors.New("ledger: insufficient position")
)

// Direction is the side of a transaction.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// ParseDirection accepts "buy" or "sell".
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Buy, Sell:
		return Direction(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Negligible is the size at or below which a position is dropped.
var Negligible = decimal.RequireFromString("0.01")

// moneyPlaces bounds decimal growth when compounding float returns.
const moneyPlaces = 6

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Trade describes an executed transaction.
type Trade struct {
	Asset     string          `json:"asset"`
	Direction Direction       `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	CashDelta decimal.Decimal `json:"cash_delta"` // signed
}

// Ledger is one participant's book. It is not safe for concurrent use.
type Ledger struct {
	participant  string
	initial      decimal.Decimal
	cash         decimal.Decimal
	positions    map[string]decimal.Decimal
	fees         decimal.Decimal
	bankruptcies int
}

// New opens a ledger holding initial capital in cash.
func New(participant string, initial decimal.Decimal) *Ledger {
	return &Ledger{
		participant: participant,
		initial:     initial,
		cash:        initial,
		positions:   make(map[string]decimal.Decimal),
	}
}

// Restore rebuilds a ledger from its latest snapshot.
func Restore(participant string, initial decimal.Decimal, snap model.LedgerSnapshot) *Ledger {
	l := New(participant, initial)
	l.cash = snap.Cash
	l.fees = snap.TotalFees
	l.bankruptcies = snap.Bankruptcies
	for name, amt := range snap.Positions {
		if amt.GreaterThan(Negligible) {
			l.positions[name] = amt
		}
	}
	return l
}

// Participant returns the owner's id.
func (l *Ledger) Participant() string { return l.participant }

// InitialCapital is the reference for performance.
func (l *Ledger) InitialCapital() decimal.Decimal { return l.initial }

// Cash returns uninvested cash.
func (l *Ledger) Cash() decimal.Decimal { return l.cash }

// TotalFees returns the fees paid since inception.
func (l *Ledger) TotalFees() decimal.Decimal { return l.fees }

// Bankruptcies counts bailouts.
func (l *Ledger) Bankruptcies() int { return l.bankruptcies }

// Position returns the amount held in asset, zero if none.
func (l *Ledger) Position(asset string) decimal.Decimal {
	return l.positions[asset]
}

// Positions returns a copy of all open positions.
func (l *Ledger) Positions() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(l.positions))
	for k, v := range l.positions {
		out[k] = v
	}
	return out
}

// TotalValue is cash plus the sum of positions.
func (l *Ledger) TotalValue() decimal.Decimal {
	total := l.cash
	for _, v := range l.positions {
		total = total.Add(v)
	}
	return total
}

// Performance is (total / initial − 1)·100.
func (l *Ledger) Performance() float64 {
	if !l.initial.IsPositive() {
		return 0
	}
	return l.TotalValue().Div(l.initial).Sub(one).Mul(hundred).InexactFloat64()
}

// Allocation returns each position's share of total value in percent,
// plus Cash when cash is positive. Empty when the total is zero.
func (l *Ledger) Allocation() map[string]float64 {
	total := l.TotalValue()
	out := make(map[string]float64, len(l.positions)+1)
	if total.IsZero() {
		return out
	}
	for name, amt := range l.positions {
		out[name] = amt.Div(total).Mul(hundred).InexactFloat64()
	}
	if l.cash.IsPositive() {
		out[model.CashLabel] = l.cash.Div(total).Mul(hundred).InexactFloat64()
	}
	return out
}

// Execute buys or sells amount of asset at feeRate. A buy needs
// amount·(1+fee) in cash; a sell needs amount in the position and credits
// amount·(1−fee). On error nothing is mutated.
func (l *Ledger) Execute(asset string, dir Direction, amount, feeRate decimal.Decimal) (Trade, error) {
	if !amount.IsPositive() {
		return Trade{}, ErrInvalidAmount
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(one) {
		return Trade{}, fmt.Errorf("%w: %s", ErrInvalidFeeRate, feeRate)
	}
	fee := amount.Mul(feeRate)

	switch dir {
	case Buy:
		cost := amount.Add(fee)
		if l.cash.LessThan(cost) {
			return Trade{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost.StringFixed(2), l.cash.StringFixed(2))
		}
		l.cash = l.cash.Sub(cost)
		l.positions[asset] = l.positions[asset].Add(amount)
		l.fees = l.fees.Add(fee)
		return Trade{Asset: asset, Direction: dir, Amount: amount, Fee: fee, CashDelta: cost.Neg()}, nil

	case Sell:
		held := l.positions[asset]
		if held.LessThan(amount) {
			return Trade{}, fmt.Errorf("%w: %s holds %s, sell %s", ErrInsufficientPosition, asset, held.StringFixed(2), amount.StringFixed(2))
		}
		proceeds := amount.Sub(fee)
		rest := held.Sub(amount)
		if rest.LessThanOrEqual(Negligible) {
			delete(l.positions, asset)
		} else {
			l.positions[asset] = rest
		}
		l.cash = l.cash.Add(proceeds)
		l.fees = l.fees.Add(fee)
		return Trade{Asset: asset, Direction: dir, Amount: amount, Fee: fee, CashDelta: proceeds}, nil
	}
	return Trade{}, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
}

// ApplyReturns multiplies every held position by (1 + r). Positions
// without a return are left untouched; negligible results are dropped.
func (l *Ledger) ApplyReturns(returns map[string]float64) {
	for name, amt := range l.positions {
		r, ok := returns[name]
		if !ok || math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		next := amt.Mul(decimal.NewFromFloat(1 + r)).Round(moneyPlaces)
		if next.LessThanOrEqual(Negligible) {
			delete(l.positions, name)
			continue
		}
		l.positions[name] = next
	}
}

// ResolveInsolvency bails out a ledger whose total value is at or below
// zero: positions are wiped, cash is reset to bailout and the bankruptcy
// counter increments. Reports whether a bailout happened.
func (l *Ledger) ResolveInsolvency(bailout decimal.Decimal) bool {
	if l.TotalValue().IsPositive() {
		return false
	}
	l.bankruptcies++
	l.positions = make(map[string]decimal.Decimal)
	l.cash = bailout
	return true
}

// Snapshot captures the ledger. Session and ID are filled by the caller.
func (l *Ledger) Snapshot(turn int, kind model.SnapshotKind, at time.Time) model.LedgerSnapshot {
	return model.LedgerSnapshot{
		Participant:  l.participant,
		Turn:         turn,
		Kind:         kind,
		TotalValue:   l.TotalValue(),
		Cash:         l.cash,
		Positions:    l.Positions(),
		Allocation:   l.Allocation(),
		Performance:  l.Performance(),
		TotalFees:    l.fees,
		Bankruptcies: l.bankruptcies,
		Timestamp:    at,
	}
}

// HeldAssets returns the names of open positions, sorted.
func (l *Ledger) HeldAssets() []string {
	names := make([]string, 0, len(l.positions))
	for n := range l.positions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
