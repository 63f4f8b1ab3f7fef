package session

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/allocation-game/internal/catalog"
	"github.com/atmx/allocation-game/internal/ledger"
	"github.com/atmx/allocation-game/internal/macro"
	"github.com/atmx/allocation-game/internal/model"
)

// Persisted is everything needed to rebuild a session after a restart.
type Persisted struct {
	Record       model.SessionRecord
	FeeOverrides map[string]decimal.Decimal
	Participants []string // join order

	// History holds each participant's snapshots, oldest first. A
	// participant without snapshots is restored with the starting capital.
	History map[string][]model.LedgerSnapshot
	Turns   []model.TurnRecord
}

// Restore rebuilds a session from persisted state: macro levels come from
// the header, each ledger from its latest snapshot.
func Restore(cat *catalog.Catalog, cfg Config, p Persisted) (*Session, error) {
	ms, err := macro.Restore(cfg.Macro, p.Record.Macro)
	if err != nil {
		return nil, err
	}
	if p.Record.StartingCapital.IsPositive() {
		cfg.StartingCapital = p.Record.StartingCapital
	}

	s := newSession(p.Record.ID, p.Record.Name, cat, cfg)
	s.macro = ms
	s.status = model.StatusWaiting
	s.tradeable = cat.Names()
	if len(p.Record.Tradeable) > 0 {
		if err := s.SetTradeable(p.Record.Tradeable); err != nil {
			return nil, fmt.Errorf("restore session %s: %w", p.Record.ID, err)
		}
	}
	s.status = p.Record.Status
	s.turn = p.Record.Turn
	s.createdAt = p.Record.CreatedAt
	for asset, rate := range p.FeeOverrides {
		s.feeOverrides[asset] = rate
	}

	for _, id := range p.Participants {
		if _, dup := s.ledgers[id]; dup {
			continue
		}
		hist := p.History[id]
		var l *ledger.Ledger
		if len(hist) == 0 {
			l = ledger.New(id, cfg.StartingCapital)
		} else {
			l = ledger.Restore(id, cfg.StartingCapital, hist[len(hist)-1])
		}
		s.ledgers[id] = l
		s.order = append(s.order, id)
		s.history[id] = append([]model.LedgerSnapshot(nil), hist...)
	}
	s.turns = append([]model.TurnRecord(nil), p.Turns...)
	return s, nil
}
