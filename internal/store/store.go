// Package store defines the persistence interface for game sessions.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// A session is fully reconstructible from what is stored here: the header,
// fee overrides, participants in join order, every ledger snapshot and every
// turn record.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/allocation-game/internal/model"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Sessions ---

	// CreateSession persists a new session header.
	CreateSession(ctx context.Context, rec *model.SessionRecord) error

	// GetSession retrieves a session header by id.
	GetSession(ctx context.Context, id string) (*model.SessionRecord, error)

	// ListSessions returns all session headers, newest first.
	ListSessions(ctx context.Context) ([]model.SessionRecord, error)

	// UpdateSession overwrites status, turn, macro levels and tradeable set.
	UpdateSession(ctx context.Context, rec *model.SessionRecord) error

	// SetFeeOverride stores an explicit per-asset fee for a session.
	SetFeeOverride(ctx context.Context, sessionID, asset string, rate decimal.Decimal) error

	// GetFeeOverrides returns the explicit fees of a session.
	GetFeeOverrides(ctx context.Context, sessionID string) (map[string]decimal.Decimal, error)

	// --- Participants ---

	// AddParticipant appends a participant to a session's join order.
	AddParticipant(ctx context.Context, sessionID, participant string) error

	// ListParticipants returns participant ids in join order.
	ListParticipants(ctx context.Context, sessionID string) ([]string, error)

	// --- Append-only history ---

	// InsertSnapshots appends ledger snapshots atomically.
	InsertSnapshots(ctx context.Context, snaps []model.LedgerSnapshot) error

	// GetSnapshots returns one participant's snapshots, oldest first.
	GetSnapshots(ctx context.Context, sessionID, participant string) ([]model.LedgerSnapshot, error)

	// InsertTurnRecord appends the record of a simulated turn.
	InsertTurnRecord(ctx context.Context, rec *model.TurnRecord) error

	// GetTurnRecords returns a session's turn records, oldest first.
	GetTurnRecords(ctx context.Context, sessionID string) ([]model.TurnRecord, error)

	// HasTurnData reports whether any simulation snapshot or turn record
	// exists for the given turn.
	HasTurnData(ctx context.Context, sessionID string, turn int) (bool, error)

	// --- News ---

	// InsertNews publishes a headline into a session.
	InsertNews(ctx context.Context, item *model.NewsItem) error

	// GetNews returns a session's headlines, oldest first.
	GetNews(ctx context.Context, sessionID string) ([]model.NewsItem, error)
}
