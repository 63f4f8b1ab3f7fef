package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/allocation-game/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// mapErr translates driver errors into store sentinels.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, rec *model.SessionRecord) error {
	macro, err := toJSON(rec.Macro)
	if err != nil {
		return err
	}
	tradeable, err := toJSON(rec.Tradeable)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, name, status, turn, starting_capital, macro, tradeable, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::JSONB, $7::JSONB, $8)`,
		rec.ID, rec.Name, rec.Status, rec.Turn,
		rec.StartingCapital.String(), macro, tradeable,
		rec.CreatedAt,
	)
	return mapErr(err, "create session "+rec.ID)
}

const sessionColumns = `id, name, status, turn, starting_capital::TEXT, macro::TEXT, tradeable::TEXT, created_at`

func scanSession(row pgx.Row) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	var capital, macro, tradeable string
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Status, &rec.Turn,
		&capital, &macro, &tradeable, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.StartingCapital, _ = decimal.NewFromString(capital)
	if err := json.Unmarshal([]byte(macro), &rec.Macro); err != nil {
		return nil, fmt.Errorf("decode macro: %w", err)
	}
	if err := json.Unmarshal([]byte(tradeable), &rec.Tradeable); err != nil {
		return nil, fmt.Errorf("decode tradeable: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.SessionRecord, error) {
	rec, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "get session "+id)
	}
	return rec, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]model.SessionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateSession(ctx context.Context, rec *model.SessionRecord) error {
	macro, err := toJSON(rec.Macro)
	if err != nil {
		return err
	}
	tradeable, err := toJSON(rec.Tradeable)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions
		 SET status = $2, turn = $3, macro = $4::JSONB, tradeable = $5::JSONB
		 WHERE id = $1`,
		rec.ID, rec.Status, rec.Turn, macro, tradeable,
	)
	if err != nil {
		return mapErr(err, "update session "+rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update session %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SetFeeOverride(ctx context.Context, sessionID, asset string, rate decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_fees (session_id, asset, rate)
		 VALUES ($1, $2, $3::NUMERIC)
		 ON CONFLICT (session_id, asset) DO UPDATE SET rate = EXCLUDED.rate`,
		sessionID, asset, rate.String(),
	)
	return mapErr(err, "set fee "+asset)
}

func (s *PostgresStore) GetFeeOverrides(ctx context.Context, sessionID string) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset, rate::TEXT FROM session_fees WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fees := make(map[string]decimal.Decimal)
	for rows.Next() {
		var asset, rateS string
		if err := rows.Scan(&asset, &rateS); err != nil {
			return nil, err
		}
		fees[asset], _ = decimal.NewFromString(rateS)
	}
	return fees, rows.Err()
}

// --- Participants ---

func (s *PostgresStore) AddParticipant(ctx context.Context, sessionID, participant string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO participants (session_id, participant) VALUES ($1, $2)`,
		sessionID, participant,
	)
	return mapErr(err, "add participant "+participant)
}

func (s *PostgresStore) ListParticipants(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT participant FROM participants WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Snapshots ---

// InsertSnapshots writes all snapshots in one transaction.
func (s *PostgresStore) InsertSnapshots(ctx context.Context, snaps []model.LedgerSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, snap := range snaps {
		positions, err := toJSON(snap.Positions)
		if err != nil {
			return err
		}
		allocation, err := toJSON(snap.Allocation)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_snapshots
			   (id, session_id, participant, turn, kind, total_value, cash,
			    positions, allocation, performance, total_fees, bankruptcies, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC,
			         $8::JSONB, $9::JSONB, $10, $11::NUMERIC, $12, $13)`,
			snap.ID, snap.SessionID, snap.Participant, snap.Turn, snap.Kind,
			snap.TotalValue.String(), snap.Cash.String(),
			positions, allocation, snap.Performance,
			snap.TotalFees.String(), snap.Bankruptcies, snap.Timestamp,
		)
		if err != nil {
			return mapErr(err, "insert snapshot "+snap.ID)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetSnapshots(ctx context.Context, sessionID, participant string) ([]model.LedgerSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, participant, turn, kind,
		        total_value::TEXT, cash::TEXT, positions::TEXT, allocation::TEXT,
		        performance, total_fees::TEXT, bankruptcies, timestamp
		 FROM ledger_snapshots
		 WHERE session_id = $1 AND participant = $2
		 ORDER BY seq`, sessionID, participant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// pgxRows is the subset of pgx.Rows the scanners need.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSnapshots(rows pgxRows) ([]model.LedgerSnapshot, error) {
	var out []model.LedgerSnapshot
	for rows.Next() {
		var snap model.LedgerSnapshot
		var totalS, cashS, positionsS, allocationS, feesS string

		if err := rows.Scan(&snap.ID, &snap.SessionID, &snap.Participant, &snap.Turn, &snap.Kind,
			&totalS, &cashS, &positionsS, &allocationS,
			&snap.Performance, &feesS, &snap.Bankruptcies, &snap.Timestamp); err != nil {
			return nil, err
		}

		snap.TotalValue, _ = decimal.NewFromString(totalS)
		snap.Cash, _ = decimal.NewFromString(cashS)
		snap.TotalFees, _ = decimal.NewFromString(feesS)
		if err := json.Unmarshal([]byte(positionsS), &snap.Positions); err != nil {
			return nil, fmt.Errorf("decode positions of %s: %w", snap.ID, err)
		}
		if err := json.Unmarshal([]byte(allocationS), &snap.Allocation); err != nil {
			return nil, fmt.Errorf("decode allocation of %s: %w", snap.ID, err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// --- Turn records ---

func (s *PostgresStore) InsertTurnRecord(ctx context.Context, rec *model.TurnRecord) error {
	shocks, err := toJSON(rec.Shocks)
	if err != nil {
		return err
	}
	macro, err := toJSON(rec.Macro)
	if err != nil {
		return err
	}
	set, err := toJSON(rec.ShockSet)
	if err != nil {
		return err
	}
	returns, err := toJSON(rec.Returns)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO turn_records
		   (session_id, turn, version, label, shocks, macro, shock_set, returns, correlation_fallback, timestamp)
		 VALUES ($1, $2, $3, $4, $5::JSONB, $6::JSONB, $7::JSONB, $8::JSONB, $9, $10)`,
		rec.SessionID, rec.Turn, rec.Version, rec.Label,
		shocks, macro, set, returns,
		rec.CorrelationFallback, rec.Timestamp,
	)
	return mapErr(err, fmt.Sprintf("insert turn %d", rec.Turn))
}

func (s *PostgresStore) GetTurnRecords(ctx context.Context, sessionID string) ([]model.TurnRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, turn, version, label,
		        shocks::TEXT, macro::TEXT, shock_set::TEXT, returns::TEXT,
		        correlation_fallback, timestamp
		 FROM turn_records WHERE session_id = $1 ORDER BY turn`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TurnRecord
	for rows.Next() {
		var rec model.TurnRecord
		var shocks, macro, set, returns string
		if err := rows.Scan(&rec.SessionID, &rec.Turn, &rec.Version, &rec.Label,
			&shocks, &macro, &set, &returns,
			&rec.CorrelationFallback, &rec.Timestamp); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			raw string
			dst any
		}{{shocks, &rec.Shocks}, {macro, &rec.Macro}, {set, &rec.ShockSet}, {returns, &rec.Returns}} {
			if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
				return nil, fmt.Errorf("decode turn %d: %w", rec.Turn, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HasTurnData(ctx context.Context, sessionID string, turn int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM turn_records WHERE session_id = $1 AND turn = $2)
		     OR EXISTS (SELECT 1 FROM ledger_snapshots
		                WHERE session_id = $1 AND turn = $2 AND kind = 'simulation')`,
		sessionID, turn).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check turn %d: %w", turn, err)
	}
	return exists, nil
}

// --- News ---

func (s *PostgresStore) InsertNews(ctx context.Context, item *model.NewsItem) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO news (id, session_id, turn, title, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.SessionID, item.Turn, item.Title, item.Content, item.CreatedAt,
	)
	return mapErr(err, "insert news "+item.ID)
}

func (s *PostgresStore) GetNews(ctx context.Context, sessionID string) ([]model.NewsItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, turn, title, content, created_at
		 FROM news WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NewsItem
	for rows.Next() {
		var n model.NewsItem
		if err := rows.Scan(&n.ID, &n.SessionID, &n.Turn, &n.Title, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
