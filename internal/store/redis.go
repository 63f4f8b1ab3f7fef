package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/allocation-game/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for session headers, participant lists and turn history. Writes go
// to the primary store and invalidate the cache; reads check Redis first
// then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateSession(ctx context.Context, rec *model.SessionRecord) error {
	if err := s.primary.CreateSession(ctx, rec); err != nil {
		return err
	}
	s.cacheJSON(ctx, sessionKey(rec.ID), rec)
	return nil
}

func (s *CachedStore) UpdateSession(ctx context.Context, rec *model.SessionRecord) error {
	if err := s.primary.UpdateSession(ctx, rec); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, sessionKey(rec.ID))
	return nil
}

func (s *CachedStore) AddParticipant(ctx context.Context, sessionID, participant string) error {
	if err := s.primary.AddParticipant(ctx, sessionID, participant); err != nil {
		return err
	}
	s.rdb.Del(ctx, participantsKey(sessionID))
	return nil
}

func (s *CachedStore) InsertTurnRecord(ctx context.Context, rec *model.TurnRecord) error {
	if err := s.primary.InsertTurnRecord(ctx, rec); err != nil {
		return err
	}
	s.rdb.Del(ctx, turnsKey(rec.SessionID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetSession(ctx context.Context, id string) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	if s.cached(ctx, sessionKey(id), &rec) {
		return &rec, nil
	}

	// Cache miss: read from primary.
	got, err := s.primary.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, sessionKey(id), got)
	return got, nil
}

func (s *CachedStore) ListParticipants(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	if s.cached(ctx, participantsKey(sessionID), &ids) {
		return ids, nil
	}

	ids, err := s.primary.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, participantsKey(sessionID), ids)
	return ids, nil
}

func (s *CachedStore) GetTurnRecords(ctx context.Context, sessionID string) ([]model.TurnRecord, error) {
	var recs []model.TurnRecord
	if s.cached(ctx, turnsKey(sessionID), &recs) {
		return recs, nil
	}

	recs, err := s.primary.GetTurnRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, turnsKey(sessionID), recs)
	return recs, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListSessions(ctx context.Context) ([]model.SessionRecord, error) {
	return s.primary.ListSessions(ctx)
}

func (s *CachedStore) SetFeeOverride(ctx context.Context, sessionID, asset string, rate decimal.Decimal) error {
	return s.primary.SetFeeOverride(ctx, sessionID, asset, rate)
}

func (s *CachedStore) GetFeeOverrides(ctx context.Context, sessionID string) (map[string]decimal.Decimal, error) {
	return s.primary.GetFeeOverrides(ctx, sessionID)
}

func (s *CachedStore) InsertSnapshots(ctx context.Context, snaps []model.LedgerSnapshot) error {
	return s.primary.InsertSnapshots(ctx, snaps)
}

func (s *CachedStore) GetSnapshots(ctx context.Context, sessionID, participant string) ([]model.LedgerSnapshot, error) {
	return s.primary.GetSnapshots(ctx, sessionID, participant)
}

// HasTurnData always asks the primary: the partial-turn check must not see
// stale data.
func (s *CachedStore) HasTurnData(ctx context.Context, sessionID string, turn int) (bool, error) {
	return s.primary.HasTurnData(ctx, sessionID, turn)
}

func (s *CachedStore) InsertNews(ctx context.Context, item *model.NewsItem) error {
	return s.primary.InsertNews(ctx, item)
}

func (s *CachedStore) GetNews(ctx context.Context, sessionID string) ([]model.NewsItem, error) {
	return s.primary.GetNews(ctx, sessionID)
}

// --- Cache helpers ---

// cached decodes the value at key into dst. Any Redis or decode error is
// treated as a miss.
func (s *CachedStore) cached(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func sessionKey(id string) string      { return fmt.Sprintf("session:%s", id) }
func participantsKey(id string) string { return fmt.Sprintf("participants:%s", id) }
func turnsKey(id string) string        { return fmt.Sprintf("turns:%s", id) }
