package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/atmx/allocation-game/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	sessions     map[string]*model.SessionRecord
	fees         map[string]map[string]decimal.Decimal
	participants map[string][]string
	snapshots    []model.LedgerSnapshot
	turns        []model.TurnRecord
	news         []model.NewsItem
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string]*model.SessionRecord),
		fees:         make(map[string]map[string]decimal.Decimal),
		participants: make(map[string][]string),
	}
}

func copySession(rec *model.SessionRecord) *model.SessionRecord {
	c := *rec
	c.Tradeable = append([]string(nil), rec.Tradeable...)
	return &c
}

func (s *MemoryStore) CreateSession(_ context.Context, rec *model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[rec.ID]; ok {
		return fmt.Errorf("session %s: %w", rec.ID, ErrAlreadyExists)
	}
	// Store a copy to avoid external mutation.
	s.sessions[rec.ID] = copySession(rec)
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*model.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return copySession(rec), nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]model.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, *copySession(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, rec *model.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[rec.ID]
	if !ok {
		return fmt.Errorf("session %s: %w", rec.ID, ErrNotFound)
	}
	cur.Status = rec.Status
	cur.Turn = rec.Turn
	cur.Macro = rec.Macro
	cur.Tradeable = append([]string(nil), rec.Tradeable...)
	return nil
}

func (s *MemoryStore) SetFeeOverride(_ context.Context, sessionID, asset string, rate decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if s.fees[sessionID] == nil {
		s.fees[sessionID] = make(map[string]decimal.Decimal)
	}
	s.fees[sessionID][asset] = rate
	return nil
}

func (s *MemoryStore) GetFeeOverrides(_ context.Context, sessionID string) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(s.fees[sessionID]))
	for k, v := range s.fees[sessionID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) AddParticipant(_ context.Context, sessionID, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	for _, p := range s.participants[sessionID] {
		if p == participant {
			return fmt.Errorf("participant %s in session %s: %w", participant, sessionID, ErrAlreadyExists)
		}
	}
	s.participants[sessionID] = append(s.participants[sessionID], participant)
	return nil
}

func (s *MemoryStore) ListParticipants(_ context.Context, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.participants[sessionID]...), nil
}

func copySnapshot(snap model.LedgerSnapshot) model.LedgerSnapshot {
	c := snap
	c.Positions = make(map[string]decimal.Decimal, len(snap.Positions))
	for k, v := range snap.Positions {
		c.Positions[k] = v
	}
	c.Allocation = make(map[string]float64, len(snap.Allocation))
	for k, v := range snap.Allocation {
		c.Allocation[k] = v
	}
	return c
}

func (s *MemoryStore) InsertSnapshots(_ context.Context, snaps []model.LedgerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		s.snapshots = append(s.snapshots, copySnapshot(snap))
	}
	return nil
}

func (s *MemoryStore) GetSnapshots(_ context.Context, sessionID, participant string) ([]model.LedgerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerSnapshot
	for _, snap := range s.snapshots {
		if snap.SessionID == sessionID && snap.Participant == participant {
			result = append(result, copySnapshot(snap))
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertTurnRecord(_ context.Context, rec *model.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.turns {
		if t.SessionID == rec.SessionID && t.Turn == rec.Turn {
			return fmt.Errorf("turn %d of session %s: %w", rec.Turn, rec.SessionID, ErrAlreadyExists)
		}
	}
	s.turns = append(s.turns, *rec)
	return nil
}

func (s *MemoryStore) GetTurnRecords(_ context.Context, sessionID string) ([]model.TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TurnRecord
	for _, t := range s.turns {
		if t.SessionID == sessionID {
			result = append(result, t)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Turn < result[j].Turn })
	return result, nil
}

func (s *MemoryStore) HasTurnData(_ context.Context, sessionID string, turn int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.turns {
		if t.SessionID == sessionID && t.Turn == turn {
			return true, nil
		}
	}
	for _, snap := range s.snapshots {
		if snap.SessionID == sessionID && snap.Turn == turn && snap.Kind == model.SnapshotSimulation {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) InsertNews(_ context.Context, item *model.NewsItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[item.SessionID]; !ok {
		return fmt.Errorf("session %s: %w", item.SessionID, ErrNotFound)
	}
	s.news = append(s.news, *item)
	return nil
}

func (s *MemoryStore) GetNews(_ context.Context, sessionID string) ([]model.NewsItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.NewsItem
	for _, n := range s.news {
		if n.SessionID == sessionID {
			result = append(result, n)
		}
	}
	return result, nil
}
