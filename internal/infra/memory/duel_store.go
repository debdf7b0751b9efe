package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-duel-service/internal/domain"
)

// DuelStore is an in-memory implementation of app.DuelStore. Each duel has
// its own mutex; Update mutates a copy and commits only on success, so a
// failed callback leaves the stored state untouched.
type DuelStore struct {
	mu    sync.RWMutex
	duels map[string]*duelEntry
}

type duelEntry struct {
	mu    sync.Mutex
	state domain.DuelState
}

func NewDuelStore() *DuelStore {
	return &DuelStore{duels: make(map[string]*duelEntry)}
}

func (s *DuelStore) Create(_ context.Context, state domain.DuelState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duels[state.Duel.ID] = &duelEntry{state: state.Clone()}
	return nil
}

func (s *DuelStore) Get(_ context.Context, duelID string) (domain.DuelState, error) {
	entry, ok := s.entry(duelID)
	if !ok {
		return domain.DuelState{}, domain.ErrDuelNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Clone(), nil
}

func (s *DuelStore) ListByPlayer(_ context.Context, username string) ([]domain.DuelState, error) {
	return s.list(func(d domain.Duel) bool { return d.HasPlayer(username) }), nil
}

func (s *DuelStore) ListInProgress(_ context.Context) ([]domain.DuelState, error) {
	return s.list(func(d domain.Duel) bool { return d.InProgress }), nil
}

func (s *DuelStore) Update(_ context.Context, duelID string, fn func(*domain.DuelState) error) (domain.DuelState, error) {
	entry, ok := s.entry(duelID)
	if !ok {
		return domain.DuelState{}, domain.ErrDuelNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	work := entry.state.Clone()
	if err := fn(&work); err != nil {
		return domain.DuelState{}, err
	}
	entry.state = work
	return work.Clone(), nil
}

func (s *DuelStore) PurgeFinishedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, entry := range s.duels {
		duel := entry.state.Duel
		if !duel.InProgress && duel.FinishedAt != nil && duel.FinishedAt.Before(cutoff) {
			delete(s.duels, id)
			purged++
		}
	}
	return purged, nil
}

func (s *DuelStore) entry(duelID string) (*duelEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.duels[duelID]
	return entry, ok
}

func (s *DuelStore) list(keep func(domain.Duel) bool) []domain.DuelState {
	s.mu.RLock()
	entries := make([]*duelEntry, 0, len(s.duels))
	for _, entry := range s.duels {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	states := make([]domain.DuelState, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		if keep(entry.state.Duel) {
			states = append(states, entry.state.Clone())
		}
		entry.mu.Unlock()
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Duel.CreatedAt.After(states[j].Duel.CreatedAt)
	})
	return states
}
