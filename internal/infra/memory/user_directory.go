package memory

import (
	"context"
	"sync"

	"quiz-duel-service/internal/domain"
)

// UserStats are the win/loss counters kept per user.
type UserStats struct {
	Wins   int
	Losses int
}

// UserDirectory is an in-memory implementation of app.UserDirectory.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]*UserStats
}

func NewUserDirectory(usernames ...string) *UserDirectory {
	d := &UserDirectory{users: make(map[string]*UserStats)}
	for _, name := range usernames {
		d.users[name] = &UserStats{}
	}
	return d
}

func (d *UserDirectory) Add(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[username]; !ok {
		d.users[username] = &UserStats{}
	}
}

func (d *UserDirectory) Exists(_ context.Context, username string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[username]
	return ok, nil
}

func (d *UserDirectory) RecordWin(_ context.Context, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats, ok := d.users[username]
	if !ok {
		return domain.ErrUserNotFound
	}
	stats.Wins++
	return nil
}

func (d *UserDirectory) RecordLoss(_ context.Context, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats, ok := d.users[username]
	if !ok {
		return domain.ErrUserNotFound
	}
	stats.Losses++
	return nil
}

// Stats returns a copy of the user's counters, for assertions in tests.
func (d *UserDirectory) Stats(username string) UserStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if stats, ok := d.users[username]; ok {
		return *stats
	}
	return UserStats{}
}
