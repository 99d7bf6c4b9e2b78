package memory

import (
	"context"
	"sync"

	"icebreaker-bingo/internal/domain"
)

// UserDirectory is a map-backed app.UserDirectory for tests and demos.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserDirectory(users ...domain.User) *UserDirectory {
	d := &UserDirectory{users: make(map[string]domain.User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *UserDirectory) GetUser(_ context.Context, userID string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if user, ok := d.users[userID]; ok {
		return user, nil
	}
	return domain.User{}, domain.ErrUserNotFound
}

// Put adds or replaces a user.
func (d *UserDirectory) Put(user domain.User) {
	d.mu.Lock()
	d.users[user.ID] = user
	d.mu.Unlock()
}
