package robot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/keepmind9/wirebot/internal/store"
	"github.com/keepmind9/wirebot/pkg/constants"
)

const brainUsersKey = "users"

// BrainStore persists brain data
type BrainStore interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
}

// Brain is the robot's user registry. It is safe for concurrent use.
type Brain struct {
	mu    sync.RWMutex
	users map[string]*User
	store BrainStore
	dirty bool
}

// NewBrain creates a brain. store may be nil for a memory-only brain.
func NewBrain(store BrainStore) *Brain {
	return &Brain{
		users: make(map[string]*User),
		store: store,
	}
}

// User returns the user with the given id
func (b *Brain) User(id string) (*User, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	user, ok := b.users[id]
	return user, ok
}

// UserForID returns the user with the given id. An unknown id creates a new
// user from attrs (which may be nil). Known users are returned unchanged.
func (b *Brain) UserForID(id string, attrs *User) *User {
	b.mu.Lock()
	defer b.mu.Unlock()

	if user, ok := b.users[id]; ok {
		return user
	}

	user := &User{ID: id, Name: id}
	if attrs != nil {
		if attrs.Name != "" {
			user.Name = attrs.Name
		}
		user.Alias = attrs.Alias
		user.Room = attrs.Room
	}
	b.users[id] = user
	b.dirty = true
	return user
}

// UserForName finds a user by name, ignoring case
func (b *Brain) UserForName(name string) *User {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, user := range b.users {
		if strings.EqualFold(user.Name, name) {
			return user
		}
	}
	return nil
}

// Users returns all users ordered by id
func (b *Brain) Users() []*User {
	b.mu.RLock()
	defer b.mu.RUnlock()

	users := make([]*User, 0, len(b.users))
	for _, user := range b.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// Reset forgets every user
func (b *Brain) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users = make(map[string]*User)
	b.dirty = true
}

// Load merges persisted users into the brain
func (b *Brain) Load(ctx context.Context) error {
	if b.store == nil {
		return nil
	}

	data, err := b.store.Get(ctx, constants.BrainNamespace, brainUsersKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load brain: %w", err)
	}

	var users map[string]*User
	if err := json.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("failed to decode brain: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, user := range users {
		if _, exists := b.users[id]; !exists && user != nil {
			b.users[id] = user
		}
	}
	return nil
}

// Save writes the users to the store if anything changed since the last save
func (b *Brain) Save(ctx context.Context) error {
	if b.store == nil {
		return nil
	}

	b.mu.Lock()
	if !b.dirty {
		b.mu.Unlock()
		return nil
	}
	data, err := json.Marshal(b.users)
	b.dirty = false
	b.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to encode brain: %w", err)
	}
	if err := b.store.Put(ctx, constants.BrainNamespace, brainUsersKey, data); err != nil {
		b.mu.Lock()
		b.dirty = true
		b.mu.Unlock()
		return fmt.Errorf("failed to save brain: %w", err)
	}
	return nil
}
