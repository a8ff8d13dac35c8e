package accounts

import (
	"context"
	"strings"
	"sync"
)

const (
	usersByLoginCache = "usersByLogin"
	usersByEmailCache = "usersByEmail"
)

// UserCache caches users by login and email. Entries are evicted by the
// store whenever a user is saved or deleted.
type UserCache interface {
	Get(ctx context.Context, key string) (*User, bool)
	Set(ctx context.Context, key string, user *User)
	Evict(ctx context.Context, keys ...string)
}

// LoginCacheKey returns the cache key of a login lookup. Keys are
// normalized the same way stored logins are.
func LoginCacheKey(login string) string {
	return usersByLoginCache + ":" + normalizeIdentifier(login)
}

// EmailCacheKey returns the cache key of an email lookup
func EmailCacheKey(email string) string {
	return usersByEmailCache + ":" + normalizeIdentifier(email)
}

func normalizeIdentifier(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func userCacheKeys(u *User) []string {
	if u == nil {
		return nil
	}
	return []string{LoginCacheKey(u.Login), EmailCacheKey(u.Email)}
}

// MemoryUserCache is an in-process UserCache
type MemoryUserCache struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryUserCache returns an empty cache
func NewMemoryUserCache() *MemoryUserCache {
	return &MemoryUserCache{users: map[string]User{}}
}

// Get implements UserCache
func (c *MemoryUserCache) Get(_ context.Context, key string) (*User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[key]
	if !ok {
		return nil, false
	}
	return cloneUser(&u), true
}

// Set implements UserCache
func (c *MemoryUserCache) Set(_ context.Context, key string, user *User) {
	if user == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[key] = *cloneUser(user)
}

// Evict implements UserCache
func (c *MemoryUserCache) Evict(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.users, k)
	}
}

// Len returns the number of cached entries
func (c *MemoryUserCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

func cloneUser(u *User) *User {
	cp := *u
	if u.Authorities != nil {
		cp.Authorities = append([]string(nil), u.Authorities...)
	}
	if u.ActivationKey != nil {
		k := *u.ActivationKey
		cp.ActivationKey = &k
	}
	if u.ResetKey != nil {
		k := *u.ResetKey
		cp.ResetKey = &k
	}
	if u.ResetDate != nil {
		d := *u.ResetDate
		cp.ResetDate = &d
	}
	return &cp
}

type noopUserCache struct{}

func (noopUserCache) Get(context.Context, string) (*User, bool) { return nil, false }
func (noopUserCache) Set(context.Context, string, *User)        {}
func (noopUserCache) Evict(context.Context, ...string)          {}
