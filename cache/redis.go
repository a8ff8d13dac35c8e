// Package cache provides a Redis backed accounts.UserCache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a user stays cached when no TTL is configured
const DefaultTTL = 10 * time.Minute

// Client is the subset of redis.Cmdable the cache needs
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Options configure the Redis connection
type Options struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
}

// Redis caches users as JSON documents. Lookups that fail are treated as
// misses so the store falls back to the database.
type Redis struct {
	client Client
	prefix string
	ttl    time.Duration
	logger accounts.Logger
}

// Option customizes the Redis cache
type Option func(*Redis)

// WithPrefix namespaces every key
func WithPrefix(prefix string) Option {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithTTL sets the expiration of cached entries
func WithTTL(ttl time.Duration) Option {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for cache failures
func WithLogger(logger accounts.Logger) Option {
	return func(r *Redis) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Dial connects to Redis and verifies the connection
func Dial(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   opts.MaxRetries,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// New returns a UserCache on top of client
func New(client Client, opts ...Option) *Redis {
	r := &Redis{
		client: client,
		prefix: "accounts:",
		ttl:    DefaultTTL,
		logger: accounts.NewSlogLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

var _ accounts.UserCache = (*Redis)(nil)

// Get implements accounts.UserCache
func (r *Redis) Get(ctx context.Context, key string) (*accounts.User, bool) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("user cache get failed", "key", key, "error", err)
		return nil, false
	}

	var rec record
	if err := json.Unmarshal(val, &rec); err != nil {
		r.logger.Warn("user cache entry is corrupt", "key", key, "error", err)
		return nil, false
	}
	return rec.user(), true
}

// Set implements accounts.UserCache
func (r *Redis) Set(ctx context.Context, key string, user *accounts.User) {
	if user == nil {
		return
	}
	data, err := json.Marshal(fromUser(user))
	if err != nil {
		r.logger.Warn("user cache encode failed", "key", key, "error", err)
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("user cache set failed", "key", key, "error", err)
	}
}

// Evict implements accounts.UserCache
func (r *Redis) Evict(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.prefix + k
	}
	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		r.logger.Error("user cache evict failed", "keys", keys, "error", err)
	}
}

// record carries the fields accounts.User hides from JSON
type record struct {
	ID            uuid.UUID            `json:"id"`
	Login         string               `json:"login"`
	Email         string               `json:"email"`
	PasswordHash  string               `json:"password_hash"`
	FirstName     string               `json:"first_name,omitempty"`
	LastName      string               `json:"last_name,omitempty"`
	ImageURL      string               `json:"image_url,omitempty"`
	LangKey       string               `json:"lang_key"`
	Activated     bool                 `json:"activated"`
	ActivationKey *string              `json:"activation_key,omitempty"`
	ResetKey      *string              `json:"reset_key,omitempty"`
	ResetDate     *time.Time           `json:"reset_date,omitempty"`
	Authorities   []string             `json:"authorities"`
	LicenseType   accounts.LicenseType `json:"license_type"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func fromUser(u *accounts.User) record {
	return record{
		ID:            u.ID,
		Login:         u.Login,
		Email:         u.Email,
		PasswordHash:  u.PasswordHash,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		ImageURL:      u.ImageURL,
		LangKey:       u.LangKey,
		Activated:     u.Activated,
		ActivationKey: u.ActivationKey,
		ResetKey:      u.ResetKey,
		ResetDate:     u.ResetDate,
		Authorities:   u.Authorities,
		LicenseType:   u.LicenseType,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func (r record) user() *accounts.User {
	return &accounts.User{
		ID:            r.ID,
		Login:         r.Login,
		Email:         r.Email,
		PasswordHash:  r.PasswordHash,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		ImageURL:      r.ImageURL,
		LangKey:       r.LangKey,
		Activated:     r.Activated,
		ActivationKey: r.ActivationKey,
		ResetKey:      r.ResetKey,
		ResetDate:     r.ResetDate,
		Authorities:   r.Authorities,
		LicenseType:   r.LicenseType,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
