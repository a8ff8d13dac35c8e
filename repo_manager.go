package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// CredentialStore exposes all repositories
type CredentialStore interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Details() Details
	Tokens() Tokens
}

// StoreOption customizes the credential store
type StoreOption func(*store)

// WithUserCache sets the cache backing login and email lookups
func WithUserCache(c UserCache) StoreOption {
	return func(s *store) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithStoreLogger sets the store logger
func WithStoreLogger(l Logger) StoreOption {
	return func(s *store) {
		if l != nil {
			s.logger = l
		}
	}
}

type store struct {
	db      *bun.DB
	cache   UserCache
	inv     *invalidator
	logger  Logger
	users   Users
	details Details
	tokens  Tokens
}

// NewCredentialStore builds the bun backed store
func NewCredentialStore(db *bun.DB, opts ...StoreOption) CredentialStore {
	s := &store{
		db:     db,
		cache:  noopUserCache{},
		logger: defLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.inv = newInvalidator(s.cache)
	s.users = newUsersRepository(db, s.inv)
	s.details = NewDetailsRepository(db)
	s.tokens = NewTokensRepository(db)
	return s
}

func (s *store) Validate() error {
	if s.users == nil {
		return errors.New("repository users should be initialized")
	}
	if s.details == nil {
		return errors.New("repository details should be initialized")
	}
	if s.tokens == nil {
		return errors.New("repository tokens should be initialized")
	}
	return nil
}

func (s *store) MustValidate() {
	if err := s.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx runs f in a transaction. Cache evictions registered while f runs
// are applied once the transaction finishes, before RunInTx returns.
// Callbacks registered with onCommit run only when the transaction
// committed.
func (s *store) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	effects := &txEffects{}
	err := s.db.RunInTx(context.WithValue(ctx, txEffectsKey{}, effects), opts, f)

	keys, committed := effects.drain()
	after := context.WithoutCancel(ctx)
	s.inv.flush(after, keys...)
	if err == nil {
		for _, fn := range committed {
			fn(after)
		}
	}
	return err
}

func (s *store) Users() Users     { return s.users }
func (s *store) Details() Details { return s.details }
func (s *store) Tokens() Tokens   { return s.tokens }

type txEffectsKey struct{}

type txEffects struct {
	mu       sync.Mutex
	keys     []string
	onCommit []func(context.Context)
}

func (e *txEffects) add(keys ...string) {
	e.mu.Lock()
	e.keys = append(e.keys, keys...)
	e.mu.Unlock()
}

func (e *txEffects) deferCommit(fn func(context.Context)) {
	e.mu.Lock()
	e.onCommit = append(e.onCommit, fn)
	e.mu.Unlock()
}

func (e *txEffects) drain() ([]string, []func(context.Context)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys, fns := e.keys, e.onCommit
	e.keys, e.onCommit = nil, nil
	return keys, fns
}

// onCommit runs fn after the transaction carried by ctx commits, or right
// away when ctx carries none. It is dropped on rollback.
func onCommit(ctx context.Context, fn func(context.Context)) {
	if effects, ok := ctx.Value(txEffectsKey{}).(*txEffects); ok {
		effects.deferCommit(fn)
		return
	}
	fn(ctx)
}

// invalidator defers evictions to the end of the surrounding transaction
// when there is one. Every flush bumps the generation so cache fills that
// raced with a write can be discarded.
type invalidator struct {
	mu    sync.Mutex
	gen   uint64
	cache UserCache
}

func newInvalidator(cache UserCache) *invalidator {
	if cache == nil {
		cache = noopUserCache{}
	}
	return &invalidator{cache: cache}
}

func (i *invalidator) evict(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if effects, ok := ctx.Value(txEffectsKey{}).(*txEffects); ok {
		effects.add(keys...)
		return
	}
	i.flush(ctx, keys...)
}

func (i *invalidator) flush(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.gen++
	i.cache.Evict(ctx, keys...)
}

func (i *invalidator) generation() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.gen
}

// setIfFresh caches user unless an eviction ran since gen was read
func (i *invalidator) setIfFresh(ctx context.Context, key string, user *User, gen uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.gen != gen {
		return
	}
	i.cache.Set(ctx, key, user)
}

func notFoundOr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return ErrNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
