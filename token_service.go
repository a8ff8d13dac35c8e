package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenIssuerOption customizes the TokenIssuer
type TokenIssuerOption func(*TokenIssuer)

// WithTokenClock sets the clock used for expirations
func WithTokenClock(clock Clock) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if clock != nil {
			ti.now = clock
		}
	}
}

// WithTokenPolicy sets lifetimes and renewal windows
func WithTokenPolicy(p Policy) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		ti.policy = p.withDefaults()
	}
}

// WithTokenActivitySink sets the sink for token events
func WithTokenActivitySink(sink ActivitySink) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		ti.activity = normalizeActivitySink(sink)
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if logger != nil {
			ti.logger = logger
		}
	}
}

// TokenIssuer creates, renews, expires and validates API tokens.
// Methods taking a bun.IDB run inside the caller's transaction.
type TokenIssuer struct {
	store    CredentialStore
	now      Clock
	policy   Policy
	activity ActivitySink
	logger   Logger
}

// NewTokenIssuer returns a TokenIssuer backed by store
func NewTokenIssuer(store CredentialStore, opts ...TokenIssuerOption) *TokenIssuer {
	ti := &TokenIssuer{
		store:    store,
		now:      systemClock,
		policy:   DefaultPolicy(),
		activity: noopActivitySink{},
		logger:   defLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ti)
		}
	}
	return ti
}

// IssueIfAbsent creates a token for user unless one already exists. It
// returns nil when the user already holds a token.
func (ti *TokenIssuer) IssueIfAbsent(ctx context.Context, tx bun.IDB, user *User, validDays *int, renewable *bool) (*Token, error) {
	existing, err := ti.store.Tokens().ListByUserTx(ctx, tx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}
	return ti.create(ctx, tx, user, ti.expirationFor(validDays), boolOr(renewable, true))
}

// IssueOrOverwrite creates a token when the user has none, otherwise it
// rewrites every token the user holds with the new expiration and renewable
// flag.
func (ti *TokenIssuer) IssueOrOverwrite(ctx context.Context, tx bun.IDB, user *User, validDays int, renewable bool) ([]*Token, error) {
	existing, err := ti.store.Tokens().ListByUserTx(ctx, tx, user.ID)
	if err != nil {
		return nil, err
	}

	expiration := ti.expirationFor(&validDays)
	if len(existing) == 0 {
		token, err := ti.create(ctx, tx, user, expiration, renewable)
		if err != nil {
			return nil, err
		}
		return []*Token{token}, nil
	}

	for _, token := range existing {
		token.Expiration = expiration
		token.Renewable = renewable
		if _, err := ti.store.Tokens().SaveTx(ctx, tx, token); err != nil {
			return nil, err
		}
	}
	ti.record(ctx, ActivityEventTokenExtended, user, map[string]any{
		"tokens":     len(existing),
		"renewable":  renewable,
		"expiration": expiration,
	})
	return existing, nil
}

// CreateForCaller issues a token for the user behind login. A user may
// hold a single token; the check is a read before the insert.
func (ti *TokenIssuer) CreateForCaller(ctx context.Context, login string, expiration *time.Time, renewable *bool) (*Token, error) {
	var token *Token
	err := ti.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := ti.store.Users().GetByLoginTx(ctx, tx, login)
		if err != nil {
			return err
		}
		existing, err := ti.store.Tokens().ListByUserTx(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrTooManyTokens
		}

		exp := ti.now().Add(ti.policy.DefaultTokenLifetime)
		if expiration != nil {
			exp = expiration.UTC()
		}
		token, err = ti.create(ctx, tx, user, exp, boolOr(renewable, true))
		return err
	})
	if err != nil {
		return nil, richOrInternal(err, "failed to create token")
	}
	return token, nil
}

// Expire ends a token immediately. Only the owner can expire a token.
func (ti *TokenIssuer) Expire(ctx context.Context, login string, value uuid.UUID) (*Token, error) {
	var token *Token
	err := ti.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := ti.store.Users().GetByLoginTx(ctx, tx, login)
		if err != nil {
			return err
		}
		token, err = ti.store.Tokens().GetByValueTx(ctx, tx, value)
		if err != nil {
			return err
		}
		if token.UserID != user.ID {
			return ErrForbidden
		}
		token.Expiration = ti.now()
		if _, err := ti.store.Tokens().SaveTx(ctx, tx, token); err != nil {
			return err
		}
		ti.record(ctx, ActivityEventTokenExpired, user, map[string]any{"token_id": token.ID.String()})
		return nil
	})
	if err != nil {
		return nil, richOrInternal(err, "failed to expire token")
	}
	return token, nil
}

// ExtendForReverification pushes every token of user one renewal window
// forward, counted from the later of its expiration and now. Any
// non-renewable token aborts the extension.
func (ti *TokenIssuer) ExtendForReverification(ctx context.Context, tx bun.IDB, user *User) ([]*Token, error) {
	existing, err := ti.store.Tokens().ListByUserTx(ctx, tx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, token := range existing {
		if !token.Renewable {
			return nil, ErrAccountExpiredCannotExtend
		}
	}

	now := ti.now()
	window := ti.policy.RenewalWindow
	for _, token := range existing {
		extended := token.Expiration.Add(window)
		if floor := now.Add(window); floor.After(extended) {
			extended = floor
		}
		token.Expiration = extended
		if _, err := ti.store.Tokens().SaveTx(ctx, tx, token); err != nil {
			return nil, err
		}
	}
	if len(existing) > 0 {
		ti.record(ctx, ActivityEventTokenExtended, user, map[string]any{"tokens": len(existing)})
	}
	return existing, nil
}

// ConvertToRegular makes every token of user renewable and valid for the
// regular token window.
func (ti *TokenIssuer) ConvertToRegular(ctx context.Context, tx bun.IDB, user *User) ([]*Token, error) {
	existing, err := ti.store.Tokens().ListByUserTx(ctx, tx, user.ID)
	if err != nil {
		return nil, err
	}
	expiration := ti.now().Add(ti.policy.RegularTokenWindow)
	for _, token := range existing {
		token.Renewable = true
		token.Expiration = expiration
		if _, err := ti.store.Tokens().SaveTx(ctx, tx, token); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// HasNonRenewableTx reports whether user holds a trial scoped token
func (ti *TokenIssuer) HasNonRenewableTx(ctx context.Context, tx bun.IDB, user *User) (bool, error) {
	existing, err := ti.store.Tokens().ListByUserTx(ctx, tx, user.ID)
	if err != nil {
		return false, err
	}
	for _, token := range existing {
		if !token.Renewable {
			return true, nil
		}
	}
	return false, nil
}

// Validate returns the token for value if it exists and has not expired
func (ti *TokenIssuer) Validate(ctx context.Context, value uuid.UUID) (*Token, error) {
	token, err := ti.lookup(ctx, value)
	if err != nil {
		return nil, err
	}
	if token.IsExpired(ti.now()) {
		return nil, ErrTokenExpired
	}
	return token, nil
}

// Lookup returns the token for value regardless of its expiration
func (ti *TokenIssuer) Lookup(ctx context.Context, value uuid.UUID) (*Token, error) {
	return ti.lookup(ctx, value)
}

func (ti *TokenIssuer) lookup(ctx context.Context, value uuid.UUID) (*Token, error) {
	var token *Token
	err := ti.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		token, err = ti.store.Tokens().GetByValueTx(ctx, tx, value)
		return err
	})
	if err != nil {
		return nil, richOrInternal(err, "failed to get token")
	}
	return token, nil
}

// RecordUsage adds n requests to the usage counter of a token
func (ti *TokenIssuer) RecordUsage(ctx context.Context, value uuid.UUID, n int) error {
	if n <= 0 {
		return nil
	}
	err := ti.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return ti.store.Tokens().AddUsageTx(ctx, tx, value, n)
	})
	return richOrInternal(err, "failed to record token usage")
}

// ListForUser returns every token of the user behind login
func (ti *TokenIssuer) ListForUser(ctx context.Context, login string) ([]*Token, error) {
	var out []*Token
	err := ti.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := ti.store.Users().GetByLoginTx(ctx, tx, login)
		if err != nil {
			return err
		}
		out, err = ti.store.Tokens().ListByUserTx(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, richOrInternal(err, "failed to list tokens")
	}
	return out, nil
}

// ValidForUser returns the unexpired tokens of the user behind login
func (ti *TokenIssuer) ValidForUser(ctx context.Context, login string) ([]*Token, error) {
	all, err := ti.ListForUser(ctx, login)
	if err != nil {
		return nil, err
	}
	now := ti.now()
	valid := make([]*Token, 0, len(all))
	for _, token := range all {
		if !token.IsExpired(now) {
			valid = append(valid, token)
		}
	}
	return valid, nil
}

// ExpiringBefore returns every token whose expiration is before t
func (ti *TokenIssuer) ExpiringBefore(ctx context.Context, t time.Time) ([]*Token, error) {
	var out []*Token
	err := ti.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = ti.store.Tokens().ListExpiringBeforeTx(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, richOrInternal(err, "failed to list tokens")
	}
	return out, nil
}

func (ti *TokenIssuer) create(ctx context.Context, tx bun.IDB, user *User, expiration time.Time, renewable bool) (*Token, error) {
	token, err := ti.store.Tokens().CreateTx(ctx, tx, &Token{
		UserID:     user.ID,
		Expiration: expiration,
		Renewable:  renewable,
		CreatedAt:  ti.now(),
	})
	if err != nil {
		return nil, err
	}
	ti.record(ctx, ActivityEventTokenIssued, user, map[string]any{
		"token_id":  token.ID.String(),
		"renewable": renewable,
	})
	return token, nil
}

func (ti *TokenIssuer) expirationFor(validDays *int) time.Time {
	if validDays == nil || *validDays <= 0 {
		return ti.now().Add(ti.policy.DefaultTokenLifetime)
	}
	return ti.now().AddDate(0, 0, *validDays)
}

func (ti *TokenIssuer) record(ctx context.Context, kind ActivityEventType, user *User, meta map[string]any) {
	event := ActivityEvent{
		EventType:  kind,
		Actor:      userActor(user),
		UserID:     user.ID.String(),
		Metadata:   meta,
		OccurredAt: ti.now(),
	}
	onCommit(ctx, func(ctx context.Context) {
		if err := ti.activity.Record(ctx, event); err != nil {
			ti.logger.Warn("activity sink failed", "event", kind, "error", err)
		}
	})
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
