package accounts

import (
	"context"
	"strings"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Option customizes the Lifecycle
type Option func(*Lifecycle)

// WithClock sets the clock used for every timestamp and expiration
func WithClock(clock Clock) Option {
	return func(l *Lifecycle) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithKeyGenerator sets the generator of activation/reset keys and passwords
func WithKeyGenerator(keys KeyGenerator) Option {
	return func(l *Lifecycle) {
		if keys != nil {
			l.keys = keys
		}
	}
}

// WithPasswordHasher sets the password hasher
func WithPasswordHasher(h PasswordHasher) Option {
	return func(l *Lifecycle) {
		if h != nil {
			l.hasher = h
		}
	}
}

// WithNotifier sets the notifier used by the default async dispatcher
func WithNotifier(n Notifier) Option {
	return func(l *Lifecycle) {
		if n != nil {
			l.notifier = n
		}
	}
}

// WithNoticeDispatcher replaces the post-commit notice dispatcher
func WithNoticeDispatcher(d NoticeDispatcher) Option {
	return func(l *Lifecycle) {
		if d != nil {
			l.dispatcher = d
		}
	}
}

// WithPolicy sets approval domains, windows and trial settings
func WithPolicy(p Policy) Option {
	return func(l *Lifecycle) {
		l.policy = p.withDefaults()
	}
}

// WithLogger sets the logger
func WithLogger(logger Logger) Option {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithActivitySink sets the sink receiving lifecycle events
func WithActivitySink(sink ActivitySink) Option {
	return func(l *Lifecycle) {
		l.activity = normalizeActivitySink(sink)
	}
}

// WithHashidUserIDs derives user ids from the registration email
func WithHashidUserIDs(enabled bool) Option {
	return func(l *Lifecycle) {
		l.hashidIDs = enabled
	}
}

// WithTokenIssuer replaces the token issuer built from the lifecycle settings
func WithTokenIssuer(ti *TokenIssuer) Option {
	return func(l *Lifecycle) {
		if ti != nil {
			l.tokens = ti
		}
	}
}

// WithStateMachine replaces the account state machine
func WithStateMachine(sm AccountStateMachine) Option {
	return func(l *Lifecycle) {
		if sm != nil {
			l.states = sm
		}
	}
}

// Lifecycle runs the account operations. Each operation is a single
// transaction; notices and activity events are released after commit.
type Lifecycle struct {
	store      CredentialStore
	tokens     *TokenIssuer
	states     AccountStateMachine
	now        Clock
	keys       KeyGenerator
	hasher     PasswordHasher
	notifier   Notifier
	dispatcher NoticeDispatcher
	policy     Policy
	logger     Logger
	activity   ActivitySink
	hashidIDs  bool
}

// NewLifecycle builds the lifecycle engine on top of store
func NewLifecycle(store CredentialStore, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		store:    store,
		now:      systemClock,
		keys:     ShortUUIDKeys{},
		hasher:   NewBcryptHasher(0),
		policy:   DefaultPolicy(),
		logger:   defLogger(),
		activity: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	if l.notifier == nil {
		l.notifier = LogNotifier{Logger: l.logger}
	}
	if l.dispatcher == nil {
		l.dispatcher = NewAsyncDispatcher(l.notifier, l.logger)
	}
	if l.tokens == nil {
		l.tokens = NewTokenIssuer(store,
			WithTokenClock(l.now),
			WithTokenPolicy(l.policy),
			WithTokenActivitySink(l.activity),
			WithTokenLogger(l.logger),
		)
	}
	if l.states == nil {
		l.states = NewAccountStateMachine(
			WithStateMachineClock(l.now),
			WithStateMachineActivitySink(l.activity),
			WithStateMachineLogger(l.logger),
		)
	}
	return l
}

// Tokens returns the token issuer used by the lifecycle
func (l *Lifecycle) Tokens() *TokenIssuer {
	return l.tokens
}

// Policy returns the effective policy
func (l *Lifecycle) Policy() Policy {
	return l.policy
}

// txOutbox gathers what an operation emits before commit
type txOutbox struct {
	notices []Notice
	events  []ActivityEvent
}

func (o *txOutbox) notify(n Notice) {
	o.notices = append(o.notices, n)
}

func (o *txOutbox) record(e ActivityEvent) {
	o.events = append(o.events, e)
}

func (l *Lifecycle) run(ctx context.Context, msg string, fn func(ctx context.Context, tx bun.Tx, ob *txOutbox) error) error {
	ob := &txOutbox{}
	err := l.store.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx, ob)
	})
	if err != nil {
		return richOrInternal(err, msg)
	}

	for _, event := range ob.events {
		if event.OccurredAt.IsZero() {
			event.OccurredAt = l.now()
		}
		if err := l.activity.Record(ctx, event); err != nil {
			l.logger.Warn("activity sink failed", "event", event.EventType, "error", err)
		}
	}
	l.dispatcher.Dispatch(ctx, ob.notices)
	return nil
}

// newUserID returns a random id, or one derived from email when hashid
// ids are enabled.
func (l *Lifecycle) newUserID(email string) uuid.UUID {
	if l.hashidIDs {
		id, err := hashid.NewUUID(strings.ToLower(strings.TrimSpace(email)))
		if err == nil {
			return id
		}
		l.logger.Warn("hashid user id failed", "error", err)
	}
	return uuid.New()
}

func (l *Lifecycle) langOr(lang string) string {
	if lang = strings.TrimSpace(lang); lang != "" {
		return lang
	}
	return l.policy.DefaultLanguage
}

func newEvent(kind ActivityEventType, actor ActorRef, user *User, meta map[string]any) ActivityEvent {
	e := ActivityEvent{
		EventType: kind,
		Actor:     actor,
		Metadata:  meta,
	}
	if user != nil {
		e.UserID = user.ID.String()
		e.ToState = StateOf(user)
	}
	return e
}
