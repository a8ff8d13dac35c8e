package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// AccountState is derived from the activated flag and the activation key
type AccountState string

const (
	StatePendingVerification   AccountState = "pending_verification"
	StateAwaitingApproval      AccountState = "awaiting_approval"
	StateActive                AccountState = "active"
	StateReverificationPending AccountState = "reverification_pending"
)

// StateOf derives the lifecycle state of a user
func StateOf(u *User) AccountState {
	if u == nil {
		return ""
	}
	hasKey := u.ActivationKey != nil
	switch {
	case !u.Activated && hasKey:
		return StatePendingVerification
	case !u.Activated:
		return StateAwaitingApproval
	case hasKey:
		return StateReverificationPending
	default:
		return StateActive
	}
}

// activatedState is where a user lands when flagged activated without
// touching an outstanding activation key.
func activatedState(u *User) AccountState {
	if u != nil && u.ActivationKey != nil {
		return StateReverificationPending
	}
	return StateActive
}

// deactivatedState mirrors activatedState for the unactivated side
func deactivatedState(u *User) AccountState {
	if u != nil && u.ActivationKey != nil {
		return StatePendingVerification
	}
	return StateAwaitingApproval
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks
type TransitionContext struct {
	Actor ActorRef
	User  *User
	From  AccountState
	To    AccountState
	Meta  TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after the user was mutated.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes a single transition
type TransitionOption func(*transitionOptions)

// AccountStateMachine moves users between lifecycle states. It mutates the
// in-memory user only, the caller persists it inside its transaction.
type AccountStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, user *User, target AccountState, opts ...TransitionOption) (*User, error)
	CurrentState(user *User) AccountState
}

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock
func WithStateMachineClock(clock Clock) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish state changes.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *accountStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithForceTransition bypasses the transition graph
func WithForceTransition() TransitionOption {
	return func(opts *transitionOptions) {
		opts.force = true
	}
}

// WithActivationKey sets the key issued when entering a verification state.
// It also replaces the key of a user already waiting on one.
func WithActivationKey(key string) TransitionOption {
	return func(opts *transitionOptions) {
		if key != "" {
			opts.activationKey = &key
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the user is mutated.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the user is mutated.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewAccountStateMachine returns the default state machine
func NewAccountStateMachine(opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		transitions: map[AccountState]map[AccountState]struct{}{
			StatePendingVerification: {
				StateAwaitingApproval:      {},
				StateActive:                {},
				StateReverificationPending: {},
			},
			StateAwaitingApproval: {
				StateActive:              {},
				StatePendingVerification: {},
			},
			StateActive: {
				StateReverificationPending: {},
				StateAwaitingApproval:      {},
			},
			StateReverificationPending: {
				StateActive:              {},
				StatePendingVerification: {},
			},
		},
		now:          systemClock,
		activitySink: noopActivitySink{},
		logger:       defLogger(),
		hookErrorHandler: func(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
			return goerrors.Wrap(err, goerrors.CategoryOperation, string(phase)+" hook failed").
				WithMetadata(map[string]any{
					"user_id": tc.User.ID.String(),
					"from":    tc.From,
					"to":      tc.To,
				})
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	transitions      map[AccountState]map[AccountState]struct{}
	now              Clock
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata      TransitionMetadata
	force         bool
	activationKey *string
	beforeHooks   []TransitionHook
	afterHooks    []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}
	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *accountStateMachine) Transition(ctx context.Context, actor ActorRef, user *User, target AccountState, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "user is nil",
		})
	}
	if target == "" {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "target state is empty",
		})
	}

	options := sm.buildTransitionOptions(opts...)
	from := StateOf(user)

	if from == target {
		// re-issuing a key keeps the state but rotates the key
		if options.activationKey != nil && needsActivationKey(target) {
			user.ActivationKey = options.activationKey
			user.UpdatedAt = sm.now()
		}
		return user, nil
	}

	if !options.force && !sm.canTransition(from, target) {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	if needsActivationKey(target) && options.activationKey == nil && user.ActivationKey == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from":   from,
			"to":     target,
			"reason": "activation key required",
		})
	}

	tc := TransitionContext{
		Actor: actor,
		User:  user,
		From:  from,
		To:    target,
		Meta:  options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	sm.apply(user, target, options)

	if err := sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventStateChanged,
		Actor:     actor,
		UserID:    user.ID.String(),
		FromState: from,
		ToState:   target,
		Metadata:  transitionMetadata(tc.Meta),
	})

	return user, nil
}

func (sm *accountStateMachine) CurrentState(user *User) AccountState {
	return StateOf(user)
}

func (sm *accountStateMachine) apply(user *User, target AccountState, opts *transitionOptions) {
	switch target {
	case StatePendingVerification:
		user.Activated = false
	case StateAwaitingApproval:
		user.Activated = false
		user.ActivationKey = nil
	case StateActive:
		user.Activated = true
		user.ActivationKey = nil
	case StateReverificationPending:
		user.Activated = true
	}
	if needsActivationKey(target) && opts.activationKey != nil {
		user.ActivationKey = opts.activationKey
	}
	user.UpdatedAt = sm.now()
}

func needsActivationKey(s AccountState) bool {
	return s == StatePendingVerification || s == StateReverificationPending
}

func (sm *accountStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, tc); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, tc)
		}
	}
	return nil
}

func (sm *accountStateMachine) canTransition(from, to AccountState) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *accountStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *accountStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}
	onCommit(ctx, func(ctx context.Context) {
		if err := sm.activitySink.Record(ctx, event); err != nil {
			sm.logger.Warn("activity sink failed", "event", event.EventType, "error", err)
		}
	})
}

func transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta.Metadata)+1)
	for k, v := range meta.Metadata {
		out[k] = v
	}
	if meta.Reason != "" {
		out["reason"] = meta.Reason
	}
	return out
}
