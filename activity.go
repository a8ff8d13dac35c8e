package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventStateChanged           ActivityEventType = "account.state.changed"
	ActivityEventRegistered             ActivityEventType = "account.registered"
	ActivityEventActivated              ActivityEventType = "account.activated"
	ActivityEventReverified             ActivityEventType = "account.reverified"
	ActivityEventCreated                ActivityEventType = "account.created"
	ActivityEventUpdated                ActivityEventType = "account.updated"
	ActivityEventProfileSaved           ActivityEventType = "account.profile.saved"
	ActivityEventDeleted                ActivityEventType = "account.deleted"
	ActivityEventSwept                  ActivityEventType = "account.swept"
	ActivityEventPasswordResetRequested ActivityEventType = "account.password.reset_requested"
	ActivityEventPasswordReset          ActivityEventType = "account.password.reset"
	ActivityEventPasswordChanged        ActivityEventType = "account.password.changed"
	ActivityEventTrialInitiated         ActivityEventType = "account.trial.initiated"
	ActivityEventTrialActivated         ActivityEventType = "account.trial.activated"
	ActivityEventTokenIssued            ActivityEventType = "token.issued"
	ActivityEventTokenExpired           ActivityEventType = "token.expired"
	ActivityEventTokenExtended          ActivityEventType = "token.extended"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromState  AccountState
	ToState    AccountState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans events out to every sink, returning the first failure
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
