// Package activitymap flattens account activity events into a
// transport-agnostic record for audit feeds and message brokers.
package activitymap

import (
	"strings"
	"time"

	"github.com/goliatone/go-accounts"
)

const (
	MetadataKeyActorType = "actor_type"
	MetadataKeyFromState = "from_state"
	MetadataKeyToState   = "to_state"
)

const (
	ObjectAccount = "account"
	ObjectToken   = "token"
)

const (
	defaultChannel = "accounts"
	defaultActorID = "system"
)

// Normalized is the flattened activity record
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes Normalize
type Option func(*options)

type options struct {
	channel       string
	actorFallback string
	objectID      func(accounts.ActivityEvent) string
	now           func() time.Time
}

// Normalize converts event into a Normalized record. The object type is
// derived from the verb prefix and defaults to account.
func Normalize(event accounts.ActivityEvent, opts ...Option) Normalized {
	o := options{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	objectID := strings.TrimSpace(event.UserID)
	if o.objectID != nil {
		objectID = strings.TrimSpace(o.objectID(event))
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.now()
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Actor.ID), strings.TrimSpace(event.UserID), o.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: objectType(event.EventType),
		ObjectID:   objectID,
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

// WithChannel overrides the channel of every record
func WithChannel(channel string) Option {
	return func(o *options) {
		if channel = strings.TrimSpace(channel); channel != "" {
			o.channel = channel
		}
	}
}

// WithActorFallback sets the actor used when neither actor nor user is known
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			o.actorFallback = actorID
		}
	}
}

// WithObjectIDResolver replaces the user id as object id
func WithObjectIDResolver(fn func(accounts.ActivityEvent) string) Option {
	return func(o *options) {
		o.objectID = fn
	}
}

// WithClock sets the time source used for events without a timestamp
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func objectType(kind accounts.ActivityEventType) string {
	if strings.HasPrefix(string(kind), ObjectToken+".") {
		return ObjectToken
	}
	return ObjectAccount
}

func metadata(event accounts.ActivityEvent) map[string]any {
	var out map[string]any
	set := func(key string, value any) {
		if out == nil {
			out = make(map[string]any, len(event.Metadata)+3)
		}
		out[key] = value
	}

	for k, v := range event.Metadata {
		set(k, v)
	}
	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, ok := out[MetadataKeyActorType]; !ok {
			set(MetadataKeyActorType, actorType)
		}
	}
	if event.FromState != "" {
		set(MetadataKeyFromState, string(event.FromState))
	}
	if event.ToState != "" {
		set(MetadataKeyToState, string(event.ToState))
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
