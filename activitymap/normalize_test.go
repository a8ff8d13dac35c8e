package activitymap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
)

func TestNormalizeStateChange(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := accounts.ActivityEvent{
		EventType:  accounts.ActivityEventStateChanged,
		Actor:      accounts.ActorRef{ID: "admin-42", Type: "admin"},
		UserID:     "user-100",
		FromState:  accounts.StateAwaitingApproval,
		ToState:    accounts.StateActive,
		Metadata:   map[string]any{"ticket": "SEC-204"},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, "admin-42", out.ActorID)
	assert.Equal(t, string(accounts.ActivityEventStateChanged), out.Verb)
	assert.Equal(t, activitymap.ObjectAccount, out.ObjectType)
	assert.Equal(t, "user-100", out.ObjectID)
	assert.Equal(t, "accounts", out.Channel)
	assert.True(t, out.OccurredAt.Equal(ts))
	assert.Equal(t, map[string]any{
		"ticket":                         "SEC-204",
		activitymap.MetadataKeyActorType: "admin",
		activitymap.MetadataKeyFromState: "awaiting_approval",
		activitymap.MetadataKeyToState:   "active",
	}, out.Metadata)
	assert.Len(t, event.Metadata, 1, "source metadata must not be modified")
}

func TestNormalizeTokenEvent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	event := accounts.ActivityEvent{
		EventType: accounts.ActivityEventTokenIssued,
		UserID:    "user-7",
		Metadata: map[string]any{
			"token":                          "tok-1",
			activitymap.MetadataKeyActorType: "existing",
		},
		Actor: accounts.ActorRef{Type: "user"},
	}

	out := activitymap.Normalize(event,
		activitymap.WithChannel("security"),
		activitymap.WithClock(func() time.Time { return now }),
		activitymap.WithObjectIDResolver(func(e accounts.ActivityEvent) string {
			id, _ := e.Metadata["token"].(string)
			return id
		}),
	)

	assert.Equal(t, activitymap.ObjectToken, out.ObjectType)
	assert.Equal(t, "tok-1", out.ObjectID)
	assert.Equal(t, "security", out.Channel)
	assert.Equal(t, "user-7", out.ActorID)
	assert.Equal(t, now, out.OccurredAt)
	assert.Equal(t, "existing", out.Metadata[activitymap.MetadataKeyActorType])
}

func TestNormalizeActorFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  accounts.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "actor id",
			event:  accounts.ActivityEvent{Actor: accounts.ActorRef{ID: "actor-1"}, UserID: "user-1"},
			expect: "actor-1",
		},
		{
			name:   "user id",
			event:  accounts.ActivityEvent{UserID: "user-2"},
			expect: "user-2",
		},
		{
			name:   "default fallback",
			event:  accounts.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "configured fallback",
			event:  accounts.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("sweeper")},
			expect: "sweeper",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expect, activitymap.Normalize(tc.event, tc.opts...).ActorID)
		})
	}
}

func TestNormalizeWithoutMetadata(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(accounts.ActivityEvent{EventType: accounts.ActivityEventSwept})
	assert.Nil(t, out.Metadata)
	assert.False(t, out.OccurredAt.IsZero())
}
