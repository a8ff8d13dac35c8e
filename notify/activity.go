package notify

import (
	"context"
	"encoding/json"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
)

// DefaultActivityPrefix is prepended to the verb to build the routing key
const DefaultActivityPrefix = "activity"

// ActivityPublisher implements accounts.ActivitySink by publishing each
// normalized event to the notice exchange under "activity.<verb>".
type ActivityPublisher struct {
	publisher Publisher
	exchange  string
	prefix    string
	appID     string
	normalize []activitymap.Option
}

// ActivityOption customizes the ActivityPublisher
type ActivityOption func(*ActivityPublisher)

// WithActivityExchange sets the exchange activity records are published to
func WithActivityExchange(name string) ActivityOption {
	return func(p *ActivityPublisher) {
		if name = strings.TrimSpace(name); name != "" {
			p.exchange = name
		}
	}
}

// WithRoutingPrefix replaces DefaultActivityPrefix
func WithRoutingPrefix(prefix string) ActivityOption {
	return func(p *ActivityPublisher) {
		p.prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	}
}

// WithNormalizeOptions forwards options to activitymap.Normalize
func WithNormalizeOptions(opts ...activitymap.Option) ActivityOption {
	return func(p *ActivityPublisher) {
		p.normalize = append(p.normalize, opts...)
	}
}

// NewActivityPublisher returns an activity sink publishing through pub
func NewActivityPublisher(pub Publisher, opts ...ActivityOption) *ActivityPublisher {
	p := &ActivityPublisher{
		publisher: pub,
		exchange:  DefaultExchange,
		prefix:    DefaultActivityPrefix,
		appID:     "accounts",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

var _ accounts.ActivitySink = (*ActivityPublisher)(nil)

// Record implements accounts.ActivitySink
func (p *ActivityPublisher) Record(ctx context.Context, event accounts.ActivityEvent) error {
	record := activitymap.Normalize(event, p.normalize...)
	body, err := json.Marshal(record)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode activity")
	}

	key := record.Verb
	if p.prefix != "" {
		key = p.prefix + "." + key
	}

	err = p.publisher.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        p.appID,
		Type:         record.Verb,
		Timestamp:    record.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to publish activity").
			WithMetadata(map[string]any{
				"verb":    record.Verb,
				"user_id": event.UserID,
			})
	}
	return nil
}
