// Package notify publishes account notices to RabbitMQ so a mail or chat
// worker can deliver them.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange receives every notice; the routing key is the notice kind
const DefaultExchange = "accounts.notices"

// Publisher is implemented by *amqp.Channel
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Message is the JSON body of a published notice
type Message struct {
	Kind            accounts.NoticeKind  `json:"kind"`
	UserID          string               `json:"user_id"`
	Login           string               `json:"login"`
	Email           string               `json:"email"`
	FirstName       string               `json:"first_name,omitempty"`
	LastName        string               `json:"last_name,omitempty"`
	LangKey         string               `json:"lang_key,omitempty"`
	LicenseType     accounts.LicenseType `json:"license_type,omitempty"`
	ActivationKey   string               `json:"activation_key,omitempty"`
	ResetKey        string               `json:"reset_key,omitempty"`
	TrialKey        string               `json:"trial_key,omitempty"`
	OriginalLicense accounts.LicenseType `json:"original_license,omitempty"`
	TrialExpiration *time.Time           `json:"trial_expiration,omitempty"`
	Company         string               `json:"company,omitempty"`
	Country         string               `json:"country,omitempty"`
	Review          *Review              `json:"review,omitempty"`
}

// Review carries the manual review flags
type Review struct {
	TrialActivated bool                         `json:"trial_activated"`
	TrialInitiated bool                         `json:"trial_initiated"`
	Clarification  accounts.ClarificationReason `json:"clarification,omitempty"`
	Embargoed      bool                         `json:"embargoed"`
}

// AMQP implements accounts.Notifier by publishing one message per notice
type AMQP struct {
	publisher Publisher
	exchange  string
	appID     string
}

// Option customizes the AMQP notifier
type Option func(*AMQP)

// WithExchange sets the exchange notices are published to
func WithExchange(name string) Option {
	return func(a *AMQP) {
		if name = strings.TrimSpace(name); name != "" {
			a.exchange = name
		}
	}
}

// WithAppID sets the AppId property of published messages
func WithAppID(id string) Option {
	return func(a *AMQP) {
		a.appID = id
	}
}

// New returns a notifier publishing through p
func New(p Publisher, opts ...Option) *AMQP {
	a := &AMQP{
		publisher: p,
		exchange:  DefaultExchange,
		appID:     "accounts",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

var _ accounts.Notifier = (*AMQP)(nil)

// Conn owns the connection and channel opened by Dial
type Conn struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial opens a channel on url and declares a durable topic exchange
func Dial(url, exchange string) (*Conn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Conn{conn: conn, channel: ch}, nil
}

// Channel returns the publishing channel
func (c *Conn) Channel() *amqp.Channel {
	return c.channel
}

// Close closes the channel and the connection
func (c *Conn) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (a *AMQP) SendActivationEmail(ctx context.Context, u *accounts.User) error {
	return a.publish(ctx, newMessage(accounts.NoticeActivationEmail, u))
}

func (a *AMQP) SendPasswordResetEmail(ctx context.Context, u *accounts.User) error {
	return a.publish(ctx, newMessage(accounts.NoticePasswordReset, u))
}

func (a *AMQP) SendApprovalNotice(ctx context.Context, u *accounts.User) error {
	return a.publish(ctx, newMessage(accounts.NoticeApproved, u))
}

func (a *AMQP) SendAutoCorrectedLicenseNotice(ctx context.Context, u *accounts.User, original accounts.LicenseType) error {
	msg := newMessage(accounts.NoticeLicenseAutoCorrected, u)
	msg.OriginalLicense = original
	return a.publish(ctx, msg)
}

func (a *AMQP) SendTrialAcceptanceConfirmation(ctx context.Context, u *accounts.User, exp time.Time) error {
	msg := newMessage(accounts.NoticeTrialAccepted, u)
	msg.TrialExpiration = &exp
	return a.publish(ctx, msg)
}

func (a *AMQP) SendManualReviewNotice(ctx context.Context, u *accounts.User, d *accounts.UserDetails, flags accounts.ReviewFlags) error {
	msg := newMessage(accounts.NoticeManualReview, u)
	withDetails(&msg, d)
	msg.Review = &Review{
		TrialActivated: flags.TrialActivated,
		TrialInitiated: flags.TrialInitiated,
		Clarification:  flags.Clarification,
		Embargoed:      flags.Embargoed,
	}
	return a.publish(ctx, msg)
}

func (a *AMQP) SendTrialActivationLink(ctx context.Context, u *accounts.User, d *accounts.UserDetails) error {
	msg := newMessage(accounts.NoticeTrialActivationLink, u)
	withDetails(&msg, d)
	return a.publish(ctx, msg)
}

func (a *AMQP) SendAccountCreated(ctx context.Context, u *accounts.User) error {
	return a.publish(ctx, newMessage(accounts.NoticeAccountCreated, u))
}

func (a *AMQP) SendVerifyEmail(ctx context.Context, u *accounts.User) error {
	return a.publish(ctx, newMessage(accounts.NoticeVerifyEmail, u))
}

func (a *AMQP) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode notice")
	}

	err = a.publisher.PublishWithContext(ctx, a.exchange, string(msg.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        a.appID,
		Type:         string(msg.Kind),
		Body:         body,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to publish notice").
			WithMetadata(map[string]any{
				"kind":  msg.Kind,
				"login": msg.Login,
			})
	}
	return nil
}

func newMessage(kind accounts.NoticeKind, u *accounts.User) Message {
	msg := Message{Kind: kind}
	if u == nil {
		return msg
	}
	msg.UserID = u.ID.String()
	msg.Login = u.Login
	msg.Email = u.Email
	msg.FirstName = u.FirstName
	msg.LastName = u.LastName
	msg.LangKey = u.LangKey
	msg.LicenseType = u.LicenseType
	if u.ActivationKey != nil {
		msg.ActivationKey = *u.ActivationKey
	}
	if u.ResetKey != nil {
		msg.ResetKey = *u.ResetKey
	}
	return msg
}

func withDetails(msg *Message, d *accounts.UserDetails) {
	if d == nil {
		return
	}
	msg.Company = d.Company
	msg.Country = d.Country
	if d.TrialAccount != nil {
		msg.TrialKey = d.TrialAccount.Activation.Key
	}
}
