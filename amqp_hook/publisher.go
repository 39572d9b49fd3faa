// Package amqphook publishes vesting lifecycle events to a RabbitMQ topic
// exchange as JSON messages. The routing key is the event type, for
// example "vesting.claimed".
package amqphook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/claim"
	"github.com/xraph/vesting/funding"
	"github.com/xraph/vesting/plugin"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Publisher)(nil)
	_ plugin.OnInit             = (*Publisher)(nil)
	_ plugin.OnShutdown         = (*Publisher)(nil)
	_ plugin.OnScheduleCreated  = (*Publisher)(nil)
	_ plugin.OnImmediateRelease = (*Publisher)(nil)
	_ plugin.OnClaimed          = (*Publisher)(nil)
	_ plugin.OnClaimRejected    = (*Publisher)(nil)
	_ plugin.OnUnderfunded      = (*Publisher)(nil)
)

// Event types, used as routing keys.
const (
	EventScheduleCreated  = "vesting.schedule.created"
	EventImmediateRelease = "vesting.immediate_release"
	EventClaimed          = "vesting.claimed"
	EventClaimRejected    = "vesting.claim.rejected"
	EventUnderfunded      = "vesting.underfunded"
)

// DefaultExchange is the exchange events are published to.
const DefaultExchange = "vesting.events"

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// Event is the JSON envelope of every published message.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// RejectedClaim is the payload of EventClaimRejected.
type RejectedClaim struct {
	Beneficiary string `json:"beneficiary"`
	Reason      string `json:"reason"`
}

// ImmediateRelease is the payload of EventImmediateRelease.
type ImmediateRelease struct {
	Schedule *schedule.Schedule `json:"schedule"`
	Transfer *token.Transfer    `json:"transfer"`
}

// Publisher is a vesting plugin that forwards lifecycle events to RabbitMQ.
type Publisher struct {
	channel    Channel
	exchange   string
	logger     *slog.Logger
	skipNoop   bool
	closeOnEnd bool
	now        func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithExchange sets the exchange name.
func WithExchange(name string) Option {
	return func(p *Publisher) { p.exchange = name }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithNothingToClaim publishes claims rejected with ErrNothingToClaim.
// They are dropped by default.
func WithNothingToClaim() Option {
	return func(p *Publisher) { p.skipNoop = false }
}

// WithCloseOnShutdown closes the channel when the engine stops.
func WithCloseOnShutdown() Option {
	return func(p *Publisher) { p.closeOnEnd = true }
}

// New creates a Publisher on an open channel.
func New(ch Channel, opts ...Option) *Publisher {
	p := &Publisher{
		channel:  ch,
		exchange: DefaultExchange,
		logger:   slog.Default(),
		skipNoop: true,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dial connects to url, opens a channel and returns a Publisher that
// closes it on shutdown.
func Dial(url string, opts ...Option) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp_hook: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp_hook: open channel: %w", err)
	}
	return New(&ownedChannel{Channel: ch, conn: conn}, append(opts, WithCloseOnShutdown())...), nil
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "amqp-hook" }

// OnInit declares the exchange.
func (p *Publisher) OnInit(_ context.Context, _ any) error {
	err := p.channel.ExchangeDeclare(
		p.exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("amqp_hook: declare exchange %s: %w", p.exchange, err)
	}
	return nil
}

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	if !p.closeOnEnd {
		return nil
	}
	return p.channel.Close()
}

// OnScheduleCreated implements plugin.OnScheduleCreated.
func (p *Publisher) OnScheduleCreated(ctx context.Context, s *schedule.Schedule) error {
	return p.publish(ctx, EventScheduleCreated, s.ID.String(), s)
}

// OnImmediateRelease implements plugin.OnImmediateRelease.
func (p *Publisher) OnImmediateRelease(ctx context.Context, s *schedule.Schedule, t *token.Transfer) error {
	return p.publish(ctx, EventImmediateRelease, t.ID.String(), ImmediateRelease{Schedule: s, Transfer: t})
}

// OnClaimed implements plugin.OnClaimed.
func (p *Publisher) OnClaimed(ctx context.Context, r *claim.Receipt) error {
	return p.publish(ctx, EventClaimed, r.ID.String(), r)
}

// OnClaimRejected implements plugin.OnClaimRejected.
func (p *Publisher) OnClaimRejected(ctx context.Context, beneficiary string, err error) error {
	if p.skipNoop && errors.Is(err, vesting.ErrNothingToClaim) {
		return nil
	}
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return p.publish(ctx, EventClaimRejected, "", RejectedClaim{Beneficiary: beneficiary, Reason: reason})
}

// OnUnderfunded implements plugin.OnUnderfunded.
func (p *Publisher) OnUnderfunded(ctx context.Context, r *funding.Report) error {
	return p.publish(ctx, EventUnderfunded, "", struct {
		*funding.Report
		Shortfall string `json:"shortfall"`
	}{r, r.Shortfall().String()})
}

func (p *Publisher) publish(ctx context.Context, eventType, messageID string, data any) error {
	evt := Event{
		Type:       eventType,
		OccurredAt: p.now(),
		Data:       data,
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("amqp_hook: marshal %s: %w", eventType, err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		eventType, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    evt.OccurredAt,
			Type:         eventType,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Warn("amqp_hook: publish failed",
			"event", eventType,
			"error", err,
		)
		return fmt.Errorf("amqp_hook: publish %s: %w", eventType, err)
	}
	return nil
}

// ownedChannel closes its connection together with the channel.
type ownedChannel struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (c *ownedChannel) Close() error {
	chErr := c.Channel.Close()
	connErr := c.conn.Close()
	return errors.Join(chErr, connErr)
}
