package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/slok/comicsub/internal/log"
)

const (
	// DefaultExchange is the exchange used when none is configured.
	DefaultExchange = "comicsub.events"
	// RoutingKeyPrefix is prepended to the event type to build the routing key.
	RoutingKeyPrefix = "events."
	// DefaultPublishTimeout is the max time a publish can take before the send fails.
	DefaultPublishTimeout = 5 * time.Second
)

// Channel is the subset of the AMQP channel used by the publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// PublisherConfig is the configuration for the AMQP publisher.
type PublisherConfig struct {
	// Channel is an already opened channel, if missing URL is dialed.
	Channel  Channel
	URL      string
	Exchange string
	// PublishTimeout bounds every publish, a stuck broker fails the send.
	PublishTimeout time.Duration
	Logger         log.Logger
}

func (c *PublisherConfig) defaults() error {
	if c.Channel == nil && c.URL == "" {
		return fmt.Errorf("amqp url or channel is required")
	}
	if c.Exchange == "" {
		c.Exchange = DefaultExchange
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "event.AMQP"})
	return nil
}

// Publisher is an event subscriber that publishes every event on a topic
// exchange using the event type as routing key, so external consumers can
// follow the flows.
type Publisher struct {
	ch       Channel
	conn     *amqp.Connection
	exchange string
	timeout  time.Duration
	logger   log.Logger

	// mu serializes the publishes.
	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewPublisher returns a new AMQP publisher subscriber.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Publisher{
		ch:       cfg.Channel,
		exchange: cfg.Exchange,
		timeout:  cfg.PublishTimeout,
		logger:   cfg.Logger,
	}

	if p.ch == nil {
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("could not dial amqp: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("could not open amqp channel: %w", err)
		}
		p.conn = conn
		p.ch = ch
	}

	if err := p.ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		p.Close()
		return nil, fmt.Errorf("could not declare exchange %s: %w", p.exchange, err)
	}

	p.logger.Infof("Publishing events on AMQP exchange %s", p.exchange)

	return p, nil
}

type typedEvent struct {
	Type string `json:"type"`
}

// Send publishes the event. The publish runs apart so a channel that
// ignores the context still can't block the caller past the timeout.
func (p *Publisher) Send(ctx context.Context, data []byte) error {
	var ev typedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("could not decode event type: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.New().String(),
		Timestamp:   time.Now(),
		Type:        ev.Type,
		Body:        data,
	}

	errC := make(chan error, 1)
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		errC <- p.ch.PublishWithContext(ctx, p.exchange, RoutingKeyPrefix+ev.Type, false, false, msg)
	}()

	select {
	case err := <-errC:
		if err != nil {
			return fmt.Errorf("publish to %s: %w", p.exchange, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", p.exchange, ctx.Err())
	}
}

// Close closes the channel and the connection if the publisher opened it. It
// doesn't wait for a pending publish.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		err := p.ch.Close()
		if p.conn != nil {
			if cerr := p.conn.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		p.closeErr = err
	})
	return p.closeErr
}
