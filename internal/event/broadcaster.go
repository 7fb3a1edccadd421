package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/slok/comicsub/internal/log"
)

// Subscriber receives the JSON encoded events.
type Subscriber interface {
	Send(ctx context.Context, data []byte) error
}

// SubscriberFunc is a helper to use functions as subscribers.
type SubscriberFunc func(ctx context.Context, data []byte) error

func (s SubscriberFunc) Send(ctx context.Context, data []byte) error { return s(ctx, data) }

// BroadcasterConfig is the configuration for the broadcaster.
type BroadcasterConfig struct {
	Logger log.Logger
}

func (c *BroadcasterConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "event.Broadcaster"})
	return nil
}

// Broadcaster fans out events to all the current subscribers.
//
// Delivery is best-effort, a subscriber that fails is removed and closed (if
// it's an io.Closer) without affecting the rest.
type Broadcaster struct {
	subs   map[string]Subscriber
	mu     sync.Mutex
	logger log.Logger
}

// NewBroadcaster returns a new broadcaster.
func NewBroadcaster(cfg BroadcasterConfig) (*Broadcaster, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Broadcaster{
		subs:   map[string]Subscriber{},
		logger: cfg.Logger,
	}, nil
}

// Subscribe registers a subscriber and returns its ID.
func (b *Broadcaster) Subscribe(s Subscriber) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := ulid.Make().String()
	b.subs[id] = s
	b.logger.Debugf("Subscriber %s registered", id)

	return id
}

// SubscribeChan registers a new channel subscriber with the given buffer.
func (b *Broadcaster) SubscribeChan(buffer int) (string, *Channel) {
	c := NewChannel(buffer)
	return b.Subscribe(c), c
}

// SubscribeWith sends an initial event to the subscriber before registering it,
// no broadcasted event can be delivered between both.
func (b *Broadcaster) SubscribeWith(ctx context.Context, s Subscriber, initial any) (string, error) {
	data, err := json.Marshal(initial)
	if err != nil {
		return "", fmt.Errorf("could not marshal initial event: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := s.Send(ctx, data); err != nil {
		return "", fmt.Errorf("could not send initial event: %w", err)
	}

	id := ulid.Make().String()
	b.subs[id] = s
	b.logger.Debugf("Subscriber %s registered", id)

	return id, nil
}

// Unsubscribe removes a subscriber, unknown IDs are ignored.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok {
		b.close(id, s)
	}
}

// Len returns the number of current subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Broadcast sends the event to all the subscribers.
func (b *Broadcaster) Broadcast(ctx context.Context, ev any) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Errorf("Could not marshal event: %s", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, s := range b.subs {
		if err := s.Send(ctx, data); err != nil {
			b.logger.Debugf("Removing subscriber %s: %s", id, err)
			delete(b.subs, id)
			b.close(id, s)
		}
	}
}

func (b *Broadcaster) close(id string, s Subscriber) {
	c, ok := s.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil && !errors.Is(err, ErrSubscriberClosed) {
		b.logger.Debugf("Could not close subscriber %s: %s", id, err)
	}
}
