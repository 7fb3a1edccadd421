package event

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrSubscriberFull is returned when a channel subscriber can't accept more events.
	ErrSubscriberFull = errors.New("subscriber buffer is full")
	// ErrSubscriberClosed is returned when sending to a closed subscriber.
	ErrSubscriberClosed = errors.New("subscriber is closed")
)

// Channel is a subscriber that delivers the events on a buffered channel.
// A full buffer counts as a failed send so a slow consumer never blocks the
// broadcast.
type Channel struct {
	c      chan []byte
	closed bool
	mu     sync.Mutex
}

// NewChannel returns a new channel subscriber.
func NewChannel(buffer int) *Channel {
	return &Channel{c: make(chan []byte, buffer)}
}

// C returns the events channel, it's closed when the subscriber is closed.
func (c *Channel) C() <-chan []byte { return c.c }

func (c *Channel) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSubscriberClosed
	}

	select {
	case c.c <- data:
		return nil
	default:
		return ErrSubscriberFull
	}
}

// Close closes the channel.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSubscriberClosed
	}
	c.closed = true
	close(c.c)

	return nil
}
