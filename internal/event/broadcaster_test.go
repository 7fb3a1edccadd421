package event_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/comicsub/internal/event"
	"github.com/slok/comicsub/internal/log"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	err    error
	closed bool
}

func (r *recorder) Send(_ context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, string(data))
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.events...)
}

func newBroadcaster(t *testing.T) *event.Broadcaster {
	b, err := event.NewBroadcaster(event.BroadcasterConfig{Logger: log.Noop})
	require.NoError(t, err)
	return b
}

func TestBroadcasterFanOut(t *testing.T) {
	b := newBroadcaster(t)
	ctx := context.Background()

	r1, r2 := &recorder{}, &recorder{}
	b.Subscribe(r1)
	b.Subscribe(r2)

	b.Broadcast(ctx, event.TaskEnd{Type: event.TypeTaskEnd, TaskID: "t1"})

	exp := []string{`{"type":"task_end","taskId":"t1"}`}
	assert.Equal(t, exp, r1.Events())
	assert.Equal(t, exp, r2.Events())
}

func TestBroadcasterDropsFailedSubscribers(t *testing.T) {
	b := newBroadcaster(t)
	ctx := context.Background()

	good := &recorder{}
	bad := &recorder{err: errors.New("connection reset")}
	b.Subscribe(good)
	b.Subscribe(bad)

	b.Broadcast(ctx, event.TaskEnd{Type: event.TypeTaskEnd, TaskID: "t1"})
	b.Broadcast(ctx, event.TaskEnd{Type: event.TypeTaskEnd, TaskID: "t2"})

	assert.Len(t, good.Events(), 2)
	assert.Empty(t, bad.Events())
	assert.True(t, bad.closed)
	assert.Equal(t, 1, b.Len())
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := newBroadcaster(t)
	ctx := context.Background()

	r := &recorder{}
	id := b.Subscribe(r)
	b.Unsubscribe(id)
	b.Unsubscribe("unknown")

	b.Broadcast(ctx, event.TaskEnd{Type: event.TypeTaskEnd, TaskID: "t1"})

	assert.Empty(t, r.Events())
	assert.True(t, r.closed)
	assert.Equal(t, 0, b.Len())
}

func TestBroadcasterSubscribeWith(t *testing.T) {
	b := newBroadcaster(t)
	ctx := context.Background()

	r := &recorder{}
	_, err := b.SubscribeWith(ctx, r, event.TaskEnd{Type: event.TypeTaskEnd, TaskID: "initial"})
	require.NoError(t, err)
	b.Broadcast(ctx, event.TaskEnd{Type: event.TypeTaskEnd, TaskID: "t1"})

	assert.Equal(t, []string{
		`{"type":"task_end","taskId":"initial"}`,
		`{"type":"task_end","taskId":"t1"}`,
	}, r.Events())

	bad := &recorder{err: errors.New("nope")}
	_, err = b.SubscribeWith(ctx, bad, event.TaskEnd{Type: event.TypeTaskEnd})
	assert.Error(t, err)
	assert.Equal(t, 1, b.Len())
}

func TestChannelSubscriber(t *testing.T) {
	b := newBroadcaster(t)
	ctx := context.Background()

	_, c := b.SubscribeChan(1)

	b.Broadcast(ctx, event.TaskEnd{Type: event.TypeTaskEnd, TaskID: "t1"})
	// The buffer is full, the subscriber should be dropped and its channel closed.
	b.Broadcast(ctx, event.TaskEnd{Type: event.TypeTaskEnd, TaskID: "t2"})

	assert.Equal(t, 0, b.Len())

	var got []string
	for data := range c.C() {
		got = append(got, string(data))
	}
	assert.Equal(t, []string{`{"type":"task_end","taskId":"t1"}`}, got)

	assert.ErrorIs(t, c.Send(ctx, []byte("{}")), event.ErrSubscriberClosed)
}
