package amqp_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/comicsub/internal/event"
	"github.com/slok/comicsub/internal/event/amqp"
	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/tracker"
)

type fakeChannel struct {
	declared   []string
	published  []amqp091.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher(t *testing.T) {
	ch := &fakeChannel{}
	p, err := amqp.NewPublisher(amqp.PublisherConfig{Channel: ch, Logger: log.Noop})
	require.NoError(t, err)

	b, err := event.NewBroadcaster(event.BroadcasterConfig{})
	require.NoError(t, err)
	b.Subscribe(p)

	b.Broadcast(context.Background(), event.TaskEnd{Type: event.TypeTaskEnd, TaskID: "t1"})

	assert.Equal(t, []string{"comicsub.events:topic"}, ch.declared)
	assert.Equal(t, []string{"comicsub.events/events.task_end"}, ch.keys)
	require.Len(t, ch.published, 1)
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, `{"type":"task_end","taskId":"t1"}`, string(ch.published[0].Body))
	assert.NotEmpty(t, ch.published[0].MessageId)
}

func TestPublisherFailureDropsTheSubscriber(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := amqp.NewPublisher(amqp.PublisherConfig{Channel: ch, Exchange: "custom"})
	require.NoError(t, err)

	b, err := event.NewBroadcaster(event.BroadcasterConfig{})
	require.NoError(t, err)
	b.Subscribe(p)

	b.Broadcast(context.Background(), event.TaskEnd{Type: event.TypeTaskEnd, TaskID: "t1"})

	assert.Equal(t, 0, b.Len())
	assert.True(t, ch.closed)
}

func TestPublisherRequiresConnection(t *testing.T) {
	_, err := amqp.NewPublisher(amqp.PublisherConfig{})
	assert.Error(t, err)
}

// stuckChannel never finishes a publish until released, whatever the context says.
type stuckChannel struct {
	release chan struct{}
	mu      sync.Mutex
	closed  bool
}

func (s *stuckChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	return nil
}

func (s *stuckChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	<-s.release
	return nil
}

func (s *stuckChannel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stuckChannel) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestPublisherStuckBrokerDoesNotBlockTheTracker(t *testing.T) {
	ch := &stuckChannel{release: make(chan struct{})}
	t.Cleanup(func() { close(ch.release) })

	p, err := amqp.NewPublisher(amqp.PublisherConfig{Channel: ch, PublishTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	b, err := event.NewBroadcaster(event.BroadcasterConfig{})
	require.NoError(t, err)
	b.Subscribe(p)

	tr, err := tracker.NewTracker(tracker.TrackerConfig{Broadcaster: b})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx := context.Background()
		tr.StartFlow("f1")
		tr.StartTask(ctx, "f1", "t1", "updatesubscribe")
		tr.AppendLog(ctx, "f1", "t1", "line", nil)
		tr.CancelFlow("f1")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tracker blocked by the stuck broker")
	}

	assert.Equal(t, 0, b.Len())
	assert.True(t, ch.isClosed())
	assert.True(t, tr.IsCancelled("f1"))
}

func TestPublisherSendTimeout(t *testing.T) {
	ch := &stuckChannel{release: make(chan struct{})}
	t.Cleanup(func() { close(ch.release) })

	p, err := amqp.NewPublisher(amqp.PublisherConfig{Channel: ch, PublishTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	err = p.Send(context.Background(), []byte(`{"type":"task_end"}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
