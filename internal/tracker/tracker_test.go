package tracker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/comicsub/internal/event"
	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/tracker"
	"github.com/slok/comicsub/internal/venera"
)

type recorder struct {
	mu     sync.Mutex
	events []map[string]any
}

func (r *recorder) Send(_ context.Context, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ev map[string]any
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := []string{}
	for _, ev := range r.events {
		types = append(types, ev["type"].(string))
	}
	return types
}

func (r *recorder) Events() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any{}, r.events...)
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, retention time.Duration) (*tracker.Tracker, *recorder) {
	b, err := event.NewBroadcaster(event.BroadcasterConfig{Logger: log.Noop})
	require.NoError(t, err)

	rec := &recorder{}
	b.Subscribe(rec)

	tr, err := tracker.NewTracker(tracker.TrackerConfig{
		Broadcaster: b,
		Retention:   retention,
		Logger:      log.Noop,
		Now:         func() time.Time { return t0 },
	})
	require.NoError(t, err)

	return tr, rec
}

func TestTrackerLifecycleEvents(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	tr, rec := newTracker(t, time.Hour)

	tr.StartFlow("f1")
	assert.True(tr.HasActiveFlow())

	tr.StartTask(ctx, "f1", "webdav_down_f1", "webdav down")
	tr.AppendLog(ctx, "f1", "webdav_down_f1", "hello", nil)
	tr.EndTask(ctx, "f1", "webdav_down_f1")
	tr.EndFlow("f1")

	assert.False(tr.HasActiveFlow())
	assert.Equal([]string{event.TypeTaskStart, event.TypeLog, event.TypeTaskEnd}, rec.Types())

	evs := rec.Events()
	assert.Equal("f1", evs[0]["flowId"])
	assert.Equal("webdav down", evs[0]["command"])
	assert.Equal("running", evs[0]["status"])
	assert.Equal(float64(t0.Unix()), evs[0]["start_time"])
	assert.Equal("hello", evs[1]["data"])
	_, ok := evs[1]["parsed"]
	assert.False(ok)

	f, err := tr.Flow("f1")
	require.NoError(err)
	assert.False(f.Active)
	require.Len(f.Tasks, 1)
	assert.Equal(model.TaskStatusComplete, f.Tasks[0].Status)
	assert.Equal([]string{"hello"}, f.Tasks[0].Logs)
}

func TestTrackerProgressLogs(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	tr, rec := newTracker(t, time.Hour)
	tr.StartFlow("f1")
	tr.StartTask(ctx, "f1", "t1", "updatesubscribe")

	raw := `[CLI PRINT] {"message":"Progress","data":{"current":3,"total":10}}`
	line := venera.Classify(raw)
	tr.AppendLog(ctx, "f1", "t1", raw, line.Payload)

	other := `[CLI PRINT] {"message":"Something","data":{}}`
	tr.AppendLog(ctx, "f1", "t1", other, venera.Classify(other).Payload)

	evs := rec.Events()
	require.Len(evs, 3)
	assert.Equal(map[string]any{
		"message": "Progress",
		"data":    map[string]any{"current": float64(3), "total": float64(10)},
	}, evs[1]["parsed"])
	_, ok := evs[2]["parsed"]
	assert.False(ok)

	state := tr.Snapshot()
	assert.Equal(event.Progress{Current: 3, Total: 10}, state.Flows["f1"].Tasks["t1"].Progress)
}

func TestTrackerSnapshot(t *testing.T) {
	tests := map[string]struct {
		setup    func(ctx context.Context, tr *tracker.Tracker)
		expState event.CurrentState
	}{
		"No flows should be not running.": {
			setup: func(ctx context.Context, tr *tracker.Tracker) {},
			expState: event.CurrentState{
				Type:  event.TypeCurrentState,
				Flows: map[string]event.FlowState{},
			},
		},

		"Active flows should only show running tasks.": {
			setup: func(ctx context.Context, tr *tracker.Tracker) {
				tr.StartFlow("f1")
				tr.StartTask(ctx, "f1", "t1", "webdav down")
				tr.EndTask(ctx, "f1", "t1")
				tr.StartTask(ctx, "f1", "t2", "updatescript all")
			},
			expState: event.CurrentState{
				Type:      event.TypeCurrentState,
				IsRunning: true,
				Flows: map[string]event.FlowState{
					"f1": {Active: true, Tasks: map[string]event.TaskStart{
						"t2": {
							Type:      event.TypeTaskStart,
							FlowID:    "f1",
							TaskID:    "t2",
							Command:   "updatescript all",
							Status:    "running",
							StartTime: float64(t0.Unix()),
							Logs:      []string{},
						},
					}},
				},
			},
		},

		"Active flows without running tasks should be shown.": {
			setup: func(ctx context.Context, tr *tracker.Tracker) {
				tr.StartFlow("f1")
			},
			expState: event.CurrentState{
				Type:      event.TypeCurrentState,
				IsRunning: true,
				Flows: map[string]event.FlowState{
					"f1": {Active: true, Tasks: map[string]event.TaskStart{}},
				},
			},
		},

		"Ended flows should not be shown.": {
			setup: func(ctx context.Context, tr *tracker.Tracker) {
				tr.StartFlow("f1")
				tr.StartTask(ctx, "f1", "t1", "webdav down")
				tr.EndFlow("f1")
			},
			expState: event.CurrentState{
				Type:  event.TypeCurrentState,
				Flows: map[string]event.FlowState{},
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			tr, _ := newTracker(t, time.Hour)
			test.setup(context.Background(), tr)

			assert.Equal(t, test.expState, tr.Snapshot())
		})
	}
}

func TestTrackerIgnoresUnknownFlowsAndTasks(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	tr, rec := newTracker(t, time.Hour)
	tr.StartTask(ctx, "missing", "t1", "webdav down")
	tr.StartFlow("f1")
	tr.AppendLog(ctx, "f1", "missing", "line", nil)
	tr.EndTask(ctx, "f1", "missing")
	tr.EndFlow("missing")

	assert.Empty(rec.Types())
}

func TestTrackerRetention(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	tr, _ := newTracker(t, 20*time.Millisecond)
	tr.StartFlow("f1")
	tr.StartTask(ctx, "f1", "t1", "webdav down")
	tr.CancelFlow("f1")
	tr.EndFlow("f1")

	// Ended flows are still available while retained.
	_, err := tr.Flow("f1")
	assert.NoError(err)

	assert.Eventually(func() bool {
		_, err := tr.Flow("f1")
		return err != nil
	}, time.Second, 5*time.Millisecond)

	_, err = tr.Flow("f1")
	assert.ErrorIs(err, model.ErrNotFound)
	assert.False(tr.IsCancelled("f1"))
}

func TestTrackerRetentionDoesNotRemoveReusedFlow(t *testing.T) {
	tr, _ := newTracker(t, 20*time.Millisecond)
	tr.StartFlow("f1")
	tr.EndFlow("f1")
	tr.StartFlow("f1")

	time.Sleep(60 * time.Millisecond)

	f, err := tr.Flow("f1")
	require.NoError(t, err)
	assert.True(t, f.Active)
}

func TestTrackerCancellation(t *testing.T) {
	assert := assert.New(t)

	tr, _ := newTracker(t, time.Hour)
	tr.StartFlow("f1")

	c := tr.Cancelled("f1")
	assert.False(tr.IsCancelled("f1"))
	select {
	case <-c:
		assert.Fail("cancel channel should not be closed")
	default:
	}

	tr.CancelFlow("f1")
	tr.CancelFlow("f1")
	assert.True(tr.IsCancelled("f1"))
	select {
	case <-c:
	default:
		assert.Fail("cancel channel should be closed")
	}

	// Cancel is sticky and not shared with other flows.
	assert.True(tr.IsCancelled("f1"))
	assert.False(tr.IsCancelled("f2"))

	// A new flow with the same ID starts clean.
	tr.StartFlow("f1")
	assert.False(tr.IsCancelled("f1"))
}

func TestTrackerCancelUnknownFlow(t *testing.T) {
	assert := assert.New(t)

	tr, _ := newTracker(t, time.Hour)

	tr.CancelFlow("ghost")
	assert.False(tr.IsCancelled("ghost"))

	select {
	case <-tr.Cancelled("ghost"):
		assert.Fail("cancel channel of an unknown flow should not be closed")
	default:
	}

	// A flow started later with the same ID is not affected.
	tr.StartFlow("ghost")
	assert.False(tr.IsCancelled("ghost"))
}

func TestTrackerObserveSendsStateFirst(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	tr, _ := newTracker(t, time.Hour)
	tr.StartFlow("f1")
	tr.StartTask(ctx, "f1", "t1", "webdav down")

	obs := &recorder{}
	_, err := tr.Observe(ctx, obs)
	require.NoError(err)
	tr.EndTask(ctx, "f1", "t1")

	assert.Equal([]string{event.TypeCurrentState, event.TypeTaskEnd}, obs.Types())
	assert.Equal(true, obs.Events()[0]["is_running"])
}
