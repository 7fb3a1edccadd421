package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slok/comicsub/internal/event"
	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/venera"
)

// DefaultRetention is the time a flow is kept after it ends.
const DefaultRetention = 5 * time.Second

// Broadcaster is the event broadcaster used by the tracker.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev any)
	SubscribeWith(ctx context.Context, s event.Subscriber, initial any) (string, error)
}

// TrackerConfig is the configuration for the tracker.
type TrackerConfig struct {
	Broadcaster Broadcaster
	// Retention is the time an ended flow is kept so late observers can still see it.
	Retention time.Duration
	Logger    log.Logger
	// Now is used to get the current time.
	Now func() time.Time
}

func (c *TrackerConfig) defaults() error {
	if c.Broadcaster == nil {
		return fmt.Errorf("broadcaster is required")
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "tracker.Tracker"})
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

type flow struct {
	id     string
	active bool
	tasks  map[string]*model.Task
	order  []string
}

// Tracker is the in-memory registry of flows and tasks.
//
// Every mutation is published through the broadcaster while holding the
// tracker lock, so observers receive the events in the same order the
// mutations happened.
type Tracker struct {
	flows     map[string]*flow
	cancels   map[string]chan struct{}
	retention time.Duration
	bc        Broadcaster
	logger    log.Logger
	now       func() time.Time
	mu        sync.Mutex
}

// NewTracker returns a new tracker.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Tracker{
		flows:     map[string]*flow{},
		cancels:   map[string]chan struct{}{},
		retention: cfg.Retention,
		bc:        cfg.Broadcaster,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// StartFlow registers a new active flow, any stale cancellation of the same ID is cleared.
func (t *Tracker) StartFlow(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.cancels[id]; ok && isClosed(c) {
		delete(t.cancels, id)
	}

	t.flows[id] = &flow{
		id:     id,
		active: true,
		tasks:  map[string]*model.Task{},
	}
	t.logger.Debugf("Flow %s started", id)
}

// StartTask registers a running task on a flow and publishes it.
func (t *Tracker) StartTask(ctx context.Context, flowID, taskID, command string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.flows[flowID]
	if !ok {
		t.logger.Warningf("Ignoring task %s start of unknown flow %s", taskID, flowID)
		return
	}

	task := &model.Task{
		ID:        taskID,
		FlowID:    flowID,
		Command:   command,
		Status:    model.TaskStatusRunning,
		StartedAt: t.now(),
		Logs:      []string{},
	}
	if _, ok := f.tasks[taskID]; !ok {
		f.order = append(f.order, taskID)
	}
	f.tasks[taskID] = task

	t.bc.Broadcast(ctx, event.NewTaskStart(*task))
}

// AppendLog appends an output line to a task and publishes it. Progress
// payloads update the task progress.
func (t *Tracker) AppendLog(ctx context.Context, flowID, taskID, line string, payload *venera.Payload) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.task(flowID, taskID)
	if !ok {
		return
	}

	task.Logs = append(task.Logs, line)
	ev := event.Log{Type: event.TypeLog, TaskID: taskID, Data: line}
	if payload != nil && payload.Message == venera.MessageProgress {
		progress, _ := payload.Progress()
		task.Progress = model.TaskProgress{Current: progress.Current, Total: progress.Total}
		ev.Parsed = payload.Raw
	}

	t.bc.Broadcast(ctx, ev)
}

// EndTask marks a task as complete and publishes it.
func (t *Tracker) EndTask(ctx context.Context, flowID, taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.task(flowID, taskID)
	if !ok {
		return
	}

	task.Status = model.TaskStatusComplete
	t.bc.Broadcast(ctx, event.TaskEnd{Type: event.TypeTaskEnd, TaskID: taskID})
}

// EndFlow marks a flow as inactive. The flow is removed, together with its
// cancellation mark, after the retention window. It doesn't block.
func (t *Tracker) EndFlow(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.flows[id]
	if !ok {
		return
	}
	f.active = false
	t.logger.Debugf("Flow %s ended", id)

	time.AfterFunc(t.retention, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		// The ID could have been reused by a new flow.
		if t.flows[id] != f {
			return
		}
		delete(t.flows, id)
		delete(t.cancels, id)
		t.logger.Debugf("Flow %s removed", id)
	})
}

// CancelFlow marks a flow as cancelled, the mark is sticky until the flow is
// removed or started again. Unknown flows are ignored.
func (t *Tracker) CancelFlow(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.flows[id]; !ok {
		t.logger.Warningf("Ignoring cancellation of unknown flow %s", id)
		return
	}

	c := t.cancelChan(id)
	if !isClosed(c) {
		close(c)
		t.logger.Infof("Flow %s cancellation requested", id)
	}
}

// IsCancelled returns true if the flow has been cancelled.
func (t *Tracker) IsCancelled(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.cancels[id]
	return ok && isClosed(c)
}

// Cancelled returns a channel that is closed when the flow is cancelled. The
// channel of an unknown flow is never closed.
func (t *Tracker) Cancelled(id string) <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.flows[id]; !ok {
		return make(chan struct{})
	}
	return t.cancelChan(id)
}

// HasActiveFlow returns true if any flow is active.
func (t *Tracker) HasActiveFlow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, f := range t.flows {
		if f.active {
			return true
		}
	}
	return false
}

// Flow returns a copy of a registered flow, including the ended ones that are
// still retained.
func (t *Tracker) Flow(id string) (*model.Flow, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.flows[id]
	if !ok {
		return nil, fmt.Errorf("flow %s: %w", id, model.ErrNotFound)
	}

	res := &model.Flow{ID: f.id, Active: f.active}
	for _, taskID := range f.order {
		task := *f.tasks[taskID]
		task.Logs = append([]string{}, task.Logs...)
		res.Tasks = append(res.Tasks, task)
	}

	return res, nil
}

// Snapshot returns the active flows with their running tasks.
func (t *Tracker) Snapshot() event.CurrentState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.snapshot()
}

// Observe subscribes s to the events after sending it the current state.
func (t *Tracker) Observe(ctx context.Context, s event.Subscriber) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.bc.SubscribeWith(ctx, s, t.snapshot())
}

func (t *Tracker) snapshot() event.CurrentState {
	state := event.CurrentState{
		Type:  event.TypeCurrentState,
		Flows: map[string]event.FlowState{},
	}

	for id, f := range t.flows {
		if !f.active {
			continue
		}
		state.IsRunning = true

		fs := event.FlowState{Active: true, Tasks: map[string]event.TaskStart{}}
		for _, task := range f.tasks {
			if task.Status != model.TaskStatusRunning {
				continue
			}
			fs.Tasks[task.ID] = event.NewTaskStart(*task)
		}
		state.Flows[id] = fs
	}

	return state
}

func (t *Tracker) task(flowID, taskID string) (*model.Task, bool) {
	f, ok := t.flows[flowID]
	if !ok {
		return nil, false
	}
	task, ok := f.tasks[taskID]
	return task, ok
}

func (t *Tracker) cancelChan(id string) chan struct{} {
	c, ok := t.cancels[id]
	if !ok {
		c = make(chan struct{})
		t.cancels[id] = c
	}
	return c
}

func isClosed(c chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
