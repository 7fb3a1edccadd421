package scheduler

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"

	"github.com/slok/comicsub/internal/app/refresh"
	"github.com/slok/comicsub/internal/app/refreshcomic"
	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/model"
)

// Refresher runs the full refresh flow.
type Refresher interface {
	Run(ctx context.Context, req refresh.Request) (*refresh.Result, error)
}

// ComicRefresher runs the single comic refresh flow.
type ComicRefresher interface {
	Run(ctx context.Context, req refreshcomic.Request) (*refreshcomic.Result, error)
}

// Tracker knows the running flows.
type Tracker interface {
	HasActiveFlow() bool
	CancelFlow(id string)
	Flow(id string) (*model.Flow, error)
}

// SchedulerConfig is the configuration of the scheduler.
type SchedulerConfig struct {
	Refresher      Refresher
	ComicRefresher ComicRefresher
	Tracker        Tracker
	// Interval is the periodic full refresh interval, 0 disables it.
	Interval time.Duration
	Logger   log.Logger
}

func (c *SchedulerConfig) defaults() error {
	if c.Refresher == nil {
		return fmt.Errorf("refresher is required")
	}
	if c.ComicRefresher == nil {
		return fmt.Errorf("comic refresher is required")
	}
	if c.Tracker == nil {
		return fmt.Errorf("tracker is required")
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval can't be negative")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "scheduler.Scheduler"})
	return nil
}

// Scheduler triggers the flows making sure only one of them is active at a time.
type Scheduler struct {
	refresher      Refresher
	comicRefresher ComicRefresher
	tracker        Tracker
	interval       time.Duration
	logger         log.Logger

	mu      sync.Mutex
	current string
	flows   sync.WaitGroup
}

// NewScheduler returns a new scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Scheduler{
		refresher:      cfg.Refresher,
		comicRefresher: cfg.ComicRefresher,
		tracker:        cfg.Tracker,
		interval:       cfg.Interval,
		logger:         cfg.Logger,
	}, nil
}

// TriggerRefresh starts a full refresh in the background and returns its flow ID.
func (s *Scheduler) TriggerRefresh(ctx context.Context) (string, error) {
	return s.trigger(ctx, func(ctx context.Context, flowID string) error {
		res, err := s.refresher.Run(ctx, refresh.Request{FlowID: flowID})
		if res != nil {
			s.logger.Infof("Full refresh %s: %d refreshed, %d failed, %d new, %d notified", flowID, res.Refreshed, res.Failed, res.Added, res.Notified)
		}
		return err
	})
}

// TriggerComic starts a single comic refresh in the background and returns its flow ID.
func (s *Scheduler) TriggerComic(ctx context.Context, comicID, comicType string) (string, error) {
	if comicID == "" || comicType == "" {
		return "", fmt.Errorf("comic id and type are required: %w", model.ErrNotValid)
	}

	return s.trigger(ctx, func(ctx context.Context, flowID string) error {
		res, err := s.comicRefresher.Run(ctx, refreshcomic.Request{FlowID: flowID, ComicID: comicID, ComicType: comicType})
		if res != nil {
			s.logger.Infof("Comic %s refresh %s: %s", comicID, flowID, res.Outcome)
		}
		return err
	})
}

// Cancel requests the cancellation of a flow.
func (s *Scheduler) Cancel(flowID string) error {
	if _, err := s.tracker.Flow(flowID); err != nil {
		return fmt.Errorf("could not get flow %s: %w", flowID, err)
	}

	s.tracker.CancelFlow(flowID)
	s.logger.Infof("Flow %s cancellation requested", flowID)
	return nil
}

// Running returns the ID of the flow started by the scheduler that is
// still running, empty if none.
func (s *Scheduler) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Run runs the periodic refreshes until the context is done, then it cancels
// the running flow and waits for it to end.
func (s *Scheduler) Run(ctx context.Context) error {
	defer func() {
		if id := s.Running(); id != "" {
			s.logger.Infof("Cancelling flow %s", id)
			s.tracker.CancelFlow(id)
		}
		s.flows.Wait()
	}()

	if s.interval == 0 {
		s.logger.Infof("Periodic refresh disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New()
	c.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		flowID, err := s.TriggerRefresh(ctx)
		if err != nil {
			if errors.Is(err, model.ErrFlowRunning) {
				s.logger.Infof("Periodic refresh skipped, a flow is already running")
				return
			}
			s.logger.Errorf("Could not start periodic refresh: %s", err)
			return
		}
		s.logger.Infof("Periodic refresh %s started", flowID)
	}))

	c.Start()
	s.logger.Infof("Periodic refresh every %s", s.interval)

	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}

func (s *Scheduler) trigger(ctx context.Context, run func(ctx context.Context, flowID string) error) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != "" || s.tracker.HasActiveFlow() {
		return "", model.ErrFlowRunning
	}

	flowID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	s.current = flowID

	// The flow outlives the trigger request, only the tracker can cancel it.
	fctx := context.WithoutCancel(ctx)
	s.flows.Add(1)
	go func() {
		defer s.flows.Done()
		defer func() {
			s.mu.Lock()
			s.current = ""
			s.mu.Unlock()
		}()

		if err := run(fctx, flowID); err != nil {
			s.logger.Errorf("Flow %s failed: %s", flowID, err)
		}
	}()

	return flowID, nil
}
