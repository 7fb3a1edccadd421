package refresh

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/slok/comicsub/internal/event"
	"github.com/slok/comicsub/internal/imagecache"
	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/metrics"
	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/notify"
	"github.com/slok/comicsub/internal/process"
	"github.com/slok/comicsub/internal/reconcile"
	"github.com/slok/comicsub/internal/storage"
	"github.com/slok/comicsub/internal/venera"
)

const defaultCoverConcurrency = 8

// Runner runs the external tool commands.
type Runner interface {
	Run(ctx context.Context, req process.Request) []venera.Payload
}

// Tracker registers the flow lifecycle.
type Tracker interface {
	StartFlow(id string)
	EndFlow(id string)
}

// Broadcaster publishes events to the observers.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev any)
}

// ServiceConfig is the configuration for the full refresh service.
type ServiceConfig struct {
	Runner      Runner
	Tracker     Tracker
	Repository  storage.Repository
	Covers      imagecache.Cacher
	Notifier    notify.Notifier
	Broadcaster Broadcaster
	Metrics     metrics.Recorder
	Logger      log.Logger
	// CoverConcurrency is the max number of covers cached at the same time.
	CoverConcurrency int
	Now              func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Runner == nil {
		return fmt.Errorf("runner is required")
	}
	if c.Tracker == nil {
		return fmt.Errorf("tracker is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Covers == nil {
		return fmt.Errorf("cover cache is required")
	}
	if c.Broadcaster == nil {
		return fmt.Errorf("broadcaster is required")
	}
	if c.Notifier == nil {
		c.Notifier = notify.Noop
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.CoverConcurrency <= 0 {
		c.CoverConcurrency = defaultCoverConcurrency
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Refresh"})

	return nil
}

// Service runs the full refresh flow.
type Service struct {
	runner           Runner
	tracker          Tracker
	repo             storage.Repository
	covers           imagecache.Cacher
	notifier         notify.Notifier
	bc               Broadcaster
	metrics          metrics.Recorder
	logger           log.Logger
	coverConcurrency int
	now              func() time.Time
}

// NewService creates a new full refresh service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		runner:           cfg.Runner,
		tracker:          cfg.Tracker,
		repo:             cfg.Repository,
		covers:           cfg.Covers,
		notifier:         cfg.Notifier,
		bc:               cfg.Broadcaster,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
		coverConcurrency: cfg.CoverConcurrency,
		now:              cfg.Now,
	}, nil
}

// Request represents the full refresh request parameters.
type Request struct {
	// FlowID is the ID of the flow, a ULID is generated when empty.
	FlowID string
}

// Result is the summary of a full refresh.
type Result struct {
	FlowID    string
	Dataset   model.Dataset
	Refreshed int
	Failed    int
	Added     int
	Notified  int
}

type step struct {
	taskPrefix string
	command    venera.Command
}

var steps = []step{
	{taskPrefix: "webdav_down", command: venera.WebDAVDown()},
	{taskPrefix: "updatescript", command: venera.UpdateScriptAll()},
	{taskPrefix: "webdav_up", command: venera.WebDAVUp()},
	{taskPrefix: "updatesubscribe", command: venera.UpdateSubscribe()},
}

// Run runs the full refresh flow.
//
// The steps are best-effort, all of them run whatever the result of the
// previous ones. The only returned error is the dataset write failure, the
// flow still broadcasts the new data and ends in that case.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	flowID := req.FlowID
	if flowID == "" {
		flowID = ulid.MustNew(ulid.Timestamp(s.now()), rand.Reader).String()
	}
	ctx = s.logger.SetValuesOnCtx(ctx, log.Kv{"flow-id": flowID})
	logger := s.logger.WithCtxValues(ctx)

	start := time.Now()
	s.tracker.StartFlow(flowID)
	defer func() {
		s.tracker.EndFlow(flowID)
		s.metrics.ObserveFlow(metrics.FlowKindFull, time.Since(start))
	}()
	logger.Infof("Full refresh started")

	previous, loadErr := s.repo.GetDataset(ctx)
	if loadErr != nil {
		logger.Errorf("Could not load the stored dataset, it will not be overwritten: %s", loadErr)
		d := model.NewDataset()
		previous = &d
	}

	var payloads []venera.Payload
	for _, st := range steps {
		payloads = s.runner.Run(ctx, process.Request{
			FlowID:  flowID,
			TaskID:  st.taskPrefix + "_" + flowID,
			Command: st.command,
		})
	}

	now := s.now()
	merged := reconcile.Merge(reconcile.Input{
		Previous:   previous.AllComics,
		Fresh:      venera.Comics(payloads),
		UpdatedIDs: venera.UpdatedComicIDs(payloads),
		FetchTime:  now.Format(model.FetchTimeLayout),
	})
	logger.Infof("Comics reconciled: %d refreshed, %d failed, %d new", merged.Refreshed, merged.Failed, merged.Added)

	s.cacheCovers(ctx, merged.All)

	dataset := model.Dataset{
		AllComics:     merged.All,
		UpdatedComics: reconcile.Subset(merged.All, merged.UpdatedIDs),
		LastUpdated:   now.Format(model.FetchTimeLayout),
	}

	var saveErr error
	if loadErr == nil {
		if err := s.repo.SaveDataset(ctx, dataset); err != nil {
			logger.Errorf("Could not save the dataset: %s", err)
			saveErr = fmt.Errorf("could not save dataset: %w", err)
		}
	}

	s.runner.Run(ctx, process.Request{
		FlowID:  flowID,
		TaskID:  "webdav_up_final_" + flowID,
		Command: venera.WebDAVUp(),
	})

	notified := s.notify(ctx, reconcile.Subset(merged.All, merged.NotifyIDs))

	// Observers get the new data even if the context is done.
	s.bc.Broadcast(context.WithoutCancel(ctx), event.NewDataUpdated(dataset))
	s.metrics.SetComics(len(dataset.AllComics), merged.Failed)
	logger.Infof("Full refresh finished")

	return &Result{
		FlowID:    flowID,
		Dataset:   dataset,
		Refreshed: merged.Refreshed,
		Failed:    merged.Failed,
		Added:     merged.Added,
		Notified:  notified,
	}, saveErr
}

// cacheCovers replaces the remote covers with their cached paths, failed
// covers keep the remote URL.
func (s *Service) cacheCovers(ctx context.Context, comics []model.Comic) {
	logger := s.logger.WithCtxValues(ctx)

	var g errgroup.Group
	g.SetLimit(s.coverConcurrency)
	for i := range comics {
		cover := comics[i].CoverURL
		if !isRemote(cover) {
			continue
		}

		g.Go(func() error {
			cached, err := s.covers.Cache(ctx, cover)
			if err != nil {
				if !errors.Is(err, model.ErrNotValid) {
					logger.Warningf("Could not cache cover of comic %s: %s", comics[i].ID, err)
				}
				return nil
			}
			comics[i].CoverURL = cached
			return nil
		})
	}
	_ = g.Wait()
}

// notify sends the notifications concurrently and returns the number of
// successful ones.
func (s *Service) notify(ctx context.Context, comics []model.Comic) int {
	logger := s.logger.WithCtxValues(ctx)

	var (
		mu   sync.Mutex
		sent int
		g    errgroup.Group
	)
	for _, c := range comics {
		g.Go(func() error {
			err := s.notifier.Notify(ctx, c)
			s.metrics.IncNotification(err == nil)
			if err != nil {
				logger.Warningf("Could not notify update of comic %s: %s", c.ID, err)
				return nil
			}

			mu.Lock()
			sent++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return sent
}

func isRemote(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
