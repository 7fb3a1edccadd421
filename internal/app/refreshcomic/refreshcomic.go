package refreshcomic

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/comicsub/internal/event"
	"github.com/slok/comicsub/internal/imagecache"
	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/metrics"
	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/process"
	"github.com/slok/comicsub/internal/reconcile"
	"github.com/slok/comicsub/internal/storage"
	"github.com/slok/comicsub/internal/venera"
)

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

// ServiceConfig is the configuration for the single comic refresh service.
type ServiceConfig struct {
	Runner      Runner
	Tracker     Tracker
	Repository  storage.Repository
	Covers      imagecache.Cacher
	Broadcaster Broadcaster
	Metrics     metrics.Recorder
	Logger      log.Logger
	Now         func() time.Time
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
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.RefreshComic"})

	return nil
}

// Service refreshes a single comic.
type Service struct {
	runner  Runner
	tracker Tracker
	repo    storage.Repository
	covers  imagecache.Cacher
	bc      Broadcaster
	metrics metrics.Recorder
	logger  log.Logger
	now     func() time.Time
}

// NewService creates a new single comic refresh service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		runner:  cfg.Runner,
		tracker: cfg.Tracker,
		repo:    cfg.Repository,
		covers:  cfg.Covers,
		bc:      cfg.Broadcaster,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}, nil
}

// Request represents the single comic refresh request parameters.
type Request struct {
	// FlowID is the ID of the flow, a ULID is generated when empty.
	FlowID    string
	ComicID   string
	ComicType string
}

func (r Request) validate() error {
	if r.ComicID == "" {
		return fmt.Errorf("comic id is required: %w", model.ErrNotValid)
	}
	if r.ComicType == "" {
		return fmt.Errorf("comic type is required: %w", model.ErrNotValid)
	}
	return nil
}

// Result is the summary of a single comic refresh.
type Result struct {
	FlowID  string
	Outcome reconcile.SingleOutcome
	// Comic is the stored record after the refresh, nil on unknown comics.
	Comic   *model.Comic
	Dataset model.Dataset
}

// Run refreshes a single comic. The dataset is always saved and broadcasted,
// even when the tool didn't report the comic.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	flowID := req.FlowID
	if flowID == "" {
		flowID = ulid.MustNew(ulid.Timestamp(s.now()), rand.Reader).String()
	}
	ctx = s.logger.SetValuesOnCtx(ctx, log.Kv{"flow-id": flowID, "comic-id": req.ComicID})
	logger := s.logger.WithCtxValues(ctx)

	start := time.Now()
	s.tracker.StartFlow(flowID)
	defer func() {
		s.tracker.EndFlow(flowID)
		s.metrics.ObserveFlow(metrics.FlowKindSingle, time.Since(start))
	}()

	payloads := s.runner.Run(ctx, process.Request{
		FlowID:  flowID,
		TaskID:  "update_single_" + req.ComicID + "_" + flowID,
		Command: venera.UpdateComic(req.ComicID, req.ComicType),
	})

	var fresh *model.Comic
	if c, ok := venera.FindComic(payloads, req.ComicID); ok {
		fresh = &c
	}

	stored, loadErr := s.repo.GetDataset(ctx)
	if loadErr != nil {
		logger.Errorf("Could not load the stored dataset, it will not be overwritten: %s", loadErr)
		d := model.NewDataset()
		stored = &d
	}

	now := s.now()
	all, i, outcome := reconcile.MergeOne(stored.AllComics, req.ComicID, fresh, now.Format(model.FetchTimeLayout))
	logger.Infof("Comic refresh result: %s", outcome)

	if outcome == reconcile.SingleOutcomeRefreshed || outcome == reconcile.SingleOutcomeAdded {
		all[i].CoverURL = s.cacheCover(ctx, all[i].CoverURL)
	}

	dataset := stored.Copy()
	dataset.AllComics = all
	dataset.LastUpdated = now.Format(model.FetchTimeLayout)

	var saveErr error
	if loadErr == nil {
		if err := s.repo.SaveDataset(ctx, dataset); err != nil {
			logger.Errorf("Could not save the dataset: %s", err)
			saveErr = fmt.Errorf("could not save dataset: %w", err)
		}
	}

	s.bc.Broadcast(context.WithoutCancel(ctx), event.NewDataUpdated(dataset))
	s.metrics.SetComics(len(dataset.AllComics), failedComics(dataset.AllComics))

	res := &Result{
		FlowID:  flowID,
		Outcome: outcome,
		Dataset: dataset,
	}
	if i >= 0 {
		c := dataset.AllComics[i].Copy()
		res.Comic = &c
	}

	return res, saveErr
}

func (s *Service) cacheCover(ctx context.Context, cover string) string {
	if !strings.HasPrefix(cover, "http://") && !strings.HasPrefix(cover, "https://") {
		return cover
	}

	cached, err := s.covers.Cache(ctx, cover)
	if err != nil {
		if !errors.Is(err, model.ErrNotValid) {
			s.logger.WithCtxValues(ctx).Warningf("Could not cache cover: %s", err)
		}
		return cover
	}
	return cached
}

func failedComics(comics []model.Comic) int {
	n := 0
	for _, c := range comics {
		if c.UpdateFailed {
			n++
		}
	}
	return n
}
