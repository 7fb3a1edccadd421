package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/comicsub/internal/app/refresh"
	"github.com/slok/comicsub/internal/app/refreshcomic"
	"github.com/slok/comicsub/internal/conventions"
	"github.com/slok/comicsub/internal/event"
	"github.com/slok/comicsub/internal/imagecache"
	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/metrics"
	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/notify"
	"github.com/slok/comicsub/internal/process"
	"github.com/slok/comicsub/internal/storage"
	"github.com/slok/comicsub/internal/storage/file"
	"github.com/slok/comicsub/internal/storage/postgres"
	"github.com/slok/comicsub/internal/storage/sqlite"
	"github.com/slok/comicsub/internal/tracker"
	"github.com/slok/comicsub/internal/utils/env"
	utilsfile "github.com/slok/comicsub/internal/utils/file"
)

// newRepository creates the dataset repository selected by the flags.
func newRepository(ctx context.Context, root RootCommand) (storage.Repository, func() error, error) {
	noClose := func() error { return nil }

	switch root.Storage {
	case StorageSQLite:
		repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: conventions.DatabasePath(root.DataDir),
			Logger: root.Logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create sqlite repository: %w", err)
		}
		return repo, repo.Close, nil

	case StoragePostgres:
		if root.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("postgres dsn is required: %w", model.ErrMissingConfig)
		}
		pool, err := postgres.NewPool(ctx, root.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to postgres: %w", err)
		}
		repo, err := postgres.NewRepository(ctx, postgres.RepositoryConfig{
			DB:     pool,
			Logger: root.Logger,
		})
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("could not create postgres repository: %w", err)
		}
		return repo, func() error { pool.Close(); return nil }, nil

	default:
		repo, err := file.NewRepository(file.RepositoryConfig{
			Path:   conventions.DatasetPath(root.DataDir),
			Logger: root.Logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create file repository: %w", err)
		}
		return repo, noClose, nil
	}
}

type stackOptions struct {
	Metrics metrics.Recorder
	// StageExecutable runs the tool from a temp copy of its directory.
	StageExecutable bool
	// Subscribers are subscribed to the events before any flow runs.
	Subscribers []event.Subscriber
}

// stack has all the components needed to run the flows.
type stack struct {
	Settings     model.Settings
	Repository   storage.Repository
	Broadcaster  *event.Broadcaster
	Tracker      *tracker.Tracker
	Covers       *imagecache.Cache
	Refresh      *refresh.Service
	RefreshComic *refreshcomic.Service

	closers []func() error
}

func newStack(ctx context.Context, root RootCommand, opts stackOptions) (_ *stack, err error) {
	logger := root.Logger
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop
	}

	s := &stack{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	s.Settings, err = loadSettings(ctx, root)
	if err != nil {
		return nil, err
	}

	executable := s.Settings.Executable
	if opts.StageExecutable {
		staged, cleanup, err := utilsfile.StageExecutable(ctx, executable)
		if err != nil {
			logger.Warningf("Could not stage %s, running it from its location: %s", executable, err)
		} else {
			logger.Infof("Tool staged at %s", staged)
			executable = staged
			s.closers = append(s.closers, cleanup)
		}
	}

	repo, closeRepo, err := newRepository(ctx, root)
	if err != nil {
		return nil, err
	}
	s.Repository = repo
	s.closers = append(s.closers, closeRepo)

	s.Broadcaster, err = event.NewBroadcaster(event.BroadcasterConfig{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create broadcaster: %w", err)
	}
	for _, sub := range opts.Subscribers {
		s.Broadcaster.Subscribe(sub)
	}

	s.Tracker, err = tracker.NewTracker(tracker.TrackerConfig{
		Broadcaster: s.Broadcaster,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create tracker: %w", err)
	}

	toolEnv, err := env.Parse(root.ToolEnv)
	if err != nil {
		return nil, fmt.Errorf("invalid tool environment: %w", err)
	}

	runner, err := process.NewRunner(process.RunnerConfig{
		Executable:     executable,
		Env:            toolEnv,
		CommandTimeout: s.Settings.CommandTimeout,
		Tracker:        s.Tracker,
		Metrics:        opts.Metrics,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create runner: %w", err)
	}

	s.Covers, err = imagecache.NewCache(imagecache.CacheConfig{
		Dir:     conventions.CoverCachePath(root.DataDir),
		Metrics: opts.Metrics,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create cover cache: %w", err)
	}

	var notifier notify.Notifier = notify.Noop
	if s.Settings.Mail.Complete() {
		notifier, err = notify.NewSMTP(notify.SMTPConfig{
			Settings: s.Settings.Mail,
			Covers:   s.Covers,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create notifier: %w", err)
		}
	} else {
		logger.Infof("Mail settings are incomplete, update mails disabled")
	}

	s.Refresh, err = refresh.NewService(refresh.ServiceConfig{
		Runner:      runner,
		Tracker:     s.Tracker,
		Repository:  s.Repository,
		Covers:      s.Covers,
		Notifier:    notifier,
		Broadcaster: s.Broadcaster,
		Metrics:     opts.Metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create refresh service: %w", err)
	}

	s.RefreshComic, err = refreshcomic.NewService(refreshcomic.ServiceConfig{
		Runner:      runner,
		Tracker:     s.Tracker,
		Repository:  s.Repository,
		Covers:      s.Covers,
		Broadcaster: s.Broadcaster,
		Metrics:     opts.Metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create comic refresh service: %w", err)
	}

	return s, nil
}

// Close releases the stack resources in reverse creation order.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// cancelOnDone cancels the flow on the tracker when ctx is done, so the
// running flow stops cooperatively and still saves its data. The returned
// function stops the watch.
func cancelOnDone(ctx context.Context, t *tracker.Tracker, flowID string, logger log.Logger) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			logger.Warningf("Cancelling flow %s", flowID)
			t.CancelFlow(flowID)
		case <-done:
		}
	}()
	return func() { close(done) }
}
