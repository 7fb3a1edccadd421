package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slok/comicsub/internal/event"
	"github.com/slok/comicsub/internal/event/amqp"
	"github.com/slok/comicsub/internal/event/stream"
	"github.com/slok/comicsub/internal/log"
	metricsprometheus "github.com/slok/comicsub/internal/metrics/prometheus"
	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/scheduler"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	metricsListenAddr string
	amqpURL           string
	amqpExchange      string
	updateInterval    time.Duration
	refreshOnStart    bool
	stageExecutable   bool
	events            string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run the periodic refresh daemon. SIGHUP triggers a full refresh.")
	c.Cmd.Flag("metrics-listen-address", "Address of the metrics and health server.").Default(":8081").StringVar(&c.metricsListenAddr)
	c.Cmd.Flag("amqp-url", "Publish the flow events on this AMQP broker.").StringVar(&c.amqpURL)
	c.Cmd.Flag("amqp-exchange", "AMQP topic exchange of the flow events.").Default(amqp.DefaultExchange).StringVar(&c.amqpExchange)
	c.Cmd.Flag("update-interval", "Interval of the periodic refresh, overrides the settings file.").DurationVar(&c.updateInterval)
	c.Cmd.Flag("refresh-on-start", "Run a full refresh on start.").BoolVar(&c.refreshOnStart)
	c.Cmd.Flag("stage-executable", "Run the tool from a temporary copy of its directory.").Default("true").BoolVar(&c.stageExecutable)
	c.Cmd.Flag("events", "Format of the flow events written to stderr (text, json, none).").Default(eventsNone).EnumVar(&c.events, stream.FormatText, stream.FormatJSON, eventsNone)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	observers, err := eventSubscribers(*c.rootCmd, c.events)
	if err != nil {
		return err
	}

	var subs []event.Subscriber
	if c.amqpURL != "" {
		pub, err := amqp.NewPublisher(amqp.PublisherConfig{
			URL:      c.amqpURL,
			Exchange: c.amqpExchange,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("could not create amqp publisher: %w", err)
		}
		defer pub.Close()
		subs = append(subs, pub)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, err := newStack(ctx, *c.rootCmd, stackOptions{
		Metrics:         metricsprometheus.NewRecorder(reg),
		StageExecutable: c.stageExecutable,
		Subscribers:     subs,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	// Observers start with the current state of the flows.
	for _, o := range observers {
		if _, err := st.Tracker.Observe(ctx, o); err != nil {
			return fmt.Errorf("could not observe flows: %w", err)
		}
	}

	interval := st.Settings.UpdateInterval
	if c.updateInterval > 0 {
		interval = c.updateInterval
	}

	sched, err := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Refresher:      st.Refresh,
		ComicRefresher: st.RefreshComic,
		Tracker:        st.Tracker,
		Interval:       interval,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("could not create scheduler: %w", err)
	}

	var g run.Group

	// Scheduler.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				if c.refreshOnStart {
					if _, err := sched.TriggerRefresh(ctx); err != nil {
						logger.Errorf("Could not start the refresh: %s", err)
					}
				}
				return sched.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Refresh triggers.
	{
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		stop := make(chan struct{})
		g.Add(
			func() error {
				for {
					select {
					case <-hup:
						flowID, err := sched.TriggerRefresh(ctx)
						switch {
						case errors.Is(err, model.ErrFlowRunning):
							logger.Warningf("Refresh not started, a flow is already running")
						case err != nil:
							logger.Errorf("Could not start the refresh: %s", err)
						default:
							logger.Infof("Refresh %s started", flowID)
						}
					case <-stop:
						return nil
					}
				}
			},
			func(_ error) {
				signal.Stop(hup)
				close(stop)
			},
		)
	}

	// Metrics and health server.
	{
		server := &http.Server{
			Addr:              c.metricsListenAddr,
			Handler:           newOpsHandler(reg, st.Tracker, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Add(
			func() error {
				logger.Infof("Metrics server listening on %s", c.metricsListenAddr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(ctx)
			},
		)
	}

	return g.Run()
}

type stateSnapshoter interface {
	Snapshot() event.CurrentState
}

// newOpsHandler returns the handler of the operations server: metrics, health
// and the current flows state.
func newOpsHandler(reg *prometheus.Registry, t stateSnapshoter, logger log.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/state", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(t.Snapshot()); err != nil {
			logger.Warningf("Could not write state: %s", err)
		}
	})
	return mux
}
