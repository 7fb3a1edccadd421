package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/metrics"
	"github.com/slok/comicsub/internal/utils/env"
	"github.com/slok/comicsub/internal/venera"
)

const (
	// DefaultCommandTimeout is the deadline of a whole command execution.
	DefaultCommandTimeout = 120 * time.Second
	// DefaultKillGrace is the time a terminated process has to exit before being killed.
	DefaultKillGrace = 10 * time.Second

	maxLineSize = 16 * 1024 * 1024
)

// Tracker is where the runner reports the task lifecycle.
type Tracker interface {
	StartTask(ctx context.Context, flowID, taskID, command string)
	AppendLog(ctx context.Context, flowID, taskID, line string, payload *venera.Payload)
	EndTask(ctx context.Context, flowID, taskID string)
	Cancelled(flowID string) <-chan struct{}
}

// RunnerConfig is the configuration of the process runner.
type RunnerConfig struct {
	// Executable is the path to the tool binary.
	Executable string
	// Env are extra environment variables set on the tool processes.
	Env            map[string]string
	CommandTimeout time.Duration
	KillGrace      time.Duration
	Tracker        Tracker
	Metrics        metrics.Recorder
	Logger         log.Logger
}

func (c *RunnerConfig) defaults() error {
	if c.Executable == "" {
		return fmt.Errorf("executable is required")
	}
	if c.Tracker == nil {
		return fmt.Errorf("tracker is required")
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.KillGrace <= 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "process.Runner"})
	return nil
}

// Request is a single command execution.
type Request struct {
	FlowID  string
	TaskID  string
	Command venera.Command
}

// Runner runs the tool commands as tracked tasks.
type Runner struct {
	executable string
	env        []string
	timeout    time.Duration
	killGrace  time.Duration
	tracker    Tracker
	metrics    metrics.Recorder
	logger     log.Logger
}

// NewRunner returns a new process runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		executable: cfg.Executable,
		env:        env.Environ(cfg.Env),
		timeout:    cfg.CommandTimeout,
		killGrace:  cfg.KillGrace,
		tracker:    cfg.Tracker,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}, nil
}

// Run executes the command and returns the payloads it printed in order.
//
// Run never fails, spawn errors, timeouts and cancellations end the task
// with a log line explaining what happened. A timed out command returns no
// payloads, a cancelled one returns the payloads received until the
// cancellation.
func (r *Runner) Run(ctx context.Context, req Request) []venera.Payload {
	logger := r.logger.WithCtxValues(ctx).WithValues(log.Kv{"flow-id": req.FlowID, "task-id": req.TaskID})

	// Task reporting must happen even when ctx is already done.
	tctx := context.WithoutCancel(ctx)
	appendLog := func(line string, p *venera.Payload) {
		r.tracker.AppendLog(tctx, req.FlowID, req.TaskID, line, p)
	}

	r.tracker.StartTask(tctx, req.FlowID, req.TaskID, req.Command.Text)
	defer r.tracker.EndTask(tctx, req.FlowID, req.TaskID)

	start := time.Now()
	outcome := metrics.TaskOutcomeCompleted
	defer func() {
		r.metrics.ObserveTask(metricsCommand(req.Command), outcome, time.Since(start))
	}()

	cancelled := r.tracker.Cancelled(req.FlowID)
	select {
	case <-cancelled:
		logger.Infof("Flow cancelled, command %q not started", req.Command.Text)
		appendLog("Task cancelled by the user.", nil)
		outcome = metrics.TaskOutcomeCancelled
		return nil
	default:
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	p, err := r.start(req.Command)
	if err != nil {
		logger.Errorf("Could not start command %q: %s", req.Command.Text, err)
		appendLog(fmt.Sprintf("Could not start command: %s", err), nil)
		outcome = metrics.TaskOutcomeSpawnError
		return nil
	}
	defer p.close()
	logger.Debugf("Command %q started with pid %d", req.Command.Text, p.cmd.Process.Pid)

	payloads := []venera.Payload{}
	lines := p.lines
	var waitCh <-chan error
	for {
		// Cancellation has priority over the pending lines.
		select {
		case <-cancelled:
			r.terminate(p, logger)
			appendLog("Task cancelled by the user.", nil)
			outcome = metrics.TaskOutcomeCancelled
			return payloads
		default:
		}

		select {
		case <-cancelled:
			continue

		case <-runCtx.Done():
			r.terminate(p, logger)
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				logger.Warningf("Command %q timed out after %s", req.Command.Text, r.timeout)
				appendLog(fmt.Sprintf("Command timed out (%s), task terminated.", r.timeout), nil)
				outcome = metrics.TaskOutcomeTimeout
				return nil
			}
			logger.Warningf("Command %q aborted: %s", req.Command.Text, runCtx.Err())
			appendLog("Task aborted.", nil)
			outcome = metrics.TaskOutcomeAborted
			return payloads

		case err := <-waitCh:
			if err != nil {
				// The exit status of the tool is not authoritative.
				logger.Debugf("Command %q exited: %s", req.Command.Text, err)
			}
			return payloads

		case line, ok := <-lines:
			if !ok {
				// Output is over, only the exit is pending.
				lines = nil
				waitCh = p.waitCh
				continue
			}

			l := venera.Classify(line)
			if l.Payload != nil {
				payloads = append(payloads, *l.Payload)
			}
			appendLog(l.Raw, l.Payload)
		}
	}
}

type proc struct {
	cmd    *exec.Cmd
	out    *os.File
	lines  chan string
	stop   chan struct{}
	waitCh chan error
}

func (r *Runner) start(c venera.Command) (*proc, error) {
	args := append([]string{venera.HeadlessFlag}, c.Args...)
	cmd := exec.Command(r.executable, args...)
	cmd.Env = r.env
	configureCommandProcess(cmd)

	// Both outputs share the same pipe so the lines keep their order.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("could not create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		return nil, err
	}
	// Only the child must hold the write end, otherwise we never get EOF.
	_ = pw.Close()

	p := &proc{
		cmd:    cmd,
		out:    pr,
		lines:  make(chan string),
		stop:   make(chan struct{}),
		waitCh: make(chan error, 1),
	}
	go func() { p.waitCh <- cmd.Wait() }()
	go p.read()

	return p, nil
}

func (p *proc) read() {
	defer close(p.lines)

	s := bufio.NewScanner(p.out)
	s.Buffer(make([]byte, 64*1024), maxLineSize)
	for s.Scan() {
		// Blank lines are forwarded too, observers see the output as printed.
		line := strings.TrimSpace(s.Text())
		select {
		case p.lines <- line:
		case <-p.stop:
			return
		}
	}

	// Keep the pipe drained so the child never blocks writing.
	if s.Err() != nil {
		_, _ = io.Copy(io.Discard, p.out)
	}
}

func (p *proc) close() {
	close(p.stop)
	_ = p.out.Close()
}

// terminate asks the process group to stop and kills it if it's still alive
// after the grace period.
func (r *Runner) terminate(p *proc, logger log.Logger) {
	if err := terminateProcess(p.cmd); err != nil {
		logger.Debugf("Could not terminate process: %s", err)
	}

	t := time.NewTimer(r.killGrace)
	defer t.Stop()

	select {
	case <-p.waitCh:
	case <-t.C:
		logger.Warningf("Process didn't exit after %s, killing it", r.killGrace)
		killProcess(p.cmd)
		<-p.waitCh
	}
}

// metricsCommand returns a bounded label for the command, the arguments that
// identify comics are left out.
func metricsCommand(c venera.Command) string {
	name := []string{}
	for _, arg := range c.Args {
		name = append(name, arg)
		if len(name) == 2 || strings.HasPrefix(arg, "--") {
			break
		}
	}
	return strings.Join(name, " ")
}
