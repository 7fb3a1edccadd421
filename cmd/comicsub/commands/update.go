package commands

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/ulid/v2"

	"github.com/slok/comicsub/internal/app/refresh"
	"github.com/slok/comicsub/internal/event"
	"github.com/slok/comicsub/internal/event/stream"
	"github.com/slok/comicsub/internal/printer"
)

const eventsNone = "none"

type UpdateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format          string
	events          string
	stageExecutable bool
}

// NewUpdateCommand returns the update command.
func NewUpdateCommand(rootCmd *RootCommand, app *kingpin.Application) *UpdateCommand {
	c := &UpdateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("update", "Run a full refresh of the subscriptions.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")
	c.Cmd.Flag("events", "Format of the flow events written to stderr (text, json, none).").Default(stream.FormatText).EnumVar(&c.events, stream.FormatText, stream.FormatJSON, eventsNone)
	c.Cmd.Flag("stage-executable", "Run the tool from a temporary copy of its directory.").BoolVar(&c.stageExecutable)

	return c
}

func (c UpdateCommand) Name() string { return c.Cmd.FullCommand() }

func (c UpdateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	subs, err := eventSubscribers(*c.rootCmd, c.events)
	if err != nil {
		return err
	}

	st, err := newStack(ctx, *c.rootCmd, stackOptions{
		StageExecutable: c.stageExecutable,
		Subscribers:     subs,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	flowID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	stop := cancelOnDone(ctx, st.Tracker, flowID, logger)
	defer stop()

	// The flow is stopped through its cancellation so it can save its data.
	res, err := st.Refresh.Run(context.WithoutCancel(ctx), refresh.Request{FlowID: flowID})
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	p := newPrinter(c.format, *c.rootCmd)
	if err := p.PrintSummary(printer.Summary{
		FlowID:    res.FlowID,
		Refreshed: res.Refreshed,
		Failed:    res.Failed,
		Added:     res.Added,
		Notified:  res.Notified,
	}); err != nil {
		return fmt.Errorf("could not print summary: %w", err)
	}

	return nil
}

func eventSubscribers(root RootCommand, format string) ([]event.Subscriber, error) {
	if format == eventsNone {
		return nil, nil
	}

	w, err := stream.NewWriter(root.Stderr, format)
	if err != nil {
		return nil, fmt.Errorf("could not create events writer: %w", err)
	}
	return []event.Subscriber{w}, nil
}

func newPrinter(format string, root RootCommand) printer.Printer {
	switch format {
	case "json":
		return printer.NewJSONPrinter(root.Stdout)
	default: // table
		return printer.NewTablePrinter(root.Stdout)
	}
}
