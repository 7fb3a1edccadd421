package commands

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/ulid/v2"

	"github.com/slok/comicsub/internal/app/refreshcomic"
	"github.com/slok/comicsub/internal/event/stream"
	"github.com/slok/comicsub/internal/printer"
)

type UpdateComicCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	comicID   string
	comicType string
	format    string
	events    string
}

// NewUpdateComicCommand returns the update-comic command.
func NewUpdateComicCommand(rootCmd *RootCommand, app *kingpin.Application) *UpdateComicCommand {
	c := &UpdateComicCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("update-comic", "Refresh a single comic.")
	c.Cmd.Arg("type", "Source type of the comic.").Required().StringVar(&c.comicType)
	c.Cmd.Arg("id", "Comic ID.").Required().StringVar(&c.comicID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")
	c.Cmd.Flag("events", "Format of the flow events written to stderr (text, json, none).").Default(stream.FormatText).EnumVar(&c.events, stream.FormatText, stream.FormatJSON, eventsNone)

	return c
}

func (c UpdateComicCommand) Name() string { return c.Cmd.FullCommand() }

func (c UpdateComicCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	subs, err := eventSubscribers(*c.rootCmd, c.events)
	if err != nil {
		return err
	}

	st, err := newStack(ctx, *c.rootCmd, stackOptions{Subscribers: subs})
	if err != nil {
		return err
	}
	defer st.Close()

	flowID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	stop := cancelOnDone(ctx, st.Tracker, flowID, logger)
	defer stop()

	res, err := st.RefreshComic.Run(context.WithoutCancel(ctx), refreshcomic.Request{
		FlowID:    flowID,
		ComicID:   c.comicID,
		ComicType: c.comicType,
	})
	if err != nil {
		return fmt.Errorf("comic refresh failed: %w", err)
	}

	p := newPrinter(c.format, *c.rootCmd)
	if res.Comic != nil {
		if err := p.PrintComic(*res.Comic); err != nil {
			return fmt.Errorf("could not print comic: %w", err)
		}
	}
	if err := p.PrintSummary(printer.Summary{FlowID: res.FlowID, Outcome: string(res.Outcome)}); err != nil {
		return fmt.Errorf("could not print summary: %w", err)
	}

	return nil
}
