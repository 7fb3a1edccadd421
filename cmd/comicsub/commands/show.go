package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/comicsub/internal/model"
)

type ShowCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	comicID     string
	onlyUpdated bool
	format      string
}

// NewShowCommand returns the show command.
func NewShowCommand(rootCmd *RootCommand, app *kingpin.Application) *ShowCommand {
	c := &ShowCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("show", "Show the stored comics.")
	c.Cmd.Arg("id", "Show only the comic with this ID.").StringVar(&c.comicID)
	c.Cmd.Flag("updated", "Show only the comics updated on the last refresh.").BoolVar(&c.onlyUpdated)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ShowCommand) Name() string { return c.Cmd.FullCommand() }

func (c ShowCommand) Run(ctx context.Context) error {
	repo, closeRepo, err := newRepository(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	defer closeRepo()

	d, err := repo.GetDataset(ctx)
	if err != nil {
		return fmt.Errorf("could not get dataset: %w", err)
	}

	p := newPrinter(c.format, *c.rootCmd)

	if c.comicID != "" {
		i := d.ComicIndex(c.comicID)
		if i < 0 {
			return fmt.Errorf("comic %s: %w", c.comicID, model.ErrNotFound)
		}
		if err := p.PrintComic(d.AllComics[i]); err != nil {
			return fmt.Errorf("could not print comic: %w", err)
		}
		return nil
	}

	if err := p.PrintDataset(*d, c.onlyUpdated); err != nil {
		return fmt.Errorf("could not print dataset: %w", err)
	}

	return nil
}
