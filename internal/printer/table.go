package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/slok/comicsub/internal/model"
)

// TablePrinter prints comic information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintDataset prints the comics of a dataset in a table format.
func (t *TablePrinter) PrintDataset(d model.Dataset, onlyUpdated bool) error {
	fmt.Fprintf(t.writer, "Last updated: %s\n", d.LastUpdated)

	comics := d.AllComics
	if onlyUpdated {
		comics = d.UpdatedComics
	}
	if len(comics) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tUPDATED\tFETCHED\tSTATUS")

	// Print rows
	for _, c := range comics {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, orDash(c.UpdateTime), FetchAgo(c.LastSuccessfulFetchTime), status(c))
	}

	return nil
}

// PrintComic prints detailed comic information.
func (t *TablePrinter) PrintComic(c model.Comic) error {
	fmt.Fprintf(t.writer, "Name:       %s\n", c.Name)
	fmt.Fprintf(t.writer, "ID:         %s\n", c.ID)
	fmt.Fprintf(t.writer, "Type:       %s\n", orDash(c.Type))
	fmt.Fprintf(t.writer, "Author:     %s\n", orDash(c.Author))
	fmt.Fprintf(t.writer, "Tags:       %s\n", orDash(strings.Join(c.Tags, ", ")))
	fmt.Fprintf(t.writer, "Updated:    %s\n", orDash(c.UpdateTime))
	fmt.Fprintf(t.writer, "Cover:      %s\n", orDash(c.CoverURL))
	fmt.Fprintf(t.writer, "Fetched:    %s (%s)\n", orDash(c.LastSuccessfulFetchTime), FetchAgo(c.LastSuccessfulFetchTime))

	if c.PreviousSuccessfulFetchTime != "" {
		fmt.Fprintf(t.writer, "Previous:   %s\n", c.PreviousSuccessfulFetchTime)
	}
	fmt.Fprintf(t.writer, "Status:     %s\n", status(c))

	return nil
}

// PrintSummary prints the result of a refresh.
func (t *TablePrinter) PrintSummary(s Summary) error {
	fmt.Fprintf(t.writer, "Flow:       %s\n", s.FlowID)
	if s.Outcome != "" {
		fmt.Fprintf(t.writer, "Outcome:    %s\n", s.Outcome)
		return nil
	}

	fmt.Fprintf(t.writer, "Refreshed:  %d\n", s.Refreshed)
	fmt.Fprintf(t.writer, "Failed:     %d\n", s.Failed)
	fmt.Fprintf(t.writer, "New:        %d\n", s.Added)
	fmt.Fprintf(t.writer, "Notified:   %d\n", s.Notified)

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func status(c model.Comic) string {
	if c.UpdateFailed {
		return "failed"
	}
	return "ok"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
