package printer

import "github.com/slok/comicsub/internal/model"

// Summary is the result of a refresh flow.
type Summary struct {
	FlowID string
	// Outcome is only set on single comic refreshes.
	Outcome   string
	Refreshed int
	Failed    int
	Added     int
	Notified  int
}

// Printer knows how to print comic information in different formats.
type Printer interface {
	PrintDataset(d model.Dataset, onlyUpdated bool) error
	PrintComic(c model.Comic) error
	PrintSummary(s Summary) error
	PrintMessage(msg string) error
}
