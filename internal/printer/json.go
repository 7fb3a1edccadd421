package printer

import (
	"encoding/json"
	"io"

	"github.com/slok/comicsub/internal/model"
)

// JSONPrinter prints comic information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// summaryOutput represents the refresh result output.
type summaryOutput struct {
	FlowID    string `json:"flow_id"`
	Outcome   string `json:"outcome,omitempty"`
	Refreshed int    `json:"refreshed"`
	Failed    int    `json:"failed"`
	Added     int    `json:"new"`
	Notified  int    `json:"notified"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintDataset prints the dataset document, or only its updated comics.
func (j *JSONPrinter) PrintDataset(d model.Dataset, onlyUpdated bool) error {
	if onlyUpdated {
		return j.encode(d.Copy().UpdatedComics)
	}
	return j.encode(d.Copy())
}

// PrintComic prints a comic record as it is stored.
func (j *JSONPrinter) PrintComic(c model.Comic) error {
	return j.encode(c)
}

// PrintSummary prints the result of a refresh.
func (j *JSONPrinter) PrintSummary(s Summary) error {
	return j.encode(summaryOutput{
		FlowID:    s.FlowID,
		Outcome:   s.Outcome,
		Refreshed: s.Refreshed,
		Failed:    s.Failed,
		Added:     s.Added,
		Notified:  s.Notified,
	})
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
