package printer_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/comicsub/internal/model"
	"github.com/slok/comicsub/internal/printer"
)

func datasetFixture() model.Dataset {
	return model.Dataset{
		AllComics: []model.Comic{
			{ID: "1", Name: "Comic A", Type: "src", Tags: []string{"x", "y"}, UpdateTime: "2024-02-01", LastSuccessfulFetchTime: "not valid"},
			{ID: "2", Name: "Comic B", Type: "src", UpdateFailed: true},
		},
		UpdatedComics: []model.Comic{
			{ID: "1", Name: "Comic A", Type: "src"},
		},
		LastUpdated: "2024-02-02 10:00:00",
	}
}

func TestTablePrinterPrintDataset(t *testing.T) {
	tests := map[string]struct {
		onlyUpdated bool
		expLines    int
		expContains []string
	}{
		"All the comics should be printed.": {
			expLines:    4,
			expContains: []string{"Last updated: 2024-02-02 10:00:00", "ID  NAME", "Comic B", "failed"},
		},

		"Only the updated comics should be printed.": {
			onlyUpdated: true,
			expLines:    3,
			expContains: []string{"Comic A", "ok"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			p := printer.NewTablePrinter(&buf)

			err := p.PrintDataset(datasetFixture(), test.onlyUpdated)
			require.NoError(t, err)

			out := buf.String()
			assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), test.expLines)
			for _, exp := range test.expContains {
				assert.Contains(t, out, exp)
			}
		})
	}
}

func TestTablePrinterPrintComic(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintComic(datasetFixture().AllComics[0])
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Name:       Comic A")
	assert.Contains(t, out, "Tags:       x, y")
	assert.Contains(t, out, "Author:     -")
	assert.Contains(t, out, "Fetched:    not valid (-)")
	assert.NotContains(t, out, "Previous:")
}

func TestTablePrinterPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintSummary(printer.Summary{FlowID: "f1", Refreshed: 3, Failed: 1, Added: 2, Notified: 1})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Flow:       f1")
	assert.Contains(t, out, "Refreshed:  3")
	assert.Contains(t, out, "New:        2")
}

func TestJSONPrinterPrintDataset(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintDataset(datasetFixture(), false)
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Contains(t, got, "all_comics")
	assert.Contains(t, got, "updated_comics")
	assert.JSONEq(t, `"2024-02-02 10:00:00"`, string(got["last_updated"]))
}

func TestJSONPrinterPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintSummary(printer.Summary{FlowID: "f1", Outcome: "refreshed"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"flow_id":"f1","outcome":"refreshed","refreshed":0,"failed":0,"new":0,"notified":0}`, buf.String())
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}
