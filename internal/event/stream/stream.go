package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/slok/comicsub/internal/event"
)

const (
	// FormatJSON writes every event as a JSON line.
	FormatJSON = "json"
	// FormatText writes the task lifecycle and log lines in a human readable way.
	FormatText = "text"
)

// Writer is an event subscriber that writes the events to an io.Writer.
type Writer struct {
	w      io.Writer
	format string
	tasks  map[string]string
	mu     sync.Mutex
}

// NewWriter returns a new writer subscriber.
func NewWriter(w io.Writer, format string) (*Writer, error) {
	switch format {
	case FormatJSON, FormatText:
	case "":
		format = FormatText
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	return &Writer{w: w, format: format, tasks: map[string]string{}}, nil
}

func (w *Writer) Send(_ context.Context, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.format == FormatJSON {
		_, err := fmt.Fprintf(w.w, "%s\n", data)
		return err
	}

	return w.writeText(data)
}

type textEvent struct {
	Type    string `json:"type"`
	TaskID  string `json:"taskId"`
	Command string `json:"command"`
	Data    any    `json:"data"`
	Running bool   `json:"is_running"`
}

func (w *Writer) writeText(data []byte) error {
	var ev textEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("could not decode event: %w", err)
	}

	var err error
	switch ev.Type {
	case event.TypeTaskStart:
		w.tasks[ev.TaskID] = ev.Command
		_, err = fmt.Fprintf(w.w, "==> %s\n", ev.Command)
	case event.TypeLog:
		line, _ := ev.Data.(string)
		_, err = fmt.Fprintf(w.w, "[%s] %s\n", w.tasks[ev.TaskID], line)
	case event.TypeTaskEnd:
		_, err = fmt.Fprintf(w.w, "<== %s\n", w.tasks[ev.TaskID])
		delete(w.tasks, ev.TaskID)
	case event.TypeDataUpdated:
		_, err = fmt.Fprintln(w.w, "Dataset updated")
	}

	return err
}
