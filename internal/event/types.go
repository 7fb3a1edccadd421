package event

import (
	"encoding/json"

	"github.com/slok/comicsub/internal/model"
)

// Event types.
const (
	TypeTaskStart    = "task_start"
	TypeLog          = "log"
	TypeTaskEnd      = "task_end"
	TypeCurrentState = "current_state"
	TypeDataUpdated  = "data_updated"
)

// Progress is the progress of a task.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// TaskStart is published when a task starts, it's also the task
// representation used on the current state.
type TaskStart struct {
	Type      string   `json:"type"`
	FlowID    string   `json:"flowId"`
	TaskID    string   `json:"taskId"`
	Command   string   `json:"command"`
	Status    string   `json:"status"`
	StartTime float64  `json:"start_time"`
	Logs      []string `json:"logs"`
	Progress  Progress `json:"progress"`
}

// Log is published for every output line of a task.
type Log struct {
	Type   string          `json:"type"`
	TaskID string          `json:"taskId"`
	Data   string          `json:"data"`
	Parsed json.RawMessage `json:"parsed,omitempty"`
}

// TaskEnd is published when a task completes.
type TaskEnd struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
}

// FlowState is the state of an active flow.
type FlowState struct {
	Active bool                 `json:"active"`
	Tasks  map[string]TaskStart `json:"tasks"`
}

// CurrentState is sent to the observers when they join.
type CurrentState struct {
	Type      string               `json:"type"`
	IsRunning bool                 `json:"is_running"`
	Flows     map[string]FlowState `json:"flows"`
}

// DataUpdated is published when a flow has persisted the dataset.
type DataUpdated struct {
	Type string        `json:"type"`
	Data model.Dataset `json:"data"`
}

// NewTaskStart returns the event representation of a task.
func NewTaskStart(t model.Task) TaskStart {
	logs := append([]string{}, t.Logs...)
	return TaskStart{
		Type:      TypeTaskStart,
		FlowID:    t.FlowID,
		TaskID:    t.ID,
		Command:   t.Command,
		Status:    string(t.Status),
		StartTime: float64(t.StartedAt.UnixNano()) / 1e9,
		Logs:      logs,
		Progress:  Progress{Current: t.Progress.Current, Total: t.Progress.Total},
	}
}

// NewDataUpdated returns a data updated event.
func NewDataUpdated(d model.Dataset) DataUpdated {
	return DataUpdated{Type: TypeDataUpdated, Data: d.Copy()}
}
