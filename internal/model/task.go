package model

import (
	"time"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusComplete TaskStatus = "complete"
)

// TaskProgress is the last progress reported by the external tool for a task.
type TaskProgress struct {
	Current int
	Total   int
}

// Task is a single external command execution inside a flow.
type Task struct {
	ID        string
	FlowID    string
	Command   string
	Status    TaskStatus
	StartedAt time.Time
	Logs      []string
	Progress  TaskProgress
}

// Flow is one end-to-end refresh run composed by an ordered sequence of tasks.
type Flow struct {
	ID     string
	Active bool
	Tasks  []Task
}
