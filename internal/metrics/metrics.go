package metrics

import "time"

// Task outcomes.
const (
	TaskOutcomeCompleted  = "completed"
	TaskOutcomeCancelled  = "cancelled"
	TaskOutcomeTimeout    = "timeout"
	TaskOutcomeSpawnError = "spawn_error"
	TaskOutcomeAborted    = "aborted"
)

// Flow kinds.
const (
	FlowKindFull   = "full"
	FlowKindSingle = "single"
)

// Recorder knows how to record the application metrics.
type Recorder interface {
	// ObserveTask records a finished task. The outcome keeps apart the tasks
	// that were cancelled or timed out, their task status is complete anyway.
	ObserveTask(command, outcome string, duration time.Duration)
	ObserveFlow(kind string, duration time.Duration)
	SetComics(total, failed int)
	IncNotification(success bool)
	IncCoverCache(result string)
}

// Noop recorder doesn't record anything.
const Noop = noop(0)

type noop int

func (noop) ObserveTask(string, string, time.Duration) {}
func (noop) ObserveFlow(string, time.Duration)         {}
func (noop) SetComics(int, int)                        {}
func (noop) IncNotification(bool)                      {}
func (noop) IncCoverCache(string)                      {}
