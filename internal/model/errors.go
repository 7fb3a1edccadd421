package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrFlowRunning is returned when a flow is requested while another one is still active.
	ErrFlowRunning = errors.New("an update flow is already running")
	// ErrMissingConfig is returned when an optional component has not been configured.
	ErrMissingConfig = errors.New("missing configuration")
)
