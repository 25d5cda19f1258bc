package client

// ProcessStatus is the lifecycle state of a headless process.
type ProcessStatus string

const (
	StatusPending   ProcessStatus = "pending"
	StatusRunning   ProcessStatus = "running"
	StatusCompleted ProcessStatus = "completed"
	StatusFailed    ProcessStatus = "failed"
	StatusCancelled ProcessStatus = "cancelled"
)

// IsTerminal returns true for completed, failed and cancelled.
func (s ProcessStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// HeadlessProcess is a running runtime session.
//
// Events is closed once stdout is exhausted. Errors is closed once the
// process has exited, after any exit error has been sent. Consumers read
// Events to completion and then drain Errors.
type HeadlessProcess interface {
	Events() <-chan OutputEvent
	Errors() <-chan error

	// SessionRef may be empty until the init event is received.
	SessionRef() string

	Status() ProcessStatus
	IsRunning() bool
	WorkDir() string

	// PID returns the OS process ID, or -1 if not running.
	PID() int

	Cancel() error
	Wait() error
}
