// Package audit records every change provtest pushes to a target in a
// JSON-lines log.
package audit

import (
	"fmt"
	"time"
)

// Operation names what was pushed to the target.
type Operation string

const (
	// OpApply is the first application of a case manifest.
	OpApply Operation = "apply"
	// OpReapply is the idempotence re-application.
	OpReapply Operation = "reapply"
	// OpSetup is raw device CLI run ahead of a case.
	OpSetup Operation = "setup"
	// OpPreclean removes every instance of a resource type.
	OpPreclean Operation = "preclean"
	// OpRestore returns an interface to defaults after capability trials.
	OpRestore Operation = "restore"
)

// Event is one change pushed to a target.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	User      string        `json:"user,omitempty"`
	Target    string        `json:"target"`
	Operation Operation     `json:"operation"`
	Suite     string        `json:"suite,omitempty"`
	Case      string        `json:"case,omitempty"`
	Ensure    string        `json:"ensure,omitempty"`
	Manifest  string        `json:"manifest,omitempty"`
	Commands  []string      `json:"commands,omitempty"`
	ExitCode  int           `json:"exit_code"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Filter selects events in Query. Zero fields match everything.
type Filter struct {
	Target      string
	Suite       string
	Case        string
	Operation   Operation
	StartTime   time.Time
	EndTime     time.Time
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates an event stamped with the current time.
func NewEvent(user, target string, op Operation) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		User:      user,
		Target:    target,
		Operation: op,
	}
}

// WithCase sets the suite, case and ensure state the change belongs to.
func (e *Event) WithCase(suite, name, ensure string) *Event {
	e.Suite = suite
	e.Case = name
	e.Ensure = ensure
	return e
}

// WithManifest sets the applied manifest document.
func (e *Event) WithManifest(doc string) *Event {
	e.Manifest = doc
	return e
}

// WithCommands sets the raw commands run on the device.
func (e *Event) WithCommands(cmds []string) *Event {
	e.Commands = cmds
	return e
}

// WithOutcome records the exit code and transport error. The change
// succeeded when the transport did and the code is not an error variant.
func (e *Event) WithOutcome(code int, err error) *Event {
	e.ExitCode = code
	e.Success = err == nil && (code == 0 || code == 2)
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
