package harness

import (
	"errors"
	"fmt"

	"github.com/newtron-network/provtest/pkg/util"
)

// Status is the outcome of a case run or a suite.
type Status string

const (
	StatusPassed  Status = "PASS"
	StatusFailed  Status = "FAIL"
	StatusSkipped Status = "SKIP"
	StatusError   Status = "ERROR"
)

// Stage is a case run's position in the pipeline.
type Stage string

const (
	StageBuild       Stage = "BUILD"
	StageApply       Stage = "APPLY"
	StageVerify      Stage = "VERIFY"
	StageIdempotence Stage = "IDEMPOTENCE"
	StageDone        Stage = "DONE"
)

// Outcome is the result of a case run: the final status, the stage it ended
// in, and why.
type Outcome struct {
	Status Status
	Stage  Stage
	Reason string
	Err    error
}

// Pass is a passing outcome.
func Pass() Outcome {
	return Outcome{Status: StatusPassed, Stage: StageDone}
}

// Skip is a skipped outcome at stage.
func Skip(stage Stage, format string, args ...any) Outcome {
	reason := fmt.Sprintf(format, args...)
	return Outcome{Status: StatusSkipped, Stage: stage, Reason: reason, Err: util.NewSkipError("%s", reason)}
}

// outcomeFor classifies err at stage. Apply failures, pattern mismatches and
// idempotence violations are FAIL; unmet prerequisites are SKIP; everything
// else is ERROR.
func outcomeFor(stage Stage, err error) Outcome {
	o := Outcome{Stage: stage, Err: err, Reason: err.Error()}
	var skip *util.SkipError
	switch {
	case errors.As(err, &skip):
		o.Status = StatusSkipped
		o.Reason = skip.Reason
	case errors.Is(err, util.ErrApplyFailed),
		errors.Is(err, util.ErrPatternMismatch),
		errors.Is(err, util.ErrNotIdempotent):
		o.Status = StatusFailed
	default:
		o.Status = StatusError
	}
	return o
}

// InfraError represents a suite-level failure to talk to the target.
type InfraError struct {
	Op    string // "facts", "probe", "connect"
	Suite string
	Err   error
}

func (e *InfraError) Error() string {
	if e.Suite != "" {
		return fmt.Sprintf("provtest: %s %s: %v", e.Op, e.Suite, e.Err)
	}
	return fmt.Sprintf("provtest: %s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}

// statusVerb returns a past-tense verb for a status, used in skip reasons.
func statusVerb(s Status) string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusError:
		return "errored"
	case StatusSkipped:
		return "was skipped"
	default:
		return string(s)
	}
}
