package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the pipeline phase an error came from.
type Stage string

const (
	StageValidating  Stage = "validating"
	StagePreparing   Stage = "preparing"
	StageDispatching Stage = "dispatching"
	StageMerging     Stage = "merging"
	StageResolving   Stage = "resolving"
)

// ErrNoTransactionDetected is the audio-path outcome for a recording with no
// explicit amount. It is a valid "nothing found" result, not an infrastructure
// failure, and callers are expected to present it differently.
var ErrNoTransactionDetected = errors.New("no transaction detected")

// PipelineError wraps a stage failure. The pipeline fails fast: the first
// stage to fail aborts the whole attempt, nothing is retried, and no partial
// draft is surfaced.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("extraction pipeline failed while %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
