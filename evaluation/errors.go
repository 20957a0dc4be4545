package evaluation

import (
	"errors"
	"fmt"

	"github.com/c360studio/evalinstruments/llm"
)

// Evaluation errors.
var (
	// ErrNotConfigured is returned when a run starts without a prepare or
	// complete function.
	ErrNotConfigured = errors.New("evaluator not configured")

	// ErrNilCompletion is returned when the complete function yields nil.
	ErrNilCompletion = errors.New("completion returned nil")

	// ErrNotMapping is returned when a completion cannot be read as a mapping.
	ErrNotMapping = errors.New("completion is not a mapping")
)

// Stage names the pipeline step that failed.
type Stage string

// Pipeline stages.
const (
	StagePrepare     Stage = "prepare"
	StageComplete    Stage = "complete"
	StagePostProcess Stage = "post_process"
)

// StageError reports a pipeline callable failure for one sample.
type StageError struct {
	Stage Stage
	Key   string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s sample %q: %v", e.Stage, e.Key, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Retryable reports whether resuming the run from Key may succeed: the
// completion failed with a transient llm.CompletionError. The evaluator
// itself never retries.
func (e *StageError) Retryable() bool {
	return e.Stage == StageComplete && llm.IsTransient(e.Err)
}
