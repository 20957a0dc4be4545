package evaluation

import (
	"time"

	"github.com/c360studio/evalinstruments/usage"
)

// Recorder observes run progress. metrics.Collector implements it.
type Recorder interface {
	// ObserveSample is called after a sample's usage is accumulated.
	ObserveSample(key string, u usage.Usage, d time.Duration)

	// BudgetStop is called when a run stops because total exceeded capacity.
	BudgetStop(total, capacity usage.Usage)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSample(string, usage.Usage, time.Duration) {}
func (nopRecorder) BudgetStop(usage.Usage, usage.Usage)              {}
