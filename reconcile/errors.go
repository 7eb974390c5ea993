package reconcile

import "fmt"

// Step names one independently retried unit of reconciliation work.
type Step string

const (
	StepDirectory   Step = "directory_sync"
	StepContact     Step = "contact_upsert"
	StepInteraction Step = "interaction_log"
	StepMemory      Step = "memory_session"
	StepCounters    Step = "daily_counters"
	StepInvalidate  Step = "cache_invalidation"
	StepPublish     Step = "event_publish"
)

// StepError is a reconciliation step that failed after its retry budget.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("reconciliation step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
