package monitor

import (
	"fmt"
	"time"
)

// Cycle results, also used as the metrics label.
const (
	ResultCompleted = "completed"
	ResultAborted   = "aborted"
	ResultPanicked  = "panicked"
)

// CycleResult tracks the outcome of one monitoring cycle.
type CycleResult struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	Items            int // items in the drop feed
	Invalid          int // items without a SKU
	OnCooldown       int
	Fetched          int // successful history fetches
	HistoryErrors    int // history bodies that could not be decoded
	InsufficientData int
	NotEligible      int
	Eligible         int
	Delivered        int
	FailedDeliveries int
	Pruned           int

	// Err is why the item loop stopped early, if it did.
	Err error
	// PersistErr is set when the cooldown store could not be saved.
	PersistErr error
	Panicked   bool
}

// Result returns completed, aborted or panicked.
func (r *CycleResult) Result() string {
	switch {
	case r.Panicked:
		return ResultPanicked
	case r.Err != nil:
		return ResultAborted
	}
	return ResultCompleted
}

func (r *CycleResult) Summary() string {
	return fmt.Sprintf(
		"run=%s result=%s items=%d cooldown=%d fetched=%d no_data=%d eligible=%d delivered=%d failed=%d pruned=%d dur=%s",
		r.RunID, r.Result(), r.Items, r.OnCooldown, r.Fetched,
		r.InsufficientData, r.Eligible, r.Delivered, r.FailedDeliveries,
		r.Pruned, r.Duration.Round(time.Millisecond))
}
