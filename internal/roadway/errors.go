package roadway

import (
	"fmt"
	"time"
)

// TimeoutError is returned when report generation does not complete within
// the configured ceiling. It carries the elapsed and maximum wait durations.
type TimeoutError struct {
	Elapsed time.Duration
	MaxWait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("report generation took over %s (elapsed %s)", e.MaxWait, e.Elapsed)
}

// UnsupportedResultError is returned when a completed report offers a result
// shape this client does not understand, such as more than one download URL.
// Failing loudly here beats silently picking one location.
type UnsupportedResultError struct {
	URLCount int
}

func (e *UnsupportedResultError) Error() string {
	return fmt.Sprintf("report result contains %d download URLs; only a single URL is supported", e.URLCount)
}
