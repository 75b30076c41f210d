package recording

import (
	"fmt"
	"time"
)

// Budget bounds how much encoded audio a session may produce
type Budget struct {
	// WarnThreshold is the size at which the user is warned once
	WarnThreshold int64 `json:"warn_threshold"`
	// HardLimit is the size at which the session is stopped
	HardLimit int64 `json:"hard_limit"`
}

// DefaultBudget returns the default budget.
// Both limits sit below the 4.5 MB base64 transport ceiling (about 3.37 MB raw).
func DefaultBudget() Budget {
	return Budget{
		WarnThreshold: 2_600_000,
		HardLimit:     3_300_000,
	}
}

// Validate checks the budget is usable
func (b Budget) Validate() error {
	if b.HardLimit <= 0 {
		return fmt.Errorf("hard limit must be positive, got %d", b.HardLimit)
	}
	if b.WarnThreshold <= 0 || b.WarnThreshold >= b.HardLimit {
		return fmt.Errorf("warn threshold must be between 0 and the hard limit, got %d", b.WarnThreshold)
	}
	return nil
}

// Estimate projects the current average bitrate onto the hard limit
type Estimate struct {
	BytesPerSecond float64       `json:"bytes_per_second"`
	Remaining      time.Duration `json:"remaining"`
}

// Decision is the outcome of one budget evaluation
type Decision struct {
	Warn      bool
	ForceStop bool
	Estimate  Estimate
}

// Monitor applies a Budget to a single session.
// It is not safe for concurrent use; the owning session serializes calls.
type Monitor struct {
	budget        Budget
	hasWarned     bool
	stopRequested bool
}

// NewMonitor creates a monitor for one session
func NewMonitor(budget Budget) *Monitor {
	return &Monitor{budget: budget}
}

// Evaluate checks the running size. Warn is returned at most once per
// monitor, ForceStop at most once.
func (m *Monitor) Evaluate(encodedBytes int64, elapsed time.Duration) Decision {
	var d Decision

	if encodedBytes >= m.budget.WarnThreshold && !m.hasWarned {
		m.hasWarned = true
		d.Warn = true
		d.Estimate = m.estimate(encodedBytes, elapsed)
	}

	if encodedBytes >= m.budget.HardLimit && !m.stopRequested {
		m.stopRequested = true
		d.ForceStop = true
	}

	return d
}

// HasWarned reports whether the warning has fired
func (m *Monitor) HasWarned() bool {
	return m.hasWarned
}

func (m *Monitor) estimate(encodedBytes int64, elapsed time.Duration) Estimate {
	secs := elapsed.Seconds()
	if secs <= 0 || encodedBytes <= 0 {
		return Estimate{}
	}

	rate := float64(encodedBytes) / secs
	left := float64(m.budget.HardLimit - encodedBytes)
	if left < 0 {
		left = 0
	}

	return Estimate{
		BytesPerSecond: rate,
		Remaining:      time.Duration(left / rate * float64(time.Second)),
	}
}
