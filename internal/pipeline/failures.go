package pipeline

import "fmt"

// FailureTracker counts consecutive unit failures. Any success resets the
// streak; reaching the threshold halts the run. A threshold <= 0 never halts.
// It is not safe for concurrent use.
type FailureTracker struct {
	threshold int
	streak    int
	halted    bool
}

// NewFailureTracker returns a tracker halting after threshold failures in a row.
func NewFailureTracker(threshold int) *FailureTracker {
	return &FailureTracker{threshold: threshold}
}

// Failure records a failed unit and reports whether the run must halt.
func (t *FailureTracker) Failure() bool {
	t.streak++
	if t.threshold > 0 && t.streak >= t.threshold {
		t.halted = true
	}
	return t.halted
}

// Success resets the streak.
func (t *FailureTracker) Success() {
	t.streak = 0
}

// Halted reports whether the threshold was reached.
func (t *FailureTracker) Halted() bool { return t.halted }

// Streak is the current number of consecutive failures.
func (t *FailureTracker) Streak() int { return t.streak }

// Reason describes the halt; empty while running.
func (t *FailureTracker) Reason() string {
	if !t.halted {
		return ""
	}
	return fmt.Sprintf("systemic failure: %d consecutive failures", t.streak)
}
