package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureTracker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		threshold int
		events    string // f = failure, s = success
		halted    bool
		streak    int
	}{
		{name: "halts at threshold", threshold: 3, events: "fff", halted: true, streak: 3},
		{name: "one short of threshold", threshold: 3, events: "ff", streak: 2},
		{name: "success resets streak", threshold: 3, events: "ffsff", streak: 2},
		{name: "streak after reset halts", threshold: 3, events: "ffsfff", halted: true, streak: 3},
		{name: "zero threshold never halts", threshold: 0, events: "ffffffffff", streak: 10},
		{name: "threshold of one", threshold: 1, events: "sf", halted: true, streak: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := NewFailureTracker(tt.threshold)
			for _, e := range tt.events {
				if e == 'f' {
					tr.Failure()
				} else {
					tr.Success()
				}
			}
			assert.Equal(t, tt.halted, tr.Halted())
			assert.Equal(t, tt.streak, tr.Streak())
			if tt.halted {
				assert.Contains(t, tr.Reason(), "consecutive failures")
			} else {
				assert.Empty(t, tr.Reason())
			}
		})
	}
}

func TestFailureTrackerStaysHalted(t *testing.T) {
	t.Parallel()

	tr := NewFailureTracker(2)
	assert.False(t, tr.Failure())
	assert.True(t, tr.Failure())
	tr.Success()
	assert.True(t, tr.Halted(), "a halt is final")
}
