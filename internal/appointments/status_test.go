package appointments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusScheduled, StatusConfirmed, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusNoShow, true},
		{StatusScheduled, StatusInProgress, false},
		{StatusScheduled, StatusCompleted, false},
		{StatusConfirmed, StatusInProgress, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusConfirmed, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusNoShow, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusCompleted, StatusScheduled, false},
		{StatusCompleted, StatusConfirmed, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusNoShow, StatusScheduled, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusScheduled.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusNoShow.Terminal())
}

func TestStatusActive(t *testing.T) {
	for _, s := range ActiveStatuses {
		assert.True(t, s.Active())
		assert.False(t, s.Terminal())
	}
	assert.False(t, StatusCompleted.Active())
	assert.False(t, StatusCancelled.Active())
	assert.False(t, StatusNoShow.Active())
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusScheduled.Valid())
	assert.False(t, Status("pending").Valid())
}
