package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusProcessing.CanFollow(StatusPending))
	assert.True(t, StatusUploading.CanFollow(StatusProcessing))
	assert.True(t, StatusCompleted.CanFollow(StatusUploading))
	assert.True(t, StatusFailed.CanFollow(StatusProcessing))
	assert.True(t, StatusFailed.CanFollow(StatusUploading))
}

func TestStatusTransitionsForwardOnly(t *testing.T) {
	t.Parallel()

	all := []Status{StatusPending, StatusProcessing, StatusUploading, StatusCompleted, StatusFailed}

	// PENDING is only an initial state, never a target.
	for _, from := range all {
		assert.False(t, StatusPending.CanFollow(from), "PENDING must not follow %s", from)
	}

	// No transition leaves a terminal state.
	for _, to := range all {
		assert.False(t, to.CanFollow(StatusCompleted), "%s must not follow COMPLETED", to)
		assert.False(t, to.CanFollow(StatusFailed), "%s must not follow FAILED", to)
	}

	// No skipping forward.
	assert.False(t, StatusUploading.CanFollow(StatusPending))
	assert.False(t, StatusCompleted.CanFollow(StatusPending))
	assert.False(t, StatusCompleted.CanFollow(StatusProcessing))
	assert.False(t, StatusFailed.CanFollow(StatusPending))
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.False(t, StatusUploading.Terminal())
}
