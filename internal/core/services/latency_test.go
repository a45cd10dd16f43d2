package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatencyTracker_FirstObservationInitializes(t *testing.T) {
	tr := NewLatencyTracker(0.2)
	tr.Observe("A", 400)
	v, ok := tr.Get("A")
	assert.True(t, ok)
	assert.Equal(t, 400.0, v)
}

func TestLatencyTracker_FoldsWithAlpha(t *testing.T) {
	tr := NewLatencyTracker(0.5)
	tr.Observe("A", 400)
	tr.Observe("A", 800)
	v, _ := tr.Get("A")
	assert.InDelta(t, 600.0, v, 1e-9)
}

func TestLatencyTracker_UnknownProviderReadsAsAbsent(t *testing.T) {
	tr := NewLatencyTracker(0.2)
	_, ok := tr.Get("nobody")
	assert.False(t, ok)
}
