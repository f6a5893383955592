package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadingState_String(t *testing.T) {
	tests := []struct {
		state    LoadingState
		expected string
	}{
		{WaitingToStart, "WaitingToStart"},
		{Loading, "Loading"},
		{TargetSceneLoaded, "TargetSceneLoaded"},
		{TransitionComplete, "TransitionComplete"},
		{LoadingState(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestLoadingStateConstants(t *testing.T) {
	// Verify the iota ordering
	assert.Equal(t, LoadingState(0), WaitingToStart)
	assert.Equal(t, LoadingState(1), Loading)
	assert.Equal(t, LoadingState(2), TargetSceneLoaded)
	assert.Equal(t, LoadingState(3), TransitionComplete)
}

func TestLoadingState_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		name string
		from LoadingState
		to   LoadingState
		want bool
	}{
		{"start loading", WaitingToStart, Loading, true},
		{"target loaded", Loading, TargetSceneLoaded, true},
		{"complete", TargetSceneLoaded, TransitionComplete, true},
		{"skip", WaitingToStart, TargetSceneLoaded, false},
		{"regress", TargetSceneLoaded, Loading, false},
		{"repeat", Loading, Loading, false},
		{"past terminal", TransitionComplete, TransitionComplete + 1, false},
		{"invalid origin", LoadingState(-1), WaitingToStart, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestLoadingState_Reached(t *testing.T) {
	assert.True(t, Loading.Reached(Loading))
	assert.True(t, TransitionComplete.Reached(Loading))
	assert.False(t, WaitingToStart.Reached(Loading))
}
