package loading

import (
	"sync/atomic"

	"github.com/younwookim/sceneflow/internal/application/state"
)

// Behavior is a headless driver.
//
// Unless told to wait for a scripted start it moves straight to Loading on
// Start, and unless told to wait for a scripted end it completes the
// transition as soon as the target scenes are loaded. Scripted edges are
// left to whoever holds the Progress (a Fader, a cutscene, a test).
type Behavior struct {
	waitForScriptedStart atomic.Bool
	waitForScriptedEnd   atomic.Bool

	progress *Progress
	remove   func()
}

// NewBehavior returns a Behavior in WaitingToStart.
func NewBehavior() *Behavior {
	b := &Behavior{progress: NewProgress()}
	b.remove = b.progress.OnStateChanged(b.onStateChanged)
	return b
}

// Progress implements Driver.
func (b *Behavior) Progress() *Progress { return b.progress }

// SetWaitForScriptedStart makes Start leave the Loading edge to a script.
func (b *Behavior) SetWaitForScriptedStart(wait bool) { b.waitForScriptedStart.Store(wait) }

// SetWaitForScriptedEnd leaves the TransitionComplete edge to a script.
func (b *Behavior) SetWaitForScriptedEnd(wait bool) { b.waitForScriptedEnd.Store(wait) }

// Start begins the loading screen.
func (b *Behavior) Start() error {
	if b.waitForScriptedStart.Load() {
		return nil
	}
	return b.progress.SetState(state.Loading)
}

// Close detaches the behavior from its progress channel.
func (b *Behavior) Close() {
	if b.remove != nil {
		b.remove()
		b.remove = nil
	}
}

func (b *Behavior) onStateChanged(s state.LoadingState) {
	if s == state.TargetSceneLoaded && !b.waitForScriptedEnd.Load() {
		_ = b.progress.SetState(state.TransitionComplete)
	}
}
