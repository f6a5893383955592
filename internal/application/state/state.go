// Package state defines the loading screen state machine.
package state

// LoadingState is the stage a loading screen transition has reached.
// States only ever move forward, one step at a time.
type LoadingState int

const (
	WaitingToStart LoadingState = iota
	Loading
	TargetSceneLoaded
	TransitionComplete
)

// String returns the string representation of the loading state
func (s LoadingState) String() string {
	switch s {
	case WaitingToStart:
		return "WaitingToStart"
	case Loading:
		return "Loading"
	case TargetSceneLoaded:
		return "TargetSceneLoaded"
	case TransitionComplete:
		return "TransitionComplete"
	default:
		return "Unknown"
	}
}

// Next returns the state that follows s, and false when s is terminal.
func (s LoadingState) Next() (LoadingState, bool) {
	if s < WaitingToStart || s >= TransitionComplete {
		return s, false
	}
	return s + 1, true
}

// CanAdvanceTo reports whether next is the immediate successor of s.
func (s LoadingState) CanAdvanceTo(next LoadingState) bool {
	n, ok := s.Next()
	return ok && n == next
}

// Reached reports whether s is at or past target.
func (s LoadingState) Reached(target LoadingState) bool {
	return s >= target
}
