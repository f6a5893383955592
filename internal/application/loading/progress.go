// Package loading implements the progress channel shared between a scene
// transition and the loading screen that presents it, plus the drivers that
// advance the screen-facing half of its state machine.
package loading

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/younwookim/sceneflow/internal/application/state"
)

// ErrInvalidTransition is returned when a state change would skip or
// regress a stage.
var ErrInvalidTransition = errors.New("loading: invalid state transition")

// Progress is the shared loading record: a forward-only state plus a load
// ratio in [0, 1].
//
// By convention it has two writers. The transition writes progress values
// and Loading→TargetSceneLoaded; the driver writes WaitingToStart→Loading
// and TargetSceneLoaded→TransitionComplete.
type Progress struct {
	mu      sync.Mutex
	state   state.LoadingState
	value   float64
	changed chan struct{}

	observers []observer
	nextID    int
	queue     []state.LoadingState
	notifying bool
}

type observer struct {
	id int
	fn func(state.LoadingState)
}

// NewProgress returns a channel in WaitingToStart with zero progress.
func NewProgress() *Progress {
	return &Progress{changed: make(chan struct{})}
}

// State returns the current state.
func (p *Progress) State() state.LoadingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Value returns the last reported progress.
func (p *Progress) Value() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Report stores a progress value, clamped to [0, 1].
func (p *Progress) Report(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
}

// SetState advances to next, which must immediately follow the current
// state. Observers are notified synchronously, in the order transitions
// happened, even when an observer itself advances the state.
func (p *Progress) SetState(next state.LoadingState) error {
	p.mu.Lock()
	if !p.state.CanAdvanceTo(next) {
		cur := p.state
		p.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
	}
	p.state = next
	close(p.changed)
	p.changed = make(chan struct{})
	p.queue = append(p.queue, next)
	if p.notifying {
		p.mu.Unlock()
		return nil
	}
	p.notifying = true
	for len(p.queue) > 0 {
		s := p.queue[0]
		p.queue = p.queue[1:]
		observers := append([]observer(nil), p.observers...)
		p.mu.Unlock()
		for _, o := range observers {
			o.fn(s)
		}
		p.mu.Lock()
	}
	p.notifying = false
	p.mu.Unlock()
	return nil
}

// Wait blocks until the state has reached target or ctx is done.
func (p *Progress) Wait(ctx context.Context, target state.LoadingState) error {
	for {
		p.mu.Lock()
		if p.state.Reached(target) {
			p.mu.Unlock()
			return nil
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OnStateChanged registers fn to run after every state transition.
// The returned func removes it.
func (p *Progress) OnStateChanged(fn func(state.LoadingState)) (remove func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.observers = append(p.observers, observer{id: id, fn: fn})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, o := range p.observers {
			if o.id == id {
				p.observers = append(p.observers[:i:i], p.observers[i+1:]...)
				return
			}
		}
	}
}
