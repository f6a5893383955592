package engine

import (
	"context"
	"errors"

	"github.com/younwookim/sceneflow/internal/domain/scene"
)

var (
	// ErrNotDone is returned by Operation.Result before the operation finished.
	ErrNotDone = errors.New("engine: operation not done")
	// ErrNoOperation is returned when an engine accepts a request but hands
	// back no operation to track it.
	ErrNoOperation = errors.New("engine: no operation returned")
)

// Operation adapts a Native engine operation to the core's conventions.
type Operation struct {
	native Native
}

// Wrap adapts n. It returns nil for a nil n.
func Wrap(n Native) *Operation {
	if n == nil {
		return nil
	}
	return &Operation{native: n}
}

// Started normalises the result of BeginLoad or BeginUnload: an error is
// returned unchanged and a nil operation becomes ErrNoOperation.
func Started(op *Operation, err error) (*Operation, error) {
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, ErrNoOperation
	}
	return op, nil
}

// Done is closed once the underlying operation has finished.
func (o *Operation) Done() <-chan struct{} {
	return o.native.Done()
}

// IsDone reports whether the operation has finished.
func (o *Operation) IsDone() bool {
	select {
	case <-o.native.Done():
		return true
	default:
		return false
	}
}

// Progress returns the completion ratio clamped to [0, 1].
// A finished operation always reports 1.
func (o *Operation) Progress() float64 {
	if o.IsDone() {
		return 1
	}
	return clamp01(o.native.Progress())
}

// Result returns the operation's scene. Engine failures are returned as-is.
func (o *Operation) Result() (scene.Scene, error) {
	if !o.IsDone() {
		return scene.None, ErrNotDone
	}
	return o.native.Result()
}

// Wait blocks until the operation finishes or ctx is done, then returns
// Result. Cancelling ctx does not cancel the engine operation.
func (o *Operation) Wait(ctx context.Context) (scene.Scene, error) {
	select {
	case <-o.native.Done():
		return o.native.Result()
	case <-ctx.Done():
		return scene.None, ctx.Err()
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
