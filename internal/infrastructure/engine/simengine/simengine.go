// Package simengine is an in-memory engine whose operations progress by
// explicit ticks.
//
// It stands in for the host engine's scene graph in the demo and in tests:
// the frame loop calls Tick once per frame and pending loads and unloads
// advance by the elapsed time.
package simengine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/younwookim/sceneflow/internal/domain/scene"
	"github.com/younwookim/sceneflow/internal/infrastructure/engine"
)

var (
	// ErrUnknownScene is returned when a ref or handle cannot be resolved.
	ErrUnknownScene = errors.New("simengine: unknown scene")
	// ErrAlreadyUnloading is returned when a unit already has an unload pending.
	ErrAlreadyUnloading = errors.New("simengine: scene already unloading")
)

// Spec describes one entry of the build catalog.
type Spec struct {
	Name       string
	LoadTime   time.Duration
	UnloadTime time.Duration
}

// Engine is a tick-driven engine.Engine.
type Engine struct {
	mu         sync.Mutex
	catalog    []Spec
	nextHandle scene.Handle
	live       []scene.Scene
	unloading  map[scene.Handle]bool
	active     scene.Scene
	pending    []*operation

	loads   int
	unloads int
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine whose build index i is catalog[i].
func New(catalog []Spec) *Engine {
	return &Engine{
		catalog:   append([]Spec(nil), catalog...),
		unloading: make(map[scene.Handle]bool),
	}
}

// SetCatalog replaces the build catalog. Pending operations keep the
// timings they started with.
func (e *Engine) SetCatalog(catalog []Spec) {
	e.mu.Lock()
	e.catalog = append([]Spec(nil), catalog...)
	e.mu.Unlock()
}

// BeginLoad implements engine.Engine.
func (e *Engine) BeginLoad(ref scene.Ref) (*engine.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	index, err := e.resolveLocked(ref)
	if err != nil {
		return nil, err
	}
	spec := e.catalog[index]
	e.loads++

	op := newOperation(spec.LoadTime, func() (scene.Scene, error) {
		e.nextHandle++
		s := scene.Scene{Handle: e.nextHandle, Name: spec.Name, BuildIndex: index}
		e.live = append(e.live, s)
		return s, nil
	})
	e.startLocked(op)
	return engine.Wrap(op), nil
}

// BeginUnload implements engine.Engine.
func (e *Engine) BeginUnload(h scene.Handle) (*engine.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.liveIndexLocked(h)
	if i < 0 {
		return nil, fmt.Errorf("%w: handle %d is not loaded", ErrUnknownScene, h)
	}
	if e.unloading[h] {
		return nil, fmt.Errorf("%w: handle %d", ErrAlreadyUnloading, h)
	}
	target := e.live[i]
	unloadTime := time.Duration(0)
	if target.BuildIndex < len(e.catalog) {
		unloadTime = e.catalog[target.BuildIndex].UnloadTime
	}
	e.unloading[h] = true
	e.unloads++

	op := newOperation(unloadTime, func() (scene.Scene, error) {
		delete(e.unloading, h)
		if j := e.liveIndexLocked(h); j >= 0 {
			e.live = append(e.live[:j], e.live[j+1:]...)
		}
		if e.active.Handle == h {
			e.active = scene.None
		}
		return target, nil
	})
	e.startLocked(op)
	return engine.Wrap(op), nil
}

// ActiveScene implements engine.Engine.
func (e *Engine) ActiveScene() scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// SetActiveScene implements engine.Engine.
func (e *Engine) SetActiveScene(s scene.Scene) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.liveIndexLocked(s.Handle) < 0 {
		return fmt.Errorf("%w: cannot activate %s", ErrUnknownScene, s)
	}
	e.active = s
	return nil
}

// Scenes implements engine.Engine.
func (e *Engine) Scenes() []scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]scene.Scene(nil), e.live...)
}

// Tick advances every pending operation by dt. Operations that finish
// complete in the order they were started.
func (e *Engine) Tick(dt time.Duration) {
	e.mu.Lock()
	var finished []*operation
	remaining := e.pending[:0]
	for _, op := range e.pending {
		if op.advance(dt) {
			op.complete()
			finished = append(finished, op)
			continue
		}
		remaining = append(remaining, op)
	}
	e.pending = remaining
	e.mu.Unlock()

	// Waiters are released outside the engine lock so they can query it.
	for _, op := range finished {
		close(op.done)
	}
}

// Pending returns the number of operations still in flight.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Calls returns how many loads and unloads were begun.
func (e *Engine) Calls() (loads, unloads int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads, e.unloads
}

func (e *Engine) startLocked(op *operation) {
	if op.total <= 0 {
		op.complete()
		close(op.done)
		return
	}
	e.pending = append(e.pending, op)
}

func (e *Engine) resolveLocked(ref scene.Ref) (int, error) {
	switch ref.Kind() {
	case scene.RefIndex, scene.RefHandle:
		index, _ := ref.Index()
		if index < 0 || index >= len(e.catalog) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownScene, ref)
		}
		return index, nil
	case scene.RefName:
		name, _ := ref.Name()
		for i, spec := range e.catalog {
			if spec.Name == name {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownScene, ref)
}

func (e *Engine) liveIndexLocked(h scene.Handle) int {
	if !h.Valid() {
		return -1
	}
	for i, s := range e.live {
		if s.Handle == h {
			return i
		}
	}
	return -1
}

// operation is the engine.Native produced by Engine. Its mutable fields are
// guarded by the owning engine's lock except where noted.
type operation struct {
	done    chan struct{}
	total   time.Duration
	elapsed time.Duration
	apply   func() (scene.Scene, error)

	mu       sync.Mutex
	progress float64
	result   scene.Scene
	err      error
}

func newOperation(total time.Duration, apply func() (scene.Scene, error)) *operation {
	return &operation{done: make(chan struct{}), total: total, apply: apply}
}

func (o *operation) advance(dt time.Duration) bool {
	o.elapsed += dt
	o.mu.Lock()
	o.progress = float64(o.elapsed) / float64(o.total)
	o.mu.Unlock()
	return o.elapsed >= o.total
}

func (o *operation) complete() {
	res, err := o.apply()
	o.mu.Lock()
	o.result, o.err, o.progress = res, err, 1
	o.mu.Unlock()
}

func (o *operation) Done() <-chan struct{} { return o.done }

func (o *operation) Progress() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

func (o *operation) Result() (scene.Scene, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result, o.err
}
