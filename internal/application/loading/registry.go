package loading

import (
	"slices"
	"sync"

	"github.com/younwookim/sceneflow/internal/domain/scene"
)

// Driver presents a loading screen and owns the screen-facing edges of its
// Progress.
type Driver interface {
	Progress() *Progress
}

// Factory builds the driver for a freshly loaded scene. It returns false
// for scenes that are not loading screens.
type Factory func(s scene.Scene) (Driver, bool)

// SceneEvents is the subset of the lifecycle manager the registry listens to.
type SceneEvents interface {
	OnSceneLoaded(fn func(scene.Scene)) (remove func())
	OnSceneUnloaded(fn func(scene.Scene)) (remove func())
}

// Registry maps live loading-screen scenes to their drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[scene.Handle]Driver
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[scene.Handle]Driver)}
}

// Register attaches d to the live scene h, replacing any previous driver.
func (r *Registry) Register(h scene.Handle, d Driver) {
	if !h.Valid() || d == nil {
		return
	}
	r.mu.Lock()
	r.drivers[h] = d
	r.mu.Unlock()
}

// Unregister drops the driver attached to h.
func (r *Registry) Unregister(h scene.Handle) {
	r.mu.Lock()
	delete(r.drivers, h)
	r.mu.Unlock()
}

// Lookup returns the driver attached to h.
func (r *Registry) Lookup(h scene.Handle) (Driver, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[h]
	return d, ok
}

// Len returns the number of registered drivers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.drivers)
}

// Drivers returns the registered drivers ordered by scene handle, so the
// oldest loading screen comes first.
func (r *Registry) Drivers() []Driver {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	handles := make([]scene.Handle, 0, len(r.drivers))
	for h := range r.drivers {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	out := make([]Driver, 0, len(handles))
	for _, h := range handles {
		out = append(out, r.drivers[h])
	}
	r.mu.RUnlock()
	return out
}

// Bind ties driver lifetime to scene lifetime: every scene loaded through
// events gets a driver from factory (when it is a loading screen), and the
// driver is dropped when the scene unloads.
func (r *Registry) Bind(events SceneEvents, factory Factory) (unbind func()) {
	removeLoaded := events.OnSceneLoaded(func(s scene.Scene) {
		if d, ok := factory(s); ok {
			r.Register(s.Handle, d)
		}
	})
	removeUnloaded := events.OnSceneUnloaded(func(s scene.Scene) {
		r.Unregister(s.Handle)
	})
	return func() {
		removeLoaded()
		removeUnloaded()
	}
}
