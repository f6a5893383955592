package manager

import (
	"sync"

	"github.com/younwookim/sceneflow/internal/domain/scene"
)

type eventKind int

const (
	eventLoaded eventKind = iota
	eventUnloaded
	eventActiveChanged
)

type event struct {
	kind     eventKind
	scene    scene.Scene
	previous scene.Scene
	done     chan struct{} // closed after delivery, when set
}

type listeners[F any] struct {
	next    int
	entries []listener[F]
}

type listener[F any] struct {
	id int
	fn F
}

func (l *listeners[F]) add(fn F) int {
	l.next++
	l.entries = append(l.entries, listener[F]{id: l.next, fn: fn})
	return l.next
}

func (l *listeners[F]) remove(id int) {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *listeners[F]) snapshot() []F {
	fns := make([]F, len(l.entries))
	for i, e := range l.entries {
		fns[i] = e.fn
	}
	return fns
}

// hub queues events in mutation order and delivers them one at a time.
// Events are enqueued while the manager lock is held and delivered after it
// is released, so listeners may call the manager's query methods.
//
// A mutating call returns only after its own events were delivered, by
// itself or by the goroutine already dispatching. Listeners therefore must
// not block on a manager mutation: the mutation would wait for the
// listener.
type hub struct {
	mu          sync.Mutex
	queue       []event
	dispatching bool

	loaded        listeners[func(scene.Scene)]
	unloaded      listeners[func(scene.Scene)]
	activeChanged listeners[func(previous, current scene.Scene)]
}

// enqueue appends evts and returns a channel closed once the last of them
// has been delivered.
func (h *hub) enqueue(evts ...event) <-chan struct{} {
	done := make(chan struct{})
	evts[len(evts)-1].done = done
	h.mu.Lock()
	h.queue = append(h.queue, evts...)
	h.mu.Unlock()
	return done
}

// flush delivers queued events and waits until done is closed. A nil done
// only drains.
func (h *hub) flush(done <-chan struct{}) {
	h.drain()
	if done != nil {
		<-done
	}
}

// drain delivers queued events. If another goroutine is already delivering,
// it picks up the new events instead.
func (h *hub) drain() {
	h.mu.Lock()
	if h.dispatching {
		h.mu.Unlock()
		return
	}
	h.dispatching = true
	for len(h.queue) > 0 {
		evt := h.queue[0]
		h.queue = h.queue[1:]
		switch evt.kind {
		case eventLoaded:
			fns := h.loaded.snapshot()
			h.mu.Unlock()
			for _, fn := range fns {
				fn(evt.scene)
			}
		case eventUnloaded:
			fns := h.unloaded.snapshot()
			h.mu.Unlock()
			for _, fn := range fns {
				fn(evt.scene)
			}
		case eventActiveChanged:
			fns := h.activeChanged.snapshot()
			h.mu.Unlock()
			for _, fn := range fns {
				fn(evt.previous, evt.scene)
			}
		default:
			h.mu.Unlock()
		}
		if evt.done != nil {
			close(evt.done)
		}
		h.mu.Lock()
	}
	h.dispatching = false
	h.mu.Unlock()
}

func (h *hub) clear() {
	h.mu.Lock()
	h.loaded = listeners[func(scene.Scene)]{}
	h.unloaded = listeners[func(scene.Scene)]{}
	h.activeChanged = listeners[func(previous, current scene.Scene)]{}
	h.mu.Unlock()
}

// OnSceneLoaded registers fn to run after a scene is added to the loaded list.
func (m *Manager) OnSceneLoaded(fn func(scene.Scene)) (remove func()) {
	m.events.mu.Lock()
	id := m.events.loaded.add(fn)
	m.events.mu.Unlock()
	return func() {
		m.events.mu.Lock()
		m.events.loaded.remove(id)
		m.events.mu.Unlock()
	}
}

// OnSceneUnloaded registers fn to run after a scene finished unloading.
func (m *Manager) OnSceneUnloaded(fn func(scene.Scene)) (remove func()) {
	m.events.mu.Lock()
	id := m.events.unloaded.add(fn)
	m.events.mu.Unlock()
	return func() {
		m.events.mu.Lock()
		m.events.unloaded.remove(id)
		m.events.mu.Unlock()
	}
}

// OnActiveSceneChanged registers fn to run whenever the active scene is set.
// At most one of previous and current is invalid.
func (m *Manager) OnActiveSceneChanged(fn func(previous, current scene.Scene)) (remove func()) {
	m.events.mu.Lock()
	id := m.events.activeChanged.add(fn)
	m.events.mu.Unlock()
	return func() {
		m.events.mu.Lock()
		m.events.activeChanged.remove(id)
		m.events.mu.Unlock()
	}
}
