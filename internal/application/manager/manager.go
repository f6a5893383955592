// Package manager tracks the scenes loaded within one logical layer of a
// game and serializes their lifecycle.
//
// A Manager only knows about scenes it loaded itself. Every scene it tracks
// is either in the loaded list (insertion ordered) or in the unloading list,
// never both; once an unload completes the scene leaves both.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/younwookim/sceneflow/internal/domain/scene"
	"github.com/younwookim/sceneflow/internal/infrastructure/engine"
	"github.com/younwookim/sceneflow/internal/log"
	"github.com/younwookim/sceneflow/internal/metrics"
)

var (
	// ErrNilEngine is returned by New when no engine is supplied.
	ErrNilEngine = errors.New("manager: engine is required")
	// ErrNotManaged is returned for scenes this manager did not load.
	ErrNotManaged = errors.New("manager: scene not managed by this manager")
	// ErrSceneNotFound is returned by LoadedSceneByName when nothing matches.
	ErrSceneNotFound = errors.New("manager: no loaded scene with that name")
	// ErrIndexOutOfRange is returned by LoadedSceneAt.
	ErrIndexOutOfRange = errors.New("manager: loaded scene index out of range")
	// ErrClosed is returned once the manager has been closed.
	ErrClosed = errors.New("manager: closed")
)

const defaultPollInterval = 16 * time.Millisecond

// ProgressReporter receives load progress in [0, 1].
type ProgressReporter interface {
	Report(progress float64)
}

// ReporterFunc adapts a func to ProgressReporter.
type ReporterFunc func(progress float64)

// Report implements ProgressReporter.
func (f ReporterFunc) Report(progress float64) { f(progress) }

// Manager owns the loaded and unloading scene lists of one layer.
type Manager struct {
	engine       engine.Engine
	log          zerolog.Logger
	pollInterval time.Duration

	mu        sync.Mutex
	loaded    []*record
	unloading []*record
	byHandle  map[scene.Handle]*record
	active    scene.Scene
	closed    bool
	nextSeq   uint64

	events hub
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithPollInterval sets how often load progress is sampled for reporters.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// New creates a Manager on top of eng.
func New(eng engine.Engine, opts ...Option) (*Manager, error) {
	if eng == nil {
		return nil, ErrNilEngine
	}
	m := &Manager{
		engine:       eng,
		log:          log.WithComponent("manager"),
		pollInterval: defaultPollInterval,
		byHandle:     make(map[scene.Handle]*record),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Close stops the manager from accepting new operations and drops all
// listeners. Operations already issued to the engine still settle.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.events.clear()
	return nil
}

// SceneCount returns the number of scenes in the loaded list.
func (m *Manager) SceneCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded)
}

// IsUnloading reports whether any unload is in flight.
func (m *Manager) IsUnloading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unloading) > 0
}

// ActiveScene returns the active scene, or scene.None.
func (m *Manager) ActiveScene() scene.Scene {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// LoadedSceneAt returns the scene at index in load order.
func (m *Manager) LoadedSceneAt(index int) (scene.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.loaded) {
		return scene.None, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(m.loaded))
	}
	return m.loaded[index].scene, nil
}

// LastLoadedScene returns the most recently loaded scene that is not being
// unloaded, or scene.None.
func (m *Manager) LastLoadedScene() scene.Scene {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLoadedLocked()
}

// LoadedSceneByName returns the first loaded scene with the given name.
func (m *Manager) LoadedSceneByName(name string) (scene.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.loaded {
		if rec.scene.Name == name {
			return rec.scene, nil
		}
	}
	return scene.None, fmt.Errorf("%w: %q", ErrSceneNotFound, name)
}

// LoadedScenes returns a snapshot of the loaded list.
func (m *Manager) LoadedScenes() []scene.Scene {
	m.mu.Lock()
	defer m.mu.Unlock()
	scenes := make([]scene.Scene, len(m.loaded))
	for i, rec := range m.loaded {
		scenes[i] = rec.scene
	}
	return scenes
}

// SetActiveScene marks s as the active scene. s must be in the loaded list
// unless it is scene.None. The change event fires on every call, except
// when both the previous and the new active scene are invalid.
func (m *Manager) SetActiveScene(s scene.Scene) error {
	m.mu.Lock()
	done, err := m.setActiveLocked(s)
	m.mu.Unlock()
	m.events.flush(done)
	metrics.ObserveSceneOperation("activate", err)
	return err
}

func (m *Manager) setActiveLocked(s scene.Scene) (<-chan struct{}, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if s.Valid() {
		rec, ok := m.byHandle[s.Handle]
		if !ok || rec.membership != Loaded {
			return nil, fmt.Errorf("%w: cannot activate %s", ErrNotManaged, s)
		}
		s = rec.scene
		if err := m.engine.SetActiveScene(s); err != nil {
			return nil, err
		}
	}
	previous := m.active
	m.active = s
	m.log.Debug().Stringer("previous", previous).Stringer("current", s).Msg("active scene changed")
	if !previous.Valid() && !s.Valid() {
		return nil, nil
	}
	return m.events.enqueue(event{kind: eventActiveChanged, previous: previous, scene: s}), nil
}

func (m *Manager) lastLoadedLocked() scene.Scene {
	for i := len(m.loaded) - 1; i >= 0; i-- {
		if rec := m.loaded[i]; rec.membership == Loaded {
			return rec.scene
		}
	}
	return scene.None
}

// findLocked resolves ref to the most recently loaded matching record,
// falling back to records that are already unloading.
func (m *Manager) findLocked(ref scene.Ref) *record {
	if ref.IsZero() {
		return nil
	}
	for i := len(m.loaded) - 1; i >= 0; i-- {
		if ref.Matches(m.loaded[i].scene) {
			return m.loaded[i]
		}
	}
	for _, rec := range m.unloading {
		if ref.Matches(rec.scene) {
			return rec
		}
	}
	return nil
}

// UnloadScenes unloads every ref concurrently and returns the unloaded
// scenes in ref order.
func (m *Manager) UnloadScenes(ctx context.Context, refs []scene.Ref) ([]scene.Scene, error) {
	scenes := make([]scene.Scene, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			s, err := m.UnloadScene(gctx, ref)
			scenes[i] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scenes, nil
}

func (m *Manager) checkOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}
