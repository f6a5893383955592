package manager

import (
	"context"
	"fmt"

	"github.com/younwookim/sceneflow/internal/domain/scene"
	"github.com/younwookim/sceneflow/internal/infrastructure/engine"
	"github.com/younwookim/sceneflow/internal/metrics"
)

// UnloadScene unloads the most recently loaded scene matching ref.
//
// If that scene is already unloading, UnloadScene waits for the in-flight
// unload instead of issuing a second one, and returns the same scene. The
// scene leaves the loaded list before the engine is asked to unload it.
// When the active scene is unloaded, the last remaining loaded scene (or
// scene.None) becomes active.
func (m *Manager) UnloadScene(ctx context.Context, ref scene.Ref) (scene.Scene, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return scene.None, ErrClosed
	}
	rec := m.findLocked(ref)
	if rec == nil {
		m.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrNotManaged, ref)
		metrics.ObserveSceneOperation("unload", err)
		return scene.None, err
	}
	if rec.membership == Unloading {
		attempt := rec.unload
		m.mu.Unlock()
		m.log.Debug().Stringer("scene", rec.scene).Msg("joining in-flight unload")
		return m.awaitUnload(ctx, rec, attempt)
	}

	m.loaded = removeAt(m.loaded, indexOf(m.loaded, rec))
	m.unloading = append(m.unloading, rec)
	rec.membership = Unloading
	attempt := &unloadAttempt{done: make(chan struct{})}
	rec.unload = attempt
	m.mu.Unlock()

	op, err := engine.Started(m.engine.BeginUnload(rec.scene.Handle))
	if err != nil {
		m.restore(rec, attempt, err)
		metrics.ObserveSceneOperation("unload", err)
		return scene.None, err
	}
	m.log.Debug().Stringer("scene", rec.scene).Msg("unload started")
	go m.settleUnload(rec, attempt, op)
	return m.awaitUnload(ctx, rec, attempt)
}

func (m *Manager) awaitUnload(ctx context.Context, rec *record, attempt *unloadAttempt) (scene.Scene, error) {
	select {
	case <-attempt.done:
		if attempt.err != nil {
			return scene.None, attempt.err
		}
		return rec.scene, nil
	case <-ctx.Done():
		return scene.None, ctx.Err()
	}
}

func (m *Manager) settleUnload(rec *record, attempt *unloadAttempt, op *engine.Operation) {
	_, err := op.Wait(context.Background())
	metrics.ObserveSceneOperation("unload", err)
	if err != nil {
		m.log.Warn().Err(err).Stringer("scene", rec.scene).Msg("unload failed")
		m.restore(rec, attempt, err)
		return
	}

	m.mu.Lock()
	if i := indexOf(m.unloading, rec); i >= 0 {
		m.unloading = removeAt(m.unloading, i)
	}
	delete(m.byHandle, rec.scene.Handle)
	rec.membership = Released

	if m.active.Is(rec.scene) {
		previous := m.active
		next := m.lastLoadedLocked()
		if next.Valid() {
			if err := m.engine.SetActiveScene(next); err != nil {
				m.log.Warn().Err(err).Stringer("scene", next).Msg("engine refused new active scene")
			}
		}
		m.active = next
		m.events.enqueue(event{kind: eventActiveChanged, previous: previous, scene: next})
	}
	done := m.events.enqueue(event{kind: eventUnloaded, scene: rec.scene})
	m.mu.Unlock()

	m.log.Debug().Stringer("scene", rec.scene).Msg("scene unloaded")
	m.events.flush(done)
	close(attempt.done)
}

// restore puts rec back into the loaded list, at its load-order position,
// after the engine refused or failed to unload it.
func (m *Manager) restore(rec *record, attempt *unloadAttempt, err error) {
	m.mu.Lock()
	if i := indexOf(m.unloading, rec); i >= 0 {
		m.unloading = removeAt(m.unloading, i)
	}
	m.loaded = insertInLoadOrder(m.loaded, rec)
	rec.membership = Loaded
	attempt.err = err
	m.mu.Unlock()
	close(attempt.done)
}
