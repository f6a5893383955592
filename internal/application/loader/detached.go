package loader

import (
	"context"

	"github.com/younwookim/sceneflow/internal/domain/scene"
	"github.com/younwookim/sceneflow/internal/metrics"
)

// StartTransitionToScenes runs TransitionToScenes detached.
func (l *Loader) StartTransitionToScenes(targets []scene.Ref, setIndexActive int, intermediate scene.Ref, external scene.Scene) {
	l.detach("transition to scenes", func(ctx context.Context) error {
		_, err := l.TransitionToScenes(ctx, targets, setIndexActive, intermediate, external)
		return err
	})
}

// StartTransitionToScene runs TransitionToScene detached.
func (l *Loader) StartTransitionToScene(target scene.Ref, intermediate scene.Ref, external scene.Scene) {
	l.detach("transition to scene", func(ctx context.Context) error {
		_, err := l.TransitionToScene(ctx, target, intermediate, external)
		return err
	})
}

// StartLoadScenes runs LoadScenes detached.
func (l *Loader) StartLoadScenes(refs []scene.Ref, setIndexActive int) {
	l.detach("load scenes", func(ctx context.Context) error {
		_, err := l.LoadScenes(ctx, refs, setIndexActive, nil)
		return err
	})
}

// StartLoadScene runs LoadScene detached.
func (l *Loader) StartLoadScene(ref scene.Ref, setActive bool) {
	l.detach("load scene", func(ctx context.Context) error {
		_, err := l.LoadScene(ctx, ref, setActive, nil)
		return err
	})
}

// StartUnloadScenes runs UnloadScenes detached.
func (l *Loader) StartUnloadScenes(refs []scene.Ref) {
	l.detach("unload scenes", func(ctx context.Context) error {
		_, err := l.UnloadScenes(ctx, refs)
		return err
	})
}

// StartUnloadScene runs UnloadScene detached.
func (l *Loader) StartUnloadScene(ref scene.Ref) {
	l.detach("unload scene", func(ctx context.Context) error {
		_, err := l.UnloadScene(ctx, ref)
		return err
	})
}

// detach runs fn in its own goroutine bound to the loader's lifetime.
// Every failure, cancellation included, goes to the error sink.
func (l *Loader) detach(op string, fn func(ctx context.Context) error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.report(op, ErrClosed)
		return
	}
	l.tasks.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.tasks.Done()
		if err := fn(l.lifetime); err != nil {
			l.report(op, err)
		}
	}()
}

// report hands err to the sink. A panicking sink is logged and swallowed.
func (l *Loader) report(op string, err error) {
	metrics.ObserveDetachedFailure(op, err)
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Str("op", op).AnErr("failure", err).Msg("error sink panicked")
		}
	}()
	l.sink(op, err)
}

func (l *Loader) logFailure(op string, err error) {
	l.log.Warn().Err(err).Str("op", op).
		Msg("detached scene operation failed; cancellation here usually means the loader was closed during shutdown")
}
