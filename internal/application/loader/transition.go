package loader

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/younwookim/sceneflow/internal/application/loading"
	"github.com/younwookim/sceneflow/internal/application/state"
	"github.com/younwookim/sceneflow/internal/domain/scene"
	"github.com/younwookim/sceneflow/internal/infrastructure/engine"
	"github.com/younwookim/sceneflow/internal/metrics"
)

// Transition modes, used as metric labels.
const (
	modeDirect             = "direct"
	modeIntermediate       = "intermediate"
	modeIntermediateDriver = "intermediate_driver"
)

type transition struct {
	log            zerolog.Logger
	mode           string
	targets        []scene.Ref
	setIndexActive int
	external       scene.Scene
}

// fromExternal reports whether the source scene was supplied by the caller
// rather than taken from the manager.
func (t *transition) fromExternal() bool {
	return t.external.Valid()
}

// TransitionToScenes replaces the current content with targets.
//
// The source is external when it is a valid scene, and the manager's active
// scene otherwise. Without an intermediate scene the source is unloaded and
// the targets loaded. With one, the intermediate scene is loaded first; if
// a loading screen driver is registered for it, the source is only unloaded
// once the driver reports Loading, target progress is relayed to the driver
// and the intermediate scene is only unloaded once the driver reports
// TransitionComplete.
//
// The source is always fully unloaded before any target starts loading.
// There is no timeout on waiting for the driver; bound ctx if needed.
// Cancellation leaves completed steps in place.
func (l *Loader) TransitionToScenes(ctx context.Context, targets []scene.Ref, setIndexActive int, intermediate scene.Ref, external scene.Scene) ([]scene.Scene, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	ctx, done := l.scope(ctx)
	defer done()

	t := &transition{
		log:            l.log.With().Str("transition_id", uuid.NewString()).Logger(),
		mode:           modeDirect,
		targets:        targets,
		setIndexActive: setIndexActive,
		external:       external,
	}
	start := time.Now()
	t.log.Debug().Int("targets", len(targets)).Stringer("intermediate", intermediate).Stringer("external", external).Msg("transition started")

	var scenes []scene.Scene
	var err error
	if intermediate.IsZero() {
		scenes, err = l.transitionDirectly(ctx, t)
	} else {
		t.mode = modeIntermediate
		scenes, err = l.transitionWithIntermediate(ctx, t, intermediate)
	}
	err = cause(ctx, err)

	metrics.ObserveTransition(t.mode, time.Since(start), err)
	if err != nil {
		t.log.Debug().Err(err).Str("mode", t.mode).Msg("transition failed")
		return nil, err
	}
	t.log.Debug().Str("mode", t.mode).Dur("elapsed", time.Since(start)).Msg("transition complete")
	return scenes, nil
}

// TransitionToScene is TransitionToScenes for a single target, which
// becomes the active scene.
func (l *Loader) TransitionToScene(ctx context.Context, target scene.Ref, intermediate scene.Ref, external scene.Scene) (scene.Scene, error) {
	scenes, err := l.TransitionToScenes(ctx, []scene.Ref{target}, 0, intermediate, external)
	if err != nil || len(scenes) == 0 {
		return scene.None, err
	}
	return scenes[0], nil
}

func (l *Loader) transitionDirectly(ctx context.Context, t *transition) ([]scene.Scene, error) {
	if err := l.unloadSource(ctx, t, l.source(t)); err != nil {
		return nil, err
	}
	return l.manager.LoadScenes(ctx, t.targets, t.setIndexActive, nil)
}

func (l *Loader) transitionWithIntermediate(ctx context.Context, t *transition, intermediate scene.Ref) ([]scene.Scene, error) {
	loadingScene, err := l.manager.LoadScene(ctx, intermediate, false, nil)
	if err != nil {
		return nil, err
	}
	t.log.Debug().Stringer("scene", loadingScene).Msg("intermediate scene loaded")

	source := l.source(t)
	driver, ok := l.drivers.Lookup(loadingScene.Handle)
	if !ok {
		return l.transitionWithoutDriver(ctx, t, loadingScene, source)
	}
	t.mode = modeIntermediateDriver
	return l.transitionWithDriver(ctx, t, loadingScene, driver)
}

func (l *Loader) transitionWithoutDriver(ctx context.Context, t *transition, loadingScene, source scene.Scene) ([]scene.Scene, error) {
	if err := l.unloadSource(ctx, t, source); err != nil {
		return nil, err
	}
	scenes, err := l.manager.LoadScenes(ctx, t.targets, t.setIndexActive, nil)
	if err != nil {
		return nil, err
	}
	l.detachUnloadIntermediate(loadingScene)
	return scenes, nil
}

func (l *Loader) transitionWithDriver(ctx context.Context, t *transition, loadingScene scene.Scene, driver loading.Driver) ([]scene.Scene, error) {
	progress := driver.Progress()
	if err := progress.Wait(ctx, state.Loading); err != nil {
		return nil, err
	}

	// The active scene may have changed while the loading screen opened.
	source := l.source(t)
	if err := l.unloadSource(ctx, t, source); err != nil {
		return nil, err
	}

	scenes, err := l.manager.LoadScenes(ctx, t.targets, t.setIndexActive, progress)
	if err != nil {
		return nil, err
	}
	if err := progress.SetState(state.TargetSceneLoaded); err != nil {
		return nil, err
	}
	if err := progress.Wait(ctx, state.TransitionComplete); err != nil {
		return nil, err
	}

	l.detachUnloadIntermediate(loadingScene)
	return scenes, nil
}

func (l *Loader) source(t *transition) scene.Scene {
	if t.fromExternal() {
		return t.external
	}
	return l.manager.ActiveScene()
}

// unloadSource unloads the transition's source. External sources are not
// tracked by the manager, so they go straight to the engine.
func (l *Loader) unloadSource(ctx context.Context, t *transition, source scene.Scene) error {
	if !source.Valid() {
		return nil
	}
	t.log.Debug().Stringer("scene", source).Bool("external", t.fromExternal()).Msg("unloading source")
	if !t.fromExternal() {
		_, err := l.manager.UnloadScene(ctx, scene.ByScene(source))
		return err
	}
	op, err := engine.Started(l.engine.BeginUnload(source.Handle))
	if err != nil {
		return err
	}
	_, err = op.Wait(ctx)
	return err
}

func (l *Loader) detachUnloadIntermediate(loadingScene scene.Scene) {
	l.detach("unload intermediate scene", func(ctx context.Context) error {
		_, err := l.manager.UnloadScene(ctx, scene.ByScene(loadingScene))
		return err
	})
}
