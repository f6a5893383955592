package loader

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/younwookim/sceneflow/internal/application/loading"
	"github.com/younwookim/sceneflow/internal/application/manager"
	"github.com/younwookim/sceneflow/internal/application/state"
	"github.com/younwookim/sceneflow/internal/domain/scene"
	"github.com/younwookim/sceneflow/internal/infrastructure/engine/simengine"
)

const waitFor = 2 * time.Second

func catalog() []simengine.Spec {
	return []simengine.Spec{
		{Name: "menu"},
		{Name: "loading"},
		{Name: "level"},
		{Name: "hud"},
	}
}

// recorder captures manager events and loading states in order
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fixture struct {
	eng     *simengine.Engine
	manager *manager.Manager
	drivers *loading.Registry
	loader  *Loader
	rec     *recorder

	mu        sync.Mutex
	behaviors []*loading.Behavior
}

type fixtureOptions struct {
	scriptedStart bool
	scriptedEnd   bool
	noDrivers     bool
	sink          ErrorSink
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	f := &fixture{
		eng:     simengine.New(catalog()),
		drivers: loading.NewRegistry(),
		rec:     &recorder{},
	}
	m, err := manager.New(f.eng, manager.WithLogger(zerolog.New(io.Discard)), manager.WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	f.manager = m

	m.OnSceneLoaded(func(s scene.Scene) { f.rec.add("loaded " + s.Name) })
	m.OnSceneUnloaded(func(s scene.Scene) { f.rec.add("unloaded " + s.Name) })

	if !opts.noDrivers {
		f.drivers.Bind(m, func(s scene.Scene) (loading.Driver, bool) {
			if s.Name != "loading" {
				return nil, false
			}
			b := loading.NewBehavior()
			b.SetWaitForScriptedStart(opts.scriptedStart)
			b.SetWaitForScriptedEnd(opts.scriptedEnd)
			b.Progress().OnStateChanged(func(st state.LoadingState) { f.rec.add("state " + st.String()) })
			f.mu.Lock()
			f.behaviors = append(f.behaviors, b)
			f.mu.Unlock()
			_ = b.Start()
			return b, true
		})
	}

	loaderOpts := []Option{WithLogger(zerolog.New(io.Discard))}
	if opts.sink != nil {
		loaderOpts = append(loaderOpts, WithErrorSink(opts.sink))
	}
	f.loader, err = New(m, f.eng, f.drivers, loaderOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.loader.Close() })
	return f
}

// behavior returns the driver created for the most recent loading screen.
func (f *fixture) behavior(t *testing.T) *loading.Behavior {
	t.Helper()
	var b *loading.Behavior
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.behaviors) == 0 {
			return false
		}
		b = f.behaviors[len(f.behaviors)-1]
		return true
	}, waitFor, time.Millisecond)
	return b
}

func (f *fixture) loadActive(t *testing.T, name string) scene.Scene {
	t.Helper()
	s, err := f.manager.LoadScene(context.Background(), scene.ByName(name), true, nil)
	require.NoError(t, err)
	return s
}

func (f *fixture) loadedNames() []string {
	var names []string
	for _, s := range f.manager.LoadedScenes() {
		names = append(names, s.Name)
	}
	return names
}

type result struct {
	scenes []scene.Scene
	err    error
}

func TestNew_Validation(t *testing.T) {
	eng := simengine.New(catalog())
	m, err := manager.New(eng)
	require.NoError(t, err)

	l, err := New(nil, eng, nil)
	assert.Nil(t, l)
	assert.ErrorIs(t, err, ErrNilManager)

	l, err = New(m, nil, nil)
	assert.Nil(t, l)
	assert.ErrorIs(t, err, ErrNilEngine)

	l, err = New(m, eng, nil)
	require.NoError(t, err)
	assert.Same(t, m, l.Manager())
	assert.NoError(t, l.Close())
}

func TestLoader_NoTargets(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	_, err := f.loader.TransitionToScenes(context.Background(), nil, 0, scene.Ref{}, scene.None)
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestLoader_DirectTransition(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.loadActive(t, "menu")

	scenes, err := f.loader.TransitionToScenes(context.Background(),
		[]scene.Ref{scene.ByName("level"), scene.ByName("hud")}, 0, scene.Ref{}, scene.None)
	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, "level", scenes[0].Name)
	assert.Equal(t, "hud", scenes[1].Name)

	assert.Equal(t, []string{"level", "hud"}, f.loadedNames())
	assert.True(t, f.manager.ActiveScene().Is(scenes[0]))

	want := []string{"loaded menu", "unloaded menu", "loaded level", "loaded hud"}
	if diff := cmp.Diff(want, f.rec.snapshot()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_DirectTransitionWithoutSource(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	s, err := f.loader.TransitionToScene(context.Background(), scene.ByIndex(2), scene.Ref{}, scene.None)
	require.NoError(t, err)
	assert.Equal(t, "level", s.Name)
	assert.True(t, f.manager.ActiveScene().Is(s))
}

func TestLoader_ExternalSourceUnloadedThroughEngine(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	op, err := f.eng.BeginLoad(scene.ByName("menu"))
	require.NoError(t, err)
	external, err := op.Wait(context.Background())
	require.NoError(t, err)

	_, err = f.loader.TransitionToScene(context.Background(), scene.ByName("level"), scene.Ref{}, external)
	require.NoError(t, err)

	for _, s := range f.eng.Scenes() {
		assert.False(t, s.Is(external), "external source still live")
	}
	assert.Equal(t, []string{"level"}, f.loadedNames())
	assert.Equal(t, []string{"loaded level"}, f.rec.snapshot())
}

func TestLoader_IntermediateWithoutDriver(t *testing.T) {
	f := newFixture(t, fixtureOptions{noDrivers: true})
	f.loadActive(t, "menu")

	s, err := f.loader.TransitionToScene(context.Background(), scene.ByName("level"), scene.ByName("loading"), scene.None)
	require.NoError(t, err)
	assert.Equal(t, "level", s.Name)

	require.Eventually(t, func() bool { return f.manager.SceneCount() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"level"}, f.loadedNames())

	want := []string{"loaded menu", "loaded loading", "unloaded menu", "loaded level", "unloaded loading"}
	if diff := cmp.Diff(want, f.rec.snapshot()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_IntermediateWithDriver(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.loadActive(t, "menu")

	s, err := f.loader.TransitionToScene(context.Background(), scene.ByName("level"), scene.ByName("loading"), scene.None)
	require.NoError(t, err)
	assert.Equal(t, "level", s.Name)

	require.Eventually(t, func() bool { return f.manager.SceneCount() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, 0, f.drivers.Len())
	assert.True(t, f.manager.ActiveScene().Is(s))

	want := []string{
		"loaded menu",
		"loaded loading",
		"state Loading",
		"unloaded menu",
		"loaded level",
		"state TargetSceneLoaded",
		"state TransitionComplete",
		"unloaded loading",
	}
	if diff := cmp.Diff(want, f.rec.snapshot()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_ScriptedDriverGatesEachStep(t *testing.T) {
	f := newFixture(t, fixtureOptions{scriptedStart: true, scriptedEnd: true})
	f.loadActive(t, "menu")

	done := make(chan result, 1)
	go func() {
		scenes, err := f.loader.TransitionToScenes(context.Background(),
			[]scene.Ref{scene.ByName("level")}, 0, scene.ByName("loading"), scene.None)
		done <- result{scenes, err}
	}()

	b := f.behavior(t)
	progress := b.Progress()

	// the source stays loaded until the loading screen reports Loading
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"menu", "loading"}, f.loadedNames())

	require.NoError(t, progress.SetState(state.Loading))
	require.Eventually(t, func() bool { return progress.State() == state.TargetSceneLoaded }, waitFor, time.Millisecond)
	assert.Equal(t, 1.0, progress.Value())

	// the intermediate scene stays loaded until TransitionComplete
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"loading", "level"}, f.loadedNames())
	select {
	case r := <-done:
		t.Fatalf("transition returned before TransitionComplete: %v", r.err)
	default:
	}

	require.NoError(t, progress.SetState(state.TransitionComplete))
	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Len(t, r.scenes, 1)
		assert.Equal(t, "level", r.scenes[0].Name)
	case <-time.After(waitFor):
		t.Fatal("transition did not complete")
	}
	require.Eventually(t, func() bool { return f.manager.SceneCount() == 1 }, waitFor, time.Millisecond)
}

func TestLoader_SourceResolvedAfterLoadingStarts(t *testing.T) {
	f := newFixture(t, fixtureOptions{scriptedStart: true})
	f.loadActive(t, "menu")

	done := make(chan result, 1)
	go func() {
		scenes, err := f.loader.TransitionToScenes(context.Background(),
			[]scene.Ref{scene.ByName("level")}, 0, scene.ByName("loading"), scene.None)
		done <- result{scenes, err}
	}()

	b := f.behavior(t)
	hud, err := f.manager.LoadScene(context.Background(), scene.ByName("hud"), true, nil)
	require.NoError(t, err)
	require.NoError(t, b.Progress().SetState(state.Loading))

	select {
	case r := <-done:
		require.NoError(t, r.err)
	case <-time.After(waitFor):
		t.Fatal("transition did not complete")
	}
	require.Eventually(t, func() bool { return f.manager.SceneCount() == 2 }, waitFor, time.Millisecond)

	// hud was active when loading started, so it is the source; menu stays
	assert.Equal(t, []string{"menu", "level"}, f.loadedNames())
	assert.False(t, f.manager.LoadedScenes()[0].Is(hud))
}

func TestLoader_CancelWhileWaitingForDriver(t *testing.T) {
	f := newFixture(t, fixtureOptions{scriptedStart: true})
	f.loadActive(t, "menu")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan result, 1)
	go func() {
		scenes, err := f.loader.TransitionToScenes(ctx,
			[]scene.Ref{scene.ByName("level")}, 0, scene.ByName("loading"), scene.None)
		done <- result{scenes, err}
	}()

	f.behavior(t)
	cancel()

	select {
	case r := <-done:
		assert.ErrorIs(t, r.err, context.Canceled)
		assert.Nil(t, r.scenes)
	case <-time.After(waitFor):
		t.Fatal("transition ignored cancellation")
	}

	// completed steps are not rolled back
	assert.Equal(t, []string{"menu", "loading"}, f.loadedNames())
}

func TestLoader_DeadlineBoundsDriverWait(t *testing.T) {
	f := newFixture(t, fixtureOptions{scriptedStart: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.loader.TransitionToScene(ctx, scene.ByName("level"), scene.ByName("loading"), scene.None)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoader_CloseCancelsTransition(t *testing.T) {
	f := newFixture(t, fixtureOptions{scriptedStart: true})

	done := make(chan result, 1)
	go func() {
		scenes, err := f.loader.TransitionToScenes(context.Background(),
			[]scene.Ref{scene.ByName("level")}, 0, scene.ByName("loading"), scene.None)
		done <- result{scenes, err}
	}()
	f.behavior(t)

	require.NoError(t, f.loader.Close())
	select {
	case r := <-done:
		assert.ErrorIs(t, r.err, ErrClosed)
		assert.ErrorIs(t, r.err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("transition survived Close")
	}

	_, err := f.loader.LoadScene(context.Background(), scene.ByName("menu"), false, nil)
	assert.Error(t, err)
	assert.NoError(t, f.loader.Close())
}

func TestLoader_EngineErrorsPropagate(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.loadActive(t, "menu")

	_, err := f.loader.TransitionToScene(context.Background(), scene.ByName("missing"), scene.Ref{}, scene.None)
	assert.ErrorIs(t, err, simengine.ErrUnknownScene)

	_, err = f.loader.TransitionToScene(context.Background(), scene.ByName("level"), scene.ByName("missing"), scene.None)
	assert.ErrorIs(t, err, simengine.ErrUnknownScene)
}

func TestLoader_PassThroughs(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	scenes, err := f.loader.LoadScenes(ctx, []scene.Ref{scene.ByName("menu"), scene.ByName("hud")}, 1, nil)
	require.NoError(t, err)
	assert.True(t, f.manager.ActiveScene().Is(scenes[1]))

	s, err := f.loader.LoadScene(ctx, scene.ByName("level"), false, nil)
	require.NoError(t, err)

	unloaded, err := f.loader.UnloadScene(ctx, scene.ByScene(s))
	require.NoError(t, err)
	assert.True(t, unloaded.Is(s))

	_, err = f.loader.UnloadScenes(ctx, []scene.Ref{scene.ByName("menu"), scene.ByName("hud")})
	require.NoError(t, err)
	assert.Zero(t, f.manager.SceneCount())
}

type sinkCall struct {
	op  string
	err error
}

func TestLoader_DetachedFailuresReachSink(t *testing.T) {
	calls := make(chan sinkCall, 4)
	f := newFixture(t, fixtureOptions{sink: func(op string, err error) { calls <- sinkCall{op, err} }})

	f.loader.StartLoadScene(scene.ByName("missing"), false)
	select {
	case c := <-calls:
		assert.Equal(t, "load scene", c.op)
		assert.ErrorIs(t, c.err, simengine.ErrUnknownScene)
	case <-time.After(waitFor):
		t.Fatal("sink not called")
	}

	f.loader.StartUnloadScene(scene.ByName("menu"))
	select {
	case c := <-calls:
		assert.Equal(t, "unload scene", c.op)
		assert.ErrorIs(t, c.err, manager.ErrNotManaged)
	case <-time.After(waitFor):
		t.Fatal("sink not called")
	}
}

func TestLoader_DetachedSuccess(t *testing.T) {
	calls := make(chan sinkCall, 4)
	f := newFixture(t, fixtureOptions{sink: func(op string, err error) { calls <- sinkCall{op, err} }})

	f.loader.StartLoadScenes([]scene.Ref{scene.ByName("menu")}, 0)
	require.Eventually(t, func() bool { return f.manager.SceneCount() == 1 }, waitFor, time.Millisecond)

	f.loader.StartTransitionToScene(scene.ByName("level"), scene.ByName("loading"), scene.None)
	require.Eventually(t, func() bool {
		return f.manager.LastLoadedScene().Name == "level" && f.manager.SceneCount() == 1
	}, waitFor, time.Millisecond)

	f.loader.StartTransitionToScenes([]scene.Ref{scene.ByName("menu"), scene.ByName("hud")}, 1, scene.Ref{}, scene.None)
	require.Eventually(t, func() bool { return f.manager.SceneCount() == 2 }, waitFor, time.Millisecond)

	f.loader.StartUnloadScenes([]scene.Ref{scene.ByName("menu"), scene.ByName("hud")})
	require.Eventually(t, func() bool { return f.manager.SceneCount() == 0 }, waitFor, time.Millisecond)

	require.NoError(t, f.loader.Close())
	select {
	case c := <-calls:
		t.Fatalf("unexpected failure from %s: %v", c.op, c.err)
	default:
	}
}

func TestLoader_DetachedCancelledByClose(t *testing.T) {
	calls := make(chan sinkCall, 4)
	f := newFixture(t, fixtureOptions{
		scriptedStart: true,
		sink:          func(op string, err error) { calls <- sinkCall{op, err} },
	})

	f.loader.StartTransitionToScene(scene.ByName("level"), scene.ByName("loading"), scene.None)
	f.behavior(t)
	require.NoError(t, f.loader.Close())

	select {
	case c := <-calls:
		assert.Equal(t, "transition to scene", c.op)
		assert.ErrorIs(t, c.err, context.Canceled)
	default:
		t.Fatal("Close returned before the detached transition reported")
	}

	f.loader.StartLoadScene(scene.ByName("menu"), false)
	c := <-calls
	assert.ErrorIs(t, c.err, ErrClosed)
}

func TestLoader_PanickingSinkIsRecovered(t *testing.T) {
	var called sync.WaitGroup
	called.Add(1)
	f := newFixture(t, fixtureOptions{sink: func(op string, err error) {
		defer called.Done()
		panic(errors.New("sink exploded"))
	}})

	f.loader.StartUnloadScene(scene.ByName("menu"))
	called.Wait()
	require.NoError(t, f.loader.Close())
}

func TestLoader_NoGoroutineLeaks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	eng := simengine.New(catalog())
	m, err := manager.New(eng, manager.WithLogger(zerolog.New(io.Discard)), manager.WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	drivers := loading.NewRegistry()
	drivers.Bind(m, func(s scene.Scene) (loading.Driver, bool) {
		if s.Name != "loading" {
			return nil, false
		}
		b := loading.NewBehavior()
		_ = b.Start()
		return b, true
	})
	l, err := New(m, eng, drivers, WithLogger(zerolog.New(io.Discard)))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = l.TransitionToScene(ctx, scene.ByName("menu"), scene.Ref{}, scene.None)
	require.NoError(t, err)
	_, err = l.TransitionToScene(ctx, scene.ByName("level"), scene.ByName("loading"), scene.None)
	require.NoError(t, err)
	l.StartUnloadScene(scene.ByName("missing"))

	require.NoError(t, l.Close())
}

func TestLoader_DriverFoundWhileAnotherListenerIsBusy(t *testing.T) {
	f := newFixture(t, fixtureOptions{scriptedStart: true})
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	f.manager.OnSceneLoaded(func(s scene.Scene) {
		if s.Name == "hud" {
			close(entered)
			<-release
		}
	})
	hudDone := make(chan error, 1)
	go func() {
		_, err := f.manager.LoadScene(ctx, scene.ByName("hud"), false, nil)
		hudDone <- err
	}()
	<-entered
	time.AfterFunc(50*time.Millisecond, func() { close(release) })

	// the driver never reports Loading, so the transition must block
	deadline, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err := f.loader.TransitionToScene(deadline, scene.ByName("level"), scene.ByName("loading"), scene.None)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, []string{"hud", "loading"}, f.loadedNames())
	assert.Equal(t, 1, f.drivers.Len())
	require.NoError(t, <-hudDone)
}
