// Package loader orchestrates scene transitions on top of a lifecycle
// manager.
//
// Every operation has an awaitable form that returns its error, and a
// Start* form that runs detached and routes failures to an error sink.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/younwookim/sceneflow/internal/application/loading"
	"github.com/younwookim/sceneflow/internal/application/manager"
	"github.com/younwookim/sceneflow/internal/domain/scene"
	"github.com/younwookim/sceneflow/internal/infrastructure/engine"
	"github.com/younwookim/sceneflow/internal/log"
)

var (
	// ErrNilManager is returned by New when no manager is supplied.
	ErrNilManager = errors.New("loader: manager is required")
	// ErrNilEngine is returned by New when no engine is supplied.
	ErrNilEngine = errors.New("loader: engine is required")
	// ErrNoTargets is returned for transitions without target scenes.
	ErrNoTargets = errors.New("loader: no target scenes")
	// ErrClosed is the cancellation cause of operations cut short by Close.
	ErrClosed = fmt.Errorf("loader: closed: %w", context.Canceled)
)

// ErrorSink receives the failures of detached operations. op names the
// operation that failed.
type ErrorSink func(op string, err error)

// Loader sequences scene transitions. It owns its manager: closing the
// loader closes the manager.
type Loader struct {
	manager *manager.Manager
	engine  engine.Engine
	drivers *loading.Registry
	log     zerolog.Logger
	sink    ErrorSink

	lifetime context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
	tasks  sync.WaitGroup
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(ld *Loader) { ld.log = l }
}

// WithErrorSink replaces the default sink, which logs a warning.
func WithErrorSink(sink ErrorSink) Option {
	return func(ld *Loader) {
		if sink != nil {
			ld.sink = sink
		}
	}
}

// New creates a Loader. drivers may be nil, in which case intermediate
// scenes never have a loading screen driver.
func New(m *manager.Manager, eng engine.Engine, drivers *loading.Registry, opts ...Option) (*Loader, error) {
	if m == nil {
		return nil, ErrNilManager
	}
	if eng == nil {
		return nil, ErrNilEngine
	}
	lifetime, cancel := context.WithCancel(context.Background())
	l := &Loader{
		manager:  m,
		engine:   eng,
		drivers:  drivers,
		log:      log.WithComponent("loader"),
		lifetime: lifetime,
		cancel:   cancel,
	}
	l.sink = l.logFailure
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Manager returns the lifecycle manager the loader drives.
func (l *Loader) Manager() *manager.Manager {
	return l.manager
}

// Close cancels every operation the loader started, waits for detached
// operations to return and closes the manager. Engine operations already
// issued are not rolled back.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.tasks.Wait()
	return l.manager.Close()
}

// LoadScene loads one scene through the manager.
func (l *Loader) LoadScene(ctx context.Context, ref scene.Ref, setActive bool, progress manager.ProgressReporter) (scene.Scene, error) {
	ctx, done := l.scope(ctx)
	defer done()
	s, err := l.manager.LoadScene(ctx, ref, setActive, progress)
	return s, cause(ctx, err)
}

// LoadScenes loads several scenes through the manager.
func (l *Loader) LoadScenes(ctx context.Context, refs []scene.Ref, setIndexActive int, progress manager.ProgressReporter) ([]scene.Scene, error) {
	ctx, done := l.scope(ctx)
	defer done()
	scenes, err := l.manager.LoadScenes(ctx, refs, setIndexActive, progress)
	return scenes, cause(ctx, err)
}

// UnloadScene unloads one scene through the manager.
func (l *Loader) UnloadScene(ctx context.Context, ref scene.Ref) (scene.Scene, error) {
	ctx, done := l.scope(ctx)
	defer done()
	s, err := l.manager.UnloadScene(ctx, ref)
	return s, cause(ctx, err)
}

// UnloadScenes unloads several scenes through the manager.
func (l *Loader) UnloadScenes(ctx context.Context, refs []scene.Ref) ([]scene.Scene, error) {
	ctx, done := l.scope(ctx)
	defer done()
	scenes, err := l.manager.UnloadScenes(ctx, refs)
	return scenes, cause(ctx, err)
}

func (l *Loader) String() string {
	return "scene loader (async)"
}

// scope derives a context that is also cancelled, with cause ErrClosed,
// when the loader closes.
func (l *Loader) scope(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(l.lifetime, func() { cancel(ErrClosed) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// cause replaces a bare cancellation error with the reason ctx was
// cancelled. Other errors pass through unchanged.
func cause(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return context.Cause(ctx)
	}
	return err
}
