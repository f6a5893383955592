package manager

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/younwookim/sceneflow/internal/domain/scene"
	"github.com/younwookim/sceneflow/internal/infrastructure/engine"
	"github.com/younwookim/sceneflow/internal/metrics"
)

// pendingLoad is a load issued to the engine that has not been committed to
// the loaded list yet.
type pendingLoad struct {
	ref     scene.Ref
	op      *engine.Operation
	started time.Time
	settled chan struct{}

	scene scene.Scene
	err   error
}

// LoadScene loads the scene named by ref and optionally makes it active.
// Engine failures, including an unresolvable ref, are returned unchanged.
func (m *Manager) LoadScene(ctx context.Context, ref scene.Ref, setActive bool, progress ProgressReporter) (scene.Scene, error) {
	setIndexActive := -1
	if setActive {
		setIndexActive = 0
	}
	scenes, err := m.LoadScenes(ctx, []scene.Ref{ref}, setIndexActive, progress)
	if err != nil {
		return scene.None, err
	}
	return scenes[0], nil
}

// LoadScenes loads every ref concurrently and makes the scene at
// setIndexActive active (a negative index leaves the active scene alone).
//
// Loaded scenes are appended to the loaded list in ref order regardless of
// which load finishes first. progress receives the mean progress of all
// loads. If one load fails, the others still complete and stay tracked.
//
// Once issued, a load settles even if ctx is cancelled; only the wait is
// abandoned.
func (m *Manager) LoadScenes(ctx context.Context, refs []scene.Ref, setIndexActive int, progress ProgressReporter) ([]scene.Scene, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	pending := make([]*pendingLoad, 0, len(refs))
	var after <-chan struct{}
	for _, ref := range refs {
		p, err := m.startLoad(ref, after)
		if err != nil {
			metrics.ObserveSceneOperation("load", err)
			return nil, err
		}
		pending = append(pending, p)
		after = p.settled
	}

	scenes, err := m.awaitLoads(ctx, pending, progress)
	if err != nil {
		return nil, err
	}

	if setIndexActive >= 0 && setIndexActive < len(scenes) {
		if err := m.SetActiveScene(scenes[setIndexActive]); err != nil {
			return scenes, err
		}
	}
	return scenes, nil
}

func (m *Manager) startLoad(ref scene.Ref, after <-chan struct{}) (*pendingLoad, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	op, err := engine.Started(m.engine.BeginLoad(ref))
	if err != nil {
		return nil, err
	}
	p := &pendingLoad{
		ref:     ref,
		op:      op,
		started: time.Now(),
		settled: make(chan struct{}),
	}
	m.log.Debug().Stringer("ref", ref).Msg("load started")
	go m.settleLoad(p, after)
	return p, nil
}

// settleLoad commits p once the engine finishes, but not before the load
// issued ahead of it in the same batch has settled.
func (m *Manager) settleLoad(p *pendingLoad, after <-chan struct{}) {
	s, err := p.op.Wait(context.Background())
	if after != nil {
		<-after
	}
	if err == nil {
		m.commitLoaded(p.ref, s)
		metrics.ObserveSceneLoad(time.Since(p.started))
	} else {
		m.log.Warn().Err(err).Stringer("ref", p.ref).Msg("load failed")
	}
	metrics.ObserveSceneOperation("load", err)
	p.scene, p.err = s, err
	close(p.settled)
}

func (m *Manager) commitLoaded(ref scene.Ref, s scene.Scene) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.log.Debug().Stringer("scene", s).Msg("load settled after close; not tracked")
		return
	}
	m.nextSeq++
	rec := &record{ref: ref, scene: s, membership: Loaded, seq: m.nextSeq}
	m.loaded = append(m.loaded, rec)
	m.byHandle[s.Handle] = rec
	done := m.events.enqueue(event{kind: eventLoaded, scene: s})
	m.mu.Unlock()

	m.log.Debug().Stringer("scene", s).Stringer("ref", ref).Msg("scene loaded")
	m.events.flush(done)
}

func (m *Manager) awaitLoads(ctx context.Context, pending []*pendingLoad, progress ProgressReporter) ([]scene.Scene, error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pending {
		g.Go(func() error {
			select {
			case <-p.settled:
				return p.err
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	stop := make(chan struct{})
	var relay sync.WaitGroup
	if progress != nil {
		relay.Add(1)
		go func() {
			defer relay.Done()
			m.relayProgress(pending, progress, stop)
		}()
	}

	err := g.Wait()
	close(stop)
	relay.Wait()
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress.Report(1)
	}

	scenes := make([]scene.Scene, len(pending))
	for i, p := range pending {
		scenes[i] = p.scene
	}
	return scenes, nil
}

func (m *Manager) relayProgress(pending []*pendingLoad, progress ProgressReporter, stop <-chan struct{}) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			total := 0.0
			for _, p := range pending {
				total += p.op.Progress()
			}
			progress.Report(total / float64(len(pending)))
		}
	}
}
