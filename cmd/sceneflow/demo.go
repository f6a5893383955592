package main

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/younwookim/sceneflow/internal/application/loader"
	"github.com/younwookim/sceneflow/internal/domain/scene"
	"github.com/younwookim/sceneflow/internal/infrastructure/config"
)

var colorBG = color.RGBA{26, 26, 46, 255}

// demo is the world layer: it starts the first scene, cycles through the
// configured scenes on Space and prints the manager's bookkeeping.
type demo struct {
	loader  *loader.Loader
	config  *atomic.Pointer[config.SceneflowConfig]
	started bool
	next    int
	busy    atomic.Bool
	lastErr atomic.Pointer[error]
}

func newDemo(ld *loader.Loader, current *atomic.Pointer[config.SceneflowConfig]) *demo {
	return &demo{loader: ld, config: current}
}

func (d *demo) Update(dt float64) error {
	cfg := d.config.Load()
	if !d.started {
		d.started = true
		d.loader.StartTransitionToScene(scene.ByName(cfg.Transition.Start), scene.Ref{}, scene.None)
		return nil
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) && len(cfg.Transition.Cycle) > 0 && d.busy.CompareAndSwap(false, true) {
		target := cfg.Transition.Cycle[d.next%len(cfg.Transition.Cycle)]
		d.next++
		var intermediate scene.Ref
		if cfg.Transition.Intermediate != "" {
			intermediate = scene.ByName(cfg.Transition.Intermediate)
		}
		go d.transition(scene.ByName(target), intermediate)
	}
	return nil
}

func (d *demo) transition(target, intermediate scene.Ref) {
	defer d.busy.Store(false)
	_, err := d.loader.TransitionToScene(context.Background(), target, intermediate, scene.None)
	if err != nil {
		d.lastErr.Store(&err)
		return
	}
	d.lastErr.Store(nil)
}

func (d *demo) Draw(screen *ebiten.Image) {
	screen.Fill(colorBG)

	m := d.loader.Manager()
	var b strings.Builder
	fmt.Fprintf(&b, "active:    %s\n", m.ActiveScene())
	names := make([]string, 0, m.SceneCount())
	for _, s := range m.LoadedScenes() {
		names = append(names, s.Name)
	}
	fmt.Fprintf(&b, "loaded:    %s\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "unloading: %v\n", m.IsUnloading())
	if d.busy.Load() {
		b.WriteString("transition in progress\n")
	} else {
		b.WriteString("SPACE: next scene  ESC: quit\n")
	}
	if err := d.lastErr.Load(); err != nil {
		fmt.Fprintf(&b, "last error: %v\n", *err)
	}
	ebitenutil.DebugPrint(screen, b.String())
}
