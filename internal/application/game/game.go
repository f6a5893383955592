// Package game provides the ebiten host that drives scene operations and
// loading screens once per frame.
package game

import (
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/younwookim/sceneflow/internal/application/loading"
)

// Ticker advances pending engine operations by the frame time.
type Ticker interface {
	Tick(dt time.Duration)
}

// Layer is anything updated and drawn each frame.
type Layer interface {
	// Update advances the layer by dt seconds.
	// Returns an error to terminate the game.
	Update(dt float64) error

	// Draw renders the layer to the screen.
	Draw(screen *ebiten.Image)
}

// Game implements ebiten.Game.
//
// Each frame it ticks the engine, then updates the layers in push order,
// then the loading screen drivers that are layers themselves. Drivers are
// drawn last so the overlay covers the scene content.
type Game struct {
	engine  Ticker
	drivers *loading.Registry

	mu     sync.Mutex
	layers []*entry
	nextID int

	screenW int
	screenH int
	dt      float64
}

type entry struct {
	id    int
	layer Layer
}

// New creates a Game ticking engine. drivers may be nil.
func New(engine Ticker, drivers *loading.Registry, screenW, screenH int) *Game {
	return &Game{
		engine:  engine,
		drivers: drivers,
		screenW: screenW,
		screenH: screenH,
		dt:      1.0 / 60.0, // Default to 60 FPS
	}
}

// Push adds a layer on top of the existing ones.
func (g *Game) Push(l Layer) (remove func()) {
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.layers = append(g.layers, &entry{id: id, layer: l})
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		for i, e := range g.layers {
			if e.id == id {
				g.layers = append(g.layers[:i:i], g.layers[i+1:]...)
				return
			}
		}
	}
}

// Update ticks the engine and every layer.
// Implements ebiten.Game interface.
func (g *Game) Update() error {
	if g.engine != nil {
		g.engine.Tick(time.Duration(g.dt * float64(time.Second)))
	}
	for _, l := range g.frameLayers() {
		if err := l.Update(g.dt); err != nil {
			return err
		}
	}
	return nil
}

// Draw renders every layer, loading screens last.
// Implements ebiten.Game interface.
func (g *Game) Draw(screen *ebiten.Image) {
	for _, l := range g.frameLayers() {
		l.Draw(screen)
	}
}

// Layout returns the game's logical screen dimensions.
// Implements ebiten.Game interface.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.screenW, g.screenH
}

// SetDT sets the delta time used for updates.
// Useful for testing or custom frame rates.
func (g *Game) SetDT(dt float64) {
	g.dt = dt
}

// frameLayers snapshots the pushed layers followed by the drivers that
// render themselves.
func (g *Game) frameLayers() []Layer {
	g.mu.Lock()
	out := make([]Layer, 0, len(g.layers))
	for _, e := range g.layers {
		out = append(out, e.layer)
	}
	g.mu.Unlock()

	for _, d := range g.drivers.Drivers() {
		if l, ok := d.(Layer); ok {
			out = append(out, l)
		}
	}
	return out
}
