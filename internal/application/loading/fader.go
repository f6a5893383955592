package loading

import (
	"image/color"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/younwookim/sceneflow/internal/application/state"
)

// Colors for rendering
var (
	colorOverlay     = color.RGBA{0, 0, 0, 255}
	colorProgressBG  = color.RGBA{60, 60, 60, 255}
	colorProgressBar = color.RGBA{100, 200, 100, 255}
)

// Fader is a frame-driven driver that fades a black overlay in, holds it
// while the targets load, and fades it out again.
//
// It owns both screen-facing edges: WaitingToStart→Loading once the overlay
// is opaque, and TargetSceneLoaded→TransitionComplete once it is clear
// again. The overlay stays up for at least MinDisplayTime after Loading.
type Fader struct {
	FadeTime       time.Duration
	MinDisplayTime time.Duration

	behavior *Behavior

	mu    sync.Mutex
	alpha float64
	shown time.Duration
	pixel *ebiten.Image
}

// NewFader returns a fader with its own scripted Behavior.
func NewFader(fadeTime, minDisplayTime time.Duration) *Fader {
	b := NewBehavior()
	b.SetWaitForScriptedStart(true)
	b.SetWaitForScriptedEnd(true)
	return &Fader{
		FadeTime:       fadeTime,
		MinDisplayTime: minDisplayTime,
		behavior:       b,
	}
}

// Progress implements Driver.
func (f *Fader) Progress() *Progress { return f.behavior.Progress() }

// Alpha returns the current overlay opacity.
func (f *Fader) Alpha() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alpha
}

// Update advances the fade by dt seconds.
func (f *Fader) Update(dt float64) error {
	progress := f.behavior.Progress()
	step := time.Duration(dt * float64(time.Second))

	f.mu.Lock()
	var advance state.LoadingState
	switch progress.State() {
	case state.WaitingToStart:
		f.alpha += f.fadeStep(dt)
		if f.alpha >= 1 {
			f.alpha = 1
			advance = state.Loading
		}
	case state.Loading:
		f.shown += step
	case state.TargetSceneLoaded:
		f.shown += step
		if f.shown < f.MinDisplayTime {
			break
		}
		f.alpha -= f.fadeStep(dt)
		if f.alpha <= 0 {
			f.alpha = 0
			advance = state.TransitionComplete
		}
	}
	f.mu.Unlock()

	if advance != state.WaitingToStart {
		return progress.SetState(advance)
	}
	return nil
}

// Draw renders the overlay and the load progress bar.
func (f *Fader) Draw(screen *ebiten.Image) {
	alpha := f.Alpha()
	if alpha <= 0 {
		return
	}
	if f.pixel == nil {
		f.pixel = ebiten.NewImage(1, 1)
		f.pixel.Fill(color.White)
	}

	bounds := screen.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	f.fillRect(screen, 0, 0, w, h, colorOverlay, alpha)

	// Progress bar along the bottom
	barW := w * 0.6
	barH := 6.0
	barX := (w - barW) / 2
	barY := h - 24
	f.fillRect(screen, barX, barY, barW, barH, colorProgressBG, alpha)
	f.fillRect(screen, barX, barY, barW*f.Progress().Value(), barH, colorProgressBar, alpha)
}

func (f *Fader) fillRect(dst *ebiten.Image, x, y, w, h float64, c color.RGBA, alpha float64) {
	if w <= 0 || h <= 0 {
		return
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(w, h)
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(c)
	op.ColorScale.ScaleAlpha(float32(alpha))
	dst.DrawImage(f.pixel, op)
}

func (f *Fader) fadeStep(dt float64) float64 {
	if f.FadeTime <= 0 {
		return 1
	}
	return dt / f.FadeTime.Seconds()
}
