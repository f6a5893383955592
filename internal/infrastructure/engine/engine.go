// Package engine defines the boundary between the scene core and the host
// engine's scene graph.
//
// The core never loads or unloads synchronously: every request to the
// engine returns an Operation that completes later.
package engine

import "github.com/younwookim/sceneflow/internal/domain/scene"

// Engine is the host engine's scene subsystem.
type Engine interface {
	// BeginLoad starts loading the unit named by ref additively.
	// It fails immediately if the engine cannot resolve ref.
	BeginLoad(ref scene.Ref) (*Operation, error)

	// BeginUnload starts unloading the live unit with the given handle.
	BeginUnload(h scene.Handle) (*Operation, error)

	// ActiveScene returns the scene the engine currently treats as active.
	ActiveScene() scene.Scene

	// SetActiveScene makes s the engine's active scene.
	SetActiveScene(s scene.Scene) error

	// Scenes returns every live unit, in load order.
	Scenes() []scene.Scene
}

// Native is the engine's own asynchronous primitive.
type Native interface {
	// Done is closed once the operation has finished, successfully or not.
	Done() <-chan struct{}

	// Progress is the engine-reported completion ratio.
	Progress() float64

	// Result returns the loaded (or unloaded) scene once Done is closed.
	Result() (scene.Scene, error)
}
