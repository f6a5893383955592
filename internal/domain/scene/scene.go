// Package scene defines the identity model for loadable content units.
//
// A Scene is a snapshot of a unit the engine currently has loaded. A Ref is
// the caller's way of naming a unit before (or after) it is loaded: by build
// index, by name, or by the handle of a live scene.
package scene

import "fmt"

// Handle is an opaque engine-assigned identifier for a live scene.
// The zero Handle never refers to a scene.
type Handle uint64

// Valid reports whether h can refer to a live scene.
func (h Handle) Valid() bool {
	return h != 0
}

// Scene is a live content unit as reported by the engine.
//
// Handles are never reused by an engine instance, so comparing Handles is
// the only reliable identity check. Two scenes with the same name or build
// index may be distinct units (the same content loaded twice).
type Scene struct {
	Handle     Handle
	Name       string
	BuildIndex int
}

// None is the invalid scene, used for "no unit".
var None = Scene{}

// Valid reports whether s refers to a live unit.
func (s Scene) Valid() bool {
	return s.Handle.Valid()
}

// Is reports whether s and other are the same live unit.
func (s Scene) Is(other Scene) bool {
	return s.Valid() && s.Handle == other.Handle
}

func (s Scene) String() string {
	if !s.Valid() {
		return "<none>"
	}
	return fmt.Sprintf("%s#%d", s.Name, s.Handle)
}
