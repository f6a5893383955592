package scene

import (
	"fmt"
	"strconv"
)

// RefKind discriminates the ways a Ref can name a unit.
type RefKind int

const (
	RefNone RefKind = iota
	RefIndex
	RefName
	RefHandle
)

// String returns the string representation of the ref kind
func (k RefKind) String() string {
	switch k {
	case RefNone:
		return "None"
	case RefIndex:
		return "Index"
	case RefName:
		return "Name"
	case RefHandle:
		return "Handle"
	default:
		return "Unknown"
	}
}

// Ref is an immutable reference to a content unit.
// The zero Ref denotes "no unit".
type Ref struct {
	kind   RefKind
	index  int
	name   string
	handle Handle
}

// ByIndex references the unit at the given build index.
func ByIndex(index int) Ref {
	return Ref{kind: RefIndex, index: index}
}

// ByName references a unit by its name.
func ByName(name string) Ref {
	return Ref{kind: RefName, name: name}
}

// ByScene references a specific live unit. The build index and name are
// kept so the ref can still be used to load the same content again.
// ByScene of an invalid scene is the zero Ref.
func ByScene(s Scene) Ref {
	if !s.Valid() {
		return Ref{}
	}
	return Ref{kind: RefHandle, index: s.BuildIndex, name: s.Name, handle: s.Handle}
}

// Kind returns the discriminant of r.
func (r Ref) Kind() RefKind { return r.kind }

// IsZero reports whether r denotes "no unit".
func (r Ref) IsZero() bool { return r.kind == RefNone }

// Index returns the build index for index and handle refs.
func (r Ref) Index() (int, bool) {
	return r.index, r.kind == RefIndex || r.kind == RefHandle
}

// Name returns the name for name and handle refs.
func (r Ref) Name() (string, bool) {
	return r.name, r.kind == RefName || r.kind == RefHandle
}

// Handle returns the live handle for handle refs.
func (r Ref) Handle() (Handle, bool) {
	return r.handle, r.kind == RefHandle
}

// Matches resolves r against a live scene.
//
// Handle refs only match the exact same live unit; index and name refs
// match any live unit that currently carries that build index or name.
func (r Ref) Matches(s Scene) bool {
	if !s.Valid() {
		return false
	}
	switch r.kind {
	case RefIndex:
		return s.BuildIndex == r.index
	case RefName:
		return s.Name == r.name
	case RefHandle:
		return s.Handle == r.handle
	default:
		return false
	}
}

func (r Ref) String() string {
	switch r.kind {
	case RefIndex:
		return "index:" + strconv.Itoa(r.index)
	case RefName:
		return "name:" + r.name
	case RefHandle:
		return fmt.Sprintf("handle:%d(%s)", r.handle, r.name)
	default:
		return "none"
	}
}
