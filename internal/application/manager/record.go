package manager

import (
	"github.com/younwookim/sceneflow/internal/domain/scene"
)

// Membership is the list a tracked scene currently belongs to.
type Membership int

const (
	Released Membership = iota
	Loaded
	Unloading
)

// String returns the string representation of the membership
func (m Membership) String() string {
	switch m {
	case Released:
		return "Released"
	case Loaded:
		return "Loaded"
	case Unloading:
		return "Unloading"
	default:
		return "Unknown"
	}
}

// record is a scene tracked by a Manager.
type record struct {
	ref        scene.Ref
	scene      scene.Scene
	membership Membership
	unload     *unloadAttempt
	seq        uint64 // load order; never reused
}

// unloadAttempt is shared by every caller waiting on the same unload.
type unloadAttempt struct {
	done chan struct{}
	err  error
}

func indexOf(list []*record, rec *record) int {
	for i, r := range list {
		if r == rec {
			return i
		}
	}
	return -1
}

func removeAt(list []*record, i int) []*record {
	return append(list[:i:i], list[i+1:]...)
}

// insertInLoadOrder puts rec before the first record loaded after it.
func insertInLoadOrder(list []*record, rec *record) []*record {
	i := len(list)
	for j, r := range list {
		if r.seq > rec.seq {
			i = j
			break
		}
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = rec
	return list
}
