package tree

import "errors"

var (
	// ErrNotRooted is returned when a bifurcating root is required.
	ErrNotRooted = errors.New("tree is not rooted")
	// ErrNotEnoughLeaves is returned when an operation needs
	// at least three leaves.
	ErrNotEnoughLeaves = errors.New("not enough leaves")
	// ErrBadNode is returned for a node id which cannot be used.
	ErrBadNode = errors.New("bad node")
)
