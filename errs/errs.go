// Package errs defines the error taxonomy shared across the replica's
// packages. Call sites wrap these sentinels with github.com/pkg/errors
// for context; callers that need to distinguish a kind use errors.Is.
package errs

import "github.com/pkg/errors"

var (
	// NameCollision is returned by a local create/rename/move when the
	// destination name is already taken by a visible sibling.
	NameCollision = errors.New("name collision")

	// MoveWouldCreateCycle is returned by a Move that would make a node
	// its own ancestor.
	MoveWouldCreateCycle = errors.New("move would create cycle")

	// VariantMismatch is returned when a file is edited through the
	// API for a content variant other than the one it was created with.
	VariantMismatch = errors.New("content variant mismatch")

	// NotFound is returned when a local id no longer refers to a
	// visible node, typically after a concurrent delete.
	NotFound = errors.New("not found")

	// Closed names the error kind for an operation on a cancelled
	// replica. No operation in this module returns it: session.Replica
	// has no close or cancel method.
	Closed = errors.New("replica closed")

	// Stale names the error kind for a retained view whose generation no
	// longer matches its node. No operation in this module returns it:
	// tree.DirView and tree.FileView report staleness through IsStale.
	Stale = errors.New("stale view")
)
