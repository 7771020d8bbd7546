package tree

import (
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/text"
)

// CreateOp is the op broadcast for a locally created directory or file.
type CreateOp struct {
	Node     NodeGID
	Parent   NodeGID
	Name     ids.NodeName
	Variant  ContentKind // meaningful only when Node.Kind == KindFile
	Position text.ID
}

// MoveOp is the op broadcast for a move, a rename, or both at once (a
// rename is a Move with NewParent equal to the current parent).
type MoveOp struct {
	Node      NodeGID
	NewParent NodeGID
	NewName   ids.NodeName
	Position  text.ID
}

// DeleteOp is the op broadcast for a locally deleted node. Integrating it
// also tombstones every descendant, with DeletionCause AncestorDeleted.
type DeleteOp struct {
	Node NodeGID
}
