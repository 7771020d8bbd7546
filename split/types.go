package split

import (
	"context"

	"github.com/gibson042/canonicaljson-go"
	"github.com/pkg/errors"

	"github.com/opencollab/corefs"
)

// Child is a pointer to one child of a Node: either a subtree Node or a
// leaf chunk, identified by ref, at a given byte offset in the overall
// stream.
type Child struct {
	Ref    []byte `json:"ref"`
	Offset uint64 `json:"offset"`
}

// Node is one node of a hashsplit tree. It is either an interior node
// (Nodes populated, pointing to child Nodes) or a leaf node (Leaves
// populated, pointing to raw chunk blobs). Nodes are persisted as
// canonical JSON blobs, keyed by content hash like everything else in
// the store.
type Node struct {
	Offset uint64   `json:"offset"`
	Size   uint64   `json:"size"`
	Nodes  []*Child `json:"nodes,omitempty"`
	Leaves []*Child `json:"leaves,omitempty"`
}

func getNode(ctx context.Context, g corefs.Getter, ref corefs.Ref, n *Node) error {
	b, err := g.Get(ctx, ref)
	if err != nil {
		return err
	}
	return canonicaljson.Unmarshal(b, n)
}

func putNode(ctx context.Context, s corefs.Store, n *Node) (corefs.Ref, bool, error) {
	b, err := canonicaljson.Marshal(n)
	if err != nil {
		return corefs.Ref{}, false, errors.Wrap(err, "marshaling node")
	}
	return s.Put(ctx, corefs.Blob(b))
}
