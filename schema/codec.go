package schema

import (
	"context"

	"github.com/gibson042/canonicaljson-go"
	"github.com/pkg/errors"

	"github.com/opencollab/corefs"
)

// Tree nodes are persisted as canonical JSON rather than protobuf: the
// binary trie's stored node shapes (TreeNode, Set, Map) were never given
// a generated protobuf message in this package, so node identity (the
// Ref under which a node is stored) is computed from canonical JSON's
// deterministic encoding instead.

func getNode(ctx context.Context, g corefs.Getter, ref corefs.Ref, v interface{}) error {
	b, err := g.Get(ctx, ref)
	if err != nil {
		return err
	}
	return canonicaljson.Unmarshal(b, v)
}

func putNode(ctx context.Context, s corefs.Store, v interface{}) (corefs.Ref, bool, error) {
	b, err := canonicaljson.Marshal(v)
	if err != nil {
		return corefs.Ref{}, false, errors.Wrap(err, "marshaling node")
	}
	return s.Put(ctx, corefs.Blob(b))
}

func nodeRef(v interface{}) (corefs.Ref, error) {
	b, err := canonicaljson.Marshal(v)
	if err != nil {
		return corefs.Ref{}, errors.Wrap(err, "marshaling node")
	}
	return corefs.Blob(b).Ref(), nil
}

// NodeRef computes the ref under which v would be stored by putNode,
// without storing it. It is exported for callers outside this package
// that embed a Set or Map and need to report their own ref.
func NodeRef(v interface{}) (corefs.Ref, error) {
	return nodeRef(v)
}
