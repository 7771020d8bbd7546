package content

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/opencollab/corefs"
	"github.com/opencollab/corefs/anchor"
	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/tree"
)

// Symlink is the live state of a tree.ContentSymlink file: an LWW target
// path. The target is never re-resolved once set; a symlink whose target
// has since been deleted or moved is left dangling, exactly as a plain
// filesystem symlink would be.
type Symlink struct {
	Node    tree.NodeGID
	Target  string
	Version uint64
	Writer  uint64
}

// SymlinkWriteOp is the op broadcast for a local or remote symlink target
// update.
type SymlinkWriteOp struct {
	Node    tree.NodeGID
	Target  string
	Version uint64
	Writer  uint64
}

// BindSymlink registers a newly created symlink file with no target yet.
func (s *Store) BindSymlink(node tree.NodeGID, variant tree.ContentKind) error {
	if err := variantMismatch(variant, tree.ContentSymlink); err != nil {
		return err
	}
	if _, ok := s.links[node]; ok {
		return nil
	}
	s.links[node] = &Symlink{Node: node}
	return nil
}

// WriteSymlink sets node's target and returns the op to broadcast.
func (s *Store) WriteSymlink(ctx context.Context, st anchor.Store, node tree.NodeGID, target string, version uint64) (SymlinkWriteOp, error) {
	l, ok := s.links[node]
	if !ok {
		return SymlinkWriteOp{}, errs.NotFound
	}
	op := SymlinkWriteOp{Node: node, Target: target, Version: version, Writer: uint64(s.peer)}
	if err := publishSymlink(ctx, st, op); err != nil {
		return SymlinkWriteOp{}, err
	}
	l.Target, l.Version, l.Writer = target, version, op.Writer
	return op, nil
}

// IntegrateSymlinkWrite applies a remote SymlinkWriteOp under the same
// (version, writer) LWW rule as binary content.
func (s *Store) IntegrateSymlinkWrite(ctx context.Context, st anchor.Store, op SymlinkWriteOp) error {
	l, ok := s.links[op.Node]
	if !ok {
		return ErrNotBound
	}
	if !lwwWins(op.Version, op.Writer, l.Version, l.Writer) {
		return nil
	}
	if err := publishSymlink(ctx, st, op); err != nil {
		return err
	}
	l.Target, l.Version, l.Writer = op.Target, op.Version, op.Writer
	return nil
}

func publishSymlink(ctx context.Context, st anchor.Store, op SymlinkWriteOp) error {
	ref, _, err := st.Put(ctx, corefs.Blob(op.Target))
	if err != nil {
		return errors.Wrap(err, "storing symlink target blob")
	}
	return anchor.Put(ctx, st, anchorName(op.Node, "symlink"), ref, time.Now())
}

// ReadSymlink returns node's current target.
func (s *Store) ReadSymlink(node tree.NodeGID) (string, error) {
	l, ok := s.links[node]
	if !ok {
		return "", errs.NotFound
	}
	return l.Target, nil
}
