package content

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/opencollab/corefs"
	"github.com/opencollab/corefs/anchor"
	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/split"
	"github.com/opencollab/corefs/tree"
)

// Binary is the live state of a tree.ContentBinary file: a whole-file LWW
// pointer into a hashsplit-chunked blob tree, keyed by (version number,
// writer peer) so every replica resolves concurrent whole-file rewrites
// to the same winner regardless of delivery order.
type Binary struct {
	Node    tree.NodeGID
	Version uint64
	Writer  uint64
	Size    uint64
}

// BinaryWriteOp is the op broadcast for a local or remote whole-file
// binary replacement.
type BinaryWriteOp struct {
	Node    tree.NodeGID
	Version uint64
	Writer  uint64
	Root    string // hex-encoded corefs.Ref of the hashsplit tree root
	Size    uint64
}

// BindBinary registers a newly created binary file with no content yet.
func (s *Store) BindBinary(node tree.NodeGID, variant tree.ContentKind) error {
	if err := variantMismatch(variant, tree.ContentBinary); err != nil {
		return err
	}
	if _, ok := s.bins[node]; ok {
		return nil
	}
	s.bins[node] = &Binary{Node: node}
	return nil
}

// WriteBinary replaces node's entire content with data, chunking it into
// st via split.Writer and publishing the new root as an anchor so the LWW
// pointer converges the same way anchor.Put already guarantees for any
// other anchored value.
func (s *Store) WriteBinary(ctx context.Context, st anchor.Store, node tree.NodeGID, data []byte, version uint64) (BinaryWriteOp, error) {
	b, ok := s.bins[node]
	if !ok {
		return BinaryWriteOp{}, errs.NotFound
	}

	w := split.NewWriter(ctx, st)
	if _, err := w.Write(data); err != nil {
		return BinaryWriteOp{}, errors.Wrap(err, "splitting binary content")
	}
	if err := w.Close(); err != nil {
		return BinaryWriteOp{}, errors.Wrap(err, "closing split writer")
	}

	op := BinaryWriteOp{
		Node:    node,
		Version: version,
		Writer:  uint64(s.peer),
		Root:    w.Root.String(),
		Size:    uint64(len(data)),
	}
	if err := s.publishBinary(ctx, st, op); err != nil {
		return BinaryWriteOp{}, err
	}
	b.Version, b.Writer, b.Size = op.Version, op.Writer, op.Size
	return op, nil
}

// IntegrateBinaryWrite applies a remote BinaryWriteOp, keeping only the
// write with the higher (version, writer) pair, per the file's LWW rule.
func (s *Store) IntegrateBinaryWrite(ctx context.Context, st anchor.Store, op BinaryWriteOp) error {
	b, ok := s.bins[op.Node]
	if !ok {
		return ErrNotBound
	}
	if !lwwWins(op.Version, op.Writer, b.Version, b.Writer) {
		return nil
	}
	if err := s.publishBinary(ctx, st, op); err != nil {
		return err
	}
	b.Version, b.Writer, b.Size = op.Version, op.Writer, op.Size
	return nil
}

func (s *Store) publishBinary(ctx context.Context, st anchor.Store, op BinaryWriteOp) error {
	ref, err := corefs.RefFromHex(op.Root)
	if err != nil {
		return errors.Wrap(err, "decoding binary root ref")
	}
	return anchor.Put(ctx, st, anchorName(op.Node, "binary"), ref, time.Now())
}

// ReadBinary returns the full current content of node's binary file.
func (s *Store) ReadBinary(ctx context.Context, g anchor.Getter, node tree.NodeGID) ([]byte, error) {
	if _, ok := s.bins[node]; !ok {
		return nil, errs.NotFound
	}
	ref, err := anchor.Get(ctx, g, anchorName(node, "binary"), time.Now())
	if err != nil {
		return nil, errors.Wrap(err, "resolving binary anchor")
	}
	r, err := split.NewReader(ctx, g, ref)
	if err != nil {
		return nil, errors.Wrap(err, "opening binary reader")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, errors.Wrap(err, "reading binary content")
	}
	return buf.Bytes(), nil
}

// lwwWins reports whether (version, writer) should replace
// (curVersion, curWriter) under last-writer-wins with a writer-peer
// tie-break for equal versions.
func lwwWins(version, writer, curVersion, curWriter uint64) bool {
	if version != curVersion {
		return version > curVersion
	}
	return writer > curWriter
}
