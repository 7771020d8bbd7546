package content

import (
	"github.com/opencollab/corefs/backlog"
	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/text"
	"github.com/opencollab/corefs/tree"
)

// Text is the live text CRDT document for one tree.ContentText file.
type Text struct {
	Node tree.NodeGID
	Doc  *text.Document
}

// TextInsertOp is the op broadcast for a local or remote text insertion.
type TextInsertOp struct {
	Node tree.NodeGID
	Op   text.InsertionOp
}

// TextDeleteOp is the op broadcast for a local or remote text deletion.
type TextDeleteOp struct {
	Node tree.NodeGID
	Op   text.DeletionOp
}

// BindText creates the text document for a newly created text file. It is
// called once, whether the file was created locally or integrated from a
// remote CreateOp; calling it twice for the same node is a no-op.
func (s *Store) BindText(node tree.NodeGID, variant tree.ContentKind) error {
	if err := variantMismatch(variant, tree.ContentText); err != nil {
		return err
	}
	if _, ok := s.texts[node]; ok {
		return nil
	}
	s.texts[node] = &Text{
		Node: node,
		Doc:  text.New(s.peer, backlog.New[text.ID]("text:"+node.String())),
	}
	return nil
}

// Insert inserts text into node's document at a visible-byte offset and
// returns the op to broadcast.
func (s *Store) Insert(node tree.NodeGID, offset int, data []byte) (TextInsertOp, error) {
	t, ok := s.texts[node]
	if !ok {
		return TextInsertOp{}, errs.NotFound
	}
	return TextInsertOp{Node: node, Op: t.Doc.Insert(offset, data)}, nil
}

// Delete deletes the visible byte range [start, end) from node's document
// and returns the op to broadcast.
func (s *Store) Delete(node tree.NodeGID, start, end int) (TextDeleteOp, error) {
	t, ok := s.texts[node]
	if !ok {
		return TextDeleteOp{}, errs.NotFound
	}
	return TextDeleteOp{Node: node, Op: t.Doc.DeleteRange(start, end)}, nil
}

// IntegrateInsert applies a remote TextInsertOp. It returns ErrNotBound if
// node's document has not yet been bound (the caller, normally the
// driver, should backlog the op and retry once the file's CreateOp has
// been integrated).
func (s *Store) IntegrateInsert(op TextInsertOp) error {
	t, ok := s.texts[op.Node]
	if !ok {
		return ErrNotBound
	}
	t.Doc.Integrate(op.Op)
	return nil
}

// IntegrateDelete applies a remote TextDeleteOp.
func (s *Store) IntegrateDelete(op TextDeleteOp) error {
	t, ok := s.texts[op.Node]
	if !ok {
		return ErrNotBound
	}
	t.Doc.IntegrateDeletion(op.Op)
	return nil
}

// Bytes returns the current visible content of node's text document.
func (s *Store) Bytes(node tree.NodeGID) ([]byte, error) {
	t, ok := s.texts[node]
	if !ok {
		return nil, errs.NotFound
	}
	return t.Doc.Bytes(), nil
}
