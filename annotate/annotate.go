// Package annotate tracks cursors and selections: named positions (or
// position ranges) inside a text file that must keep pointing at the same
// logical spot as the file is concurrently edited.
//
// A cursor or selection is stored as a text.Anchor rather than a raw
// offset, so it rides out concurrent inserts and deletes exactly the way
// the file content itself does (P4, anchor stability); annotate simply
// recomputes the visible offset from the anchor on every read.
package annotate

import (
	"github.com/opencollab/corefs/content"
	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/text"
	"github.com/opencollab/corefs/tree"
)

type (
	// CursorMark and SelectionMark distinguish cursor and selection ids at
	// the type level.
	CursorMark    struct{}
	SelectionMark struct{}
)

// CursorID and SelectionID are cluster-wide annotation identifiers.
type (
	CursorID    = ids.GlobalId[CursorMark]
	SelectionID = ids.GlobalId[SelectionMark]
)

// Cursor is one peer's insertion point in a text file.
type Cursor struct {
	ID     CursorID
	Node   tree.NodeGID
	Peer   ids.PeerId
	Anchor text.Anchor
}

// Selection is one peer's selected range in a text file, from Start up to
// but not including End.
type Selection struct {
	ID          SelectionID
	Node        tree.NodeGID
	Peer        ids.PeerId
	Start, End  text.Anchor
}

// Store holds every cursor and selection this replica knows about.
type Store struct {
	content    *content.Store
	cursors    map[CursorID]*Cursor
	selections map[SelectionID]*Selection
}

// New creates an annotation Store that resolves anchors against c.
func New(c *content.Store) *Store {
	return &Store{
		content:    c,
		cursors:    make(map[CursorID]*Cursor),
		selections: make(map[SelectionID]*Selection),
	}
}

// CursorOp is the op broadcast to create or move a cursor. Sending the
// same ID again moves the existing cursor; there is no separate create
// message, matching the wire message table's single CursorOp entry.
type CursorOp struct {
	ID     CursorID
	Node   tree.NodeGID
	Offset int
}

// SelectionOp is the SelectionOp analog of CursorOp.
type SelectionOp struct {
	ID           SelectionID
	Node         tree.NodeGID
	Start, End   int
}

// SetCursor creates or moves the local peer's cursor at the given
// visible-byte offset in node's text document, and returns the op to
// broadcast.
func (s *Store) SetCursor(id CursorID, peer ids.PeerId, node tree.NodeGID, offset int) (CursorOp, error) {
	doc := s.content.Text(node)
	if doc == nil {
		return CursorOp{}, content.ErrNotBound
	}
	anchor := doc.Doc.AnchorOf(offset)
	c, ok := s.cursors[id]
	if !ok {
		c = &Cursor{ID: id, Node: node, Peer: peer}
		s.cursors[id] = c
	}
	c.Anchor = anchor
	return CursorOp{ID: id, Node: node, Offset: offset}, nil
}

// IntegrateCursor applies a remote CursorOp.
func (s *Store) IntegrateCursor(peer ids.PeerId, op CursorOp) error {
	_, err := s.SetCursor(op.ID, peer, op.Node, op.Offset)
	return err
}

// RemoveCursor deletes a cursor, normally once its owning peer
// disconnects or moves focus elsewhere.
func (s *Store) RemoveCursor(id CursorID) {
	delete(s.cursors, id)
}

// Cursor returns the current state of a cursor together with its
// up-to-date offset, or an error if the cursor or its file is unknown.
func (s *Store) Cursor(id CursorID) (Cursor, int, error) {
	c, ok := s.cursors[id]
	if !ok {
		return Cursor{}, 0, errs.NotFound
	}
	doc := s.content.Text(c.Node)
	if doc == nil {
		return Cursor{}, 0, content.ErrNotBound
	}
	return *c, doc.Doc.OffsetOf(c.Anchor), nil
}

// SetSelection creates or moves the local peer's selection.
func (s *Store) SetSelection(id SelectionID, peer ids.PeerId, node tree.NodeGID, start, end int) (SelectionOp, error) {
	doc := s.content.Text(node)
	if doc == nil {
		return SelectionOp{}, content.ErrNotBound
	}
	startAnchor := doc.Doc.AnchorOf(start)
	endAnchor := doc.Doc.AnchorOf(end)
	sel, ok := s.selections[id]
	if !ok {
		sel = &Selection{ID: id, Node: node, Peer: peer}
		s.selections[id] = sel
	}
	sel.Start, sel.End = startAnchor, endAnchor
	return SelectionOp{ID: id, Node: node, Start: start, End: end}, nil
}

// IntegrateSelection applies a remote SelectionOp.
func (s *Store) IntegrateSelection(peer ids.PeerId, op SelectionOp) error {
	_, err := s.SetSelection(op.ID, peer, op.Node, op.Start, op.End)
	return err
}

// RemoveSelection deletes a selection.
func (s *Store) RemoveSelection(id SelectionID) {
	delete(s.selections, id)
}

// Selection returns the current state of a selection with up-to-date
// offsets.
func (s *Store) Selection(id SelectionID) (Selection, int, int, error) {
	sel, ok := s.selections[id]
	if !ok {
		return Selection{}, 0, 0, errs.NotFound
	}
	doc := s.content.Text(sel.Node)
	if doc == nil {
		return Selection{}, 0, 0, content.ErrNotBound
	}
	return *sel, doc.Doc.OffsetOf(sel.Start), doc.Doc.OffsetOf(sel.End), nil
}

// ForgetFile drops every cursor and selection bound to node, used once a
// text file is deleted and its content has been forgotten.
func (s *Store) ForgetFile(node tree.NodeGID) {
	for id, c := range s.cursors {
		if c.Node == node {
			delete(s.cursors, id)
		}
	}
	for id, sel := range s.selections {
		if sel.Node == node {
			delete(s.selections, id)
		}
	}
}
