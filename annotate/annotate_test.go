package annotate

import (
	"testing"

	"github.com/opencollab/corefs/content"
	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/tree"
)

func newNode(seq uint64) tree.NodeGID {
	return tree.NodeGID{Kind: tree.KindFile, Creator: ids.PeerId(1), Sequence: seq}
}

func newCursorID(peer ids.PeerId) CursorID {
	return ids.NewGenerator[CursorMark](peer).Next()
}

func newSelectionID(peer ids.PeerId) SelectionID {
	return ids.NewGenerator[SelectionMark](peer).Next()
}

func TestSetCursorAndRead(t *testing.T) {
	c := content.New(ids.PeerId(1))
	node := newNode(1)
	if err := c.BindText(node, tree.ContentText); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Insert(node, 0, []byte("hello world")); err != nil {
		t.Fatal(err)
	}

	s := New(c)
	id := newCursorID(ids.PeerId(1))
	if _, err := s.SetCursor(id, ids.PeerId(1), node, 5); err != nil {
		t.Fatal(err)
	}

	_, offset, err := s.Cursor(id)
	if err != nil {
		t.Fatal(err)
	}
	if offset != 5 {
		t.Fatalf("got offset %d, want 5", offset)
	}
}

func TestCursorTracksConcurrentInsert(t *testing.T) {
	c := content.New(ids.PeerId(1))
	node := newNode(1)
	if err := c.BindText(node, tree.ContentText); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Insert(node, 0, []byte("hello world")); err != nil {
		t.Fatal(err)
	}

	s := New(c)
	id := newCursorID(ids.PeerId(1))
	if _, err := s.SetCursor(id, ids.PeerId(1), node, 5); err != nil {
		t.Fatal(err)
	}

	// Insert text before the cursor; its tracked offset must shift with it.
	if _, err := c.Insert(node, 0, []byte(">>")); err != nil {
		t.Fatal(err)
	}

	_, offset, err := s.Cursor(id)
	if err != nil {
		t.Fatal(err)
	}
	if offset != 7 {
		t.Fatalf("got offset %d after prefix insert, want 7", offset)
	}
}

func TestCursorUnknownIDIsNotFound(t *testing.T) {
	c := content.New(ids.PeerId(1))
	s := New(c)
	id := newCursorID(ids.PeerId(1))
	if _, _, err := s.Cursor(id); err != errs.NotFound {
		t.Fatalf("got %v, want errs.NotFound", err)
	}
}

func TestSetSelectionAndRead(t *testing.T) {
	c := content.New(ids.PeerId(1))
	node := newNode(1)
	if err := c.BindText(node, tree.ContentText); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Insert(node, 0, []byte("hello world")); err != nil {
		t.Fatal(err)
	}

	s := New(c)
	id := newSelectionID(ids.PeerId(1))
	if _, err := s.SetSelection(id, ids.PeerId(1), node, 0, 5); err != nil {
		t.Fatal(err)
	}

	_, start, end, err := s.Selection(id)
	if err != nil {
		t.Fatal(err)
	}
	if start != 0 || end != 5 {
		t.Fatalf("got [%d,%d), want [0,5)", start, end)
	}
}

func TestRemoveCursorAndSelection(t *testing.T) {
	c := content.New(ids.PeerId(1))
	node := newNode(1)
	if err := c.BindText(node, tree.ContentText); err != nil {
		t.Fatal(err)
	}

	s := New(c)
	cid := newCursorID(ids.PeerId(1))
	if _, err := s.SetCursor(cid, ids.PeerId(1), node, 0); err != nil {
		t.Fatal(err)
	}
	s.RemoveCursor(cid)
	if _, _, err := s.Cursor(cid); err != errs.NotFound {
		t.Fatalf("got %v, want errs.NotFound after removal", err)
	}

	sid := newSelectionID(ids.PeerId(1))
	if _, err := s.SetSelection(sid, ids.PeerId(1), node, 0, 0); err != nil {
		t.Fatal(err)
	}
	s.RemoveSelection(sid)
	if _, _, _, err := s.Selection(sid); err != errs.NotFound {
		t.Fatalf("got %v, want errs.NotFound after removal", err)
	}
}

func TestForgetFileDropsAnnotations(t *testing.T) {
	c := content.New(ids.PeerId(1))
	node := newNode(1)
	if err := c.BindText(node, tree.ContentText); err != nil {
		t.Fatal(err)
	}

	s := New(c)
	cid := newCursorID(ids.PeerId(1))
	if _, err := s.SetCursor(cid, ids.PeerId(1), node, 0); err != nil {
		t.Fatal(err)
	}
	sid := newSelectionID(ids.PeerId(1))
	if _, err := s.SetSelection(sid, ids.PeerId(1), node, 0, 0); err != nil {
		t.Fatal(err)
	}

	s.ForgetFile(node)

	if _, _, err := s.Cursor(cid); err != errs.NotFound {
		t.Errorf("got %v, want errs.NotFound after ForgetFile", err)
	}
	if _, _, _, err := s.Selection(sid); err != errs.NotFound {
		t.Errorf("got %v, want errs.NotFound after ForgetFile", err)
	}
}

func TestIntegrateCursorFromRemotePeer(t *testing.T) {
	c := content.New(ids.PeerId(1))
	node := newNode(1)
	if err := c.BindText(node, tree.ContentText); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Insert(node, 0, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	s := New(c)
	id := newCursorID(ids.PeerId(2))
	op := CursorOp{ID: id, Node: node, Offset: 3}
	if err := s.IntegrateCursor(ids.PeerId(2), op); err != nil {
		t.Fatal(err)
	}

	cur, offset, err := s.Cursor(id)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Peer != ids.PeerId(2) {
		t.Errorf("got peer %v, want 2", cur.Peer)
	}
	if offset != 3 {
		t.Fatalf("got offset %d, want 3", offset)
	}
}
