package text

import (
	"bytes"
	"testing"

	"github.com/opencollab/corefs/backlog"
	"github.com/opencollab/corefs/ids"
)

func newDoc(peer ids.PeerId) *Document {
	return New(peer, backlog.New[ID]("test"))
}

func TestInsertAndRead(t *testing.T) {
	d := newDoc(ids.PeerId(1))
	d.Insert(0, []byte("hello"))
	d.Insert(5, []byte(" world"))
	if got, want := string(d.Bytes()), "hello world"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := d.Len(), 11; got != want {
		t.Fatalf("got len %d, want %d", got, want)
	}
}

func TestDeleteRange(t *testing.T) {
	d := newDoc(ids.PeerId(1))
	d.Insert(0, []byte("hello world"))
	d.DeleteRange(5, 11)
	if got, want := string(d.Bytes()), "hello"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIntegrateConcurrentInsertsConverge(t *testing.T) {
	// Two replicas start from the same base text, then each inserts at
	// the same position concurrently; integrating each other's ops
	// must leave both documents byte-for-byte identical (P1).
	base := newDoc(ids.PeerId(0))
	baseOp := base.Insert(0, []byte("ac"))

	a := newDoc(ids.PeerId(1))
	a.Integrate(baseOp)
	b := newDoc(ids.PeerId(2))
	b.Integrate(baseOp)

	opA := a.Insert(1, []byte("B")) // a: "aBc"
	opB := b.Insert(1, []byte("X")) // b: "aXc"

	a.Integrate(opB)
	b.Integrate(opA)

	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("replicas diverged: a=%q b=%q", a.Bytes(), b.Bytes())
	}
}

func TestIntegrateIsIdempotent(t *testing.T) {
	a := newDoc(ids.PeerId(1))
	op := a.Insert(0, []byte("hi"))

	b := newDoc(ids.PeerId(2))
	b.Integrate(op)
	b.Integrate(op) // redelivery
	if got, want := string(b.Bytes()), "hi"; got != want {
		t.Fatalf("got %q after redelivery, want %q", got, want)
	}
}

func TestIntegrateBuffersOutOfOrderOrigin(t *testing.T) {
	a := newDoc(ids.PeerId(1))
	op1 := a.Insert(0, []byte("a"))
	op2 := a.Insert(1, []byte("b"))

	b := newDoc(ids.PeerId(2))
	b.Integrate(op2) // arrives first, origin not yet known
	if got := b.Bytes(); len(got) != 0 {
		t.Fatalf("expected nothing visible yet, got %q", got)
	}
	b.Integrate(op1)
	if got, want := string(b.Bytes()), "ab"; got != want {
		t.Fatalf("got %q after origin arrives, want %q", got, want)
	}
}

func TestAnchorSurvivesEditsAroundIt(t *testing.T) {
	d := newDoc(ids.PeerId(1))
	d.Insert(0, []byte("hello world"))

	anchor := d.AnchorOf(5) // just after "hello"
	d.Insert(0, []byte(">>"))
	if got, want := d.OffsetOf(anchor), 7; got != want {
		t.Fatalf("got offset %d after prefix insert, want %d", got, want)
	}
}

func TestAnchorCollapsesWhenPointWasDeleted(t *testing.T) {
	d := newDoc(ids.PeerId(1))
	d.Insert(0, []byte("hello world"))
	anchor := d.AnchorOf(11) // end of document
	d.DeleteRange(5, 11)     // delete " world", including the anchored byte
	if got, want := d.OffsetOf(anchor), 5; got != want {
		t.Fatalf("got offset %d after deleting anchored byte, want %d", got, want)
	}
}

func TestIntegrateDeletionUnknownIDIsNoop(t *testing.T) {
	d := newDoc(ids.PeerId(1))
	d.Insert(0, []byte("hi"))
	d.IntegrateDeletion(DeletionOp{IDs: []ID{{Clock: 999, Peer: 7}}})
	if got, want := string(d.Bytes()), "hi"; got != want {
		t.Fatalf("got %q, want %q unaffected by unknown-id deletion", got, want)
	}
}
