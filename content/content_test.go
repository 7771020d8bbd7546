package content

import (
	"context"
	"testing"

	"github.com/opencollab/corefs/errs"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/store/mem"
	"github.com/opencollab/corefs/tree"
)

func fileNode(seq uint64) tree.NodeGID {
	return tree.NodeGID{Kind: tree.KindFile, Creator: ids.PeerId(1), Sequence: seq}
}

func TestTextInsertAndRead(t *testing.T) {
	s := New(ids.PeerId(1))
	node := fileNode(1)
	if err := s.BindText(node, tree.ContentText); err != nil {
		t.Fatal(err)
	}
	if err := s.BindText(node, tree.ContentText); err != nil {
		t.Fatalf("second bind should be a no-op, got %s", err)
	}

	if _, err := s.Insert(node, 0, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Bytes(node)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestTextBindVariantMismatch(t *testing.T) {
	s := New(ids.PeerId(1))
	if err := s.BindText(fileNode(1), tree.ContentBinary); err != errs.VariantMismatch {
		t.Fatalf("got %v, want errs.VariantMismatch", err)
	}
}

func TestTextIntegrateUnboundReturnsErrNotBound(t *testing.T) {
	s := New(ids.PeerId(1))
	err := s.IntegrateInsert(TextInsertOp{Node: fileNode(5)})
	if err != ErrNotBound {
		t.Fatalf("got %v, want ErrNotBound", err)
	}
}

func TestTextInsertDeleteConverge(t *testing.T) {
	a := New(ids.PeerId(1))
	b := New(ids.PeerId(2))
	node := fileNode(1)
	if err := a.BindText(node, tree.ContentText); err != nil {
		t.Fatal(err)
	}
	if err := b.BindText(node, tree.ContentText); err != nil {
		t.Fatal(err)
	}

	insOp, err := a.Insert(node, 0, []byte("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.IntegrateInsert(insOp); err != nil {
		t.Fatal(err)
	}

	delOp, err := a.Delete(node, 5, 11)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.IntegrateDelete(delOp); err != nil {
		t.Fatal(err)
	}

	aBytes, _ := a.Bytes(node)
	bBytes, _ := b.Bytes(node)
	if string(aBytes) != string(bBytes) {
		t.Fatalf("replicas diverged: a=%q b=%q", aBytes, bBytes)
	}
	if string(aBytes) != "hello" {
		t.Fatalf("got %q, want %q", aBytes, "hello")
	}
}

func TestBinaryWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := mem.New()
	s := New(ids.PeerId(1))
	node := fileNode(1)
	if err := s.BindBinary(node, tree.ContentBinary); err != nil {
		t.Fatal(err)
	}

	data := []byte("binary payload")
	if _, err := s.WriteBinary(ctx, st, node, data, 1); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadBinary(ctx, st, node)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestBinaryIntegrateLWWIgnoresOlderVersion(t *testing.T) {
	ctx := context.Background()
	st := mem.New()
	s := New(ids.PeerId(1))
	node := fileNode(1)
	if err := s.BindBinary(node, tree.ContentBinary); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteBinary(ctx, st, node, []byte("newer"), 5); err != nil {
		t.Fatal(err)
	}

	stale := BinaryWriteOp{Node: node, Version: 2, Writer: 99, Root: "", Size: 0}
	if err := s.IntegrateBinaryWrite(ctx, st, stale); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadBinary(ctx, st, node)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "newer" {
		t.Fatalf("stale write incorrectly won: got %q", got)
	}
}

func TestSymlinkWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := mem.New()
	s := New(ids.PeerId(1))
	node := fileNode(1)
	if err := s.BindSymlink(node, tree.ContentSymlink); err != nil {
		t.Fatal(err)
	}

	if _, err := s.WriteSymlink(ctx, st, node, "/etc/passwd", 1); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadSymlink(node)
	if err != nil {
		t.Fatal(err)
	}
	if got != "/etc/passwd" {
		t.Fatalf("got %q, want %q", got, "/etc/passwd")
	}
}

func TestSymlinkIntegrateLWWHigherWriterBreaksTie(t *testing.T) {
	ctx := context.Background()
	st := mem.New()
	s := New(ids.PeerId(1))
	node := fileNode(1)
	if err := s.BindSymlink(node, tree.ContentSymlink); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteSymlink(ctx, st, node, "/a", 3); err != nil {
		t.Fatal(err)
	}

	// Same version, higher writer id should win the tie-break.
	op := SymlinkWriteOp{Node: node, Target: "/b", Version: 3, Writer: ^uint64(0)}
	if err := s.IntegrateSymlinkWrite(ctx, st, op); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadSymlink(node)
	if err != nil {
		t.Fatal(err)
	}
	if got != "/b" {
		t.Fatalf("got %q, want /b after higher-writer tie-break", got)
	}
}

func TestForgetDropsAllVariants(t *testing.T) {
	s := New(ids.PeerId(1))
	node := fileNode(1)
	if err := s.BindText(node, tree.ContentText); err != nil {
		t.Fatal(err)
	}
	s.Forget(node)
	if s.Text(node) != nil {
		t.Error("expected text content to be forgotten")
	}
}
