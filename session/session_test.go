package session

import (
	"context"
	"testing"

	"github.com/opencollab/corefs/annotate"
	"github.com/opencollab/corefs/events"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/store/mem"
	"github.com/opencollab/corefs/tree"
)

func TestLocalMutationThenRemoteIntegration(t *testing.T) {
	ctx := context.Background()
	sess := ids.NewSessionId()
	a := New(ids.PeerId(1), sess, mem.New())
	b := New(ids.PeerId(2), sess, mem.New())

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	dir, err := a.CreateDirectory(a.Root(), ids.NodeName("docs"))
	if err != nil {
		t.Fatal(err)
	}
	file, err := a.CreateTextFile(dir, ids.NodeName("readme.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.InsertText(file, 0, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	batch := a.DrainOutbox()
	if len(batch.Messages) != 3 {
		t.Fatalf("got %d outgoing messages, want 3", len(batch.Messages))
	}

	if err := b.Integrate(ctx, batch); err != nil {
		t.Fatal(err)
	}

	got, err := b.ReadText(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("got text %q, want %q", got, "hello")
	}

	path, err := b.Path(file)
	if err != nil {
		t.Fatal(err)
	}
	if path.String() != "/docs/readme.txt" {
		t.Errorf("got path %q, want /docs/readme.txt", path.String())
	}

	seenCreate, seenEdit := false, false
	for i := 0; i < 3; i++ {
		ev, ok := sub.Next(ctx)
		if !ok {
			t.Fatal("event stream closed early")
		}
		switch ev.Kind {
		case events.BufferCreated:
			seenCreate = true
		case events.BufferEdited:
			seenEdit = true
		}
	}
	if !seenCreate || !seenEdit {
		t.Errorf("seenCreate=%v seenEdit=%v, want both true", seenCreate, seenEdit)
	}
}

func TestConcurrentCreateConflictSurfacesAndResolves(t *testing.T) {
	ctx := context.Background()
	sess := ids.NewSessionId()
	a := New(ids.PeerId(1), sess, mem.New())
	b := New(ids.PeerId(2), sess, mem.New())

	if _, err := a.CreateTextFile(a.Root(), ids.NodeName("notes.txt")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.CreateTextFile(b.Root(), ids.NodeName("notes.txt")); err != nil {
		t.Fatal(err)
	}

	batchA := a.DrainOutbox()
	batchB := b.DrainOutbox()

	if err := b.Integrate(ctx, batchA); err != nil {
		t.Fatal(err)
	}
	if err := a.Integrate(ctx, batchB); err != nil {
		t.Fatal(err)
	}

	confA := a.Conflicts()
	confB := b.Conflicts()
	if len(confA) != 1 || len(confB) != 1 {
		t.Fatalf("got %d/%d conflicts, want 1/1", len(confA), len(confB))
	}

	if err := a.ResolveByRenamingConflicting(confA[0], ids.NodeName("notes-2.txt")); err != nil {
		t.Fatal(err)
	}
	if !a.AssumeResolved(confA[0]) {
		t.Error("expected conflict to clear after rename")
	}
}

func TestResolveByDeletingConflictingPublishesDeletionCause(t *testing.T) {
	ctx := context.Background()
	sess := ids.NewSessionId()
	a := New(ids.PeerId(1), sess, mem.New())
	b := New(ids.PeerId(2), sess, mem.New())

	if _, err := a.CreateTextFile(a.Root(), ids.NodeName("notes.txt")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.CreateTextFile(b.Root(), ids.NodeName("notes.txt")); err != nil {
		t.Fatal(err)
	}

	batchA := a.DrainOutbox()
	batchB := b.DrainOutbox()
	if err := b.Integrate(ctx, batchA); err != nil {
		t.Fatal(err)
	}
	if err := a.Integrate(ctx, batchB); err != nil {
		t.Fatal(err)
	}

	confA := a.Conflicts()
	if len(confA) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(confA))
	}
	loser := confA[0].ConflictingNode()

	stream := a.Subscribe()
	defer a.Unsubscribe(stream)

	if err := a.ResolveByDeletingConflicting(confA[0]); err != nil {
		t.Fatal(err)
	}

	var found bool
	for {
		ev, ok := stream.Next(ctx)
		if !ok {
			t.Fatal("stream closed before a BufferDeleted event arrived")
		}
		if ev.Kind == events.BufferDeleted && ev.Node == loser {
			found = true
			if ev.Cause != tree.ConflictLoser {
				t.Errorf("got cause %v, want ConflictLoser", ev.Cause)
			}
			break
		}
	}
	if !found {
		t.Fatal("expected a BufferDeleted event for the conflicting node")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	sess := ids.NewSessionId()
	a := New(ids.PeerId(1), sess, mem.New())
	b := New(ids.PeerId(2), sess, mem.New())

	file, err := a.CreateTextFile(a.Root(), ids.NodeName("doc.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.InsertText(file, 0, []byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	if err := b.Integrate(ctx, a.DrainOutbox()); err != nil {
		t.Fatal(err)
	}

	gen := ids.NewGenerator[annotate.CursorMark](ids.PeerId(1))
	cursorID := gen.Next()
	if err := a.SetCursor(cursorID, file, 5); err != nil {
		t.Fatal(err)
	}
	if err := b.Integrate(ctx, a.DrainOutbox()); err != nil {
		t.Fatal(err)
	}

	_, offset, err := b.Cursor(cursorID)
	if err != nil {
		t.Fatal(err)
	}
	if offset != 5 {
		t.Errorf("got cursor offset %d, want 5", offset)
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	sess := ids.NewSessionId()
	a := New(ids.PeerId(1), sess, mem.New())

	dir, err := a.CreateDirectory(a.Root(), ids.NodeName("src"))
	if err != nil {
		t.Fatal(err)
	}
	file, err := a.CreateTextFile(dir, ids.NodeName("main.go"))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.InsertText(file, 0, []byte("package main")); err != nil {
		t.Fatal(err)
	}

	snap := a.Snapshot()
	if len(snap.Messages) != 3 {
		t.Fatalf("got %d messages in snapshot, want 3", len(snap.Messages))
	}

	restored, err := Restore(ctx, ids.PeerId(1), sess, mem.New(), snap)
	if err != nil {
		t.Fatal(err)
	}

	got, err := restored.ReadText(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "package main" {
		t.Errorf("got text %q, want %q", got, "package main")
	}
	path, err := restored.Path(file)
	if err != nil {
		t.Fatal(err)
	}
	if path.String() != "/src/main.go" {
		t.Errorf("got path %q, want /src/main.go", path.String())
	}
	if len(restored.DrainOutbox().Messages) != 0 {
		t.Error("restored replica should start with an empty outbox")
	}
}
