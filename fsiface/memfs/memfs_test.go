package memfs

import (
	"context"
	"testing"

	"github.com/opencollab/corefs/fsiface"
)

func TestCreateAndRead(t *testing.T) {
	ctx := context.Background()
	fs := New()

	if _, err := fs.CreateDirectory(ctx, "", "docs"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.CreateFile(ctx, "docs", "readme.txt"); err != nil {
		t.Fatal(err)
	}

	chunks := make(chan []byte, 2)
	chunks <- []byte("hello, ")
	chunks <- []byte("world")
	close(chunks)
	if err := fs.WriteChunks(ctx, "docs/readme.txt", chunks); err != nil {
		t.Fatal(err)
	}

	got, err := fs.Read(ctx, "docs/readme.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello, world" {
		t.Errorf("got %q, want %q", got, "hello, world")
	}

	entries, err := fs.List(ctx, "docs")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "readme.txt" {
		t.Errorf("got %+v", entries)
	}
}

func TestMoveAndDelete(t *testing.T) {
	ctx := context.Background()
	fs := New()

	if _, err := fs.CreateDirectory(ctx, "", "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.CreateDirectory(ctx, "", "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.CreateFile(ctx, "a", "x.txt"); err != nil {
		t.Fatal(err)
	}

	if err := fs.Move(ctx, "a/x.txt", "b/x.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.NodeAtPath(ctx, "a/x.txt"); err == nil {
		t.Error("expected a/x.txt to be gone after move")
	}
	if _, err := fs.NodeAtPath(ctx, "b/x.txt"); err != nil {
		t.Errorf("expected b/x.txt to exist: %v", err)
	}

	if err := fs.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.NodeAtPath(ctx, "a"); err == nil {
		t.Error("expected a to be gone after delete")
	}
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := New()

	events, err := fs.Watch(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fs.CreateDirectory(ctx, "", "watched"); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Kind != fsiface.Creation || ev.Path != "watched" {
			t.Errorf("got %+v", ev)
		}
	default:
		t.Fatal("expected a buffered creation event")
	}
}

func TestCreateSymlink(t *testing.T) {
	ctx := context.Background()
	fs := New()

	n, err := fs.CreateSymlink(ctx, "", "link", "target.txt")
	if err != nil {
		t.Fatal(err)
	}
	if n.Kind != fsiface.Symlink {
		t.Errorf("got kind %v, want Symlink", n.Kind)
	}
}
