package file

import (
	"context"
	"io/ioutil"
	"os"
	"testing"

	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/persist"
	"github.com/opencollab/corefs/wire"
)

func TestRoundTrip(t *testing.T) {
	root, err := ioutil.TempDir("", "persist-file-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(root)

	ctx := context.Background()
	s := New(root)
	session := ids.NewSessionId()

	if _, err := s.Latest(ctx, session); err != persist.ErrNoCheckpoint {
		t.Fatalf("got err %v, want ErrNoCheckpoint", err)
	}

	err = s.Update(ctx, session, func(wire.OpBatch) (wire.OpBatch, error) {
		return wire.OpBatch{From: ids.PeerId(1), Messages: []wire.Message{{Kind: wire.FileCreate}}}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Latest(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Kind != wire.FileCreate {
		t.Errorf("got %+v, want a single FileCreate message", got)
	}

	err = s.Update(ctx, session, func(before wire.OpBatch) (wire.OpBatch, error) {
		return wire.OpBatch{From: before.From, Messages: append(before.Messages, wire.Message{Kind: wire.TextEdit})}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err = s.Latest(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(got.Messages))
	}
}
