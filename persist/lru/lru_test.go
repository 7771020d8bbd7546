package lru

import (
	"context"
	"testing"

	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/persist"
	"github.com/opencollab/corefs/persist/mem"
	"github.com/opencollab/corefs/wire"
)

func TestCachesLatest(t *testing.T) {
	ctx := context.Background()
	nested := mem.New()
	s, err := New(nested, 8)
	if err != nil {
		t.Fatal(err)
	}
	session := ids.NewSessionId()

	err = s.Update(ctx, session, func(wire.OpBatch) (wire.OpBatch, error) {
		return wire.OpBatch{Messages: []wire.Message{{Kind: wire.CursorOp}}}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Latest(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Kind != wire.CursorOp {
		t.Errorf("got %+v, want a single CursorOp message", got)
	}

	// Confirm the cached copy matches what landed in the nested store too.
	fromNested, err := nested.Latest(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	if len(fromNested.Messages) != 1 {
		t.Errorf("nested store has %d messages, want 1", len(fromNested.Messages))
	}
}

func TestMissWhenEmpty(t *testing.T) {
	ctx := context.Background()
	s, err := New(mem.New(), 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Latest(ctx, ids.NewSessionId()); err != persist.ErrNoCheckpoint {
		t.Fatalf("got err %v, want ErrNoCheckpoint", err)
	}
}
