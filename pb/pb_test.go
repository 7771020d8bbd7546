package pb

import (
	"bytes"
	"context"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/opencollab/corefs/anchor"
	"github.com/opencollab/corefs/store/mem"
)

func TestTypedBlob(t *testing.T) {
	s := mem.New()
	ctx := context.Background()

	a := &anchor.Anchor{
		Ref: []byte("some ref bytes"),
		At:  timestamppb.New(time.Date(2021, time.August, 1, 0, 0, 0, 0, time.UTC)),
	}

	ref, _, err := Put(ctx, s, a)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Get(ctx, s, ref)
	if err != nil {
		t.Fatal(err)
	}

	gotBytes, err := proto.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}

	wantBytes, err := proto.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(gotBytes, wantBytes) {
		t.Error("mismatch")
	}

	var loaded anchor.Anchor
	err = Load(ctx, s, ref, &loaded)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(loaded.Ref, a.Ref) {
		t.Errorf("got ref %x, want %x", loaded.Ref, a.Ref)
	}
}
