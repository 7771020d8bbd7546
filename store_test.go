package corefs_test

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"testing"

	"github.com/opencollab/corefs/split"
	"github.com/opencollab/corefs/store/mem"
)

func TestStore(t *testing.T) {
	data, err := ioutil.ReadFile("testdata/yubnub.opus")
	if err != nil {
		t.Fatal(err)
	}
	store := mem.New()

	ctx := context.Background()

	w := split.NewWriter(ctx, store)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := split.NewReader(ctx, store, w.Root)
	if err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(data))
	if _, err := io.ReadFull(r, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("mismatch")
	}
}
