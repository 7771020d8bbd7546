package pg

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/persist"
	"github.com/opencollab/corefs/wire"
)

const connVar = "CORE_PG_TESTING_CONN"

func withStore(t *testing.T, f func(context.Context, *Store)) {
	connstr := os.Getenv(connVar)
	if connstr == "" {
		t.Skipf("to run %s, set %s to a valid Postgresql connection string", t.Name(), connVar)
	}

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	store, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	f(ctx, store)
}

func TestRoundTrip(t *testing.T) {
	withStore(t, func(ctx context.Context, s *Store) {
		session := ids.NewSessionId()

		if _, err := s.Latest(ctx, session); err != persist.ErrNoCheckpoint {
			t.Fatalf("got err %v, want ErrNoCheckpoint", err)
		}

		err := s.Update(ctx, session, func(wire.OpBatch) (wire.OpBatch, error) {
			return wire.OpBatch{From: ids.PeerId(1), Messages: []wire.Message{{Kind: wire.DirectoryCreate}}}, nil
		})
		if err != nil {
			t.Fatal(err)
		}

		got, err := s.Latest(ctx, session)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Messages) != 1 {
			t.Errorf("got %d messages, want 1", len(got.Messages))
		}
	})
}
