// Package sqlite3 implements a persist.Checkpointer in a Sqlite3
// database, using a version column for optimistic locking.
package sqlite3

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver for sql.Open
	"github.com/pkg/errors"

	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/persist"
	"github.com/opencollab/corefs/wire"
)

var _ persist.Checkpointer = (*Store)(nil)

// Store is a Sqlite3-based persist.Checkpointer.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
const Schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
  session_id TEXT PRIMARY KEY,
  version INTEGER NOT NULL,
  data BLOB NOT NULL
);
`

// New produces a new Store using db for storage. It expects to create
// table `checkpoints`, or for it already to exist with the correct
// schema (see variable Schema).
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, errors.Wrap(err, "creating schema")
}

// Latest implements persist.Checkpointer.
func (s *Store) Latest(ctx context.Context, session ids.SessionId) (wire.OpBatch, error) {
	const q = `SELECT data FROM checkpoints WHERE session_id = $1`

	var data []byte
	err := s.db.QueryRowContext(ctx, q, session.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.OpBatch{}, persist.ErrNoCheckpoint
	}
	if err != nil {
		return wire.OpBatch{}, errors.Wrap(err, "querying checkpoint")
	}

	var batch wire.OpBatch
	return batch, errors.Wrap(batch.UnmarshalBinary(data), "decoding checkpoint")
}

// Update implements persist.Checkpointer, mirroring persist/pg's
// version-column optimistic locking.
func (s *Store) Update(ctx context.Context, session ids.SessionId, f persist.UpdateFunc) error {
	const selectQ = `SELECT version, data FROM checkpoints WHERE session_id = $1`

	var (
		beforeVersion int64
		data          []byte
	)
	err := s.db.QueryRowContext(ctx, selectQ, session.String()).Scan(&beforeVersion, &data)
	var before wire.OpBatch
	switch {
	case errors.Is(err, sql.ErrNoRows):
		beforeVersion = 0
	case err != nil:
		return errors.Wrap(err, "querying checkpoint")
	default:
		if err := before.UnmarshalBinary(data); err != nil {
			return errors.Wrap(err, "decoding checkpoint")
		}
	}

	next, err := f(before)
	if err != nil {
		return err
	}
	nextData, err := next.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}

	var res sql.Result
	if beforeVersion == 0 {
		const insertQ = `INSERT INTO checkpoints (session_id, version, data) VALUES ($1, 1, $2) ON CONFLICT DO NOTHING`
		res, err = s.db.ExecContext(ctx, insertQ, session.String(), nextData)
	} else {
		const updateQ = `UPDATE checkpoints SET version = version + 1, data = $3 WHERE session_id = $1 AND version = $2`
		res, err = s.db.ExecContext(ctx, updateQ, session.String(), beforeVersion, nextData)
	}
	if err != nil {
		return errors.Wrap(err, "storing checkpoint")
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if aff == 0 {
		return persist.ErrUpdateConflict
	}
	return nil
}

func init() {
	persist.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (persist.Checkpointer, error) {
		path, ok := conf["path"].(string)
		if !ok {
			return nil, errors.New(`missing "path" parameter`)
		}
		db, err := sql.Open("sqlite3", path)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
