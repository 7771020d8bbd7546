// Package sqlite3 implements a blob store in a Sqlite3 relational database schema.
package sqlite3

import (
	"context"
	"database/sql"
	"time"

	"github.com/bobg/sqlutil"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/opencollab/corefs"
	"github.com/opencollab/corefs/anchor"
	"github.com/opencollab/corefs/store"
)

var (
	_ corefs.Store = (*Store)(nil)
	_ anchor.Store = (*Store)(nil)
)

// Store is a Sqlite-based blob store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
  ref BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS anchor_map_ref (
  ref BLOB NOT NULL,
  singleton INT NOT NULL UNIQUE DEFAULT 1 CHECK (singleton = 1)
);

CREATE TABLE IF NOT EXISTS anchors (
  name BLOB NOT NULL,
  at INTEGER NOT NULL,
  ref BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS anchors_name_at ON anchors (name, at);
`

// New produces a new Store using `db` for storage.
// It expects to create tables `blobs` and `anchors`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, err
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(ctx context.Context, ref corefs.Ref) (corefs.Blob, error) {
	const q = `SELECT data FROM blobs WHERE ref = $1`

	var b []byte
	err := s.db.QueryRowContext(ctx, q, ref).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, corefs.ErrNotFound
	}
	return corefs.Blob(b), errors.Wrapf(err, "querying db for ref %s", ref)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b corefs.Blob) (corefs.Ref, bool, error) {
	const q = `INSERT INTO blobs (ref, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	ref := b.Ref()
	res, err := s.db.ExecContext(ctx, q, ref, []byte(b))
	if err != nil {
		return corefs.Zero, false, errors.Wrap(err, "inserting blob")
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return corefs.Zero, false, errors.Wrap(err, "counting affected rows")
	}

	added := aff > 0

	return ref, added, nil
}

// GetMulti gets multiple blobs in one call.
func (s *Store) GetMulti(ctx context.Context, refs []corefs.Ref) (corefs.GetMultiResult, error) {
	result := make(corefs.GetMultiResult, len(refs))
	for _, ref := range refs {
		ref := ref
		result[ref] = func(ctx context.Context) (corefs.Blob, error) { return s.Get(ctx, ref) }
	}
	return result, nil
}

// PutMulti adds multiple blobs to the store in one call.
func (s *Store) PutMulti(ctx context.Context, blobs []corefs.Blob) (corefs.PutMultiResult, error) {
	result := make(corefs.PutMultiResult, len(blobs))
	for i, b := range blobs {
		i, b := i, b
		result[i] = func(ctx context.Context) (corefs.Ref, bool, error) { return s.Put(ctx, b) }
	}
	return result, nil
}

// GetAnchor gets the latest ref for an anchor as of the given time, using
// the simple per-name anchors table (distinct from the schema.Map-backed
// mechanism AnchorMapRef/UpdateAnchorMap implement below).
func (s *Store) GetAnchor(ctx context.Context, a corefs.Anchor, at time.Time) (corefs.Ref, error) {
	const q = `SELECT ref FROM anchors WHERE name = $1 AND at <= $2 ORDER BY at DESC LIMIT 1`

	var ref corefs.Ref
	err := s.db.QueryRowContext(ctx, q, string(a), at.UnixNano()).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return corefs.Zero, corefs.ErrNotFound
	}
	return ref, errors.Wrapf(err, "querying anchor %q", a)
}

// PutAnchor associates an anchor and a timestamp with a ref.
func (s *Store) PutAnchor(ctx context.Context, ref corefs.Ref, a corefs.Anchor, at time.Time) error {
	const q = `INSERT INTO anchors (name, at, ref) VALUES ($1, $2, $3)`
	_, err := s.db.ExecContext(ctx, q, string(a), at.UnixNano(), ref)
	return errors.Wrap(err, "inserting anchor")
}

// ListAnchors lists all distinct anchor names in the store, in lexical
// order after start.
func (s *Store) ListAnchors(ctx context.Context, start corefs.Anchor, f func(corefs.Anchor) error) error {
	const q = `SELECT DISTINCT name FROM anchors WHERE name > $1 ORDER BY name`
	return sqlutil.ForQueryRows(ctx, s.db, q, string(start), func(name string) error {
		return f(corefs.Anchor(name))
	})
}

// ListAnchorRefs lists all refs for a given anchor, in chronological
// order.
func (s *Store) ListAnchorRefs(ctx context.Context, a corefs.Anchor, f func(corefs.TimeRef) error) error {
	const q = `SELECT at, ref FROM anchors WHERE name = $1 ORDER BY at`
	return sqlutil.ForQueryRows(ctx, s.db, q, string(a), func(atNanos int64, ref corefs.Ref) error {
		return f(corefs.TimeRef{T: time.Unix(0, atNanos), R: ref})
	})
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start corefs.Ref, f func(corefs.Ref) error) error {
	const q = `SELECT blobs.ref FROM blobs WHERE blobs.ref > $1 ORDER BY blobs.ref`

	var lastRef *corefs.Ref
	err := sqlutil.ForQueryRows(ctx, s.db, q, start, func(ref corefs.Ref) error {
		if lastRef == nil {
			lastRef = &ref
		} else {
			if ref != *lastRef {
				err := f(*lastRef)
				if err != nil {
					return err
				}
				lastRef = &ref
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if lastRef != nil {
		err = f(*lastRef)
		if err != nil {
			return err
		}
	}
	return nil
}

// AnchorMapRef implements anchor.Getter.
func (s *Store) AnchorMapRef(ctx context.Context) (corefs.Ref, error) {
	const q = `SELECT ref FROM anchor_map_ref`

	var ref corefs.Ref
	err := s.db.QueryRowContext(ctx, q).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return corefs.Zero, anchor.ErrNoAnchorMap
	}
	return ref, err
}

// UpdateAnchorMap implements anchor.Store.
func (s *Store) UpdateAnchorMap(ctx context.Context, f anchor.UpdateFunc) error {
	oldRef, err := s.AnchorMapRef(ctx)
	if errors.Is(err, anchor.ErrNoAnchorMap) {
		oldRef = corefs.Zero
	} else if err != nil {
		return errors.Wrap(err, "getting anchor map ref")
	}

	newRef, err := f(oldRef)
	if err != nil {
		return err
	}

	if oldRef.IsZero() {
		const q = `INSERT INTO anchor_map_ref (ref) VALUES ($1)`
		_, err = s.db.ExecContext(ctx, q, newRef)
		var e sqlite3.Error
		if errors.As(err, &e) && e.Code == sqlite3.ErrConstraint {
			return anchor.ErrUpdateConflict
		}
		return err
	}

	const q = `UPDATE anchor_map_ref SET ref = $1 WHERE ref = $2`
	res, err := s.db.ExecContext(ctx, q, newRef, oldRef)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return anchor.ErrUpdateConflict
	}
	return nil
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (corefs.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
