package sqlstorage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/viewstore/internal/errs"
	"github.com/roach88/viewstore/internal/query"
	"github.com/roach88/viewstore/internal/record"
	"github.com/roach88/viewstore/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - records table with dense positions
const currentSchemaVersion = 1

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLite is a storage.Storage backed by a SQLite database.
//
// Thread-safety: all methods are safe for concurrent use. The pool holds a
// single connection and writes are serialized by a mutex.
type SQLite struct {
	db       *sql.DB
	mu       sync.Mutex
	identity storage.Identity
	ids      storage.IDGenerator
}

var _ storage.Storage = (*SQLite)(nil)

// Open creates or opens the database at path. Applies pragmas and schema,
// then inserts any initial data from opts.
//
// Initial data whose ids collide with each other or with rows already in
// the database fails with DUPLICATE_IDENTITY.
func Open(path string, opts ...storage.Option) (*SQLite, error) {
	if path == "" {
		path = MemoryPath
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer, and an in-memory database only lives as
	// long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	c := storage.NewConfig(opts...)
	s := &SQLite{db: db, identity: c.Identity, ids: c.IDs}
	if len(c.Data) > 0 {
		if err := s.seed(context.Background(), c.Data); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Identity returns the configured identity strategy.
func (s *SQLite) Identity() storage.Identity { return s.identity }

// queryer is implemented by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) seed(ctx context.Context, data []record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		explicit := map[storage.ID]bool{}
		for _, item := range data {
			if id, ok := s.identity.Identify(item); ok {
				explicit[id] = true
			}
		}
		var lookupErr error
		b, err := storage.PrepareBatch(ctx, s.identity, s.ids, func(id storage.ID) bool {
			return explicit[id] || s.existsOrFail(ctx, tx, id, &lookupErr)
		}, data)
		if err != nil {
			return err
		}
		if lookupErr != nil {
			return lookupErr
		}
		seen := map[storage.ID]bool{}
		for i, id := range b.IDs {
			exists, err := exists(ctx, tx, id)
			if err != nil {
				return err
			}
			if exists || seen[id] {
				return errs.DuplicateIdentity(id)
			}
			seen[id] = true
			if err := insert(ctx, tx, id, b.Items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// existsOrFail is exists for use inside callbacks that cannot return an
// error. The first lookup error is kept in *errp and the id is reported as
// taken.
func (s *SQLite) existsOrFail(ctx context.Context, q queryer, id storage.ID, errp *error) bool {
	ok, err := exists(ctx, q, id)
	if err != nil {
		if *errp == nil {
			*errp = err
		}
		return true
	}
	return ok
}

func exists(ctx context.Context, q queryer, id storage.ID) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM records WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %q: %w", id, err)
	}
	return true, nil
}

func load(ctx context.Context, q queryer, id storage.ID) (record.Record, int64, bool, error) {
	var (
		doc string
		pos int64
	)
	err := q.QueryRowContext(ctx, "SELECT doc, pos FROM records WHERE id = ?", id).Scan(&doc, &pos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("load %q: %w", id, err)
	}
	r, err := record.Unmarshal([]byte(doc))
	if err != nil {
		return nil, 0, false, fmt.Errorf("decode %q: %w", id, err)
	}
	return r, pos, true, nil
}

func encode(item record.Record) (string, error) {
	b, err := record.MarshalCanonical(map[string]any(item))
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(b), nil
}

func insert(ctx context.Context, q queryer, id storage.ID, item record.Record) error {
	doc, err := encode(item)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO records (id, pos, doc) VALUES (?, (SELECT COALESCE(MAX(pos) + 1, 0) FROM records), ?)",
		id, doc)
	if err != nil {
		return fmt.Errorf("insert %q: %w", id, err)
	}
	return nil
}

func update(ctx context.Context, q queryer, id storage.ID, item record.Record) error {
	doc, err := encode(item)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, "UPDATE records SET doc = ? WHERE id = ?", doc, id); err != nil {
		return fmt.Errorf("update %q: %w", id, err)
	}
	return nil
}

func (s *SQLite) Identify(items ...record.Record) []storage.ID {
	return storage.IdentifyAll(s.identity, items...)
}

func (s *SQLite) CreateID(ctx context.Context) (storage.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lookupErr error
	id, err := storage.NextID(ctx, s.ids, func(id storage.ID) bool {
		return s.existsOrFail(ctx, s.db, id, &lookupErr)
	})
	if err != nil {
		return "", err
	}
	if lookupErr != nil {
		return "", lookupErr
	}
	return id, nil
}

func (s *SQLite) Fetch(ctx context.Context, q query.Query) ([]record.Record, error) {
	plan := PlanFetch(q)
	rows, err := s.db.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer rows.Close()

	out := []record.Record{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r, err := record.Unmarshal([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if plan.Residual != nil {
		out = plan.Residual.Apply(out)
	}
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, ids ...storage.ID) ([]record.Record, error) {
	out := make([]record.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, doc FROM records WHERE id IN ("+placeholders+") ORDER BY id ASC COLLATE BINARY", args...)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer rows.Close()

	found := map[storage.ID]record.Record{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r, err := record.Unmarshal([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", id, err)
		}
		found[id] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	for i, id := range ids {
		if r, ok := found[id]; ok {
			out[i] = r.Clone()
		}
	}
	return out, nil
}

func (s *SQLite) Put(ctx context.Context, items []record.Record, opts storage.PutOptions) (storage.Result, error) {
	return s.write(ctx, storage.OpPut, items, opts.RejectOverwrite)
}

func (s *SQLite) Add(ctx context.Context, items []record.Record, opts storage.PutOptions) (storage.Result, error) {
	return s.write(ctx, storage.OpAdd, items, !opts.AllowOverwrite)
}

func (s *SQLite) write(ctx context.Context, op storage.OpType, items []record.Record, reject bool) (storage.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := storage.Result{Type: op}
	var rejected error
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var lookupErr error
		b, err := storage.PrepareBatch(ctx, s.identity, s.ids, func(id storage.ID) bool {
			return s.existsOrFail(ctx, tx, id, &lookupErr)
		}, items)
		if err != nil {
			return err
		}
		if lookupErr != nil {
			return lookupErr
		}

		if reject {
			var existing []storage.ID
			current := make([]record.Record, len(b.IDs))
			for i, id := range b.IDs {
				r, _, ok, err := load(ctx, tx, id)
				if err != nil {
					return err
				}
				if ok {
					existing = append(existing, id)
					current[i] = r
				}
			}
			if len(existing) > 0 {
				res.Failed = b.Items
				res.Current = current
				rejected = errs.OverwriteRejected(existing...)
				return rejected
			}
		}

		for i, item := range b.Items {
			id := b.IDs[i]
			ok, err := exists(ctx, tx, id)
			if err != nil {
				return err
			}
			if ok {
				err = update(ctx, tx, id, item)
			} else {
				err = insert(ctx, tx, id, item)
			}
			if err != nil {
				return err
			}
		}
		res.SuccessfulIDs = b.IDs
		res.Successful = storage.CloneAll(b.Items)
		return nil
	})
	if err != nil {
		if rejected == nil {
			res.Failed, res.Current = nil, nil
		}
		res.Successful, res.SuccessfulIDs = nil, nil
		return res, err
	}
	return res, nil
}

func (s *SQLite) Delete(ctx context.Context, ids []storage.ID) (storage.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := storage.Result{Type: storage.OpDelete}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		lowest := int64(-1)
		for _, id := range ids {
			r, pos, ok, err := load(ctx, tx, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id); err != nil {
				return fmt.Errorf("delete %q: %w", id, err)
			}
			if lowest < 0 || pos < lowest {
				lowest = pos
			}
			res.Successful = append(res.Successful, r)
			res.SuccessfulIDs = append(res.SuccessfulIDs, id)
		}
		if lowest < 0 {
			return nil
		}
		return renumber(ctx, tx, lowest)
	})
	if err != nil {
		return storage.Result{Type: storage.OpDelete}, err
	}
	return res, nil
}

// renumber makes positions from lowest onward dense again.
func renumber(ctx context.Context, tx *sql.Tx, lowest int64) error {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM records WHERE pos >= ? ORDER BY pos", lowest)
	if err != nil {
		return fmt.Errorf("renumber: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("renumber scan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("renumber: %w", err)
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, "UPDATE records SET pos = ? WHERE id = ?", lowest+int64(i), id); err != nil {
			return fmt.Errorf("renumber %q: %w", id, err)
		}
	}
	return nil
}

func (s *SQLite) Patch(ctx context.Context, updates []storage.PatchUpdate) (storage.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := storage.Result{Type: storage.OpPatch}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		loaded := map[storage.ID]record.Record{}
		for _, u := range updates {
			if _, seen := loaded[u.ID]; seen {
				continue
			}
			r, _, ok, err := load(ctx, tx, u.ID)
			if err != nil {
				return err
			}
			if ok {
				loaded[u.ID] = r
			}
		}
		patched, order, err := storage.ApplyPatches(s.identity, updates, func(id storage.ID) (record.Record, bool) {
			r, ok := loaded[id]
			return r, ok
		})
		if err != nil {
			return err
		}
		for _, id := range order {
			if err := update(ctx, tx, id, patched[id]); err != nil {
				return err
			}
			res.Successful = append(res.Successful, patched[id].Clone())
		}
		res.SuccessfulIDs = order
		return nil
	})
	if err != nil {
		return storage.Result{Type: storage.OpPatch}, err
	}
	return res, nil
}

func (s *SQLite) IsUpdate(ctx context.Context, item record.Record) (bool, storage.ID, error) {
	id, ok := s.identity.Identify(item)
	if !ok {
		return false, "", nil
	}
	found, err := exists(ctx, s.db, id)
	if err != nil {
		return false, "", err
	}
	return found, id, nil
}
