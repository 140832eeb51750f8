// Package store implements the durable key-value substrate shared by the
// upload queue, the notification log and the response cache. Records live
// in namespaces inside one SQLite database; the schema is managed by
// embedded goose migrations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"stayline/internal/common"
	"stayline/internal/dbx"
	"stayline/internal/logging"
	"stayline/internal/models"
	"stayline/internal/store/migrations"
)

// Namespaces used by the stayline components. The cache has its own table
// with TTL columns and is not part of the generic record namespaces.
const (
	NamespaceUploads       = "upload_queue"
	NamespaceNotifications = "notification_log"
	NamespaceDevice        = "device"
)

// Record is one durable namespaced record. Data holds the component's own
// JSON encoding; the store never looks inside it.
type Record struct {
	ID        string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store owns the database handle. It is constructed by the composition
// root and injected into every component that needs durability; there is
// no package-level singleton.
type Store struct {
	dsn string
	log logging.Logger

	mu     sync.Mutex
	db     *sql.DB
	opened bool
}

func New(dsn string, log logging.Logger) *Store {
	return &Store{dsn: dsn, log: log.With("component", "store")}
}

// Open establishes the connection and runs migrations. It is idempotent
// and safe to call from multiple call sites; concurrent callers serialize
// on one initialization instead of racing to create the schema twice.
// A failed Open leaves the store closed so a later call can try again.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil
	}

	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", common.ErrStorageUnavailable, s.dsn, err)
	}
	// modernc sqlite handles are not safe for concurrent writers; one
	// connection serializes all access, which also keeps :memory: DSNs
	// pointing at a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: ping: %v", common.ErrStorageUnavailable, err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: migrate: %v", common.ErrStorageUnavailable, err)
	}

	s.db = db
	s.opened = true
	s.log.Debug(ctx, "store opened", "dsn", s.dsn)
	return nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Close releases the database handle. The store can be reopened afterwards;
// queued records survive the restart.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}
	s.opened = false
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil, fmt.Errorf("%w: store is not open", common.ErrStorageUnavailable)
	}
	return s.db, nil
}

// Put upserts a record by id. A missing id gets a random one and a missing
// CreatedAt gets the current time; UpdatedAt is always refreshed. The
// upsert is a single statement, so a crash mid-write never leaves a
// half-written record visible.
func (s *Store) Put(ctx context.Context, namespace string, r *Record) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	query := `INSERT INTO records (namespace, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`
	_, err = db.ExecContext(ctx, query,
		namespace, r.ID, r.Data, r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", common.ErrStorageUnavailable, namespace, r.ID, err)
	}
	return nil
}

// Get returns the record under id, or common.ErrNotFound.
func (s *Store) Get(ctx context.Context, namespace, id string) (*Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	query := `SELECT id, data, created_at, updated_at FROM records
		WHERE namespace = ? AND id = ?`
	var r Record
	var created, updated int64
	err = db.QueryRowContext(ctx, query, namespace, id).
		Scan(&r.ID, &r.Data, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s/%s: %w", namespace, id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s/%s: %v", common.ErrStorageUnavailable, namespace, id, err)
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	r.UpdatedAt = time.Unix(0, updated).UTC()
	return &r, nil
}

// Update runs a read-modify-write for one record inside a transaction.
// fn receives the current record (nil when absent) and returns the record
// to write, or nil to leave the namespace untouched. Errors returned by fn
// pass through unchanged.
func (s *Store) Update(ctx context.Context, namespace, id string, fn func(cur *Record) (*Record, error)) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var cur *Record
		var r Record
		var created, updated int64
		scanErr := tx.QueryRowContext(ctx,
			`SELECT id, data, created_at, updated_at FROM records WHERE namespace = ? AND id = ?`,
			namespace, id).
			Scan(&r.ID, &r.Data, &created, &updated)
		switch {
		case scanErr == nil:
			r.CreatedAt = time.Unix(0, created).UTC()
			r.UpdatedAt = time.Unix(0, updated).UTC()
			cur = &r
		case errors.Is(scanErr, sql.ErrNoRows):
			// absent; fn decides whether to create
		default:
			return fmt.Errorf("%w: update %s/%s: %v", common.ErrStorageUnavailable, namespace, id, scanErr)
		}

		next, err := fn(cur)
		if err != nil || next == nil {
			return err
		}

		now := time.Now().UTC()
		if next.ID == "" {
			next.ID = id
		}
		if next.CreatedAt.IsZero() {
			if cur != nil {
				next.CreatedAt = cur.CreatedAt
			} else {
				next.CreatedAt = now
			}
		}
		next.UpdatedAt = now

		_, err = tx.ExecContext(ctx,
			`INSERT INTO records (namespace, id, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(namespace, id) DO UPDATE SET
				data = excluded.data,
				updated_at = excluded.updated_at`,
			namespace, next.ID, next.Data, next.CreatedAt.UnixNano(), next.UpdatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("%w: update %s/%s: %v", common.ErrStorageUnavailable, namespace, id, err)
		}
		return nil
	})
}

// Delete removes the record under id. Deleting a missing id is a no-op.
func (s *Store) Delete(ctx context.Context, namespace, id string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`DELETE FROM records WHERE namespace = ? AND id = ?`, namespace, id)
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", common.ErrStorageUnavailable, namespace, id, err)
	}
	return nil
}

// List returns up to limit records ordered by CreatedAt ascending (id breaks
// ties for a stable order). limit <= 0 means no limit. Callers wanting
// newest-first sort the result themselves.
func (s *Store) List(ctx context.Context, namespace string, limit int) ([]*Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unlimited
	}
	query := `SELECT id, data, created_at, updated_at FROM records
		WHERE namespace = ? ORDER BY created_at ASC, id ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", common.ErrStorageUnavailable, namespace, err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		var r Record
		var created, updated int64
		if err := rows.Scan(&r.ID, &r.Data, &created, &updated); err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", common.ErrStorageUnavailable, namespace, err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		r.UpdatedAt = time.Unix(0, updated).UTC()
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", common.ErrStorageUnavailable, namespace, err)
	}
	return result, nil
}

// CachePut overwrites the cache entry for its key.
func (s *Store) CachePut(ctx context.Context, e *models.CacheEntry) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	query := `INSERT INTO cache_entries (key, data, ts, expiry) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			ts = excluded.ts,
			expiry = excluded.expiry`
	_, err = db.ExecContext(ctx, query,
		e.Key, e.Data, e.Timestamp.UnixNano(), e.Expiry.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: cache put %s: %v", common.ErrStorageUnavailable, e.Key, err)
	}
	return nil
}

// CacheGet returns the entry under key regardless of expiry, or
// common.ErrNotFound. Expiry policy belongs to the cache component.
func (s *Store) CacheGet(ctx context.Context, key string) (*models.CacheEntry, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var e models.CacheEntry
	var ts, expiry int64
	err = db.QueryRowContext(ctx,
		`SELECT key, data, ts, expiry FROM cache_entries WHERE key = ?`, key).
		Scan(&e.Key, &e.Data, &ts, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cache get %s: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cache get %s: %v", common.ErrStorageUnavailable, key, err)
	}
	e.Timestamp = time.Unix(0, ts).UTC()
	e.Expiry = time.Unix(0, expiry).UTC()
	return &e, nil
}

// CacheDelete removes the entry under key; missing keys are a no-op.
func (s *Store) CacheDelete(ctx context.Context, key string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: cache delete %s: %v", common.ErrStorageUnavailable, key, err)
	}
	return nil
}

// CacheSweep deletes every entry expired at the given time and returns the
// number removed. Purely space reclamation; expiry is enforced at read time.
func (s *Store) CacheSweep(ctx context.Context, now time.Time) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expiry <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: cache sweep: %v", common.ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
