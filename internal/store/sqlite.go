package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/worklink/offline-sync/internal/domain"
	"github.com/worklink/offline-sync/internal/store/migrations"
)

type sqliteStore struct {
	db *sql.DB
}

// Open creates (or re-opens) the SQLite-backed queue store at path and
// applies pending schema migrations. It is idempotent: calling it against
// an existing store is safe and changes nothing.
//
// Any failure is wrapped in domain.ErrStorageUnavailable so callers can
// degrade to best-effort immediate retry without inspecting driver errors.
func Open(path string) (QueueStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: storage path is required", domain.ErrStorageUnavailable)
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", domain.ErrStorageUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrStorageUnavailable, err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrStorageUnavailable, err)
	}

	return &sqliteStore{db: db}, nil
}

// runMigrations applies all pending up-migrations from the embedded FS.
// Already-applied migrations are skipped.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) AddItem(ctx context.Context, a *domain.QueuedAction) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO queued_actions
			(queue, payload, auth_token, idempotency_key, status,
			 attempts, max_attempts, last_error, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.Queue, string(a.Payload), a.AuthToken, a.IdempotencyKey, a.Status,
		a.Attempts, a.MaxAttempts, a.LastError, toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert queued action: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read assigned id: %w", err)
	}
	a.ID = id
	return nil
}

func (s *sqliteStore) GetAllItems(ctx context.Context, q domain.Queue) ([]*domain.QueuedAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, queue, payload, auth_token, idempotency_key, status,
		       attempts, max_attempts, last_error, created_at, updated_at
		FROM queued_actions
		WHERE queue = ? AND status = ?
		ORDER BY created_at ASC, id ASC`, q, domain.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending actions: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

func (s *sqliteStore) GetItem(ctx context.Context, q domain.Queue, id int64) (*domain.QueuedAction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, queue, payload, auth_token, idempotency_key, status,
		       attempts, max_attempts, last_error, created_at, updated_at
		FROM queued_actions WHERE queue = ? AND id = ?`, q, id)

	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

func (s *sqliteStore) DeleteItem(ctx context.Context, q domain.Queue, id int64) error {
	// A missing key is deliberately not an error: an interrupted replay can
	// be resumed and delete the same record twice.
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM queued_actions WHERE queue = ? AND id = ?`, q, id)
	if err != nil {
		return fmt.Errorf("delete queued action: %w", err)
	}
	return nil
}

func (s *sqliteStore) ClearStore(ctx context.Context, q domain.Queue) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM queued_actions WHERE queue = ?`, q)
	if err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

func (s *sqliteStore) RecordFailure(ctx context.Context, q domain.Queue, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queued_actions
		SET attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE queue = ? AND id = ?`,
		errMsg, nowMillis(), q, id)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func (s *sqliteStore) MarkAbandoned(ctx context.Context, q domain.Queue, id int64, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queued_actions
		SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE queue = ? AND id = ? AND status = ?`,
		domain.StatusAbandoned, errMsg, nowMillis(), q, id, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("mark abandoned: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark abandoned: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetItem(ctx, q, id); err != nil {
			return err
		}
		return domain.ErrAlreadyAbandoned
	}
	return nil
}

func (s *sqliteStore) ListAbandoned(ctx context.Context, q domain.Queue) ([]*domain.QueuedAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, queue, payload, auth_token, idempotency_key, status,
		       attempts, max_attempts, last_error, created_at, updated_at
		FROM queued_actions
		WHERE queue = ? AND status = ?
		ORDER BY created_at ASC, id ASC`, q, domain.StatusAbandoned)
	if err != nil {
		return nil, fmt.Errorf("list abandoned actions: %w", err)
	}
	defer rows.Close()
	return scanActions(rows)
}

func (s *sqliteStore) RequeueAbandoned(ctx context.Context, q domain.Queue, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queued_actions
		SET status = ?, attempts = 0, last_error = NULL, updated_at = ?
		WHERE queue = ? AND id = ? AND status = ?`,
		domain.StatusPending, nowMillis(), q, id, domain.StatusAbandoned)
	if err != nil {
		return fmt.Errorf("requeue abandoned: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue abandoned: %w", err)
	}
	if affected == 0 {
		// Distinguish "no such record" from "record exists but is not abandoned".
		if _, err := s.GetItem(ctx, q, id); err != nil {
			return err
		}
		return domain.ErrNotAbandoned
	}
	return nil
}

func (s *sqliteStore) Depths(ctx context.Context) (map[domain.Queue]int, map[domain.Queue]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT queue, status, COUNT(*)
		FROM queued_actions
		GROUP BY queue, status`)
	if err != nil {
		return nil, nil, fmt.Errorf("count queue depths: %w", err)
	}
	defer rows.Close()

	pending := make(map[domain.Queue]int)
	abandoned := make(map[domain.Queue]int)
	for _, q := range domain.Queues() {
		pending[q], abandoned[q] = 0, 0
	}

	for rows.Next() {
		var q domain.Queue
		var status domain.Status
		var n int
		if err := rows.Scan(&q, &status, &n); err != nil {
			return nil, nil, fmt.Errorf("scan queue depth: %w", err)
		}
		switch status {
		case domain.StatusPending:
			pending[q] = n
		case domain.StatusAbandoned:
			abandoned[q] = n
		}
	}
	return pending, abandoned, rows.Err()
}

// ---- helpers ----

// row abstracts *sql.Row and *sql.Rows for the shared scan helper.
type row interface {
	Scan(dest ...any) error
}

func scanAction(r row) (*domain.QueuedAction, error) {
	var a domain.QueuedAction
	var payload string
	var createdAt, updatedAt int64
	err := r.Scan(
		&a.ID, &a.Queue, &payload, &a.AuthToken, &a.IdempotencyKey, &a.Status,
		&a.Attempts, &a.MaxAttempts, &a.LastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Payload = []byte(payload)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

func scanActions(rows *sql.Rows) ([]*domain.QueuedAction, error) {
	var result []*domain.QueuedAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nowMillis() int64 {
	return toMillis(time.Now())
}

// compile-time check that sqliteStore implements QueueStore
var _ QueueStore = (*sqliteStore)(nil)
