package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/bnema/hlsd/internal/adapter/storage"
	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/port"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	registerHook()

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for SQLite (WAL allows concurrent reads but only one writer)
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Save(ctx context.Context, m *domain.MediaItem) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO media_items (id, source_path, duration_seconds, hls_status, hls_progress_pct, hls_step,
	hls_error, hls_segments_generated, hls_segments_expected)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	source_path = excluded.source_path,
	duration_seconds = excluded.duration_seconds,
	hls_status = excluded.hls_status,
	hls_progress_pct = excluded.hls_progress_pct,
	hls_step = excluded.hls_step,
	hls_error = excluded.hls_error,
	hls_segments_generated = excluded.hls_segments_generated,
	hls_segments_expected = excluded.hls_segments_expected,
	updated_at = CURRENT_TIMESTAMP`,
		m.ID, m.SourcePath, m.DurationSeconds, string(m.HLSStatus), m.HLSProgressPct, string(m.HLSStep),
		m.HLSError, m.SegmentsGenerated, m.SegmentsExpected,
	)
	return wrapBusy(err)
}

func (s *Store) Get(ctx context.Context, id string) (*domain.MediaItem, error) {
	var row storage.Row
	err := s.db.QueryRowContext(ctx,
		`SELECT `+storage.SelectColumns+` FROM media_items WHERE id = ?`, id,
	).Scan(row.ScanTargets()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, wrapBusy(err)
	}
	return row.MediaItem(), nil
}

func (s *Store) ListAll(ctx context.Context) ([]*domain.MediaItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+storage.SelectColumns+` FROM media_items ORDER BY created_at, id`)
	if err != nil {
		return nil, wrapBusy(err)
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.MediaItem
	for rows.Next() {
		var row storage.Row
		if err := rows.Scan(row.ScanTargets()...); err != nil {
			return nil, err
		}
		items = append(items, row.MediaItem())
	}
	if err := rows.Err(); err != nil {
		return nil, wrapBusy(err)
	}
	return items, nil
}

// UpdateHLS writes the fields set in u. Writing the same update twice leaves
// the row unchanged.
func (s *Store) UpdateHLS(ctx context.Context, id string, u domain.HLSUpdate) error {
	columns, args := storage.Assignments(u)
	if len(columns) == 0 {
		return nil
	}
	assignments := make([]string, len(columns))
	for i, col := range columns {
		assignments[i] = col + " = ?"
	}
	query := `UPDATE media_items SET ` + strings.Join(assignments, ", ") +
		`, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapBusy(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		code := coder.Code() & 0xff
		if code == sqliteBusy || code == sqliteLocked {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func wrapBusy(err error) error {
	if isSQLiteBusy(err) {
		return fmt.Errorf("%w: %v", domain.ErrStoreBusy, err)
	}
	return err
}

var _ port.MediaStore = (*Store)(nil)
