package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/bnema/hlsd/internal/adapter/storage"
	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLSTATEs that mean another transaction held the row.
var busyCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

type Config struct {
	DSN      string
	MaxConns int32
}

type Store struct {
	pool *pgxpool.Pool
}

// NewStore opens a pool and applies the embedded migrations.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Save(ctx context.Context, m *domain.MediaItem) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO media_items (id, source_path, duration_seconds, hls_status, hls_progress_pct, hls_step,
	hls_error, hls_segments_generated, hls_segments_expected)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	source_path = EXCLUDED.source_path,
	duration_seconds = EXCLUDED.duration_seconds,
	hls_status = EXCLUDED.hls_status,
	hls_progress_pct = EXCLUDED.hls_progress_pct,
	hls_step = EXCLUDED.hls_step,
	hls_error = EXCLUDED.hls_error,
	hls_segments_generated = EXCLUDED.hls_segments_generated,
	hls_segments_expected = EXCLUDED.hls_segments_expected,
	updated_at = NOW()`,
		m.ID, m.SourcePath, m.DurationSeconds, string(m.HLSStatus), m.HLSProgressPct, string(m.HLSStep),
		m.HLSError, m.SegmentsGenerated, m.SegmentsExpected,
	)
	if err != nil {
		return fmt.Errorf("save media item: %w", wrapBusy(err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.MediaItem, error) {
	var row storage.Row
	err := s.pool.QueryRow(ctx,
		`SELECT `+storage.SelectColumns+` FROM media_items WHERE id = $1`, id,
	).Scan(row.ScanTargets()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get media item: %w", wrapBusy(err))
	}
	return row.MediaItem(), nil
}

func (s *Store) ListAll(ctx context.Context) ([]*domain.MediaItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+storage.SelectColumns+` FROM media_items ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list media items: %w", wrapBusy(err))
	}
	defer rows.Close()

	var items []*domain.MediaItem
	for rows.Next() {
		var row storage.Row
		if err := rows.Scan(row.ScanTargets()...); err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		items = append(items, row.MediaItem())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list media items: %w", wrapBusy(err))
	}
	return items, nil
}

func (s *Store) UpdateHLS(ctx context.Context, id string, u domain.HLSUpdate) error {
	columns, args := storage.Assignments(u)
	if len(columns) == 0 {
		return nil
	}
	query, args := updateQuery(columns, args, id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update hls fields: %w", wrapBusy(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func updateQuery(columns []string, args []any, id string) (string, []any) {
	assignments := make([]string, len(columns))
	for i, col := range columns {
		assignments[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	query := fmt.Sprintf(`UPDATE media_items SET %s, updated_at = NOW() WHERE id = $%d`,
		strings.Join(assignments, ", "), len(columns)+1)
	return query, append(args, id)
}

func isBusy(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	_, ok := busyCodes[pgErr.Code]
	return ok
}

func wrapBusy(err error) error {
	if isBusy(err) {
		return fmt.Errorf("%w: %v", domain.ErrStoreBusy, err)
	}
	return err
}

var _ port.MediaStore = (*Store)(nil)
