package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"FeedPulse/internal/domain"
	"FeedPulse/internal/ports"
)

const historyTable = "refresh_history"

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var historyColumns = []string{
	"feed", "fingerprint", "item_count", "summary_regenerated",
	"summary_fallback", "stale", "error", "duration_ms", "recorded_at",
}

// HistoryRepository appends refresh outcomes to Postgres or SQLite.
type HistoryRepository struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
}

var _ ports.HistoryRepository = (*HistoryRepository)(nil)

// Open connects to the database and creates the history table if needed.
func Open(ctx context.Context, driver, dsn string) (*HistoryRepository, error) {
	driver, err := normalizeDriver(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; serialize rather than hit SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	repo := NewHistoryRepository(db, driver)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewHistoryRepository wires an already opened sql.DB.
func NewHistoryRepository(db *sql.DB, driver string) *HistoryRepository {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &HistoryRepository{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// EnsureSchema creates the history table and its lookup index.
func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if r.driver == DriverPostgres {
		id = "id BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + historyTable + ` (
			` + id + `,
			feed TEXT NOT NULL,
			fingerprint TEXT NOT NULL DEFAULT '',
			item_count INTEGER NOT NULL DEFAULT 0,
			summary_regenerated BOOLEAN NOT NULL DEFAULT FALSE,
			summary_fallback BOOLEAN NOT NULL DEFAULT FALSE,
			stale BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			recorded_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_history_feed ON ` + historyTable + ` (feed, id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure history schema: %w", err)
		}
	}
	return nil
}

// RecordRefresh appends one refresh outcome.
func (r *HistoryRepository) RecordRefresh(ctx context.Context, record domain.RefreshRecord) error {
	if r == nil || r.db == nil {
		return nil
	}

	recordedAt := record.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	query, args, err := r.sb.Insert(historyTable).
		Columns(historyColumns...).
		Values(
			record.Feed,
			record.Fingerprint,
			record.ItemCount,
			record.SummaryRegenerated,
			record.SummaryFallback,
			record.Stale,
			record.Error,
			record.Duration.Milliseconds(),
			recordedAt.UnixMilli(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build history insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// Recent returns up to limit records for feed, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, feed string, limit int) ([]domain.RefreshRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query, args, err := r.sb.Select(historyColumns...).
		From(historyTable).
		Where(sq.Eq{"feed": feed}).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []domain.RefreshRecord
	for rows.Next() {
		var (
			rec        domain.RefreshRecord
			durationMS int64
			recordedAt int64
		)
		if err := rows.Scan(
			&rec.Feed,
			&rec.Fingerprint,
			&rec.ItemCount,
			&rec.SummaryRegenerated,
			&rec.SummaryFallback,
			&rec.Stale,
			&rec.Error,
			&durationMS,
			&recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.RecordedAt = time.UnixMilli(recordedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

// Close releases the connection pool.
func (r *HistoryRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func normalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pq":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported history driver %q", driver)
	}
}
