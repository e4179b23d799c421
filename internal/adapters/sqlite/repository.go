package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dcaAlertBot/internal/domain"
	"dcaAlertBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.KlineArchive interface using SQLite.
type Repository struct {
	db       *sql.DB
	logger   ports.Logger
	location *time.Location
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath   string
	Logger   ports.Logger
	Location *time.Location // Timezone archived klines are returned in, defaults to UTC
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/klines.db" // Default path
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("%w: failed to ping database at '%s': %w", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger, location: loc}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS klines (
		symbol TEXT NOT NULL,
		kline_interval TEXT NOT NULL,
		open_time INTEGER NOT NULL, -- unix milliseconds
		close_time INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (symbol, kline_interval, open_time)
	);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// SaveKlines upserts klines keyed by symbol, interval and open time.
// The batch is written in one transaction.
func (r *Repository) SaveKlines(ctx context.Context, klines []*domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}
	const query = `
	INSERT INTO klines (symbol, kline_interval, open_time, close_time, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, kline_interval, open_time) DO UPDATE SET
		close_time = excluded.close_time,
		open = excluded.open,
		high = excluded.high,
		low = excluded.low,
		close = excluded.close,
		volume = excluded.volume`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin kline batch: %w", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback() // No-op after commit

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: prepare kline upsert: %w", ports.ErrUpdateFailed, err)
	}
	defer stmt.Close()

	for _, k := range klines {
		if k == nil {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			k.Symbol, k.Interval, k.OpenTime.UnixMilli(), k.CloseTime.UnixMilli(),
			k.Open, k.High, k.Low, k.Close, k.Volume); err != nil {
			return fmt.Errorf("%w: upsert kline %s %s at %s: %w", ports.ErrUpdateFailed, k.Symbol, k.Interval, k.OpenTime, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit kline batch: %w", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Klines archived", map[string]interface{}{"count": len(klines)})
	return nil
}

// FindKlines returns up to limit of the most recent archived klines, oldest first.
func (r *Repository) FindKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	const query = `
	SELECT symbol, kline_interval, open_time, close_time, open, high, low, close, volume
	FROM (
		SELECT * FROM klines
		WHERE symbol = ? AND kline_interval = ?
		ORDER BY open_time DESC LIMIT ?
	)
	ORDER BY open_time ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query klines for %s %s: %w", ports.ErrQueryFailed, symbol, interval, err)
	}
	defer rows.Close()

	klines := make([]*domain.Kline, 0, limit)
	for rows.Next() {
		k, err := r.scanKline(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan kline: %w", ports.ErrQueryFailed, err)
		}
		klines = append(klines, k)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate kline rows: %w", ports.ErrQueryFailed, err)
	}
	return klines, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanKline(s scanner) (*domain.Kline, error) {
	k := &domain.Kline{}
	var openMs, closeMs int64
	err := s.Scan(&k.Symbol, &k.Interval, &openMs, &closeMs, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume)
	if err != nil {
		return nil, err
	}
	k.OpenTime = time.UnixMilli(openMs).In(r.location)
	k.CloseTime = time.UnixMilli(closeMs).In(r.location)
	return k, nil
}
