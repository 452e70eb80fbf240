// Package storage persists option-chain snapshots and implied-volatility
// history in SQLite, giving the analysis pipeline a local view of recent
// market data and enough IV history to derive a rank.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/AustinnAI/volaris/internal/models"
	"github.com/AustinnAI/volaris/internal/provider"
)

// ivRetentionDays keeps roughly one year of readings plus slack so a full
// 52-week rank window survives weekends and holidays.
const ivRetentionDays = 400

// timeLayout is fixed-width so lexicographic ordering in SQL matches
// chronological ordering. All stored times are UTC.
const timeLayout = "2006-01-02 15:04:05.000000000"

// SQLiteStorage stores snapshots and IV readings in a single SQLite database.
type SQLiteStorage struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Option configures a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStorage) {
		s.now = now
	}
}

// NewSQLiteStorage opens (or creates) the database at path and ensures the
// schema exists. A "file:" URI is passed through untouched so tests can use
// in-memory databases; plain paths get their parent directory created.
func NewSQLiteStorage(path string, opts ...Option) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	if !strings.HasPrefix(path, "file:") {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve storage path %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		path = abs
	}

	conn, err := sql.Open("sqlite", buildConnectionString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite serializes writes per connection; a single
	// connection avoids SQLITE_BUSY under concurrent refresh jobs.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(24 * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStorage{
		conn: conn,
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// buildConnectionString appends the PRAGMAs every connection needs: WAL for
// concurrent readers, NORMAL sync, and foreign keys so contract rows follow
// their snapshot on delete.
func buildConnectionString(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep +
		"_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)"
}

func (s *SQLiteStorage) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS chain_snapshots (
	id               TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	expiration       TEXT NOT NULL,
	dte              INTEGER NOT NULL,
	underlying_price REAL NOT NULL,
	as_of            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_symbol_dte
	ON chain_snapshots(symbol, dte, as_of);

CREATE TABLE IF NOT EXISTS contracts (
	snapshot_id   TEXT NOT NULL REFERENCES chain_snapshots(id) ON DELETE CASCADE,
	strike        REAL NOT NULL,
	option_type   TEXT NOT NULL,
	bid           REAL NOT NULL,
	ask           REAL NOT NULL,
	mark          REAL NOT NULL,
	delta         REAL,
	volume        INTEGER NOT NULL,
	open_interest INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contracts_snapshot ON contracts(snapshot_id);

CREATE TABLE IF NOT EXISTS iv_readings (
	symbol TEXT NOT NULL,
	as_of  TEXT NOT NULL,
	iv     REAL NOT NULL,
	PRIMARY KEY (symbol, as_of)
);`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveSnapshot persists a snapshot and all of its contracts in one
// transaction. Saving the same snapshot ID twice is an error.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, snap *models.ChainSnapshot) error {
	if snap == nil || snap.ID == "" {
		return fmt.Errorf("%w: snapshot with a non-empty ID is required", models.ErrInvalidInput)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chain_snapshots (id, symbol, expiration, dte, underlying_price, as_of)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Symbol, snap.Expiration, snap.DTE, snap.UnderlyingPrice,
		snap.AsOf.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", snap.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO contracts (snapshot_id, strike, option_type, bid, ask, mark, delta, volume, open_interest)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare contract insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range snap.Contracts {
		var delta sql.NullFloat64
		if c.Delta != nil {
			delta = sql.NullFloat64{Float64: *c.Delta, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			snap.ID, c.Strike, string(c.OptionType), c.Bid, c.Ask, c.Mark,
			delta, c.Volume, c.OpenInterest); err != nil {
			return fmt.Errorf("failed to insert contract %s %.2f: %w", c.OptionType, c.Strike, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// SnapshotByDTE returns the most recent snapshot for symbol whose DTE is
// within tolerance of targetDTE, or models.ErrNoData when none qualifies.
func (s *SQLiteStorage) SnapshotByDTE(ctx context.Context, symbol string, targetDTE, tolerance int) (*models.ChainSnapshot, error) {
	if tolerance < 0 {
		tolerance = 0
	}

	snap := &models.ChainSnapshot{}
	var asOf string
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, symbol, expiration, dte, underlying_price, as_of
		   FROM chain_snapshots
		  WHERE symbol = ? AND dte BETWEEN ? AND ?
		  ORDER BY as_of DESC
		  LIMIT 1`,
		symbol, targetDTE-tolerance, targetDTE+tolerance).
		Scan(&snap.ID, &snap.Symbol, &snap.Expiration, &snap.DTE, &snap.UnderlyingPrice, &asOf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no stored chain for %s near %d DTE", models.ErrNoData, symbol, targetDTE)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot for %s: %w", symbol, err)
	}
	if snap.AsOf, err = time.Parse(timeLayout, asOf); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot timestamp %q: %w", asOf, err)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT strike, option_type, bid, ask, mark, delta, volume, open_interest
		   FROM contracts
		  WHERE snapshot_id = ?
		  ORDER BY strike, option_type`, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts for snapshot %s: %w", snap.ID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var c models.OptionContract
		var typ string
		var delta sql.NullFloat64
		if err := rows.Scan(&c.Strike, &typ, &c.Bid, &c.Ask, &c.Mark, &delta, &c.Volume, &c.OpenInterest); err != nil {
			return nil, fmt.Errorf("failed to scan contract row: %w", err)
		}
		c.OptionType = models.OptionType(typ)
		if delta.Valid {
			d := delta.Float64
			c.Delta = &d
		}
		snap.Contracts = append(snap.Contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading contract rows: %w", err)
	}
	return snap, nil
}

// SaveIVReading upserts one IV observation. Re-saving the same
// (symbol, as_of) replaces the stored value.
func (s *SQLiteStorage) SaveIVReading(ctx context.Context, reading *models.IVReading) error {
	if reading == nil || reading.Symbol == "" {
		return fmt.Errorf("%w: IV reading with a symbol is required", models.ErrInvalidInput)
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO iv_readings (symbol, as_of, iv) VALUES (?, ?, ?)
		 ON CONFLICT(symbol, as_of) DO UPDATE SET iv = excluded.iv`,
		reading.Symbol, reading.AsOf.UTC().Format(timeLayout), reading.IV)
	if err != nil {
		return fmt.Errorf("failed to save IV reading for %s: %w", reading.Symbol, err)
	}
	return nil
}

// IVHistory returns the symbol's readings within the lookback window,
// oldest first.
func (s *SQLiteStorage) IVHistory(ctx context.Context, symbol string, lookbackDays int) ([]models.IVReading, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -lookbackDays).Format(timeLayout)
	rows, err := s.conn.QueryContext(ctx,
		`SELECT symbol, as_of, iv FROM iv_readings
		  WHERE symbol = ? AND as_of >= ?
		  ORDER BY as_of`, symbol, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query IV history for %s: %w", symbol, err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.IVReading
	for rows.Next() {
		var r models.IVReading
		var asOf string
		if err := rows.Scan(&r.Symbol, &asOf, &r.IV); err != nil {
			return nil, fmt.Errorf("failed to scan IV row: %w", err)
		}
		if r.AsOf, err = time.Parse(timeLayout, asOf); err != nil {
			return nil, fmt.Errorf("failed to parse IV timestamp %q: %w", asOf, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading IV rows: %w", err)
	}
	return out, nil
}

// IVRank places currentIV within the symbol's stored range over the lookback
// window. Returns models.ErrNoData when no history exists.
func (s *SQLiteStorage) IVRank(ctx context.Context, symbol string, currentIV float64, lookbackDays int) (float64, error) {
	history, err := s.IVHistory(ctx, symbol, lookbackDays)
	if err != nil {
		return 0, err
	}
	if len(history) == 0 {
		return 0, fmt.Errorf("%w: no IV history for %s", models.ErrNoData, symbol)
	}
	ivs := make([]float64, len(history))
	for i, r := range history {
		ivs[i] = r.IV
	}
	return provider.CalculateIVRank(currentIV, ivs), nil
}

// Prune deletes snapshots older than retentionDays (contracts follow via the
// foreign key) and IV readings past the rank window. Returns the number of
// snapshots removed.
func (s *SQLiteStorage) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("%w: retention_days must be positive", models.ErrInvalidInput)
	}
	now := s.now().UTC()

	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM chain_snapshots WHERE as_of < ?`,
		now.AddDate(0, 0, -retentionDays).Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned snapshots: %w", err)
	}

	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM iv_readings WHERE as_of < ?`,
		now.AddDate(0, 0, -ivRetentionDays).Format(timeLayout)); err != nil {
		return 0, fmt.Errorf("failed to prune IV readings: %w", err)
	}
	return removed, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStorage) Close() error {
	return s.conn.Close()
}
