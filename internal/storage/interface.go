package storage

import (
	"context"

	"github.com/AustinnAI/volaris/internal/models"
)

// Interface defines the contract for chain-snapshot and IV-history persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe and can safely call them from multiple
// goroutines. The provided SQLiteStorage implementation relies on
// database/sql's connection pool for that guarantee.
type Interface interface {
	// Chain snapshots
	SaveSnapshot(ctx context.Context, snap *models.ChainSnapshot) error
	SnapshotByDTE(ctx context.Context, symbol string, targetDTE, tolerance int) (*models.ChainSnapshot, error)

	// IV history and rank
	SaveIVReading(ctx context.Context, reading *models.IVReading) error
	IVHistory(ctx context.Context, symbol string, lookbackDays int) ([]models.IVReading, error)
	IVRank(ctx context.Context, symbol string, currentIV float64, lookbackDays int) (float64, error)

	// Maintenance
	Prune(ctx context.Context, retentionDays int) (int64, error)
	Close() error
}

// NewStorage creates a new storage implementation (currently SQLite-based).
// In the future, this can be extended to support different storage backends.
func NewStorage(path string, opts ...Option) (Interface, error) {
	return NewSQLiteStorage(path, opts...)
}

// Ensure both implementations satisfy Interface.
var (
	_ Interface = (*SQLiteStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
