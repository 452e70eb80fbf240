package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AustinnAI/volaris/internal/models"
	"github.com/AustinnAI/volaris/internal/provider"
)

// MockStorage implements Interface in memory for testing.
type MockStorage struct {
	mu sync.Mutex

	saveSnapshotErr error
	saveIVErr       error

	snapshots []*models.ChainSnapshot
	readings  map[string][]models.IVReading

	saveSnapshotCalls int
	saveIVCalls       int
	pruneCalls        int

	now func() time.Time
}

// NewMockStorage creates a new mock storage for testing.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		readings: make(map[string][]models.IVReading),
		now:      time.Now,
	}
}

// SetSaveSnapshotError makes subsequent SaveSnapshot calls fail with err.
func (m *MockStorage) SetSaveSnapshotError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveSnapshotErr = err
}

// SetSaveIVError makes subsequent SaveIVReading calls fail with err.
func (m *MockStorage) SetSaveIVError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveIVErr = err
}

// SetClock overrides the time source used for retention windows.
func (m *MockStorage) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SaveSnapshotCalls returns how many times SaveSnapshot was invoked.
func (m *MockStorage) SaveSnapshotCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSnapshotCalls
}

// SaveIVCalls returns how many times SaveIVReading was invoked.
func (m *MockStorage) SaveIVCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveIVCalls
}

// PruneCalls returns how many times Prune was invoked.
func (m *MockStorage) PruneCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneCalls
}

// SaveSnapshot stores a copy of the snapshot.
func (m *MockStorage) SaveSnapshot(_ context.Context, snap *models.ChainSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveSnapshotCalls++
	if m.saveSnapshotErr != nil {
		return m.saveSnapshotErr
	}
	if snap == nil || snap.ID == "" {
		return fmt.Errorf("%w: snapshot with a non-empty ID is required", models.ErrInvalidInput)
	}
	cp := *snap
	cp.Contracts = append([]models.OptionContract(nil), snap.Contracts...)
	m.snapshots = append(m.snapshots, &cp)
	return nil
}

// SnapshotByDTE returns the newest stored snapshot within the DTE window.
func (m *MockStorage) SnapshotByDTE(_ context.Context, symbol string, targetDTE, tolerance int) (*models.ChainSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tolerance < 0 {
		tolerance = 0
	}
	var best *models.ChainSnapshot
	for _, s := range m.snapshots {
		if s.Symbol != symbol || s.DTE < targetDTE-tolerance || s.DTE > targetDTE+tolerance {
			continue
		}
		if best == nil || s.AsOf.After(best.AsOf) {
			best = s
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no stored chain for %s near %d DTE", models.ErrNoData, symbol, targetDTE)
	}
	cp := *best
	cp.Contracts = append([]models.OptionContract(nil), best.Contracts...)
	return &cp, nil
}

// SaveIVReading stores one IV observation, replacing any with the same as_of.
func (m *MockStorage) SaveIVReading(_ context.Context, reading *models.IVReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveIVCalls++
	if m.saveIVErr != nil {
		return m.saveIVErr
	}
	if reading == nil || reading.Symbol == "" {
		return fmt.Errorf("%w: IV reading with a symbol is required", models.ErrInvalidInput)
	}
	rs := m.readings[reading.Symbol]
	for i, r := range rs {
		if r.AsOf.Equal(reading.AsOf) {
			rs[i] = *reading
			return nil
		}
	}
	m.readings[reading.Symbol] = append(rs, *reading)
	return nil
}

// IVHistory returns the symbol's readings within the lookback window,
// oldest first.
func (m *MockStorage) IVHistory(_ context.Context, symbol string, lookbackDays int) ([]models.IVReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().UTC().AddDate(0, 0, -lookbackDays)
	var out []models.IVReading
	for _, r := range m.readings[symbol] {
		if !r.AsOf.Before(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AsOf.Before(out[j].AsOf) })
	return out, nil
}

// IVRank places currentIV within the stored range over the lookback window.
func (m *MockStorage) IVRank(ctx context.Context, symbol string, currentIV float64, lookbackDays int) (float64, error) {
	history, err := m.IVHistory(ctx, symbol, lookbackDays)
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

// Prune drops snapshots older than retentionDays.
func (m *MockStorage) Prune(_ context.Context, retentionDays int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneCalls++
	if retentionDays <= 0 {
		return 0, fmt.Errorf("%w: retention_days must be positive", models.ErrInvalidInput)
	}
	cutoff := m.now().UTC().AddDate(0, 0, -retentionDays)
	kept := m.snapshots[:0]
	var removed int64
	for _, s := range m.snapshots {
		if s.AsOf.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.snapshots = kept
	return removed, nil
}

// Close is a no-op for the mock.
func (m *MockStorage) Close() error {
	return nil
}
