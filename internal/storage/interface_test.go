package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/AustinnAI/volaris/internal/models"
)

// TestInterface exercises the common contract with both implementations.
func TestInterface(t *testing.T) {
	t.Run("MockStorage", func(t *testing.T) {
		testInterface(t, NewMockStorage())
	})

	t.Run("SQLiteStorage", func(t *testing.T) {
		s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "contract_test.db"))
		if err != nil {
			t.Fatalf("Failed to create SQLite storage: %v", err)
		}
		defer func() {
			if err := s.Close(); err != nil {
				t.Errorf("Close returned error: %v", err)
			}
		}()
		testInterface(t, s)
	})
}

// testInterface runs common tests on any storage implementation.
func testInterface(t *testing.T, storage Interface) {
	ctx := context.Background()
	// Relative to now so the pruning check below stays valid.
	asOf := time.Now().UTC().Add(-time.Hour)

	// Empty store reports no data.
	if _, err := storage.SnapshotByDTE(ctx, "SPY", 30, 5); !errors.Is(err, models.ErrNoData) {
		t.Errorf("Expected ErrNoData from empty store, got %v", err)
	}

	delta := -0.32
	snap := &models.ChainSnapshot{
		ID:              "contract-snap",
		Symbol:          "SPY",
		Expiration:      "2025-07-02",
		DTE:             30,
		UnderlyingPrice: 450,
		AsOf:            asOf,
		Contracts: []models.OptionContract{
			{Strike: 440, OptionType: models.OptionTypePut, Bid: 1.90, Ask: 2.10, Mark: 2.00, Delta: &delta, Volume: 600, OpenInterest: 2500},
		},
	}
	if err := storage.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := storage.SnapshotByDTE(ctx, "SPY", 30, 0)
	if err != nil {
		t.Fatalf("SnapshotByDTE failed: %v", err)
	}
	if got.ID != snap.ID || len(got.Contracts) != 1 {
		t.Errorf("Round trip mismatch: %+v", got)
	}
	if got.Contracts[0].Delta == nil || *got.Contracts[0].Delta != -0.32 {
		t.Errorf("Expected delta -0.32, got %v", got.Contracts[0].Delta)
	}

	// Returned snapshots are copies; mutating one must not corrupt the store.
	got.Contracts[0].Mark = 99
	again, err := storage.SnapshotByDTE(ctx, "SPY", 30, 0)
	if err != nil {
		t.Fatalf("SnapshotByDTE failed: %v", err)
	}
	if again.Contracts[0].Mark != 2.00 {
		t.Errorf("Stored snapshot mutated through returned copy: mark %.2f", again.Contracts[0].Mark)
	}

	// IV round trip and rank.
	for i, iv := range []float64{0.18, 0.30} {
		r := models.IVReading{Symbol: "SPY", AsOf: asOf.AddDate(0, 0, -(i + 1)), IV: iv}
		if err := storage.SaveIVReading(ctx, &r); err != nil {
			t.Fatalf("SaveIVReading failed: %v", err)
		}
	}
	history, err := storage.IVHistory(ctx, "SPY", 365)
	if err != nil {
		t.Fatalf("IVHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(history))
	}
	rank, err := storage.IVRank(ctx, "SPY", 0.30, 365)
	if err != nil {
		t.Fatalf("IVRank failed: %v", err)
	}
	if rank != 100.0 {
		t.Errorf("Expected rank 100 at the top of the range, got %.2f", rank)
	}

	// Recent data survives pruning.
	if _, err := storage.Prune(ctx, 365); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if _, err := storage.SnapshotByDTE(ctx, "SPY", 30, 0); err != nil {
		t.Errorf("Expected snapshot to survive pruning: %v", err)
	}
}

func TestMockStorageErrorInjection(t *testing.T) {
	m := NewMockStorage()
	ctx := context.Background()

	injected := errors.New("disk full")
	m.SetSaveSnapshotError(injected)
	err := m.SaveSnapshot(ctx, &models.ChainSnapshot{ID: "x", Symbol: "SPY"})
	if !errors.Is(err, injected) {
		t.Errorf("Expected injected error, got %v", err)
	}
	if m.SaveSnapshotCalls() != 1 {
		t.Errorf("Expected 1 SaveSnapshot call, got %d", m.SaveSnapshotCalls())
	}

	m.SetSaveIVError(injected)
	err = m.SaveIVReading(ctx, &models.IVReading{Symbol: "SPY"})
	if !errors.Is(err, injected) {
		t.Errorf("Expected injected error, got %v", err)
	}
	if m.SaveIVCalls() != 1 {
		t.Errorf("Expected 1 SaveIVReading call, got %d", m.SaveIVCalls())
	}
}
