package refresh

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AustinnAI/volaris/internal/provider"
	"github.com/AustinnAI/volaris/internal/retry"
	"github.com/AustinnAI/volaris/internal/storage"
)

var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func quietLogrus() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testClient() *retry.Client {
	p := provider.NewMockProvider().WithClock(func() time.Time { return testNow })
	return retry.NewClient(p, log.New(io.Discard, "", 0))
}

func TestChainRefreshJobRun(t *testing.T) {
	store := storage.NewMockStorage()
	store.SetClock(func() time.Time { return testNow })
	job := NewChainRefreshJob(testClient(), store, quietLogrus(),
		[]string{"SPY", "QQQ"}, []int{7, 30}, 5, 30)
	job.now = func() time.Time { return testNow }

	if err := job.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Weekly expirations at 7..42 DTE: target 7 matches exactly, target 30
	// resolves to the 28-DTE expiration. Two snapshots per symbol.
	if got := store.SaveSnapshotCalls(); got != 4 {
		t.Errorf("Expected 4 saved snapshots, got %d", got)
	}
	if store.PruneCalls() != 1 {
		t.Errorf("Expected 1 prune call, got %d", store.PruneCalls())
	}

	snap, err := store.SnapshotByDTE(context.Background(), "SPY", 28, 0)
	if err != nil {
		t.Fatalf("Expected stored 28-DTE snapshot: %v", err)
	}
	if snap.Symbol != "SPY" || snap.ID == "" {
		t.Errorf("Stored snapshot malformed: %+v", snap)
	}
	if len(snap.Contracts) == 0 {
		t.Error("Expected stored snapshot to include contracts")
	}
}

func TestChainRefreshJobNoExpirationInTolerance(t *testing.T) {
	store := storage.NewMockStorage()
	job := NewChainRefreshJob(testClient(), store, quietLogrus(),
		[]string{"SPY"}, []int{3}, 2, 0)
	job.now = func() time.Time { return testNow }

	err := job.Run()
	if err == nil || !strings.Contains(err.Error(), "failed for all") {
		t.Errorf("Expected all-symbols failure, got %v", err)
	}
	if store.SaveSnapshotCalls() != 0 {
		t.Errorf("Expected no snapshots saved, got %d", store.SaveSnapshotCalls())
	}
}

func TestSelectExpirationsDedupe(t *testing.T) {
	job := NewChainRefreshJob(testClient(), storage.NewMockStorage(), quietLogrus(),
		nil, []int{7, 10}, 5, 0)
	job.now = func() time.Time { return testNow }

	expirations := []string{
		testNow.AddDate(0, 0, 7).Format("2006-01-02"),
		testNow.AddDate(0, 0, 14).Format("2006-01-02"),
	}
	// Both targets resolve to the 7-DTE expiration (distances 0 and 3).
	got := job.selectExpirations(expirations)
	if len(got) != 1 || got[0] != expirations[0] {
		t.Errorf("Expected single deduped expiration %s, got %v", expirations[0], got)
	}
}

func TestSelectExpirationsSkipsPast(t *testing.T) {
	job := NewChainRefreshJob(testClient(), storage.NewMockStorage(), quietLogrus(),
		nil, []int{7}, 7, 0)
	job.now = func() time.Time { return testNow }

	got := job.selectExpirations([]string{
		testNow.AddDate(0, 0, -3).Format("2006-01-02"),
		"not-a-date",
	})
	if len(got) != 0 {
		t.Errorf("Expected past and malformed expirations ignored, got %v", got)
	}
}

func TestIVRefreshJobRun(t *testing.T) {
	store := storage.NewMockStorage()
	store.SetClock(func() time.Time { return testNow })
	job := NewIVRefreshJob(testClient(), store, quietLogrus(), []string{"SPY", "QQQ"})
	job.now = func() time.Time { return testNow }

	if err := job.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if store.SaveIVCalls() != 2 {
		t.Errorf("Expected 2 IV readings saved, got %d", store.SaveIVCalls())
	}

	history, err := store.IVHistory(context.Background(), "SPY", 365)
	if err != nil {
		t.Fatalf("IVHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 reading for SPY, got %d", len(history))
	}
	if history[0].IV != 0.22 {
		t.Errorf("Expected default synthetic IV 0.22, got %.2f", history[0].IV)
	}
	if !history[0].AsOf.Equal(testNow) {
		t.Errorf("Expected AsOf %v, got %v", testNow, history[0].AsOf)
	}
}

func TestIVRefreshJobAllSavesFail(t *testing.T) {
	store := storage.NewMockStorage()
	store.SetSaveIVError(context.DeadlineExceeded)
	job := NewIVRefreshJob(testClient(), store, quietLogrus(), []string{"SPY"})
	job.now = func() time.Time { return testNow }

	err := job.Run()
	if err == nil || !strings.Contains(err.Error(), "failed for all") {
		t.Errorf("Expected all-symbols failure, got %v", err)
	}
}

type countingJob struct {
	runs int
}

func (c *countingJob) Run() error   { c.runs++; return nil }
func (c *countingJob) Name() string { return "counting" }

func TestSchedulerAddJobInvalidSchedule(t *testing.T) {
	s := NewScheduler(quietLogrus())
	if err := s.AddJob("not a schedule", &countingJob{}); err == nil {
		t.Error("Expected error for malformed cron expression")
	}
}

func TestSchedulerRunNow(t *testing.T) {
	s := NewScheduler(quietLogrus())
	job := &countingJob{}
	if err := s.RunNow(job); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if job.runs != 1 {
		t.Errorf("Expected 1 run, got %d", job.runs)
	}
}
