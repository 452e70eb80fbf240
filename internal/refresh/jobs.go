package refresh

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/AustinnAI/volaris/internal/models"
	"github.com/AustinnAI/volaris/internal/provider"
	"github.com/AustinnAI/volaris/internal/retry"
	"github.com/AustinnAI/volaris/internal/storage"
)

const (
	// jobTimeout bounds a single scheduled run across the whole watchlist.
	jobTimeout = 5 * time.Minute
	// maxConcurrentSymbols caps provider fan-out per run.
	maxConcurrentSymbols = 4
)

// ChainRefreshJob captures option-chain snapshots for every watchlist symbol
// at the expirations closest to the configured target DTEs, then prunes
// stored data past the retention window.
type ChainRefreshJob struct {
	client        *retry.Client
	store         storage.Interface
	logger        *logrus.Logger
	watchlist     []string
	targetDTEs    []int
	dteTolerance  int
	retentionDays int
	now           func() time.Time
}

// NewChainRefreshJob wires a chain-refresh job.
func NewChainRefreshJob(client *retry.Client, store storage.Interface, logger *logrus.Logger,
	watchlist []string, targetDTEs []int, dteTolerance, retentionDays int) *ChainRefreshJob {
	return &ChainRefreshJob{
		client:        client,
		store:         store,
		logger:        logger,
		watchlist:     watchlist,
		targetDTEs:    targetDTEs,
		dteTolerance:  dteTolerance,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Name identifies the job in scheduler logs.
func (j *ChainRefreshJob) Name() string { return "chain_refresh" }

// Run refreshes every watchlist symbol. Individual symbol failures are
// logged and skipped; the run only fails when no symbol succeeds.
func (j *ChainRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	var succeeded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSymbols)
	for _, symbol := range j.watchlist {
		symbol := symbol
		g.Go(func() error {
			if err := j.refreshSymbol(gctx, symbol); err != nil {
				j.logger.WithError(err).WithField("symbol", symbol).Warn("Chain refresh failed for symbol")
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(j.watchlist) > 0 && succeeded.Load() == 0 {
		return fmt.Errorf("chain refresh failed for all %d watchlist symbols", len(j.watchlist))
	}

	if j.retentionDays > 0 {
		removed, err := j.store.Prune(ctx, j.retentionDays)
		if err != nil {
			j.logger.WithError(err).Warn("Failed to prune stored snapshots")
		} else if removed > 0 {
			j.logger.WithField("removed", removed).Info("Pruned stale snapshots")
		}
	}
	return nil
}

func (j *ChainRefreshJob) refreshSymbol(ctx context.Context, symbol string) error {
	expirations, err := j.client.FetchExpirations(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetching expirations: %w", err)
	}

	targets := j.selectExpirations(expirations)
	if len(targets) == 0 {
		return fmt.Errorf("%w: no expiration within %d days of targets %v",
			models.ErrNoData, j.dteTolerance, j.targetDTEs)
	}

	var saved int
	for _, expiration := range targets {
		res, err := j.client.FetchChainSnapshot(ctx, symbol, expiration)
		if err != nil {
			j.logger.WithError(err).WithFields(logrus.Fields{
				"symbol":     symbol,
				"expiration": expiration,
			}).Warn("Failed to fetch chain")
			continue
		}
		if err := j.store.SaveSnapshot(ctx, res.Snapshot); err != nil {
			return fmt.Errorf("saving snapshot for %s %s: %w", symbol, expiration, err)
		}
		saved++
	}
	if saved == 0 {
		return fmt.Errorf("%w: no chains captured for %s", models.ErrNoData, symbol)
	}

	j.logger.WithFields(logrus.Fields{
		"symbol":    symbol,
		"snapshots": saved,
	}).Info("Chain refresh complete")
	return nil
}

// selectExpirations picks, for each target DTE, the listed expiration whose
// DTE is closest within the tolerance. Duplicates collapse when neighboring
// targets resolve to the same expiration.
func (j *ChainRefreshJob) selectExpirations(expirations []string) []string {
	now := j.now()
	type listed struct {
		date string
		dte  int
	}
	candidates := make([]listed, 0, len(expirations))
	for _, e := range expirations {
		dte, err := provider.DaysUntil(now, e)
		if err != nil || dte <= 0 {
			continue
		}
		candidates = append(candidates, listed{date: e, dte: dte})
	}

	seen := make(map[string]bool)
	var out []string
	for _, target := range j.targetDTEs {
		best := ""
		bestDist := j.dteTolerance + 1
		for _, c := range candidates {
			dist := c.dte - target
			if dist < 0 {
				dist = -dist
			}
			if dist < bestDist {
				best, bestDist = c.date, dist
			}
		}
		if best != "" && !seen[best] {
			seen[best] = true
			out = append(out, best)
		}
	}
	return out
}

// IVRefreshJob samples each watchlist symbol's implied volatility and appends
// it to the stored history used for rank derivation.
type IVRefreshJob struct {
	client    *retry.Client
	store     storage.Interface
	logger    *logrus.Logger
	watchlist []string
	now       func() time.Time
}

// NewIVRefreshJob wires an IV-sampling job.
func NewIVRefreshJob(client *retry.Client, store storage.Interface, logger *logrus.Logger, watchlist []string) *IVRefreshJob {
	return &IVRefreshJob{
		client:    client,
		store:     store,
		logger:    logger,
		watchlist: watchlist,
		now:       time.Now,
	}
}

// Name identifies the job in scheduler logs.
func (j *IVRefreshJob) Name() string { return "iv_refresh" }

// Run samples IV for every watchlist symbol. Individual symbol failures are
// logged and skipped; the run only fails when no symbol succeeds.
func (j *IVRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	var succeeded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSymbols)
	for _, symbol := range j.watchlist {
		symbol := symbol
		g.Go(func() error {
			iv, err := j.client.FetchImpliedVolatility(gctx, symbol)
			if err != nil {
				j.logger.WithError(err).WithField("symbol", symbol).Warn("IV fetch failed")
				return nil
			}
			reading := &models.IVReading{
				Symbol: symbol,
				AsOf:   j.now().UTC(),
				IV:     iv,
			}
			if err := j.store.SaveIVReading(gctx, reading); err != nil {
				j.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to save IV reading")
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(j.watchlist) > 0 && succeeded.Load() == 0 {
		return fmt.Errorf("IV refresh failed for all %d watchlist symbols", len(j.watchlist))
	}
	j.logger.WithField("symbols", succeeded.Load()).Info("IV refresh complete")
	return nil
}
