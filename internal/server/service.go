package server

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AustinnAI/volaris/internal/chains"
	"github.com/AustinnAI/volaris/internal/config"
	"github.com/AustinnAI/volaris/internal/models"
	"github.com/AustinnAI/volaris/internal/provider"
	"github.com/AustinnAI/volaris/internal/recommend"
	"github.com/AustinnAI/volaris/internal/retry"
	"github.com/AustinnAI/volaris/internal/storage"
)

// ivLookbackDays is the rank window: one year of stored readings.
const ivLookbackDays = 365

// Service resolves the data a recommendation needs - chain snapshot and IV
// rank - and invokes the pure analysis core. Stored snapshots are preferred;
// a live fetch fills the gap when storage has nothing near the target DTE.
type Service struct {
	store        storage.Interface
	client       *retry.Client
	analysis     config.AnalysisConfig
	dteTolerance int
	logger       *logrus.Logger
	now          func() time.Time
}

// NewService wires the recommendation service.
func NewService(store storage.Interface, client *retry.Client, analysis config.AnalysisConfig,
	dteTolerance int, logger *logrus.Logger) *Service {
	return &Service{
		store:        store,
		client:       client,
		analysis:     analysis,
		dteTolerance: dteTolerance,
		logger:       logger,
		now:          time.Now,
	}
}

// Recommend resolves market data for the request and runs the analysis core.
// A missing chain or IV history degrades to warnings in the result, never an
// error; only malformed requests fail.
func (s *Service) Recommend(ctx context.Context, req recommend.Request, dteTolerance *int) (*recommend.Result, error) {
	tolerance := s.dteTolerance
	if dteTolerance != nil {
		tolerance = *dteTolerance
	}

	// Malformed requests fail before any data access.
	if req.DTE <= 0 {
		return recommend.Recommend(nil, req, s.recommendConfig())
	}

	snapshot := s.resolveSnapshot(ctx, req.Symbol, req.DTE, tolerance)
	if req.IVRank == nil {
		if rank, ok := s.ivRank(ctx, req.Symbol); ok {
			req.IVRank = &rank
		}
	}
	if snapshot != nil {
		// Analysis runs against the snapshot actually found, which may
		// sit a few days off the requested DTE.
		req.DTE = snapshot.DTE
	}

	return recommend.Recommend(snapshot, req, s.recommendConfig())
}

// resolveSnapshot prefers storage and falls back to a live fetch. Returns nil
// when no chain can be found; the core reports that as a warning.
func (s *Service) resolveSnapshot(ctx context.Context, symbol string, targetDTE, tolerance int) *models.ChainSnapshot {
	snap, err := s.store.SnapshotByDTE(ctx, symbol, targetDTE, tolerance)
	if err == nil {
		return snap
	}
	if !errors.Is(err, models.ErrNoData) {
		s.logger.WithError(err).WithField("symbol", symbol).Warn("Snapshot lookup failed")
	}

	snap = s.fetchSnapshot(ctx, symbol, targetDTE, tolerance)
	if snap != nil {
		if err := s.store.SaveSnapshot(ctx, snap); err != nil {
			s.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to cache fetched snapshot")
		}
	}
	return snap
}

func (s *Service) fetchSnapshot(ctx context.Context, symbol string, targetDTE, tolerance int) *models.ChainSnapshot {
	expirations, err := s.client.FetchExpirations(ctx, symbol)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", symbol).Warn("Expiration fetch failed")
		return nil
	}

	expiration := closestExpiration(expirations, s.now(), targetDTE, tolerance)
	if expiration == "" {
		return nil
	}

	res, err := s.client.FetchChainSnapshot(ctx, symbol, expiration)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"symbol":     symbol,
			"expiration": expiration,
		}).Warn("Chain fetch failed")
		return nil
	}
	return res.Snapshot
}

// closestExpiration picks the listed expiration nearest targetDTE within the
// tolerance window, or "" when none qualifies.
func closestExpiration(expirations []string, now time.Time, targetDTE, tolerance int) string {
	best := ""
	bestDist := tolerance + 1
	for _, e := range expirations {
		dte, err := provider.DaysUntil(now, e)
		if err != nil || dte <= 0 {
			continue
		}
		dist := dte - targetDTE
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = e, dist
		}
	}
	return best
}

// ivRank derives the symbol's current IV rank from stored history. Any
// failure along the way means "no rank", which the core reports as a warning.
func (s *Service) ivRank(ctx context.Context, symbol string) (float64, bool) {
	iv, err := s.client.FetchImpliedVolatility(ctx, symbol)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", symbol).Debug("IV fetch failed")
		return 0, false
	}
	rank, err := s.store.IVRank(ctx, symbol, iv, ivLookbackDays)
	if err != nil {
		if !errors.Is(err, models.ErrNoData) {
			s.logger.WithError(err).WithField("symbol", symbol).Warn("IV rank derivation failed")
		}
		return 0, false
	}
	return rank, true
}

// recommendConfig maps the yaml analysis knobs onto the core's config.
func (s *Service) recommendConfig() recommend.Config {
	cfg := recommend.DefaultConfig()
	a := s.analysis

	cfg.IVHighThreshold = a.IVHighThreshold
	cfg.IVLowThreshold = a.IVLowThreshold
	cfg.DefaultRiskPct = a.DefaultRiskPct
	cfg.MaxRanked = a.MaxRanked
	cfg.Strike = chains.Params{
		ATMBandPct:        a.ATMBandPct,
		WidthLowPrice:     a.WidthLowPrice,
		WidthMidPrice:     a.WidthMidPrice,
		WidthHighPrice:    a.WidthHighPrice,
		WidthTolerancePct: a.WidthTolerancePct,
		MinOpenInterest:   a.MinOpenInterest,
		MinVolume:         a.MinVolume,
		MinMarkPrice:      a.MinMarkPrice,
		MinCreditPct:      a.MinCreditPct,
	}
	return cfg
}
