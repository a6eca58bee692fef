package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler runs one reconciliation sweep
type Reconciler interface {
	ReconcileBeds(ctx context.Context) (*ReconcileResult, error)
}

// ReconcileScheduler runs the reconciliation sweep on a fixed interval
type ReconcileScheduler struct {
	reconciler Reconciler
	interval   time.Duration
	logger     zerolog.Logger
	stop       chan struct{}
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewReconcileScheduler creates a scheduler. It does nothing until Start.
func NewReconcileScheduler(reconciler Reconciler, interval time.Duration, logger zerolog.Logger) *ReconcileScheduler {
	return &ReconcileScheduler{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger.With().Str("component", "reconcile_scheduler").Logger(),
		stop:       make(chan struct{}),
	}
}

// Start launches the periodic sweep. A non-positive interval disables it.
func (s *ReconcileScheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("periodic reconciliation disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info().Dur("interval", s.interval).Msg("periodic reconciliation started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

func (s *ReconcileScheduler) runOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	result, err := s.reconciler.ReconcileBeds(sweepCtx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled reconciliation failed")
	}
	if result == nil {
		return
	}
	if result.RepairedCount > 0 || len(result.OrphanAdmissionIDs) > 0 {
		s.logger.Warn().
			Int("repaired", result.RepairedCount).
			Int("orphan_admissions", len(result.OrphanAdmissionIDs)).
			Msg("scheduled reconciliation repaired inconsistencies")
	}
}

// Stop halts the sweep and waits for a running one to finish
func (s *ReconcileScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}
