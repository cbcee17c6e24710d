package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultReconcileInterval is the sweep period when none is configured.
const DefaultReconcileInterval = time.Minute

const staleBatchSize = 100

// Reconciler periodically force-closes sessions whose activity went stale
// past twice the inactivity timeout. It works from the store alone, which
// makes it the recovery path for sessions orphaned by a restart, a lost
// timer or a dead telemetry stream.
type Reconciler struct {
	coordinator *Coordinator
	sessions    SessionStore
	interval    time.Duration
	threshold   time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewReconciler returns reconciler. The stale threshold is twice the
// coordinator's inactivity timeout, wide enough to tolerate one missed timer
// cycle.
func NewReconciler(coordinator *Coordinator, sessions SessionStore, interval time.Duration, logger *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		coordinator: coordinator,
		sessions:    sessions,
		interval:    interval,
		threshold:   2 * coordinator.inactivityTimeout,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately and then on every tick until the context ends.
func (r *Reconciler) Run(ctx context.Context) {
	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep force-closes every stale session it can find. Item failures are
// reported and skipped so one bad row never aborts the rest.
func (r *Reconciler) Sweep(ctx context.Context) {
	cutoff := r.now().Add(-r.threshold)
	stale, err := r.sessions.FindStale(ctx, cutoff, staleBatchSize)
	if err != nil {
		r.logger.Error("stale session scan failed", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	r.logger.Info("reconciling stale sessions", zap.Int("count", len(stale)))
	for _, s := range stale {
		if ctx.Err() != nil {
			return
		}
		if err := r.coordinator.ReconcileStale(ctx, s, r.threshold); err != nil {
			r.logger.Error("failed to reconcile stale session",
				zap.String("session_id", s.ID),
				zap.Error(err),
			)
		}
	}
}
