package calendar

import (
	"context"
	"time"

	"github.com/brightkind/clinic-platform/internal/observability/metrics"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Refresher force-refreshes one connection's token set.
type Refresher interface {
	Refresh(ctx context.Context, conn *Connection) error
}

// TokenRefreshWorker periodically refreshes OAuth tokens before they expire,
// so in-request syncs rarely pay the refresh round trip.
type TokenRefreshWorker struct {
	conns         ConnectionRepository
	refresher     Refresher
	logger        *logging.Logger
	metrics       *metrics.SyncMetrics
	interval      time.Duration
	refreshBefore time.Duration
}

// NewTokenRefreshWorker creates a worker with default timings.
func NewTokenRefreshWorker(conns ConnectionRepository, refresher Refresher, logger *logging.Logger, m *metrics.SyncMetrics) *TokenRefreshWorker {
	if logger == nil {
		logger = logging.Default()
	}
	return &TokenRefreshWorker{
		conns:         conns,
		refresher:     refresher,
		logger:        logger,
		metrics:       m,
		interval:      30 * time.Minute,
		refreshBefore: 10 * time.Minute,
	}
}

// WithInterval sets the check interval.
func (w *TokenRefreshWorker) WithInterval(d time.Duration) *TokenRefreshWorker {
	w.interval = d
	return w
}

// WithRefreshBefore sets how long before expiry to refresh.
func (w *TokenRefreshWorker) WithRefreshBefore(d time.Duration) *TokenRefreshWorker {
	w.refreshBefore = d
	return w
}

// Start runs the refresh loop. Blocks until the context is cancelled.
func (w *TokenRefreshWorker) Start(ctx context.Context) {
	w.logger.Info("starting calendar token refresh worker",
		"interval", w.interval.String(),
		"refresh_before", w.refreshBefore.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.refreshExpiring(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("token refresh worker shutting down")
			return
		case <-ticker.C:
			w.refreshExpiring(ctx)
		}
	}
}

func (w *TokenRefreshWorker) refreshExpiring(ctx context.Context) {
	conns, err := w.conns.List(ctx)
	if err != nil {
		w.logger.Error("token refresh worker could not list connections", "error", err)
		return
	}

	cutoff := time.Now().Add(w.refreshBefore)
	for i := range conns {
		conn := conns[i]
		if conn.TokenExpiry.After(cutoff) {
			continue
		}
		if err := w.refresher.Refresh(ctx, &conn); err != nil {
			w.metrics.ObserveTokenRefresh("error")
			w.logger.Warn("token refresh failed", "user_id", conn.UserID, "error", err)
			continue
		}
		w.metrics.ObserveTokenRefresh("ok")
		w.logger.Info("token refreshed", "user_id", conn.UserID, "new_expiry", conn.TokenExpiry)
	}
}
