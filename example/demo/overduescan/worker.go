// Package overduescan runs the periodic overdue sweep for the demo service.
// The sweep is read-only: it derives status from the ledger and reports what
// it finds, it never mutates loans.
package overduescan

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkleindienst/library-lending-go/lending"
)

// Worker periodically scans for overdue loans and logs a summary.
type Worker struct {
	engine   *lending.Engine
	clock    lending.Clock
	interval time.Duration
	logger   *slog.Logger
}

// New creates a worker scanning at the given interval.
func New(engine *lending.Engine, clock lending.Clock, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		engine:   engine,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Run scans once immediately and then on every tick until the context is
// canceled.
func (w *Worker) Run(ctx context.Context) {
	w.scanOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scanOnce(ctx)
		}
	}
}

func (w *Worker) scanOnce(ctx context.Context) {
	now := w.clock.Now()
	count := 0

	for loan, scanErr := range w.engine.ScanOverdue(ctx, now) {
		if scanErr != nil {
			w.logger.ErrorContext(ctx, "overdue scan failed", "error", scanErr)
			return
		}

		count++
		w.logger.DebugContext(ctx, "overdue loan",
			"loan_id", loan.ID,
			"member_id", loan.MemberID,
			"title_id", loan.TitleID,
			"due_at", loan.DueAt,
			"days_overdue", loan.DaysOverdue(now),
		)
	}

	w.logger.InfoContext(ctx, "overdue scan completed", "overdue_count", count)
}
