package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/coinwallet/internal/observability"
	"github.com/ayo6706/coinwallet/internal/service"
	"go.uber.org/zap"
)

// ConservationWorker periodically sweeps the ledger totals and reports any
// conservation violation.
type ConservationWorker struct {
	svc      *service.ConservationService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewConservationWorker(svc *service.ConservationService) *ConservationWorker {
	return &ConservationWorker{
		svc:      svc,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *ConservationWorker) WithInterval(interval time.Duration) *ConservationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and sweeps at the configured interval, once immediately on
// startup.
func (w *ConservationWorker) Start(ctx context.Context) {
	zap.L().Info("conservation worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("conservation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("conservation worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ConservationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ConservationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ConservationWorker) runOnce(ctx context.Context) {
	balanced, err := w.svc.Check(ctx)
	if err != nil {
		observability.IncrementWorkerRun("conservation", "failed")
		zap.L().Error("conservation sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("conservation", "success")
	if !balanced {
		zap.L().Error("conservation sweep found drift")
	}
}
