package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/coinwallet/internal/observability"
	"github.com/ayo6706/coinwallet/internal/service"
	"go.uber.org/zap"
)

// PayoutWorker drains approved withdrawal requests in the background: claim a
// batch, call the payout rail for each outside any lock, record the outcome.
// Safe to run as concurrent instances; claiming uses FOR UPDATE SKIP LOCKED.
type PayoutWorker struct {
	withdrawals  *service.WithdrawalService
	pollInterval time.Duration
	batchSize    int
	staleWindow  time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewPayoutWorker(withdrawals *service.WithdrawalService) *PayoutWorker {
	return &PayoutWorker{
		withdrawals:  withdrawals,
		pollInterval: 10 * time.Second,
		batchSize:    10,
		staleWindow:  10 * time.Minute,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets how often the worker polls for approved requests.
func (w *PayoutWorker) WithPollInterval(interval time.Duration) *PayoutWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize sets how many requests are claimed per poll.
func (w *PayoutWorker) WithBatchSize(size int) *PayoutWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// WithStaleWindow sets how long a request may sit in processing before it is
// requeued. Covers a worker dying mid-batch or a rail callback never landing.
func (w *PayoutWorker) WithStaleWindow(window time.Duration) *PayoutWorker {
	if window > 0 {
		w.staleWindow = window
	}
	return w
}

// Start blocks and polls until Stop is called or the context is canceled.
func (w *PayoutWorker) Start(ctx context.Context) {
	zap.L().Info("payout worker starting",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int("batch_size", w.batchSize),
	)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("payout worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("payout worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *PayoutWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *PayoutWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce runs a single claim-and-send cycle immediately.
func (w *PayoutWorker) ProcessOnce(ctx context.Context) error {
	_, err := w.withdrawals.ProcessApproved(ctx, w.batchSize)
	return err
}

func (w *PayoutWorker) runOnce(ctx context.Context) {
	if requeued, err := w.withdrawals.RequeueStale(ctx, time.Now().Add(-w.staleWindow)); err != nil {
		zap.L().Error("requeue stale withdrawals failed", zap.Error(err))
	} else if requeued > 0 {
		zap.L().Info("requeued stale withdrawals", zap.Int("count", requeued))
	}

	handled, err := w.withdrawals.ProcessApproved(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("payout", "failed")
		zap.L().Error("payout batch failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("payout", "success")
	if handled > 0 {
		zap.L().Info("payout batch handled", zap.Int("count", handled))
	}
}

// String describes the worker configuration.
func (w *PayoutWorker) String() string {
	return fmt.Sprintf("PayoutWorker(interval=%v, batch=%d)", w.pollInterval, w.batchSize)
}
