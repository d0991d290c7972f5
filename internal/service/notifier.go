package service

import (
	"github.com/ayo6706/coinwallet/internal/models"
	"go.uber.org/zap"
)

// Notifier receives fire-and-forget events after a mutation has committed.
// Implementations must not block and must never fail the operation; delivery
// is best-effort by contract.
type Notifier interface {
	TransactionApplied(tx *models.Transaction)
	WithdrawalChanged(wd *models.WithdrawalRequest)
}

// NopNotifier drops all events.
type NopNotifier struct{}

func (NopNotifier) TransactionApplied(*models.Transaction)      {}
func (NopNotifier) WithdrawalChanged(*models.WithdrawalRequest) {}

// LogNotifier records events on the global logger. It stands in for the
// push/email delivery pipeline, which is outside this service.
type LogNotifier struct{}

func (LogNotifier) TransactionApplied(tx *models.Transaction) {
	if tx == nil {
		return
	}
	zap.L().Info("transaction applied",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("type", tx.Type),
		zap.Int64("amount", tx.Amount),
	)
}

func (LogNotifier) WithdrawalChanged(wd *models.WithdrawalRequest) {
	if wd == nil {
		return
	}
	zap.L().Info("withdrawal state changed",
		zap.String("withdrawal_id", wd.ID.String()),
		zap.String("status", wd.Status),
		zap.Int64("amount", wd.Amount),
	)
}
