package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/gateway"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/observability"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var withdrawalTransitions = map[string]map[string]struct{}{
	domain.WithdrawalPending: {
		domain.WithdrawalApproved: {},
		domain.WithdrawalFailed:   {},
	},
	domain.WithdrawalApproved: {
		domain.WithdrawalProcessing: {},
		domain.WithdrawalFailed:     {},
	},
	domain.WithdrawalProcessing: {
		domain.WithdrawalApproved: {}, // stale-claim requeue
		domain.WithdrawalSuccess:  {},
		domain.WithdrawalFailed:   {},
	},
	domain.WithdrawalSuccess: {},
	domain.WithdrawalFailed:  {},
}

func withdrawalCanTransition(current, next string) bool {
	nextStates, ok := withdrawalTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// WithdrawalService runs the reservation-and-settlement workflow. The
// reservation debit is synchronous and lock-scoped; the payout rail is only
// ever called after locks are released.
type WithdrawalService struct {
	store      store.Store
	rail       gateway.PayoutRail
	notifier   Notifier
	validate   *validator.Validate
	minimum    int64
	payoutRate decimal.Decimal // fiat per coin
	currency   string
}

func NewWithdrawalService(st store.Store, rail gateway.PayoutRail, notifier Notifier, minimum int64, payoutRate decimal.Decimal, currency string) *WithdrawalService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &WithdrawalService{
		store:      st,
		rail:       rail,
		notifier:   notifier,
		validate:   validator.New(),
		minimum:    minimum,
		payoutRate: payoutRate,
		currency:   currency,
	}
}

// Request reserves the amount and files the withdrawal in one atomic unit.
// The amount leaves the spendable balance immediately so the user cannot
// transfer or withdraw against coins already earmarked.
func (s *WithdrawalService) Request(ctx context.Context, accountID uuid.UUID, amount int64, bank models.BankDetails, key string) (*models.WithdrawalRequest, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", models.ErrValidation)
	}
	if amount < s.minimum {
		return nil, models.ErrWithdrawalBelowMinimum
	}
	if err := s.validate.Struct(bank); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err)
	}

	var result *models.WithdrawalRequest
	err := s.store.RunInTx(ctx, []uuid.UUID{accountID}, func(tx store.Tx) error {
		prior, err := tx.WithdrawalByKey(ctx, key)
		if err == nil {
			if prior.AccountID != accountID || prior.Amount != amount {
				return models.ErrIdempotencyMismatch
			}
			result = prior
			return nil
		}
		if !errors.Is(err, models.ErrWithdrawalNotFound) {
			return err
		}

		a, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if err := gateOutgoing(a); err != nil {
			return err
		}

		reserve, err := debitInTx(ctx, tx, accountID, amount, domain.TxTypeWithdrawalReserve, "withdrawal reservation", "wdreserve:"+key)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		result = &models.WithdrawalRequest{
			ID:             uuid.New(),
			AccountID:      accountID,
			Amount:         amount,
			BankDetails:    bank,
			Status:         domain.WithdrawalPending,
			IdempotencyKey: key,
			ReserveTxID:    reserve.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.InsertWithdrawal(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementWithdrawalTransition(domain.WithdrawalPending)
	s.notifier.WithdrawalChanged(result)
	return result, nil
}

// Approve moves a pending request to approved. No balance changes; the payout
// worker picks the request up from here.
func (s *WithdrawalService) Approve(ctx context.Context, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error) {
	wd, err := s.transition(ctx, withdrawalID, domain.WithdrawalApproved, "", "")
	if err != nil {
		return nil, err
	}
	s.notifier.WithdrawalChanged(wd)
	return wd, nil
}

// Cancel is permitted only before processing begins. It releases the hold
// back to the account and marks the request failed with reason "cancelled".
func (s *WithdrawalService) Cancel(ctx context.Context, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error) {
	wd, err := s.store.Withdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}

	var result *models.WithdrawalRequest
	err = s.store.RunInTx(ctx, []uuid.UUID{wd.AccountID}, func(tx store.Tx) error {
		locked, err := tx.WithdrawalForUpdate(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if locked.Status != domain.WithdrawalPending && locked.Status != domain.WithdrawalApproved {
			return models.ErrInvalidWithdrawal
		}
		if err := s.releaseHold(ctx, tx, locked); err != nil {
			return err
		}
		locked.Status = domain.WithdrawalFailed
		locked.Reason = "cancelled"
		locked.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateWithdrawal(ctx, locked); err != nil {
			return err
		}
		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementWithdrawalTransition(domain.WithdrawalFailed)
	s.notifier.WithdrawalChanged(result)
	return result, nil
}

// Withdrawal returns one request.
func (s *WithdrawalService) Withdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return s.store.Withdrawal(ctx, id)
}

// ListForAccount lists an account's requests, newest first.
func (s *WithdrawalService) ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListWithdrawalsByAccount(ctx, accountID, limit, offset)
}

// ProcessApproved claims a batch of approved requests, calls the payout rail
// for each outside any lock, and records the outcome. Returns the number of
// requests handled.
func (s *WithdrawalService) ProcessApproved(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	var claimed []models.WithdrawalRequest
	err := s.store.RunInTx(ctx, nil, func(tx store.Tx) error {
		batch, err := tx.ListWithdrawalsByStatus(ctx, domain.WithdrawalApproved, batchSize)
		if err != nil {
			return err
		}
		for i := range batch {
			batch[i].Status = domain.WithdrawalProcessing
			batch[i].UpdatedAt = time.Now().UTC()
			if err := tx.UpdateWithdrawal(ctx, &batch[i]); err != nil {
				return err
			}
		}
		claimed = batch
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("claim approved withdrawals: %w", err)
	}

	for i := range claimed {
		s.sendAndSettle(ctx, &claimed[i])
	}
	return len(claimed), nil
}

func (s *WithdrawalService) sendAndSettle(ctx context.Context, wd *models.WithdrawalRequest) {
	payoutID, err := s.rail.SendPayout(ctx, gateway.PayoutInstruction{
		WithdrawalID:  wd.ID.String(),
		Amount:        decimal.NewFromInt(wd.Amount).Mul(s.payoutRate),
		Currency:      s.currency,
		AccountName:   wd.BankDetails.AccountName,
		AccountNumber: wd.BankDetails.AccountNumber,
		IFSC:          wd.BankDetails.IFSC,
		BankName:      wd.BankDetails.BankName,
	})
	if err != nil {
		zap.L().Warn("payout rail call failed",
			zap.String("withdrawal_id", wd.ID.String()),
			zap.Error(err),
		)
		if ferr := s.Fail(ctx, wd.ID, "payout rail error: "+err.Error()); ferr != nil {
			zap.L().Error("record payout failure", zap.Error(ferr), zap.String("withdrawal_id", wd.ID.String()))
		}
		return
	}
	if serr := s.Settle(ctx, wd.ID, payoutID); serr != nil {
		zap.L().Error("record payout success",
			zap.Error(serr),
			zap.String("withdrawal_id", wd.ID.String()),
			zap.String("payout_id", payoutID),
		)
	}
}

// Settle marks a processing request successful. The reserved amount has left
// the system; a withdrawal_settle record is written so the ledger still
// accounts for it. Safe to call more than once.
func (s *WithdrawalService) Settle(ctx context.Context, withdrawalID uuid.UUID, payoutID string) error {
	wd, err := s.store.Withdrawal(ctx, withdrawalID)
	if err != nil {
		return err
	}

	var changed *models.WithdrawalRequest
	err = s.store.RunInTx(ctx, []uuid.UUID{wd.AccountID}, func(tx store.Tx) error {
		locked, err := tx.WithdrawalForUpdate(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if locked.Status == domain.WithdrawalSuccess {
			return nil
		}
		if !withdrawalCanTransition(locked.Status, domain.WithdrawalSuccess) {
			return fmt.Errorf("%w: cannot settle withdrawal in state %q", models.ErrInvalidWithdrawal, locked.Status)
		}
		note := fmt.Sprintf("withdrawal %s settled via payout %s", locked.ID, payoutID)
		if _, err := recordSettlement(ctx, tx, locked.Amount, note, "wdsettle:"+locked.ID.String()); err != nil {
			return err
		}
		locked.Status = domain.WithdrawalSuccess
		locked.PayoutID = payoutID
		locked.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateWithdrawal(ctx, locked); err != nil {
			return err
		}
		changed = locked
		return nil
	})
	if err != nil {
		return err
	}
	if changed != nil {
		observability.IncrementWithdrawalTransition(domain.WithdrawalSuccess)
		s.notifier.WithdrawalChanged(changed)
	}
	return nil
}

// Fail marks a request failed and releases the hold back to the account.
// Safe to call more than once.
func (s *WithdrawalService) Fail(ctx context.Context, withdrawalID uuid.UUID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: failure reason is required", models.ErrValidation)
	}
	wd, err := s.store.Withdrawal(ctx, withdrawalID)
	if err != nil {
		return err
	}

	var changed *models.WithdrawalRequest
	err = s.store.RunInTx(ctx, []uuid.UUID{wd.AccountID}, func(tx store.Tx) error {
		locked, err := tx.WithdrawalForUpdate(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if locked.Status == domain.WithdrawalFailed {
			return nil
		}
		if !withdrawalCanTransition(locked.Status, domain.WithdrawalFailed) {
			return fmt.Errorf("%w: cannot fail withdrawal in state %q", models.ErrInvalidWithdrawal, locked.Status)
		}
		if err := s.releaseHold(ctx, tx, locked); err != nil {
			return err
		}
		locked.Status = domain.WithdrawalFailed
		locked.Reason = strings.TrimSpace(reason)
		locked.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateWithdrawal(ctx, locked); err != nil {
			return err
		}
		changed = locked
		return nil
	})
	if err != nil {
		return err
	}
	if changed != nil {
		observability.IncrementWithdrawalTransition(domain.WithdrawalFailed)
		s.notifier.WithdrawalChanged(changed)
	}
	return nil
}

// HandlePayoutResult consumes a verified rail callback. Redelivered callbacks
// replay against terminal states and keyed release/settle records.
func (s *WithdrawalService) HandlePayoutResult(ctx context.Context, withdrawalID uuid.UUID, success bool, payoutID, reason string) error {
	if success {
		return s.Settle(ctx, withdrawalID, payoutID)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "payout failed"
	}
	return s.Fail(ctx, withdrawalID, reason)
}

// RequeueStale returns processing requests older than cutoff to approved so
// the worker retries them. Covers the rail callback never arriving; the rail
// dedupes on the withdrawal id.
func (s *WithdrawalService) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := s.store.RunInTx(ctx, nil, func(tx store.Tx) error {
		stale, err := tx.ListProcessingWithdrawalsBefore(ctx, cutoff, 100)
		if err != nil {
			return err
		}
		for i := range stale {
			stale[i].Status = domain.WithdrawalApproved
			stale[i].UpdatedAt = time.Now().UTC()
			if err := tx.UpdateWithdrawal(ctx, &stale[i]); err != nil {
				return err
			}
		}
		count = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		zap.L().Warn("requeued stale processing withdrawals", zap.Int("count", count))
	}
	return count, nil
}

// transition applies a guarded status change with no balance effect.
func (s *WithdrawalService) transition(ctx context.Context, withdrawalID uuid.UUID, next, payoutID, reason string) (*models.WithdrawalRequest, error) {
	var result *models.WithdrawalRequest
	err := s.store.RunInTx(ctx, nil, func(tx store.Tx) error {
		wd, err := tx.WithdrawalForUpdate(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if wd.Status == next {
			result = wd
			return nil
		}
		if !withdrawalCanTransition(wd.Status, next) {
			return fmt.Errorf("%w: cannot move withdrawal from %q to %q", models.ErrInvalidWithdrawal, wd.Status, next)
		}
		wd.Status = next
		if payoutID != "" {
			wd.PayoutID = payoutID
		}
		if reason != "" {
			wd.Reason = reason
		}
		wd.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateWithdrawal(ctx, wd); err != nil {
			return err
		}
		result = wd
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementWithdrawalTransition(next)
	return result, nil
}

// releaseHold credits the reserved amount back. The key is derived from the
// withdrawal id so cancel and fail paths cannot double-release.
func (s *WithdrawalService) releaseHold(ctx context.Context, tx store.Tx, wd *models.WithdrawalRequest) error {
	note := fmt.Sprintf("release hold for withdrawal %s", wd.ID)
	_, err := creditInTx(ctx, tx, wd.AccountID, wd.Amount, domain.TxTypeWithdrawalRelease, note, "wdrelease:"+wd.ID.String())
	return err
}
