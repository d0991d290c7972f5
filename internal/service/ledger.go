package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerService executes all balance mutations. Every mutation runs inside
// store.RunInTx with the affected accounts in the lock set, checks the
// idempotency key before touching balances, and recomputes the tier on every
// balance write.
type LedgerService struct {
	store    store.Store
	notifier Notifier
}

func NewLedgerService(st store.Store, notifier Notifier) *LedgerService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &LedgerService{store: st, notifier: notifier}
}

// Transfer moves amount from one account to another. A replayed idempotency
// key returns the original transaction without re-applying.
func (s *LedgerService) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount int64, note, key string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", models.ErrValidation)
	}
	if fromID == toID {
		return nil, fmt.Errorf("%w: cannot transfer to the same account", models.ErrValidation)
	}

	var result *models.Transaction
	err := s.store.RunInTx(ctx, []uuid.UUID{fromID, toID}, func(tx store.Tx) error {
		if prior, ok, err := replayByKey(ctx, tx, key, domain.TxTypeTransfer, amount, &fromID, &toID); err != nil {
			return err
		} else if ok {
			result = prior
			return nil
		}

		from, err := tx.AccountForUpdate(ctx, fromID)
		if err != nil {
			return err
		}
		to, err := tx.AccountForUpdate(ctx, toID)
		if err != nil {
			return err
		}
		if err := gateOutgoing(from); err != nil {
			return err
		}
		if to.Blocked {
			return models.ErrAccountBlocked
		}
		if from.Balance < amount {
			return models.ErrInsufficientBalance
		}

		if err := applyBalance(ctx, tx, from, from.Balance-amount); err != nil {
			return err
		}
		if err := applyBalance(ctx, tx, to, to.Balance+amount); err != nil {
			return err
		}

		result = &models.Transaction{
			ID:          uuid.New(),
			Key:         key,
			Type:        domain.TxTypeTransfer,
			FromAccount: &fromID,
			ToAccount:   &toID,
			Amount:      amount,
			Status:      domain.TxStatusApplied,
			Note:        note,
			CreatedAt:   time.Now().UTC(),
		}
		return tx.InsertTransaction(ctx, result)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.TransactionApplied(result)
	return result, nil
}

// Credit applies a pure credit with no source account. Blocked accounts still
// accept incoming credits.
func (s *LedgerService) Credit(ctx context.Context, accountID uuid.UUID, amount int64, txType, note, key string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", models.ErrValidation)
	}

	var result *models.Transaction
	err := s.store.RunInTx(ctx, []uuid.UUID{accountID}, func(tx store.Tx) error {
		var err error
		result, err = creditInTx(ctx, tx, accountID, amount, txType, note, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifier.TransactionApplied(result)
	return result, nil
}

// Debit applies a pure debit with no destination account.
func (s *LedgerService) Debit(ctx context.Context, accountID uuid.UUID, amount int64, txType, note, key string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", models.ErrValidation)
	}

	var result *models.Transaction
	err := s.store.RunInTx(ctx, []uuid.UUID{accountID}, func(tx store.Tx) error {
		var err error
		result, err = debitInTx(ctx, tx, accountID, amount, txType, note, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifier.TransactionApplied(result)
	return result, nil
}

// Transaction returns a single ledger record.
func (s *LedgerService) Transaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return s.store.Transaction(ctx, id)
}

// Statement lists an account's ledger records, newest first.
func (s *LedgerService) Statement(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.store.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, accountID, limit, offset)
}

// gateOutgoing enforces the precondition chain for outgoing value, in fixed
// order so callers see a deterministic first failure.
func gateOutgoing(a *models.Account) error {
	if a.Blocked {
		return models.ErrAccountBlocked
	}
	if !a.Activated {
		return models.ErrActivationRequired
	}
	if a.KYCStatus != domain.KYCApproved {
		return models.ErrKYCRequired
	}
	return nil
}

// replayByKey resolves idempotency inside the mutation's own transaction. A
// prior transaction under the same key with matching shape is returned as the
// result; a mismatched shape is a caller bug, not a replay.
func replayByKey(ctx context.Context, tx store.Tx, key, txType string, amount int64, from, to *uuid.UUID) (*models.Transaction, bool, error) {
	prior, err := tx.TransactionByKey(ctx, key)
	if errors.Is(err, models.ErrTransactionNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if prior.Type != txType || prior.Amount != amount ||
		!sameAccountRef(prior.FromAccount, from) || !sameAccountRef(prior.ToAccount, to) {
		return nil, false, models.ErrIdempotencyMismatch
	}
	zap.L().Debug("idempotent replay", zap.String("key", key), zap.String("type", txType))
	return prior, true, nil
}

func sameAccountRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// applyBalance persists a new balance and the tier derived from it.
func applyBalance(ctx context.Context, tx store.Tx, a *models.Account, balance int64) error {
	if balance < 0 {
		return models.ErrInsufficientBalance
	}
	a.Balance = balance
	a.Tier = domain.TierOf(balance)
	return tx.UpdateBalance(ctx, a.ID, a.Balance, a.Tier)
}

// creditInTx credits an account within an already-open transaction whose lock
// set includes accountID.
func creditInTx(ctx context.Context, tx store.Tx, accountID uuid.UUID, amount int64, txType, note, key string) (*models.Transaction, error) {
	if prior, ok, err := replayByKey(ctx, tx, key, txType, amount, nil, &accountID); err != nil {
		return nil, err
	} else if ok {
		return prior, nil
	}
	a, err := tx.AccountForUpdate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := applyBalance(ctx, tx, a, a.Balance+amount); err != nil {
		return nil, err
	}
	tr := &models.Transaction{
		ID:        uuid.New(),
		Key:       key,
		Type:      txType,
		ToAccount: &accountID,
		Amount:    amount,
		Status:    domain.TxStatusApplied,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
	return tr, tx.InsertTransaction(ctx, tr)
}

// debitInTx debits an account within an already-open transaction. It checks
// the blocked flag and the balance; activation and KYC gating stay with the
// operations that require them.
func debitInTx(ctx context.Context, tx store.Tx, accountID uuid.UUID, amount int64, txType, note, key string) (*models.Transaction, error) {
	if prior, ok, err := replayByKey(ctx, tx, key, txType, amount, &accountID, nil); err != nil {
		return nil, err
	} else if ok {
		return prior, nil
	}
	a, err := tx.AccountForUpdate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a.Blocked {
		return nil, models.ErrAccountBlocked
	}
	if a.Balance < amount {
		return nil, models.ErrInsufficientBalance
	}
	if err := applyBalance(ctx, tx, a, a.Balance-amount); err != nil {
		return nil, err
	}
	tr := &models.Transaction{
		ID:          uuid.New(),
		Key:         key,
		Type:        txType,
		FromAccount: &accountID,
		Amount:      amount,
		Status:      domain.TxStatusApplied,
		Note:        note,
		CreatedAt:   time.Now().UTC(),
	}
	return tr, tx.InsertTransaction(ctx, tr)
}

// recordSettlement writes the balance-neutral withdrawal_settle record that
// marks value as having left the system. Both account references are nil so
// no balance moves.
func recordSettlement(ctx context.Context, tx store.Tx, amount int64, note, key string) (*models.Transaction, error) {
	if prior, ok, err := replayByKey(ctx, tx, key, domain.TxTypeWithdrawalSettle, amount, nil, nil); err != nil {
		return nil, err
	} else if ok {
		return prior, nil
	}
	tr := &models.Transaction{
		ID:        uuid.New(),
		Key:       key,
		Type:      domain.TxTypeWithdrawalSettle,
		Amount:    amount,
		Status:    domain.TxStatusApplied,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
	return tr, tx.InsertTransaction(ctx, tr)
}
