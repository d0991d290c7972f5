// Package store owns persistence for the wallet core. Implementations must
// uphold one contract: all mutations touching an account are serialized,
// per-account locks are taken in ascending id order, and idempotency-key
// lookups happen inside the same atomic unit as the mutation they guard.
package store

import (
	"context"
	"time"

	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/google/uuid"
)

// Tx is the mutation surface available inside RunInTx. Accounts named in the
// RunInTx lock set are safe to read-modify-write through it.
type Tx interface {
	AccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance int64, tier string) error
	SetLastRewardDate(ctx context.Context, id uuid.UUID, day string) error
	SetActivated(ctx context.Context, id uuid.UUID, activated bool) error
	SetKYCStatus(ctx context.Context, id uuid.UUID, status string) error

	TransactionByKey(ctx context.Context, key string) (*models.Transaction, error)
	InsertTransaction(ctx context.Context, tx *models.Transaction) error

	KYCApplicationForUpdate(ctx context.Context, accountID uuid.UUID) (*models.KYCApplication, error)
	SaveKYCApplication(ctx context.Context, app *models.KYCApplication) error

	InsertWithdrawal(ctx context.Context, wd *models.WithdrawalRequest) error
	WithdrawalForUpdate(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	WithdrawalByKey(ctx context.Context, key string) (*models.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, wd *models.WithdrawalRequest) error
	ListWithdrawalsByStatus(ctx context.Context, status string, limit int) ([]models.WithdrawalRequest, error)
	ListProcessingWithdrawalsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.WithdrawalRequest, error)

	ServiceByID(ctx context.Context, id uuid.UUID) (*models.RedeemableService, error)
}

// LedgerTotals is a consistent snapshot of the sums the conservation
// invariant is stated over.
type LedgerTotals struct {
	BalanceSum       int64 // sum of all account balances
	OutstandingHolds int64 // pending/approved/processing withdrawal amounts
	RewardCredits    int64 // applied daily_reward + referral_bonus + activation_bonus
	RedemptionDebits int64 // applied redemption amounts
	SettledAmount    int64 // applied withdrawal_settle amounts
}

// Store is the persistence contract for the wallet core.
type Store interface {
	// RunInTx executes fn atomically. Accounts in lockIDs are locked for the
	// duration, acquired in ascending id order regardless of caller order.
	RunInTx(ctx context.Context, lockIDs []uuid.UUID, fn func(tx Tx) error) error

	CreateAccount(ctx context.Context, a *models.Account) error
	Account(ctx context.Context, id uuid.UUID) (*models.Account, error)
	AccountByUniqueID(ctx context.Context, uniqueID string) (*models.Account, error)
	AccountByPhone(ctx context.Context, phone string) (*models.Account, error)
	AccountByReferralCode(ctx context.Context, code string) (*models.Account, error)
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error

	Transaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	TransactionByKey(ctx context.Context, key string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.Transaction, error)

	KYCApplication(ctx context.Context, accountID uuid.UUID) (*models.KYCApplication, error)
	ListKYCApplicationsByStatus(ctx context.Context, status string, limit, offset int) ([]models.KYCApplication, error)

	Withdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	ListWithdrawalsByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error)

	CreateService(ctx context.Context, svc *models.RedeemableService) error
	Service(ctx context.Context, id uuid.UUID) (*models.RedeemableService, error)
	UpdateService(ctx context.Context, svc *models.RedeemableService) error
	ListServices(ctx context.Context, activeOnly bool) ([]models.RedeemableService, error)

	LedgerTotals(ctx context.Context) (*LedgerTotals, error)
}
