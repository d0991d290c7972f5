package domain

// Transaction types recorded in the ledger.
const (
	TxTypeTransfer          = "transfer"
	TxTypeDailyReward       = "daily_reward"
	TxTypeReferralBonus     = "referral_bonus"
	TxTypeActivationBonus   = "activation_bonus"
	TxTypeRedemption        = "redemption"
	TxTypeWithdrawalReserve = "withdrawal_reserve"
	TxTypeWithdrawalRelease = "withdrawal_release"
	TxTypeWithdrawalSettle  = "withdrawal_settle"
)

// Transaction statuses. An applied transaction is immutable; a reversal is a
// new linked transaction, never an in-place edit.
const (
	TxStatusApplied  = "applied"
	TxStatusReversed = "reversed"
)

// KYC verification statuses.
const (
	KYCNotSubmitted = "not_submitted"
	KYCPending      = "pending"
	KYCApproved     = "approved"
	KYCRejected     = "rejected"
)

// Withdrawal request statuses.
const (
	WithdrawalPending    = "pending"
	WithdrawalApproved   = "approved"
	WithdrawalProcessing = "processing"
	WithdrawalSuccess    = "success"
	WithdrawalFailed     = "failed"
)

// Account roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
