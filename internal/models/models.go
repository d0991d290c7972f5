package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a coin wallet. Balance is the spendable balance: a withdrawal
// reservation debits it immediately and a release credits it back.
type Account struct {
	ID             uuid.UUID  `json:"id"`
	UniqueID       string     `json:"unique_id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Role           string     `json:"role"`
	Balance        int64      `json:"balance"`
	Tier           string     `json:"tier"`
	KYCStatus      string     `json:"kyc_status"`
	Activated      bool       `json:"activated"`
	Blocked        bool       `json:"blocked"`
	ReferralCode   string     `json:"referral_code"`
	ReferredBy     *uuid.UUID `json:"referred_by,omitempty"`
	LastRewardDate string     `json:"last_reward_date,omitempty"` // UTC day, YYYY-MM-DD
	CreatedAt      time.Time  `json:"created_at"`
}

// Transaction is one immutable ledger record. Key doubles as the idempotency
// key: at most one applied transaction exists per key.
type Transaction struct {
	ID          uuid.UUID  `json:"id"`
	Key         string     `json:"key"`
	Type        string     `json:"type"`
	FromAccount *uuid.UUID `json:"from_account,omitempty"` // nil for pure credits
	ToAccount   *uuid.UUID `json:"to_account,omitempty"`   // nil for pure debits
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	Note        string     `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// KYCApplication is the single live verification application for an account.
type KYCApplication struct {
	ID              uuid.UUID `json:"id"`
	AccountID       uuid.UUID `json:"account_id"`
	FullName        string    `json:"full_name"`
	Address         string    `json:"address"`
	DocumentRefs    []string  `json:"document_refs"`
	Status          string    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BankDetails is snapshotted onto a withdrawal request at request time; later
// edits to the account's saved details do not affect in-flight withdrawals.
type BankDetails struct {
	AccountName   string `json:"account_name" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required,numeric,min=6,max=20"`
	IFSC          string `json:"ifsc" validate:"required,alphanum,len=11"`
	BankName      string `json:"bank_name" validate:"required"`
}

// WithdrawalRequest tracks the reservation-and-settlement workflow.
type WithdrawalRequest struct {
	ID             uuid.UUID   `json:"id"`
	AccountID      uuid.UUID   `json:"account_id"`
	Amount         int64       `json:"amount"`
	BankDetails    BankDetails `json:"bank_details"`
	Status         string      `json:"status"`
	PayoutID       string      `json:"payout_id,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	IdempotencyKey string      `json:"-"`
	ReserveTxID    uuid.UUID   `json:"reserve_tx_id"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// RedeemableService is a catalog item coins can be redeemed against. Price
// and active flag are re-validated at debit time, never trusted from an
// earlier quote.
type RedeemableService struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	PointsRequired int64     `json:"points_required"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}
