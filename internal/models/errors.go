package models

import "errors"

// Ledger error taxonomy. Every balance-mutating operation is all-or-nothing:
// any of these leaves ledger state untouched.
var (
	ErrValidation             = errors.New("validation failed")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountBlocked         = errors.New("account is blocked")
	ErrActivationRequired     = errors.New("account activation required")
	ErrKYCRequired            = errors.New("kyc approval required")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrWithdrawalBelowMinimum = errors.New("withdrawal amount below minimum")
	ErrServiceUnavailable     = errors.New("service unavailable")
	ErrPriceChanged           = errors.New("service price changed")

	// Key reuse with a payload that does not match the original request.
	// A matching reuse is not an error: the original result is returned.
	ErrIdempotencyMismatch = errors.New("idempotency key reused with mismatched payload")

	ErrTransactionNotFound = errors.New("transaction not found")
	ErrWithdrawalNotFound  = errors.New("withdrawal request not found")
	ErrInvalidWithdrawal   = errors.New("withdrawal not in a permitted state")

	ErrKYCNotFound        = errors.New("kyc application not found")
	ErrKYCPending         = errors.New("kyc application already pending review")
	ErrKYCAlreadyApproved = errors.New("kyc already approved")

	ErrDuplicateAccount = errors.New("account already exists")
)
