package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// PayoutInstruction is one bank transfer request handed to the rail. Amount
// is fiat, already converted from coins by the caller.
type PayoutInstruction struct {
	WithdrawalID  string
	Amount        decimal.Decimal
	Currency      string
	AccountName   string
	AccountNumber string
	IFSC          string
	BankName      string
}

// PayoutRail is the external bank-transfer provider. SendPayout returns the
// rail's reference id. Implementations are expected to treat WithdrawalID as
// their own idempotency key so a re-sent instruction does not pay twice.
type PayoutRail interface {
	SendPayout(ctx context.Context, in PayoutInstruction) (string, error)
}
