package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBank = models.BankDetails{
	AccountName:   "Alice Example",
	AccountNumber: "0011223344",
	IFSC:          "HDFC0001234",
	BankName:      "HDFC",
}

func newWithdrawalFixture(t *testing.T, rail *fakeRail) (*store.Memory, *LedgerService, *WithdrawalService) {
	t.Helper()
	st := store.NewMemory()
	ledger := NewLedgerService(st, nil)
	wd := NewWithdrawalService(st, rail, nil, 500, decimal.RequireFromString("1.0"), "INR")
	return st, ledger, wd
}

func TestWithdrawalRequestReservesImmediately(t *testing.T) {
	st, ledger, wd := newWithdrawalFixture(t, newFakeRail())
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 2000, "seed:alice")

	req, err := wd.Request(ctx, a.ID, 800, testBank, "wd-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalPending, req.Status)
	assert.Equal(t, int64(1200), balanceOf(t, st, a.ID))

	// the hold is a real debit: the remainder is all that is spendable
	bob := seedAccount(t, st, "bob")
	_, err = ledger.Transfer(ctx, a.ID, bob.ID, 1201, "", "t1")
	require.ErrorIs(t, err, models.ErrInsufficientBalance)
}

func TestWithdrawalRequestGuards(t *testing.T) {
	st, ledger, wd := newWithdrawalFixture(t, newFakeRail())
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 2000, "seed:alice")

	_, err := wd.Request(ctx, a.ID, 499, testBank, "wd-1")
	require.ErrorIs(t, err, models.ErrWithdrawalBelowMinimum)

	badBank := testBank
	badBank.IFSC = "short"
	_, err = wd.Request(ctx, a.ID, 800, badBank, "wd-2")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = wd.Request(ctx, a.ID, 800, testBank, "")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = wd.Request(ctx, a.ID, 5000, testBank, "wd-3")
	require.ErrorIs(t, err, models.ErrInsufficientBalance)
	assert.Equal(t, int64(2000), balanceOf(t, st, a.ID))
}

func TestWithdrawalRequestIdempotentReplay(t *testing.T) {
	st, ledger, wd := newWithdrawalFixture(t, newFakeRail())
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 2000, "seed:alice")

	first, err := wd.Request(ctx, a.ID, 800, testBank, "wd-1")
	require.NoError(t, err)

	second, err := wd.Request(ctx, a.ID, 800, testBank, "wd-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1200), balanceOf(t, st, a.ID))

	_, err = wd.Request(ctx, a.ID, 900, testBank, "wd-1")
	require.ErrorIs(t, err, models.ErrIdempotencyMismatch)
}

func TestWithdrawalCancelReleasesHold(t *testing.T) {
	st, ledger, wd := newWithdrawalFixture(t, newFakeRail())
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 2000, "seed:alice")

	req, err := wd.Request(ctx, a.ID, 800, testBank, "wd-1")
	require.NoError(t, err)

	cancelled, err := wd.Cancel(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalFailed, cancelled.Status)
	assert.Equal(t, "cancelled", cancelled.Reason)
	assert.Equal(t, int64(2000), balanceOf(t, st, a.ID))

	// already terminal
	_, err = wd.Cancel(ctx, req.ID)
	require.ErrorIs(t, err, models.ErrInvalidWithdrawal)
	assert.Equal(t, int64(2000), balanceOf(t, st, a.ID))
}

func TestWithdrawalProcessApprovedSuccess(t *testing.T) {
	rail := newFakeRail()
	st, ledger, wd := newWithdrawalFixture(t, rail)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 2000, "seed:alice")

	req, err := wd.Request(ctx, a.ID, 800, testBank, "wd-1")
	require.NoError(t, err)
	_, err = wd.Approve(ctx, req.ID)
	require.NoError(t, err)

	n, err := wd.ProcessApproved(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, rail.callCount())
	assert.Equal(t, req.ID.String(), rail.sent[0].WithdrawalID)
	assert.Equal(t, testBank.AccountNumber, rail.sent[0].AccountNumber)

	got, err := wd.Withdrawal(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalSuccess, got.Status)
	assert.Equal(t, "RAIL-1", got.PayoutID)
	// settled coins stay gone
	assert.Equal(t, int64(1200), balanceOf(t, st, a.ID))

	// queue is drained
	n, err = wd.ProcessApproved(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithdrawalProcessApprovedRailFailure(t *testing.T) {
	rail := newFakeRail()
	rail.fail = true
	st, ledger, wd := newWithdrawalFixture(t, rail)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 2000, "seed:alice")

	req, err := wd.Request(ctx, a.ID, 800, testBank, "wd-1")
	require.NoError(t, err)
	_, err = wd.Approve(ctx, req.ID)
	require.NoError(t, err)

	n, err := wd.ProcessApproved(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := wd.Withdrawal(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalFailed, got.Status)
	assert.Contains(t, got.Reason, "rail down")
	// hold released
	assert.Equal(t, int64(2000), balanceOf(t, st, a.ID))
}

func TestWithdrawalSettleAndFailAreIdempotent(t *testing.T) {
	st, ledger, wd := newWithdrawalFixture(t, newFakeRail())
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 2000, "seed:alice")

	req, err := wd.Request(ctx, a.ID, 800, testBank, "wd-1")
	require.NoError(t, err)
	_, err = wd.Approve(ctx, req.ID)
	require.NoError(t, err)
	_, err = wd.ProcessApproved(ctx, 10)
	require.NoError(t, err)

	// redelivered success callback
	require.NoError(t, wd.HandlePayoutResult(ctx, req.ID, true, "RAIL-1", ""))
	assert.Equal(t, int64(1200), balanceOf(t, st, a.ID))

	// a late failure callback cannot claw back a settled withdrawal
	err = wd.HandlePayoutResult(ctx, req.ID, false, "", "late failure")
	require.ErrorIs(t, err, models.ErrInvalidWithdrawal)
	assert.Equal(t, int64(1200), balanceOf(t, st, a.ID))
}

func TestWithdrawalFailReleasesOnce(t *testing.T) {
	rail := newFakeRail()
	rail.fail = true
	st, ledger, wd := newWithdrawalFixture(t, rail)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 2000, "seed:alice")

	req, err := wd.Request(ctx, a.ID, 800, testBank, "wd-1")
	require.NoError(t, err)
	_, err = wd.Approve(ctx, req.ID)
	require.NoError(t, err)
	_, err = wd.ProcessApproved(ctx, 10)
	require.NoError(t, err)

	// redelivered failure callback releases nothing further
	require.NoError(t, wd.HandlePayoutResult(ctx, req.ID, false, "", "rail down"))
	assert.Equal(t, int64(2000), balanceOf(t, st, a.ID))
}

func TestWithdrawalRequeueStale(t *testing.T) {
	rail := newFakeRail()
	st, ledger, wd := newWithdrawalFixture(t, rail)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 2000, "seed:alice")

	req, err := wd.Request(ctx, a.ID, 800, testBank, "wd-1")
	require.NoError(t, err)
	_, err = wd.Approve(ctx, req.ID)
	require.NoError(t, err)

	// simulate a claim whose rail call never resolved
	require.NoError(t, st.RunInTx(ctx, nil, func(tx store.Tx) error {
		locked, err := tx.WithdrawalForUpdate(ctx, req.ID)
		if err != nil {
			return err
		}
		locked.Status = domain.WithdrawalProcessing
		locked.UpdatedAt = time.Now().UTC().Add(-time.Hour)
		return tx.UpdateWithdrawal(ctx, locked)
	}))

	n, err := wd.RequeueStale(ctx, time.Now().UTC().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := wd.Withdrawal(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalApproved, got.Status)

	// worker retries it on the next tick
	n, err = wd.ProcessApproved(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, rail.callCount())
}

func TestWithdrawalConservationWithHoldsAndSettlement(t *testing.T) {
	st, ledger, wd := newWithdrawalFixture(t, newFakeRail())
	conservation := NewConservationService(st)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 2000, "seed:alice")

	held, err := wd.Request(ctx, a.ID, 800, testBank, "wd-1")
	require.NoError(t, err)

	ok, err := conservation.Check(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "outstanding hold must balance")

	_, err = wd.Approve(ctx, held.ID)
	require.NoError(t, err)
	_, err = wd.ProcessApproved(ctx, 10)
	require.NoError(t, err)

	ok, err = conservation.Check(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "settled amount must balance")
}
