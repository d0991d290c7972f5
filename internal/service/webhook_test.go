package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookKey = "webhook-secret"

func signPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookKey))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestActivationWebhook(t *testing.T) {
	st := store.NewMemory()
	rewards := NewRewardService(st, testSchedule, nil)
	hooks := NewWebhookService(rewards, nil, testWebhookKey, false)
	ctx := context.Background()

	a := seedAccount(t, st, "alice", notActivated())

	payload := []byte(fmt.Sprintf(`{"event":"activation.completed","account_id":"%s","reference":"ord_1"}`, a.ID))
	require.NoError(t, hooks.HandleActivationWebhook(ctx, payload, signPayload(payload)))

	got, err := st.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Activated)
	assert.Equal(t, testSchedule.ActivationBonus, got.Balance)

	// gateway retries the delivery; credits replay
	require.NoError(t, hooks.HandleActivationWebhook(ctx, payload, signPayload(payload)))
	assert.Equal(t, testSchedule.ActivationBonus, balanceOf(t, st, a.ID))
}

func TestActivationWebhookRejectsBadSignature(t *testing.T) {
	st := store.NewMemory()
	rewards := NewRewardService(st, testSchedule, nil)
	hooks := NewWebhookService(rewards, nil, testWebhookKey, false)
	ctx := context.Background()

	a := seedAccount(t, st, "alice", notActivated())
	payload := []byte(fmt.Sprintf(`{"event":"activation.completed","account_id":"%s"}`, a.ID))

	err := hooks.HandleActivationWebhook(ctx, payload, "deadbeef")
	require.ErrorIs(t, err, ErrInvalidSignature)
	err = hooks.HandleActivationWebhook(ctx, payload, "")
	require.ErrorIs(t, err, ErrInvalidSignature)

	got, err := st.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Activated)
}

func TestActivationWebhookValidation(t *testing.T) {
	st := store.NewMemory()
	rewards := NewRewardService(st, testSchedule, nil)
	hooks := NewWebhookService(rewards, nil, "", true) // dev mode, no signature
	ctx := context.Background()

	err := hooks.HandleActivationWebhook(ctx, []byte(`{"event":"order.created","account_id":"x"}`), "")
	require.ErrorIs(t, err, models.ErrValidation)

	err = hooks.HandleActivationWebhook(ctx, []byte(`{"event":"activation.completed","account_id":"not-a-uuid"}`), "")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestPayoutWebhook(t *testing.T) {
	st := store.NewMemory()
	ledger := NewLedgerService(st, nil)
	wd := NewWithdrawalService(st, newFakeRail(), nil, 500, decimal.RequireFromString("1.0"), "INR")
	hooks := NewWebhookService(nil, wd, testWebhookKey, false)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 2000, "seed:alice")

	req, err := wd.Request(ctx, a.ID, 800, testBank, "wd-1")
	require.NoError(t, err)
	_, err = wd.Approve(ctx, req.ID)
	require.NoError(t, err)
	// the worker claimed it but the rail answered out of band
	require.NoError(t, st.RunInTx(ctx, nil, func(tx store.Tx) error {
		locked, err := tx.WithdrawalForUpdate(ctx, req.ID)
		if err != nil {
			return err
		}
		locked.Status = domain.WithdrawalProcessing
		return tx.UpdateWithdrawal(ctx, locked)
	}))

	payload := []byte(fmt.Sprintf(`{"withdrawal_id":"%s","status":"success","payout_id":"RAIL-9"}`, req.ID))
	require.NoError(t, hooks.HandlePayoutWebhook(ctx, payload, signPayload(payload)))

	got, err := wd.Withdrawal(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "RAIL-9", got.PayoutID)
	assert.Equal(t, int64(1200), balanceOf(t, st, a.ID))

	bad := []byte(fmt.Sprintf(`{"withdrawal_id":"%s","status":"maybe"}`, req.ID))
	err = hooks.HandlePayoutWebhook(ctx, bad, signPayload(bad))
	require.ErrorIs(t, err, models.ErrValidation)
}
