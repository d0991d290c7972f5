package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrantDailyLoginOncePerDay(t *testing.T) {
	st := store.NewMemory()
	rewards := NewRewardService(st, testSchedule, nil)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	a := seedAccount(t, st, "alice")

	tx, granted, err := rewards.GrantDailyLogin(ctx, a.ID, day)
	require.NoError(t, err)
	require.True(t, granted)
	assert.Equal(t, testSchedule.DailySilver, tx.Amount)
	assert.Equal(t, testSchedule.DailySilver, balanceOf(t, st, a.ID))

	// second login the same day, even near midnight, grants nothing
	_, granted, err = rewards.GrantDailyLogin(ctx, a.ID, day.Add(14*time.Hour))
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, testSchedule.DailySilver, balanceOf(t, st, a.ID))

	// next UTC day grants again
	_, granted, err = rewards.GrantDailyLogin(ctx, a.ID, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, 2*testSchedule.DailySilver, balanceOf(t, st, a.ID))
}

func TestGrantDailyLoginAmountFollowsTier(t *testing.T) {
	st := store.NewMemory()
	rewards := NewRewardService(st, testSchedule, nil)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	gold := seedAccount(t, st, "gold", withBalance(2500))
	platinum := seedAccount(t, st, "platinum", withBalance(9000))

	tx, _, err := rewards.GrantDailyLogin(ctx, gold.ID, day)
	require.NoError(t, err)
	assert.Equal(t, testSchedule.DailyGold, tx.Amount)

	tx, _, err = rewards.GrantDailyLogin(ctx, platinum.ID, day)
	require.NoError(t, err)
	assert.Equal(t, testSchedule.DailyPlatinum, tx.Amount)
}

func TestGrantDailyLoginConcurrent(t *testing.T) {
	st := store.NewMemory()
	rewards := NewRewardService(st, testSchedule, nil)
	day := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	a := seedAccount(t, st, "alice")

	const logins = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	wg.Add(logins)
	for i := 0; i < logins; i++ {
		go func() {
			defer wg.Done()
			_, ok, err := rewards.GrantDailyLogin(context.Background(), a.ID, day)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.Equal(t, testSchedule.DailySilver, balanceOf(t, st, a.ID))
}

func TestHandleActivationCompleted(t *testing.T) {
	st := store.NewMemory()
	rewards := NewRewardService(st, testSchedule, nil)
	ctx := context.Background()

	referrer := seedAccount(t, st, "referrer")
	referred := seedAccount(t, st, "referred", notActivated(), referredBy(referrer.ID))

	require.NoError(t, rewards.HandleActivationCompleted(ctx, referred.ID))

	a, err := st.Account(ctx, referred.ID)
	require.NoError(t, err)
	assert.True(t, a.Activated)
	assert.Equal(t, testSchedule.ActivationBonus, a.Balance)
	assert.Equal(t, testSchedule.ReferralBonus, balanceOf(t, st, referrer.ID))

	// redelivered gateway event replays both credits
	require.NoError(t, rewards.HandleActivationCompleted(ctx, referred.ID))
	assert.Equal(t, testSchedule.ActivationBonus, balanceOf(t, st, referred.ID))
	assert.Equal(t, testSchedule.ReferralBonus, balanceOf(t, st, referrer.ID))
}

func TestHandleActivationCompletedWithoutReferrer(t *testing.T) {
	st := store.NewMemory()
	rewards := NewRewardService(st, testSchedule, nil)
	ctx := context.Background()

	a := seedAccount(t, st, "solo", notActivated())
	require.NoError(t, rewards.HandleActivationCompleted(ctx, a.ID))

	got, err := st.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Activated)
	assert.Equal(t, testSchedule.ActivationBonus, got.Balance)
}

func TestRedeem(t *testing.T) {
	st := store.NewMemory()
	ledger := NewLedgerService(st, nil)
	rewards := NewRewardService(st, testSchedule, nil)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 1000, "seed:alice")

	svc, err := rewards.CreateService(ctx, "voucher", 400)
	require.NoError(t, err)

	tx, err := rewards.Redeem(ctx, a.ID, svc.ID, 400, "rd-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxTypeRedemption, tx.Type)
	assert.Equal(t, int64(600), balanceOf(t, st, a.ID))

	// same key replays without a second debit
	again, err := rewards.Redeem(ctx, a.ID, svc.ID, 400, "rd-1")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, again.ID)
	assert.Equal(t, int64(600), balanceOf(t, st, a.ID))
}

func TestRedeemStalePrice(t *testing.T) {
	st := store.NewMemory()
	ledger := NewLedgerService(st, nil)
	rewards := NewRewardService(st, testSchedule, nil)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 1000, "seed:alice")

	svc, err := rewards.CreateService(ctx, "voucher", 400)
	require.NoError(t, err)

	// price moved after the client fetched the catalog
	_, err = rewards.UpdateService(ctx, svc.ID, svc.Name, 450, true)
	require.NoError(t, err)

	_, err = rewards.Redeem(ctx, a.ID, svc.ID, 400, "rd-1")
	require.ErrorIs(t, err, models.ErrPriceChanged)
	assert.Equal(t, int64(1000), balanceOf(t, st, a.ID))
}

func TestRedeemInactiveService(t *testing.T) {
	st := store.NewMemory()
	ledger := NewLedgerService(st, nil)
	rewards := NewRewardService(st, testSchedule, nil)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")
	fund(t, ledger, a.ID, 1000, "seed:alice")

	svc, err := rewards.CreateService(ctx, "voucher", 400)
	require.NoError(t, err)
	_, err = rewards.UpdateService(ctx, svc.ID, svc.Name, 400, false)
	require.NoError(t, err)

	_, err = rewards.Redeem(ctx, a.ID, svc.ID, 400, "rd-1")
	require.ErrorIs(t, err, models.ErrServiceUnavailable)
	assert.Equal(t, int64(1000), balanceOf(t, st, a.ID))
}
