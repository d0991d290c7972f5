package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemAccount(t *testing.T, m *Memory, balance int64) *models.Account {
	t.Helper()
	id := uuid.New()
	a := &models.Account{
		ID:           id,
		UniqueID:     id.String()[:10],
		Name:         "test",
		Phone:        "+1555" + id.String()[:7],
		Role:         domain.RoleUser,
		Balance:      balance,
		Tier:         domain.TierOf(balance),
		KYCStatus:    domain.KYCApproved,
		Activated:    true,
		ReferralCode: id.String()[24:32],
	}
	require.NoError(t, m.CreateAccount(context.Background(), a))
	return a
}

func TestMemoryRunInTxDiscardsOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a := newMemAccount(t, m, 100)

	boom := errors.New("boom")
	err := m.RunInTx(ctx, []uuid.UUID{a.ID}, func(tx Tx) error {
		if err := tx.UpdateBalance(ctx, a.ID, 999, domain.TierSilver); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &models.Transaction{
			ID:        uuid.New(),
			Key:       "k1",
			Type:      domain.TxTypeDailyReward,
			ToAccount: &a.ID,
			Amount:    899,
			Status:    domain.TxStatusApplied,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)
	_, err = m.TransactionByKey(ctx, "k1")
	require.ErrorIs(t, err, models.ErrTransactionNotFound)
}

func TestMemoryRunInTxCommitsTogether(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a := newMemAccount(t, m, 100)

	err := m.RunInTx(ctx, []uuid.UUID{a.ID}, func(tx Tx) error {
		if err := tx.UpdateBalance(ctx, a.ID, 150, domain.TierSilver); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, &models.Transaction{
			ID:        uuid.New(),
			Key:       "k1",
			Type:      domain.TxTypeDailyReward,
			ToAccount: &a.ID,
			Amount:    50,
			Status:    domain.TxStatusApplied,
			CreatedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	got, err := m.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.Balance)
	tr, err := m.TransactionByKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), tr.Amount)
}

func TestMemoryListTransactionsNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a := newMemAccount(t, m, 0)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		amount := int64(10 * (i + 1))
		require.NoError(t, m.RunInTx(ctx, nil, func(tx Tx) error {
			return tx.InsertTransaction(ctx, &models.Transaction{
				ID:        uuid.New(),
				Key:       uuid.NewString(),
				Type:      domain.TxTypeDailyReward,
				ToAccount: &a.ID,
				Amount:    amount,
				Status:    domain.TxStatusApplied,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			})
		}))
	}

	list, err := m.ListTransactions(ctx, a.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, int64(30), list[0].Amount)
	assert.Equal(t, int64(10), list[2].Amount)

	page, err := m.ListTransactions(ctx, a.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(20), page[0].Amount)
}

func TestMemoryLedgerTotals(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a := newMemAccount(t, m, 0)
	b := newMemAccount(t, m, 0)

	insert := func(key, typ string, from, to *uuid.UUID, amount int64) {
		t.Helper()
		require.NoError(t, m.RunInTx(ctx, nil, func(tx Tx) error {
			return tx.InsertTransaction(ctx, &models.Transaction{
				ID:          uuid.New(),
				Key:         key,
				Type:        typ,
				FromAccount: from,
				ToAccount:   to,
				Amount:      amount,
				Status:      domain.TxStatusApplied,
				CreatedAt:   time.Now().UTC(),
			})
		}))
	}

	require.NoError(t, m.RunInTx(ctx, nil, func(tx Tx) error {
		return tx.InsertWithdrawal(ctx, &models.WithdrawalRequest{
			ID:             uuid.New(),
			AccountID:      a.ID,
			Amount:         500,
			Status:         domain.WithdrawalPending,
			IdempotencyKey: "wd-1",
			CreatedAt:      time.Now().UTC(),
			UpdatedAt:      time.Now().UTC(),
		})
	}))

	insert("c1", domain.TxTypeActivationBonus, nil, &a.ID, 1000)
	insert("c2", domain.TxTypeDailyReward, nil, &b.ID, 20)
	insert("t1", domain.TxTypeTransfer, &a.ID, &b.ID, 300)
	insert("s1", domain.TxTypeWithdrawalSettle, nil, nil, 200)
	insert("d1", domain.TxTypeRedemption, &b.ID, nil, 50)

	totals, err := m.LedgerTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1020), totals.RewardCredits)
	assert.Equal(t, int64(500), totals.OutstandingHolds)
	assert.Equal(t, int64(200), totals.SettledAmount)
	assert.Equal(t, int64(50), totals.RedemptionDebits)
}
