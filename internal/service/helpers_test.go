package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/gateway"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testSchedule = domain.RewardSchedule{
	DailySilver:     10,
	DailyGold:       20,
	DailyPlatinum:   50,
	ReferralBonus:   100,
	ActivationBonus: 50,
}

type accountOpt func(*models.Account)

func withBalance(balance int64) accountOpt {
	return func(a *models.Account) {
		a.Balance = balance
		a.Tier = domain.TierOf(balance)
	}
}

func notActivated() accountOpt {
	return func(a *models.Account) {
		a.Activated = false
		a.KYCStatus = domain.KYCNotSubmitted
	}
}

func blocked() accountOpt {
	return func(a *models.Account) { a.Blocked = true }
}

func referredBy(id uuid.UUID) accountOpt {
	return func(a *models.Account) { a.ReferredBy = &id }
}

// seedAccount creates an activated, KYC-approved account ready to send value,
// unless opts say otherwise.
func seedAccount(t *testing.T, st store.Store, name string, opts ...accountOpt) *models.Account {
	t.Helper()
	id := uuid.New()
	a := &models.Account{
		ID:           id,
		UniqueID:     newUniqueID(),
		Name:         name,
		Phone:        "+1555" + id.String()[:7],
		Role:         domain.RoleUser,
		Tier:         domain.TierOf(0),
		KYCStatus:    domain.KYCApproved,
		Activated:    true,
		ReferralCode: newReferralCode(),
	}
	for _, opt := range opts {
		opt(a)
	}
	require.NoError(t, st.CreateAccount(context.Background(), a))
	return a
}

// fund credits an account through the ledger so conservation checks still
// balance in tests that use them.
func fund(t *testing.T, ledger *LedgerService, accountID uuid.UUID, amount int64, key string) {
	t.Helper()
	_, err := ledger.Credit(context.Background(), accountID, amount, domain.TxTypeActivationBonus, "seed", key)
	require.NoError(t, err)
}

func balanceOf(t *testing.T, st store.Store, id uuid.UUID) int64 {
	t.Helper()
	a, err := st.Account(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

var errRailDown = errors.New("rail down")

// fakeRail records instructions and fails on demand.
type fakeRail struct {
	mu       sync.Mutex
	fail     bool
	payoutID string
	sent     []gateway.PayoutInstruction
}

func newFakeRail() *fakeRail {
	return &fakeRail{payoutID: "RAIL-1"}
}

func (r *fakeRail) SendPayout(_ context.Context, in gateway.PayoutInstruction) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return "", errRailDown
	}
	r.sent = append(r.sent, in)
	return r.payoutID, nil
}

func (r *fakeRail) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}
