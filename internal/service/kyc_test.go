package service

import (
	"context"
	"testing"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKYCInput = SubmitInput{
	FullName:     "Alice Example",
	Address:      "1 Main St",
	DocumentRefs: []string{"doc://passport/1"},
}

func TestKYCSubmitRejectResubmitApprove(t *testing.T) {
	st := store.NewMemory()
	kyc := NewKYCService(st)
	ctx := context.Background()

	a := seedAccount(t, st, "alice", notActivated())

	app, err := kyc.Submit(ctx, a.ID, testKYCInput)
	require.NoError(t, err)
	assert.Equal(t, domain.KYCPending, app.Status)

	got, err := st.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KYCPending, got.KYCStatus)

	app, err = kyc.Reject(ctx, a.ID, "document unreadable")
	require.NoError(t, err)
	assert.Equal(t, domain.KYCRejected, app.Status)
	assert.Equal(t, "document unreadable", app.RejectionReason)

	// resubmission clears the rejection reason and re-enters review
	app, err = kyc.Submit(ctx, a.ID, testKYCInput)
	require.NoError(t, err)
	assert.Equal(t, domain.KYCPending, app.Status)
	assert.Empty(t, app.RejectionReason)

	app, err = kyc.Approve(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KYCApproved, app.Status)

	got, err = st.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KYCApproved, got.KYCStatus)
}

func TestKYCSubmitValidation(t *testing.T) {
	st := store.NewMemory()
	kyc := NewKYCService(st)
	ctx := context.Background()

	a := seedAccount(t, st, "alice", notActivated())

	_, err := kyc.Submit(ctx, a.ID, SubmitInput{DocumentRefs: []string{"doc://1"}})
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = kyc.Submit(ctx, a.ID, SubmitInput{FullName: "Alice Example"})
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestKYCSubmitWhilePendingOrApproved(t *testing.T) {
	st := store.NewMemory()
	kyc := NewKYCService(st)
	ctx := context.Background()

	a := seedAccount(t, st, "alice", notActivated())

	_, err := kyc.Submit(ctx, a.ID, testKYCInput)
	require.NoError(t, err)

	_, err = kyc.Submit(ctx, a.ID, testKYCInput)
	require.ErrorIs(t, err, models.ErrKYCPending)

	_, err = kyc.Approve(ctx, a.ID)
	require.NoError(t, err)

	// approved is terminal
	_, err = kyc.Submit(ctx, a.ID, testKYCInput)
	require.ErrorIs(t, err, models.ErrKYCAlreadyApproved)
	_, err = kyc.Reject(ctx, a.ID, "too late")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestKYCRejectRequiresReason(t *testing.T) {
	st := store.NewMemory()
	kyc := NewKYCService(st)
	ctx := context.Background()

	a := seedAccount(t, st, "alice", notActivated())
	_, err := kyc.Submit(ctx, a.ID, testKYCInput)
	require.NoError(t, err)

	_, err = kyc.Reject(ctx, a.ID, "  ")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestKYCPendingApplicationsQueue(t *testing.T) {
	st := store.NewMemory()
	kyc := NewKYCService(st)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		acct := seedAccount(t, st, name, notActivated())
		_, err := kyc.Submit(ctx, acct.ID, testKYCInput)
		require.NoError(t, err)
	}

	pending, err := kyc.PendingApplications(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}
