package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveQR(t *testing.T) {
	st := store.NewMemory()
	resolver := NewResolverService(st)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")

	payload, err := json.Marshal(QRPayload{Type: "payment", UserID: a.UniqueID, Name: a.Name})
	require.NoError(t, err)

	got, err := resolver.ResolveQR(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestResolveQRRejectsBadPayloads(t *testing.T) {
	st := store.NewMemory()
	resolver := NewResolverService(st)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")

	cases := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"type":`},
		{"wrong type", `{"type":"coupon","userId":"` + a.UniqueID + `"}`},
		{"missing userId", `{"type":"payment"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolver.ResolveQR(ctx, []byte(tc.raw))
			require.ErrorIs(t, err, models.ErrValidation)
		})
	}

	_, err := resolver.ResolveQR(ctx, []byte(`{"type":"payment","userId":"0000000000"}`))
	require.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestResolveManual(t *testing.T) {
	st := store.NewMemory()
	resolver := NewResolverService(st)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")

	got, err := resolver.ResolveManual(ctx, a.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	// phone fallback when the identifier is not a known unique id
	got, err = resolver.ResolveManual(ctx, a.Phone)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = resolver.ResolveManual(ctx, "  ")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = resolver.ResolveManual(ctx, "no-such-user")
	require.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestResolveRefusesBlockedAccounts(t *testing.T) {
	st := store.NewMemory()
	resolver := NewResolverService(st)
	ctx := context.Background()

	frozen := seedAccount(t, st, "frozen", blocked())

	_, err := resolver.ResolveManual(ctx, frozen.UniqueID)
	require.ErrorIs(t, err, models.ErrAccountBlocked)

	payload, _ := json.Marshal(QRPayload{Type: "payment", UserID: frozen.UniqueID})
	_, err = resolver.ResolveQR(ctx, payload)
	require.ErrorIs(t, err, models.ErrAccountBlocked)
}

func TestMyQRPayloadRoundTrips(t *testing.T) {
	st := store.NewMemory()
	resolver := NewResolverService(st)
	ctx := context.Background()

	a := seedAccount(t, st, "alice")

	payload, err := resolver.MyQRPayload(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "payment", payload.Type)
	assert.Equal(t, a.UniqueID, payload.UserID)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	got, err := resolver.ResolveQR(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}
