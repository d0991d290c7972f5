package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayo6706/coinwallet/internal/api/middleware"
	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/service"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	store    *store.Memory
	accounts *service.AccountService
	ledger   *service.LedgerService
	resolver *service.ResolverService
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	st := store.NewMemory()
	return &handlerFixture{
		store:    st,
		accounts: service.NewAccountService(st),
		ledger:   service.NewLedgerService(st, nil),
		resolver: service.NewResolverService(st),
	}
}

// seedUser creates an activated, KYC-approved account funded through the
// ledger so the fixture mirrors real reward flow.
func (f *handlerFixture) seedUser(t *testing.T, name string, balance int64) *models.Account {
	t.Helper()
	ctx := context.Background()
	a, err := f.accounts.Create(ctx, service.CreateAccountInput{
		Name:  name,
		Phone: "+1415555" + fmt.Sprintf("%04d", len(name)*1000+int(balance%1000)),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.RunInTx(ctx, nil, func(tx store.Tx) error {
		if err := tx.SetActivated(ctx, a.ID, true); err != nil {
			return err
		}
		return tx.SetKYCStatus(ctx, a.ID, domain.KYCApproved)
	}))
	if balance > 0 {
		_, err = f.ledger.Credit(ctx, a.ID, balance, domain.TxTypeActivationBonus, "seed", "seed:"+a.ID.String())
		require.NoError(t, err)
	}
	return a
}

func authedRequest(method, target string, body []byte, userID uuid.UUID, role string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	return r.WithContext(middleware.ContextWithUser(r.Context(), userID.String(), role))
}

func TestTransferHandlerCreate(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewTransferHandler(f.ledger, f.resolver)

	alice := f.seedUser(t, "alice", 1000)
	bob := f.seedUser(t, "bob", 0)

	body := []byte(fmt.Sprintf(`{"to_account_id":%q,"amount":250,"idempotency_key":"t1"}`, bob.ID))
	w := httptest.NewRecorder()
	h.Create(w, authedRequest(http.MethodPost, "/v1/transfers", body, alice.ID, domain.RoleUser))

	require.Equal(t, http.StatusCreated, w.Code)
	var tx models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	assert.Equal(t, domain.TxTypeTransfer, tx.Type)
	assert.Equal(t, int64(250), tx.Amount)
}

func TestTransferHandlerResolvesIdentifier(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewTransferHandler(f.ledger, f.resolver)

	alice := f.seedUser(t, "alice", 1000)
	bob := f.seedUser(t, "bob", 0)

	body := []byte(fmt.Sprintf(`{"to_identifier":%q,"amount":100,"idempotency_key":"t1"}`, bob.UniqueID))
	w := httptest.NewRecorder()
	h.Create(w, authedRequest(http.MethodPost, "/v1/transfers", body, alice.ID, domain.RoleUser))

	require.Equal(t, http.StatusCreated, w.Code)

	got, err := f.accounts.Get(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)
}

func TestTransferHandlerProblemResponses(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewTransferHandler(f.ledger, f.resolver)

	alice := f.seedUser(t, "alice", 100)
	bob := f.seedUser(t, "bob", 0)

	cases := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
	}{
		{
			"insufficient balance",
			fmt.Sprintf(`{"to_account_id":%q,"amount":500,"idempotency_key":"t1"}`, bob.ID),
			http.StatusUnprocessableEntity,
			"ledger/insufficient-balance",
		},
		{
			"missing recipient",
			`{"amount":50,"idempotency_key":"t2"}`,
			http.StatusBadRequest,
			"request/validation",
		},
		{
			"unknown recipient",
			fmt.Sprintf(`{"to_account_id":%q,"amount":50,"idempotency_key":"t3"}`, uuid.New()),
			http.StatusNotFound,
			"account/not-found",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Create(w, authedRequest(http.MethodPost, "/v1/transfers", []byte(tc.body), alice.ID, domain.RoleUser))

			require.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
			var prob map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prob))
			typ, _ := prob["type"].(string)
			assert.True(t, strings.HasSuffix(typ, tc.wantType), "problem type %q", typ)
		})
	}
}

func TestTransferHandlerUnauthenticated(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewTransferHandler(f.ledger, f.resolver)

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/v1/transfers", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccountHandlerSignup(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewAccountHandler(f.accounts, f.ledger, f.resolver)

	body := []byte(`{"name":"Alice Example","phone":"+14155550199"}`)
	w := httptest.NewRecorder()
	h.Signup(w, httptest.NewRequest(http.MethodPost, "/v1/accounts", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, w.Code)
	var a models.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Len(t, a.UniqueID, 10)

	// duplicate phone
	w = httptest.NewRecorder()
	h.Signup(w, httptest.NewRequest(http.MethodPost, "/v1/accounts", bytes.NewReader(body)))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResolverHandlerManual(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewResolverHandler(f.resolver)

	alice := f.seedUser(t, "alice", 0)

	w := httptest.NewRecorder()
	h.ResolveManual(w, authedRequest(http.MethodGet, "/v1/resolve?identifier="+alice.UniqueID, nil, alice.ID, domain.RoleUser))

	require.Equal(t, http.StatusOK, w.Code)
	var resolved map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resolved))
	assert.Equal(t, alice.UniqueID, resolved["unique_id"])
	// resolution never leaks balances
	assert.NotContains(t, resolved, "balance")
}
