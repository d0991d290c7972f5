package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/google/uuid"
)

// Memory is an in-process Store used by hermetic tests and local runs. A
// single store-wide mutex held for the whole RunInTx gives serializable
// transactions; mutations are staged on copies and committed only if fn
// succeeds, so failed operations leave no partial effect.
type Memory struct {
	mu sync.RWMutex

	accounts      map[uuid.UUID]*models.Account
	uniqueIndex   map[string]uuid.UUID
	phoneIndex    map[string]uuid.UUID
	referralIndex map[string]uuid.UUID

	transactions map[uuid.UUID]*models.Transaction
	txByKey      map[string]uuid.UUID
	txOrder      []uuid.UUID

	kyc map[uuid.UUID]*models.KYCApplication // keyed by account id

	withdrawals map[uuid.UUID]*models.WithdrawalRequest
	wdByKey     map[string]uuid.UUID
	wdOrder     []uuid.UUID

	services map[uuid.UUID]*models.RedeemableService
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts:      make(map[uuid.UUID]*models.Account),
		uniqueIndex:   make(map[string]uuid.UUID),
		phoneIndex:    make(map[string]uuid.UUID),
		referralIndex: make(map[string]uuid.UUID),
		transactions:  make(map[uuid.UUID]*models.Transaction),
		txByKey:       make(map[string]uuid.UUID),
		kyc:           make(map[uuid.UUID]*models.KYCApplication),
		withdrawals:   make(map[uuid.UUID]*models.WithdrawalRequest),
		wdByKey:       make(map[string]uuid.UUID),
		services:      make(map[uuid.UUID]*models.RedeemableService),
	}
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	if a.ReferredBy != nil {
		ref := *a.ReferredBy
		c.ReferredBy = &ref
	}
	return &c
}

func cloneTransaction(t *models.Transaction) *models.Transaction {
	c := *t
	if t.FromAccount != nil {
		v := *t.FromAccount
		c.FromAccount = &v
	}
	if t.ToAccount != nil {
		v := *t.ToAccount
		c.ToAccount = &v
	}
	return &c
}

func cloneKYC(a *models.KYCApplication) *models.KYCApplication {
	c := *a
	c.DocumentRefs = append([]string(nil), a.DocumentRefs...)
	return &c
}

func cloneWithdrawal(w *models.WithdrawalRequest) *models.WithdrawalRequest {
	c := *w
	return &c
}

func cloneService(s *models.RedeemableService) *models.RedeemableService {
	c := *s
	return &c
}

// memTx stages mutations against the base maps; nothing is visible until
// commit, and commit only runs if fn returned nil.
type memTx struct {
	m *Memory

	accounts    map[uuid.UUID]*models.Account
	insertedTxs []*models.Transaction
	kycApps     map[uuid.UUID]*models.KYCApplication
	withdrawals map[uuid.UUID]*models.WithdrawalRequest
	wdInserted  []uuid.UUID
}

// RunInTx implements Store. lockIDs is accepted for interface parity; the
// store-wide mutex already serializes every transaction, which is a strictly
// stronger guarantee than per-account locking.
func (m *Memory) RunInTx(ctx context.Context, lockIDs []uuid.UUID, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		m:           m,
		accounts:    make(map[uuid.UUID]*models.Account),
		kycApps:     make(map[uuid.UUID]*models.KYCApplication),
		withdrawals: make(map[uuid.UUID]*models.WithdrawalRequest),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (tx *memTx) commit() {
	for id, a := range tx.accounts {
		tx.m.accounts[id] = a
	}
	for _, t := range tx.insertedTxs {
		tx.m.transactions[t.ID] = t
		tx.m.txByKey[t.Key] = t.ID
		tx.m.txOrder = append(tx.m.txOrder, t.ID)
	}
	for id, app := range tx.kycApps {
		tx.m.kyc[id] = app
	}
	for id, wd := range tx.withdrawals {
		tx.m.withdrawals[id] = wd
	}
	for _, id := range tx.wdInserted {
		tx.m.wdByKey[tx.m.withdrawals[id].IdempotencyKey] = id
		tx.m.wdOrder = append(tx.m.wdOrder, id)
	}
}

func (tx *memTx) AccountForUpdate(_ context.Context, id uuid.UUID) (*models.Account, error) {
	if a, ok := tx.accounts[id]; ok {
		return cloneAccount(a), nil
	}
	a, ok := tx.m.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	staged := cloneAccount(a)
	tx.accounts[id] = staged
	return cloneAccount(staged), nil
}

func (tx *memTx) stagedAccount(id uuid.UUID) (*models.Account, error) {
	if a, ok := tx.accounts[id]; ok {
		return a, nil
	}
	a, ok := tx.m.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	staged := cloneAccount(a)
	tx.accounts[id] = staged
	return staged, nil
}

func (tx *memTx) UpdateBalance(_ context.Context, id uuid.UUID, balance int64, tier string) error {
	a, err := tx.stagedAccount(id)
	if err != nil {
		return err
	}
	a.Balance = balance
	a.Tier = tier
	return nil
}

func (tx *memTx) SetLastRewardDate(_ context.Context, id uuid.UUID, day string) error {
	a, err := tx.stagedAccount(id)
	if err != nil {
		return err
	}
	a.LastRewardDate = day
	return nil
}

func (tx *memTx) SetActivated(_ context.Context, id uuid.UUID, activated bool) error {
	a, err := tx.stagedAccount(id)
	if err != nil {
		return err
	}
	a.Activated = activated
	return nil
}

func (tx *memTx) SetKYCStatus(_ context.Context, id uuid.UUID, status string) error {
	a, err := tx.stagedAccount(id)
	if err != nil {
		return err
	}
	a.KYCStatus = status
	return nil
}

func (tx *memTx) TransactionByKey(_ context.Context, key string) (*models.Transaction, error) {
	for _, t := range tx.insertedTxs {
		if t.Key == key {
			return cloneTransaction(t), nil
		}
	}
	if id, ok := tx.m.txByKey[key]; ok {
		return cloneTransaction(tx.m.transactions[id]), nil
	}
	return nil, models.ErrTransactionNotFound
}

func (tx *memTx) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	if _, err := tx.TransactionByKey(ctx, t.Key); err == nil {
		return fmt.Errorf("transaction key %q already exists", t.Key)
	}
	tx.insertedTxs = append(tx.insertedTxs, cloneTransaction(t))
	return nil
}

func (tx *memTx) KYCApplicationForUpdate(_ context.Context, accountID uuid.UUID) (*models.KYCApplication, error) {
	if app, ok := tx.kycApps[accountID]; ok {
		return cloneKYC(app), nil
	}
	app, ok := tx.m.kyc[accountID]
	if !ok {
		return nil, models.ErrKYCNotFound
	}
	return cloneKYC(app), nil
}

func (tx *memTx) SaveKYCApplication(_ context.Context, app *models.KYCApplication) error {
	tx.kycApps[app.AccountID] = cloneKYC(app)
	return nil
}

func (tx *memTx) InsertWithdrawal(_ context.Context, wd *models.WithdrawalRequest) error {
	tx.withdrawals[wd.ID] = cloneWithdrawal(wd)
	tx.wdInserted = append(tx.wdInserted, wd.ID)
	return nil
}

func (tx *memTx) WithdrawalForUpdate(_ context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	if wd, ok := tx.withdrawals[id]; ok {
		return cloneWithdrawal(wd), nil
	}
	wd, ok := tx.m.withdrawals[id]
	if !ok {
		return nil, models.ErrWithdrawalNotFound
	}
	return cloneWithdrawal(wd), nil
}

func (tx *memTx) WithdrawalByKey(_ context.Context, key string) (*models.WithdrawalRequest, error) {
	for _, id := range tx.wdInserted {
		if tx.withdrawals[id].IdempotencyKey == key {
			return cloneWithdrawal(tx.withdrawals[id]), nil
		}
	}
	if id, ok := tx.m.wdByKey[key]; ok {
		if wd, staged := tx.withdrawals[id]; staged {
			return cloneWithdrawal(wd), nil
		}
		return cloneWithdrawal(tx.m.withdrawals[id]), nil
	}
	return nil, models.ErrWithdrawalNotFound
}

func (tx *memTx) UpdateWithdrawal(_ context.Context, wd *models.WithdrawalRequest) error {
	if _, ok := tx.withdrawals[wd.ID]; !ok {
		if _, ok := tx.m.withdrawals[wd.ID]; !ok {
			return models.ErrWithdrawalNotFound
		}
	}
	c := cloneWithdrawal(wd)
	c.UpdatedAt = time.Now().UTC()
	tx.withdrawals[wd.ID] = c
	return nil
}

func (tx *memTx) ListWithdrawalsByStatus(_ context.Context, status string, limit int) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	for _, id := range tx.m.wdOrder {
		wd := tx.m.withdrawals[id]
		if staged, ok := tx.withdrawals[id]; ok {
			wd = staged
		}
		if wd.Status != status {
			continue
		}
		out = append(out, *cloneWithdrawal(wd))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (tx *memTx) ListProcessingWithdrawalsBefore(_ context.Context, cutoff time.Time, limit int) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	for _, id := range tx.m.wdOrder {
		wd := tx.m.withdrawals[id]
		if staged, ok := tx.withdrawals[id]; ok {
			wd = staged
		}
		if wd.Status != domain.WithdrawalProcessing || !wd.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, *cloneWithdrawal(wd))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (tx *memTx) ServiceByID(_ context.Context, id uuid.UUID) (*models.RedeemableService, error) {
	svc, ok := tx.m.services[id]
	if !ok {
		return nil, models.ErrServiceUnavailable
	}
	return cloneService(svc), nil
}

// ---- plain (non-transactional) reads and admin writes ----

func (m *Memory) CreateAccount(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.ID]; ok {
		return models.ErrDuplicateAccount
	}
	if _, ok := m.uniqueIndex[a.UniqueID]; ok {
		return models.ErrDuplicateAccount
	}
	if a.Phone != "" {
		if _, ok := m.phoneIndex[a.Phone]; ok {
			return models.ErrDuplicateAccount
		}
	}
	c := cloneAccount(a)
	m.accounts[a.ID] = c
	m.uniqueIndex[a.UniqueID] = a.ID
	if a.Phone != "" {
		m.phoneIndex[a.Phone] = a.ID
	}
	if a.ReferralCode != "" {
		m.referralIndex[a.ReferralCode] = a.ID
	}
	return nil
}

func (m *Memory) Account(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (m *Memory) accountByIndex(index map[string]uuid.UUID, key string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := index[key]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	return cloneAccount(m.accounts[id]), nil
}

func (m *Memory) AccountByUniqueID(_ context.Context, uniqueID string) (*models.Account, error) {
	return m.accountByIndex(m.uniqueIndex, uniqueID)
}

func (m *Memory) AccountByPhone(_ context.Context, phone string) (*models.Account, error) {
	return m.accountByIndex(m.phoneIndex, phone)
}

func (m *Memory) AccountByReferralCode(_ context.Context, code string) (*models.Account, error) {
	return m.accountByIndex(m.referralIndex, code)
}

func (m *Memory) SetBlocked(_ context.Context, id uuid.UUID, blocked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	a.Blocked = blocked
	return nil
}

func (m *Memory) Transaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}
	return cloneTransaction(t), nil
}

func (m *Memory) TransactionByKey(_ context.Context, key string) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.txByKey[key]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}
	return cloneTransaction(m.transactions[id]), nil
}

func (m *Memory) ListTransactions(_ context.Context, accountID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []models.Transaction
	for i := len(m.txOrder) - 1; i >= 0; i-- { // newest first
		t := m.transactions[m.txOrder[i]]
		if (t.FromAccount != nil && *t.FromAccount == accountID) || (t.ToAccount != nil && *t.ToAccount == accountID) {
			matched = append(matched, *cloneTransaction(t))
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *Memory) KYCApplication(_ context.Context, accountID uuid.UUID) (*models.KYCApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.kyc[accountID]
	if !ok {
		return nil, models.ErrKYCNotFound
	}
	return cloneKYC(app), nil
}

func (m *Memory) ListKYCApplicationsByStatus(_ context.Context, status string, limit, offset int) ([]models.KYCApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.KYCApplication
	for _, app := range m.kyc {
		if app.Status == status {
			out = append(out, *cloneKYC(app))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Withdrawal(_ context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wd, ok := m.withdrawals[id]
	if !ok {
		return nil, models.ErrWithdrawalNotFound
	}
	return cloneWithdrawal(wd), nil
}

func (m *Memory) ListWithdrawalsByAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.WithdrawalRequest
	for i := len(m.wdOrder) - 1; i >= 0; i-- {
		wd := m.withdrawals[m.wdOrder[i]]
		if wd.AccountID == accountID {
			out = append(out, *cloneWithdrawal(wd))
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CreateService(_ context.Context, svc *models.RedeemableService) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[svc.ID] = cloneService(svc)
	return nil
}

func (m *Memory) Service(_ context.Context, id uuid.UUID) (*models.RedeemableService, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[id]
	if !ok {
		return nil, models.ErrServiceUnavailable
	}
	return cloneService(svc), nil
}

func (m *Memory) UpdateService(_ context.Context, svc *models.RedeemableService) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[svc.ID]; !ok {
		return models.ErrServiceUnavailable
	}
	m.services[svc.ID] = cloneService(svc)
	return nil
}

func (m *Memory) ListServices(_ context.Context, activeOnly bool) ([]models.RedeemableService, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.RedeemableService
	for _, svc := range m.services {
		if activeOnly && !svc.Active {
			continue
		}
		out = append(out, *cloneService(svc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) LedgerTotals(_ context.Context) (*LedgerTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	totals := &LedgerTotals{}
	for _, a := range m.accounts {
		totals.BalanceSum += a.Balance
	}
	for _, wd := range m.withdrawals {
		switch wd.Status {
		case domain.WithdrawalPending, domain.WithdrawalApproved, domain.WithdrawalProcessing:
			totals.OutstandingHolds += wd.Amount
		}
	}
	for _, t := range m.transactions {
		if t.Status != domain.TxStatusApplied {
			continue
		}
		switch t.Type {
		case domain.TxTypeDailyReward, domain.TxTypeReferralBonus, domain.TxTypeActivationBonus:
			totals.RewardCredits += t.Amount
		case domain.TxTypeRedemption:
			totals.RedemptionDebits += t.Amount
		case domain.TxTypeWithdrawalSettle:
			totals.SettledAmount += t.Amount
		}
	}
	return totals, nil
}
