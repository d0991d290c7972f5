package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the deployment Store. Per-account serialization comes from
// SELECT ... FOR UPDATE row locks; RunInTx acquires them in ascending
// account-id order so opposing transfers cannot deadlock.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres wraps a pgx pool.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const txRetryAttempts = 3

// RunInTx implements Store. Serialization and deadlock failures are retried
// internally up to txRetryAttempts so callers never see them.
func (p *Postgres) RunInTx(ctx context.Context, lockIDs []uuid.UUID, fn func(tx Tx) error) error {
	ids := append([]uuid.UUID(nil), lockIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var lastErr error
	for attempt := 0; attempt < txRetryAttempts; attempt++ {
		err := p.runOnce(ctx, ids, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", lastErr)
}

func (p *Postgres) runOnce(ctx context.Context, sortedIDs []uuid.UUID, fn func(tx Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, id := range sortedIDs {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrAccountNotFound
			}
			return fmt.Errorf("lock account %s: %w", id, err)
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

type pgTx struct {
	tx pgx.Tx
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const accountColumns = `id, unique_id, name, phone, role, balance, tier, kyc_status,
	activated, blocked, referral_code, referred_by, last_reward_date, created_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.UniqueID, &a.Name, &a.Phone, &a.Role, &a.Balance, &a.Tier,
		&a.KYCStatus, &a.Activated, &a.Blocked, &a.ReferralCode, &a.ReferredBy,
		&a.LastRewardDate, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (t *pgTx) AccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateBalance(ctx context.Context, id uuid.UUID, balance int64, tier string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE accounts SET balance = $1, tier = $2 WHERE id = $3`, balance, tier, id)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return requireOneRow(tag, "update balance")
}

func (t *pgTx) SetLastRewardDate(ctx context.Context, id uuid.UUID, day string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE accounts SET last_reward_date = $1 WHERE id = $2`, day, id)
	if err != nil {
		return fmt.Errorf("set last reward date: %w", err)
	}
	return requireOneRow(tag, "set last reward date")
}

func (t *pgTx) SetActivated(ctx context.Context, id uuid.UUID, activated bool) error {
	tag, err := t.tx.Exec(ctx, `UPDATE accounts SET activated = $1 WHERE id = $2`, activated, id)
	if err != nil {
		return fmt.Errorf("set activated: %w", err)
	}
	return requireOneRow(tag, "set activated")
}

func (t *pgTx) SetKYCStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE accounts SET kyc_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set kyc status: %w", err)
	}
	return requireOneRow(tag, "set kyc status")
}

const transactionColumns = `id, key, type, from_account, to_account, amount, status, note, created_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var tr models.Transaction
	err := row.Scan(&tr.ID, &tr.Key, &tr.Type, &tr.FromAccount, &tr.ToAccount,
		&tr.Amount, &tr.Status, &tr.Note, &tr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return &tr, nil
}

func transactionByKey(ctx context.Context, q rowQuerier, key string) (*models.Transaction, error) {
	return scanTransaction(q.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE key = $1`, key))
}

func (t *pgTx) TransactionByKey(ctx context.Context, key string) (*models.Transaction, error) {
	return transactionByKey(ctx, t.tx, key)
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *models.Transaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO transactions (id, key, type, from_account, to_account, amount, status, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tr.ID, tr.Key, tr.Type, tr.FromAccount, tr.ToAccount, tr.Amount, tr.Status, tr.Note, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

const kycColumns = `id, account_id, full_name, address, document_refs, status, rejection_reason, created_at, updated_at`

func scanKYC(row pgx.Row) (*models.KYCApplication, error) {
	var app models.KYCApplication
	err := row.Scan(&app.ID, &app.AccountID, &app.FullName, &app.Address, &app.DocumentRefs,
		&app.Status, &app.RejectionReason, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrKYCNotFound
		}
		return nil, fmt.Errorf("scan kyc application: %w", err)
	}
	return &app, nil
}

func (t *pgTx) KYCApplicationForUpdate(ctx context.Context, accountID uuid.UUID) (*models.KYCApplication, error) {
	return scanKYC(t.tx.QueryRow(ctx,
		`SELECT `+kycColumns+` FROM kyc_applications WHERE account_id = $1 FOR UPDATE`, accountID))
}

func (t *pgTx) SaveKYCApplication(ctx context.Context, app *models.KYCApplication) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO kyc_applications (id, account_id, full_name, address, document_refs, status, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			address = EXCLUDED.address,
			document_refs = EXCLUDED.document_refs,
			status = EXCLUDED.status,
			rejection_reason = EXCLUDED.rejection_reason,
			updated_at = EXCLUDED.updated_at`,
		app.ID, app.AccountID, app.FullName, app.Address, app.DocumentRefs,
		app.Status, app.RejectionReason, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save kyc application: %w", err)
	}
	return nil
}

const withdrawalColumns = `id, account_id, amount, bank_account_name, bank_account_number, bank_ifsc,
	bank_name, status, payout_id, reason, idempotency_key, reserve_tx_id, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(&w.ID, &w.AccountID, &w.Amount, &w.BankDetails.AccountName,
		&w.BankDetails.AccountNumber, &w.BankDetails.IFSC, &w.BankDetails.BankName,
		&w.Status, &w.PayoutID, &w.Reason, &w.IdempotencyKey, &w.ReserveTxID,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("scan withdrawal: %w", err)
	}
	return &w, nil
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, wd *models.WithdrawalRequest) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO withdrawal_requests (id, account_id, amount, bank_account_name, bank_account_number,
			bank_ifsc, bank_name, status, payout_id, reason, idempotency_key, reserve_tx_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		wd.ID, wd.AccountID, wd.Amount, wd.BankDetails.AccountName, wd.BankDetails.AccountNumber,
		wd.BankDetails.IFSC, wd.BankDetails.BankName, wd.Status, wd.PayoutID, wd.Reason,
		wd.IdempotencyKey, wd.ReserveTxID, wd.CreatedAt, wd.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

func (t *pgTx) WithdrawalForUpdate(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return scanWithdrawal(t.tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) WithdrawalByKey(ctx context.Context, key string) (*models.WithdrawalRequest, error) {
	return scanWithdrawal(t.tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE idempotency_key = $1`, key))
}

func (t *pgTx) UpdateWithdrawal(ctx context.Context, wd *models.WithdrawalRequest) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = $1, payout_id = $2, reason = $3, updated_at = NOW()
		WHERE id = $4`,
		wd.Status, wd.PayoutID, wd.Reason, wd.ID)
	if err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}
	return requireOneRow(tag, "update withdrawal")
}

func collectWithdrawals(rows pgx.Rows) ([]models.WithdrawalRequest, error) {
	defer rows.Close()
	var out []models.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (t *pgTx) ListWithdrawalsByStatus(ctx context.Context, status string, limit int) ([]models.WithdrawalRequest, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status = $1 ORDER BY created_at LIMIT $2
		FOR UPDATE SKIP LOCKED`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals by status: %w", err)
	}
	return collectWithdrawals(rows)
}

func (t *pgTx) ListProcessingWithdrawalsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.WithdrawalRequest, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status = 'processing' AND updated_at < $1 ORDER BY updated_at LIMIT $2
		FOR UPDATE SKIP LOCKED`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale processing withdrawals: %w", err)
	}
	return collectWithdrawals(rows)
}

const serviceColumns = `id, name, points_required, active, created_at`

func scanService(row pgx.Row) (*models.RedeemableService, error) {
	var s models.RedeemableService
	err := row.Scan(&s.ID, &s.Name, &s.PointsRequired, &s.Active, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrServiceUnavailable
		}
		return nil, fmt.Errorf("scan service: %w", err)
	}
	return &s, nil
}

func (t *pgTx) ServiceByID(ctx context.Context, id uuid.UUID) (*models.RedeemableService, error) {
	return scanService(t.tx.QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
}

// ---- plain (non-transactional) reads and admin writes ----

func (p *Postgres) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO accounts (id, unique_id, name, phone, role, balance, tier, kyc_status,
			activated, blocked, referral_code, referred_by, last_reward_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.UniqueID, a.Name, a.Phone, a.Role, a.Balance, a.Tier, a.KYCStatus,
		a.Activated, a.Blocked, a.ReferralCode, a.ReferredBy, a.LastRewardDate, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.ErrDuplicateAccount
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (p *Postgres) Account(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(p.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (p *Postgres) AccountByUniqueID(ctx context.Context, uniqueID string) (*models.Account, error) {
	return scanAccount(p.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE unique_id = $1`, uniqueID))
}

func (p *Postgres) AccountByPhone(ctx context.Context, phone string) (*models.Account, error) {
	return scanAccount(p.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone = $1`, phone))
}

func (p *Postgres) AccountByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	return scanAccount(p.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1`, code))
}

func (p *Postgres) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	tag, err := p.db.Exec(ctx, `UPDATE accounts SET blocked = $1 WHERE id = $2`, blocked, id)
	if err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

func (p *Postgres) Transaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(p.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (p *Postgres) TransactionByKey(ctx context.Context, key string) (*models.Transaction, error) {
	return transactionByKey(ctx, p.db, key)
}

func (p *Postgres) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE from_account = $1 OR to_account = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

func (p *Postgres) KYCApplication(ctx context.Context, accountID uuid.UUID) (*models.KYCApplication, error) {
	return scanKYC(p.db.QueryRow(ctx, `SELECT `+kycColumns+` FROM kyc_applications WHERE account_id = $1`, accountID))
}

func (p *Postgres) ListKYCApplicationsByStatus(ctx context.Context, status string, limit, offset int) ([]models.KYCApplication, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+kycColumns+` FROM kyc_applications
		WHERE status = $1 ORDER BY created_at LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list kyc applications: %w", err)
	}
	defer rows.Close()
	var out []models.KYCApplication
	for rows.Next() {
		app, err := scanKYC(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *app)
	}
	return out, rows.Err()
}

func (p *Postgres) Withdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return scanWithdrawal(p.db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id))
}

func (p *Postgres) ListWithdrawalsByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	return collectWithdrawals(rows)
}

func (p *Postgres) CreateService(ctx context.Context, svc *models.RedeemableService) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO services (id, name, points_required, active, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		svc.ID, svc.Name, svc.PointsRequired, svc.Active, svc.CreatedAt)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

func (p *Postgres) Service(ctx context.Context, id uuid.UUID) (*models.RedeemableService, error) {
	return scanService(p.db.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
}

func (p *Postgres) UpdateService(ctx context.Context, svc *models.RedeemableService) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE services SET name = $1, points_required = $2, active = $3 WHERE id = $4`,
		svc.Name, svc.PointsRequired, svc.Active, svc.ID)
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrServiceUnavailable
	}
	return nil
}

func (p *Postgres) ListServices(ctx context.Context, activeOnly bool) ([]models.RedeemableService, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+serviceColumns+` FROM services WHERE ($1 = false OR active) ORDER BY name`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()
	var out []models.RedeemableService
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *svc)
	}
	return out, rows.Err()
}

// LedgerTotals reads all sums in one repeatable-read transaction so the
// snapshot is internally consistent.
func (p *Postgres) LedgerTotals(ctx context.Context) (*LedgerTotals, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin totals transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	totals := &LedgerTotals{}
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0) FROM accounts`).Scan(&totals.BalanceSum); err != nil {
		return nil, fmt.Errorf("sum balances: %w", err)
	}
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM withdrawal_requests
		WHERE status IN ('pending', 'approved', 'processing')`).Scan(&totals.OutstandingHolds); err != nil {
		return nil, fmt.Errorf("sum outstanding holds: %w", err)
	}
	err = tx.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type IN ('daily_reward', 'referral_bonus', 'activation_bonus')), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'redemption'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'withdrawal_settle'), 0)
		FROM transactions WHERE status = 'applied'`).
		Scan(&totals.RewardCredits, &totals.RedemptionDebits, &totals.SettledAmount)
	if err != nil {
		return nil, fmt.Errorf("sum transaction totals: %w", err)
	}
	return totals, tx.Commit(ctx)
}

func requireOneRow(tag pgconn.CommandTag, operation string) error {
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%s affected %d rows", operation, tag.RowsAffected())
	}
	return nil
}
