package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/observability"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RewardService issues daily login, activation, and referral credits, and
// handles catalog redemptions. All accrual amounts come from the injected
// schedule, never from request payloads.
type RewardService struct {
	store    store.Store
	schedule domain.RewardSchedule
	notifier Notifier
}

func NewRewardService(st store.Store, schedule domain.RewardSchedule, notifier Notifier) *RewardService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &RewardService{store: st, schedule: schedule, notifier: notifier}
}

// GrantDailyLogin credits the tier-dependent daily reward at most once per
// UTC calendar day. The lastRewardDate marker is advanced in the same
// transaction as the credit, before it, so two concurrent logins cannot both
// win. Returns the credit and true when one was issued.
func (s *RewardService) GrantDailyLogin(ctx context.Context, accountID uuid.UUID, now time.Time) (*models.Transaction, bool, error) {
	day := now.UTC().Format("2006-01-02")

	var (
		result  *models.Transaction
		granted bool
	)
	err := s.store.RunInTx(ctx, []uuid.UUID{accountID}, func(tx store.Tx) error {
		a, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if a.LastRewardDate == day {
			return nil
		}
		if err := tx.SetLastRewardDate(ctx, accountID, day); err != nil {
			return err
		}
		amount := s.schedule.DailyFor(a.Tier)
		key := fmt.Sprintf("daily:%s:%s", accountID, day)
		result, err = creditInTx(ctx, tx, accountID, amount, domain.TxTypeDailyReward, "daily login reward", key)
		if err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if granted {
		observability.IncrementRewardIssued(domain.TxTypeDailyReward)
		s.notifier.TransactionApplied(result)
	}
	return result, granted, nil
}

// HandleActivationCompleted consumes a verified activation event from the
// payment gateway. It flips the activation flag, credits the activation
// bonus, and credits the referrer exactly once. The idempotency keys are
// derived from the account and the referral edge, so a redelivered event
// replays instead of re-crediting.
func (s *RewardService) HandleActivationCompleted(ctx context.Context, accountID uuid.UUID) error {
	a, err := s.store.Account(ctx, accountID)
	if err != nil {
		return err
	}

	lockIDs := []uuid.UUID{accountID}
	if a.ReferredBy != nil {
		lockIDs = append(lockIDs, *a.ReferredBy)
	}

	var issued []*models.Transaction
	err = s.store.RunInTx(ctx, lockIDs, func(tx store.Tx) error {
		issued = issued[:0]
		locked, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if !locked.Activated {
			if err := tx.SetActivated(ctx, accountID, true); err != nil {
				return err
			}
		}
		if s.schedule.ActivationBonus > 0 {
			key := fmt.Sprintf("activation:%s", accountID)
			tr, err := creditInTx(ctx, tx, accountID, s.schedule.ActivationBonus, domain.TxTypeActivationBonus, "activation bonus", key)
			if err != nil {
				return err
			}
			issued = append(issued, tr)
		}
		if locked.ReferredBy != nil && s.schedule.ReferralBonus > 0 {
			key := fmt.Sprintf("referral:%s:%s", locked.ReferredBy, accountID)
			tr, err := creditInTx(ctx, tx, *locked.ReferredBy, s.schedule.ReferralBonus, domain.TxTypeReferralBonus, "referral bonus", key)
			if err != nil {
				// The referrer row may be gone; the referred account's
				// activation must still stand.
				if errors.Is(err, models.ErrAccountNotFound) {
					zap.L().Warn("referrer missing, skipping referral bonus",
						zap.String("referrer_id", locked.ReferredBy.String()),
						zap.String("referred_id", accountID.String()),
					)
					return nil
				}
				return err
			}
			issued = append(issued, tr)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, tr := range issued {
		observability.IncrementRewardIssued(tr.Type)
		s.notifier.TransactionApplied(tr)
	}
	zap.L().Info("activation completed", zap.String("account_id", accountID.String()))
	return nil
}

// Redeem debits the account for a catalog service. The price and active flag
// are re-read inside the transaction; a quote captured earlier in the session
// is rejected if it no longer matches.
func (s *RewardService) Redeem(ctx context.Context, accountID, serviceID uuid.UUID, quotedPrice int64, key string) (*models.Transaction, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", models.ErrValidation)
	}

	var result *models.Transaction
	err := s.store.RunInTx(ctx, []uuid.UUID{accountID}, func(tx store.Tx) error {
		svc, err := tx.ServiceByID(ctx, serviceID)
		if err != nil {
			return err
		}
		if !svc.Active {
			return models.ErrServiceUnavailable
		}
		if quotedPrice != svc.PointsRequired {
			return models.ErrPriceChanged
		}
		result, err = debitInTx(ctx, tx, accountID, svc.PointsRequired, domain.TxTypeRedemption, "redeem: "+svc.Name, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifier.TransactionApplied(result)
	return result, nil
}

// ---- redeemable service catalog (admin) ----

func (s *RewardService) CreateService(ctx context.Context, name string, pointsRequired int64) (*models.RedeemableService, error) {
	if name == "" || pointsRequired <= 0 {
		return nil, fmt.Errorf("%w: name and a positive price are required", models.ErrValidation)
	}
	svc := &models.RedeemableService{
		ID:             uuid.New(),
		Name:           name,
		PointsRequired: pointsRequired,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateService(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *RewardService) UpdateService(ctx context.Context, id uuid.UUID, name string, pointsRequired int64, active bool) (*models.RedeemableService, error) {
	svc, err := s.store.Service(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		svc.Name = name
	}
	if pointsRequired > 0 {
		svc.PointsRequired = pointsRequired
	}
	svc.Active = active
	if err := s.store.UpdateService(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *RewardService) ListServices(ctx context.Context, activeOnly bool) ([]models.RedeemableService, error) {
	return s.store.ListServices(ctx, activeOnly)
}
