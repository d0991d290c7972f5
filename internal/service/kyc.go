package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var kycTransitions = map[string]map[string]struct{}{
	domain.KYCNotSubmitted: {
		domain.KYCPending: {},
	},
	domain.KYCPending: {
		domain.KYCApproved: {},
		domain.KYCRejected: {},
	},
	domain.KYCRejected: {
		domain.KYCPending: {},
	},
	// approved is terminal
	domain.KYCApproved: {},
}

func kycCanTransition(current, next string) bool {
	nextStates, ok := kycTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// KYCService drives the verification state machine. Ledger gating reads the
// resulting status off the account; it never mutates it.
type KYCService struct {
	store store.Store
}

func NewKYCService(st store.Store) *KYCService {
	return &KYCService{store: st}
}

// SubmitInput is the user-facing application payload.
type SubmitInput struct {
	FullName     string   `json:"full_name"`
	Address      string   `json:"address"`
	DocumentRefs []string `json:"document_refs"`
}

// Submit files or refiles an application, moving the account to pending. An
// approved account cannot resubmit; a pending one must wait for review.
func (s *KYCService) Submit(ctx context.Context, accountID uuid.UUID, in SubmitInput) (*models.KYCApplication, error) {
	if strings.TrimSpace(in.FullName) == "" {
		return nil, fmt.Errorf("%w: full_name is required", models.ErrValidation)
	}
	if len(in.DocumentRefs) == 0 {
		return nil, fmt.Errorf("%w: at least one document reference is required", models.ErrValidation)
	}

	var result *models.KYCApplication
	err := s.store.RunInTx(ctx, []uuid.UUID{accountID}, func(tx store.Tx) error {
		a, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		switch a.KYCStatus {
		case domain.KYCApproved:
			return models.ErrKYCAlreadyApproved
		case domain.KYCPending:
			return models.ErrKYCPending
		}
		if !kycCanTransition(a.KYCStatus, domain.KYCPending) {
			return fmt.Errorf("invalid kyc transition: %s -> %s", a.KYCStatus, domain.KYCPending)
		}

		now := time.Now().UTC()
		app, err := tx.KYCApplicationForUpdate(ctx, accountID)
		if errors.Is(err, models.ErrKYCNotFound) {
			app = &models.KYCApplication{
				ID:        uuid.New(),
				AccountID: accountID,
				CreatedAt: now,
			}
		} else if err != nil {
			return err
		}
		app.FullName = strings.TrimSpace(in.FullName)
		app.Address = strings.TrimSpace(in.Address)
		app.DocumentRefs = in.DocumentRefs
		app.Status = domain.KYCPending
		app.RejectionReason = ""
		app.UpdatedAt = now

		if err := tx.SaveKYCApplication(ctx, app); err != nil {
			return err
		}
		if err := tx.SetKYCStatus(ctx, accountID, domain.KYCPending); err != nil {
			return err
		}
		result = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("kyc application submitted", zap.String("account_id", accountID.String()))
	return result, nil
}

// Approve moves a pending application to approved, the terminal state.
func (s *KYCService) Approve(ctx context.Context, accountID uuid.UUID) (*models.KYCApplication, error) {
	return s.review(ctx, accountID, domain.KYCApproved, "")
}

// Reject moves a pending application to rejected. A non-empty reason is
// required; the user may resubmit afterward.
func (s *KYCService) Reject(ctx context.Context, accountID uuid.UUID, reason string) (*models.KYCApplication, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", models.ErrValidation)
	}
	return s.review(ctx, accountID, domain.KYCRejected, strings.TrimSpace(reason))
}

func (s *KYCService) review(ctx context.Context, accountID uuid.UUID, next, reason string) (*models.KYCApplication, error) {
	var result *models.KYCApplication
	err := s.store.RunInTx(ctx, []uuid.UUID{accountID}, func(tx store.Tx) error {
		app, err := tx.KYCApplicationForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if !kycCanTransition(app.Status, next) {
			return fmt.Errorf("%w: cannot review application in state %q", models.ErrValidation, app.Status)
		}
		app.Status = next
		app.RejectionReason = reason
		app.UpdatedAt = time.Now().UTC()

		if err := tx.SaveKYCApplication(ctx, app); err != nil {
			return err
		}
		if err := tx.SetKYCStatus(ctx, accountID, next); err != nil {
			return err
		}
		result = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("kyc application reviewed",
		zap.String("account_id", accountID.String()),
		zap.String("status", next),
	)
	return result, nil
}

// Application returns the account's current application.
func (s *KYCService) Application(ctx context.Context, accountID uuid.UUID) (*models.KYCApplication, error) {
	return s.store.KYCApplication(ctx, accountID)
}

// PendingApplications lists the admin review queue.
func (s *KYCService) PendingApplications(ctx context.Context, limit, offset int) ([]models.KYCApplication, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListKYCApplicationsByStatus(ctx, domain.KYCPending, limit, offset)
}
