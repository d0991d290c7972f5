package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountService owns account lifecycle: signup, lookup, blocking.
type AccountService struct {
	store    store.Store
	validate *validator.Validate
}

func NewAccountService(st store.Store) *AccountService {
	return &AccountService{
		store:    st,
		validate: validator.New(),
	}
}

// CreateAccountInput is the signup payload.
type CreateAccountInput struct {
	Name         string `json:"name" validate:"required,min=2,max=100"`
	Phone        string `json:"phone" validate:"required,e164"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// Create registers a new account. A referral code, when given, must resolve
// to an existing account; the back-reference is stored so the referrer can be
// credited when this account later activates.
func (s *AccountService) Create(ctx context.Context, in CreateAccountInput) (*models.Account, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err)
	}

	var referredBy *uuid.UUID
	if code := strings.TrimSpace(in.ReferralCode); code != "" {
		referrer, err := s.store.AccountByReferralCode(ctx, code)
		if err != nil {
			if errors.Is(err, models.ErrAccountNotFound) {
				return nil, fmt.Errorf("%w: unknown referral code", models.ErrValidation)
			}
			return nil, err
		}
		referredBy = &referrer.ID
	}

	account := &models.Account{
		ID:           uuid.New(),
		UniqueID:     newUniqueID(),
		Name:         strings.TrimSpace(in.Name),
		Phone:        in.Phone,
		Role:         domain.RoleUser,
		Balance:      0,
		Tier:         domain.TierOf(0),
		KYCStatus:    domain.KYCNotSubmitted,
		ReferralCode: newReferralCode(),
		ReferredBy:   referredBy,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	zap.L().Info("account created",
		zap.String("account_id", account.ID.String()),
		zap.String("unique_id", account.UniqueID),
		zap.Bool("referred", referredBy != nil),
	)
	return account, nil
}

func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.store.Account(ctx, id)
}

func (s *AccountService) GetByPhone(ctx context.Context, phone string) (*models.Account, error) {
	return s.store.AccountByPhone(ctx, phone)
}

// SetBlocked flips the administrative block flag. A blocked account keeps
// receiving credits but cannot send value.
func (s *AccountService) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	if err := s.store.SetBlocked(ctx, id, blocked); err != nil {
		return err
	}
	zap.L().Warn("account block flag changed",
		zap.String("account_id", id.String()),
		zap.Bool("blocked", blocked),
	)
	return nil
}

const uniqueIDDigits = 10

// newUniqueID produces the public-facing numeric handle shown in QR payloads
// and manual lookups. Collisions surface as ErrDuplicateAccount on insert and
// the caller can retry signup.
func newUniqueID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	n := binary.BigEndian.Uint64(buf[:]) % 1e10
	return fmt.Sprintf("%0*d", uniqueIDDigits, n)
}

const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newReferralCode() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = referralAlphabet[int(b)%len(referralAlphabet)]
	}
	return string(out)
}
