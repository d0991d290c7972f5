package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/store"
	"github.com/google/uuid"
)

const qrPayloadType = "payment"

// QRPayload is the JSON carried inside a payment QR code. Image encoding and
// decoding happen on the client; this service only interprets the payload.
type QRPayload struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// ResolverService turns scanned QR payloads and manually entered identifiers
// into transfer recipients. It refuses to hand out references to blocked or
// nonexistent accounts so the ledger never sees an invalid recipient.
type ResolverService struct {
	store store.Store
}

func NewResolverService(st store.Store) *ResolverService {
	return &ResolverService{store: st}
}

// ResolveQR parses and resolves a scanned payload.
func (s *ResolverService) ResolveQR(ctx context.Context, raw []byte) (*models.Account, error) {
	var payload QRPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed qr payload", models.ErrValidation)
	}
	if payload.Type != qrPayloadType {
		return nil, fmt.Errorf("%w: unsupported qr payload type %q", models.ErrValidation, payload.Type)
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return nil, fmt.Errorf("%w: qr payload missing userId", models.ErrValidation)
	}
	return s.resolve(ctx, payload.UserID)
}

// ResolveManual resolves a typed-in identifier, trying the public unique id
// first and falling back to a phone number.
func (s *ResolverService) ResolveManual(ctx context.Context, identifier string) (*models.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is required", models.ErrValidation)
	}
	a, err := s.store.AccountByUniqueID(ctx, identifier)
	if err == nil {
		return checkResolvable(a)
	}
	if !errors.Is(err, models.ErrAccountNotFound) {
		return nil, err
	}
	a, err = s.store.AccountByPhone(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return checkResolvable(a)
}

// MyQRPayload returns the payload an account presents for others to scan.
func (s *ResolverService) MyQRPayload(ctx context.Context, accountID uuid.UUID) (*QRPayload, error) {
	a, err := s.store.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &QRPayload{Type: qrPayloadType, UserID: a.UniqueID, Name: a.Name}, nil
}

func (s *ResolverService) resolve(ctx context.Context, uniqueID string) (*models.Account, error) {
	a, err := s.store.AccountByUniqueID(ctx, uniqueID)
	if err != nil {
		return nil, err
	}
	return checkResolvable(a)
}

func checkResolvable(a *models.Account) (*models.Account, error) {
	if a.Blocked {
		return nil, models.ErrAccountBlocked
	}
	return a, nil
}
