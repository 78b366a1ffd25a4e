package entitlements

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/enums"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/model"
	pgrepo "github.com/YOLOVibeCode/fieldview-live-sub002/internal/repo/postgres"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrPurchaseNotPaid = errors.New("purchase is not paid")
	ErrNotFound        = errors.New("entitlement not found")
)

type Store interface {
	Insert(ctx context.Context, tokenID, purchaseID, gameID string) (model.Entitlement, bool, error)
	FindActiveByPurchase(ctx context.Context, purchaseID string) (model.Entitlement, error)
	FindByToken(ctx context.Context, tokenID string) (model.Entitlement, error)
	Revoke(ctx context.Context, tokenID string, now time.Time) (model.Entitlement, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// Issue mints the access token for a paid purchase. Re-issue is idempotent:
// an existing active entitlement is returned unchanged, so a retried
// processPurchase call hands back the same token.
func (s *Service) Issue(ctx context.Context, purchase model.Purchase) (model.Entitlement, error) {
	if s.store == nil {
		return model.Entitlement{}, fmt.Errorf("entitlement store is nil")
	}
	if strings.TrimSpace(purchase.ID) == "" || strings.TrimSpace(purchase.GameID) == "" {
		return model.Entitlement{}, ErrValidation
	}
	if purchase.Status != enums.PurchaseStatusPaid {
		return model.Entitlement{}, ErrPurchaseNotPaid
	}

	existing, err := s.store.FindActiveByPurchase(ctx, purchase.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgrepo.ErrEntitlementNotFound) {
		return model.Entitlement{}, err
	}

	tokenID, err := mintTokenID()
	if err != nil {
		return model.Entitlement{}, err
	}

	ent, _, err := s.store.Insert(ctx, tokenID, purchase.ID, purchase.GameID)
	if err != nil {
		return model.Entitlement{}, err
	}

	return ent, nil
}

func (s *Service) FindForPurchase(ctx context.Context, purchaseID string) (model.Entitlement, error) {
	if s.store == nil {
		return model.Entitlement{}, fmt.Errorf("entitlement store is nil")
	}
	if strings.TrimSpace(purchaseID) == "" {
		return model.Entitlement{}, ErrValidation
	}

	ent, err := s.store.FindActiveByPurchase(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrEntitlementNotFound) {
			return model.Entitlement{}, ErrNotFound
		}
		return model.Entitlement{}, err
	}

	return ent, nil
}

func (s *Service) Revoke(ctx context.Context, tokenID string) (model.Entitlement, error) {
	if s.store == nil {
		return model.Entitlement{}, fmt.Errorf("entitlement store is nil")
	}
	if strings.TrimSpace(tokenID) == "" {
		return model.Entitlement{}, ErrValidation
	}

	ent, err := s.store.Revoke(ctx, tokenID, s.now().UTC())
	if err != nil {
		if errors.Is(err, pgrepo.ErrEntitlementNotFound) {
			return model.Entitlement{}, ErrNotFound
		}
		return model.Entitlement{}, err
	}

	return ent, nil
}

func mintTokenID() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("mint entitlement token: %w", err)
	}
	return "ent_" + hex.EncodeToString(raw), nil
}
