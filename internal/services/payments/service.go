package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/enums"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/model"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/infra/processor"
	pgrepo "github.com/YOLOVibeCode/fieldview-live-sub002/internal/repo/postgres"
	entsvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/entitlements"
	feesvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/fees"
	ledgersvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/ledger"
	vaultsvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/vault"
)

var (
	ErrValidation           = errors.New("validation error")
	ErrPurchaseNotFound     = errors.New("purchase not found")
	ErrGameNotFound         = errors.New("game not found")
	ErrCredentialsMissing   = errors.New("seller has no payable destination")
	ErrNotPayable           = errors.New("purchase is not payable")
	ErrProcessorDeclined    = errors.New("payment declined")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
)

type PurchaseStore interface {
	Create(ctx context.Context, in pgrepo.CreatePurchaseInput) (model.Purchase, error)
	FindByID(ctx context.Context, purchaseID string) (model.Purchase, error)
	ClaimForProcessing(ctx context.Context, purchaseID string, leaseTTL time.Duration) (model.Purchase, bool, error)
	ReleaseClaim(ctx context.Context, purchaseID string) error
	FlagForReconciliation(ctx context.Context, purchaseID string, providerPaymentID *string) error
}

type LedgerPoster interface {
	PostChargeEntries(ctx context.Context, in ledgersvc.PostChargeInput) (model.Purchase, error)
}

type EntitlementIssuer interface {
	Issue(ctx context.Context, purchase model.Purchase) (model.Entitlement, error)
	FindForPurchase(ctx context.Context, purchaseID string) (model.Entitlement, error)
}

type ProcessorGateway interface {
	Charge(ctx context.Context, req processor.ChargeRequest) (processor.ChargeResult, error)
	LookupPayment(ctx context.Context, merchantAccessToken, idempotencyKey string) (processor.ChargeResult, bool, error)
}

type OwnerResolver interface {
	FindByGame(ctx context.Context, gameID string) (pgrepo.GameOwnerRecord, error)
}

type CredentialVault interface {
	MerchantCredentials(ctx context.Context, ownerAccountID string) (vaultsvc.Credentials, error)
}

type StatusSnapshot struct {
	Status           string `json:"status"`
	EntitlementToken string `json:"entitlement_token,omitempty"`
}

type StatusCache interface {
	GetStatus(ctx context.Context, purchaseID string) (StatusSnapshot, bool)
	SetStatus(ctx context.Context, purchaseID string, snap StatusSnapshot)
	Invalidate(ctx context.Context, purchaseID string)
}

type Config struct {
	DefaultPlatformPercent float64
	ClaimLeaseTTL          time.Duration
	ChargeTimeout          time.Duration
}

type Dependencies struct {
	Purchases    PurchaseStore
	Ledger       LedgerPoster
	Entitlements EntitlementIssuer
	Gateway      ProcessorGateway
	Owners       OwnerResolver
	Vault        CredentialVault
	Fees         *feesvc.Calculator
	Logger       *zap.Logger
}

type Service struct {
	purchases    PurchaseStore
	ledger       LedgerPoster
	entitlements EntitlementIssuer
	gateway      ProcessorGateway
	owners       OwnerResolver
	vault        CredentialVault
	fees         *feesvc.Calculator
	cache        StatusCache
	cfg          Config
	logger       *zap.Logger
	now          func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.DefaultPlatformPercent <= 0 {
		cfg.DefaultPlatformPercent = feesvc.DefaultPlatformPercent
	}
	if cfg.ClaimLeaseTTL <= 0 {
		cfg.ClaimLeaseTTL = 2 * time.Minute
	}
	if cfg.ChargeTimeout <= 0 {
		cfg.ChargeTimeout = 10 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	calc := deps.Fees
	if calc == nil {
		calc = feesvc.NewCalculator()
	}

	return &Service{
		purchases:    deps.Purchases,
		ledger:       deps.Ledger,
		entitlements: deps.Entitlements,
		gateway:      deps.Gateway,
		owners:       deps.Owners,
		vault:        deps.Vault,
		fees:         calc,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) AttachStatusCache(cache StatusCache) {
	s.cache = cache
}

type CreateInput struct {
	GameID     string
	ViewerID   string
	GrossCents int64
	Currency   string
}

type CreateResult struct {
	PurchaseID        string
	GameID            string
	AmountCents       int64
	Currency          string
	PlatformFeeCents  int64
	ProcessorFeeCents int64
	OwnerNetCents     int64
	Status            string
}

// CreatePurchase fixes the gross amount and the fee split at checkout time.
// The seller must already have a payable destination; a later charge never
// starts for an owner with no credentials.
func (s *Service) CreatePurchase(ctx context.Context, in CreateInput) (CreateResult, error) {
	if s.purchases == nil || s.owners == nil || s.vault == nil {
		return CreateResult{}, fmt.Errorf("payments dependencies are not configured")
	}

	gameID := strings.TrimSpace(in.GameID)
	viewerID := strings.TrimSpace(in.ViewerID)
	if gameID == "" || viewerID == "" {
		return CreateResult{}, ErrValidation
	}

	owner, err := s.owners.FindByGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrGameOwnerNotFound) {
			return CreateResult{}, ErrGameNotFound
		}
		return CreateResult{}, err
	}

	if _, err := s.vault.MerchantCredentials(ctx, owner.OwnerAccountID); err != nil {
		if errors.Is(err, vaultsvc.ErrCredentialsMissing) {
			return CreateResult{}, ErrCredentialsMissing
		}
		return CreateResult{}, err
	}

	percent := s.cfg.DefaultPlatformPercent
	if owner.PlatformFeePercent != nil {
		percent = *owner.PlatformFeePercent
	}

	split, err := s.fees.Split(in.GrossCents, percent)
	if err != nil {
		return CreateResult{}, err
	}

	purchase, err := s.purchases.Create(ctx, pgrepo.CreatePurchaseInput{
		GameID:            gameID,
		ViewerID:          viewerID,
		AmountCents:       in.GrossCents,
		Currency:          in.Currency,
		PlatformFeeCents:  split.PlatformFeeCents,
		ProcessorFeeCents: split.ProcessorFeeCents,
		OwnerNetCents:     split.OwnerNetCents,
	})
	if err != nil {
		return CreateResult{}, err
	}

	return CreateResult{
		PurchaseID:        purchase.ID,
		GameID:            purchase.GameID,
		AmountCents:       purchase.AmountCents,
		Currency:          purchase.Currency,
		PlatformFeeCents:  purchase.PlatformFeeCents,
		ProcessorFeeCents: purchase.ProcessorFeeCents,
		OwnerNetCents:     purchase.OwnerNetCents,
		Status:            string(purchase.Status),
	}, nil
}

type ProcessResult struct {
	PurchaseID       string
	Status           string
	EntitlementToken string
}

// ProcessPurchase drives one checkout attempt end to end: claim, charge,
// post, issue. The created->processing compare-and-swap is the only mutual
// exclusion; the purchase id doubles as the processor idempotency key so a
// retry can never charge the card twice.
func (s *Service) ProcessPurchase(ctx context.Context, purchaseID, sourceToken string) (ProcessResult, error) {
	if s.purchases == nil || s.ledger == nil || s.entitlements == nil || s.gateway == nil {
		return ProcessResult{}, fmt.Errorf("payments dependencies are not configured")
	}

	purchaseID = strings.TrimSpace(purchaseID)
	sourceToken = strings.TrimSpace(sourceToken)
	if purchaseID == "" || sourceToken == "" {
		return ProcessResult{}, ErrValidation
	}

	purchase, reclaimed, err := s.purchases.ClaimForProcessing(ctx, purchaseID, s.cfg.ClaimLeaseTTL)
	if err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrPurchaseNotFound):
			return ProcessResult{}, ErrPurchaseNotFound
		case errors.Is(err, pgrepo.ErrPurchaseNotPayable):
			return ProcessResult{}, ErrNotPayable
		default:
			return ProcessResult{}, err
		}
	}

	owner, creds, err := s.resolvePayableOwner(ctx, purchase.GameID)
	if err != nil {
		s.releaseClaim(ctx, purchaseID)
		return ProcessResult{}, err
	}

	result, charged, err := s.obtainCharge(ctx, purchase, reclaimed, sourceToken, creds)
	if err != nil {
		return ProcessResult{}, err
	}
	if !charged {
		// Declined: the claim goes back so a different card can be tried.
		s.releaseClaim(ctx, purchaseID)
		reason := result.DeclineReason
		if reason == "" {
			reason = "card declined"
		}
		return ProcessResult{}, fmt.Errorf("%w: %s", ErrProcessorDeclined, reason)
	}

	return s.finalizePaid(ctx, purchase, owner.OwnerAccountID, result)
}

func (s *Service) resolvePayableOwner(ctx context.Context, gameID string) (pgrepo.GameOwnerRecord, vaultsvc.Credentials, error) {
	owner, err := s.owners.FindByGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrGameOwnerNotFound) {
			return pgrepo.GameOwnerRecord{}, vaultsvc.Credentials{}, ErrGameNotFound
		}
		return pgrepo.GameOwnerRecord{}, vaultsvc.Credentials{}, err
	}

	creds, err := s.vault.MerchantCredentials(ctx, owner.OwnerAccountID)
	if err != nil {
		if errors.Is(err, vaultsvc.ErrCredentialsMissing) {
			return pgrepo.GameOwnerRecord{}, vaultsvc.Credentials{}, ErrCredentialsMissing
		}
		return pgrepo.GameOwnerRecord{}, vaultsvc.Credentials{}, err
	}

	return owner, creds, nil
}

// obtainCharge returns the approved charge for the purchase, either by finding
// one the processor already executed (reclaimed lease or recorded payment id)
// or by executing a new one. charged=false means an explicit decline.
func (s *Service) obtainCharge(
	ctx context.Context,
	purchase model.Purchase,
	reclaimed bool,
	sourceToken string,
	creds vaultsvc.Credentials,
) (processor.ChargeResult, bool, error) {
	if reclaimed || purchase.ProviderPaymentID != nil {
		existing, found, err := s.gateway.LookupPayment(ctx, creds.AccessToken, purchase.ID)
		if err != nil {
			// Unknown processor-side state: keep the claim and flag rather
			// than risking a second real-world charge on a blind retry.
			s.flagForReconciliation(ctx, purchase.ID, nil)
			if errors.Is(err, processor.ErrUnavailable) {
				return processor.ChargeResult{}, false, ErrProcessorUnavailable
			}
			return processor.ChargeResult{}, false, err
		}
		if found && existing.Approved {
			s.logger.Info("recovered existing processor charge",
				zap.String("purchase_id", purchase.ID),
				zap.String("provider_payment_id", existing.PaymentID),
			)
			return existing, true, nil
		}
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.cfg.ChargeTimeout)
	defer cancel()

	result, err := s.gateway.Charge(chargeCtx, processor.ChargeRequest{
		SourceToken:         sourceToken,
		AmountCents:         purchase.AmountCents,
		Currency:            purchase.Currency,
		IdempotencyKey:      purchase.ID,
		MerchantAccessToken: creds.AccessToken,
		MerchantLocationID:  creds.LocationID,
	})
	if err != nil {
		s.releaseClaim(ctx, purchase.ID)
		if errors.Is(err, processor.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return processor.ChargeResult{}, false, ErrProcessorUnavailable
		}
		return processor.ChargeResult{}, false, err
	}

	if !result.Approved {
		return result, false, nil
	}
	return result, true, nil
}

func (s *Service) finalizePaid(
	ctx context.Context,
	purchase model.Purchase,
	ownerAccountID string,
	charge processor.ChargeResult,
) (ProcessResult, error) {
	// The processor's reported fee replaces the checkout estimate; the owner
	// net is recomputed so the books balance against what actually happened.
	if charge.ProcessorFeeCents > 0 {
		purchase.ProcessorFeeCents = charge.ProcessorFeeCents
	}
	purchase.OwnerNetCents = feesvc.Rebalance(purchase.AmountCents, purchase.PlatformFeeCents, purchase.ProcessorFeeCents)

	updated, err := s.ledger.PostChargeEntries(ctx, ledgersvc.PostChargeInput{
		Purchase:          purchase,
		OwnerAccountID:    ownerAccountID,
		ProviderPaymentID: charge.PaymentID,
		PaidAt:            s.now().UTC(),
	})
	if err != nil {
		// The card was charged but the local transition failed. Leave the
		// purchase in processing with the payment id recorded; the reconcile
		// sweep completes or escalates it. Reverting to created here would
		// invite a second real-world charge.
		s.flagForReconciliation(ctx, purchase.ID, &charge.PaymentID)
		if errors.Is(err, ledgersvc.ErrLedgerInconsistency) {
			s.logger.Error("ledger inconsistency on paid transition",
				zap.String("purchase_id", purchase.ID),
				zap.String("provider_payment_id", charge.PaymentID),
				zap.Error(err),
			)
			return ProcessResult{}, err
		}
		return ProcessResult{}, fmt.Errorf("finalize paid purchase %s: %w", purchase.ID, err)
	}

	s.invalidateStatus(ctx, purchase.ID)

	ent, err := s.entitlements.Issue(ctx, updated)
	if err != nil {
		// The purchase is durably paid; a status poll re-attaches the token
		// once the entitlement store recovers.
		s.logger.Error("issue entitlement after paid transition",
			zap.String("purchase_id", purchase.ID),
			zap.Error(err),
		)
		return ProcessResult{}, fmt.Errorf("issue entitlement for purchase %s: %w", purchase.ID, err)
	}

	return ProcessResult{
		PurchaseID:       updated.ID,
		Status:           string(updated.Status),
		EntitlementToken: ent.TokenID,
	}, nil
}

type StatusResult struct {
	PurchaseID       string
	Status           string
	EntitlementToken string
}

func (s *Service) GetStatus(ctx context.Context, purchaseID string) (StatusResult, error) {
	if s.purchases == nil {
		return StatusResult{}, fmt.Errorf("purchase store is nil")
	}

	purchaseID = strings.TrimSpace(purchaseID)
	if purchaseID == "" {
		return StatusResult{}, ErrValidation
	}

	if s.cache != nil {
		if snap, ok := s.cache.GetStatus(ctx, purchaseID); ok {
			return StatusResult{
				PurchaseID:       purchaseID,
				Status:           snap.Status,
				EntitlementToken: snap.EntitlementToken,
			}, nil
		}
	}

	purchase, err := s.purchases.FindByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPurchaseNotFound) {
			return StatusResult{}, ErrPurchaseNotFound
		}
		return StatusResult{}, err
	}

	out := StatusResult{
		PurchaseID: purchase.ID,
		Status:     string(purchase.Status),
	}
	if purchase.Status == enums.PurchaseStatusPaid && s.entitlements != nil {
		ent, err := s.entitlements.FindForPurchase(ctx, purchase.ID)
		if err == nil {
			out.EntitlementToken = ent.TokenID
		} else if !errors.Is(err, entsvc.ErrNotFound) {
			return StatusResult{}, err
		}
	}

	if s.cache != nil {
		s.cache.SetStatus(ctx, purchaseID, StatusSnapshot{
			Status:           out.Status,
			EntitlementToken: out.EntitlementToken,
		})
	}

	return out, nil
}

func (s *Service) releaseClaim(ctx context.Context, purchaseID string) {
	if err := s.purchases.ReleaseClaim(ctx, purchaseID); err != nil {
		s.logger.Warn("release purchase claim", zap.String("purchase_id", purchaseID), zap.Error(err))
	}
	s.invalidateStatus(ctx, purchaseID)
}

func (s *Service) flagForReconciliation(ctx context.Context, purchaseID string, providerPaymentID *string) {
	if err := s.purchases.FlagForReconciliation(ctx, purchaseID, providerPaymentID); err != nil {
		s.logger.Error("flag purchase for reconciliation", zap.String("purchase_id", purchaseID), zap.Error(err))
	}
	s.invalidateStatus(ctx, purchaseID)
}

func (s *Service) invalidateStatus(ctx context.Context, purchaseID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, purchaseID)
	}
}
