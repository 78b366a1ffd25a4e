package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/model"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/infra/processor"
	pgrepo "github.com/YOLOVibeCode/fieldview-live-sub002/internal/repo/postgres"
	feesvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/fees"
	ledgersvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/ledger"
	vaultsvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/vault"
)

type stuckPurchaseStore interface {
	ListStuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]model.Purchase, error)
	ReleaseClaim(ctx context.Context, purchaseID string) error
}

type ledgerPoster interface {
	PostChargeEntries(ctx context.Context, in ledgersvc.PostChargeInput) (model.Purchase, error)
}

type entitlementIssuer interface {
	Issue(ctx context.Context, purchase model.Purchase) (model.Entitlement, error)
}

type processorGateway interface {
	LookupPayment(ctx context.Context, merchantAccessToken, idempotencyKey string) (processor.ChargeResult, bool, error)
}

type ownerResolver interface {
	FindByGame(ctx context.Context, gameID string) (pgrepo.GameOwnerRecord, error)
}

type credentialVault interface {
	MerchantCredentials(ctx context.Context, ownerAccountID string) (vaultsvc.Credentials, error)
}

type reportWriter interface {
	PutReport(ctx context.Context, key string, report Report) error
}

// Job sweeps purchases that a crashed or partially failed worker left in
// processing. The processor is the source of truth: a charge that actually
// happened gets completed locally, a charge that never happened gets its
// claim released so the viewer can retry.
type Job struct {
	purchases    stuckPurchaseStore
	ledger       ledgerPoster
	entitlements entitlementIssuer
	gateway      processorGateway
	owners       ownerResolver
	vault        credentialVault
	reports      reportWriter
	stuckAfter   time.Duration
	batchLimit   int
	now          func() time.Time
	logger       *zap.Logger
}

type Dependencies struct {
	Purchases    stuckPurchaseStore
	Ledger       ledgerPoster
	Entitlements entitlementIssuer
	Gateway      processorGateway
	Owners       ownerResolver
	Vault        credentialVault
}

func New(deps Dependencies, stuckAfter time.Duration, batchLimit int, logger *zap.Logger) *Job {
	if stuckAfter <= 0 {
		stuckAfter = 10 * time.Minute
	}
	if batchLimit <= 0 {
		batchLimit = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		purchases:    deps.Purchases,
		ledger:       deps.Ledger,
		entitlements: deps.Entitlements,
		gateway:      deps.Gateway,
		owners:       deps.Owners,
		vault:        deps.Vault,
		stuckAfter:   stuckAfter,
		batchLimit:   batchLimit,
		now:          time.Now,
		logger:       logger,
	}
}

func (j *Job) AttachReportStore(store reportWriter) {
	j.reports = store
}

type Report struct {
	RanAt     time.Time      `json:"ran_at"`
	Swept     int            `json:"swept"`
	Completed []string       `json:"completed,omitempty"`
	Released  []string       `json:"released,omitempty"`
	Deferred  []DeferredItem `json:"deferred,omitempty"`
}

type DeferredItem struct {
	PurchaseID string `json:"purchase_id"`
	Reason     string `json:"reason"`
}

func (j *Job) Run(ctx context.Context) error {
	if j.purchases == nil || j.gateway == nil || j.ledger == nil || j.entitlements == nil {
		return fmt.Errorf("reconcile dependencies are not configured")
	}

	cutoff := j.now().Add(-j.stuckAfter)
	stuck, err := j.purchases.ListStuckProcessing(ctx, cutoff, j.batchLimit)
	if err != nil {
		return fmt.Errorf("list stuck purchases: %w", err)
	}
	if len(stuck) == 0 {
		return nil
	}

	report := Report{RanAt: j.now().UTC(), Swept: len(stuck)}

	for _, purchase := range stuck {
		action, err := j.reconcileOne(ctx, purchase)
		switch {
		case err != nil:
			report.Deferred = append(report.Deferred, DeferredItem{
				PurchaseID: purchase.ID,
				Reason:     err.Error(),
			})
			j.logger.Warn("defer stuck purchase",
				zap.String("purchase_id", purchase.ID),
				zap.Error(err),
			)
		case action == actionCompleted:
			report.Completed = append(report.Completed, purchase.ID)
		case action == actionReleased:
			report.Released = append(report.Released, purchase.ID)
		}
	}

	j.logger.Info("reconcile sweep completed",
		zap.Int("swept", report.Swept),
		zap.Int("completed", len(report.Completed)),
		zap.Int("released", len(report.Released)),
		zap.Int("deferred", len(report.Deferred)),
	)

	if j.reports != nil {
		key := fmt.Sprintf("reconcile/%s.json", report.RanAt.Format("2006-01-02T15-04-05Z"))
		if err := j.reports.PutReport(ctx, key, report); err != nil {
			j.logger.Warn("export reconcile report", zap.String("key", key), zap.Error(err))
		}
	}

	return nil
}

type sweepAction int

const (
	actionCompleted sweepAction = iota
	actionReleased
)

func (j *Job) reconcileOne(ctx context.Context, purchase model.Purchase) (sweepAction, error) {
	owner, err := j.owners.FindByGame(ctx, purchase.GameID)
	if err != nil {
		return 0, fmt.Errorf("resolve game owner: %w", err)
	}

	creds, err := j.vault.MerchantCredentials(ctx, owner.OwnerAccountID)
	if err != nil {
		return 0, fmt.Errorf("load merchant credentials: %w", err)
	}

	charge, found, err := j.gateway.LookupPayment(ctx, creds.AccessToken, purchase.ID)
	if err != nil {
		return 0, fmt.Errorf("lookup payment: %w", err)
	}

	if !found || !charge.Approved {
		// No money moved. Safe to hand the purchase back for a fresh attempt.
		if err := j.purchases.ReleaseClaim(ctx, purchase.ID); err != nil {
			return 0, fmt.Errorf("release claim: %w", err)
		}
		return actionReleased, nil
	}

	if charge.ProcessorFeeCents > 0 {
		purchase.ProcessorFeeCents = charge.ProcessorFeeCents
	}
	purchase.OwnerNetCents = feesvc.Rebalance(purchase.AmountCents, purchase.PlatformFeeCents, purchase.ProcessorFeeCents)

	updated, err := j.ledger.PostChargeEntries(ctx, ledgersvc.PostChargeInput{
		Purchase:          purchase,
		OwnerAccountID:    owner.OwnerAccountID,
		ProviderPaymentID: charge.PaymentID,
		PaidAt:            j.now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("complete paid transition: %w", err)
	}

	if _, err := j.entitlements.Issue(ctx, updated); err != nil {
		// The paid transition is durable; the next sweep or a status poll
		// picks the entitlement up.
		j.logger.Error("issue entitlement during reconcile",
			zap.String("purchase_id", purchase.ID),
			zap.Error(err),
		)
	}

	return actionCompleted, nil
}
