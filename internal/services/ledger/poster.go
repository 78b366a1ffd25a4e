package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/enums"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/model"
	pgrepo "github.com/YOLOVibeCode/fieldview-live-sub002/internal/repo/postgres"
)

var (
	ErrValidation = errors.New("validation error")

	// ErrLedgerInconsistency means the entries for a charge do not sum to the
	// owner net. The transaction is aborted; this must reach an operator, not
	// a retry loop.
	ErrLedgerInconsistency = errors.New("ledger entries do not balance")
)

type PaidTransitioner interface {
	MarkPaidWithEntries(
		ctx context.Context,
		purchaseID, providerPaymentID string,
		processorFeeCents, ownerNetCents int64,
		entries []pgrepo.LedgerEntryInput,
		paidAt time.Time,
	) (model.Purchase, error)
}

type EntryStore interface {
	ListByReference(ctx context.Context, referenceID string) ([]model.LedgerEntry, error)
	ListByOwner(ctx context.Context, ownerAccountID string, limit int) ([]model.LedgerEntry, error)
}

type Poster struct {
	purchases PaidTransitioner
	entries   EntryStore
	now       func() time.Time
}

func NewPoster(purchases PaidTransitioner, entries EntryStore) *Poster {
	return &Poster{
		purchases: purchases,
		entries:   entries,
		now:       time.Now,
	}
}

type PostChargeInput struct {
	Purchase          model.Purchase
	OwnerAccountID    string
	ProviderPaymentID string
	PaidAt            time.Time
}

// PostChargeEntries finalizes a charged purchase: the paid transition and the
// three bookkeeping rows land in one atomic unit. The purchase passed in must
// already carry the actual processor fee and the recomputed owner net.
func (p *Poster) PostChargeEntries(ctx context.Context, in PostChargeInput) (model.Purchase, error) {
	if p.purchases == nil {
		return model.Purchase{}, fmt.Errorf("purchase store is nil")
	}
	if strings.TrimSpace(in.Purchase.ID) == "" || strings.TrimSpace(in.ProviderPaymentID) == "" {
		return model.Purchase{}, ErrValidation
	}
	if strings.TrimSpace(in.OwnerAccountID) == "" {
		return model.Purchase{}, ErrValidation
	}

	entries := buildChargeEntries(in.Purchase, in.OwnerAccountID)

	var sum int64
	for _, entry := range entries {
		sum += entry.AmountCents
	}
	if sum != in.Purchase.OwnerNetCents {
		return model.Purchase{}, fmt.Errorf(
			"%w: purchase %s: entries sum %d, owner net %d",
			ErrLedgerInconsistency, in.Purchase.ID, sum, in.Purchase.OwnerNetCents,
		)
	}

	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = p.now().UTC()
	}

	return p.purchases.MarkPaidWithEntries(
		ctx,
		in.Purchase.ID,
		in.ProviderPaymentID,
		in.Purchase.ProcessorFeeCents,
		in.Purchase.OwnerNetCents,
		entries,
		paidAt,
	)
}

func (p *Poster) EntriesByPurchase(ctx context.Context, purchaseID string) ([]model.LedgerEntry, error) {
	if p.entries == nil {
		return nil, fmt.Errorf("entry store is nil")
	}
	if strings.TrimSpace(purchaseID) == "" {
		return nil, ErrValidation
	}
	return p.entries.ListByReference(ctx, purchaseID)
}

func (p *Poster) EntriesByOwner(ctx context.Context, ownerAccountID string, limit int) ([]model.LedgerEntry, error) {
	if p.entries == nil {
		return nil, fmt.Errorf("entry store is nil")
	}
	if strings.TrimSpace(ownerAccountID) == "" {
		return nil, ErrValidation
	}
	return p.entries.ListByOwner(ctx, ownerAccountID, limit)
}

func buildChargeEntries(purchase model.Purchase, ownerAccountID string) []pgrepo.LedgerEntryInput {
	return []pgrepo.LedgerEntryInput{
		{
			OwnerAccountID: ownerAccountID,
			Type:           enums.LedgerEntryTypeCharge,
			AmountCents:    purchase.AmountCents,
		},
		{
			OwnerAccountID: ownerAccountID,
			Type:           enums.LedgerEntryTypePlatformFee,
			AmountCents:    -purchase.PlatformFeeCents,
		},
		{
			OwnerAccountID: ownerAccountID,
			Type:           enums.LedgerEntryTypeProcessorFee,
			AmountCents:    -purchase.ProcessorFeeCents,
		},
	}
}
