package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/enums"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/model"
)

var (
	ErrPurchaseNotFound   = errors.New("purchase not found")
	ErrPurchaseNotPayable = errors.New("purchase is not payable")
)

const purchaseColumns = `
	id,
	game_id,
	viewer_id,
	amount_cents,
	currency,
	platform_fee_cents,
	processor_fee_cents,
	owner_net_cents,
	status,
	provider_payment_id,
	needs_reconciliation,
	created_at,
	paid_at,
	failed_at`

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

type CreatePurchaseInput struct {
	GameID            string
	ViewerID          string
	AmountCents       int64
	Currency          string
	PlatformFeeCents  int64
	ProcessorFeeCents int64
	OwnerNetCents     int64
}

func (r *PurchaseRepo) Create(ctx context.Context, in CreatePurchaseInput) (model.Purchase, error) {
	if r.pool == nil {
		return model.Purchase{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(in.GameID) == "" || strings.TrimSpace(in.ViewerID) == "" || in.AmountCents <= 0 {
		return model.Purchase{}, fmt.Errorf("invalid purchase create payload")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "USD"
	}

	purchaseID := uuid.NewString()
	p, err := scanPurchase(r.pool.QueryRow(ctx, `
INSERT INTO purchases (
	id,
	game_id,
	viewer_id,
	amount_cents,
	currency,
	platform_fee_cents,
	processor_fee_cents,
	owner_net_cents,
	status,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'created', NOW(), NOW())
RETURNING`+purchaseColumns+`
`, purchaseID, in.GameID, in.ViewerID, in.AmountCents, currency,
		in.PlatformFeeCents, in.ProcessorFeeCents, in.OwnerNetCents))
	if err != nil {
		return model.Purchase{}, fmt.Errorf("create purchase: %w", err)
	}

	return p, nil
}

func (r *PurchaseRepo) FindByID(ctx context.Context, purchaseID string) (model.Purchase, error) {
	if r.pool == nil {
		return model.Purchase{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(purchaseID) == "" {
		return model.Purchase{}, fmt.Errorf("invalid purchase id")
	}

	p, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT`+purchaseColumns+`
FROM purchases
WHERE id = $1
LIMIT 1
`, purchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Purchase{}, ErrPurchaseNotFound
		}
		return model.Purchase{}, fmt.Errorf("find purchase by id: %w", err)
	}

	return p, nil
}

// ClaimForProcessing is the exclusive-claim gate: it moves a purchase from
// created to processing, or refreshes a processing claim whose lease expired
// more than leaseTTL ago. Any other state fails with ErrPurchaseNotPayable.
// The returned reclaimed flag tells the caller a previous attempt may have
// already charged the processor.
func (r *PurchaseRepo) ClaimForProcessing(ctx context.Context, purchaseID string, leaseTTL time.Duration) (model.Purchase, bool, error) {
	if r.pool == nil {
		return model.Purchase{}, false, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(purchaseID) == "" {
		return model.Purchase{}, false, fmt.Errorf("invalid purchase id")
	}
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Minute
	}

	var (
		out       model.Purchase
		reclaimed bool
	)
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		var (
			p         model.Purchase
			claimedAt *time.Time
		)
		row := tx.QueryRow(txCtx, `
SELECT`+purchaseColumns+`, claimed_at
FROM purchases
WHERE id = $1
FOR UPDATE
`, purchaseID)
		if err := scanPurchaseWithClaim(row, &p, &claimedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPurchaseNotFound
			}
			return fmt.Errorf("lock purchase for claim: %w", err)
		}

		switch p.Status {
		case enums.PurchaseStatusCreated:
			reclaimed = false
		case enums.PurchaseStatusProcessing:
			if claimedAt == nil || time.Since(*claimedAt) < leaseTTL {
				return ErrPurchaseNotPayable
			}
			reclaimed = true
		default:
			return ErrPurchaseNotPayable
		}

		updated, err := scanPurchase(tx.QueryRow(txCtx, `
UPDATE purchases
SET
	status = 'processing',
	claimed_at = NOW(),
	updated_at = NOW()
WHERE id = $1
RETURNING`+purchaseColumns+`
`, purchaseID))
		if err != nil {
			return fmt.Errorf("claim purchase: %w", err)
		}

		out = updated
		return nil
	})
	if err != nil {
		return model.Purchase{}, false, err
	}

	return out, reclaimed, nil
}

// ReleaseClaim reverts a processing purchase to created so a new payment
// source can be tried. It is a no-op for purchases in any other state.
func (r *PurchaseRepo) ReleaseClaim(ctx context.Context, purchaseID string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(purchaseID) == "" {
		return fmt.Errorf("invalid purchase id")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE purchases
SET
	status = 'created',
	claimed_at = NULL,
	updated_at = NOW()
WHERE id = $1
  AND status = 'processing'
`, purchaseID); err != nil {
		return fmt.Errorf("release purchase claim: %w", err)
	}

	return nil
}

type LedgerEntryInput struct {
	OwnerAccountID string
	Type           enums.LedgerEntryType
	AmountCents    int64
}

// MarkPaidWithEntries performs the paid transition and the ledger posting as a
// single transaction: either the purchase becomes paid with its entries
// written, or nothing changes. Only a processing purchase can transition.
func (r *PurchaseRepo) MarkPaidWithEntries(
	ctx context.Context,
	purchaseID, providerPaymentID string,
	processorFeeCents, ownerNetCents int64,
	entries []LedgerEntryInput,
	paidAt time.Time,
) (model.Purchase, error) {
	if r.pool == nil {
		return model.Purchase{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(purchaseID) == "" || strings.TrimSpace(providerPaymentID) == "" {
		return model.Purchase{}, fmt.Errorf("invalid mark paid payload")
	}
	if len(entries) == 0 {
		return model.Purchase{}, fmt.Errorf("ledger entries are required for paid transition")
	}
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	var out model.Purchase
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		updated, err := scanPurchase(tx.QueryRow(txCtx, `
UPDATE purchases
SET
	status = 'paid',
	provider_payment_id = $2,
	processor_fee_cents = $3,
	owner_net_cents = $4,
	needs_reconciliation = FALSE,
	paid_at = $5,
	claimed_at = NULL,
	updated_at = NOW()
WHERE id = $1
  AND status = 'processing'
RETURNING`+purchaseColumns+`
`, purchaseID, providerPaymentID, processorFeeCents, ownerNetCents, paidAt.UTC()))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPurchaseNotPayable
			}
			return fmt.Errorf("mark purchase paid: %w", err)
		}

		if err := insertLedgerEntriesTx(txCtx, tx, purchaseID, entries); err != nil {
			return err
		}

		out = updated
		return nil
	})
	if err != nil {
		return model.Purchase{}, err
	}

	return out, nil
}

// FlagForReconciliation records that a charge may have succeeded at the
// processor while the local paid transition failed. The purchase stays in
// processing; the reconcile sweep owns it from here.
func (r *PurchaseRepo) FlagForReconciliation(ctx context.Context, purchaseID string, providerPaymentID *string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(purchaseID) == "" {
		return fmt.Errorf("invalid purchase id")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE purchases
SET
	needs_reconciliation = TRUE,
	provider_payment_id = COALESCE($2, provider_payment_id),
	updated_at = NOW()
WHERE id = $1
  AND status = 'processing'
`, purchaseID, providerPaymentID); err != nil {
		return fmt.Errorf("flag purchase for reconciliation: %w", err)
	}

	return nil
}

// ListStuckProcessing returns purchases holding a processing claim older than
// the cutoff, plus any explicitly flagged for reconciliation.
func (r *PurchaseRepo) ListStuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]model.Purchase, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+purchaseColumns+`
FROM purchases
WHERE status = 'processing'
  AND (needs_reconciliation OR claimed_at < $1)
ORDER BY created_at
LIMIT $2
`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck purchases: %w", err)
	}
	defer rows.Close()

	var out []model.Purchase
	for rows.Next() {
		var p model.Purchase
		if err := rows.Scan(
			&p.ID,
			&p.GameID,
			&p.ViewerID,
			&p.AmountCents,
			&p.Currency,
			&p.PlatformFeeCents,
			&p.ProcessorFeeCents,
			&p.OwnerNetCents,
			&p.Status,
			&p.ProviderPaymentID,
			&p.NeedsReconciliation,
			&p.CreatedAt,
			&p.PaidAt,
			&p.FailedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stuck purchase: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stuck purchases: %w", err)
	}

	return out, nil
}

func scanPurchase(row pgx.Row) (model.Purchase, error) {
	var p model.Purchase
	if err := row.Scan(
		&p.ID,
		&p.GameID,
		&p.ViewerID,
		&p.AmountCents,
		&p.Currency,
		&p.PlatformFeeCents,
		&p.ProcessorFeeCents,
		&p.OwnerNetCents,
		&p.Status,
		&p.ProviderPaymentID,
		&p.NeedsReconciliation,
		&p.CreatedAt,
		&p.PaidAt,
		&p.FailedAt,
	); err != nil {
		return model.Purchase{}, err
	}
	return p, nil
}

func scanPurchaseWithClaim(row pgx.Row, p *model.Purchase, claimedAt **time.Time) error {
	return row.Scan(
		&p.ID,
		&p.GameID,
		&p.ViewerID,
		&p.AmountCents,
		&p.Currency,
		&p.PlatformFeeCents,
		&p.ProcessorFeeCents,
		&p.OwnerNetCents,
		&p.Status,
		&p.ProviderPaymentID,
		&p.NeedsReconciliation,
		&p.CreatedAt,
		&p.PaidAt,
		&p.FailedAt,
		claimedAt,
	)
}
