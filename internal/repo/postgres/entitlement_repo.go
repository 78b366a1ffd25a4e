package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/model"
)

var ErrEntitlementNotFound = errors.New("entitlement not found")

type EntitlementRepo struct {
	pool *pgxpool.Pool
}

func NewEntitlementRepo(pool *pgxpool.Pool) *EntitlementRepo {
	return &EntitlementRepo{pool: pool}
}

const entitlementColumns = `
	token_id,
	purchase_id,
	game_id,
	status,
	created_at,
	revoked_at`

// Insert persists a freshly minted entitlement. The partial unique index on
// purchase_id for active rows guarantees at most one active entitlement per
// purchase; on conflict the existing row is returned with created=false.
func (r *EntitlementRepo) Insert(ctx context.Context, tokenID, purchaseID, gameID string) (model.Entitlement, bool, error) {
	if r.pool == nil {
		return model.Entitlement{}, false, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(tokenID) == "" || strings.TrimSpace(purchaseID) == "" || strings.TrimSpace(gameID) == "" {
		return model.Entitlement{}, false, fmt.Errorf("invalid entitlement payload")
	}

	ent, err := scanEntitlement(r.pool.QueryRow(ctx, `
INSERT INTO entitlements (
	token_id,
	purchase_id,
	game_id,
	status,
	created_at
) VALUES ($1, $2, $3, 'active', NOW())
RETURNING`+entitlementColumns+`
`, tokenID, purchaseID, gameID))
	if err == nil {
		return ent, true, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return model.Entitlement{}, false, fmt.Errorf("insert entitlement: %w", err)
	}

	existing, err := r.FindActiveByPurchase(ctx, purchaseID)
	if err != nil {
		return model.Entitlement{}, false, err
	}
	return existing, false, nil
}

func (r *EntitlementRepo) FindActiveByPurchase(ctx context.Context, purchaseID string) (model.Entitlement, error) {
	if r.pool == nil {
		return model.Entitlement{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(purchaseID) == "" {
		return model.Entitlement{}, fmt.Errorf("invalid purchase id")
	}

	ent, err := scanEntitlement(r.pool.QueryRow(ctx, `
SELECT`+entitlementColumns+`
FROM entitlements
WHERE purchase_id = $1
  AND status = 'active'
LIMIT 1
`, purchaseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Entitlement{}, ErrEntitlementNotFound
		}
		return model.Entitlement{}, fmt.Errorf("find active entitlement: %w", err)
	}

	return ent, nil
}

func (r *EntitlementRepo) FindByToken(ctx context.Context, tokenID string) (model.Entitlement, error) {
	if r.pool == nil {
		return model.Entitlement{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(tokenID) == "" {
		return model.Entitlement{}, fmt.Errorf("invalid token id")
	}

	ent, err := scanEntitlement(r.pool.QueryRow(ctx, `
SELECT`+entitlementColumns+`
FROM entitlements
WHERE token_id = $1
LIMIT 1
`, tokenID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Entitlement{}, ErrEntitlementNotFound
		}
		return model.Entitlement{}, fmt.Errorf("find entitlement by token: %w", err)
	}

	return ent, nil
}

func (r *EntitlementRepo) Revoke(ctx context.Context, tokenID string, now time.Time) (model.Entitlement, error) {
	if r.pool == nil {
		return model.Entitlement{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(tokenID) == "" {
		return model.Entitlement{}, fmt.Errorf("invalid token id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ent, err := scanEntitlement(r.pool.QueryRow(ctx, `
UPDATE entitlements
SET
	status = 'revoked',
	revoked_at = $2
WHERE token_id = $1
  AND status = 'active'
RETURNING`+entitlementColumns+`
`, tokenID, now.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Entitlement{}, ErrEntitlementNotFound
		}
		return model.Entitlement{}, fmt.Errorf("revoke entitlement: %w", err)
	}

	return ent, nil
}

func scanEntitlement(row pgx.Row) (model.Entitlement, error) {
	var ent model.Entitlement
	if err := row.Scan(
		&ent.TokenID,
		&ent.PurchaseID,
		&ent.GameID,
		&ent.Status,
		&ent.CreatedAt,
		&ent.RevokedAt,
	); err != nil {
		return model.Entitlement{}, err
	}
	return ent, nil
}
