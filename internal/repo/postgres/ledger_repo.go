package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/model"
)

var ErrDuplicateLedgerEntry = errors.New("ledger entry already posted for this purchase")

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const ledgerColumns = `
	id,
	reference_id,
	owner_account_id,
	entry_type,
	amount_cents,
	created_at`

func (r *LedgerRepo) ListByReference(ctx context.Context, referenceID string) ([]model.LedgerEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(referenceID) == "" {
		return nil, fmt.Errorf("invalid reference id")
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+ledgerColumns+`
FROM ledger_entries
WHERE reference_id = $1
ORDER BY created_at, id
`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries by reference: %w", err)
	}
	defer rows.Close()

	return collectLedgerEntries(rows)
}

func (r *LedgerRepo) ListByOwner(ctx context.Context, ownerAccountID string, limit int) ([]model.LedgerEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(ownerAccountID) == "" {
		return nil, fmt.Errorf("invalid owner account id")
	}
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	rows, err := r.pool.Query(ctx, `
SELECT`+ledgerColumns+`
FROM ledger_entries
WHERE owner_account_id = $1
ORDER BY created_at DESC, id
LIMIT $2
`, ownerAccountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries by owner: %w", err)
	}
	defer rows.Close()

	return collectLedgerEntries(rows)
}

func (r *LedgerRepo) SumByReference(ctx context.Context, referenceID string) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(referenceID) == "" {
		return 0, fmt.Errorf("invalid reference id")
	}

	var sum int64
	if err := r.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(amount_cents), 0)
FROM ledger_entries
WHERE reference_id = $1
`, referenceID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}

	return sum, nil
}

// insertLedgerEntriesTx appends entries inside the caller's transaction. The
// partial unique index on (reference_id, entry_type) for charge rows turns a
// double post into ErrDuplicateLedgerEntry instead of corrupt books.
func insertLedgerEntriesTx(ctx context.Context, tx pgx.Tx, referenceID string, entries []LedgerEntryInput) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	for _, entry := range entries {
		if strings.TrimSpace(entry.OwnerAccountID) == "" || entry.Type == "" {
			return fmt.Errorf("invalid ledger entry payload")
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO ledger_entries (
	id,
	reference_id,
	owner_account_id,
	entry_type,
	amount_cents,
	created_at
) VALUES ($1, $2, $3, $4, $5, NOW())
`, uuid.NewString(), referenceID, entry.OwnerAccountID, string(entry.Type), entry.AmountCents); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicateLedgerEntry
			}
			return fmt.Errorf("insert ledger entry %s: %w", entry.Type, err)
		}
	}

	return nil
}

func collectLedgerEntries(rows pgx.Rows) ([]model.LedgerEntry, error) {
	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(
			&e.ID,
			&e.ReferenceID,
			&e.OwnerAccountID,
			&e.Type,
			&e.AmountCents,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}

	return out, nil
}
