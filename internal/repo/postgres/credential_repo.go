package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrCredentialsNotFound = errors.New("merchant credentials not found")

// CredentialRepo stores sealed merchant credential blobs. Encryption and
// decryption happen in the vault service; this repo never sees plaintext.
type CredentialRepo struct {
	pool *pgxpool.Pool
}

type SealedCredentials struct {
	OwnerAccountID string
	Nonce          []byte
	Ciphertext     []byte
	UpdatedAt      time.Time
}

func NewCredentialRepo(pool *pgxpool.Pool) *CredentialRepo {
	return &CredentialRepo{pool: pool}
}

func (r *CredentialRepo) Upsert(ctx context.Context, sealed SealedCredentials) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(sealed.OwnerAccountID) == "" || len(sealed.Nonce) == 0 || len(sealed.Ciphertext) == 0 {
		return fmt.Errorf("invalid sealed credentials payload")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO merchant_credentials (
	owner_account_id,
	nonce,
	ciphertext,
	updated_at
) VALUES ($1, $2, $3, NOW())
ON CONFLICT (owner_account_id) DO UPDATE
SET
	nonce = EXCLUDED.nonce,
	ciphertext = EXCLUDED.ciphertext,
	updated_at = NOW()
`, sealed.OwnerAccountID, sealed.Nonce, sealed.Ciphertext); err != nil {
		return fmt.Errorf("upsert merchant credentials: %w", err)
	}

	return nil
}

func (r *CredentialRepo) Find(ctx context.Context, ownerAccountID string) (SealedCredentials, error) {
	if r.pool == nil {
		return SealedCredentials{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(ownerAccountID) == "" {
		return SealedCredentials{}, fmt.Errorf("invalid owner account id")
	}

	var sealed SealedCredentials
	if err := r.pool.QueryRow(ctx, `
SELECT owner_account_id, nonce, ciphertext, updated_at
FROM merchant_credentials
WHERE owner_account_id = $1
LIMIT 1
`, ownerAccountID).Scan(
		&sealed.OwnerAccountID,
		&sealed.Nonce,
		&sealed.Ciphertext,
		&sealed.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SealedCredentials{}, ErrCredentialsNotFound
		}
		return SealedCredentials{}, fmt.Errorf("find merchant credentials: %w", err)
	}

	return sealed, nil
}
