package vault

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	pgrepo "github.com/YOLOVibeCode/fieldview-live-sub002/internal/repo/postgres"
)

var (
	ErrCredentialsMissing = errors.New("merchant credentials missing")
	ErrInvalidKey         = errors.New("vault key must be 32 bytes of hex")
)

// Credentials is a seller's payable destination at the card processor.
// Decrypted per call and never cached in process memory.
type Credentials struct {
	AccessToken string `json:"access_token"`
	LocationID  string `json:"location_id"`
}

type SealedStore interface {
	Upsert(ctx context.Context, sealed pgrepo.SealedCredentials) error
	Find(ctx context.Context, ownerAccountID string) (pgrepo.SealedCredentials, error)
}

type Service struct {
	store SealedStore
	key   [32]byte
}

func NewService(store SealedStore, hexKey string) (*Service, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}

	svc := &Service{store: store}
	copy(svc.key[:], raw)
	return svc, nil
}

func (s *Service) Put(ctx context.Context, ownerAccountID string, creds Credentials) error {
	if s.store == nil {
		return fmt.Errorf("sealed credential store is nil")
	}
	if strings.TrimSpace(ownerAccountID) == "" || strings.TrimSpace(creds.AccessToken) == "" {
		return fmt.Errorf("invalid credentials payload")
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nil, plaintext, &nonce, &s.key)
	return s.store.Upsert(ctx, pgrepo.SealedCredentials{
		OwnerAccountID: ownerAccountID,
		Nonce:          nonce[:],
		Ciphertext:     sealed,
	})
}

func (s *Service) MerchantCredentials(ctx context.Context, ownerAccountID string) (Credentials, error) {
	if s.store == nil {
		return Credentials{}, fmt.Errorf("sealed credential store is nil")
	}
	if strings.TrimSpace(ownerAccountID) == "" {
		return Credentials{}, fmt.Errorf("invalid owner account id")
	}

	sealed, err := s.store.Find(ctx, ownerAccountID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrCredentialsNotFound) {
			return Credentials{}, ErrCredentialsMissing
		}
		return Credentials{}, err
	}

	if len(sealed.Nonce) != 24 {
		return Credentials{}, fmt.Errorf("sealed credentials have invalid nonce")
	}
	var nonce [24]byte
	copy(nonce[:], sealed.Nonce)

	plaintext, ok := secretbox.Open(nil, sealed.Ciphertext, &nonce, &s.key)
	if !ok {
		return Credentials{}, fmt.Errorf("open sealed credentials for owner %s", ownerAccountID)
	}

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return Credentials{}, fmt.Errorf("unmarshal credentials: %w", err)
	}
	if strings.TrimSpace(creds.AccessToken) == "" {
		return Credentials{}, ErrCredentialsMissing
	}

	return creds, nil
}
