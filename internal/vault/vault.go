package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/ortaizi/sync-service/internal/domain"
	"github.com/ortaizi/sync-service/internal/security"
)

// ErrStorage marks a credential-store failure. Storing a credential is
// security sensitive: the error is surfaced to the sign-in attempt, never
// retried silently.
var ErrStorage = errors.New("credential storage failed")

var ErrNoCredential = errors.New("no credential on record")

type CredentialStore interface {
	UpsertCredential(ctx context.Context, c domain.InstitutionCredential) error
	FindCredential(ctx context.Context, userID primitive.ObjectID, institutionID string) (*domain.InstitutionCredential, error)
	FindActiveCredential(ctx context.Context, userID primitive.ObjectID) (*domain.InstitutionCredential, error)
	RevokeCredential(ctx context.Context, userID primitive.ObjectID, institutionID string) error
}

// ClaimsCache invalidates the cached dual-stage flag when a credential
// changes. Optional; nil disables invalidation (and the cache).
type ClaimsCache interface {
	DelDualStage(ctx context.Context, userID string) error
}

// Vault is the only writer of InstitutionCredential rows. It encrypts the
// secret before it ever reaches the store.
type Vault struct {
	cipher *security.Cipher
	store  CredentialStore
	cache  ClaimsCache
	log    *zap.Logger
}

func New(cipher *security.Cipher, store CredentialStore, cache ClaimsCache, log *zap.Logger) *Vault {
	return &Vault{cipher: cipher, store: store, cache: cache, log: log}
}

// Upsert encrypts and writes the one credential row for (user, institution).
// Called only after a successful live verification against the institution.
func (v *Vault) Upsert(ctx context.Context, userID primitive.ObjectID, institutionID, username, secret string) error {
	encrypted, err := v.cipher.Encrypt([]byte(secret))
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}
	cred := domain.InstitutionCredential{
		UserID:          userID,
		InstitutionID:   institutionID,
		Username:        username,
		EncryptedSecret: encrypted,
		IsVerified:      true,
		IsActive:        true,
		LastVerifiedAt:  time.Now().UTC(),
	}
	if err := v.store.UpsertCredential(ctx, cred); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	v.invalidate(ctx, userID)
	return nil
}

// IsValid reports whether a verified, active credential exists.
func (v *Vault) IsValid(ctx context.Context, userID primitive.ObjectID, institutionID string) (bool, error) {
	c, err := v.store.FindCredential(ctx, userID, institutionID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return c.Valid(), nil
}

// Active returns the user's verified+active credential row (no plaintext).
func (v *Vault) Active(ctx context.Context, userID primitive.ObjectID) (*domain.InstitutionCredential, error) {
	c, err := v.store.FindActiveCredential(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return c, nil
}

// Plaintext decrypts the stored secret for the sync worker path.
func (v *Vault) Plaintext(ctx context.Context, userID primitive.ObjectID, institutionID string) (username, secret string, err error) {
	c, err := v.store.FindCredential(ctx, userID, institutionID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !c.Valid() {
		return "", "", ErrNoCredential
	}
	plain, err := v.cipher.Decrypt(c.EncryptedSecret)
	if err != nil {
		return "", "", fmt.Errorf("decrypt credential: %w", err)
	}
	return c.Username, string(plain), nil
}

// Revoke deactivates the credential and drops the cached dual-stage flag so
// the next claims refresh sees the revocation.
func (v *Vault) Revoke(ctx context.Context, userID primitive.ObjectID, institutionID string) error {
	if err := v.store.RevokeCredential(ctx, userID, institutionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	v.invalidate(ctx, userID)
	return nil
}

func (v *Vault) invalidate(ctx context.Context, userID primitive.ObjectID) {
	if v.cache == nil {
		return
	}
	if err := v.cache.DelDualStage(ctx, userID.Hex()); err != nil {
		v.log.Warn("claims cache invalidation failed", zap.String("user_id", userID.Hex()), zap.Error(err))
	}
}
