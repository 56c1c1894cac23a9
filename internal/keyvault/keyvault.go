// Package keyvault manages per-principal asymmetric keypairs and symmetric
// keys, and provides the encryption primitives the certification pipeline
// relies on: RSA-OAEP for key escrow and AES-GCM for record payloads.
package keyvault

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	dErrors "medguard/pkg/domain-errors"
	"medguard/pkg/platform/sentinel"
)

const (
	rsaKeyBits       = 2048
	symmetricKeySize = 32
)

var (
	// ErrKeyNotFound is returned when a principal has no provisioned key and
	// the vault is not in bootstrap mode. Silent lazy generation would mint a
	// fresh identity and mask a provisioning gap.
	ErrKeyNotFound = errors.New("keyvault: no key material for principal")

	// ErrPlaintextTooLarge is returned when a message exceeds the OAEP
	// capacity of the recipient's key.
	ErrPlaintextTooLarge = errors.New("keyvault: plaintext exceeds key capacity")
)

// Vault issues and serves key material for principals identified by wallet
// address. In bootstrap mode a missing key is generated on demand (and logged
// loudly); otherwise absence is an error requiring operator provisioning.
type Vault struct {
	store     KeyStore
	bootstrap bool
	logger    *slog.Logger

	// genMu serializes lazy generation so two concurrent requests for the
	// same unprovisioned principal cannot mint two identities.
	genMu sync.Mutex
}

func New(store KeyStore, bootstrap bool, logger *slog.Logger) *Vault {
	return &Vault{store: store, bootstrap: bootstrap, logger: logger}
}

// KeypairFor returns the principal's persisted keypair. In bootstrap mode a
// missing keypair is generated, persisted, and reported as a warning.
func (v *Vault) KeypairFor(ctx context.Context, address string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	addr := strings.ToLower(address)

	key, err := v.store.LoadKeypair(ctx, addr)
	if err == nil {
		return key, &key.PublicKey, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "load keypair")
	}

	if !v.bootstrap {
		return nil, nil, dErrors.Wrap(ErrKeyNotFound, dErrors.CodeNotFound,
			fmt.Sprintf("no keypair provisioned for %s", addr))
	}

	v.genMu.Lock()
	defer v.genMu.Unlock()

	// Re-check under the lock; a concurrent caller may have generated it.
	if key, err := v.store.LoadKeypair(ctx, addr); err == nil {
		return key, &key.PublicKey, nil
	}

	key, err = rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate keypair")
	}
	if err := v.store.SaveKeypair(ctx, addr, key); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist keypair")
	}

	// An on-the-fly key means records certified for this principal are bound
	// to an identity nobody provisioned. Surface it every time.
	v.logger.Warn("generated ephemeral keypair for unprovisioned principal",
		slog.String("address", addr))

	return key, &key.PublicKey, nil
}

// PublicKeyFor returns only the public half of a principal's keypair.
func (v *Vault) PublicKeyFor(ctx context.Context, address string) (*rsa.PublicKey, error) {
	_, pub, err := v.KeypairFor(ctx, address)
	return pub, err
}

// SymmetricKeyFor returns the principal's symmetric key. In bootstrap mode a
// missing key is recovered from the principal's keypair when one exists
// (see DeriveLegacySymmetricKey), otherwise generated fresh; new principals
// get keys independent of the asymmetric keypair so either can rotate
// without the other.
func (v *Vault) SymmetricKeyFor(ctx context.Context, address string) ([]byte, error) {
	addr := strings.ToLower(address)

	key, err := v.store.LoadSymmetricKey(ctx, addr)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load symmetric key")
	}

	if !v.bootstrap {
		return nil, dErrors.Wrap(ErrKeyNotFound, dErrors.CodeNotFound,
			fmt.Sprintf("no symmetric key provisioned for %s", addr))
	}

	v.genMu.Lock()
	defer v.genMu.Unlock()

	if key, err := v.store.LoadSymmetricKey(ctx, addr); err == nil {
		return key, nil
	}

	// A principal with a keypair but no symmetric key was migrated from a
	// deployment that derived the latter from the former. Re-derive instead
	// of minting a random key, so payloads sealed before the migration stay
	// decryptable.
	if legacy, err := v.store.LoadKeypair(ctx, addr); err == nil {
		key, err := DeriveLegacySymmetricKey(legacy)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "derive legacy symmetric key")
		}
		if err := v.store.SaveSymmetricKey(ctx, addr, key); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist symmetric key")
		}
		v.logger.Warn("re-derived symmetric key for migrated principal",
			slog.String("address", addr))
		return key, nil
	}

	key = make([]byte, symmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate symmetric key")
	}
	if err := v.store.SaveSymmetricKey(ctx, addr, key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist symmetric key")
	}

	v.logger.Warn("generated symmetric key for unprovisioned principal",
		slog.String("address", addr))

	return key, nil
}

// Encrypt encrypts data for the holder of the given public key using
// RSA-OAEP with SHA-256. The message must fit the key's OAEP capacity.
func (v *Vault) Encrypt(data []byte, recipient *rsa.PublicKey) ([]byte, error) {
	if len(data) > oaepCapacity(recipient) {
		return nil, fmt.Errorf("%w: %d bytes, capacity %d",
			ErrPlaintextTooLarge, len(data), oaepCapacity(recipient))
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, recipient, data, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "oaep encrypt")
	}
	return ciphertext, nil
}

// Decrypt reverses Encrypt with the recipient's private key.
func (v *Vault) Decrypt(ciphertext []byte, key *rsa.PrivateKey) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, key, ciphertext, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "oaep decrypt")
	}
	return plaintext, nil
}

// oaepCapacity is the maximum plaintext length for OAEP with SHA-256:
// k - 2*hLen - 2.
func oaepCapacity(key *rsa.PublicKey) int {
	return key.Size() - 2*sha256.Size - 2
}
