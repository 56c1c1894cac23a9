package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	dErrors "medguard/pkg/domain-errors"
)

// EncryptSymmetric seals data under a 256-bit key with AES-GCM. The nonce is
// prepended to the ciphertext.
func EncryptSymmetric(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "symmetric key rejected by cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "init gcm")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate nonce")
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

// DecryptSymmetric reverses EncryptSymmetric. Authentication failure (key
// mismatch or tampered ciphertext) is reported as invalid input.
func DecryptSymmetric(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "symmetric key rejected by cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "init gcm")
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "gcm open")
	}
	return plaintext, nil
}

// DeriveLegacySymmetricKey derives a symmetric key deterministically from
// private key material via HKDF-SHA256. The vault uses it to recover keys
// of principals migrated from deployments that bound the encryption key to
// the signing key; new principals get independent random keys.
func DeriveLegacySymmetricKey(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	reader := hkdf.New(sha256.New, der, nil, []byte("medguard/legacy-symmetric-key/v1"))
	out := make([]byte, symmetricKeySize)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out, nil
}
