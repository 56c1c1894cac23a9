package keyvault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	dErrors "medguard/pkg/domain-errors"
)

// escrowDelimiter separates hospital context from the escrowed key inside the
// eId plaintext. The hospital info must never contain it: decoding splits on
// the first occurrence, so an embedded delimiter would silently truncate.
const escrowDelimiter = "||"

var (
	ErrEscrowEncoding = errors.New("keyvault: hospital info contains the escrow delimiter")
	ErrEscrowDecode   = errors.New("keyvault: malformed escrow ciphertext")
)

// EncodeEscrow builds the eId: `hospitalInfo || base64(patientKey)` encrypted
// under the Group Manager's public key. Only the Group Manager can recover
// the binding between hospital context and the patient's symmetric key.
func (v *Vault) EncodeEscrow(ctx context.Context, hospitalInfo string, patientKey []byte, groupManagerAddress string) ([]byte, error) {
	if strings.Contains(hospitalInfo, escrowDelimiter) {
		return nil, dErrors.Wrap(ErrEscrowEncoding, dErrors.CodeValidation,
			fmt.Sprintf("hospital info %q cannot be escrowed", hospitalInfo))
	}

	gmPub, err := v.PublicKeyFor(ctx, groupManagerAddress)
	if err != nil {
		return nil, err
	}

	plaintext := hospitalInfo + escrowDelimiter + base64.StdEncoding.EncodeToString(patientKey)
	return v.Encrypt([]byte(plaintext), gmPub)
}

// DecodeEscrow recovers (hospitalInfo, patientKey) from an eId using the
// Group Manager's private key.
func (v *Vault) DecodeEscrow(ctx context.Context, eID []byte, groupManagerAddress string) (string, []byte, error) {
	gmKey, _, err := v.KeypairFor(ctx, groupManagerAddress)
	if err != nil {
		return "", nil, err
	}

	plaintext, err := v.Decrypt(eID, gmKey)
	if err != nil {
		return "", nil, dErrors.Wrap(ErrEscrowDecode, dErrors.CodeInvalidInput, "escrow decrypt failed")
	}

	hospitalInfo, encodedKey, found := strings.Cut(string(plaintext), escrowDelimiter)
	if !found {
		return "", nil, dErrors.Wrap(ErrEscrowDecode, dErrors.CodeInvalidInput, "escrow missing delimiter")
	}

	patientKey, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return "", nil, dErrors.Wrap(ErrEscrowDecode, dErrors.CodeInvalidInput, "escrowed key is not base64")
	}
	return hospitalInfo, patientKey, nil
}
