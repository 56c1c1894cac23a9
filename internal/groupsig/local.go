package groupsig

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"medguard/internal/keyvault"
	dErrors "medguard/pkg/domain-errors"
)

// LocalOracle is a development oracle. All members share one group
// signing key, so signatures are verifiable under the group public key
// while saying nothing about the member. The signer's address is
// XOR-split into two random shares, one encrypted to the group manager
// and one to the revocation manager, so opening needs both.
//
// Not a real group-signature scheme: the oracle itself knows the group
// key. Production deployments swap in an external signer behind the
// same interface.
type LocalOracle struct {
	vault     *keyvault.Vault
	groupKey  *ecdsa.PrivateKey
	gmAddress string
	rmAddress string
	logger    *slog.Logger
}

func NewLocalOracle(vault *keyvault.Vault, gmAddress, rmAddress string, logger *slog.Logger) (*LocalOracle, error) {
	groupKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating group key: %w", err)
	}
	return &LocalOracle{
		vault:     vault,
		groupKey:  groupKey,
		gmAddress: gmAddress,
		rmAddress: rmAddress,
		logger:    logger,
	}, nil
}

// GroupPublicKey returns the uncompressed group public key bytes.
func (o *LocalOracle) GroupPublicKey() []byte {
	return crypto.FromECDSAPub(&o.groupKey.PublicKey)
}

func (o *LocalOracle) Sign(ctx context.Context, member string, message []byte) (Signature, error) {
	if !common.IsHexAddress(member) {
		return Signature{}, dErrors.New(dErrors.CodeInvalidInput, "invalid member address")
	}

	digest := crypto.Keccak256(message)
	groupSig, err := crypto.Sign(digest, o.groupKey)
	if err != nil {
		return Signature{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "group signing failed")
	}

	memberBytes := common.HexToAddress(member).Bytes()
	shareGM := make([]byte, len(memberBytes))
	if _, err := rand.Read(shareGM); err != nil {
		return Signature{}, dErrors.Wrap(err, dErrors.CodeInternal, "generating identity share")
	}
	shareRM := make([]byte, len(memberBytes))
	for i := range memberBytes {
		shareRM[i] = memberBytes[i] ^ shareGM[i]
	}

	escrowGM, err := o.encryptShare(ctx, o.gmAddress, shareGM)
	if err != nil {
		return Signature{}, err
	}
	escrowRM, err := o.encryptShare(ctx, o.rmAddress, shareRM)
	if err != nil {
		return Signature{}, err
	}

	return Signature{GroupSig: groupSig, EscrowGM: escrowGM, EscrowRM: escrowRM}, nil
}

func (o *LocalOracle) Verify(_ context.Context, message []byte, sig Signature) error {
	if len(sig.GroupSig) != crypto.SignatureLength {
		return ErrSignatureInvalid
	}

	digest := crypto.Keccak256(message)
	// drop the recovery byte, VerifySignature wants 64 bytes
	if !crypto.VerifySignature(crypto.CompressPubkey(&o.groupKey.PublicKey), digest, sig.GroupSig[:64]) {
		return ErrSignatureInvalid
	}
	return nil
}

func (o *LocalOracle) PartialOpen(ctx context.Context, sig Signature, opener Opener) ([]byte, error) {
	var (
		address string
		escrow  []byte
	)
	switch opener {
	case OpenerGroupManager:
		address, escrow = o.gmAddress, sig.EscrowGM
	case OpenerRevocationManager:
		address, escrow = o.rmAddress, sig.EscrowRM
	default:
		return nil, ErrUnknownOpener
	}

	private, _, err := o.vault.KeypairFor(ctx, address)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading opener keypair")
	}
	share, err := o.vault.Decrypt(escrow, private)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "decrypting identity share")
	}

	o.logger.Info("partial opening produced", slog.String("opener", string(opener)))
	return share, nil
}

func (o *LocalOracle) Combine(_ context.Context, shareGM, shareRM []byte) (string, error) {
	if len(shareGM) != common.AddressLength || len(shareRM) != common.AddressLength {
		return "", ErrShareMismatch
	}

	member := make([]byte, common.AddressLength)
	for i := range member {
		member[i] = shareGM[i] ^ shareRM[i]
	}
	return common.BytesToAddress(member).Hex(), nil
}

func (o *LocalOracle) encryptShare(ctx context.Context, address string, share []byte) ([]byte, error) {
	_, public, err := o.vault.KeypairFor(ctx, address)
	if err != nil {
		return nil, dErrors.Wrap(ErrSigningUnavailable, dErrors.CodeUnavailable, "opener key unavailable")
	}
	encrypted, err := o.vault.Encrypt(share, public)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encrypting identity share")
	}
	return encrypted, nil
}
