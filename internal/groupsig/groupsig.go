// Package groupsig provides the group-signature oracle used to certify
// records without revealing which doctor signed them. A signature
// verifies under the group public key alone; recovering the signer
// needs both the group manager and the revocation manager to open
// their shares.
package groupsig

import (
	"context"

	dErrors "medguard/pkg/domain-errors"
)

// Opener identifies which authority is contributing a partial opening.
type Opener string

const (
	OpenerGroupManager      Opener = "group_manager"
	OpenerRevocationManager Opener = "revocation_manager"
)

var (
	ErrSignatureInvalid   = dErrors.New(dErrors.CodeInvalidInput, "group signature does not verify")
	ErrUnknownOpener      = dErrors.New(dErrors.CodeInvalidInput, "unknown opening authority")
	ErrShareMismatch      = dErrors.New(dErrors.CodeInvalidInput, "partial shares do not combine")
	ErrSigningUnavailable = dErrors.New(dErrors.CodeUnavailable, "group signing is unavailable")
)

// Signature is a group signature together with the escrowed signer
// identity, split so that neither authority can open it alone.
type Signature struct {
	GroupSig []byte `json:"group_sig"`
	EscrowGM []byte `json:"escrow_gm"`
	EscrowRM []byte `json:"escrow_rm"`
}

// Oracle signs on behalf of the group and supports threshold opening.
type Oracle interface {
	// Sign produces a group signature over message for the given member.
	Sign(ctx context.Context, member string, message []byte) (Signature, error)
	// Verify checks the signature against the group public key. It says
	// nothing about who signed.
	Verify(ctx context.Context, message []byte, sig Signature) error
	// PartialOpen decrypts one authority's escrowed share.
	PartialOpen(ctx context.Context, sig Signature, opener Opener) ([]byte, error)
	// Combine merges both partial shares into the signer's address.
	Combine(ctx context.Context, shareGM, shareRM []byte) (string, error)
}
