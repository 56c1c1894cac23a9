package keyvault

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dErrors "medguard/pkg/domain-errors"
)

const (
	testPatient      = "0xEDB64f85F1fC9357EcA100C2970f7F84a5faAD4A"
	testGroupManager = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type VaultSuite struct {
	suite.Suite
	vault *Vault
	ctx   context.Context
}

func TestVaultSuite(t *testing.T) {
	suite.Run(t, new(VaultSuite))
}

func (s *VaultSuite) SetupTest() {
	s.vault = New(NewInMemoryKeyStore(), true, discardLogger())
	s.ctx = context.Background()
}

func (s *VaultSuite) TestKeypairIsStablePerPrincipal() {
	priv1, pub1, err := s.vault.KeypairFor(s.ctx, testPatient)
	s.Require().NoError(err)
	priv2, pub2, err := s.vault.KeypairFor(s.ctx, testPatient)
	s.Require().NoError(err)

	s.Equal(priv1.D, priv2.D)
	s.Equal(pub1.N, pub2.N)
}

func (s *VaultSuite) TestAddressIsCaseInsensitive() {
	_, pub1, err := s.vault.KeypairFor(s.ctx, testPatient)
	s.Require().NoError(err)
	_, pub2, err := s.vault.KeypairFor(s.ctx, "0xedb64f85f1fc9357eca100c2970f7f84a5faad4a")
	s.Require().NoError(err)
	s.Equal(pub1.N, pub2.N)
}

func (s *VaultSuite) TestSymmetricKeyIsStableAndIndependent() {
	key1, err := s.vault.SymmetricKeyFor(s.ctx, testPatient)
	s.Require().NoError(err)
	s.Len(key1, symmetricKeySize)

	key2, err := s.vault.SymmetricKeyFor(s.ctx, testPatient)
	s.Require().NoError(err)
	s.Equal(key1, key2)

	// Independent of the keypair: deriving from the private key must not
	// reproduce the stored key.
	priv, _, err := s.vault.KeypairFor(s.ctx, testPatient)
	s.Require().NoError(err)
	derived, err := DeriveLegacySymmetricKey(priv)
	s.Require().NoError(err)
	s.NotEqual(key1, derived)
}

func (s *VaultSuite) TestMigratedPrincipalRecoversLegacyKey() {
	// A keypair without a symmetric key is what a principal migrated from a
	// keypair-bound deployment looks like.
	priv, _, err := s.vault.KeypairFor(s.ctx, testPatient)
	s.Require().NoError(err)

	key, err := s.vault.SymmetricKeyFor(s.ctx, testPatient)
	s.Require().NoError(err)

	derived, err := DeriveLegacySymmetricKey(priv)
	s.Require().NoError(err)
	s.Equal(derived, key)

	// Once recovered, the key is persisted and served as usual.
	again, err := s.vault.SymmetricKeyFor(s.ctx, testPatient)
	s.Require().NoError(err)
	s.Equal(key, again)
}

func (s *VaultSuite) TestEncryptDecryptRoundTrip() {
	priv, pub, err := s.vault.KeypairFor(s.ctx, testPatient)
	s.Require().NoError(err)

	message := []byte("age=45; diagnosis=Hypertension")
	ciphertext, err := s.vault.Encrypt(message, pub)
	s.Require().NoError(err)
	s.NotEqual(message, ciphertext)

	plaintext, err := s.vault.Decrypt(ciphertext, priv)
	s.Require().NoError(err)
	s.Equal(message, plaintext)
}

func (s *VaultSuite) TestEncryptRejectsOversizedPlaintext() {
	_, pub, err := s.vault.KeypairFor(s.ctx, testPatient)
	s.Require().NoError(err)

	oversized := make([]byte, oaepCapacity(pub)+1)
	_, err = s.vault.Encrypt(oversized, pub)
	s.Require().ErrorIs(err, ErrPlaintextTooLarge)

	// Exactly at capacity still succeeds.
	atCapacity := make([]byte, oaepCapacity(pub))
	_, err = s.vault.Encrypt(atCapacity, pub)
	s.Require().NoError(err)
}

func (s *VaultSuite) TestProvisioningRequiredOutsideBootstrap() {
	strict := New(NewInMemoryKeyStore(), false, discardLogger())

	_, _, err := strict.KeypairFor(s.ctx, testPatient)
	s.Require().ErrorIs(err, ErrKeyNotFound)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = strict.SymmetricKeyFor(s.ctx, testPatient)
	s.Require().ErrorIs(err, ErrKeyNotFound)
}

func (s *VaultSuite) TestEscrowRoundTrip() {
	patientKey, err := s.vault.SymmetricKeyFor(s.ctx, testPatient)
	s.Require().NoError(err)

	eID, err := s.vault.EncodeEscrow(s.ctx, "General Hospital", patientKey, testGroupManager)
	s.Require().NoError(err)

	hospitalInfo, recovered, err := s.vault.DecodeEscrow(s.ctx, eID, testGroupManager)
	s.Require().NoError(err)
	s.Equal("General Hospital", hospitalInfo)
	s.Equal(patientKey, recovered)
}

func (s *VaultSuite) TestEscrowRejectsDelimiterInHospitalInfo() {
	patientKey, err := s.vault.SymmetricKeyFor(s.ctx, testPatient)
	s.Require().NoError(err)

	_, err = s.vault.EncodeEscrow(s.ctx, "General||Hospital", patientKey, testGroupManager)
	s.Require().ErrorIs(err, ErrEscrowEncoding)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *VaultSuite) TestEscrowDecodeRejectsGarbage() {
	_, _, err := s.vault.KeypairFor(s.ctx, testGroupManager)
	s.Require().NoError(err)

	_, _, err = s.vault.DecodeEscrow(s.ctx, []byte("not a ciphertext"), testGroupManager)
	s.Require().ErrorIs(err, ErrEscrowDecode)
}

func TestSymmetricRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	plaintext := []byte(`{"diagnosis":"Hypertension","age":45}`)
	sealed, err := EncryptSymmetric(plaintext, key)
	require.NoError(t, err)

	opened, err := DecryptSymmetric(sealed, key)
	require.NoError(t, err)
	require.True(t, bytes.Equal(plaintext, opened))
}

func TestSymmetricDecryptRejectsTampering(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	sealed, err := EncryptSymmetric([]byte("payload"), key)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0x01

	_, err = DecryptSymmetric(sealed, key)
	require.Error(t, err)
}

func TestLegacyDerivationIsDeterministic(t *testing.T) {
	vault := New(NewInMemoryKeyStore(), true, discardLogger())
	priv, _, err := vault.KeypairFor(context.Background(), testPatient)
	require.NoError(t, err)

	first, err := DeriveLegacySymmetricKey(priv)
	require.NoError(t, err)
	second, err := DeriveLegacySymmetricKey(priv)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
