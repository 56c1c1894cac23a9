package groupsig

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"medguard/internal/keyvault"
	dErrors "medguard/pkg/domain-errors"
)

const (
	testMember = "0xEDB64f85F1fC9357EcA100C2970f7F84a5faAD4A"
	testGM     = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testRM     = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

type OracleSuite struct {
	suite.Suite
	ctx    context.Context
	oracle *LocalOracle
}

func (s *OracleSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	vault := keyvault.New(keyvault.NewInMemoryKeyStore(), true, logger)

	oracle, err := NewLocalOracle(vault, testGM, testRM, logger)
	s.Require().NoError(err)
	s.oracle = oracle
}

func TestOracleSuite(t *testing.T) {
	suite.Run(t, new(OracleSuite))
}

func (s *OracleSuite) TestSignVerify() {
	sig, err := s.oracle.Sign(s.ctx, testMember, []byte("merkle root bytes"))
	s.Require().NoError(err)
	s.NotEmpty(sig.GroupSig)
	s.NotEmpty(sig.EscrowGM)
	s.NotEmpty(sig.EscrowRM)

	s.Require().NoError(s.oracle.Verify(s.ctx, []byte("merkle root bytes"), sig))
}

func (s *OracleSuite) TestVerifyRejectsWrongMessage() {
	sig, err := s.oracle.Sign(s.ctx, testMember, []byte("merkle root bytes"))
	s.Require().NoError(err)

	err = s.oracle.Verify(s.ctx, []byte("different bytes"), sig)
	s.Require().ErrorIs(err, ErrSignatureInvalid)
}

func (s *OracleSuite) TestVerifyRejectsTamperedSignature() {
	sig, err := s.oracle.Sign(s.ctx, testMember, []byte("merkle root bytes"))
	s.Require().NoError(err)

	sig.GroupSig[3] ^= 0xff
	err = s.oracle.Verify(s.ctx, []byte("merkle root bytes"), sig)
	s.Require().ErrorIs(err, ErrSignatureInvalid)
}

func (s *OracleSuite) TestSignatureConcealsMember() {
	first, err := s.oracle.Sign(s.ctx, testMember, []byte("same message"))
	s.Require().NoError(err)
	second, err := s.oracle.Sign(s.ctx, testGM, []byte("same message"))
	s.Require().NoError(err)

	// the bare signature is identical regardless of member
	s.Equal(first.GroupSig, second.GroupSig)
}

func (s *OracleSuite) TestThresholdOpening() {
	sig, err := s.oracle.Sign(s.ctx, testMember, []byte("merkle root bytes"))
	s.Require().NoError(err)

	shareGM, err := s.oracle.PartialOpen(s.ctx, sig, OpenerGroupManager)
	s.Require().NoError(err)
	shareRM, err := s.oracle.PartialOpen(s.ctx, sig, OpenerRevocationManager)
	s.Require().NoError(err)

	member, err := s.oracle.Combine(s.ctx, shareGM, shareRM)
	s.Require().NoError(err)
	s.Equal(testMember, member)
}

func (s *OracleSuite) TestSingleShareRevealsNothing() {
	sig, err := s.oracle.Sign(s.ctx, testMember, []byte("merkle root bytes"))
	s.Require().NoError(err)

	shareGM, err := s.oracle.PartialOpen(s.ctx, sig, OpenerGroupManager)
	s.Require().NoError(err)

	// a single share combined with zeros yields a random address,
	// not the member
	zeros := make([]byte, len(shareGM))
	wrong, err := s.oracle.Combine(s.ctx, shareGM, zeros)
	s.Require().NoError(err)
	s.NotEqual(testMember, wrong)
}

func (s *OracleSuite) TestCombineRejectsBadShares() {
	_, err := s.oracle.Combine(s.ctx, []byte("short"), []byte("short"))
	s.Require().ErrorIs(err, ErrShareMismatch)
}

func (s *OracleSuite) TestUnknownOpener() {
	sig, err := s.oracle.Sign(s.ctx, testMember, []byte("merkle root bytes"))
	s.Require().NoError(err)

	_, err = s.oracle.PartialOpen(s.ctx, sig, Opener("buyer"))
	s.Require().ErrorIs(err, ErrUnknownOpener)
}

func (s *OracleSuite) TestSignRejectsBadMember() {
	_, err := s.oracle.Sign(s.ctx, "not-an-address", []byte("msg"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *OracleSuite) TestSignWithoutOpenerKeys() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	strict := keyvault.New(keyvault.NewInMemoryKeyStore(), false, logger)
	oracle, err := NewLocalOracle(strict, testGM, testRM, logger)
	s.Require().NoError(err)

	_, err = oracle.Sign(s.ctx, testMember, []byte("msg"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
