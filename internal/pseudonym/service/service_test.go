package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"medguard/internal/pseudonym/store"
	"medguard/internal/record"
	dErrors "medguard/pkg/domain-errors"
)

const (
	testDoctor  = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testPatient = "0xEDB64f85F1fC9357EcA100C2970f7F84a5faAD4A"
)

type BrokerSuite struct {
	suite.Suite
	ctx    context.Context
	broker *Broker
}

func (s *BrokerSuite) SetupTest() {
	s.ctx = context.Background()
	s.broker = NewBroker(store.NewInMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBrokerSuite(t *testing.T) {
	suite.Run(t, new(BrokerSuite))
}

func (s *BrokerSuite) TestIssueProducesAddressShapedPseudonym() {
	pseudonym, err := s.broker.Issue(s.ctx, testDoctor)
	s.Require().NoError(err)
	s.True(common.IsHexAddress(pseudonym))
	s.NotEqual(testDoctor, pseudonym)
}

func (s *BrokerSuite) TestIssueRejectsBadAddress() {
	_, err := s.broker.Issue(s.ctx, "not-an-address")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *BrokerSuite) TestPseudonymsAreUnlinkable() {
	first, err := s.broker.Issue(s.ctx, testDoctor)
	s.Require().NoError(err)
	second, err := s.broker.Issue(s.ctx, testDoctor)
	s.Require().NoError(err)
	s.NotEqual(first, second)

	pseudos, err := s.broker.PseudonymsOf(s.ctx, testDoctor)
	s.Require().NoError(err)
	s.ElementsMatch([]string{first, second}, pseudos)
}

func (s *BrokerSuite) TestAnonymizeReplacesDoctorOnly() {
	rec := record.Record{
		Demographics: map[string]any{"age": 54},
		Notes:        "stable",
		HospitalInfo: "General Hospital",
		PatientID:    testPatient,
		DoctorID:     testDoctor,
		Date:         "2026-08-29",
		Category:     "cardiology",
	}

	anon, err := s.broker.Anonymize(s.ctx, rec)
	s.Require().NoError(err)
	s.NotEqual(testDoctor, anon.DoctorID)
	s.True(common.IsHexAddress(anon.DoctorID))
	s.True(anon.Anonymized)
	s.Equal(rec.PatientID, anon.PatientID)
	s.Equal(rec.Notes, anon.Notes)

	// original untouched
	s.Equal(testDoctor, rec.DoctorID)
	s.False(rec.Anonymized)
}

func (s *BrokerSuite) TestResolveRequiresGrant() {
	pseudonym, err := s.broker.Issue(s.ctx, testDoctor)
	s.Require().NoError(err)

	_, err = s.broker.Resolve(s.ctx, "no-such-grant", pseudonym)
	s.Require().ErrorIs(err, ErrGrantRequired)
}

func (s *BrokerSuite) TestResolveWithGrant() {
	pseudonym, err := s.broker.Issue(s.ctx, testDoctor)
	s.Require().NoError(err)

	grant := s.broker.MintGrant(pseudonym)
	address, err := s.broker.Resolve(s.ctx, grant.ID, pseudonym)
	s.Require().NoError(err)
	s.Equal(testDoctor, address)
}

func (s *BrokerSuite) TestGrantIsSingleUse() {
	pseudonym, err := s.broker.Issue(s.ctx, testDoctor)
	s.Require().NoError(err)

	grant := s.broker.MintGrant(pseudonym)
	_, err = s.broker.Resolve(s.ctx, grant.ID, pseudonym)
	s.Require().NoError(err)

	_, err = s.broker.Resolve(s.ctx, grant.ID, pseudonym)
	s.Require().ErrorIs(err, ErrGrantRequired)
}

func (s *BrokerSuite) TestGrantBoundToPseudonym() {
	first, err := s.broker.Issue(s.ctx, testDoctor)
	s.Require().NoError(err)
	second, err := s.broker.Issue(s.ctx, testDoctor)
	s.Require().NoError(err)

	grant := s.broker.MintGrant(first)
	_, err = s.broker.Resolve(s.ctx, grant.ID, second)
	s.Require().ErrorIs(err, ErrGrantMismatch)

	// mismatch still consumed the grant
	_, err = s.broker.Resolve(s.ctx, grant.ID, first)
	s.Require().ErrorIs(err, ErrGrantRequired)
}
