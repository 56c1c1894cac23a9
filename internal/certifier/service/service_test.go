package service

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"medguard/internal/contentstore"
	"medguard/internal/groupsig"
	"medguard/internal/keyvault"
	"medguard/internal/ledger"
	pseudoservice "medguard/internal/pseudonym/service"
	pseudostore "medguard/internal/pseudonym/store"
	"medguard/internal/record"
	regmodels "medguard/internal/registry/models"
	regservice "medguard/internal/registry/service"
	regstore "medguard/internal/registry/store"
	dErrors "medguard/pkg/domain-errors"
)

const (
	testPatient = "0xEDB64f85F1fC9357EcA100C2970f7F84a5faAD4A"
	testDoctor  = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
	testBuyer   = "0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65"
	testGM      = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testRM      = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

type CertifierSuite struct {
	suite.Suite
	ctx      context.Context
	svc      *Service
	vault    *keyvault.Vault
	oracle   *groupsig.LocalOracle
	chain    *ledger.MemoryRecorder
	registry *regservice.Service
}

func (s *CertifierSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.vault = keyvault.New(keyvault.NewInMemoryKeyStore(), true, logger)
	oracle, err := groupsig.NewLocalOracle(s.vault, testGM, testRM, logger)
	s.Require().NoError(err)
	s.oracle = oracle

	s.registry = regservice.New(regstore.NewInMemoryStore(), logger)
	pseudonyms := pseudoservice.NewBroker(pseudostore.NewInMemoryStore(), logger)
	s.chain = ledger.NewMemoryRecorder(logger)

	s.svc = New(
		s.vault,
		oracle,
		contentstore.NewInMemoryStore(),
		s.registry,
		pseudonyms,
		testGM,
		logger,
		WithLedger(s.chain),
	)
}

func TestCertifierSuite(t *testing.T) {
	suite.Run(t, new(CertifierSuite))
}

func (s *CertifierSuite) sampleRecord() record.Record {
	return record.Record{
		Demographics: map[string]any{"age": 54, "sex": "F"},
		MedicalData:  map[string]any{"diagnosis": "hypertension"},
		Notes:        "stable under medication",
		HospitalInfo: "General Hospital",
		PatientID:    testPatient,
		DoctorID:     testDoctor,
		Date:         "2026-08-29",
		Category:     "cardiology",
	}
}

func (s *CertifierSuite) TestCertifyProducesVerifiableCertificate() {
	cert, err := s.svc.Certify(s.ctx, s.sampleRecord())
	s.Require().NoError(err)
	s.NotEmpty(cert.CID)
	s.NotEmpty(cert.EID)

	root, err := hex.DecodeString(cert.Root)
	s.Require().NoError(err)
	s.Require().NoError(s.oracle.Verify(s.ctx, root, cert.Signature))

	entries := s.chain.Entries()
	s.Require().Len(entries, 1)
	s.Equal(ledger.KindMetadata, entries[0].Kind)
	s.Equal(cert.CID, entries[0].CID)
	s.Equal(cert.Root, entries[0].Root)
}

func (s *CertifierSuite) TestRegistryEntryNeverNamesRealAuthor() {
	cert, err := s.svc.Certify(s.ctx, s.sampleRecord())
	s.Require().NoError(err)

	entry, err := s.registry.Find(s.ctx, cert.CID)
	s.Require().NoError(err)
	s.Equal(testPatient, entry.Owner)
	s.Equal(testPatient, entry.PatientID)
	s.NotEqual(testDoctor, entry.DoctorID)
	s.True(common.IsHexAddress(entry.DoctorID))
}

func (s *CertifierSuite) TestCertifiedRecordIsAnonymized() {
	cert, err := s.svc.Certify(s.ctx, s.sampleRecord())
	s.Require().NoError(err)

	rec, err := s.svc.Retrieve(s.ctx, testPatient, cert.CID)
	s.Require().NoError(err)
	s.True(rec.Anonymized)
	s.NotEqual(testDoctor, rec.DoctorID)
	s.True(common.IsHexAddress(rec.DoctorID))
	s.Equal("stable under medication", rec.Notes)
}

func (s *CertifierSuite) TestEscrowRecoversPatientKey() {
	cert, err := s.svc.Certify(s.ctx, s.sampleRecord())
	s.Require().NoError(err)

	hospitalInfo, patientKey, err := s.vault.DecodeEscrow(s.ctx, cert.EID, testGM)
	s.Require().NoError(err)
	s.Equal("General Hospital", hospitalInfo)

	expected, err := s.vault.SymmetricKeyFor(s.ctx, testPatient)
	s.Require().NoError(err)
	s.Equal(expected, patientKey)
}

func (s *CertifierSuite) TestThresholdOpeningRecoversAuthorPseudonymously() {
	cert, err := s.svc.Certify(s.ctx, s.sampleRecord())
	s.Require().NoError(err)

	shareGM, err := s.oracle.PartialOpen(s.ctx, cert.Signature, groupsig.OpenerGroupManager)
	s.Require().NoError(err)
	shareRM, err := s.oracle.PartialOpen(s.ctx, cert.Signature, groupsig.OpenerRevocationManager)
	s.Require().NoError(err)

	member, err := s.oracle.Combine(s.ctx, shareGM, shareRM)
	s.Require().NoError(err)
	s.Equal(testDoctor, member)
}

func (s *CertifierSuite) TestRetrieveRequiresPatient() {
	cert, err := s.svc.Certify(s.ctx, s.sampleRecord())
	s.Require().NoError(err)

	_, err = s.svc.Retrieve(s.ctx, testBuyer, cert.CID)
	s.Require().ErrorIs(err, ErrNotRecordOwner)
}

func (s *CertifierSuite) TestRetrieveMissing() {
	_, err := s.svc.Retrieve(s.ctx, testPatient, "cid-missing")
	s.Require().ErrorIs(err, ErrRecordNotFound)
}

func (s *CertifierSuite) TestListForPatientAndDoctor() {
	_, err := s.svc.Certify(s.ctx, s.sampleRecord())
	s.Require().NoError(err)
	_, err = s.svc.Certify(s.ctx, s.sampleRecord())
	s.Require().NoError(err)

	patientEntries, err := s.svc.ListForPatient(s.ctx, testPatient)
	s.Require().NoError(err)
	s.Len(patientEntries, 2)

	// each certification minted a fresh pseudonym, both resolve back
	doctorEntries, err := s.svc.ListForDoctor(s.ctx, testDoctor)
	s.Require().NoError(err)
	s.Len(doctorEntries, 2)
	for _, e := range doctorEntries {
		s.Equal(regmodels.TypeRecord, e.Type)
		s.NotEqual(testDoctor, e.DoctorID)
	}
}

func (s *CertifierSuite) TestShareAndRetrieveShared() {
	cert, err := s.svc.Certify(s.ctx, s.sampleRecord())
	s.Require().NoError(err)

	sharingCID, err := s.svc.Share(s.ctx, testPatient, cert.CID, testBuyer)
	s.Require().NoError(err)
	s.NotEqual(cert.CID, sharingCID)

	rec, err := s.svc.RetrieveShared(s.ctx, testBuyer, sharingCID)
	s.Require().NoError(err)
	s.Equal("stable under medication", rec.Notes)
}

func (s *CertifierSuite) TestShareRequiresPatient() {
	cert, err := s.svc.Certify(s.ctx, s.sampleRecord())
	s.Require().NoError(err)

	_, err = s.svc.Share(s.ctx, testBuyer, cert.CID, testBuyer)
	s.Require().ErrorIs(err, ErrNotRecordOwner)
}

func (s *CertifierSuite) TestRetrieveSharedRequiresRecipient() {
	cert, err := s.svc.Certify(s.ctx, s.sampleRecord())
	s.Require().NoError(err)
	sharingCID, err := s.svc.Share(s.ctx, testPatient, cert.CID, testBuyer)
	s.Require().NoError(err)

	_, err = s.svc.RetrieveShared(s.ctx, testDoctor, sharingCID)
	s.Require().ErrorIs(err, ErrNotSharedWith)
}

func (s *CertifierSuite) TestCertifyValidatesIdentities() {
	rec := s.sampleRecord()
	rec.PatientID = ""
	_, err := s.svc.Certify(s.ctx, rec)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
