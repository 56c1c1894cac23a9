package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"medguard/internal/registry/models"
	"medguard/internal/registry/store"
	dErrors "medguard/pkg/domain-errors"
)

const (
	testPatient = "0xEDB64f85F1fC9357EcA100C2970f7F84a5faAD4A"
	testDoctor  = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

type RegistrySuite struct {
	suite.Suite
	ctx context.Context
	svc *Service
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.svc = New(store.NewInMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) entry(cid string) models.Entry {
	return models.Entry{
		CID:       cid,
		Owner:     testDoctor,
		Type:      models.TypeRecord,
		PatientID: testPatient,
		DoctorID:  testDoctor,
	}
}

func (s *RegistrySuite) TestRegisterAndFind() {
	s.Require().NoError(s.svc.Register(s.ctx, s.entry("cid-1")))

	e, err := s.svc.Find(s.ctx, "cid-1")
	s.Require().NoError(err)
	s.Equal(testDoctor, e.Owner)
	s.Equal(models.TypeRecord, e.Type)
	s.False(e.CreatedAt.IsZero())
}

func (s *RegistrySuite) TestRegisterIsIdempotent() {
	s.Require().NoError(s.svc.Register(s.ctx, s.entry("cid-1")))
	s.Require().NoError(s.svc.Register(s.ctx, s.entry("cid-1")))

	patientEntries, err := s.svc.ListByPatient(s.ctx, testPatient)
	s.Require().NoError(err)
	s.Len(patientEntries, 1)

	doctorEntries, err := s.svc.ListByDoctor(s.ctx, testDoctor)
	s.Require().NoError(err)
	s.Len(doctorEntries, 1)
}

func (s *RegistrySuite) TestReRegisterKeepsOriginalEntry() {
	s.Require().NoError(s.svc.Register(s.ctx, s.entry("cid-1")))

	conflicting := s.entry("cid-1")
	conflicting.Owner = testPatient
	conflicting.PatientID = testDoctor
	conflicting.Metadata = map[string]string{"root": "deadbeef"}
	s.Require().NoError(s.svc.Register(s.ctx, conflicting))

	e, err := s.svc.Find(s.ctx, "cid-1")
	s.Require().NoError(err)
	s.Equal(testDoctor, e.Owner)
	s.Equal(testPatient, e.PatientID)
	s.Empty(e.Metadata)

	entries, err := s.svc.ListByPatient(s.ctx, testPatient)
	s.Require().NoError(err)
	s.Len(entries, 1)

	entries, err = s.svc.ListByPatient(s.ctx, testDoctor)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *RegistrySuite) TestListIndexes() {
	s.Require().NoError(s.svc.Register(s.ctx, s.entry("cid-1")))
	s.Require().NoError(s.svc.Register(s.ctx, s.entry("cid-2")))

	other := s.entry("cid-3")
	other.PatientID = testDoctor
	s.Require().NoError(s.svc.Register(s.ctx, other))

	entries, err := s.svc.ListByPatient(s.ctx, testPatient)
	s.Require().NoError(err)
	s.Len(entries, 2)

	entries, err = s.svc.ListByOwner(s.ctx, testDoctor)
	s.Require().NoError(err)
	s.Len(entries, 3)
}

func (s *RegistrySuite) TestLookupsAreCaseInsensitive() {
	s.Require().NoError(s.svc.Register(s.ctx, s.entry("cid-1")))

	entries, err := s.svc.ListByPatient(s.ctx, "0xedb64f85f1fc9357eca100c2970f7f84a5faad4a")
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *RegistrySuite) TestRemoveCascadesIndexes() {
	s.Require().NoError(s.svc.Register(s.ctx, s.entry("cid-1")))
	s.Require().NoError(s.svc.Remove(s.ctx, "cid-1"))

	_, err := s.svc.Find(s.ctx, "cid-1")
	s.Require().ErrorIs(err, ErrEntryNotFound)

	entries, err := s.svc.ListByPatient(s.ctx, testPatient)
	s.Require().NoError(err)
	s.Empty(entries)

	entries, err = s.svc.ListByDoctor(s.ctx, testDoctor)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *RegistrySuite) TestRemoveMissing() {
	s.Require().ErrorIs(s.svc.Remove(s.ctx, "cid-missing"), ErrEntryNotFound)
}

func (s *RegistrySuite) TestValidation() {
	e := s.entry("")
	err := s.svc.Register(s.ctx, e)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	e = s.entry("cid-1")
	e.Type = "bogus"
	err = s.svc.Register(s.ctx, e)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
