package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medguard/internal/certifier/models"
	"medguard/internal/contentstore"
	"medguard/internal/groupsig"
	"medguard/internal/keyvault"
	"medguard/internal/ledger"
	"medguard/internal/platform/metrics"
	"medguard/internal/platform/tracing"
	"medguard/internal/record"
	regmodels "medguard/internal/registry/models"
	dErrors "medguard/pkg/domain-errors"
	"medguard/pkg/platform/sentinel"
)

var (
	ErrRecordNotFound  = dErrors.New(dErrors.CodeNotFound, "record not found")
	ErrNotRecordOwner  = dErrors.New(dErrors.CodeForbidden, "caller does not own this record")
	ErrNotSharedWith   = dErrors.New(dErrors.CodeForbidden, "record is not shared with caller")
	ErrNotSharingGrant = dErrors.New(dErrors.CodeInvalidInput, "cid does not point at a sharing grant")
)

type Registry interface {
	Register(ctx context.Context, e regmodels.Entry) error
	Find(ctx context.Context, cid string) (regmodels.Entry, error)
	ListByPatient(ctx context.Context, address string) ([]regmodels.Entry, error)
	ListByDoctor(ctx context.Context, address string) ([]regmodels.Entry, error)
}

type Anonymizer interface {
	Anonymize(ctx context.Context, rec record.Record) (record.Record, error)
	PseudonymsOf(ctx context.Context, address string) ([]string, error)
}

// Service certifies clinical records: it anonymizes the author,
// commits the record to a Merkle root, obtains a group signature over
// the root, encrypts the payload under the patient's key, and registers
// the resulting content identifier.
type Service struct {
	vault      *keyvault.Vault
	oracle     groupsig.Oracle
	content    contentstore.Store
	registry   Registry
	pseudonyms Anonymizer
	gmAddress  string
	chain      ledger.Collaborator
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLedger anchors each certified root on the accountability ledger.
func WithLedger(chain ledger.Collaborator) Option {
	return func(s *Service) { s.chain = chain }
}

func New(
	vault *keyvault.Vault,
	oracle groupsig.Oracle,
	content contentstore.Store,
	registry Registry,
	pseudonyms Anonymizer,
	gmAddress string,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		vault:      vault,
		oracle:     oracle,
		content:    content,
		registry:   registry,
		pseudonyms: pseudonyms,
		gmAddress:  gmAddress,
		logger:     logger,
		tracer:     tracing.Tracer("medguard/certifier"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Certify runs the full certification pipeline for one record. The CID
// is registered only after the encrypted payload is durably stored, so
// the registry never references content that does not exist.
func (s *Service) Certify(ctx context.Context, rec record.Record) (models.Certificate, error) {
	ctx, span := s.tracer.Start(ctx, "certifier.Certify")
	defer span.End()
	start := s.now()

	if rec.PatientID == "" || rec.DoctorID == "" {
		return models.Certificate{}, dErrors.New(dErrors.CodeInvalidInput, "record needs patient and doctor identities")
	}

	anon, err := s.pseudonyms.Anonymize(ctx, rec)
	if err != nil {
		return models.Certificate{}, err
	}

	idr, err := record.Build(anon)
	if err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "building record commitment")
	}
	root := idr.Root()

	// the real author signs; the stored record carries only the pseudonym
	sig, err := s.oracle.Sign(ctx, rec.DoctorID, root[:])
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnavailable) {
			return models.Certificate{}, err
		}
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "obtaining group signature")
	}

	patientKey, err := s.vault.SymmetricKeyFor(ctx, rec.PatientID)
	if err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading patient key")
	}

	payload, err := json.Marshal(anon)
	if err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "encoding record")
	}
	ciphertext, err := keyvault.EncryptSymmetric(payload, patientKey)
	if err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "encrypting record")
	}

	cid, err := s.content.Put(ctx, ciphertext)
	if err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "storing record payload")
	}
	span.SetAttributes(attribute.String("record.cid", cid))

	eID, err := s.vault.EncodeEscrow(ctx, rec.HospitalInfo, patientKey, s.gmAddress)
	if err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "escrowing patient key")
	}

	cert := models.Certificate{
		CID:       cid,
		Root:      hex.EncodeToString(root[:]),
		EID:       eID,
		Signature: sig,
		IssuedAt:  start,
	}
	certBlob, err := json.Marshal(cert)
	if err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "encoding certificate")
	}
	certCID, err := s.content.Put(ctx, certBlob)
	if err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "storing certificate")
	}

	// The entry is owned by the patient and names the author only by
	// pseudonym. The real author must never reach the registry, or any
	// reader could pair pseudonym and signer without an opening.
	err = s.registry.Register(ctx, regmodels.Entry{
		CID:       cid,
		Owner:     rec.PatientID,
		Type:      regmodels.TypeRecord,
		PatientID: rec.PatientID,
		DoctorID:  anon.DoctorID,
		Metadata: map[string]string{
			"root":            cert.Root,
			"certificate_cid": certCID,
		},
		CreatedAt: s.now(),
	})
	if err != nil {
		return models.Certificate{}, err
	}

	// anchoring is best effort, the certificate stands without it
	if s.chain != nil {
		if err := s.chain.RecordMetadata(ctx, cid, cert.Root); err != nil {
			s.logger.Warn("anchoring record metadata failed",
				slog.String("cid", cid),
				slog.Any("error", err),
			)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordsCertified.Inc()
		s.metrics.CertifyDurationMs.Observe(float64(s.now().Sub(start).Milliseconds()))
	}
	s.logger.Info("record certified",
		slog.String("cid", cid),
		slog.String("category", rec.Category),
	)
	return cert, nil
}

// CertificateFor loads the stored certificate of a certified record.
func (s *Service) CertificateFor(ctx context.Context, cid string) (models.Certificate, error) {
	entry, err := s.registry.Find(ctx, cid)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return models.Certificate{}, ErrRecordNotFound
		}
		return models.Certificate{}, err
	}
	if entry.Type != regmodels.TypeRecord {
		return models.Certificate{}, ErrRecordNotFound
	}

	certCID := entry.Metadata["certificate_cid"]
	if certCID == "" {
		return models.Certificate{}, dErrors.New(dErrors.CodeInvariantViolation, "record has no certificate")
	}
	blob, err := s.content.Get(ctx, certCID)
	if err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading certificate")
	}
	var cert models.Certificate
	if err := json.Unmarshal(blob, &cert); err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "decoding certificate")
	}
	return cert, nil
}

// Retrieve decrypts a stored record for its patient.
func (s *Service) Retrieve(ctx context.Context, caller, cid string) (record.Record, error) {
	entry, err := s.registry.Find(ctx, cid)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return record.Record{}, ErrRecordNotFound
		}
		return record.Record{}, err
	}
	if entry.Type != regmodels.TypeRecord {
		return record.Record{}, ErrRecordNotFound
	}
	if !strings.EqualFold(entry.PatientID, caller) {
		return record.Record{}, ErrNotRecordOwner
	}

	patientKey, err := s.vault.SymmetricKeyFor(ctx, entry.PatientID)
	if err != nil {
		return record.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading patient key")
	}
	return s.decryptRecord(ctx, cid, patientKey)
}

// ListForPatient lists record entries indexed under the patient.
func (s *Service) ListForPatient(ctx context.Context, patient string) ([]regmodels.Entry, error) {
	return s.registry.ListByPatient(ctx, patient)
}

// ListForDoctor lists record entries authored by the doctor across all
// of their pseudonyms.
func (s *Service) ListForDoctor(ctx context.Context, doctor string) ([]regmodels.Entry, error) {
	pseudos, err := s.pseudonyms.PseudonymsOf(ctx, doctor)
	if err != nil {
		return nil, err
	}

	var out []regmodels.Entry
	for _, pseudo := range pseudos {
		entries, err := s.registry.ListByDoctor(ctx, pseudo)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// Share wraps the record key for a recipient and registers a sharing
// grant. Only the record's patient may share it.
func (s *Service) Share(ctx context.Context, patient, cid, recipient string) (string, error) {
	entry, err := s.registry.Find(ctx, cid)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return "", ErrRecordNotFound
		}
		return "", err
	}
	if entry.Type != regmodels.TypeRecord {
		return "", ErrRecordNotFound
	}
	if !strings.EqualFold(entry.PatientID, patient) {
		return "", ErrNotRecordOwner
	}

	patientKey, err := s.vault.SymmetricKeyFor(ctx, entry.PatientID)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "loading patient key")
	}
	recipientPub, err := s.vault.PublicKeyFor(ctx, recipient)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeNotFound, "recipient has no keypair")
	}
	wrapped, err := s.vault.Encrypt(patientKey, recipientPub)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "wrapping record key")
	}

	grant := models.SharingGrant{
		RecordCID:  cid,
		WrappedKey: wrapped,
		Recipient:  recipient,
		SharedBy:   patient,
	}
	blob, err := json.Marshal(grant)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encoding sharing grant")
	}
	sharingCID, err := s.content.Put(ctx, blob)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "storing sharing grant")
	}

	err = s.registry.Register(ctx, regmodels.Entry{
		CID:       sharingCID,
		Owner:     recipient,
		Type:      regmodels.TypeSharing,
		PatientID: patient,
		Metadata:  map[string]string{"record_cid": cid},
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("record shared",
		slog.String("cid", cid),
		slog.String("sharing_cid", sharingCID),
	)
	return sharingCID, nil
}

// RetrieveShared resolves a sharing grant for its recipient and
// decrypts the underlying record.
func (s *Service) RetrieveShared(ctx context.Context, caller, sharingCID string) (record.Record, error) {
	entry, err := s.registry.Find(ctx, sharingCID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return record.Record{}, ErrRecordNotFound
		}
		return record.Record{}, err
	}
	if entry.Type != regmodels.TypeSharing {
		return record.Record{}, ErrNotSharingGrant
	}
	if !strings.EqualFold(entry.Owner, caller) {
		return record.Record{}, ErrNotSharedWith
	}

	blob, err := s.content.Get(ctx, sharingCID)
	if err != nil {
		return record.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading sharing grant")
	}
	var grant models.SharingGrant
	if err := json.Unmarshal(blob, &grant); err != nil {
		return record.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "decoding sharing grant")
	}

	private, _, err := s.vault.KeypairFor(ctx, caller)
	if err != nil {
		return record.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading recipient keypair")
	}
	recordKey, err := s.vault.Decrypt(grant.WrappedKey, private)
	if err != nil {
		return record.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "unwrapping record key")
	}
	return s.decryptRecord(ctx, grant.RecordCID, recordKey)
}

func (s *Service) decryptRecord(ctx context.Context, cid string, key []byte) (record.Record, error) {
	ciphertext, err := s.content.Get(ctx, cid)
	if err != nil {
		if dErrors.Is(err, sentinel.ErrNotFound) {
			return record.Record{}, ErrRecordNotFound
		}
		return record.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading record payload")
	}

	payload, err := keyvault.DecryptSymmetric(ciphertext, key)
	if err != nil {
		return record.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "decrypting record")
	}
	var rec record.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return record.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "decoding record")
	}
	return rec, nil
}
