package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	certmodels "medguard/internal/certifier/models"
	"medguard/internal/contentstore"
	"medguard/internal/disclosure/models"
	"medguard/internal/groupsig"
	"medguard/internal/keyvault"
	"medguard/internal/merkle"
	"medguard/internal/platform/metrics"
	"medguard/internal/platform/tracing"
	"medguard/internal/record"
	regmodels "medguard/internal/registry/models"
	dErrors "medguard/pkg/domain-errors"
)

const verifyConcurrency = 8

var (
	ErrRecordNotFound    = dErrors.New(dErrors.CodeNotFound, "record not found")
	ErrNotRecordOwner    = dErrors.New(dErrors.CodeForbidden, "caller does not own this record")
	ErrTemplateInvalid   = dErrors.New(dErrors.CodeInvalidInput, "purchase template is invalid")
	ErrTemplateNotFound  = dErrors.New(dErrors.CodeNotFound, "purchase template not found")
	ErrInsufficientValid = dErrors.New(dErrors.CodeInvariantViolation, "not enough records verified")
)

type Registry interface {
	Register(ctx context.Context, e regmodels.Entry) error
	Find(ctx context.Context, cid string) (regmodels.Entry, error)
}

// Service builds selective disclosures for sale and verifies them on
// the buyer side. Every record in a disclosure is judged independently;
// one forged record never poisons the rest.
type Service struct {
	vault    *keyvault.Vault
	oracle   groupsig.Oracle
	content  contentstore.Store
	registry Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(
	vault *keyvault.Vault,
	oracle groupsig.Oracle,
	content contentstore.Store,
	registry Registry,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		vault:    vault,
		oracle:   oracle,
		content:  content,
		registry: registry,
		logger:   logger,
		tracer:   tracing.Tracer("medguard/disclosure"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateTemplate rejects templates that could never be satisfied.
func ValidateTemplate(t models.PurchaseTemplate) error {
	if t.MinRecords < 1 {
		return dErrors.Wrap(ErrTemplateInvalid, dErrors.CodeInvalidInput, "min_records must be at least 1")
	}
	if len(t.Fields) == 0 {
		return dErrors.Wrap(ErrTemplateInvalid, dErrors.CodeInvalidInput, "at least one field must be requested")
	}
	for _, name := range t.Fields {
		if _, ok := record.FieldIndex(name); !ok {
			return dErrors.Newf(dErrors.CodeInvalidInput, "unknown field %q", name)
		}
	}
	return nil
}

// RegisterTemplate stores a buyer's purchase template in the content
// store and registers it under the buyer so sellers can discover it.
func (s *Service) RegisterTemplate(ctx context.Context, buyer string, template models.PurchaseTemplate) (string, error) {
	if err := ValidateTemplate(template); err != nil {
		return "", err
	}
	template.Buyer = buyer

	blob, err := json.Marshal(template)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encoding template")
	}
	cid, err := s.content.Put(ctx, blob)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "storing template")
	}

	err = s.registry.Register(ctx, regmodels.Entry{
		CID:       cid,
		Owner:     buyer,
		Type:      regmodels.TypeTemplate,
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("purchase template registered",
		slog.String("cid", cid),
		slog.String("category", template.Category),
	)
	return cid, nil
}

// TemplateFor loads a registered purchase template.
func (s *Service) TemplateFor(ctx context.Context, cid string) (models.PurchaseTemplate, error) {
	entry, err := s.registry.Find(ctx, cid)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return models.PurchaseTemplate{}, ErrTemplateNotFound
		}
		return models.PurchaseTemplate{}, err
	}
	if entry.Type != regmodels.TypeTemplate {
		return models.PurchaseTemplate{}, ErrTemplateNotFound
	}

	blob, err := s.content.Get(ctx, cid)
	if err != nil {
		return models.PurchaseTemplate{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading template")
	}
	var template models.PurchaseTemplate
	if err := json.Unmarshal(blob, &template); err != nil {
		return models.PurchaseTemplate{}, dErrors.Wrap(err, dErrors.CodeInternal, "decoding template")
	}
	return template, nil
}

// Disclose assembles the disclosed form of the patient's records for a
// template: per record, the requested field values with inclusion
// proofs, plus the stored certificate's root and signature.
func (s *Service) Disclose(ctx context.Context, patient string, cids []string, template models.PurchaseTemplate) ([]models.DisclosedRecord, error) {
	if err := ValidateTemplate(template); err != nil {
		return nil, err
	}

	out := make([]models.DisclosedRecord, 0, len(cids))
	for _, cid := range cids {
		disclosed, err := s.discloseOne(ctx, patient, cid, template.Fields)
		if err != nil {
			return nil, err
		}
		out = append(out, disclosed)
	}
	return out, nil
}

func (s *Service) discloseOne(ctx context.Context, patient, cid string, fields []string) (models.DisclosedRecord, error) {
	entry, err := s.registry.Find(ctx, cid)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return models.DisclosedRecord{}, ErrRecordNotFound
		}
		return models.DisclosedRecord{}, err
	}
	if entry.Type != regmodels.TypeRecord {
		return models.DisclosedRecord{}, ErrRecordNotFound
	}
	if !strings.EqualFold(entry.PatientID, patient) {
		return models.DisclosedRecord{}, ErrNotRecordOwner
	}

	cert, err := s.certificateFor(ctx, entry)
	if err != nil {
		return models.DisclosedRecord{}, err
	}

	patientKey, err := s.vault.SymmetricKeyFor(ctx, entry.PatientID)
	if err != nil {
		return models.DisclosedRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading patient key")
	}
	ciphertext, err := s.content.Get(ctx, cid)
	if err != nil {
		return models.DisclosedRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading record payload")
	}
	payload, err := keyvault.DecryptSymmetric(ciphertext, patientKey)
	if err != nil {
		return models.DisclosedRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "decrypting record")
	}
	var rec record.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return models.DisclosedRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "decoding record")
	}

	idr, err := record.Build(rec)
	if err != nil {
		return models.DisclosedRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "rebuilding record commitment")
	}

	disclosed := models.DisclosedRecord{
		CID:       cid,
		Root:      cert.Root,
		Signature: cert.Signature,
	}
	for _, name := range fields {
		value, err := record.FieldValue(rec, name)
		if err != nil {
			return models.DisclosedRecord{}, err
		}
		proof, err := idr.ProofFor(name)
		if err != nil {
			return models.DisclosedRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "building inclusion proof")
		}
		disclosed.Fields = append(disclosed.Fields, models.DisclosedField{
			Name:  name,
			Value: value,
			Proof: proof,
		})
	}
	return disclosed, nil
}

func (s *Service) certificateFor(ctx context.Context, entry regmodels.Entry) (certmodels.Certificate, error) {
	certCID := entry.Metadata["certificate_cid"]
	if certCID == "" {
		return certmodels.Certificate{}, dErrors.New(dErrors.CodeInvariantViolation, "record has no certificate")
	}
	blob, err := s.content.Get(ctx, certCID)
	if err != nil {
		return certmodels.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading certificate")
	}
	var cert certmodels.Certificate
	if err := json.Unmarshal(blob, &cert); err != nil {
		return certmodels.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "decoding certificate")
	}
	return cert, nil
}

// Verify judges a disclosure against its template. Records are checked
// concurrently and independently; the result is accepted when at least
// MinRecords verify. Signature blobs are kept in every verdict so a
// failed record can still be opened for accountability.
func (s *Service) Verify(ctx context.Context, template models.PurchaseTemplate, disclosed []models.DisclosedRecord) (models.Result, error) {
	ctx, span := s.tracer.Start(ctx, "disclosure.Verify")
	defer span.End()

	if err := ValidateTemplate(template); err != nil {
		return models.Result{}, err
	}

	verdicts := make([]models.Verdict, len(disclosed))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i := range disclosed {
		i := i
		g.Go(func() error {
			verdicts[i] = s.verifyOne(ctx, template, disclosed[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Result{}, err
	}

	valid := 0
	for _, v := range verdicts {
		if v.Valid {
			valid++
		}
	}
	result := models.Result{
		Accepted:   valid >= template.MinRecords,
		ValidCount: valid,
		Verdicts:   verdicts,
		Recipients: s.recipientsFor(ctx, verdicts),
	}
	span.SetAttributes(
		attribute.Int("disclosure.valid", valid),
		attribute.Bool("disclosure.accepted", result.Accepted),
	)
	s.logger.Info("disclosure verified",
		slog.Int("records", len(disclosed)),
		slog.Int("valid", valid),
		slog.Bool("accepted", result.Accepted),
	)

	if !result.Accepted {
		return result, dErrors.Wrapf(ErrInsufficientValid, dErrors.CodeInvariantViolation,
			"%d of %d records valid, need %d", valid, len(disclosed), template.MinRecords)
	}
	return result, nil
}

// recipientsFor collects the payable parties behind the valid records:
// the patient and the author's pseudonym, deduplicated, in a stable
// order. Records missing from the registry contribute nothing.
func (s *Service) recipientsFor(ctx context.Context, verdicts []models.Verdict) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(address string) {
		if address == "" || seen[address] {
			return
		}
		seen[address] = true
		out = append(out, address)
	}

	for _, v := range verdicts {
		if !v.Valid {
			continue
		}
		entry, err := s.registry.Find(ctx, v.CID)
		if err != nil {
			s.logger.Warn("no registry entry for verified record",
				slog.String("cid", v.CID),
				slog.Any("error", err),
			)
			continue
		}
		add(entry.PatientID)
		add(entry.DoctorID)
	}
	sort.Strings(out)
	return out
}

func (s *Service) verifyOne(ctx context.Context, template models.PurchaseTemplate, d models.DisclosedRecord) models.Verdict {
	start := s.now()
	verdict := models.Verdict{CID: d.CID, Signature: d.Signature}

	fail := func(reason string) models.Verdict {
		verdict.Reason = reason
		s.observeVerify("rejected", start)
		return verdict
	}

	rootBytes, err := hex.DecodeString(d.Root)
	if err != nil || len(rootBytes) != merkle.HashSize {
		return fail(models.ReasonMalformed)
	}
	var root merkle.Hash
	copy(root[:], rootBytes)

	if err := s.oracle.Verify(ctx, rootBytes, d.Signature); err != nil {
		return fail(models.ReasonSignatureInvalid)
	}

	byName := make(map[string]models.DisclosedField, len(d.Fields))
	for _, f := range d.Fields {
		byName[f.Name] = f
	}
	for _, name := range template.Fields {
		field, ok := byName[name]
		if !ok {
			return fail(models.ReasonFieldMissing)
		}
		leaf, err := record.LeafFor(name, field.Value)
		if err != nil {
			return fail(models.ReasonMalformed)
		}
		if !merkle.VerifyProof(leaf, field.Proof, root) {
			return fail(models.ReasonProofMismatch)
		}
	}

	verdict.Valid = true
	s.observeVerify("accepted", start)
	return verdict
}

func (s *Service) observeVerify(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.CertificatesVerified.WithLabelValues(outcome).Inc()
	s.metrics.VerifyDurationMs.Observe(float64(s.now().Sub(start).Milliseconds()))
}
