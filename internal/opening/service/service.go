package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"medguard/internal/audit"
	certmodels "medguard/internal/certifier/models"
	"medguard/internal/groupsig"
	"medguard/internal/ledger"
	"medguard/internal/opening/models"
	"medguard/internal/platform/metrics"
	pseudomodels "medguard/internal/pseudonym/models"
	regmodels "medguard/internal/registry/models"
	dErrors "medguard/pkg/domain-errors"
	"medguard/pkg/platform/sentinel"
)

var (
	ErrRequestNotFound = dErrors.New(dErrors.CodeNotFound, "opening request not found")
	ErrPartialReplay   = dErrors.New(dErrors.CodeConflict, "partial share already submitted for this request")
	ErrAlreadyCombined = dErrors.New(dErrors.CodeConflict, "opening request already combined")
	ErrThresholdNotMet = dErrors.New(dErrors.CodeInvariantViolation, "opening threshold not met")
	ErrNotRequester    = dErrors.New(dErrors.CodeForbidden, "only the requester may read an opening result")
)

type Store interface {
	Save(ctx context.Context, req *models.Request) error
	Find(ctx context.Context, id string) (models.Request, error)
	Update(ctx context.Context, id string, fn func(*models.Request) error) (models.Request, error)
}

type Certificates interface {
	CertificateFor(ctx context.Context, cid string) (certmodels.Certificate, error)
}

type Registry interface {
	Find(ctx context.Context, cid string) (regmodels.Entry, error)
}

type GrantMinter interface {
	MintGrant(pseudonym string) pseudomodels.ResolutionGrant
}

// Coordinator drives 2-of-2 threshold openings. Both the group manager
// and the revocation manager must contribute a partial before the
// signer behind a record can be recovered.
type Coordinator struct {
	oracle   groupsig.Oracle
	certs    Certificates
	registry Registry
	store    Store
	grants   GrantMinter
	trail    audit.Recorder
	chain    ledger.Collaborator
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Coordinator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(
	oracle groupsig.Oracle,
	certs Certificates,
	registry Registry,
	store Store,
	grants GrantMinter,
	trail audit.Recorder,
	chain ledger.Collaborator,
	logger *slog.Logger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		oracle:   oracle,
		certs:    certs,
		registry: registry,
		store:    store,
		grants:   grants,
		trail:    trail,
		chain:    chain,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request starts an opening for the signature behind a certified
// record. The pseudonym under which the record was registered is
// captured so a grant can be minted once the opening combines.
func (c *Coordinator) Request(ctx context.Context, requester, cid, reason string) (models.Request, error) {
	cert, err := c.certs.CertificateFor(ctx, cid)
	if err != nil {
		return models.Request{}, err
	}
	entry, err := c.registry.Find(ctx, cid)
	if err != nil {
		return models.Request{}, err
	}

	req := &models.Request{
		ID:        uuid.NewString(),
		Requester: requester,
		CID:       cid,
		Reason:    reason,
		Pseudonym: entry.DoctorID,
		Signature: cert.Signature,
		State:     models.StateRequested,
		Shares:    make(map[groupsig.Opener][]byte),
		CreatedAt: c.now(),
	}
	if err := c.store.Save(ctx, req); err != nil {
		return models.Request{}, dErrors.Wrap(err, dErrors.CodeInternal, "saving opening request")
	}

	c.trail.Record(ctx, audit.KindOpeningRequested, requester, req.ID, "")
	if err := c.chain.RequestOpening(ctx, req.ID, cid); err != nil {
		c.logger.Warn("ledger rejected opening request", slog.String("error", err.Error()))
	}
	c.logger.Info("opening requested",
		slog.String("request_id", req.ID),
		slog.String("cid", cid),
	)
	return *req, nil
}

// SubmitPartial records one authority's share. The share is bound to
// this request's signature and each authority may contribute once.
// When the second share lands the request combines atomically.
func (c *Coordinator) SubmitPartial(ctx context.Context, requestID string, opener groupsig.Opener) (models.Request, error) {
	current, err := c.store.Find(ctx, requestID)
	if err != nil {
		if dErrors.Is(err, sentinel.ErrNotFound) {
			return models.Request{}, ErrRequestNotFound
		}
		return models.Request{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading opening request")
	}

	share, err := c.oracle.PartialOpen(ctx, current.Signature, opener)
	if err != nil {
		return models.Request{}, err
	}

	updated, err := c.store.Update(ctx, requestID, func(req *models.Request) error {
		if req.State == models.StateCombined {
			return ErrAlreadyCombined
		}
		if _, dup := req.Shares[opener]; dup {
			return ErrPartialReplay
		}
		req.Shares[opener] = share
		req.State = models.StatePartial

		if len(req.Shares) < 2 {
			return nil
		}

		member, err := c.oracle.Combine(ctx,
			req.Shares[groupsig.OpenerGroupManager],
			req.Shares[groupsig.OpenerRevocationManager],
		)
		if err != nil {
			return err
		}
		grant := c.grants.MintGrant(req.Pseudonym)
		req.Member = member
		req.GrantID = grant.ID
		req.State = models.StateCombined
		req.CombinedAt = c.now()
		return nil
	})
	if err != nil {
		if dErrors.Is(err, sentinel.ErrNotFound) {
			return models.Request{}, ErrRequestNotFound
		}
		return models.Request{}, err
	}

	c.trail.Record(ctx, audit.KindPartialSubmitted, string(opener), requestID, "")
	if updated.State == models.StateCombined {
		c.trail.Record(ctx, audit.KindOpeningCombined, updated.Requester, requestID, audit.Commit(updated.Member))
		if err := c.chain.ApproveOpening(ctx, requestID, len(updated.Shares)); err != nil {
			c.logger.Warn("ledger rejected opening approval", slog.String("error", err.Error()))
		}
		if c.metrics != nil {
			c.metrics.OpeningsCombined.Inc()
		}
		c.logger.Info("opening combined", slog.String("request_id", requestID))
	}
	return updated, nil
}

// Result returns the recovered member and resolution grant, only once
// the request has combined and only to the principal who filed it.
func (c *Coordinator) Result(ctx context.Context, caller, requestID string) (models.Request, error) {
	req, err := c.store.Find(ctx, requestID)
	if err != nil {
		if dErrors.Is(err, sentinel.ErrNotFound) {
			return models.Request{}, ErrRequestNotFound
		}
		return models.Request{}, dErrors.Wrap(err, dErrors.CodeInternal, "loading opening request")
	}
	if !strings.EqualFold(req.Requester, caller) {
		return models.Request{}, ErrNotRequester
	}
	if req.State != models.StateCombined {
		return models.Request{}, ErrThresholdNotMet
	}
	return req, nil
}
