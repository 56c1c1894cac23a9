package service

import (
	"context"
	"log/slog"
	"time"

	"medguard/internal/registry/models"
	dErrors "medguard/pkg/domain-errors"
	"medguard/pkg/platform/sentinel"
)

var ErrEntryNotFound = dErrors.New(dErrors.CodeNotFound, "registry entry not found")

type Store interface {
	Register(ctx context.Context, e models.Entry) error
	Find(ctx context.Context, cid string) (models.Entry, error)
	ListByPatient(ctx context.Context, address string) ([]models.Entry, error)
	ListByDoctor(ctx context.Context, address string) ([]models.Entry, error)
	ListByOwner(ctx context.Context, address string) ([]models.Entry, error)
	Remove(ctx context.Context, cid string) error
}

// Service is the content registry: the authoritative index of which
// CIDs exist, who owns them, and which patients and doctors they
// concern.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register records a CID in the registry. Registering the same CID
// again refreshes ownership and metadata without duplicating indexes.
func (s *Service) Register(ctx context.Context, e models.Entry) error {
	if e.CID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "cid is required")
	}
	if e.Owner == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "owner is required")
	}
	if _, err := models.ParseContentType(string(e.Type)); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	if err := s.store.Register(ctx, e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "registering cid")
	}

	s.logger.Info("registered cid",
		slog.String("cid", e.CID),
		slog.String("type", string(e.Type)),
	)
	return nil
}

func (s *Service) Find(ctx context.Context, cid string) (models.Entry, error) {
	e, err := s.store.Find(ctx, cid)
	if err != nil {
		if dErrors.Is(err, sentinel.ErrNotFound) {
			return models.Entry{}, ErrEntryNotFound
		}
		return models.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "finding cid")
	}
	return e, nil
}

func (s *Service) ListByPatient(ctx context.Context, address string) ([]models.Entry, error) {
	return s.store.ListByPatient(ctx, address)
}

func (s *Service) ListByDoctor(ctx context.Context, address string) ([]models.Entry, error) {
	return s.store.ListByDoctor(ctx, address)
}

func (s *Service) ListByOwner(ctx context.Context, address string) ([]models.Entry, error) {
	return s.store.ListByOwner(ctx, address)
}

// Remove deletes an entry and its index references.
func (s *Service) Remove(ctx context.Context, cid string) error {
	if err := s.store.Remove(ctx, cid); err != nil {
		if dErrors.Is(err, sentinel.ErrNotFound) {
			return ErrEntryNotFound
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "removing cid")
	}
	s.logger.Info("removed cid", slog.String("cid", cid))
	return nil
}
