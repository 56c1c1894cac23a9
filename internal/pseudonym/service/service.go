package service

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"medguard/internal/pseudonym/models"
	"medguard/internal/record"
	dErrors "medguard/pkg/domain-errors"
	"medguard/pkg/platform/sentinel"
)

var (
	ErrPseudonymNotFound = dErrors.New(dErrors.CodeNotFound, "pseudonym not found")
	ErrGrantRequired     = dErrors.New(dErrors.CodeForbidden, "pseudonym resolution requires a grant")
	ErrGrantMismatch     = dErrors.New(dErrors.CodeForbidden, "grant does not cover this pseudonym")
)

type Store interface {
	Save(ctx context.Context, m models.Mapping) error
	FindByPseudonym(ctx context.Context, pseudonym string) (models.Mapping, error)
	FindByAddress(ctx context.Context, address string) ([]string, error)
}

// Broker issues unlinkable pseudonyms for record authors and resolves
// them back to principals only under a single-use grant.
type Broker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	grants map[string]models.ResolutionGrant
}

func NewBroker(store Store, logger *slog.Logger) *Broker {
	return &Broker{
		store:  store,
		logger: logger,
		now:    time.Now,
		grants: make(map[string]models.ResolutionGrant),
	}
}

// Issue mints a fresh address-shaped pseudonym for the principal. The
// pseudonym carries no key material; it only has to be well-formed and
// unlinkable, so random bytes suffice.
func (b *Broker) Issue(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid principal address")
	}

	var raw [common.AddressLength]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generating pseudonym")
	}
	pseudonym := common.BytesToAddress(raw[:]).Hex()

	err := b.store.Save(ctx, models.Mapping{
		Pseudonym: pseudonym,
		Address:   address,
		IssuedAt:  b.now(),
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "saving pseudonym mapping")
	}

	b.logger.Info("issued pseudonym", slog.String("pseudonym", pseudonym))
	return pseudonym, nil
}

// Anonymize returns a copy of the record with the doctor identity
// replaced by a fresh pseudonym. The original record is not modified.
func (b *Broker) Anonymize(ctx context.Context, rec record.Record) (record.Record, error) {
	pseudonym, err := b.Issue(ctx, rec.DoctorID)
	if err != nil {
		return record.Record{}, err
	}

	anon := rec
	anon.DoctorID = pseudonym
	anon.Anonymized = true
	return anon, nil
}

// PseudonymsOf lists the pseudonyms issued to a principal.
func (b *Broker) PseudonymsOf(ctx context.Context, address string) ([]string, error) {
	return b.store.FindByAddress(ctx, address)
}

// MintGrant creates a single-use resolution capability for one
// pseudonym. Only the opening coordinator calls this, after a
// threshold opening combines.
func (b *Broker) MintGrant(pseudonym string) models.ResolutionGrant {
	grant := models.ResolutionGrant{
		ID:        uuid.NewString(),
		Pseudonym: pseudonym,
		IssuedAt:  b.now(),
	}

	b.mu.Lock()
	b.grants[grant.ID] = grant
	b.mu.Unlock()

	b.logger.Info("minted resolution grant", slog.String("grant_id", grant.ID))
	return grant
}

// Resolve maps a pseudonym back to the real principal. The grant is
// consumed whether or not resolution succeeds.
func (b *Broker) Resolve(ctx context.Context, grantID, pseudonym string) (string, error) {
	b.mu.Lock()
	grant, ok := b.grants[grantID]
	if ok {
		delete(b.grants, grantID)
	}
	b.mu.Unlock()

	if !ok {
		return "", ErrGrantRequired
	}
	if grant.Pseudonym != pseudonym {
		return "", ErrGrantMismatch
	}

	m, err := b.store.FindByPseudonym(ctx, pseudonym)
	if err != nil {
		if dErrors.Is(err, sentinel.ErrNotFound) {
			return "", ErrPseudonymNotFound
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "looking up pseudonym")
	}

	b.logger.Info("resolved pseudonym",
		slog.String("pseudonym", pseudonym),
		slog.String("grant_id", grantID),
	)
	return m.Address, nil
}
