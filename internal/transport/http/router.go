// Package httptransport is the thin HTTP layer. Handlers decode,
// delegate to domain services, and encode; business rules stay in the
// services.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	certmodels "medguard/internal/certifier/models"
	discmodels "medguard/internal/disclosure/models"
	"medguard/internal/groupsig"
	idmodels "medguard/internal/identity/models"
	"medguard/internal/jwttoken"
	openmodels "medguard/internal/opening/models"
	"medguard/internal/platform/metrics"
	"medguard/internal/platform/middleware"
	"medguard/internal/platform/ratelimit"
	"medguard/internal/record"
	regmodels "medguard/internal/registry/models"
)

type IdentityService interface {
	IssueChallenge(ctx context.Context, address string) (string, error)
	Verify(ctx context.Context, address, signature string) (idmodels.Session, error)
	Logout(ctx context.Context, address string) error
	AssignRole(ctx context.Context, address string, role idmodels.Role) error
}

type CertifierService interface {
	Certify(ctx context.Context, rec record.Record) (certmodels.Certificate, error)
	Retrieve(ctx context.Context, caller, cid string) (record.Record, error)
	RetrieveShared(ctx context.Context, caller, sharingCID string) (record.Record, error)
	Share(ctx context.Context, patient, cid, recipient string) (string, error)
	ListForPatient(ctx context.Context, patient string) ([]regmodels.Entry, error)
	ListForDoctor(ctx context.Context, doctor string) ([]regmodels.Entry, error)
}

type DisclosureService interface {
	RegisterTemplate(ctx context.Context, buyer string, template discmodels.PurchaseTemplate) (string, error)
	TemplateFor(ctx context.Context, cid string) (discmodels.PurchaseTemplate, error)
	Disclose(ctx context.Context, patient string, cids []string, template discmodels.PurchaseTemplate) ([]discmodels.DisclosedRecord, error)
	Verify(ctx context.Context, template discmodels.PurchaseTemplate, disclosed []discmodels.DisclosedRecord) (discmodels.Result, error)
}

type OpeningService interface {
	Request(ctx context.Context, requester, cid, reason string) (openmodels.Request, error)
	SubmitPartial(ctx context.Context, requestID string, opener groupsig.Opener) (openmodels.Request, error)
	Result(ctx context.Context, caller, requestID string) (openmodels.Request, error)
}

type PseudonymService interface {
	Resolve(ctx context.Context, grantID, pseudonym string) (string, error)
}

// Handler bundles the domain services behind the HTTP API.
type Handler struct {
	identity   IdentityService
	tokens     *jwttoken.Service
	certifier  CertifierService
	disclosure DisclosureService
	opening    OpeningService
	pseudonyms PseudonymService
	sessionTTL time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics

	authLimiter *ratelimit.Limiter
}

type HandlerOption func(*Handler)

// WithAuthLimiter rate limits the unauthenticated auth endpoints.
func WithAuthLimiter(l *ratelimit.Limiter) HandlerOption {
	return func(h *Handler) {
		h.authLimiter = l
	}
}

func NewHandler(
	identity IdentityService,
	tokens *jwttoken.Service,
	certifier CertifierService,
	disclosure DisclosureService,
	opening OpeningService,
	pseudonyms PseudonymService,
	sessionTTL time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		identity:   identity,
		tokens:     tokens,
		certifier:  certifier,
		disclosure: disclosure,
		opening:    opening,
		pseudonyms: pseudonyms,
		sessionTTL: sessionTTL,
		logger:     logger,
		metrics:    m,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter wires all endpoints with the platform middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.Latency(h.metrics))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if h.authLimiter != nil {
			r.Use(ratelimit.Middleware(h.authLimiter, h.logger))
		}
		r.Post("/auth/challenge", h.handleChallenge)
		r.Post("/auth/verify", h.handleVerify)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.tokens, h.logger))

		r.Post("/auth/logout", h.handleLogout)
		r.With(middleware.RequireRole(h.logger, string(idmodels.RoleGroupManager))).
			Post("/auth/roles", h.handleAssignRole)

		r.With(middleware.RequireRole(h.logger, string(idmodels.RoleDoctor))).
			Post("/records", h.handleCertify)
		r.Get("/records", h.handleListRecords)
		r.With(middleware.RequireRole(h.logger, string(idmodels.RolePatient))).
			Get("/records/{cid}", h.handleRetrieveRecord)
		r.With(middleware.RequireRole(h.logger, string(idmodels.RolePatient))).
			Post("/records/{cid}/share", h.handleShareRecord)
		r.Get("/records/shared/{cid}", h.handleRetrieveShared)

		r.With(middleware.RequireRole(h.logger, string(idmodels.RoleBuyer))).
			Post("/templates", h.handleRegisterTemplate)
		r.Get("/templates/{cid}", h.handleGetTemplate)

		r.With(middleware.RequireRole(h.logger, string(idmodels.RolePatient))).
			Post("/disclosures", h.handleDisclose)
		r.With(middleware.RequireRole(h.logger, string(idmodels.RoleBuyer))).
			Post("/disclosures/verify", h.handleVerifyDisclosure)

		r.With(middleware.RequireRole(h.logger,
			string(idmodels.RoleBuyer),
			string(idmodels.RoleGroupManager),
			string(idmodels.RoleRevocationManager))).
			Post("/openings", h.handleRequestOpening)
		r.With(middleware.RequireRole(h.logger,
			string(idmodels.RoleGroupManager),
			string(idmodels.RoleRevocationManager))).
			Post("/openings/{id}/partials", h.handleSubmitPartial)
		r.Get("/openings/{id}", h.handleOpeningResult)

		r.Post("/pseudonyms/resolve", h.handleResolvePseudonym)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
