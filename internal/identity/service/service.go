// Package service implements wallet challenge/response authentication and
// role-gated session lifecycle.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"medguard/internal/identity/models"
	"medguard/internal/platform/config"
	platformmetrics "medguard/internal/platform/metrics"
	dErrors "medguard/pkg/domain-errors"
	"medguard/pkg/platform/sentinel"
)

var (
	ErrInvalidSignature  = errors.New("identity: signature does not recover the claimed address")
	ErrChallengeExpired  = errors.New("identity: challenge expired")
	ErrChallengeNotFound = errors.New("identity: no pending challenge")
	ErrUnassignedRole    = errors.New("identity: no role assigned to address")
)

type ChallengeStore interface {
	Save(ctx context.Context, ch models.Challenge) error
	Consume(ctx context.Context, address string, now time.Time, ttl time.Duration) (models.Challenge, error)
}

type SessionStore interface {
	Save(ctx context.Context, session models.Session) error
	Find(ctx context.Context, address string) (models.Session, error)
	Delete(ctx context.Context, address string) error
}

type RoleStore interface {
	Assign(ctx context.Context, address string, role models.Role) error
	RoleOf(ctx context.Context, address string) (models.Role, error)
}

// Service is the authentication gate consulted by every role-restricted
// operation.
type Service struct {
	challenges ChallengeStore
	sessions   SessionStore
	roles      RoleStore
	logger     *slog.Logger
	metrics    *platformmetrics.Metrics
	now        func() time.Time
}

type Option func(*Service)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *platformmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(challenges ChallengeStore, sessions SessionStore, roles RoleStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		challenges: challenges,
		sessions:   sessions,
		roles:      roles,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueChallenge creates a fresh single-use nonce for the address and returns
// the message the wallet must sign. A new challenge replaces any pending one.
func (s *Service) IssueChallenge(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "not a wallet address: %q", address)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate nonce")
	}

	ch := models.Challenge{
		Address:  strings.ToLower(address),
		Nonce:    hex.EncodeToString(buf),
		IssuedAt: s.now(),
	}
	if err := s.challenges.Save(ctx, ch); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "store challenge")
	}

	if s.metrics != nil {
		s.metrics.AuthChallengesIssued.Inc()
	}
	return ch.Message(), nil
}

// Verify checks a wallet signature over the pending challenge message and, on
// success, creates the session. The challenge is consumed whether or not the
// signature verifies.
func (s *Service) Verify(ctx context.Context, address, signature string) (models.Session, error) {
	now := s.now()

	ch, err := s.challenges.Consume(ctx, address, now, config.ChallengeTTL)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		s.countVerification("no_challenge")
		return models.Session{}, dErrors.Wrap(ErrChallengeNotFound, dErrors.CodeNotFound,
			fmt.Sprintf("no pending challenge for %s", address))
	case errors.Is(err, sentinel.ErrExpired):
		s.countVerification("expired")
		return models.Session{}, dErrors.Wrap(ErrChallengeExpired, dErrors.CodeExpired,
			fmt.Sprintf("challenge for %s expired", address))
	case err != nil:
		return models.Session{}, dErrors.Wrap(err, dErrors.CodeInternal, "consume challenge")
	}

	recovered, err := recoverSigner(ch.Message(), signature)
	if err != nil || recovered != common.HexToAddress(address) {
		s.countVerification("invalid_signature")
		s.logger.Warn("challenge signature verification failed",
			slog.String("address", strings.ToLower(address)))
		return models.Session{}, dErrors.Wrap(ErrInvalidSignature, dErrors.CodeUnauthorized,
			"signature verification failed")
	}

	role, err := s.roles.RoleOf(ctx, address)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.countVerification("unassigned_role")
		return models.Session{}, dErrors.Wrap(ErrUnassignedRole, dErrors.CodeForbidden,
			fmt.Sprintf("no role assigned to %s", address))
	}
	if err != nil {
		return models.Session{}, dErrors.Wrap(err, dErrors.CodeInternal, "look up role")
	}

	session := models.Session{
		Address:  strings.ToLower(address),
		Role:     role,
		Nonce:    ch.Nonce,
		IssuedAt: now,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return models.Session{}, dErrors.Wrap(err, dErrors.CodeInternal, "store session")
	}

	s.countVerification("success")
	s.logger.Info("authentication successful",
		slog.String("address", session.Address), slog.String("role", string(role)))
	return session, nil
}

// IsAuthenticated reports whether a live session exists for the address.
// Expired sessions are evicted lazily here.
func (s *Service) IsAuthenticated(ctx context.Context, address string) bool {
	session, err := s.sessions.Find(ctx, address)
	if err != nil {
		return false
	}
	if session.ExpiredAt(s.now(), config.SessionTTL) {
		_ = s.sessions.Delete(ctx, address)
		return false
	}
	return true
}

// HasRole reports whether the address holds a live session with the role.
func (s *Service) HasRole(ctx context.Context, address string, role models.Role) bool {
	session, err := s.sessions.Find(ctx, address)
	if err != nil {
		return false
	}
	if session.ExpiredAt(s.now(), config.SessionTTL) {
		_ = s.sessions.Delete(ctx, address)
		return false
	}
	return session.Role == role
}

// Logout deletes the session unconditionally; it is idempotent.
func (s *Service) Logout(ctx context.Context, address string) error {
	return s.sessions.Delete(ctx, address)
}

// AssignRole durably binds a role to an address.
func (s *Service) AssignRole(ctx context.Context, address string, role models.Role) error {
	if !common.IsHexAddress(address) {
		return dErrors.Newf(dErrors.CodeInvalidInput, "not a wallet address: %q", address)
	}
	if err := s.roles.Assign(ctx, address, role); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "assign role")
	}
	s.logger.Info("role assigned",
		slog.String("address", strings.ToLower(address)), slog.String("role", string(role)))
	return nil
}

// RoleOf returns the durable role assignment for an address, independent of
// session state.
func (s *Service) RoleOf(ctx context.Context, address string) (models.Role, error) {
	role, err := s.roles.RoleOf(ctx, address)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.Wrap(ErrUnassignedRole, dErrors.CodeNotFound,
			fmt.Sprintf("no role assigned to %s", address))
	}
	return role, err
}

func (s *Service) countVerification(outcome string) {
	if s.metrics != nil {
		s.metrics.AuthVerifications.WithLabelValues(outcome).Inc()
	}
}

// recoverSigner recovers the address that produced an EIP-191 personal_sign
// signature over message.
func recoverSigner(message, signature string) (common.Address, error) {
	sig := common.FromHex(signature)
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d",
			crypto.SignatureLength, len(sig))
	}
	// Wallets emit V as 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := personalSignDigest(message)
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// personalSignDigest applies the EIP-191 prefix before hashing, matching what
// wallet personal_sign implementations sign.
func personalSignDigest(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}
