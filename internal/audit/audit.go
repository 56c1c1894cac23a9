// Package audit keeps a compact trail of accountability-sensitive
// events. Recovered identities are never stored in the clear; events
// carry a hash commitment that can be checked against a later
// disclosure of the identity.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	KindOpeningRequested   = "opening_requested"
	KindPartialSubmitted   = "partial_submitted"
	KindOpeningCombined    = "opening_combined"
	KindDisclosureVerified = "disclosure_verified"
)

// Event is one audit entry. Subject identifies what the event is about
// (a CID or an opening request ID). Commitment, when set, is the hash
// commitment to a sensitive value.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Actor      string    `json:"actor"`
	Subject    string    `json:"subject"`
	Commitment string    `json:"commitment,omitempty"`
	At         time.Time `json:"at"`
}

// Commit produces the hash commitment recorded in place of a sensitive
// value.
func Commit(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Recorder appends audit events.
type Recorder interface {
	Record(ctx context.Context, kind, actor, subject, commitment string)
}

// Trail is an in-memory recorder that also emits each event to the
// structured log.
type Trail struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	events []Event
}

func NewTrail(logger *slog.Logger) *Trail {
	return &Trail{logger: logger, now: time.Now}
}

func (t *Trail) Record(_ context.Context, kind, actor, subject, commitment string) {
	event := Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Actor:      actor,
		Subject:    subject,
		Commitment: commitment,
		At:         t.now(),
	}

	t.mu.Lock()
	t.events = append(t.events, event)
	t.mu.Unlock()

	t.logger.Info("audit event",
		slog.String("kind", kind),
		slog.String("actor", actor),
		slog.String("subject", subject),
	)
}

// Events returns a snapshot of the trail in recording order.
func (t *Trail) Events() []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}
