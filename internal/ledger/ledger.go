// Package ledger abstracts the external accountability ledger that
// anchors record commitments and opening decisions. Deployments back it
// with a chain client; the in-memory recorder serves development and
// tests.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Collaborator receives the events worth anchoring externally.
type Collaborator interface {
	RecordMetadata(ctx context.Context, cid, root string) error
	RequestOpening(ctx context.Context, requestID, cid string) error
	ApproveOpening(ctx context.Context, requestID string, approvals int) error
}

// EntryKind labels recorded ledger entries.
type EntryKind string

const (
	KindMetadata EntryKind = "metadata"
	KindRequest  EntryKind = "opening_request"
	KindApproval EntryKind = "opening_approval"
)

type Entry struct {
	Kind      EntryKind `json:"kind"`
	CID       string    `json:"cid,omitempty"`
	Root      string    `json:"root,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Approvals int       `json:"approvals,omitempty"`
	At        time.Time `json:"at"`
}

// MemoryRecorder is the in-process Collaborator.
type MemoryRecorder struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryRecorder(logger *slog.Logger) *MemoryRecorder {
	return &MemoryRecorder{logger: logger, now: time.Now}
}

func (r *MemoryRecorder) RecordMetadata(_ context.Context, cid, root string) error {
	r.append(Entry{Kind: KindMetadata, CID: cid, Root: root})
	r.logger.Debug("ledger metadata recorded", slog.String("cid", cid))
	return nil
}

func (r *MemoryRecorder) RequestOpening(_ context.Context, requestID, cid string) error {
	r.append(Entry{Kind: KindRequest, RequestID: requestID, CID: cid})
	r.logger.Debug("ledger opening requested", slog.String("request_id", requestID))
	return nil
}

func (r *MemoryRecorder) ApproveOpening(_ context.Context, requestID string, approvals int) error {
	r.append(Entry{Kind: KindApproval, RequestID: requestID, Approvals: approvals})
	r.logger.Debug("ledger opening approved", slog.String("request_id", requestID))
	return nil
}

func (r *MemoryRecorder) append(e Entry) {
	e.At = r.now()
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Entries returns a snapshot in recording order.
func (r *MemoryRecorder) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
