package models

import (
	"time"

	"medguard/internal/groupsig"
)

// State of an opening request. Partials may arrive in either order;
// Combined is terminal and reached exactly once.
type State string

const (
	StateRequested State = "requested"
	StatePartial   State = "partial"
	StateCombined  State = "combined"
)

// Request tracks one accountability opening: which record's signature
// is being opened, which authorities have contributed, and the outcome.
type Request struct {
	ID        string             `json:"id"`
	Requester string             `json:"requester"`
	CID       string             `json:"cid"`
	Reason    string             `json:"reason"`
	Pseudonym string             `json:"pseudonym"`
	Signature groupsig.Signature `json:"signature"`
	State     State              `json:"state"`

	Shares map[groupsig.Opener][]byte `json:"-"`

	// populated once combined
	Member     string    `json:"member,omitempty"`
	GrantID    string    `json:"grant_id,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	CombinedAt time.Time `json:"combinedAt,omitzero"`
}
