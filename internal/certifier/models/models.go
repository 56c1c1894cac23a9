package models

import (
	"time"

	"medguard/internal/groupsig"
)

// Certificate is the product of certifying one record: where the
// encrypted payload lives, the commitment it was signed under, the
// escrowed patient key, and the group signature over the root.
type Certificate struct {
	CID       string             `json:"cid"`
	Root      string             `json:"root"`
	EID       []byte             `json:"eId"`
	Signature groupsig.Signature `json:"signature"`
	IssuedAt  time.Time          `json:"issuedAt"`
}

// SharingGrant is the stored payload of a record shared with another
// principal: the record's CID plus its symmetric key wrapped for the
// recipient.
type SharingGrant struct {
	RecordCID  string `json:"record_cid"`
	WrappedKey []byte `json:"wrapped_key"`
	Recipient  string `json:"recipient"`
	SharedBy   string `json:"shared_by"`
}
