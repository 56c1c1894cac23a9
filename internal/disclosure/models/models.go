package models

import (
	"medguard/internal/groupsig"
	"medguard/internal/merkle"
)

// PurchaseTemplate states what a buyer wants: which fields of how many
// records in a category, and who receives the disclosure.
type PurchaseTemplate struct {
	Buyer      string   `json:"buyer"`
	Category   string   `json:"category"`
	Fields     []string `json:"fields"`
	MinRecords int      `json:"min_records"`
}

// DisclosedField is one revealed field with its inclusion proof. All
// other fields of the record stay hidden behind the root.
type DisclosedField struct {
	Name  string       `json:"name"`
	Value any          `json:"value"`
	Proof merkle.Proof `json:"proof"`
}

// DisclosedRecord is the sellable unit: the record's commitment, the
// group signature over it, and only the fields the template asked for.
type DisclosedRecord struct {
	CID       string             `json:"cid"`
	Root      string             `json:"root"`
	Signature groupsig.Signature `json:"signature"`
	Fields    []DisclosedField   `json:"fields"`
}

// Reasons a record fails verification.
const (
	ReasonProofMismatch    = "merkle_proof_mismatch"
	ReasonSignatureInvalid = "group_signature_invalid"
	ReasonFieldMissing     = "required_field_missing"
	ReasonMalformed        = "malformed_disclosure"
)

// Verdict is the per-record outcome. The signature blob is retained on
// failure so an accountability opening can still target the record.
type Verdict struct {
	CID       string             `json:"cid"`
	Valid     bool               `json:"valid"`
	Reason    string             `json:"reason,omitempty"`
	Signature groupsig.Signature `json:"signature"`
}

// Result is the outcome of verifying a whole disclosure against a
// template. Accepted means enough records verified independently.
// Recipients lists the payable parties behind the valid records, by
// patient address and author pseudonym.
type Result struct {
	Accepted   bool      `json:"accepted"`
	ValidCount int       `json:"valid_count"`
	Verdicts   []Verdict `json:"verdicts"`
	Recipients []string  `json:"recipients,omitempty"`
}
