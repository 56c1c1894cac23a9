// Package record defines the clinical record shape and its canonical
// field-leaf encoding. A record is committed as an ordered set of named field
// leaves; certifier and verifier must derive byte-identical leaves, so every
// serialization rule lives here.
package record

import (
	"encoding/json"
	"errors"
	"fmt"

	"medguard/internal/merkle"
)

var (
	ErrUnknownField     = errors.New("record: unknown field name")
	ErrCanonicalization = errors.New("record: field cannot be canonically serialized")
)

// Record is a clinical record as authored by a clinician. Demographics and
// MedicalData are free-form documents; the remaining fields are scalar.
type Record struct {
	Demographics map[string]any `json:"demographics"`
	MedicalData  map[string]any `json:"medical_data"`
	Notes        string         `json:"notes"`
	HospitalInfo string         `json:"hospitalInfo"`
	PatientID    string         `json:"patientID"`
	DoctorID     string         `json:"doctorID"`
	Date         string         `json:"date"`
	Category     string         `json:"category"`

	// Anonymized marks a copy whose author field has been replaced by a
	// pseudonym. It is not part of the committed leaf set.
	Anonymized bool `json:"anonymized,omitempty"`
}

// FieldOrder fixes the leaf positions. Changing this order changes every root.
var FieldOrder = []string{
	"demographics",
	"medical_data",
	"notes",
	"hospitalInfo",
	"patientID",
	"doctorID",
	"date",
	"category",
}

var fieldIndex = func() map[string]int {
	m := make(map[string]int, len(FieldOrder))
	for i, name := range FieldOrder {
		m[name] = i
	}
	return m
}()

// FieldIndex returns the leaf position of a named field.
func FieldIndex(name string) (int, bool) {
	i, ok := fieldIndex[name]
	return i, ok
}

// FieldValue extracts the named field's value from a record.
func FieldValue(rec Record, name string) (any, error) {
	switch name {
	case "demographics":
		return rec.Demographics, nil
	case "medical_data":
		return rec.MedicalData, nil
	case "notes":
		return rec.Notes, nil
	case "hospitalInfo":
		return rec.HospitalInfo, nil
	case "patientID":
		return rec.PatientID, nil
	case "doctorID":
		return rec.DoctorID, nil
	case "date":
		return rec.Date, nil
	case "category":
		return rec.Category, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}

// CanonicalLeafData serializes a named field value into the exact bytes that
// get hashed into its leaf: `name:json`, where the JSON encoder's sorted map
// keys make nested documents deterministic.
func CanonicalLeafData(name string, value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCanonicalization, name, err)
	}
	data := make([]byte, 0, len(name)+1+len(raw))
	data = append(data, name...)
	data = append(data, ':')
	data = append(data, raw...)
	return data, nil
}

// LeafFor computes the leaf hash for one disclosed field value. The verifier
// uses this to rebuild a leaf from plaintext it was handed.
func LeafFor(name string, value any) (merkle.Hash, error) {
	data, err := CanonicalLeafData(name, value)
	if err != nil {
		return merkle.Hash{}, err
	}
	return merkle.LeafHash(data), nil
}

// IDRecord is the committed form of a record: its ordered field leaves and the
// Merkle tree over them. Immutable once built.
type IDRecord struct {
	record Record
	leaves []merkle.Hash
	tree   *merkle.Tree
}

// Build canonicalizes every field of rec and constructs the committed tree.
// Any field that cannot be serialized rejects the whole record.
func Build(rec Record) (*IDRecord, error) {
	leaves := make([]merkle.Hash, 0, len(FieldOrder))
	for _, name := range FieldOrder {
		value, err := FieldValue(rec, name)
		if err != nil {
			return nil, err
		}
		leaf, err := LeafFor(name, value)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}

	tree, err := merkle.New(leaves)
	if err != nil {
		return nil, err
	}
	return &IDRecord{record: rec, leaves: leaves, tree: tree}, nil
}

// Root returns the Merkle root committing to all field leaves.
func (r *IDRecord) Root() merkle.Hash {
	return r.tree.Root()
}

// Record returns the underlying record value.
func (r *IDRecord) Record() Record {
	return r.record
}

// Leaves returns a copy of the ordered leaf hashes.
func (r *IDRecord) Leaves() []merkle.Hash {
	out := make([]merkle.Hash, len(r.leaves))
	copy(out, r.leaves)
	return out
}

// ProofFor returns the inclusion proof for a named field.
func (r *IDRecord) ProofFor(name string) (merkle.Proof, error) {
	idx, ok := FieldIndex(name)
	if !ok {
		return merkle.Proof{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return r.tree.Proof(idx)
}
