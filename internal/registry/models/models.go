package models

import (
	"time"

	dErrors "medguard/pkg/domain-errors"
)

// ContentType classifies what a registered CID points at.
type ContentType string

const (
	TypeRecord   ContentType = "record"
	TypeSharing  ContentType = "sharing"
	TypeTemplate ContentType = "template"
)

func ParseContentType(raw string) (ContentType, error) {
	switch ContentType(raw) {
	case TypeRecord, TypeSharing, TypeTemplate:
		return ContentType(raw), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown content type %q", raw)
	}
}

// Entry is one registered content identifier with its ownership and
// lookup indexes. PatientID and DoctorID index the entry for listing;
// either may be empty.
type Entry struct {
	CID       string            `json:"cid"`
	Owner     string            `json:"owner"`
	Type      ContentType       `json:"type"`
	PatientID string            `json:"patient_id,omitempty"`
	DoctorID  string            `json:"doctor_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
