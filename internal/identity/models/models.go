package models

import (
	"fmt"
	"time"

	dErrors "medguard/pkg/domain-errors"
)

// Role is a durable, one-to-one assignment for a wallet address.
type Role string

const (
	RolePatient           Role = "patient"
	RoleDoctor            Role = "doctor"
	RoleHospital          Role = "hospital"
	RoleBuyer             Role = "buyer"
	RoleGroupManager      Role = "group_manager"
	RoleRevocationManager Role = "revocation_manager"
)

var validRoles = map[Role]bool{
	RolePatient:           true,
	RoleDoctor:            true,
	RoleHospital:          true,
	RoleBuyer:             true,
	RoleGroupManager:      true,
	RoleRevocationManager: true,
}

// ParseRole constructs a Role from external input, enforcing the allowlist.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !validRoles[r] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", s)
	}
	return r, nil
}

// Challenge is a single-use authentication nonce bound to an address.
type Challenge struct {
	Address  string
	Nonce    string
	IssuedAt time.Time
}

// Message returns the exact string a wallet must sign. Verification recovers
// the signer over these bytes, so the format is part of the protocol.
func (c Challenge) Message() string {
	return fmt.Sprintf("Sign this message to authenticate with the medguard platform: %s", c.Nonce)
}

// ExpiredAt reports whether the challenge is past its TTL at the given time.
func (c Challenge) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.IssuedAt) > ttl
}

// Session is the authenticated state for one address. There is at most one
// live session per address.
type Session struct {
	Address  string    `json:"address"`
	Role     Role      `json:"role"`
	Nonce    string    `json:"nonce"`
	IssuedAt time.Time `json:"issued_at"`
}

// ExpiredAt reports whether the session is past its TTL at the given time.
func (s Session) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.IssuedAt) > ttl
}
