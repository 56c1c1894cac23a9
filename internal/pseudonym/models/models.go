package models

import "time"

// Mapping links a real principal address to one issued pseudonym.
// One principal may hold many pseudonyms; each pseudonym maps back to
// exactly one principal.
type Mapping struct {
	Pseudonym string    `json:"pseudonym"`
	Address   string    `json:"address"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// ResolutionGrant is a single-use capability to resolve one pseudonym.
// Grants are minted only when a threshold opening completes.
type ResolutionGrant struct {
	ID        string    `json:"id"`
	Pseudonym string    `json:"pseudonym"`
	IssuedAt  time.Time `json:"issuedAt"`
}
