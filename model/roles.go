package model

import "time"

// Role names recognised by the authorization registry. The owner is not a
// role: it is a single fixed identity with super-authority over both sets.
const (
	RoleManufacturer = "manufacturer"
	RoleTracker      = "tracker"
)

// OwnerRecord pins the ledger owner, fixed at bootstrap time.
type OwnerRecord struct {
	ObjectType string    `json:"objectType"` // "LedgerMeta"
	Owner      string    `json:"owner"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RoleGrant records membership of one identity in one role set.
type RoleGrant struct {
	ObjectType string    `json:"objectType"` // "RoleGrant"
	Role       string    `json:"role"`
	Identity   string    `json:"identity"`
	GrantedBy  string    `json:"grantedBy"`
	GrantedAt  time.Time `json:"grantedAt"`
}
