// Package models defines the core entities of the draft and record lifecycle.
package models

import "slices"

const (
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// Identity is the caller on whose behalf a workflow operation runs.
type Identity struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

// SystemIdentity is used by background jobs such as the expiry sweeper and the re-indexer.
var SystemIdentity = Identity{ID: "system", Roles: []string{RoleSystem}}

func (i Identity) IsAnonymous() bool {
	return i.ID == ""
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}
