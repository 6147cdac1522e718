package models

import "time"

// UserIdentity is a directory-sourced principal. Updated idempotently
// by (name, source); group membership reflects the most recent
// directory snapshot in effect.
type UserIdentity struct {
	ID         string
	Principal  string
	Groups     []string
	Department string
	Title      string
	Active     bool
	Source     string
	AsOf       time.Time
}

// HasGroup reports membership in the given directory group.
func (u UserIdentity) HasGroup(group string) bool {
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}
	return false
}
