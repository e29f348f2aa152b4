package database

import (
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

// Constraint names, see fs/migrations.
const (
	UsersExternalIDKey  = "users_clerk_id_key"
	SchoolsSubdomainKey = "schools_subdomain_key"
	MembershipsPKey     = "user_schools_pkey"
)

// UniqueViolation returns the name of the unique constraint err violates, if any.
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// IsUniqueViolation reports whether err violates the named unique constraint.
func IsUniqueViolation(err error, constraint string) bool {
	name, ok := UniqueViolation(err)
	return ok && name == constraint
}
