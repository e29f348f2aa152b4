package core

import (
	"context"
	"database/sql"
)

// DBExecutor is satisfied by *sql.DB, *sql.Tx and their sqlx counterparts.
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// StoreScope is the access mode a store handle carries.
type StoreScope uint8

const (
	// ScopeSession is bound to one signed-in identity and subject to row-level policies.
	ScopeSession StoreScope = iota + 1
	// ScopeElevated bypasses row-level policies. Only trusted server code holds one.
	ScopeElevated
)

func (s StoreScope) String() string {
	switch s {
	case ScopeSession:
		return "session"
	case ScopeElevated:
		return "elevated"
	default:
		return "invalid"
	}
}

// StoreHandle is passed to every repository call and selects the access mode it runs with.
// The zero value is invalid.
type StoreHandle struct {
	scope   StoreScope
	subject string
}

// Session returns a handle acting on behalf of the identity with the given external ID.
func Session(externalID string) StoreHandle {
	return StoreHandle{scope: ScopeSession, subject: externalID}
}

// Elevated returns a privileged handle.
func Elevated() StoreHandle {
	return StoreHandle{scope: ScopeElevated}
}

func (h StoreHandle) Scope() StoreScope { return h.scope }
func (h StoreHandle) Subject() string   { return h.subject }
func (h StoreHandle) IsElevated() bool  { return h.scope == ScopeElevated }

// Valid reports whether h was built by Session (with a subject) or Elevated.
func (h StoreHandle) Valid() bool {
	switch h.scope {
	case ScopeElevated:
		return true
	case ScopeSession:
		return h.subject != ""
	default:
		return false
	}
}
