package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the failures surfaced by the tenancy services.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindDuplicateSubdomain
	KindNotAuthenticated
	KindStoreUnavailable
	KindProvisioningFailed
	KindOrphanedTenant // internal only; resolved by retry or compensation
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindValidation:         "validation",
	KindDuplicateSubdomain: "duplicate subdomain",
	KindNotAuthenticated:   "not authenticated",
	KindStoreUnavailable:   "store unavailable",
	KindProvisioningFailed: "provisioning failed",
	KindOrphanedTenant:     "orphaned tenant",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is a classified failure. Op names the operation that failed; Err is the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	var s *shutdown
	return errors.As(err, &s)
}
