package core

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "plain", err: cause, want: KindUnknown},
		{name: "classified", err: E(KindStoreUnavailable, "op", cause), want: KindStoreUnavailable},
		{name: "wrapped", err: errors.Wrap(E(KindDuplicateSubdomain, "op", cause), "ctx"), want: KindDuplicateSubdomain},
		{
			name: "outermost wins",
			err:  E(KindProvisioningFailed, "op", E(KindOrphanedTenant, "op", cause)),
			want: KindProvisioningFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := E(KindProvisioningFailed, "school.Provision", E(KindOrphanedTenant, "school.Provision", cause))

	assert.Equal(t, "school.Provision: provisioning failed: school.Provision: orphaned tenant: deadlock detected", err.Error())
	assert.True(t, errors.Is(err, cause))

	var inner *Error
	assert.True(t, errors.As(errors.Unwrap(err), &inner))
	assert.Equal(t, KindOrphanedTenant, inner.Kind)

	// errors.Cause stops at the classified error
	assert.Equal(t, err, errors.Cause(errors.Wrap(err, "handler")))

	assert.Equal(t, "op: not authenticated", E(KindNotAuthenticated, "op", nil).Error())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "cause", err: NewValidationError(errors.New("bad input")), want: "bad input"},
		{name: "first field", err: NewValidationError(nil, FieldError{Field: "name", Error: "required"}, FieldError{Field: "x", Error: "y"}), want: "name: required"},
		{name: "empty", err: NewValidationError(nil), want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsShutdown(t *testing.T) {
	assert.True(t, IsShutdown(NewShutdownError("integrity")))
	assert.True(t, IsShutdown(errors.Wrap(NewShutdownError("integrity"), "ctx")))
	assert.False(t, IsShutdown(errors.New("integrity")))
}
