package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

func Test_appHTTPErrorHandler(t *testing.T) {
	internal := marchallObj(t, httpErr{Error: http.StatusText(http.StatusInternalServerError)})

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantData []byte
		wantLog  bool
	}{
		{
			name:     "Store unavailable",
			err:      core.E(core.KindStoreUnavailable, "school.ListTenants", errors.New("pq: connection refused")),
			wantCode: http.StatusInternalServerError, wantData: internal, wantLog: true,
		},
		{
			name: "Provisioning failed",
			err: core.E(core.KindProvisioningFailed, "school.Provision",
				core.E(core.KindOrphanedTenant, "school.Provision", errors.New("deadlock detected"))),
			wantCode: http.StatusInternalServerError, wantData: internal, wantLog: true,
		},
		{
			name:     "Unclassified",
			err:      errors.New("boom"),
			wantCode: http.StatusInternalServerError, wantData: internal, wantLog: true,
		},
		{
			name:     "Not authenticated",
			err:      core.E(core.KindNotAuthenticated, "school.ListTenants", errors.New("no identity")),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
		},
		{
			name:     "Duplicate subdomain",
			err:      core.E(core.KindDuplicateSubdomain, "school.Provision", errors.New("taken")),
			wantCode: http.StatusConflict, wantData: []byte(`{"subdomain":"This subdomain is already taken"}`),
		},
		{
			name: "Validation",
			err: core.E(core.KindValidation, "school.Provision",
				core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"name":"this field is required"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setup(t, func(d *Deps) { d.SchoolSvc = stubSchoolService{err: tt.err} })
			token := getToken(t, newClaims("user_err", "err@test.cd"))

			req, rec := newAuthRequest(http.MethodGet, "/v1/schools", token)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: tt.wantCode, wantData: tt.wantData}, rec)

			// causes never reach the client
			assert.NotContains(t, rec.Body.String(), "pq:")
			assert.NotContains(t, rec.Body.String(), "deadlock")

			entries := app.logger.errorEntries()
			if !tt.wantLog {
				assert.Empty(t, entries)
				return
			}
			require.Len(t, entries, 1)
			var person core.Person
			for _, arg := range entries[0].args {
				if p, ok := arg.(core.Person); ok {
					person = p
				}
			}
			assert.Equal(t, "user_err", person.ID)
			assert.Equal(t, "err@test.cd", person.Email)
		})
	}
}

func Test_appHTTPErrorHandler_shutdown(t *testing.T) {
	app := setup(t, func(d *Deps) {
		d.SchoolSvc = stubSchoolService{err: errors.Wrap(core.NewShutdownError("integrity issue"), "listing")}
	})
	token := getToken(t, newClaims("user_err", ""))

	req, rec := newAuthRequest(http.MethodGet, "/v1/schools/summary", token)
	app.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	select {
	case <-app.server.ShutdownSignal():
	case <-time.After(time.Second):
		t.Fatal("shutdown was not signalled")
	}
}
