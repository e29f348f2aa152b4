package sqlxrepos

import (
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/storage/database"
)

const (
	testSessionRole  = "authenticated"
	testElevatedRole = "service_role"
)

var scopeQueryRe = regexp.QuoteMeta(`SELECT set_config('role', $1, true)`)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = mockDB.Close()
	})
	return database.New(sqlx.NewDb(mockDB, "postgres"), testSessionRole, testElevatedRole), mock
}

// expectScoped expects a transaction scoped to role and subject.
func expectScoped(mock sqlmock.Sqlmock, role, subject string) {
	mock.ExpectBegin()
	mock.ExpectExec(scopeQueryRe).WithArgs(role, subject).WillReturnResult(sqlmock.NewResult(0, 1))
}

func columns(list string) []string {
	cols := strings.Split(list, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols
}
