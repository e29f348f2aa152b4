package sqlxrepos

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/storage/database"
)

func TestUserRepository_GetUser(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		expectScoped(mock, testSessionRole, "user_2abc")
		mock.ExpectQuery(`FROM users WHERE clerk_id = \$1`).
			WithArgs("user_2abc").
			WillReturnRows(sqlmock.NewRows(columns(userColumns)).
				AddRow("id-1", "user_2abc", "jane@test.cd", "Jane", nil, nil, now, now))
		mock.ExpectCommit()

		got, err := repo.GetUser(context.Background(), core.Session("user_2abc"), "user_2abc")
		require.NoError(t, err)
		assert.Equal(t, user.User{
			ID:         "id-1",
			ExternalID: "user_2abc",
			Email:      "jane@test.cd",
			FirstName:  "Jane",
			CreatedAt:  now,
			UpdatedAt:  now,
		}, got)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		expectScoped(mock, testSessionRole, "user_2abc")
		mock.ExpectQuery(`FROM users WHERE clerk_id = \$1`).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.GetUser(context.Background(), core.Session("user_2abc"), "user_2abc")
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func TestUserRepository_CreateUser(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	usr := user.User{
		ID:         "id-1",
		ExternalID: "user_2abc",
		Email:      "jane@test.cd",
		LastName:   "Doe",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	t.Run("inserted", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		expectScoped(mock, testElevatedRole, "")
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("id-1", "user_2abc", "jane@test.cd", nil, "Doe", nil, now, now).
			WillReturnRows(sqlmock.NewRows(columns(userColumns)).
				AddRow("id-1", "user_2abc", "jane@test.cd", nil, "Doe", nil, now, now))
		mock.ExpectCommit()

		got, err := repo.CreateUser(context.Background(), core.Elevated(), usr)
		require.NoError(t, err)
		assert.Equal(t, usr, got)
	})

	t.Run("lost the race", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		expectScoped(mock, testElevatedRole, "")
		mock.ExpectQuery(`INSERT INTO users`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: database.UsersExternalIDKey})
		mock.ExpectRollback()

		_, err := repo.CreateUser(context.Background(), core.Elevated(), usr)
		assert.Equal(t, user.ErrExternalIDExists, err)
	})
}
