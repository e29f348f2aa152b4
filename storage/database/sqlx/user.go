package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/storage/database"
)

const userColumns = `id, clerk_id, email, first_name, last_name, image_url, created_at, updated_at`

type userRow struct {
	ID         string      `db:"id"`
	ExternalID string      `db:"clerk_id"`
	Email      null.String `db:"email"`
	FirstName  null.String `db:"first_name"`
	LastName   null.String `db:"last_name"`
	ImageURL   null.String `db:"image_url"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:         usr.ID,
		ExternalID: usr.ExternalID,
		Email:      null.NewString(usr.Email, usr.Email != ""),
		FirstName:  null.NewString(usr.FirstName, usr.FirstName != ""),
		LastName:   null.NewString(usr.LastName, usr.LastName != ""),
		ImageURL:   null.NewString(usr.ImageURL, usr.ImageURL != ""),
		CreatedAt:  usr.CreatedAt.UTC(),
		UpdatedAt:  usr.UpdatedAt.UTC(),
	}
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		Email:      r.Email.String,
		FirstName:  r.FirstName.String,
		LastName:   r.LastName.String,
		ImageURL:   r.ImageURL.String,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

type userRepository struct {
	db *database.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *database.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) GetUser(ctx context.Context, h core.StoreHandle, externalID string) (user.User, error) {
	var row userRow
	err := repo.db.Run(ctx, h, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE clerk_id = $1`, externalID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return row.toUser(), nil
}

func (repo userRepository) CreateUser(ctx context.Context, h core.StoreHandle, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	in := toUserRow(usr)

	var row userRow
	err := repo.db.Run(ctx, h, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+userColumns,
			in.ID, in.ExternalID, in.Email, in.FirstName, in.LastName, in.ImageURL, in.CreatedAt, in.UpdatedAt,
		).StructScan(&row)
	})
	if err != nil {
		if database.IsUniqueViolation(err, database.UsersExternalIDKey) {
			return user.User{}, user.ErrExternalIDExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.toUser(), nil
}
