package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/storage/database"
)

const schoolColumns = `id, name, subdomain, description, logo_url, primary_color, admin_user_id, status, plan_type, max_users, created_at, updated_at`

type schoolRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Subdomain    string      `db:"subdomain"`
	Description  string      `db:"description"`
	LogoURL      null.String `db:"logo_url"`
	PrimaryColor string      `db:"primary_color"`
	AdminUserID  string      `db:"admin_user_id"`
	Status       string      `db:"status"`
	PlanType     string      `db:"plan_type"`
	MaxUsers     int         `db:"max_users"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (r schoolRow) toSchool() school.School {
	return school.School{
		ID:           r.ID,
		Name:         r.Name,
		Subdomain:    r.Subdomain,
		Description:  r.Description,
		LogoURL:      r.LogoURL.String,
		PrimaryColor: r.PrimaryColor,
		AdminUserID:  r.AdminUserID,
		Status:       school.Status(r.Status),
		PlanType:     school.PlanType(r.PlanType),
		MaxUsers:     r.MaxUsers,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type schoolRepository struct {
	db *database.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *database.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo schoolRepository) CreateSchool(ctx context.Context, h core.StoreHandle, sch school.School) (school.School, error) {
	if sch.ID == "" {
		sch.ID = uuid.New().String()
	}

	var row schoolRow
	err := repo.db.Run(ctx, h, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx,
			`INSERT INTO schools (`+schoolColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING `+schoolColumns,
			sch.ID, sch.Name, sch.Subdomain, sch.Description, null.NewString(sch.LogoURL, sch.LogoURL != ""),
			sch.PrimaryColor, sch.AdminUserID, string(sch.Status), string(sch.PlanType), sch.MaxUsers,
			sch.CreatedAt.UTC(), sch.UpdatedAt.UTC(),
		).StructScan(&row)
	})
	if err != nil {
		if database.IsUniqueViolation(err, database.SchoolsSubdomainKey) {
			return school.School{}, school.ErrSubdomainExists
		}
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return row.toSchool(), nil
}

func (repo schoolRepository) DeleteSchool(ctx context.Context, h core.StoreHandle, id string) error {
	return repo.db.Run(ctx, h, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM schools WHERE id = $1`, id)
		if err != nil {
			return errors.Wrap(err, "deleting school")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "deleting school")
		}
		if n == 0 {
			return school.ErrNotFound
		}
		return nil
	})
}

func (repo schoolRepository) CreateMembership(ctx context.Context, h core.StoreHandle, m school.Membership) (school.Membership, error) {
	err := repo.db.Run(ctx, h, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_schools (user_id, school_id, role, created_at) VALUES ($1, $2, $3, $4)`,
			m.UserID, m.SchoolID, string(m.Role), m.CreatedAt.UTC(),
		)
		return err
	})
	if err != nil {
		if database.IsUniqueViolation(err, database.MembershipsPKey) {
			return school.Membership{}, school.ErrMembershipExists
		}
		return school.Membership{}, errors.Wrap(err, "inserting membership")
	}
	return m, nil
}

func (repo schoolRepository) QueryOrphanedSchools(ctx context.Context, h core.StoreHandle) ([]school.School, error) {
	var rows []schoolRow
	err := repo.db.Run(ctx, h, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, `
			SELECT `+schoolColumns+` FROM schools s
			WHERE NOT EXISTS (
				SELECT 1 FROM user_schools us
				WHERE us.school_id = s.id AND us.user_id = s.admin_user_id AND us.role = 'admin'
			)
			ORDER BY s.created_at`)
	})
	if err != nil {
		return nil, errors.Wrap(err, "selecting orphaned schools")
	}

	schools := make([]school.School, 0, len(rows))
	for _, r := range rows {
		schools = append(schools, r.toSchool())
	}
	return schools, nil
}
