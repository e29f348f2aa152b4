package boiledrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/storage/database"
)

const tenantsQuery = `
SELECT s.id, s.name, s.subdomain, s.description, s.logo_url, s.primary_color, s.admin_user_id,
       s.status, s.plan_type, s.max_users, s.created_at, s.updated_at, us.role
FROM users u
JOIN user_schools us ON us.user_id = u.id
JOIN schools s ON s.id = us.school_id
WHERE u.clerk_id = $1
ORDER BY s.created_at DESC, s.id`

type tenantRow struct {
	ID           string      `boil:"id"`
	Name         string      `boil:"name"`
	Subdomain    string      `boil:"subdomain"`
	Description  string      `boil:"description"`
	LogoURL      null.String `boil:"logo_url"`
	PrimaryColor string      `boil:"primary_color"`
	AdminUserID  string      `boil:"admin_user_id"`
	Status       string      `boil:"status"`
	PlanType     string      `boil:"plan_type"`
	MaxUsers     int         `boil:"max_users"`
	CreatedAt    time.Time   `boil:"created_at"`
	UpdatedAt    time.Time   `boil:"updated_at"`
	Role         string      `boil:"role"`
}

type countRow struct {
	Count int `boil:"count"`
}

type tenantRepository struct {
	db *database.DB
}

var _ school.TenantRepository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(db *database.DB) *tenantRepository {
	return &tenantRepository{db: db}
}

func (repo tenantRepository) unboil(r *tenantRow) school.Tenant {
	return school.Tenant{
		School: school.School{
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
		},
		Role: school.Role(r.Role),
	}
}

func (repo tenantRepository) QueryTenants(ctx context.Context, h core.StoreHandle, externalID string) ([]school.Tenant, error) {
	var rows []*tenantRow
	err := repo.db.Run(ctx, h, func(tx *sqlx.Tx) error {
		return queries.Raw(tenantsQuery, externalID).Bind(ctx, tx, &rows)
	})
	if err != nil {
		return nil, errors.Wrap(err, "selecting tenants")
	}

	tenants := make([]school.Tenant, 0, len(rows))
	for _, r := range rows {
		tenants = append(tenants, repo.unboil(r))
	}
	return tenants, nil
}

func (repo tenantRepository) count(ctx context.Context, h core.StoreHandle, query, schoolID string) (int, error) {
	var row countRow
	err := repo.db.Run(ctx, h, func(tx *sqlx.Tx) error {
		return queries.Raw(query, schoolID).Bind(ctx, tx, &row)
	})
	return row.Count, err
}

func (repo tenantRepository) CountMembers(ctx context.Context, h core.StoreHandle, schoolID string) (int, error) {
	n, err := repo.count(ctx, h, `SELECT COUNT(*) AS count FROM user_schools WHERE school_id = $1`, schoolID)
	return n, errors.Wrap(err, "counting members")
}

func (repo tenantRepository) CountClasses(ctx context.Context, h core.StoreHandle, schoolID string) (int, error) {
	n, err := repo.count(ctx, h, `SELECT COUNT(*) AS count FROM classes WHERE school_id = $1`, schoolID)
	return n, errors.Wrap(err, "counting classes")
}
