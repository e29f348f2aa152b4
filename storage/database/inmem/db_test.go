package inmemdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

type store struct {
	db      *inmemdb.DB
	users   user.Repository
	schools interface {
		school.Repository
		school.TenantRepository
	}
}

func newStore() store {
	db := inmemdb.Open()
	return store{db: db, users: inmemdb.NewUserRepository(db), schools: inmemdb.NewSchoolRepository(db)}
}

func (s store) createUser(t *testing.T, externalID string) user.User {
	t.Helper()
	usr, err := s.users.CreateUser(context.Background(), core.Elevated(), user.User{ExternalID: externalID})
	require.NoError(t, err)
	return usr
}

func (s store) createSchool(t *testing.T, admin user.User, subdomain string) school.School {
	t.Helper()
	ctx := context.Background()
	sess := core.Session(admin.ExternalID)
	sch, err := s.schools.CreateSchool(ctx, sess, school.School{Name: subdomain, Subdomain: subdomain, AdminUserID: admin.ID, CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	_, err = s.schools.CreateMembership(ctx, sess, school.Membership{UserID: admin.ID, SchoolID: sch.ID, Role: school.RoleAdmin})
	require.NoError(t, err)
	return sch
}

func TestUserRepository(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	jane := s.createUser(t, "user_jane")
	assert.NotEmpty(t, jane.ID)

	tests := []struct {
		name    string
		h       core.StoreHandle
		lookup  string
		wantErr error
	}{
		{name: "own row", h: core.Session("user_jane"), lookup: "user_jane"},
		{name: "elevated", h: core.Elevated(), lookup: "user_jane"},
		{name: "someone else's row", h: core.Session("user_bob"), lookup: "user_jane", wantErr: user.ErrNotFound},
		{name: "unknown", h: core.Elevated(), lookup: "user_ghost", wantErr: user.ErrNotFound},
		{name: "invalid handle", h: core.StoreHandle{}, lookup: "user_jane", wantErr: inmemdb.ErrInvalidHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.users.GetUser(ctx, tt.h, tt.lookup)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, jane, got)
		})
	}

	t.Run("duplicate external id", func(t *testing.T) {
		_, err := s.users.CreateUser(ctx, core.Elevated(), user.User{ExternalID: "user_jane"})
		assert.Equal(t, user.ErrExternalIDExists, err)
	})

	t.Run("sessions cannot insert users", func(t *testing.T) {
		_, err := s.users.CreateUser(ctx, core.Session("user_new"), user.User{ExternalID: "user_new"})
		assert.Equal(t, inmemdb.ErrPermissionDenied, err)
	})
}

func TestSchoolRepository_CreateSchool(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	jane := s.createUser(t, "user_jane")
	s.createUser(t, "user_bob")
	s.createSchool(t, jane, "green-hill")

	tests := []struct {
		name    string
		h       core.StoreHandle
		sch     school.School
		wantErr error
	}{
		{name: "subdomain taken", h: core.Session("user_jane"), sch: school.School{Subdomain: "green-hill", AdminUserID: jane.ID}, wantErr: school.ErrSubdomainExists},
		{name: "unknown admin", h: core.Elevated(), sch: school.School{Subdomain: "ghost", AdminUserID: "nope"}, wantErr: inmemdb.ErrForeignKey},
		{name: "on behalf of another user", h: core.Session("user_bob"), sch: school.School{Subdomain: "bobs", AdminUserID: jane.ID}, wantErr: inmemdb.ErrPermissionDenied},
		{name: "invalid handle", h: core.StoreHandle{}, sch: school.School{Subdomain: "none", AdminUserID: jane.ID}, wantErr: inmemdb.ErrInvalidHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.schools.CreateSchool(ctx, tt.h, tt.sch)
			assert.Equal(t, tt.wantErr, err)
		})
	}
	assert.Equal(t, 1, s.db.CountSchools())
}

func TestSchoolRepository_CreateMembership(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	jane := s.createUser(t, "user_jane")
	bob := s.createUser(t, "user_bob")
	sch := s.createSchool(t, jane, "green-hill")

	_, err := s.schools.CreateMembership(ctx, core.Session("user_jane"), school.Membership{UserID: jane.ID, SchoolID: sch.ID, Role: school.RoleAdmin})
	assert.Equal(t, school.ErrMembershipExists, err)

	_, err = s.schools.CreateMembership(ctx, core.Session("user_bob"), school.Membership{UserID: bob.ID, SchoolID: sch.ID, Role: school.RoleAdmin})
	assert.Equal(t, inmemdb.ErrPermissionDenied, err, "sessions cannot join schools they do not administer")

	_, err = s.schools.CreateMembership(ctx, core.Elevated(), school.Membership{UserID: bob.ID, SchoolID: "nope", Role: school.RoleTeacher})
	assert.Equal(t, inmemdb.ErrForeignKey, err)

	_, err = s.schools.CreateMembership(ctx, core.Elevated(), school.Membership{UserID: bob.ID, SchoolID: sch.ID, Role: school.RoleTeacher})
	require.NoError(t, err)

	tenants, err := s.schools.QueryTenants(ctx, core.Session("user_bob"), "user_bob")
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, school.RoleTeacher, tenants[0].Role)

	n, err := s.schools.CountMembers(ctx, core.Session("user_bob"), sch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSchoolRepository_visibility(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	jane := s.createUser(t, "user_jane")
	s.createUser(t, "user_bob")
	sch := s.createSchool(t, jane, "green-hill")
	_, err := s.db.AddClass(sch.ID, "Grade 1")
	require.NoError(t, err)

	t.Run("listing of someone else is empty", func(t *testing.T) {
		tenants, err := s.schools.QueryTenants(ctx, core.Session("user_bob"), "user_jane")
		require.NoError(t, err)
		assert.Empty(t, tenants)
	})

	t.Run("counts of a foreign school read zero", func(t *testing.T) {
		n, err := s.schools.CountClasses(ctx, core.Session("user_bob"), sch.ID)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = s.schools.CountClasses(ctx, core.Session("user_jane"), sch.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("only the admin may delete", func(t *testing.T) {
		assert.Equal(t, school.ErrNotFound, s.schools.DeleteSchool(ctx, core.Session("user_bob"), sch.ID))
		assert.Equal(t, 1, s.db.CountSchools())
	})

	t.Run("orphans need an elevated handle", func(t *testing.T) {
		_, err := s.schools.QueryOrphanedSchools(ctx, core.Session("user_jane"))
		assert.Equal(t, inmemdb.ErrPermissionDenied, err)
	})
}

func TestSchoolRepository_DeleteSchoolCascades(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	jane := s.createUser(t, "user_jane")
	sch := s.createSchool(t, jane, "green-hill")
	_, err := s.db.AddClass(sch.ID, "Grade 1")
	require.NoError(t, err)

	require.NoError(t, s.schools.DeleteSchool(ctx, core.Session("user_jane"), sch.ID))
	assert.Equal(t, school.ErrNotFound, s.schools.DeleteSchool(ctx, core.Elevated(), sch.ID))

	tenants, err := s.schools.QueryTenants(ctx, core.Elevated(), "user_jane")
	require.NoError(t, err)
	assert.Empty(t, tenants)
	n, err := s.schools.CountClasses(ctx, core.Elevated(), sch.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.db.AddClass(sch.ID, "Grade 2")
	assert.Equal(t, inmemdb.ErrForeignKey, err)

	// the subdomain is free again
	s.createSchool(t, jane, "green-hill")
}

func TestSchoolRepository_QueryOrphanedSchools(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	jane := s.createUser(t, "user_jane")
	s.createSchool(t, jane, "complete")

	orphan, err := s.schools.CreateSchool(ctx, core.Elevated(), school.School{Subdomain: "orphan", AdminUserID: jane.ID})
	require.NoError(t, err)

	orphans, err := s.schools.QueryOrphanedSchools(ctx, core.Elevated())
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, orphan.ID, orphans[0].ID)
}
