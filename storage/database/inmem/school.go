package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
)

type schoolRepository struct {
	db *DB
}

var (
	_ school.Repository       = (*schoolRepository)(nil) // interface compliance check
	_ school.TenantRepository = (*schoolRepository)(nil) // interface compliance check
)

// NewSchoolRepository returns a repository serving both the write and the listing side.
func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateSchool(_ context.Context, h core.StoreHandle, sch school.School) (school.School, error) {
	if err := checkHandle(h); err != nil {
		return school.School{}, err
	}

	repo.db.user.RLock()
	defer repo.db.user.RUnlock()
	repo.db.school.Lock()
	defer repo.db.school.Unlock()

	if _, ok := repo.db.user.table[sch.AdminUserID]; !ok {
		return school.School{}, ErrForeignKey
	}
	if !h.IsElevated() {
		if uid, ok := repo.db.sessionUserID(h); !ok || uid != sch.AdminUserID {
			return school.School{}, ErrPermissionDenied
		}
	}
	if _, ok := repo.db.school.subdomain[sch.Subdomain]; ok {
		return school.School{}, school.ErrSubdomainExists
	}

	if sch.ID == "" {
		sch.ID = uuid.New().String()
	}
	repo.db.school.table[sch.ID] = &sch
	repo.db.school.subdomain[sch.Subdomain] = sch.ID
	return sch, nil
}

func (repo *schoolRepository) DeleteSchool(_ context.Context, h core.StoreHandle, id string) error {
	if err := checkHandle(h); err != nil {
		return err
	}

	repo.db.user.RLock()
	defer repo.db.user.RUnlock()
	repo.db.school.Lock()
	defer repo.db.school.Unlock()
	repo.db.membership.Lock()
	defer repo.db.membership.Unlock()
	repo.db.class.Lock()
	defer repo.db.class.Unlock()

	sch, ok := repo.db.school.table[id]
	if !ok {
		return school.ErrNotFound
	}
	if !h.IsElevated() {
		if uid, ok := repo.db.sessionUserID(h); !ok || uid != sch.AdminUserID {
			return school.ErrNotFound
		}
	}

	delete(repo.db.school.subdomain, sch.Subdomain)
	delete(repo.db.school.table, id)
	for key := range repo.db.membership.table {
		if key.schoolID == id {
			delete(repo.db.membership.table, key)
		}
	}
	delete(repo.db.class.table, id)
	return nil
}

func (repo *schoolRepository) CreateMembership(_ context.Context, h core.StoreHandle, m school.Membership) (school.Membership, error) {
	if err := checkHandle(h); err != nil {
		return school.Membership{}, err
	}

	repo.db.user.RLock()
	defer repo.db.user.RUnlock()
	repo.db.school.RLock()
	defer repo.db.school.RUnlock()
	repo.db.membership.Lock()
	defer repo.db.membership.Unlock()

	sch, ok := repo.db.school.table[m.SchoolID]
	if _, uok := repo.db.user.table[m.UserID]; !ok || !uok {
		return school.Membership{}, ErrForeignKey
	}
	if !h.IsElevated() {
		// sessions may only grant themselves a membership of a school they administer
		if uid, ok := repo.db.sessionUserID(h); !ok || uid != m.UserID || uid != sch.AdminUserID {
			return school.Membership{}, ErrPermissionDenied
		}
	}

	key := membershipKey{userID: m.UserID, schoolID: m.SchoolID}
	if _, ok := repo.db.membership.table[key]; ok {
		return school.Membership{}, school.ErrMembershipExists
	}
	repo.db.membership.table[key] = &m
	return m, nil
}

func (repo *schoolRepository) QueryOrphanedSchools(_ context.Context, h core.StoreHandle) ([]school.School, error) {
	if !h.IsElevated() {
		return nil, ErrPermissionDenied
	}

	repo.db.school.RLock()
	defer repo.db.school.RUnlock()
	repo.db.membership.RLock()
	defer repo.db.membership.RUnlock()

	orphans := make([]school.School, 0)
	for _, sch := range repo.db.school.table {
		m, ok := repo.db.membership.table[membershipKey{userID: sch.AdminUserID, schoolID: sch.ID}]
		if !ok || m.Role != school.RoleAdmin {
			orphans = append(orphans, *sch)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].CreatedAt.Before(orphans[j].CreatedAt) })
	return orphans, nil
}

func (repo *schoolRepository) QueryTenants(_ context.Context, h core.StoreHandle, externalID string) ([]school.Tenant, error) {
	if err := checkHandle(h); err != nil {
		return nil, err
	}
	tenants := make([]school.Tenant, 0)
	if !h.IsElevated() && h.Subject() != externalID {
		return tenants, nil
	}

	repo.db.user.RLock()
	defer repo.db.user.RUnlock()
	repo.db.school.RLock()
	defer repo.db.school.RUnlock()
	repo.db.membership.RLock()
	defer repo.db.membership.RUnlock()

	uid, ok := repo.db.user.externalID[externalID]
	if !ok {
		return tenants, nil
	}
	for key, m := range repo.db.membership.table {
		if key.userID != uid {
			continue
		}
		if sch, ok := repo.db.school.table[key.schoolID]; ok {
			tenants = append(tenants, school.Tenant{School: *sch, Role: m.Role})
		}
	}
	school.SortTenants(tenants)
	return tenants, nil
}

// canSee reports whether h may read rows belonging to schoolID.
func (repo *schoolRepository) canSee(h core.StoreHandle, schoolID string) bool {
	if h.IsElevated() {
		return true
	}
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()
	uid, ok := repo.db.sessionUserID(h)
	if !ok {
		return false
	}
	repo.db.membership.RLock()
	defer repo.db.membership.RUnlock()
	return repo.db.isMember(uid, schoolID)
}

func (repo *schoolRepository) CountMembers(_ context.Context, h core.StoreHandle, schoolID string) (int, error) {
	if err := checkHandle(h); err != nil {
		return 0, err
	}
	if !repo.canSee(h, schoolID) {
		return 0, nil
	}

	repo.db.membership.RLock()
	defer repo.db.membership.RUnlock()

	var count int
	for key := range repo.db.membership.table {
		if key.schoolID == schoolID {
			count++
		}
	}
	return count, nil
}

func (repo *schoolRepository) CountClasses(_ context.Context, h core.StoreHandle, schoolID string) (int, error) {
	if err := checkHandle(h); err != nil {
		return 0, err
	}
	if !repo.canSee(h, schoolID) {
		return 0, nil
	}

	repo.db.class.RLock()
	defer repo.db.class.RUnlock()
	return len(repo.db.class.table[schoolID]), nil
}

// AddClass inserts a class into an existing school and returns its id.
func (db *DB) AddClass(schoolID, name string) (string, error) {
	db.school.RLock()
	defer db.school.RUnlock()
	db.class.Lock()
	defer db.class.Unlock()

	if _, ok := db.school.table[schoolID]; !ok {
		return "", ErrForeignKey
	}
	classes, ok := db.class.table[schoolID]
	if !ok {
		classes = make(map[string]string)
		db.class.table[schoolID] = classes
	}
	id := uuid.New().String()
	classes[id] = name
	return id, nil
}

// CountSchools returns the number of stored schools.
func (db *DB) CountSchools() int {
	db.school.RLock()
	defer db.school.RUnlock()
	return len(db.school.table)
}
