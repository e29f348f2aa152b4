// Package inmemdb is a tenant store kept in memory. It enforces the same uniqueness,
// reference and row-visibility rules as the postgres schema.
package inmemdb

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrForeignKey       = errors.New("referenced row does not exist")
	ErrInvalidHandle    = errors.New("invalid store handle")
)

type (
	DB struct {
		user       *userTable
		school     *schoolTable
		membership *membershipTable
		class      *classTable
	}

	userTable struct {
		sync.RWMutex
		table      map[string]*user.User // {id: User}
		externalID map[string]string     // {external id: id}
	}

	schoolTable struct {
		sync.RWMutex
		table     map[string]*school.School // {id: School}
		subdomain map[string]string         // {subdomain: id}
	}

	membershipKey struct {
		userID   string
		schoolID string
	}

	membershipTable struct {
		sync.RWMutex
		table map[membershipKey]*school.Membership
	}

	classTable struct {
		sync.RWMutex
		table map[string]map[string]string // {school id: {class id: name}}
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User), externalID: make(map[string]string)},
		school:     &schoolTable{table: make(map[string]*school.School), subdomain: make(map[string]string)},
		membership: &membershipTable{table: make(map[membershipKey]*school.Membership)},
		class:      &classTable{table: make(map[string]map[string]string)},
	}
}

// sessionUserID returns the id of the user a session handle acts for. Callers hold db.user's lock.
func (db *DB) sessionUserID(h core.StoreHandle) (string, bool) {
	id, ok := db.user.externalID[h.Subject()]
	return id, ok
}

// isMember reports whether userID belongs to schoolID. Callers hold db.membership's lock.
func (db *DB) isMember(userID, schoolID string) bool {
	_, ok := db.membership.table[membershipKey{userID: userID, schoolID: schoolID}]
	return ok
}

func checkHandle(h core.StoreHandle) error {
	if !h.Valid() {
		return ErrInvalidHandle
	}
	return nil
}
