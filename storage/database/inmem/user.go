package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) GetUser(_ context.Context, h core.StoreHandle, externalID string) (user.User, error) {
	if err := checkHandle(h); err != nil {
		return user.User{}, err
	}
	// sessions only see their own row
	if !h.IsElevated() && h.Subject() != externalID {
		return user.User{}, user.ErrNotFound
	}

	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	if id, ok := repo.db.user.externalID[externalID]; ok {
		return *repo.db.user.table[id], nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) CreateUser(_ context.Context, h core.StoreHandle, usr user.User) (user.User, error) {
	if err := checkHandle(h); err != nil {
		return user.User{}, err
	}
	if !h.IsElevated() {
		return user.User{}, ErrPermissionDenied
	}

	repo.db.user.Lock()
	defer repo.db.user.Unlock()

	if _, ok := repo.db.user.externalID[usr.ExternalID]; ok {
		return user.User{}, user.ErrExternalIDExists
	}
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	repo.db.user.table[usr.ID] = &usr
	repo.db.user.externalID[usr.ExternalID] = usr.ID
	return usr, nil
}
