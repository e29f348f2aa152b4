package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound         = errors.New("user not found")
	ErrExternalIDExists = errors.New("a user with this external id already exists")
	ErrNoIdentity       = errors.New("no authenticated identity")
	ErrSubjectMismatch  = errors.New("session does not belong to this identity")
)

type (
	Repository interface {
		// GetUser returns ErrNotFound when no user has the external ID (or h cannot see it).
		GetUser(ctx context.Context, h core.StoreHandle, externalID string) (User, error)
		// CreateUser returns ErrExternalIDExists on a conflicting external ID.
		CreateUser(ctx context.Context, h core.StoreHandle, usr User) (User, error)
	}

	ServiceInterface interface {
		Ensure(ctx context.Context, sess core.StoreHandle, externalID string, profile Profile) (User, error)
		Get(ctx context.Context, sess core.StoreHandle, externalID string) (User, error)
	}

	Service struct {
		repo     Repository
		elevated core.StoreHandle
		logger   core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

// NewService returns a user Service. elevated is the privileged handle used for inserts.
func NewService(repo Repository, elevated core.StoreHandle, logger core.Logger) *Service {
	return &Service{repo: repo, elevated: elevated, logger: logger}
}

func checkIdentity(op string, sess core.StoreHandle, externalID string) error {
	if externalID == "" {
		return core.E(core.KindNotAuthenticated, op, ErrNoIdentity)
	}
	if !sess.Valid() || (!sess.IsElevated() && sess.Subject() != externalID) {
		return core.E(core.KindNotAuthenticated, op, ErrSubjectMismatch)
	}
	return nil
}

// Ensure returns the user with the given external ID, creating it from profile on first sight.
// Concurrent first calls for the same identity converge on a single row.
func (svc *Service) Ensure(ctx context.Context, sess core.StoreHandle, externalID string, profile Profile) (User, error) {
	const op = "user.Ensure"

	externalID = core.CleanString(externalID)
	if err := checkIdentity(op, sess, externalID); err != nil {
		return User{}, err
	}

	usr, err := svc.repo.GetUser(ctx, sess, externalID)
	if err == nil {
		return usr, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, core.E(core.KindStoreUnavailable, op, errors.Wrap(err, "looking up user"))
	}

	profile.Clean()
	now := time.Now().UTC()
	usr, err = svc.repo.CreateUser(ctx, svc.elevated, User{
		ExternalID: externalID,
		Email:      profile.Email,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		ImageURL:   profile.ImageURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	switch {
	case err == nil:
		svc.logger.Info("user created", map[string]interface{}{"user_id": usr.ID}, usr.Person())
		return usr, nil
	case errors.Is(err, ErrExternalIDExists):
		// a concurrent call inserted the row first
		usr, err = svc.repo.GetUser(ctx, svc.elevated, externalID)
		if err != nil {
			return User{}, core.E(core.KindStoreUnavailable, op, errors.Wrap(err, "refetching user"))
		}
		return usr, nil
	default:
		return User{}, core.E(core.KindStoreUnavailable, op, errors.Wrap(err, "creating user"))
	}
}

// Get returns the user with the given external ID or ErrNotFound.
func (svc *Service) Get(ctx context.Context, sess core.StoreHandle, externalID string) (User, error) {
	const op = "user.Get"

	externalID = core.CleanString(externalID)
	if err := checkIdentity(op, sess, externalID); err != nil {
		return User{}, err
	}
	usr, err := svc.repo.GetUser(ctx, sess, externalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, core.E(core.KindStoreUnavailable, op, errors.Wrap(err, "looking up user"))
	}
	return usr, nil
}
