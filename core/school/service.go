package school

import (
	"context"
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("school not found")
	ErrSubdomainExists   = errors.New("this subdomain is already taken")
	ErrMembershipExists  = errors.New("user is already a member of this school")
	ErrNoCreator         = errors.New("no authenticated creator")
	ErrElevationRequired = errors.New("operation requires an elevated store handle")
)

// Provisioning outcomes reported to the Observer.
const (
	OutcomeCreated     = "created"
	OutcomeInvalid     = "invalid"
	OutcomeDuplicate   = "duplicate"
	OutcomeFailed      = "failed"
	OutcomeCompensated = "compensated"
	OutcomeOrphaned    = "orphaned"
)

const compensationTimeout = 5 * time.Second

type (
	Repository interface {
		// CreateSchool returns ErrSubdomainExists on a conflicting subdomain.
		CreateSchool(ctx context.Context, h core.StoreHandle, sch School) (School, error)
		DeleteSchool(ctx context.Context, h core.StoreHandle, id string) error
		// CreateMembership returns ErrMembershipExists when the pair is already linked.
		CreateMembership(ctx context.Context, h core.StoreHandle, m Membership) (Membership, error)
		// QueryOrphanedSchools lists schools whose admin holds no admin membership.
		QueryOrphanedSchools(ctx context.Context, h core.StoreHandle) ([]School, error)
	}

	TenantRepository interface {
		// QueryTenants lists the schools the identity is a member of, newest first. Stats are left empty.
		QueryTenants(ctx context.Context, h core.StoreHandle, externalID string) ([]Tenant, error)
		CountMembers(ctx context.Context, h core.StoreHandle, schoolID string) (int, error)
		CountClasses(ctx context.Context, h core.StoreHandle, schoolID string) (int, error)
	}

	// StatsCache fronts the per-school counts. Implementations swallow their own failures.
	StatsCache interface {
		Get(ctx context.Context, schoolID string) (Stats, bool)
		Set(ctx context.Context, schoolID string, stats Stats)
		Invalidate(ctx context.Context, schoolIDs ...string)
	}

	Observer interface {
		ProvisioningOutcome(outcome string)
		MembershipRetried()
		StatsLookup(cached bool)
	}

	ServiceInterface interface {
		Provision(ctx context.Context, sess core.StoreHandle, ns NewSchool, creatorUserID string) (School, error)
		ListTenants(ctx context.Context, sess core.StoreHandle, externalID string) ([]Tenant, error)
		Reconcile(ctx context.Context, h core.StoreHandle) ([]School, error)
		NotifyCreated(usr user.User, sch School)
		RootDomain() string
	}

	Options struct {
		MembershipAttempts int
		RetryDelay         time.Duration
		StatsConcurrency   int
		RootDomain         string
	}

	Deps struct {
		Repo       Repository
		Tenants    TenantRepository
		Cache      StatsCache        // optional
		Observer   Observer          // optional
		Mailer     core.EmailService // optional
		Validate   *validator.Validate
		Translator ut.Translator
		Logger     core.Logger
	}

	Service struct {
		Deps
		opts Options
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

func NewService(deps Deps, opts Options) *Service {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if opts.MembershipAttempts < 2 {
		opts.MembershipAttempts = 2
	}
	if opts.StatsConcurrency < 1 {
		opts.StatsConcurrency = 1
	}
	return &Service{Deps: deps, opts: opts}
}

func (svc *Service) RootDomain() string { return svc.opts.RootDomain }

// Provision creates a school owned by creatorUserID and grants them its admin membership.
// A failed membership grant is retried; when every attempt fails the school is removed again.
func (svc *Service) Provision(ctx context.Context, sess core.StoreHandle, ns NewSchool, creatorUserID string) (School, error) {
	const op = "school.Provision"

	creatorUserID = core.CleanString(creatorUserID)
	if creatorUserID == "" || !sess.Valid() {
		return School{}, core.E(core.KindNotAuthenticated, op, ErrNoCreator)
	}

	if err := ns.Validate(svc.Validate); err != nil {
		svc.Observer.ProvisioningOutcome(OutcomeInvalid)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			err = core.NewValidationError(err, core.TranslateErrors(verrs, svc.Translator)...)
		}
		return School{}, core.E(core.KindValidation, op, err)
	}

	now := time.Now().UTC()
	sch, err := svc.Repo.CreateSchool(ctx, sess, School{
		Name:         ns.Name,
		Subdomain:    ns.Subdomain,
		Description:  ns.Description,
		LogoURL:      ns.LogoURL,
		PrimaryColor: ns.PrimaryColor,
		AdminUserID:  creatorUserID,
		Status:       StatusActive,
		PlanType:     ns.PlanType,
		MaxUsers:     *ns.MaxUsers,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, ErrSubdomainExists) {
			svc.Observer.ProvisioningOutcome(OutcomeDuplicate)
			return School{}, core.E(core.KindDuplicateSubdomain, op, err)
		}
		svc.Observer.ProvisioningOutcome(OutcomeFailed)
		return School{}, core.E(core.KindProvisioningFailed, op, errors.Wrap(err, "inserting school"))
	}

	if err = svc.grantAdmin(ctx, sess, sch); err != nil {
		orphanErr := core.E(core.KindOrphanedTenant, op, err)
		svc.compensate(ctx, sess, sch, orphanErr)
		return School{}, core.E(core.KindProvisioningFailed, op, orphanErr)
	}

	if svc.Cache != nil {
		svc.Cache.Invalidate(ctx, sch.ID)
	}
	svc.Observer.ProvisioningOutcome(OutcomeCreated)
	svc.Logger.Info("school provisioned", map[string]interface{}{"school_id": sch.ID, "subdomain": sch.Subdomain})
	return sch, nil
}

// grantAdmin links the school's admin to it, retrying failed attempts.
// An existing membership counts as success.
func (svc *Service) grantAdmin(ctx context.Context, h core.StoreHandle, sch School) error {
	m := Membership{
		UserID:    sch.AdminUserID,
		SchoolID:  sch.ID,
		Role:      RoleAdmin,
		CreatedAt: time.Now().UTC(),
	}
	attempts := svc.opts.MembershipAttempts

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			svc.Observer.MembershipRetried()
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "waiting to retry membership grant")
			case <-time.After(time.Duration(attempt-1) * svc.opts.RetryDelay):
			}
		}

		_, err = svc.Repo.CreateMembership(ctx, h, m)
		if err == nil || errors.Is(err, ErrMembershipExists) {
			return nil
		}
		svc.Logger.Warn(
			fmt.Sprintf("granting admin membership failed (attempt %d/%d)", attempt, attempts),
			err, map[string]interface{}{"school_id": sch.ID},
		)
	}
	return errors.Wrapf(err, "granting admin membership after %d attempts", attempts)
}

// compensate removes a school left without its admin membership.
// When that fails too the school is kept for Reconcile.
func (svc *Service) compensate(ctx context.Context, h core.StoreHandle, sch School, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	extra := map[string]interface{}{"school_id": sch.ID, "subdomain": sch.Subdomain, "admin_user_id": sch.AdminUserID}
	if err := svc.Repo.DeleteSchool(cctx, h, sch.ID); err != nil && !errors.Is(err, ErrNotFound) {
		svc.Observer.ProvisioningOutcome(OutcomeOrphaned)
		svc.Logger.Error("orphaned school needs reconciliation", errors.Wrap(err, "deleting orphaned school"), cause, extra)
		return
	}
	svc.Observer.ProvisioningOutcome(OutcomeCompensated)
	svc.Logger.Warn("orphaned school removed", cause, extra)
}

// Reconcile grants the missing admin membership of every orphaned school and returns the repaired ones.
func (svc *Service) Reconcile(ctx context.Context, h core.StoreHandle) ([]School, error) {
	const op = "school.Reconcile"

	if !h.IsElevated() {
		return nil, core.E(core.KindNotAuthenticated, op, ErrElevationRequired)
	}

	orphans, err := svc.Repo.QueryOrphanedSchools(ctx, h)
	if err != nil {
		return nil, core.E(core.KindStoreUnavailable, op, errors.Wrap(err, "querying orphaned schools"))
	}

	repaired := make([]School, 0, len(orphans))
	for _, sch := range orphans {
		if err = svc.grantAdmin(ctx, h, sch); err != nil {
			return repaired, core.E(core.KindStoreUnavailable, op, errors.Wrapf(err, "repairing school %s", sch.ID))
		}
		repaired = append(repaired, sch)
	}
	if len(repaired) > 0 && svc.Cache != nil {
		ids := make([]string, 0, len(repaired))
		for _, sch := range repaired {
			ids = append(ids, sch.ID)
		}
		svc.Cache.Invalidate(ctx, ids...)
	}
	return repaired, nil
}

type nopObserver struct{}

func (nopObserver) ProvisioningOutcome(string) {}
func (nopObserver) MembershipRetried()         {}
func (nopObserver) StatsLookup(bool)           {}
