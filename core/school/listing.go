package school

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/shule/core"
)

// Summary aggregates the tenants of one user.
type Summary struct {
	Schools int              `json:"schools"`
	Users   int              `json:"users"`
	Classes int              `json:"classes"`
	Active  int              `json:"active"`
	ByPlan  map[PlanType]int `json:"by_plan"`
}

// ListTenants returns every school the identity is a member of, newest first, with its stats.
// An identity without a user row has no tenants.
func (svc *Service) ListTenants(ctx context.Context, sess core.StoreHandle, externalID string) ([]Tenant, error) {
	const op = "school.ListTenants"

	externalID = core.CleanString(externalID)
	if externalID == "" || !sess.Valid() || (!sess.IsElevated() && sess.Subject() != externalID) {
		return nil, core.E(core.KindNotAuthenticated, op, ErrNoCreator)
	}

	tenants, err := svc.Tenants.QueryTenants(ctx, sess, externalID)
	if err != nil {
		return nil, core.E(core.KindStoreUnavailable, op, errors.Wrap(err, "querying tenants"))
	}
	if len(tenants) == 0 {
		return []Tenant{}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.opts.StatsConcurrency)
	for i := range tenants {
		tnt := &tenants[i]
		tnt.URL = tnt.Host(svc.opts.RootDomain)
		g.Go(func() error {
			stats, err := svc.stats(gctx, sess, tnt.ID)
			if err != nil {
				return errors.Wrapf(err, "computing stats of school %s", tnt.ID)
			}
			tnt.Stats = stats
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, core.E(core.KindStoreUnavailable, op, err)
	}
	return tenants, nil
}

func (svc *Service) stats(ctx context.Context, h core.StoreHandle, schoolID string) (Stats, error) {
	if svc.Cache != nil {
		if stats, ok := svc.Cache.Get(ctx, schoolID); ok {
			svc.Observer.StatsLookup(true)
			return stats, nil
		}
	}
	svc.Observer.StatsLookup(false)

	var (
		stats Stats
		err   error
	)
	if stats.UserCount, err = svc.Tenants.CountMembers(ctx, h, schoolID); err != nil {
		return Stats{}, errors.Wrap(err, "counting members")
	}
	if stats.ClassCount, err = svc.Tenants.CountClasses(ctx, h, schoolID); err != nil {
		return Stats{}, errors.Wrap(err, "counting classes")
	}

	if svc.Cache != nil {
		svc.Cache.Set(ctx, schoolID, stats)
	}
	return stats, nil
}

// FilterTenants keeps the tenants whose name or subdomain contains search, ignoring case.
func FilterTenants(tenants []Tenant, search string) []Tenant {
	search = core.CleanString(search)
	if search == "" {
		return tenants
	}
	filtered := make([]Tenant, 0, len(tenants))
	for _, tnt := range tenants {
		if core.ContainsFold(tnt.Name, search) || core.ContainsFold(tnt.Subdomain, search) {
			filtered = append(filtered, tnt)
		}
	}
	return filtered
}

// SortTenants orders tenants newest first, breaking ties by ID.
func SortTenants(tenants []Tenant) {
	sort.SliceStable(tenants, func(i, j int) bool {
		if tenants[i].CreatedAt.Equal(tenants[j].CreatedAt) {
			return tenants[i].ID < tenants[j].ID
		}
		return tenants[i].CreatedAt.After(tenants[j].CreatedAt)
	})
}

func Summarize(tenants []Tenant) Summary {
	sum := Summary{
		Schools: len(tenants),
		ByPlan:  make(map[PlanType]int, len(Plans)),
	}
	for _, p := range Plans {
		sum.ByPlan[p.Value] = 0
	}
	for _, tnt := range tenants {
		sum.Users += tnt.UserCount
		sum.Classes += tnt.ClassCount
		sum.ByPlan[tnt.PlanType]++
		if tnt.Status == StatusActive {
			sum.Active++
		}
	}
	return sum
}
