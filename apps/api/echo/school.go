package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/school"
)

type schoolApi struct {
	svc    school.ServiceInterface
	ctxUsr contextUserResolver
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc school.ServiceInterface, ctxUsr contextUserResolver) {
	api := schoolApi{
		svc:    svc,
		ctxUsr: ctxUsr,
	}

	g.GET("/plans", api.queryPlans)

	sg := g.Group("/schools", jwt)
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/summary", api.summary)
}

// Handlers

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}

	usr, err := api.ctxUsr.ensure(ctx)
	if err != nil {
		return err
	}
	sess, _, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}

	sch, err := api.svc.Provision(ctx.Request().Context(), sess, data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "provisioning school")
	}
	api.svc.NotifyCreated(usr, sch)
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) query(ctx echo.Context) error {
	var filter school.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	tenants, err := api.tenants(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, school.FilterTenants(tenants, filter.Search))
}

func (api *schoolApi) summary(ctx echo.Context) error {
	tenants, err := api.tenants(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, school.Summarize(tenants))
}

func (api *schoolApi) queryPlans(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, school.Plans)
}

func (api *schoolApi) tenants(ctx echo.Context) ([]school.Tenant, error) {
	sess, claims, err := getContextSession(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context session")
	}
	tenants, err := api.svc.ListTenants(ctx.Request().Context(), sess, claims.Subject)
	return tenants, errors.Wrap(err, "listing tenants")
}
