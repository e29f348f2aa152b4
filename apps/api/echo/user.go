package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/user"
)

type userApi struct {
	svc    user.ServiceInterface
	ctxUsr contextUserResolver
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, ctxUsr contextUserResolver) {
	api := userApi{
		svc:    ctxUsr.userSvc,
		ctxUsr: ctxUsr,
	}

	ug := g.Group("/me", jwt)
	ug.GET("", api.retrieve)
	ug.POST("", api.ensure)
}

// Handlers

func (api *userApi) retrieve(ctx echo.Context) error {
	sess, claims, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}
	usr, err := api.svc.Get(ctx.Request().Context(), sess, claims.Subject)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) ensure(ctx echo.Context) error {
	usr, err := api.ctxUsr.ensure(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}
