package echoapi

import (
	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	identitysvc "github.com/trezcool/shule/services/identity"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// newJWTConfig returns the JWT auth middleware config verifying the identity provider's session tokens.
func newJWTConfig(conf core.IdentityConfig) (middleware.JWTConfig, error) {
	method, key, err := identitysvc.VerificationKey(conf)
	if err != nil {
		return middleware.JWTConfig{}, err
	}
	return middleware.JWTConfig{
		SigningKey:    key,
		SigningMethod: method,
		ContextKey:    contextTokenKey,
		Claims:        new(identitysvc.Claims),
	}, nil
}

func getContextClaims(ctx echo.Context) (identitysvc.Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*identitysvc.Claims); ok && claims.Subject != "" {
			return *claims, nil
		}
	}
	return identitysvc.Claims{}, errUnauthorized
}

// getContextSession returns the store handle bound to the caller's identity.
func getContextSession(ctx echo.Context) (core.StoreHandle, identitysvc.Claims, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.StoreHandle{}, claims, err
	}
	return core.Session(claims.Subject), claims, nil
}

// contextUserResolver finds or creates the user row of the signed-in identity.
type contextUserResolver struct {
	userSvc  user.ServiceInterface
	identity ProfileResolver
}

func (r contextUserResolver) ensure(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	sess, claims, err := getContextSession(ctx)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context session")
	}

	rctx := ctx.Request().Context()
	usr, err := r.userSvc.Get(rctx, sess, claims.Subject)
	if errors.Is(err, user.ErrNotFound) {
		profile := claims.Profile()
		if r.identity != nil {
			profile = r.identity.ResolveProfile(rctx, claims.Subject, profile)
		}
		usr, err = r.userSvc.Ensure(rctx, sess, claims.Subject, profile)
	}
	if err != nil {
		return user.User{}, errors.Wrap(err, "ensuring context user")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}
