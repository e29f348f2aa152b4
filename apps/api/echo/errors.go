package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const subdomainTakenMsg = "This subdomain is already taken"

var (
	errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpNotFound = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *core.Error:
			switch origErr.Kind {
			case core.KindValidation:
				code = http.StatusBadRequest
				message = validationMessage(origErr.Err, translator)
			case core.KindDuplicateSubdomain:
				code = http.StatusConflict
				message = map[string]string{"subdomain": subdomainTakenMsg}
			case core.KindNotAuthenticated:
				code = http.StatusUnauthorized
				message = errUnauthorized.Message
			default:
				code, message = internalError(err, ctx, logger, signalShutdown)
			}
		case validator.ValidationErrors, *core.ValidationError:
			code = http.StatusBadRequest
			message = validationMessage(origErr, translator)
		default: // any other error is a server error
			code, message = internalError(err, ctx, logger, signalShutdown)
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// validationMessage maps field names to their error texts, or falls back to err's text.
func validationMessage(err error, translator ut.Translator) interface{} {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fldErrs := make(map[string]string, len(verrs))
		for _, fErr := range core.TranslateErrors(verrs, translator) {
			fldErrs[fErr.Field] = fErr.Error
		}
		return fldErrs
	}

	var vErr *core.ValidationError
	if errors.As(err, &vErr) && len(vErr.Fields) > 0 {
		fldErrs := make(map[string]string, len(vErr.Fields))
		for _, fErr := range vErr.Fields {
			fldErrs[fErr.Field] = fErr.Error
		}
		return fldErrs
	}
	return err.Error()
}

// internalError logs err with the caller attached and hides it behind a generic message.
func internalError(err error, ctx echo.Context, logger core.Logger, signalShutdown func()) (int, interface{}) {
	msg := http.StatusText(http.StatusInternalServerError)

	var person core.Person
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		person = usr.Person()
	} else if claims, cErr := getContextClaims(ctx); cErr == nil {
		person = core.Person{ID: claims.Subject, Email: claims.Email}
	}
	logger.Error(msg, errors.Wrap(err, msg), person, map[string]interface{}{
		"kind": core.KindOf(err).String(),
		"path": ctx.Path(),
	})

	// shutting down...
	if core.IsShutdown(err) {
		signalShutdown()
	}
	return http.StatusInternalServerError, msg
}
