package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	metricsvc "github.com/trezcool/shule/services/metrics"
)

type (
	// ProfileResolver completes a profile taken from the session claims.
	ProfileResolver interface {
		ResolveProfile(ctx context.Context, externalID string, known user.Profile) user.Profile
	}

	Deps struct {
		UserSvc    user.ServiceInterface
		SchoolSvc  school.ServiceInterface
		Identity   ProfileResolver    // optional
		Metrics    *metricsvc.Metrics // optional
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server struct {
		conf     *core.Config
		deps     Deps
		app      *echo.Echo
		shutdown chan os.Signal
		errors   chan error
	}
)

func NewServer(conf *core.Config, deps Deps) (*Server, error) {
	s := &Server{
		conf:     conf,
		deps:     deps,
		app:      echo.New(),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	if err := s.setup(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) setup() error {
	jwtConfig, err := newJWTConfig(s.conf.Identity)
	if err != nil {
		return errors.Wrap(err, "configuring session tokens")
	}

	s.app.HideBanner = true
	s.app.Debug = s.conf.Debug
	s.app.Server.ReadHeaderTimeout = s.conf.Server.ReadHeaderTimeout
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if s.deps.Metrics != nil {
		s.app.Use(s.deps.Metrics.Middleware())
	}
	if !s.conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.conf.Server.RequestBodyLimit != "" {
		s.app.Use(middleware.BodyLimit(s.conf.Server.RequestBodyLimit))
	}
	if len(s.conf.Server.AllowedOrigins) > 0 {
		s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.conf.Server.AllowedOrigins,
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig)

	ctxUsr := contextUserResolver{
		userSvc:  s.deps.UserSvc,
		identity: s.deps.Identity,
	}
	registerUserAPI(v1, jwt, ctxUsr)
	registerSchoolAPI(v1, jwt, s.deps.SchoolSvc, ctxUsr)
	return nil
}

// Start listens until the server is shut down. Listener failures are sent to Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signalled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}
