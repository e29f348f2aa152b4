package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	identitysvc "github.com/trezcool/shule/services/identity"
	logsvc "github.com/trezcool/shule/services/logger"
	metricsvc "github.com/trezcool/shule/services/metrics"
	"github.com/trezcool/shule/storage/cache"
	"github.com/trezcool/shule/storage/database"
	boiledrepos "github.com/trezcool/shule/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type SchoolServiceParams struct {
	dig.In
	Conf       *core.Config
	Repo       school.Repository
	Tenants    school.TenantRepository
	Cache      school.StatsCache `optional:"true"`
	Metrics    *metricsvc.Metrics
	Mailer     core.EmailService
	Validate   *validator.Validate
	Translator ut.Translator
	Logger     core.Logger
}

type ServerParams struct {
	dig.In
	Conf       *core.Config
	UserSvc    user.ServiceInterface
	SchoolSvc  school.ServiceInterface
	Identity   *identitysvc.Client
	Metrics    *metricsvc.Metrics
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewZapLogger("api", conf.Debug), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewZapLogger("db", conf.Debug), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *database.DB {
	setUp := func() (*database.DB, error) {
		if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newStatsCache returns nil when no redis address is configured.
func newStatsCache(conf *core.Config, logger core.Logger) school.StatsCache {
	if conf.Redis.Addr == "" {
		return nil
	}
	c := cache.NewStatsCache(cache.NewRedisClient(conf.Redis), conf.StatsTTL, logger)
	if err := c.Ping(context.Background()); err != nil {
		logger.Warn("stats cache unreachable", err)
	}
	return c
}

func newMetrics() *metricsvc.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metricsvc.New(reg)
}

func newIdentityClient(conf *core.Config, logger core.Logger) *identitysvc.Client {
	return identitysvc.NewClient(conf.Identity, logger)
}

func newUserService(repo user.Repository, logger core.Logger) *user.Service {
	return user.NewService(repo, core.Elevated(), logger)
}

func newSchoolService(p SchoolServiceParams) *school.Service {
	return school.NewService(
		school.Deps{
			Repo:       p.Repo,
			Tenants:    p.Tenants,
			Cache:      p.Cache,
			Observer:   p.Metrics,
			Mailer:     p.Mailer,
			Validate:   p.Validate,
			Translator: p.Translator,
			Logger:     p.Logger,
		},
		school.Options{
			MembershipAttempts: p.Conf.Provisioning.MembershipAttempts,
			RetryDelay:         p.Conf.Provisioning.RetryDelay,
			StatsConcurrency:   p.Conf.StatsConcurrency,
			RootDomain:         p.Conf.RootDomain,
		},
	)
}

func newServer(p ServerParams) (*echoapi.Server, error) {
	return echoapi.NewServer(p.Conf, echoapi.Deps{
		UserSvc:    p.UserSvc,
		SchoolSvc:  p.SchoolSvc,
		Identity:   p.Identity,
		Metrics:    p.Metrics,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newStatsCache))
	must(c.Provide(newMetrics))
	must(c.Provide(newIdentityClient))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewSchoolRepository, dig.As(new(school.Repository))))
	must(c.Provide(boiledrepos.NewTenantRepository, dig.As(new(school.TenantRepository))))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(core.NewValidator))
	must(c.Provide(newUserService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(newSchoolService, dig.As(new(school.ServiceInterface))))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.New(os.Stderr, "DIG : ", log.LstdFlags).Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
