package main

import (
	"context"
	"os"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
	boiledrepos "github.com/trezcool/shule/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewZapLogger("admin", true), conf)
	logger.Enable(false)
	defer func() { _ = logger.Sync() }()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(logger, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	errAndDie(logger, database.Ping(ctx, db.DB.DB))
	cancel()

	// set up services
	translator := core.NewTranslator()
	schoolRepo := sqlxrepos.NewSchoolRepository(db)
	schoolSvc := school.NewService(
		school.Deps{
			Repo:       schoolRepo,
			Tenants:    boiledrepos.NewTenantRepository(db),
			Validate:   core.NewValidator(translator),
			Translator: translator,
			Logger:     logger,
		},
		school.Options{
			MembershipAttempts: conf.Provisioning.MembershipAttempts,
			RetryDelay:         conf.Provisioning.RetryDelay,
			StatsConcurrency:   conf.StatsConcurrency,
			RootDomain:         conf.RootDomain,
		},
	)

	// start CLI
	cli := commandLine{
		db:        db.DB.DB,
		usrSvc:    user.NewService(sqlxrepos.NewUserRepository(db), core.Elevated(), logger),
		schoolSvc: schoolSvc,
		in:        os.Stdin,
		out:       os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		_ = logger.Sync()
		_ = db.Close()
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal("admin setup failed", err)
	}
}
