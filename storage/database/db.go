package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/shule/core"
	appfs "github.com/trezcool/shule/fs"
)

// scopeQuery switches the transaction to the handle's role and identity.
// Both settings are local to the transaction.
const scopeQuery = `SELECT set_config('role', $1, true), set_config('request.jwt.claim.sub', $2, true)`

var ErrInvalidHandle = errors.New("invalid store handle")

// DB runs every repository call in its own transaction scoped to a core.StoreHandle.
type DB struct {
	*sqlx.DB
	sessionRole  string
	elevatedRole string
}

func dsn(dbName string, admin bool, conf *core.Config) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	return sql.Open(conf.Database.Engine, dsn(dbName, admin, conf))
}

// Open connects to the application database as the app user.
func Open(conf *core.Config) (*DB, error) {
	db, err := sqlx.Open(conf.Database.Engine, dsn(conf.Database.Name, false, conf))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	return New(db, conf.Database.SessionRole, conf.Database.ElevatedRole), nil
}

func New(db *sqlx.DB, sessionRole, elevatedRole string) *DB {
	return &DB{DB: db, sessionRole: sessionRole, elevatedRole: elevatedRole}
}

// Run executes fn inside a transaction carrying h's role and subject.
// The transaction commits when fn returns nil and rolls back otherwise.
func (db *DB) Run(ctx context.Context, h core.StoreHandle, fn func(tx *sqlx.Tx) error) error {
	if !h.Valid() {
		return ErrInvalidHandle
	}
	role := db.sessionRole
	if h.IsElevated() {
		role = db.elevatedRole
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if _, err = tx.ExecContext(ctx, scopeQuery, role, h.Subject()); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "scoping transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// Ping waits for the database to be ready. Waits 100ms longer between each attempt.
func Ping(ctx context.Context, db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping cancelled")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

func roleExists(db *sql.DB, name string) (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", name).Scan(&exists)
	return exists, err
}

func createAppUser(db *sql.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	exists, err := roleExists(db, conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !exists {
		q := fmt.Sprintf(
			"CREATE USER %s CREATEDB ENCRYPTED PASSWORD %s",
			pq.QuoteIdentifier(conf.Database.User), pq.QuoteLiteral(conf.Database.Password),
		)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

// createScopeRoles creates the roles scoped transactions switch to and lets the app user assume them.
func createScopeRoles(db *sql.DB, conf *core.Config) error {
	roles := []struct {
		name  string
		attrs string
	}{
		{name: conf.Database.SessionRole, attrs: "NOLOGIN"},
		{name: conf.Database.ElevatedRole, attrs: "NOLOGIN BYPASSRLS"},
	}
	for _, r := range roles {
		exists, err := roleExists(db, r.name)
		if err != nil {
			return errors.Wrapf(err, "checking role %s", r.name)
		}
		if !exists {
			if _, err = db.Exec(fmt.Sprintf("CREATE ROLE %s %s", pq.QuoteIdentifier(r.name), r.attrs)); err != nil {
				return errors.Wrapf(err, "creating role %s", r.name)
			}
		}
		if conf.Database.User != "" {
			q := fmt.Sprintf("GRANT %s TO %s", pq.QuoteIdentifier(r.name), pq.QuoteIdentifier(conf.Database.User))
			if _, err = db.Exec(q); err != nil {
				return errors.Wrapf(err, "granting role %s", r.name)
			}
		}
	}
	return nil
}

func createDB(db *sql.DB, conf *core.Config) error {
	var exists bool
	err := db.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", conf.Database.Name).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !exists {
		if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist bootstraps the app user, the scope roles and the database.
func CreateIfNotExist(ctx context.Context, conf *core.Config) error {
	// connect as admin
	adminDB, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = adminDB.Close() }()

	if err = Ping(ctx, adminDB); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(adminDB, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}
	if err = createScopeRoles(adminDB, conf); err != nil {
		return errors.Wrap(err, "creating scope roles")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createDB(appDB, conf)
}

// Migrate applies the embedded migrations.
func Migrate(db *sql.DB) error {
	return RunMigrations("up", db)
}

// RunMigrations runs a goose command against the embedded migrations.
func RunMigrations(command string, db *sql.DB, args ...string) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	if err := goose.Run(command, db, "migrations", args...); err != nil {
		return errors.Wrapf(err, "running migration command %q", command)
	}
	return nil
}
