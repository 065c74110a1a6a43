// Package database implements the repositories on PostgreSQL via sqlx.
// All status transitions are single conditional statements so concurrent
// writers never need an explicit transaction to stay consistent.
package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/storage/database/migrations"
)

// Open connects to the application database.
func Open(conf core.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(conf.Engine, connURL(conf, false))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	return db, nil
}

// OpenAdmin connects to the maintenance database with admin credentials, for
// database creation and other privileged operations.
func OpenAdmin(conf core.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(conf.Engine, connURL(conf, true))
	if err != nil {
		return nil, errors.Wrap(err, "opening admin database")
	}
	return db, nil
}

// CreateIfNotExist creates the application database when it is missing.
func CreateIfNotExist(ctx context.Context, conf core.DatabaseConfig) error {
	adminDB, err := OpenAdmin(conf)
	if err != nil {
		return err
	}
	defer adminDB.Close()

	var exists bool
	err = adminDB.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, conf.Name)
	if err != nil {
		return errors.Wrap(err, "checking database existence")
	}
	if exists {
		return nil
	}
	// identifiers cannot be parameterized
	_, err = adminDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %q", conf.Name))
	return errors.Wrapf(err, "creating database %s", conf.Name)
}

// Migrate brings the schema up to date using the embedded migrations.
func Migrate(db *sqlx.DB) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	return errors.Wrap(goose.Up(db.DB, "."), "applying migrations")
}

// StatusCheck waits for the database to be reachable, retrying with a linear
// backoff until the context expires.
func StatusCheck(ctx context.Context, db *sqlx.DB) error {
	var pingErr error
	for attempt := 1; ; attempt++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		case <-ctx.Done():
			return errors.Wrap(pingErr, "database never became reachable")
		}
	}

	// a ping can succeed from the pool; run a real round trip
	var ok bool
	return errors.Wrap(db.GetContext(ctx, &ok, `SELECT true`), "database status check")
}

func connURL(conf core.DatabaseConfig, admin bool) string {
	sslMode := "require"
	if conf.DisableTLS {
		sslMode = "disable"
	}

	usr := url.UserPassword(conf.User, conf.Password)
	name := conf.Name
	if admin {
		usr = url.UserPassword(conf.AdminUser, conf.AdminPassword)
		name = conf.Engine
	}

	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Engine,
		User:     usr,
		Host:     conf.Address(),
		Path:     name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// executor picks the caller-provided transaction when there is one.
func executor(db *sqlx.DB, exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 && exec[0] != nil {
		return exec[0]
	}
	return db
}
