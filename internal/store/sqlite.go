package store

import (
	"context"
	"database/sql"
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// NewSQLite returns a Repo backed by a database opened with db.OpenSQLite.
func NewSQLite(sqlDB *sql.DB) *Repo {
	return newRepo(sqliteDriver{db: sqlDB})
}

type sqliteDriver struct {
	db *sql.DB
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() { _ = r.Rows.Close() }

func (d sqliteDriver) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d sqliteDriver) query(ctx context.Context, query string, args ...any) (rows, error) {
	rs, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rs}, nil
}

func (d sqliteDriver) queryRow(ctx context.Context, query string, args ...any) row {
	return d.db.QueryRowContext(ctx, query, args...)
}

func (d sqliteDriver) ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (sqliteDriver) isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (sqliteDriver) isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
		sqlite3.SQLITE_CONSTRAINT:
		return true
	}
	return false
}
