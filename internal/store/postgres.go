package store

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxConn is satisfied by *pgxpool.Pool and by pgxmock pools.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// NewPostgres returns a Repo backed by a pgx pool.
func NewPostgres(conn PgxConn) *Repo {
	return newRepo(pgDriver{conn: conn})
}

type pgDriver struct {
	conn PgxConn
}

func (d pgDriver) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := d.conn.Exec(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d pgDriver) query(ctx context.Context, query string, args ...any) (rows, error) {
	return d.conn.Query(ctx, rebind(query), args...)
}

func (d pgDriver) queryRow(ctx context.Context, query string, args ...any) row {
	return d.conn.QueryRow(ctx, rebind(query), args...)
}

func (d pgDriver) ping(ctx context.Context) error {
	return d.conn.Ping(ctx)
}

func (pgDriver) isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (pgDriver) isConstraint(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation || pgErr.Code == pgerrcode.ForeignKeyViolation
}

// rebind turns ? placeholders into $1, $2, ...
func rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
