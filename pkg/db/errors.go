package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraint is set the violated constraint name (Postgres) or column list
// (sqlite) must contain it, so "order_number" matches both
// orders_order_number_key and orders.order_number.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return constraint == "" || strings.Contains(pgErr.ConstraintName, constraint)
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraint == "" || strings.Contains(msg, constraint)
}

// IsPostgres reports whether the connection talks to Postgres. Row locks are
// only requested there; sqlite serialises writers on its own.
func IsPostgres(tx interface{ Name() string }) bool {
	return tx != nil && tx.Name() == DriverPostgres
}
