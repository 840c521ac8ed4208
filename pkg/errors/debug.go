package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is a log-friendly view of an error chain. Postgres fields are
// filled when a driver error sits anywhere in the chain; gorm's postgres
// driver raises pgx errors while database/sql callers raise pq ones.
type ErrorDump struct {
	TopMessage string
	Code       Code
	Chain      []string
	PG         PGDetail
}

// PGDetail is the subset of a Postgres error worth logging.
type PGDetail struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// Dump walks err and returns its chain, its code when it carries one, and
// any Postgres detail.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	dump := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		dump.Code = typed.Code()
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		dump.Chain = append(dump.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	dump.PG = postgresDetail(err)
	return dump
}

func postgresDetail(err error) PGDetail {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return PGDetail{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return PGDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return PGDetail{}
}

// Fields flattens the dump into log fields, leaving out empty values.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error_top": d.TopMessage}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if len(d.Chain) > 0 {
		fields["error_chain"] = d.Chain
	}
	put := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	put("pg_code", d.PG.Code)
	put("pg_constraint", d.PG.Constraint)
	put("pg_table", d.PG.Table)
	put("pg_column", d.PG.Column)
	put("pg_detail", d.PG.Detail)
	put("pg_message", d.PG.Message)
	return fields
}
