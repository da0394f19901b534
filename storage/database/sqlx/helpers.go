// Package sqlxrepos implements the core repositories over PostgreSQL.
// Every method accepts an optional executor override so services can run
// several calls inside one transaction.
package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/tathmini/backend/core"
)

const pqUniqueViolation = "23505"

func executor(dflt core.DBExecutor, exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 {
		return exec[0]
	}
	return dflt
}

// selectCtx runs the query and scans all rows into the slice dest.
func selectCtx(ctx context.Context, ex core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "querying")
	}
	defer func() { _ = rows.Close() }()
	return errors.Wrap(sqlx.StructScan(rows, dest), "scanning")
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == pqUniqueViolation
}
