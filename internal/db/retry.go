package db

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsTransient classifies a commit error as retryable (connection loss,
// deadlocks, serialization failures) versus permanent (the class of error
// that will not resolve by retrying, e.g. a data/constraint problem). The
// worker's bounded in-process backoff (spec.md §7) only retries transient
// errors; permanent ones are logged and the row is abandoned for the
// current cycle, to be re-fetched on the next wake.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.DeadlockDetected,
			pgerrcode.SerializationFailure,
			pgerrcode.ConnectionException,
			pgerrcode.ConnectionDoesNotExist,
			pgerrcode.ConnectionFailure,
			pgerrcode.TooManyConnections,
			pgerrcode.CannotConnectNow:
			return true
		default:
			return false
		}
	}

	// Pool exhaustion, context deadline exceeded while acquiring, and raw
	// network errors never reach us as *pgconn.PgError; treat anything that
	// is not a classified Postgres error as transient rather than abandon a
	// row over a blip the next attempt would clear.
	return true
}
