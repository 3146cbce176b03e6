package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"deadlock detected", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, true},
		{"serialization failure", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, true},
		{"connection exception", &pgconn.PgError{Code: pgerrcode.ConnectionException}, true},
		{"unique violation is permanent", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, false},
		{"not null violation is permanent", &pgconn.PgError{Code: pgerrcode.NotNullViolation}, false},
		{"unclassified network error defaults transient", errors.New("dial tcp: i/o timeout"), true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsTransient(c.err))
		})
	}
}
