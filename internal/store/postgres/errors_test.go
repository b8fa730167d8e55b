package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joynix/joynix-admin/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPostgresError(t *testing.T) {
	require.NoError(t, mapPostgresError(nil))

	plain := errors.New("boom")
	assert.Same(t, plain, mapPostgresError(plain))

	tests := []struct {
		name        string
		code        string
		unavailable bool
		contains    string
	}{
		{name: "connection failure", code: pgerrcode.ConnectionFailure, unavailable: true},
		{name: "admin shutdown", code: pgerrcode.AdminShutdown, unavailable: true},
		{name: "too many connections", code: pgerrcode.TooManyConnections, unavailable: true},
		{name: "missing table", code: pgerrcode.UndefinedTable, contains: "auto-migrate"},
		{name: "check violation", code: pgerrcode.CheckViolation, contains: "check constraint"},
		{name: "canceled", code: pgerrcode.QueryCanceled, contains: "query canceled"},
		{name: "unknown", code: pgerrcode.DivisionByZero, contains: "postgres error [22012]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.code, Message: "msg"}
			err := mapPostgresError(pgErr)

			require.Error(t, err)
			assert.ErrorIs(t, err, pgErr)
			assert.Equal(t, tt.unavailable, errors.Is(err, store.ErrStoreUnavailable))
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}
