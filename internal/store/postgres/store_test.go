package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/inaiurai/shellmarket/internal/store"
)

func TestMapErr(t *testing.T) {
	other := errors.New("connection reset")
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), store.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505"}, store.ErrDuplicate},
		{"foreign key", &pgconn.PgError{Code: "23503"}, store.ErrNotFound},
		{"balance check", &pgconn.PgError{Code: "23514", ConstraintName: "agents_balance_check"}, store.ErrInsufficientBalance},
		{"read only", &pgconn.PgError{Code: "25006"}, store.ErrReadOnly},
		{"passthrough", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapErr(tt.in))
		})
	}
}

func TestWhereClause(t *testing.T) {
	assert.Equal(t, "", whereClause(nil))
	assert.Equal(t, " WHERE a = $1 AND b = $2", whereClause([]string{"a = $1", "b = $2"}))
}

func TestLimitArg(t *testing.T) {
	assert.Nil(t, limitArg(0))
	assert.Equal(t, 20, *limitArg(20))
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS platform_ledger")
	assert.Contains(t, schema, "UNIQUE (job_id, reviewer_id)")
}
