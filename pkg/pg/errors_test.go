package pg_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/entitlements/pkg/pg"
)

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	pgErr := func(code string) error {
		return fmt.Errorf("query: %w", &pgconn.PgError{Code: code})
	}

	assert.True(t, pg.IsNotFoundError(fmt.Errorf("wrap: %w", pgx.ErrNoRows)))
	assert.False(t, pg.IsNotFoundError(nil))

	assert.True(t, pg.IsTxClosedError(errors.Join(errors.New("x"), pgx.ErrTxClosed)))
	assert.False(t, pg.IsTxClosedError(nil))

	assert.True(t, pg.IsDuplicateKeyError(pgErr("23505")))
	assert.False(t, pg.IsDuplicateKeyError(pgErr("23503")))
	assert.False(t, pg.IsDuplicateKeyError(nil))

	assert.True(t, pg.IsForeignKeyViolationError(pgErr("23503")))
	assert.True(t, pg.IsCheckViolationError(pgErr("23514")))
	assert.False(t, pg.IsCheckViolationError(errors.New("23514")))
}
