package pg_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/pg"
)

// fakeTx records the outcome; unused pgx.Tx methods panic through the nil embed.
type fakeTx struct {
	pgx.Tx
	committed   bool
	rolledBack  bool
	commitErr   error
	rollbackErr error
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.rolledBack {
		return pgx.ErrTxClosed
	}
	tx.committed = true
	return tx.commitErr
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if tx.committed {
		return pgx.ErrTxClosed
	}
	tx.rolledBack = true
	return tx.rollbackErr
}

type fakeBeginner struct {
	tx    *fakeTx
	calls int
	err   error
}

func (b *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestInTx(t *testing.T) {
	t.Parallel()

	t.Run("commits on success", func(t *testing.T) {
		t.Parallel()

		db := &fakeBeginner{tx: &fakeTx{}}
		err := pg.InTx(context.Background(), db, func(ctx context.Context) error {
			tx, ok := pg.TxFromContext(ctx)
			require.True(t, ok)
			assert.Same(t, db.tx, tx)
			return nil
		})

		require.NoError(t, err)
		assert.True(t, db.tx.committed)
		assert.False(t, db.tx.rolledBack)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		db := &fakeBeginner{tx: &fakeTx{}}
		err := pg.InTx(context.Background(), db, func(ctx context.Context) error {
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.False(t, db.tx.committed)
		assert.True(t, db.tx.rolledBack)
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		t.Parallel()

		db := &fakeBeginner{tx: &fakeTx{}}
		err := pg.InTx(context.Background(), db, func(ctx context.Context) error {
			return pg.InTx(ctx, db, func(ctx context.Context) error {
				return nil
			})
		})

		require.NoError(t, err)
		assert.Equal(t, 1, db.calls)
		assert.True(t, db.tx.committed)
	})

	t.Run("begin failure", func(t *testing.T) {
		t.Parallel()

		db := &fakeBeginner{err: errors.New("no connection")}
		err := pg.InTx(context.Background(), db, func(ctx context.Context) error {
			t.Fatal("callback must not run")
			return nil
		})

		assert.ErrorIs(t, err, pg.ErrFailedToBeginTx)
	})

	t.Run("rollback failure is reported with the cause", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		db := &fakeBeginner{tx: &fakeTx{rollbackErr: errors.New("connection lost")}}
		err := pg.InTx(context.Background(), db, func(ctx context.Context) error {
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, pg.ErrFailedToRollbackTx)
	})

	t.Run("commit failure", func(t *testing.T) {
		t.Parallel()

		db := &fakeBeginner{tx: &fakeTx{commitErr: errors.New("serialization failure")}}
		err := pg.InTx(context.Background(), db, func(ctx context.Context) error {
			return nil
		})

		assert.ErrorIs(t, err, pg.ErrFailedToCommitTx)
	})
}

func TestTxFromContext(t *testing.T) {
	t.Parallel()

	_, ok := pg.TxFromContext(context.Background())
	assert.False(t, ok)

	tx := &fakeTx{}
	got, ok := pg.TxFromContext(pg.WithTx(context.Background(), tx))
	require.True(t, ok)
	assert.Same(t, tx, got)
}

func TestConnect_EmptyConnectionString(t *testing.T) {
	t.Parallel()

	_, err := pg.Connect(context.Background(), pg.Config{})
	assert.ErrorIs(t, err, pg.ErrEmptyConnectionString)
}

func TestMigrate_PathNotProvided(t *testing.T) {
	t.Parallel()

	err := pg.Migrate(context.Background(), nil, pg.Config{}, nil, nil)
	assert.ErrorIs(t, err, pg.ErrMigrationPathNotProvided)
}
