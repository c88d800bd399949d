package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
)

func TestWithTxCommitsOnSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE inventory_items").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), mock, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "UPDATE inventory_items SET quantity = 1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("insufficient")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = WithTx(context.Background(), mock, func(tx pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, apperr.ErrOperationFailed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxBeginFailureIsOperationFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	called := false
	err = WithTx(context.Background(), mock, func(tx pgx.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrOperationFailed)
	assert.False(t, called)
}

func TestWithTxCommitFailureIsOperationFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err = WithTx(context.Background(), mock, func(tx pgx.Tx) error { return nil })
	assert.ErrorIs(t, err, apperr.ErrOperationFailed)
}

func TestAdvisoryLock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	key := "appointment:patient:42"
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(LockKey(key)).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, AdvisoryLock(context.Background(), mock, key))

	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(LockKey(key)).WillReturnError(context.DeadlineExceeded)
	err = AdvisoryLock(context.Background(), mock, key)
	assert.ErrorIs(t, err, apperr.ErrOperationFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockKeyIsStable(t *testing.T) {
	assert.Equal(t, LockKey("a"), LockKey("a"))
	assert.NotEqual(t, LockKey("appointment:patient:1"), LockKey("appointment:patient:2"))
}
