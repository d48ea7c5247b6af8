package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func TestLockKeys(t *testing.T) {
	require.Equal(t, "class:class-1", ClassLockKey("class-1"))
	day := time.Date(2024, 1, 20, 23, 30, 0, 0, time.UTC)
	require.Equal(t, "room:room-r:2024-01-20", RoomDayLockKey("room-r", day))
}

func TestLockRepositoryLockOrdersAndDeduplicates(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")

	lock := regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")
	mock.ExpectBegin()
	mock.ExpectExec(lock).WithArgs("class:class-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(lock).WithArgs("room:room-r:2024-01-20").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(lock).WithArgs("room:room-r:2024-01-21").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	repo := NewLockRepository()
	err = repo.Lock(context.Background(), tx,
		"room:room-r:2024-01-21", "class:class-1", "", "room:room-r:2024-01-20", "room:room-r:2024-01-21")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepositoryLockFailures(t *testing.T) {
	repo := NewLockRepository()
	require.Error(t, repo.Lock(context.Background(), nil, "class:class-1"))

	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnError(errors.New("lock timeout"))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	err = repo.Lock(context.Background(), tx, "class:class-1")
	require.ErrorContains(t, err, "acquire lock class:class-1")
	require.NoError(t, mock.ExpectationsWereMet())
}
