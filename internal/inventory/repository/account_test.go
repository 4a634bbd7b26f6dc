package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rsm/retail-backend/internal/inventory/repository"
	"github.com/rsm/retail-backend/pkg/database"
	"github.com/rsm/retail-backend/pkg/errors"
	"github.com/rsm/retail-backend/pkg/logger"
	"github.com/rsm/retail-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccountRepo(t *testing.T) (*repository.AccountRepository, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	db := database.NewFromSqlx(mockDB.DB, logger.New("test", "test"))
	return repository.NewAccountRepository(db), mockDB
}

func TestAccountRepository_ApplyDelta(t *testing.T) {
	repo, mockDB := newAccountRepo(t)
	defer mockDB.Close()

	mockDB.ExpectExec(`UPDATE inventory_accounts`).
		WithArgs(int64(1), 5, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ApplyDelta(context.Background(), 1, 5, 0)
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestAccountRepository_ApplyDelta_RejectedByGuard(t *testing.T) {
	repo, mockDB := newAccountRepo(t)
	defer mockDB.Close()

	// Guard strips the row from the update; the account itself exists.
	mockDB.ExpectExec(`UPDATE inventory_accounts`).
		WithArgs(int64(1), -20, 0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(1)).
		WillReturnRows(testutil.MockRows("exists").AddRow(true))

	err := repo.ApplyDelta(context.Background(), 1, -20, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConsistency))
	mockDB.ExpectationsWereMet(t)
}

func TestAccountRepository_ApplyDelta_MissingAccount(t *testing.T) {
	repo, mockDB := newAccountRepo(t)
	defer mockDB.Close()

	mockDB.ExpectExec(`UPDATE inventory_accounts`).
		WithArgs(int64(404), 5, 0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(404)).
		WillReturnRows(testutil.MockRows("exists").AddRow(false))

	err := repo.ApplyDelta(context.Background(), 404, 5, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mockDB.ExpectationsWereMet(t)
}

func TestAccountRepository_GetOrCreate_LosesInsertRace(t *testing.T) {
	repo, mockDB := newAccountRepo(t)
	defer mockDB.Close()

	branchID := int64(10)
	key := repository.LocationKey{ProductID: 1, BranchID: &branchID}

	// First lookup misses, the insert hits ON CONFLICT DO NOTHING because a
	// concurrent request created the row, the re-read finds it.
	mockDB.ExpectQuery(`SELECT * FROM inventory_accounts`).
		WithArgs(int64(1), int64(10), nil).
		WillReturnRows(testutil.MockRows(testutil.AccountColumns()...))
	mockDB.ExpectQuery(`INSERT INTO inventory_accounts`).
		WithArgs(int64(1), int64(10), nil).
		WillReturnRows(testutil.MockRows(testutil.AccountColumns()...))
	mockDB.ExpectQuery(`SELECT * FROM inventory_accounts`).
		WithArgs(int64(1), int64(10), nil).
		WillReturnRows(testutil.MockRows(testutil.AccountColumns()...).
			AddRow(int64(3), int64(1), branchID, nil, 0, 0, nil, nil, time.Now()))

	account, err := repo.GetOrCreate(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), account.ID)
	assert.Equal(t, 0, account.OnHand)
	mockDB.ExpectationsWereMet(t)
}

func TestAccount_Available(t *testing.T) {
	account := &repository.Account{OnHand: 10, Reserved: 3}
	assert.Equal(t, 7, account.Available())
}
