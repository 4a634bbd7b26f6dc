package service

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

func newStockService(t *testing.T) (*StockService, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	db := database.NewFromSqlx(mockDB.DB, log)

	svc := NewStockService(
		db,
		repository.NewAccountRepository(db),
		repository.NewLotRepository(db),
		repository.NewProductRepository(db),
		repository.NewAuditRepository(db),
		nil,
		log,
	)
	return svc, mockDB
}

func expectAccountByKey(m *testutil.MockDB, onHand int) {
	m.ExpectQuery(`SELECT * FROM inventory_accounts`).
		WithArgs(int64(1), int64(10), nil).
		WillReturnRows(testutil.MockRows(testutil.AccountColumns()...).
			AddRow(int64(3), int64(1), int64(10), nil, onHand, 0, nil, nil, time.Now()))
}

func TestStockService_Receive(t *testing.T) {
	svc, mockDB := newStockService(t)
	defer mockDB.Close()

	now := time.Now()
	mockDB.ExpectQuery(`SELECT * FROM products WHERE id = $1`).
		WithArgs(int64(1)).
		WillReturnRows(testutil.MockRows("id", "code", "name", "unit", "created_date").
			AddRow(int64(1), "ESP-001", "Espresso Beans", nil, now))
	expectAccountByKey(mockDB, 0)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`INSERT INTO inventory_lots`).
		WillReturnRows(testutil.MockRows("id", "last_updated").AddRow(int64(42), now))
	mockDB.ExpectExec(`UPDATE inventory_accounts`).
		WithArgs(int64(3), 25, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	branchID := int64(10)
	lot, err := svc.Receive(context.Background(), &ReceiveStockInput{
		ProductID: 1,
		BranchID:  &branchID,
		Quantity:  25,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), lot.ID)
	assert.Equal(t, 25, lot.OnHand)
	mockDB.ExpectationsWereMet(t)
}

func TestStockService_Receive_RequiresLocation(t *testing.T) {
	svc, mockDB := newStockService(t)
	defer mockDB.Close()

	_, err := svc.Receive(context.Background(), &ReceiveStockInput{ProductID: 1, Quantity: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
	mockDB.ExpectationsWereMet(t)
}

func TestStockService_DeductForSale_DrainsLotsInOrder(t *testing.T) {
	svc, mockDB := newStockService(t)
	defer mockDB.Close()

	now := time.Now()
	expectAccountByKey(mockDB, 14)

	mockDB.ExpectBegin()
	// Lots come back earliest expiry first.
	mockDB.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(1), int64(10), nil).
		WillReturnRows(testutil.MockRows(testutil.LotColumns()...).
			AddRow(int64(41), int64(1), int64(10), nil, "L1", now.AddDate(0, 0, 3), 4, now).
			AddRow(int64(42), int64(1), int64(10), nil, "L2", now.AddDate(0, 0, 30), 10, now))
	mockDB.ExpectExec(`UPDATE inventory_lots`).
		WithArgs(int64(41), 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec(`UPDATE inventory_lots`).
		WithArgs(int64(42), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec(`UPDATE inventory_accounts`).
		WithArgs(int64(3), -6, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	branchID := int64(10)
	key := repository.LocationKey{ProductID: 1, BranchID: &branchID}
	err := svc.DeductForSale(context.Background(), key, 6, "invoice:99")
	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestStockService_DeductForSale_InsufficientStock(t *testing.T) {
	svc, mockDB := newStockService(t)
	defer mockDB.Close()

	now := time.Now()
	expectAccountByKey(mockDB, 5)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery(`FOR UPDATE`).
		WithArgs(int64(1), int64(10), nil).
		WillReturnRows(testutil.MockRows(testutil.LotColumns()...).
			AddRow(int64(41), int64(1), int64(10), nil, "L1", nil, 5, now))
	mockDB.ExpectRollback()

	branchID := int64(10)
	key := repository.LocationKey{ProductID: 1, BranchID: &branchID}
	err := svc.DeductForSale(context.Background(), key, 6, "invoice:100")
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)
	mockDB.ExpectationsWereMet(t)
}

func TestStockService_ReservationQuantityMustBePositive(t *testing.T) {
	svc, mockDB := newStockService(t)
	defer mockDB.Close()

	err := svc.Reserve(context.Background(), 3, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	err = svc.Release(context.Background(), 3, -2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
	mockDB.ExpectationsWereMet(t)
}

func TestStockService_RecordAudit_ComputesDifference(t *testing.T) {
	svc, mockDB := newStockService(t)
	defer mockDB.Close()

	now := time.Now()
	expectAccountByKey(mockDB, 14)
	mockDB.ExpectQuery(`INSERT INTO inventory_audits`).
		WithArgs(int64(10), int64(1), 14, 11, nil).
		WillReturnRows(testutil.MockRows("id", "scan_time").AddRow(int64(5), now))

	audit, err := svc.RecordAudit(context.Background(), 10, 1, 11, nil)
	require.NoError(t, err)
	assert.Equal(t, 14, audit.SystemQty)
	assert.Equal(t, 11, audit.CountedQty)
	assert.Equal(t, -3, audit.Difference())
	mockDB.ExpectationsWereMet(t)
}
