package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rsm/retail-backend/internal/inventory/events"
	"github.com/rsm/retail-backend/internal/inventory/repository"
	"github.com/rsm/retail-backend/pkg/errors"
	"github.com/rsm/retail-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	lowStock []*repository.Account
	byKey    map[string]*repository.Account
}

func accountKey(key repository.LocationKey) string {
	return fmt.Sprintf("%d/%v/%v", key.ProductID, ptrVal(key.BranchID), ptrVal(key.WarehouseID))
}

func ptrVal(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func (f *fakeAccounts) FindLowStock(ctx context.Context) ([]*repository.Account, error) {
	return f.lowStock, nil
}

func (f *fakeAccounts) GetByKey(ctx context.Context, key repository.LocationKey) (*repository.Account, error) {
	if account, ok := f.byKey[accountKey(key)]; ok {
		return account, nil
	}
	return nil, errors.NotFound("inventory account")
}

type fakeLots struct {
	lots []*repository.Lot
}

func (f *fakeLots) FindExpired(ctx context.Context, asOf time.Time) ([]*repository.Lot, error) {
	var out []*repository.Lot
	for _, lot := range f.lots {
		if lot.ExpiredDate != nil && lot.ExpiredDate.Before(asOf) && lot.OnHand > 0 {
			out = append(out, lot)
		}
	}
	return out, nil
}

func (f *fakeLots) FindNearExpiry(ctx context.Context, horizon time.Time) ([]*repository.Lot, error) {
	var out []*repository.Lot
	for _, lot := range f.lots {
		if lot.ExpiredDate != nil && !lot.ExpiredDate.After(horizon) && lot.OnHand > 0 {
			out = append(out, lot)
		}
	}
	return out, nil
}

// fakeAlerts enforces the one-open-alert rule the way the partial unique
// index does, including the conflict on a racing create.
type fakeAlerts struct {
	nextID  int64
	open    map[string]*repository.Alert
	created []*repository.Alert

	conflictOnCreate bool
	hideFromFindOpen bool
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{nextID: 1, open: make(map[string]*repository.Alert)}
}

func alertDedupKey(alertType string, key repository.LocationKey) string {
	return alertType + "|" + accountKey(key)
}

func (f *fakeAlerts) Create(ctx context.Context, alert *repository.Alert) error {
	key := repository.LocationKey{ProductID: alert.ProductID, BranchID: alert.BranchID, WarehouseID: alert.WarehouseID}
	dedup := alertDedupKey(alert.AlertType, key)
	if f.conflictOnCreate || f.open[dedup] != nil {
		return errors.Conflict("an open alert already exists for this product and location")
	}

	alert.ID = f.nextID
	f.nextID++
	alert.CreatedDate = time.Now()
	f.open[dedup] = alert
	f.created = append(f.created, alert)
	return nil
}

func (f *fakeAlerts) FindOpen(ctx context.Context, alertType string, key repository.LocationKey) (*repository.Alert, error) {
	if f.hideFromFindOpen {
		return nil, nil
	}
	return f.open[alertDedupKey(alertType, key)], nil
}

func (f *fakeAlerts) resolve(alertType string, key repository.LocationKey) {
	dedup := alertDedupKey(alertType, key)
	if alert := f.open[dedup]; alert != nil {
		now := time.Now()
		alert.ResolvedDate = &now
		delete(f.open, dedup)
	}
}

type fakeProducts struct {
	names map[int64]string
}

func (f *fakeProducts) GetByID(ctx context.Context, id int64) (*repository.Product, error) {
	name, ok := f.names[id]
	if !ok {
		return nil, errors.NotFound("product")
	}
	return &repository.Product{ID: id, Name: name}, nil
}

type fakeNotifier struct {
	notifications []*events.AlertNotification
}

func (f *fakeNotifier) PublishAlert(ctx context.Context, n *events.AlertNotification) {
	f.notifications = append(f.notifications, n)
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func testScanner(accounts *fakeAccounts, lots *fakeLots, alerts *fakeAlerts, notifier *fakeNotifier) *AlertScanner {
	products := &fakeProducts{names: map[int64]string{1: "Espresso Beans", 2: "Oat Milk"}}
	log := logger.New("test", "test")
	return NewAlertScanner(accounts, lots, alerts, products, notifier, 30, log)
}

func TestAlertScanner_LowStockCreatesAlert(t *testing.T) {
	branchID := int64Ptr(10)
	key := repository.LocationKey{ProductID: 1, BranchID: branchID}
	account := &repository.Account{
		ID: 1, ProductID: 1, BranchID: branchID,
		OnHand: 9, Reserved: 2, MinThreshold: intPtr(7),
	}
	accounts := &fakeAccounts{
		lowStock: []*repository.Account{account},
		byKey:    map[string]*repository.Account{accountKey(key): account},
	}
	alerts := newFakeAlerts()
	notifier := &fakeNotifier{}
	scanner := testScanner(accounts, &fakeLots{}, alerts, notifier)

	summary, err := scanner.ScanLowStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.LowStock)

	require.Len(t, alerts.created, 1)
	alert := alerts.created[0]
	assert.Equal(t, repository.AlertTypeLowStock, alert.AlertType)
	assert.Equal(t, int64(1), alert.ProductID)
	assert.Equal(t, branchID, alert.BranchID)
	assert.Nil(t, alert.WarehouseID)
	require.NotNil(t, alert.Quantity)
	assert.Equal(t, 7, *alert.Quantity)
	assert.Contains(t, alert.Message, "Espresso Beans")

	require.Len(t, notifier.notifications, 1)
	notification := notifier.notifications[0]
	assert.Equal(t, alert.ID, notification.AlertID)
	assert.Equal(t, "Espresso Beans", notification.ProductName)
	require.NotNil(t, notification.AccountID)
	assert.Equal(t, account.ID, *notification.AccountID)
}

func TestAlertScanner_LowStockIdempotent(t *testing.T) {
	account := &repository.Account{
		ID: 1, ProductID: 1, BranchID: int64Ptr(10),
		OnHand: 3, Reserved: 0, MinThreshold: intPtr(5),
	}
	accounts := &fakeAccounts{lowStock: []*repository.Account{account}}
	alerts := newFakeAlerts()
	scanner := testScanner(accounts, &fakeLots{}, alerts, &fakeNotifier{})

	first, err := scanner.ScanLowStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.LowStock)

	second, err := scanner.ScanLowStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.LowStock)
	assert.Len(t, alerts.created, 1)
}

func TestAlertScanner_LowStockReopensAfterResolve(t *testing.T) {
	key := repository.LocationKey{ProductID: 1, BranchID: int64Ptr(10)}
	account := &repository.Account{
		ID: 1, ProductID: 1, BranchID: key.BranchID,
		OnHand: 3, Reserved: 0, MinThreshold: intPtr(5),
	}
	accounts := &fakeAccounts{lowStock: []*repository.Account{account}}
	alerts := newFakeAlerts()
	scanner := testScanner(accounts, &fakeLots{}, alerts, &fakeNotifier{})

	_, err := scanner.ScanLowStock(context.Background())
	require.NoError(t, err)

	alerts.resolve(repository.AlertTypeLowStock, key)

	summary, err := scanner.ScanLowStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.LowStock)
	assert.Len(t, alerts.created, 2)
	assert.NotEqual(t, alerts.created[0].ID, alerts.created[1].ID)
}

func TestAlertScanner_CreateConflictIsNotAnError(t *testing.T) {
	account := &repository.Account{
		ID: 1, ProductID: 1, BranchID: int64Ptr(10),
		OnHand: 3, Reserved: 0, MinThreshold: intPtr(5),
	}
	accounts := &fakeAccounts{lowStock: []*repository.Account{account}}

	// Another scanner wins the race between the open-alert check and the
	// insert: FindOpen sees nothing, Create conflicts.
	alerts := newFakeAlerts()
	alerts.conflictOnCreate = true
	alerts.hideFromFindOpen = true
	notifier := &fakeNotifier{}
	scanner := testScanner(accounts, &fakeLots{}, alerts, notifier)

	summary, err := scanner.ScanLowStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.LowStock)
	assert.Empty(t, notifier.notifications)
}

func TestAlertScanner_ExpiredLotCreatesAlert(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	lot := &repository.Lot{
		ID: 42, ProductID: 1, BranchID: int64Ptr(10),
		ExpiredDate: &yesterday, OnHand: 12,
	}
	alerts := newFakeAlerts()
	notifier := &fakeNotifier{}
	scanner := testScanner(&fakeAccounts{}, &fakeLots{lots: []*repository.Lot{lot}}, alerts, notifier)
	scanner.now = func() time.Time { return now }

	summary, err := scanner.ScanExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Expired)
	assert.Equal(t, 0, summary.NearExpiry)

	require.Len(t, alerts.created, 1)
	alert := alerts.created[0]
	assert.Equal(t, repository.AlertTypeExpired, alert.AlertType)
	require.NotNil(t, alert.LotID)
	assert.Equal(t, int64(42), *alert.LotID)
	require.NotNil(t, alert.Quantity)
	assert.Equal(t, 12, *alert.Quantity)
	require.NotNil(t, alert.ExpiredDate)
	assert.True(t, alert.ExpiredDate.Equal(yesterday))
}

func TestAlertScanner_NearExpiryWindowBoundary(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	inSeven := now.AddDate(0, 0, 7)
	inEight := now.AddDate(0, 0, 8)

	branchID := int64Ptr(10)
	keyOne := repository.LocationKey{ProductID: 1, BranchID: branchID}
	keyTwo := repository.LocationKey{ProductID: 2, BranchID: branchID}

	accounts := &fakeAccounts{byKey: map[string]*repository.Account{
		accountKey(keyOne): {ID: 1, ProductID: 1, BranchID: branchID, ExpiryWarningDays: intPtr(7)},
		accountKey(keyTwo): {ID: 2, ProductID: 2, BranchID: branchID, ExpiryWarningDays: intPtr(7)},
	}}
	lots := &fakeLots{lots: []*repository.Lot{
		{ID: 1, ProductID: 1, BranchID: branchID, ExpiredDate: &inSeven, OnHand: 5},
		{ID: 2, ProductID: 2, BranchID: branchID, ExpiredDate: &inEight, OnHand: 5},
	}}
	alerts := newFakeAlerts()
	scanner := testScanner(accounts, lots, alerts, &fakeNotifier{})
	scanner.now = func() time.Time { return now }

	summary, err := scanner.ScanExpiry(context.Background())
	require.NoError(t, err)

	// Day seven is inside a seven-day window, day eight is outside.
	assert.Equal(t, 1, summary.NearExpiry)
	require.Len(t, alerts.created, 1)
	assert.Equal(t, int64(1), alerts.created[0].ProductID)
	assert.Equal(t, repository.AlertTypeNearExpiry, alerts.created[0].AlertType)
}

func TestAlertScanner_NearExpiryIsOptIn(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	inTen := now.AddDate(0, 0, 10)

	branchID := int64Ptr(10)
	keyOne := repository.LocationKey{ProductID: 1, BranchID: branchID}
	keyTwo := repository.LocationKey{ProductID: 2, BranchID: branchID}

	// Product 1's account never opted in, product 2's window is zero, and
	// product 3 has no account at all. None of them may warn.
	accounts := &fakeAccounts{byKey: map[string]*repository.Account{
		accountKey(keyOne): {ID: 1, ProductID: 1, BranchID: branchID},
		accountKey(keyTwo): {ID: 2, ProductID: 2, BranchID: branchID, ExpiryWarningDays: intPtr(0)},
	}}
	lots := &fakeLots{lots: []*repository.Lot{
		{ID: 1, ProductID: 1, BranchID: branchID, ExpiredDate: &inTen, OnHand: 5},
		{ID: 2, ProductID: 2, BranchID: branchID, ExpiredDate: &today, OnHand: 5},
		{ID: 3, ProductID: 3, BranchID: branchID, ExpiredDate: &inTen, OnHand: 5},
	}}
	alerts := newFakeAlerts()
	scanner := testScanner(accounts, lots, alerts, &fakeNotifier{})
	scanner.now = func() time.Time { return now }

	summary, err := scanner.ScanExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.NearExpiry)
	assert.Equal(t, 0, summary.Expired)
	assert.Empty(t, alerts.created)
}

func TestAlertScanner_LotExpiringTodayIsNearExpiryOnly(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	branchID := int64Ptr(10)
	key := repository.LocationKey{ProductID: 1, BranchID: branchID}

	accounts := &fakeAccounts{byKey: map[string]*repository.Account{
		accountKey(key): {ID: 1, ProductID: 1, BranchID: branchID, ExpiryWarningDays: intPtr(7)},
	}}
	lots := &fakeLots{lots: []*repository.Lot{
		{ID: 1, ProductID: 1, BranchID: branchID, ExpiredDate: &today, OnHand: 5},
	}}
	alerts := newFakeAlerts()
	scanner := testScanner(accounts, lots, alerts, &fakeNotifier{})
	scanner.now = func() time.Time { return now }

	summary, err := scanner.ScanExpiry(context.Background())
	require.NoError(t, err)

	// Expiry is a date boundary: today's date is still near-expiry, only
	// strictly past dates are expired.
	assert.Equal(t, 0, summary.Expired)
	assert.Equal(t, 1, summary.NearExpiry)
	require.Len(t, alerts.created, 1)
	assert.Equal(t, repository.AlertTypeNearExpiry, alerts.created[0].AlertType)
}

func TestAlertScanner_ExpiredAndNearExpiryDoNotDouble(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	branchID := int64Ptr(10)
	lot := &repository.Lot{ID: 1, ProductID: 1, BranchID: branchID, ExpiredDate: &yesterday, OnHand: 5}
	alerts := newFakeAlerts()
	scanner := testScanner(&fakeAccounts{}, &fakeLots{lots: []*repository.Lot{lot}}, alerts, &fakeNotifier{})
	scanner.now = func() time.Time { return now }

	summary, err := scanner.ScanExpiry(context.Background())
	require.NoError(t, err)

	// An already expired lot is phase-one territory only.
	assert.Equal(t, 1, summary.Expired)
	assert.Equal(t, 0, summary.NearExpiry)
	assert.Len(t, alerts.created, 1)
}

func TestAlertScanner_ScanAllRunsBothPasses(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	branchID := int64Ptr(10)

	accounts := &fakeAccounts{
		lowStock: []*repository.Account{
			{ID: 1, ProductID: 1, BranchID: branchID, OnHand: 2, MinThreshold: intPtr(5)},
		},
		byKey: map[string]*repository.Account{},
	}
	lots := &fakeLots{lots: []*repository.Lot{
		{ID: 1, ProductID: 2, BranchID: branchID, ExpiredDate: &yesterday, OnHand: 8},
	}}
	alerts := newFakeAlerts()
	scanner := testScanner(accounts, lots, alerts, &fakeNotifier{})
	scanner.now = func() time.Time { return now }

	summary, err := scanner.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.LowStock)
	assert.Equal(t, 1, summary.Expired)
	assert.Len(t, alerts.created, 2)
}

func TestAlertScanner_BranchAndWarehouseAlertsAreDistinct(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	// Same product expired at a branch and at a warehouse.
	lots := &fakeLots{lots: []*repository.Lot{
		{ID: 1, ProductID: 1, BranchID: int64Ptr(10), ExpiredDate: &yesterday, OnHand: 3},
		{ID: 2, ProductID: 1, WarehouseID: int64Ptr(20), ExpiredDate: &yesterday, OnHand: 4},
	}}
	alerts := newFakeAlerts()
	scanner := testScanner(&fakeAccounts{}, lots, alerts, &fakeNotifier{})
	scanner.now = func() time.Time { return now }

	summary, err := scanner.ScanExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Expired)
	assert.Len(t, alerts.created, 2)
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 15, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, 0, daysUntil(now, time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, daysUntil(now, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 7, daysUntil(now, time.Date(2026, 3, 22, 6, 0, 0, 0, time.UTC)))
	assert.Equal(t, -1, daysUntil(now, time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)))
}
