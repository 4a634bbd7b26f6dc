package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rsm/retail-backend/internal/inventory/events"
	"github.com/rsm/retail-backend/internal/inventory/repository"
	"github.com/rsm/retail-backend/pkg/errors"
	"github.com/rsm/retail-backend/pkg/logger"
)

// AccountStore is the account access the scanner needs
type AccountStore interface {
	FindLowStock(ctx context.Context) ([]*repository.Account, error)
	GetByKey(ctx context.Context, key repository.LocationKey) (*repository.Account, error)
}

// LotStore is the lot access the scanner needs
type LotStore interface {
	FindExpired(ctx context.Context, asOf time.Time) ([]*repository.Lot, error)
	FindNearExpiry(ctx context.Context, horizon time.Time) ([]*repository.Lot, error)
}

// AlertStore is the alert access the scanner needs
type AlertStore interface {
	Create(ctx context.Context, alert *repository.Alert) error
	FindOpen(ctx context.Context, alertType string, key repository.LocationKey) (*repository.Alert, error)
}

// ProductStore resolves product names for alert messages
type ProductStore interface {
	GetByID(ctx context.Context, id int64) (*repository.Product, error)
}

// AlertNotifier pushes generated alerts to subscribers
type AlertNotifier interface {
	PublishAlert(ctx context.Context, n *events.AlertNotification)
}

// ScanSummary reports how many alerts a scan pass created
type ScanSummary struct {
	LowStock   int `json:"low_stock"`
	Expired    int `json:"expired"`
	NearExpiry int `json:"near_expiry"`
}

// AlertScanner evaluates alert conditions and opens alerts for them. Scans
// are idempotent: a condition that already has an open alert produces
// nothing, and a resolved alert whose condition persists is reopened as a
// new row on the next pass.
type AlertScanner struct {
	accounts AccountStore
	lots     LotStore
	alerts   AlertStore
	products ProductStore
	notifier AlertNotifier
	logger   *logger.Logger

	horizonDays int
	now         func() time.Time

	// Serializes scheduled and manually triggered scans.
	mu sync.Mutex
}

// NewAlertScanner creates a new alert scanner. horizonDays bounds the
// near-expiry candidate query; whether a candidate alerts is decided by the
// account's own warning window.
func NewAlertScanner(accounts AccountStore, lots LotStore, alerts AlertStore, products ProductStore, notifier AlertNotifier, horizonDays int, log *logger.Logger) *AlertScanner {
	return &AlertScanner{
		accounts:    accounts,
		lots:        lots,
		alerts:      alerts,
		products:    products,
		notifier:    notifier,
		logger:      log,
		horizonDays: horizonDays,
		now:         time.Now,
	}
}

// ScanAll runs the low stock and expiry passes back to back. A failing pass
// does not stop the others; the first error is returned after all passes ran.
func (s *AlertScanner) ScanAll(ctx context.Context) (*ScanSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &ScanSummary{}
	var firstErr error

	passes := []struct {
		name string
		run  func(context.Context, *ScanSummary) error
	}{
		{"low_stock", s.scanLowStock},
		{"expiry", s.scanExpiry},
	}

	for _, pass := range passes {
		if err := pass.run(ctx, summary); err != nil {
			s.logger.Error().Err(err).Str("pass", pass.name).Msg("alert scan pass failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.logger.Info().
		Int("low_stock", summary.LowStock).
		Int("expired", summary.Expired).
		Int("near_expiry", summary.NearExpiry).
		Msg("alert scan completed")

	return summary, firstErr
}

// ScanLowStock runs only the low stock pass
func (s *AlertScanner) ScanLowStock(ctx context.Context) (*ScanSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &ScanSummary{}
	return summary, s.scanLowStock(ctx, summary)
}

// ScanExpiry runs only the expiry pass
func (s *AlertScanner) ScanExpiry(ctx context.Context) (*ScanSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &ScanSummary{}
	return summary, s.scanExpiry(ctx, summary)
}

func (s *AlertScanner) scanLowStock(ctx context.Context, summary *ScanSummary) error {
	accounts, err := s.accounts.FindLowStock(ctx)
	if err != nil {
		return fmt.Errorf("failed to find low stock accounts: %w", err)
	}

	for _, account := range accounts {
		key := repository.LocationKey{
			ProductID:   account.ProductID,
			BranchID:    account.BranchID,
			WarehouseID: account.WarehouseID,
		}

		available := account.Available()
		alert := &repository.Alert{
			AlertType:   repository.AlertTypeLowStock,
			ProductID:   account.ProductID,
			BranchID:    account.BranchID,
			WarehouseID: account.WarehouseID,
			Message: fmt.Sprintf("Low stock for %s: %d available, threshold %d",
				s.productName(ctx, account.ProductID), available, *account.MinThreshold),
			Quantity: &available,
		}

		if s.openAlert(ctx, key, alert) {
			summary.LowStock++
		}
	}

	return nil
}

// scanExpiry runs in two phases. Expired lots always alert; near-expiry lots
// alert only for accounts that opted in with a positive warning window.
func (s *AlertScanner) scanExpiry(ctx context.Context, summary *ScanSummary) error {
	now := s.now()
	// Expiry is a date comparison, not an instant one: a lot expiring today
	// is near-expiry territory until tomorrow.
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	expired, err := s.lots.FindExpired(ctx, today)
	if err != nil {
		return fmt.Errorf("failed to find expired lots: %w", err)
	}

	for _, lot := range expired {
		alert := s.lotAlert(ctx, repository.AlertTypeExpired, lot,
			fmt.Sprintf("Lot %s of %s expired on %s, %d units remain",
				lotLabel(lot), s.productName(ctx, lot.ProductID),
				lot.ExpiredDate.Format("2006-01-02"), lot.OnHand))
		if s.openAlert(ctx, lot.Key(), alert) {
			summary.Expired++
		}
	}

	horizon := today.AddDate(0, 0, s.horizonDays)
	nearExpiry, err := s.lots.FindNearExpiry(ctx, horizon)
	if err != nil {
		return fmt.Errorf("failed to find near-expiry lots: %w", err)
	}

	for _, lot := range nearExpiry {
		daysLeft := daysUntil(now, *lot.ExpiredDate)
		if daysLeft < 0 {
			// Already expired, handled by the first phase.
			continue
		}

		account, err := s.accounts.GetByKey(ctx, lot.Key())
		if err != nil {
			if !errors.Is(err, errors.ErrNotFound) {
				s.logger.Error().Err(err).Int64("lot_id", lot.ID).Msg("failed to load account for near-expiry lot")
			}
			continue
		}
		// Near-expiry warnings are opt-in per account.
		if account.ExpiryWarningDays == nil || *account.ExpiryWarningDays <= 0 {
			continue
		}
		if daysLeft > *account.ExpiryWarningDays {
			continue
		}

		alert := s.lotAlert(ctx, repository.AlertTypeNearExpiry, lot,
			fmt.Sprintf("Lot %s of %s expires in %d days, %d units remain",
				lotLabel(lot), s.productName(ctx, lot.ProductID), daysLeft, lot.OnHand))
		if s.openAlert(ctx, lot.Key(), alert) {
			summary.NearExpiry++
		}
	}

	return nil
}

// openAlert creates the alert unless its dedup key already has an open one.
// The FindOpen check keeps the common pass quiet; the unique index catches
// the race when two scanners pass the check together.
func (s *AlertScanner) openAlert(ctx context.Context, key repository.LocationKey, alert *repository.Alert) bool {
	existing, err := s.alerts.FindOpen(ctx, alert.AlertType, key)
	if err != nil {
		s.logger.Error().Err(err).
			Str("alert_type", alert.AlertType).
			Int64("product_id", key.ProductID).
			Msg("failed to check for open alert")
		return false
	}
	if existing != nil {
		return false
	}

	if err := s.alerts.Create(ctx, alert); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			// Another scanner opened it first.
			return false
		}
		s.logger.Error().Err(err).
			Str("alert_type", alert.AlertType).
			Int64("product_id", key.ProductID).
			Msg("failed to create alert")
		return false
	}

	if s.notifier != nil {
		var accountID *int64
		if account, err := s.accounts.GetByKey(ctx, key); err == nil {
			accountID = &account.ID
		}
		s.notifier.PublishAlert(ctx, &events.AlertNotification{
			AlertID:     alert.ID,
			ProductID:   alert.ProductID,
			ProductName: s.productName(ctx, alert.ProductID),
			BranchID:    alert.BranchID,
			WarehouseID: alert.WarehouseID,
			LotID:       alert.LotID,
			AccountID:   accountID,
			AlertType:   alert.AlertType,
			Message:     alert.Message,
			Quantity:    alert.Quantity,
			ExpiredDate: alert.ExpiredDate,
			CreatedDate: alert.CreatedDate,
		})
	}

	return true
}

func (s *AlertScanner) lotAlert(ctx context.Context, alertType string, lot *repository.Lot, message string) *repository.Alert {
	quantity := lot.OnHand
	return &repository.Alert{
		AlertType:   alertType,
		ProductID:   lot.ProductID,
		BranchID:    lot.BranchID,
		WarehouseID: lot.WarehouseID,
		LotID:       &lot.ID,
		Message:     message,
		Quantity:    &quantity,
		ExpiredDate: lot.ExpiredDate,
	}
}

func (s *AlertScanner) productName(ctx context.Context, productID int64) string {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return fmt.Sprintf("product %d", productID)
	}
	return product.Name
}

func lotLabel(lot *repository.Lot) string {
	if lot.LotCode != nil && *lot.LotCode != "" {
		return *lot.LotCode
	}
	return fmt.Sprintf("#%d", lot.ID)
}

// daysUntil counts whole calendar days from now to the target date
func daysUntil(now, target time.Time) int {
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	targetDay := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	return int(targetDay.Sub(nowDay).Hours() / 24)
}
