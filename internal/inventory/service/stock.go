package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rsm/retail-backend/internal/inventory/events"
	"github.com/rsm/retail-backend/internal/inventory/repository"
	"github.com/rsm/retail-backend/pkg/database"
	"github.com/rsm/retail-backend/pkg/errors"
	"github.com/rsm/retail-backend/pkg/logger"
	"github.com/rsm/retail-backend/pkg/messaging"
)

// ReceiveStockInput describes an incoming stock delivery
type ReceiveStockInput struct {
	ProductID   int64      `json:"product_id" validate:"required"`
	BranchID    *int64     `json:"branch_id,omitempty"`
	WarehouseID *int64     `json:"warehouse_id,omitempty"`
	LotCode     *string    `json:"lot_code,omitempty"`
	ExpiredDate *time.Time `json:"expired_date,omitempty"`
	Quantity    int        `json:"quantity" validate:"required,gt=0"`
}

// StockService owns the stock ledger: lot intake, sale deduction, reservation
// and recounts. Every mutation keeps the account in step with its lots.
type StockService struct {
	db        *database.DB
	accounts  *repository.AccountRepository
	lots      *repository.LotRepository
	products  *repository.ProductRepository
	audits    *repository.AuditRepository
	publisher *events.InventoryEventPublisher
	logger    *logger.Logger
}

// NewStockService creates a new stock service
func NewStockService(
	db *database.DB,
	accounts *repository.AccountRepository,
	lots *repository.LotRepository,
	products *repository.ProductRepository,
	audits *repository.AuditRepository,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *StockService {
	return &StockService{
		db:        db,
		accounts:  accounts,
		lots:      lots,
		products:  products,
		audits:    audits,
		publisher: publisher,
		logger:    log,
	}
}

// Receive books a delivery in as a new lot and raises the account by the same
// quantity. The account is created on first stock for a product x location.
func (s *StockService) Receive(ctx context.Context, input *ReceiveStockInput) (*repository.Lot, error) {
	if err := validateLocation(input.BranchID, input.WarehouseID); err != nil {
		return nil, err
	}

	if _, err := s.products.GetByID(ctx, input.ProductID); err != nil {
		return nil, err
	}

	key := repository.LocationKey{
		ProductID:   input.ProductID,
		BranchID:    input.BranchID,
		WarehouseID: input.WarehouseID,
	}
	account, err := s.accounts.GetOrCreate(ctx, key)
	if err != nil {
		return nil, err
	}

	lot := &repository.Lot{
		ProductID:   input.ProductID,
		BranchID:    input.BranchID,
		WarehouseID: input.WarehouseID,
		LotCode:     input.LotCode,
		ExpiredDate: input.ExpiredDate,
		OnHand:      input.Quantity,
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.lots.CreateTx(ctx, tx, lot); err != nil {
			return err
		}
		return s.accounts.ApplyDeltaTx(ctx, tx, account.ID, input.Quantity, 0)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("lot_id", lot.ID).
		Int64("product_id", lot.ProductID).
		Int("quantity", lot.OnHand).
		Msg("stock received")

	var expiredDate *string
	if lot.ExpiredDate != nil {
		d := lot.ExpiredDate.Format("2006-01-02")
		expiredDate = &d
	}
	s.publisher.PublishStockReceived(ctx, &messaging.StockReceivedEvent{
		LotID:       lot.ID,
		ProductID:   lot.ProductID,
		BranchID:    lot.BranchID,
		WarehouseID: lot.WarehouseID,
		LotCode:     lot.LotCode,
		Quantity:    lot.OnHand,
		ExpiredDate: expiredDate,
	})

	return lot, nil
}

// DeductForSale removes quantity from a product x location, draining lots
// earliest expiry first. The whole deduction commits or none of it does;
// a request the lots cannot cover is rejected before any lot is touched.
func (s *StockService) DeductForSale(ctx context.Context, key repository.LocationKey, quantity int, reference string) error {
	if quantity <= 0 {
		return errors.BadRequest("deduction quantity must be positive")
	}

	account, err := s.accounts.GetByKey(ctx, key)
	if err != nil {
		return err
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		lots, err := s.lots.LockForDeductionTx(ctx, tx, key)
		if err != nil {
			return err
		}

		available := 0
		for _, lot := range lots {
			available += lot.OnHand
		}
		if available < quantity {
			return errors.New("INSUFFICIENT_STOCK",
				fmt.Sprintf("insufficient stock: %d requested, %d on hand", quantity, available),
				http.StatusConflict)
		}

		remaining := quantity
		for _, lot := range lots {
			if remaining == 0 {
				break
			}
			take := lot.OnHand
			if take > remaining {
				take = remaining
			}
			if err := s.lots.DeductTx(ctx, tx, lot.ID, take); err != nil {
				return err
			}
			remaining -= take
		}

		return s.accounts.ApplyDeltaTx(ctx, tx, account.ID, -quantity, 0)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Int64("product_id", key.ProductID).
		Int("quantity", quantity).
		Str("reference", reference).
		Msg("stock deducted")

	s.publisher.PublishStockDeducted(ctx, &messaging.StockDeductedEvent{
		ProductID:   key.ProductID,
		BranchID:    key.BranchID,
		WarehouseID: key.WarehouseID,
		Quantity:    quantity,
		Reference:   reference,
	})

	return nil
}

// Reserve holds quantity against future fulfilment without moving stock
func (s *StockService) Reserve(ctx context.Context, accountID int64, quantity int) error {
	if quantity <= 0 {
		return errors.BadRequest("reservation quantity must be positive")
	}
	return s.accounts.ApplyDelta(ctx, accountID, 0, quantity)
}

// Release returns a held quantity to the sellable pool
func (s *StockService) Release(ctx context.Context, accountID int64, quantity int) error {
	if quantity <= 0 {
		return errors.BadRequest("release quantity must be positive")
	}
	return s.accounts.ApplyDelta(ctx, accountID, 0, -quantity)
}

// Recount resets the account's on-hand quantity to the sum of its lots
func (s *StockService) Recount(ctx context.Context, accountID int64) (*repository.Account, error) {
	if err := s.accounts.Recalc(ctx, accountID); err != nil {
		return nil, err
	}
	return s.accounts.GetByID(ctx, accountID)
}

// RecordAudit stores a physical count against the system quantity at the
// moment of counting
func (s *StockService) RecordAudit(ctx context.Context, branchID, productID int64, countedQty int, scannedBy *string) (*repository.StockAudit, error) {
	if countedQty < 0 {
		return nil, errors.BadRequest("counted quantity cannot be negative")
	}

	key := repository.LocationKey{ProductID: productID, BranchID: &branchID}
	account, err := s.accounts.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	audit := &repository.StockAudit{
		BranchID:   branchID,
		ProductID:  productID,
		SystemQty:  account.OnHand,
		CountedQty: countedQty,
		ScannedBy:  scannedBy,
	}
	if err := s.audits.Create(ctx, audit); err != nil {
		return nil, err
	}

	if audit.Difference() != 0 {
		s.logger.Warn().
			Int64("product_id", productID).
			Int64("branch_id", branchID).
			Int("difference", audit.Difference()).
			Msg("stock audit found a count discrepancy")
	}

	return audit, nil
}

// GetAccount gets an account by ID
func (s *StockService) GetAccount(ctx context.Context, accountID int64) (*repository.Account, error) {
	return s.accounts.GetByID(ctx, accountID)
}

// ListAccounts lists the accounts for a product across locations
func (s *StockService) ListAccounts(ctx context.Context, productID int64) ([]*repository.Account, error) {
	return s.accounts.List(ctx, productID)
}

// ListLots lists the lots behind an account
func (s *StockService) ListLots(ctx context.Context, accountID int64) ([]*repository.Lot, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	key := repository.LocationKey{
		ProductID:   account.ProductID,
		BranchID:    account.BranchID,
		WarehouseID: account.WarehouseID,
	}
	return s.lots.ListByKey(ctx, key)
}

// ListAudits lists recent audits for a product
func (s *StockService) ListAudits(ctx context.Context, productID int64, limit int) ([]*repository.StockAudit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.audits.ListByProduct(ctx, productID, limit)
}

// validateLocation enforces the branch-or-warehouse scoping rule
func validateLocation(branchID, warehouseID *int64) error {
	if branchID == nil && warehouseID == nil {
		return errors.BadRequest("either branch_id or warehouse_id is required")
	}
	return nil
}
