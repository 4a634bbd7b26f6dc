package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/rsm/retail-backend/internal/inventory/events"
	"github.com/rsm/retail-backend/internal/inventory/repository"
	"github.com/rsm/retail-backend/pkg/database"
	"github.com/rsm/retail-backend/pkg/errors"
	"github.com/rsm/retail-backend/pkg/logger"
	"github.com/rsm/retail-backend/pkg/messaging"
)

// DisposalService writes off expired lots. Disposal is the one flow that
// touches a lot, its account and its alert together, so all three move in a
// single transaction.
type DisposalService struct {
	db        *database.DB
	accounts  *repository.AccountRepository
	lots      *repository.LotRepository
	alerts    *repository.AlertRepository
	publisher *events.InventoryEventPublisher
	logger    *logger.Logger
}

// NewDisposalService creates a new disposal service
func NewDisposalService(
	db *database.DB,
	accounts *repository.AccountRepository,
	lots *repository.LotRepository,
	alerts *repository.AlertRepository,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *DisposalService {
	return &DisposalService{
		db:        db,
		accounts:  accounts,
		lots:      lots,
		alerts:    alerts,
		publisher: publisher,
		logger:    log,
	}
}

// DisposeExpired clears an expired lot, recounts the account from its lots
// and resolves the expiry alert, atomically. The alert, lot and account must
// belong together; a mismatched triple is rejected before anything changes.
func (s *DisposalService) DisposeExpired(ctx context.Context, alertID, lotID, accountID int64) error {
	alert, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.AlertType != repository.AlertTypeExpired {
		return errors.BadRequest("alert is not an expiry alert")
	}
	if !alert.IsOpen() {
		return errors.Conflict("alert is already resolved")
	}
	if alert.LotID == nil || *alert.LotID != lotID {
		return errors.BadRequest("lot does not match the alert")
	}

	lot, err := s.lots.GetByID(ctx, lotID)
	if err != nil {
		return err
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.ProductID != lot.ProductID ||
		!locationEqual(account.BranchID, lot.BranchID) ||
		!locationEqual(account.WarehouseID, lot.WarehouseID) {
		return errors.BadRequest("account does not match the lot")
	}

	disposedQty := lot.OnHand

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.lots.ClearTx(ctx, tx, lotID); err != nil {
			return err
		}
		if err := s.accounts.RecalcTx(ctx, tx, accountID); err != nil {
			return err
		}
		return s.alerts.ResolveTx(ctx, tx, alertID)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Int64("alert_id", alertID).
		Int64("lot_id", lotID).
		Int64("account_id", accountID).
		Int("quantity", disposedQty).
		Msg("expired lot disposed")

	s.publisher.PublishLotDisposed(ctx, &messaging.LotDisposedEvent{
		LotID:     lotID,
		AccountID: accountID,
		AlertID:   alertID,
		Quantity:  disposedQty,
	})

	return nil
}

// ResolveAlert resolves an open alert without touching stock
func (s *DisposalService) ResolveAlert(ctx context.Context, alertID int64) error {
	return s.alerts.Resolve(ctx, alertID)
}

func locationEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
