package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rsm/retail-backend/pkg/database"
	"github.com/rsm/retail-backend/pkg/errors"
)

// Lot is a batch-level stock record. Lots are never deleted; disposal and
// deduction only drive on_hand down, so the ledger stays auditable at zero.
// ExpiredDate is immutable once set; nil means the lot does not expire.
type Lot struct {
	ID          int64      `db:"id" json:"id"`
	ProductID   int64      `db:"product_id" json:"product_id"`
	BranchID    *int64     `db:"branch_id" json:"branch_id,omitempty"`
	WarehouseID *int64     `db:"warehouse_id" json:"warehouse_id,omitempty"`
	LotCode     *string    `db:"lot_code" json:"lot_code,omitempty"`
	ExpiredDate *time.Time `db:"expired_date" json:"expired_date,omitempty"`
	OnHand      int        `db:"on_hand" json:"on_hand"`
	LastUpdated time.Time  `db:"last_updated" json:"last_updated"`
}

// Key returns the lot's product x location key
func (l *Lot) Key() LocationKey {
	return LocationKey{ProductID: l.ProductID, BranchID: l.BranchID, WarehouseID: l.WarehouseID}
}

// LotRepository handles lot-level stock persistence
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Create creates a new lot
func (r *LotRepository) Create(ctx context.Context, lot *Lot) error {
	return createLot(ctx, r.db.DB, lot)
}

// CreateTx is Create inside an existing transaction
func (r *LotRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, lot *Lot) error {
	return createLot(ctx, tx, lot)
}

func createLot(ctx context.Context, q sqlx.ExtContext, lot *Lot) error {
	query := `
		INSERT INTO inventory_lots (product_id, branch_id, warehouse_id, lot_code, expired_date, on_hand)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, last_updated
	`
	err := q.QueryRowxContext(ctx, query,
		lot.ProductID, lot.BranchID, lot.WarehouseID, lot.LotCode, lot.ExpiredDate, lot.OnHand,
	).Scan(&lot.ID, &lot.LastUpdated)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// GetByID gets a lot by ID
func (r *LotRepository) GetByID(ctx context.Context, id int64) (*Lot, error) {
	var lot Lot
	query := `SELECT * FROM inventory_lots WHERE id = $1`
	if err := r.db.GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// FindExpired lists lots with remaining stock whose expiry date is strictly
// before asOf
func (r *LotRepository) FindExpired(ctx context.Context, asOf time.Time) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT * FROM inventory_lots
		WHERE expired_date IS NOT NULL AND expired_date < $1 AND on_hand > 0
		ORDER BY expired_date, id
	`
	if err := r.db.SelectContext(ctx, &lots, query, asOf); err != nil {
		return nil, err
	}
	return lots, nil
}

// FindNearExpiry lists lots with remaining stock expiring on or before the
// horizon. This is the cheap wide net; the per-account warning window is
// applied by the caller.
func (r *LotRepository) FindNearExpiry(ctx context.Context, horizon time.Time) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT * FROM inventory_lots
		WHERE expired_date IS NOT NULL AND expired_date <= $1 AND on_hand > 0
		ORDER BY expired_date, id
	`
	if err := r.db.SelectContext(ctx, &lots, query, horizon); err != nil {
		return nil, err
	}
	return lots, nil
}

// Clear zeroes a lot's on-hand quantity (full write-off, used by disposal)
func (r *LotRepository) Clear(ctx context.Context, lotID int64) error {
	return clearLot(ctx, r.db.DB, lotID)
}

// ClearTx is Clear inside an existing transaction
func (r *LotRepository) ClearTx(ctx context.Context, tx *sqlx.Tx, lotID int64) error {
	return clearLot(ctx, tx, lotID)
}

func clearLot(ctx context.Context, q sqlx.ExtContext, lotID int64) error {
	query := `UPDATE inventory_lots SET on_hand = 0, last_updated = NOW() WHERE id = $1`
	result, err := q.ExecContext(ctx, query, lotID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("lot")
	}
	return nil
}

// SumOnHand returns the total lot quantity for a product x location key
func (r *LotRepository) SumOnHand(ctx context.Context, key LocationKey) (int, error) {
	var total sql.NullInt64
	query := `
		SELECT SUM(on_hand) FROM inventory_lots
		WHERE product_id = $1
		  AND branch_id IS NOT DISTINCT FROM $2
		  AND warehouse_id IS NOT DISTINCT FROM $3
	`
	if err := r.db.GetContext(ctx, &total, query, key.ProductID, key.BranchID, key.WarehouseID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// LockForDeductionTx locks and returns the lots with stock for a key, earliest
// expiry first with non-expiring lots last. Deduction allocates in this order
// so near-expiry stock leaves the shelf before it triggers an expiry alert.
func (r *LotRepository) LockForDeductionTx(ctx context.Context, tx *sqlx.Tx, key LocationKey) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT * FROM inventory_lots
		WHERE product_id = $1
		  AND branch_id IS NOT DISTINCT FROM $2
		  AND warehouse_id IS NOT DISTINCT FROM $3
		  AND on_hand > 0
		ORDER BY expired_date NULLS LAST, id
		FOR UPDATE
	`
	if err := tx.SelectContext(ctx, &lots, query, key.ProductID, key.BranchID, key.WarehouseID); err != nil {
		return nil, err
	}
	return lots, nil
}

// DeductTx decrements a single lot's on-hand quantity. The guard keeps the
// quantity non-negative even if the caller's snapshot is stale.
func (r *LotRepository) DeductTx(ctx context.Context, tx *sqlx.Tx, lotID int64, quantity int) error {
	query := `
		UPDATE inventory_lots
		SET on_hand = on_hand - $2, last_updated = NOW()
		WHERE id = $1 AND on_hand - $2 >= 0
	`
	result, err := tx.ExecContext(ctx, query, lotID, quantity)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Consistency("lot quantity changed under deduction")
	}
	return nil
}

// ListByKey lists all lots for a product x location key, including empty ones
func (r *LotRepository) ListByKey(ctx context.Context, key LocationKey) ([]*Lot, error) {
	var lots []*Lot
	query := `
		SELECT * FROM inventory_lots
		WHERE product_id = $1
		  AND branch_id IS NOT DISTINCT FROM $2
		  AND warehouse_id IS NOT DISTINCT FROM $3
		ORDER BY expired_date NULLS LAST, id
	`
	if err := r.db.SelectContext(ctx, &lots, query, key.ProductID, key.BranchID, key.WarehouseID); err != nil {
		return nil, err
	}
	return lots, nil
}
