package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rsm/retail-backend/pkg/database"
	"github.com/rsm/retail-backend/pkg/errors"
)

// Account is the aggregate stock record for one product at one location.
// Exactly one of BranchID/WarehouseID may be nil, never both.
type Account struct {
	ID                int64      `db:"id" json:"id"`
	ProductID         int64      `db:"product_id" json:"product_id"`
	BranchID          *int64     `db:"branch_id" json:"branch_id,omitempty"`
	WarehouseID       *int64     `db:"warehouse_id" json:"warehouse_id,omitempty"`
	OnHand            int        `db:"on_hand" json:"on_hand"`
	Reserved          int        `db:"reserved" json:"reserved"`
	MinThreshold      *int       `db:"min_threshold" json:"min_threshold,omitempty"`
	ExpiryWarningDays *int       `db:"expiry_warning_days" json:"expiry_warning_days,omitempty"`
	LastUpdated       time.Time  `db:"last_updated" json:"last_updated"`
}

// Available returns the sellable quantity (on-hand minus reserved).
func (a *Account) Available() int {
	return a.OnHand - a.Reserved
}

// LocationKey identifies a product x location pair shared by accounts and lots.
type LocationKey struct {
	ProductID   int64
	BranchID    *int64
	WarehouseID *int64
}

// AccountRepository handles aggregate stock persistence
type AccountRepository struct {
	db *database.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID gets an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*Account, error) {
	var account Account
	query := `SELECT * FROM inventory_accounts WHERE id = $1`
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("inventory account")
		}
		return nil, err
	}
	return &account, nil
}

// GetByKey gets the account for a product x location key. NULL location halves
// must match exactly: a branch account never answers for a warehouse account.
func (r *AccountRepository) GetByKey(ctx context.Context, key LocationKey) (*Account, error) {
	var account Account
	query := `
		SELECT * FROM inventory_accounts
		WHERE product_id = $1
		  AND branch_id IS NOT DISTINCT FROM $2
		  AND warehouse_id IS NOT DISTINCT FROM $3
	`
	if err := r.db.GetContext(ctx, &account, query, key.ProductID, key.BranchID, key.WarehouseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("inventory account")
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreate returns the account for a key, creating an empty one if missing.
// This is the only path that may create accounts; delta application on a
// missing account is an error (first-stock creation must be explicit).
func (r *AccountRepository) GetOrCreate(ctx context.Context, key LocationKey) (*Account, error) {
	account, err := r.GetByKey(ctx, key)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	insert := `
		INSERT INTO inventory_accounts (product_id, branch_id, warehouse_id, on_hand, reserved)
		VALUES ($1, $2, $3, 0, 0)
		ON CONFLICT DO NOTHING
		RETURNING *
	`
	var created Account
	err = r.db.GetContext(ctx, &created, insert, key.ProductID, key.BranchID, key.WarehouseID)
	if err == sql.ErrNoRows {
		// Lost the insert race; the row exists now.
		return r.GetByKey(ctx, key)
	}
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}
	return &created, nil
}

// ApplyDelta atomically applies on-hand and reserved deltas to an account.
// The guards run inside the UPDATE so concurrent mutations serialize on the
// row and can never produce a negative quantity or reserved > on-hand.
func (r *AccountRepository) ApplyDelta(ctx context.Context, accountID int64, onHandDelta, reservedDelta int) error {
	return applyAccountDelta(ctx, r.db.DB, accountID, onHandDelta, reservedDelta)
}

// ApplyDeltaTx is ApplyDelta inside an existing transaction
func (r *AccountRepository) ApplyDeltaTx(ctx context.Context, tx *sqlx.Tx, accountID int64, onHandDelta, reservedDelta int) error {
	return applyAccountDelta(ctx, tx, accountID, onHandDelta, reservedDelta)
}

func applyAccountDelta(ctx context.Context, q sqlx.ExtContext, accountID int64, onHandDelta, reservedDelta int) error {
	query := `
		UPDATE inventory_accounts
		SET on_hand = on_hand + $2,
		    reserved = reserved + $3,
		    last_updated = NOW()
		WHERE id = $1
		  AND on_hand + $2 >= 0
		  AND reserved + $3 >= 0
		  AND reserved + $3 <= on_hand + $2
	`
	result, err := q.ExecContext(ctx, query, accountID, onHandDelta, reservedDelta)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		return nil
	}

	// Distinguish a missing account from a rejected delta.
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM inventory_accounts WHERE id = $1)`, accountID); err != nil {
		return err
	}
	if !exists {
		return errors.NotFound("inventory account")
	}
	return errors.Consistency("delta would violate quantity invariants (negative stock or reserved above on-hand)")
}

// Recalc recomputes the account's on-hand quantity from its lots. Idempotent;
// only refreshes last_updated when the sum is unchanged. Reserved is untouched.
func (r *AccountRepository) Recalc(ctx context.Context, accountID int64) error {
	return recalcAccount(ctx, r.db.DB, accountID)
}

// RecalcTx is Recalc inside an existing transaction
func (r *AccountRepository) RecalcTx(ctx context.Context, tx *sqlx.Tx, accountID int64) error {
	return recalcAccount(ctx, tx, accountID)
}

func recalcAccount(ctx context.Context, q sqlx.ExtContext, accountID int64) error {
	query := `
		UPDATE inventory_accounts a
		SET on_hand = COALESCE((
		        SELECT SUM(l.on_hand) FROM inventory_lots l
		        WHERE l.product_id = a.product_id
		          AND l.branch_id IS NOT DISTINCT FROM a.branch_id
		          AND l.warehouse_id IS NOT DISTINCT FROM a.warehouse_id
		    ), 0),
		    last_updated = NOW()
		WHERE a.id = $1
	`
	result, err := q.ExecContext(ctx, query, accountID)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("inventory account")
	}
	return nil
}

// FindLowStock lists accounts whose available quantity has reached the
// configured threshold. Accounts without a threshold are skipped (opt-in).
func (r *AccountRepository) FindLowStock(ctx context.Context) ([]*Account, error) {
	var accounts []*Account
	query := `
		SELECT * FROM inventory_accounts
		WHERE min_threshold IS NOT NULL
		  AND on_hand - reserved <= min_threshold
		ORDER BY id
	`
	if err := r.db.SelectContext(ctx, &accounts, query); err != nil {
		return nil, err
	}
	return accounts, nil
}

// List lists accounts for a product (all locations)
func (r *AccountRepository) List(ctx context.Context, productID int64) ([]*Account, error) {
	var accounts []*Account
	query := `SELECT * FROM inventory_accounts WHERE product_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &accounts, query, productID); err != nil {
		return nil, err
	}
	return accounts, nil
}
