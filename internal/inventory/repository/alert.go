package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rsm/retail-backend/pkg/database"
	"github.com/rsm/retail-backend/pkg/errors"
)

// Alert types
const (
	AlertTypeLowStock   = "LOW_STOCK"
	AlertTypeNearExpiry = "NEAR_EXPIRY"
	AlertTypeExpired    = "EXPIRED"
)

// Alert is a persisted inventory alert. An alert is OPEN while ResolvedDate
// is nil; resolution is terminal, a recurring condition gets a new alert.
type Alert struct {
	ID           int64      `db:"id" json:"id"`
	AlertType    string     `db:"alert_type" json:"alert_type"`
	ProductID    int64      `db:"product_id" json:"product_id"`
	BranchID     *int64     `db:"branch_id" json:"branch_id,omitempty"`
	WarehouseID  *int64     `db:"warehouse_id" json:"warehouse_id,omitempty"`
	LotID        *int64     `db:"lot_id" json:"lot_id,omitempty"`
	Message      string     `db:"message" json:"message"`
	Quantity     *int       `db:"quantity" json:"quantity,omitempty"`
	ExpiredDate  *time.Time `db:"expired_date" json:"expired_date,omitempty"`
	CreatedDate  time.Time  `db:"created_date" json:"created_date"`
	IsRead       bool       `db:"is_read" json:"is_read"`
	ResolvedDate *time.Time `db:"resolved_date" json:"resolved_date,omitempty"`
}

// IsOpen reports whether the alert has not been resolved
func (a *Alert) IsOpen() bool {
	return a.ResolvedDate == nil
}

// AlertRepository handles alert persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new OPEN alert. The partial unique index on the dedup key
// is the authoritative guard against duplicate open alerts; a racing insert
// surfaces here as a Conflict, which scanners treat as "already open".
func (r *AlertRepository) Create(ctx context.Context, alert *Alert) error {
	query := `
		INSERT INTO inventory_alerts (
			alert_type, product_id, branch_id, warehouse_id, lot_id,
			message, quantity, expired_date, is_read
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
		RETURNING id, created_date
	`

	err := r.db.QueryRowxContext(ctx, query,
		alert.AlertType, alert.ProductID, alert.BranchID, alert.WarehouseID,
		alert.LotID, alert.Message, alert.Quantity, alert.ExpiredDate,
	).Scan(&alert.ID, &alert.CreatedDate)
	if err != nil {
		if database.IsUniqueViolation(err, "uq_inventory_alerts_open_alert") {
			return errors.Conflict("an open alert already exists for this product and location")
		}
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*Alert, error) {
	var alert Alert
	query := `SELECT * FROM inventory_alerts WHERE id = $1`
	if err := r.db.GetContext(ctx, &alert, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("alert")
		}
		return nil, err
	}
	return &alert, nil
}

// FindOpen returns the OPEN alert for a dedup key, or nil if there is none.
// Location halves must match exactly, including NULLs: a branch-scoped alert
// neither suppresses nor is suppressed by a warehouse-scoped one.
func (r *AlertRepository) FindOpen(ctx context.Context, alertType string, key LocationKey) (*Alert, error) {
	var alert Alert
	query := `
		SELECT * FROM inventory_alerts
		WHERE alert_type = $1
		  AND product_id = $2
		  AND branch_id IS NOT DISTINCT FROM $3
		  AND warehouse_id IS NOT DISTINCT FROM $4
		  AND resolved_date IS NULL
	`
	err := r.db.GetContext(ctx, &alert, query, alertType, key.ProductID, key.BranchID, key.WarehouseID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// Resolve marks an OPEN alert resolved and read. Resolving an already
// resolved or missing alert is a NotFound.
func (r *AlertRepository) Resolve(ctx context.Context, id int64) error {
	return resolveAlert(ctx, r.db.DB, id)
}

// ResolveTx is Resolve inside an existing transaction
func (r *AlertRepository) ResolveTx(ctx context.Context, tx *sqlx.Tx, id int64) error {
	return resolveAlert(ctx, tx, id)
}

func resolveAlert(ctx context.Context, q sqlx.ExtContext, id int64) error {
	query := `
		UPDATE inventory_alerts
		SET resolved_date = NOW(), is_read = TRUE
		WHERE id = $1 AND resolved_date IS NULL
	`
	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("open alert")
	}
	return nil
}

// MarkRead marks an alert as read
func (r *AlertRepository) MarkRead(ctx context.Context, id int64) error {
	query := `UPDATE inventory_alerts SET is_read = TRUE WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}
	return nil
}

// List lists alerts with filtering
func (r *AlertRepository) List(ctx context.Context, open *bool, alertType string, page, perPage int) ([]*Alert, int64, error) {
	var total int64
	args := []interface{}{}
	argIndex := 1

	countQuery := `SELECT COUNT(*) FROM inventory_alerts WHERE 1=1`
	query := `SELECT * FROM inventory_alerts WHERE 1=1`

	if open != nil {
		var cond string
		if *open {
			cond = ` AND resolved_date IS NULL`
		} else {
			cond = ` AND resolved_date IS NOT NULL`
		}
		countQuery += cond
		query += cond
	}

	if alertType != "" {
		cond := fmt.Sprintf(` AND alert_type = $%d`, argIndex)
		countQuery += cond
		query += cond
		args = append(args, alertType)
		argIndex++
	}

	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_date DESC LIMIT $%d OFFSET $%d`, argIndex, argIndex+1)
	args = append(args, perPage, (page-1)*perPage)

	var alerts []*Alert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

// CountOpen counts OPEN alerts
func (r *AlertRepository) CountOpen(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM inventory_alerts WHERE resolved_date IS NULL`
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, err
	}
	return count, nil
}
