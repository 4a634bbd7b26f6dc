package repository

import (
	"context"
	"time"

	"github.com/rsm/retail-backend/pkg/database"
)

// StockAudit records a physical stock count against the system quantity
type StockAudit struct {
	ID         int64     `db:"id" json:"id"`
	BranchID   int64     `db:"branch_id" json:"branch_id"`
	ProductID  int64     `db:"product_id" json:"product_id"`
	SystemQty  int       `db:"system_qty" json:"system_qty"`
	CountedQty int       `db:"counted_qty" json:"counted_qty"`
	ScanTime   time.Time `db:"scan_time" json:"scan_time"`
	ScannedBy  *string   `db:"scanned_by" json:"scanned_by,omitempty"`
}

// Difference returns counted minus system quantity
func (a *StockAudit) Difference() int {
	return a.CountedQty - a.SystemQty
}

// AuditRepository handles stock audit persistence
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create records a stock count
func (r *AuditRepository) Create(ctx context.Context, audit *StockAudit) error {
	query := `
		INSERT INTO inventory_audits (branch_id, product_id, system_qty, counted_qty, scanned_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, scan_time
	`
	return r.db.QueryRowxContext(ctx, query,
		audit.BranchID, audit.ProductID, audit.SystemQty, audit.CountedQty, audit.ScannedBy,
	).Scan(&audit.ID, &audit.ScanTime)
}

// ListByProduct lists audits for a product, newest first
func (r *AuditRepository) ListByProduct(ctx context.Context, productID int64, limit int) ([]*StockAudit, error) {
	var audits []*StockAudit
	query := `
		SELECT * FROM inventory_audits
		WHERE product_id = $1
		ORDER BY scan_time DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &audits, query, productID, limit); err != nil {
		return nil, err
	}
	return audits, nil
}
