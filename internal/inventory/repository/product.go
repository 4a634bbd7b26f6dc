package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/rsm/retail-backend/pkg/database"
	"github.com/rsm/retail-backend/pkg/errors"
)

// Product is reference data owned by the catalog service; the ledger only
// reads it for alert messages and DTOs.
type Product struct {
	ID          int64     `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Unit        *string   `db:"unit" json:"unit,omitempty"`
	CreatedDate time.Time `db:"created_date" json:"created_date"`
}

// ProductRepository provides read-only product lookups
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID gets a product by ID
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*Product, error) {
	var product Product
	query := `SELECT * FROM products WHERE id = $1`
	if err := r.db.GetContext(ctx, &product, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &product, nil
}
