package repositories

import (
	"context"
	"fmt"

	"github.com/meridianinvest/platform/internal/database"
	"github.com/meridianinvest/platform/internal/models"
)

// ProductRepository handles catalog data access
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new ProductRepository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID retrieves a product by its catalog id
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	query := `
		SELECT id, name, description, price, currency, active, created_at
		FROM products
		WHERE id = $1
	`

	var p models.Product
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Currency, &p.Active, &p.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &p, nil
}

// ListActive retrieves all purchasable products
func (r *ProductRepository) ListActive(ctx context.Context) ([]*models.Product, error) {
	query := `
		SELECT id, name, description, price, currency, active, created_at
		FROM products
		WHERE active = true
		ORDER BY price ASC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Currency, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product rows: %w", err)
	}

	return products, nil
}
