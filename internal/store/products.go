package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const productColumns = "id, name, description, price, image_url, category, stock, created_at"

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// GetProducts retrieves all products, newest first
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products ORDER BY created_at DESC, id")
	return products, unavailable(err)
}

// GetNewestProducts retrieves at most limit products, newest first
func (s *Store) GetNewestProducts(ctx context.Context, limit int) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products ORDER BY created_at DESC, id LIMIT $1", limit)
	return products, unavailable(err)
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?) ORDER BY created_at DESC", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	products := []models.Product{}
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, unavailable(err)
}

// CreateProduct inserts a product, assigning its ID and creation time
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (id, name, description, price, image_url, category, stock, created_at)
		VALUES (:id, :name, :description, :price, :image_url, :category, :stock, :created_at)`,
		product)
	return unavailable(err)
}

// UpdateProduct applies patch to the product under a row lock and returns the result
func (s *Store) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, unavailable(err)
	}
	defer tx.Rollback()

	var product models.Product
	err = tx.GetContext(ctx, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}

	patch.Apply(&product)

	_, err = tx.NamedExecContext(ctx, `
		UPDATE products
		SET name = :name, description = :description, price = :price,
		    image_url = :image_url, category = :category, stock = :stock
		WHERE id = :id`,
		&product)
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", unavailable(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable(err)
	}
	return &product, nil
}

// DeleteProduct removes a product
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return notFound(sql.ErrNoRows, "product", id)
	}
	return nil
}
