package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
)

var _ repository.ProductRepository = (*ProductRepo)(nil)

// ProductRepo implementación del puerto ProductRepository sobre PostgreSQL (usable con pool o tx).
type ProductRepo struct {
	q Querier
}

// NewProductRepository construye el adaptador de persistencia para productos. Pasar pool o tx (Querier).
func NewProductRepository(q Querier) *ProductRepo {
	return &ProductRepo{q: q}
}

const productColumns = `sku, name, default_price, cost, tracking_mode, shelf_life_days, tax_rate, created_at, updated_at`

func scanProduct(row pgx.Row) (*entity.Product, error) {
	var p entity.Product
	var mode string
	if err := row.Scan(
		&p.SKU, &p.Name, &p.DefaultPrice, &p.Cost, &mode, &p.ShelfLifeDays, &p.TaxRate, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.TrackingMode = entity.TrackingMode(mode)
	return &p, nil
}

// GetBySKU obtiene un producto por SKU. Devuelve nil, nil si no existe.
func (r *ProductRepo) GetBySKU(ctx context.Context, sku string) (*entity.Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetBySKUs obtiene varios productos en una sola consulta. Los SKUs inexistentes se omiten.
func (r *ProductRepo) GetBySKUs(ctx context.Context, skus []string) (map[string]*entity.Product, error) {
	out := make(map[string]*entity.Product, len(skus))
	if len(skus) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `SELECT `+productColumns+` FROM products WHERE sku = ANY($1)`, skus)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.SKU] = p
	}
	return out, rows.Err()
}

// UpdateCost actualiza el costo promedio ponderado.
func (r *ProductRepo) UpdateCost(ctx context.Context, sku string, cost int64) error {
	if _, err := r.q.Exec(ctx, `UPDATE products SET cost = $2, updated_at = now() WHERE sku = $1`, sku, cost); err != nil {
		return fmt.Errorf("update product cost: %w", err)
	}
	return nil
}

// Upsert crea o reemplaza el producto (usado por el seed del catálogo).
func (r *ProductRepo) Upsert(ctx context.Context, p *entity.Product) error {
	query := `
		INSERT INTO products (sku, name, default_price, cost, tracking_mode, shelf_life_days, tax_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name,
			default_price = EXCLUDED.default_price,
			cost = EXCLUDED.cost,
			tracking_mode = EXCLUDED.tracking_mode,
			shelf_life_days = EXCLUDED.shelf_life_days,
			tax_rate = EXCLUDED.tax_rate,
			updated_at = now()`
	_, err := r.q.Exec(ctx, query,
		p.SKU, p.Name, p.DefaultPrice, p.Cost, string(p.TrackingMode), p.ShelfLifeDays, p.TaxRate,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}
