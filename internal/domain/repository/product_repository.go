package repository

import (
	"context"

	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

// ProductRepository define el puerto de persistencia del catálogo (solo lo que consume el motor).
// GetBySKU devuelve nil, nil si el SKU no existe.
type ProductRepository interface {
	GetBySKU(ctx context.Context, sku string) (*entity.Product, error)
	GetBySKUs(ctx context.Context, skus []string) (map[string]*entity.Product, error)
	UpdateCost(ctx context.Context, sku string, cost int64) error
	Upsert(ctx context.Context, product *entity.Product) error
}
