package repository

import (
	"context"

	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

// InventoryMovementRepository define el puerto de auditoría de deltas aplicados.
type InventoryMovementRepository interface {
	CreateBatch(ctx context.Context, movements []*entity.InventoryMovement) error
	ListBySKU(ctx context.Context, sku string, limit, offset int) ([]*entity.InventoryMovement, error)
}
