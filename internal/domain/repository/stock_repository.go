package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

// ExpiringBatch lote con vencimiento dentro de la ventana consultada.
type ExpiringBatch struct {
	SKU         string
	BatchNumber string
	Quantity    int64
	ExpiryDate  time.Time
}

// StockRepository define el puerto del ledger persistido.
// Los SKUs sin fila se omiten del resultado de Load; LoadForUpdate crea la fila vacía
// (con el modo de seguimiento indicado) y bloquea todas en orden de SKU.
type StockRepository interface {
	Load(ctx context.Context, skus []string) ([]*entity.StockItem, error)
	LoadForUpdate(ctx context.Context, modes map[string]entity.TrackingMode) ([]*entity.StockItem, error)
	Save(ctx context.Context, items []*entity.StockItem) error
	ListExpiringBatches(ctx context.Context, before time.Time) ([]ExpiringBatch, error)
}
