package repository

import (
	"context"

	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

// DocumentFilter filtros del listado de documentos.
type DocumentFilter struct {
	Direction entity.Direction
	Status    entity.DocumentStatus
	Limit     int
	Offset    int
}

// MovementDocumentRepository define el puerto de persistencia de documentos de movimiento.
// GetByID devuelve nil, nil si no existe.
type MovementDocumentRepository interface {
	Create(ctx context.Context, doc *entity.MovementDocument) error
	Update(ctx context.Context, doc *entity.MovementDocument) error
	GetByID(ctx context.Context, id string) (*entity.MovementDocument, error)
	GetByIDForUpdate(ctx context.Context, id string) (*entity.MovementDocument, error)
	List(ctx context.Context, f DocumentFilter) ([]*entity.MovementDocument, int64, error)
}
