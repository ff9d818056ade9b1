package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
)

var _ repository.InventoryMovementRepository = (*InventoryMovementRepo)(nil)

// InventoryMovementRepo implementación sobre PostgreSQL (usable con pool o tx).
type InventoryMovementRepo struct {
	q Querier
}

// NewInventoryMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInventoryMovementRepository(q Querier) *InventoryMovementRepo {
	return &InventoryMovementRepo{q: q}
}

// CreateBatch persiste los movimientos de un commit en un único round-trip.
func (r *InventoryMovementRepo) CreateBatch(ctx context.Context, movements []*entity.InventoryMovement) error {
	b := &pgx.Batch{}
	for _, m := range movements {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		serials := m.SerialIDs
		if serials == nil {
			serials = []string{}
		}
		b.Queue(`
			INSERT INTO inventory_movements
				(id, document_id, sku, effect, quantity, unit_cost, total_cost, batch_number, serial_ids, created_at, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			m.ID, m.DocumentID, m.SKU, string(m.Effect), m.Quantity, m.UnitCost, m.TotalCost,
			m.BatchNumber, serials, m.CreatedAt, m.CreatedBy,
		)
	}
	if err := sendBatch(ctx, r.q, b); err != nil {
		return fmt.Errorf("create inventory movements: %w", err)
	}
	return nil
}

// ListBySKU historial de un SKU, más reciente primero.
func (r *InventoryMovementRepo) ListBySKU(ctx context.Context, sku string, limit, offset int) ([]*entity.InventoryMovement, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, document_id, sku, effect, quantity, unit_cost, total_cost, batch_number, serial_ids, created_at, created_by
		FROM inventory_movements WHERE sku = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, sku, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()
	var list []*entity.InventoryMovement
	for rows.Next() {
		var m entity.InventoryMovement
		var effect string
		if err := rows.Scan(
			&m.ID, &m.DocumentID, &m.SKU, &effect, &m.Quantity, &m.UnitCost, &m.TotalCost,
			&m.BatchNumber, &m.SerialIDs, &m.CreatedAt, &m.CreatedBy,
		); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.Effect = entity.LedgerEffect(effect)
		list = append(list, &m)
	}
	return list, rows.Err()
}
