package inventory

import (
	"time"

	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

// BuildDeltas traduce las líneas del documento a deltas del ledger según la regla del sub-tipo.
// shelfLife (SKU → días) completa el vencimiento de lotes nuevos que solo traen fecha de fabricación.
func BuildDeltas(doc *entity.MovementDocument, rule SubTypeRule, shelfLife map[string]int) []entity.LedgerDelta {
	deltas := make([]entity.LedgerDelta, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		d := entity.LedgerDelta{
			SKU:          l.SKU,
			Effect:       rule.Effect,
			Quantity:     l.Quantity,
			SerialIDs:    append([]string(nil), l.SerialIDs...),
			SerialTarget: rule.SerialTarget,
			SerialSource: rule.SerialSource,
			UnitCost:     l.CostPrice,
		}
		if rule.Effect.Inbound() {
			d.UnitCost = l.UnitPrice
			if l.Batch != nil {
				b := *l.Batch
				b.ManufactureDate = copyTime(l.Batch.ManufactureDate)
				b.ExpiryDate = copyTime(ComputeExpiry(l.Batch, shelfLife[l.SKU]))
				d.Batch = &b
			}
		} else {
			d.Allocations = append([]entity.BatchAllocation(nil), l.Allocations...)
		}
		deltas = append(deltas, d)
	}
	return deltas
}

// Movements registros de auditoría de los deltas aplicados (cantidad con signo).
func Movements(documentID, actorID string, at time.Time, deltas []entity.LedgerDelta, newID func() string) []*entity.InventoryMovement {
	out := make([]*entity.InventoryMovement, 0, len(deltas))
	for _, d := range deltas {
		qty := d.Quantity
		if !d.Effect.Inbound() {
			qty = -qty
		}
		m := &entity.InventoryMovement{
			ID:         newID(),
			DocumentID: documentID,
			SKU:        d.SKU,
			Effect:     d.Effect,
			Quantity:   qty,
			UnitCost:   d.UnitCost,
			TotalCost:  d.Quantity * d.UnitCost,
			SerialIDs:  d.SerialIDs,
			CreatedAt:  at,
			CreatedBy:  actorID,
		}
		if d.Batch != nil {
			m.BatchNumber = d.Batch.BatchNumber
		} else if len(d.Allocations) == 1 {
			m.BatchNumber = d.Allocations[0].BatchNumber
		}
		out = append(out, m)
	}
	return out
}
