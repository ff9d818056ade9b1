package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/inventory"
)

// CreateCompensatingDraft crea un borrador en la dirección opuesta que revierte un documento
// que ya movió stock. Los datos de lote solo se copian cuando el mapeo es uno a uno.
func (b *MovementBuilder) CreateCompensatingDraft(ctx context.Context, docID string, actor entity.Actor) (*DocumentState, error) {
	src, err := b.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, storageErr("leer documento", err)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: documento %s", domain.ErrNotFound, docID)
	}
	if src.StockPostedAt == nil {
		return nil, fmt.Errorf("%w: el documento %s no ha movido stock", domain.ErrConflict, src.Number)
	}
	direction, subType := inventory.CompensatingSubType(src.SubType)
	if direction == "" {
		return nil, domain.NewError(domain.KindInvalidSubType, "", "sub-tipo %q sin compensación", src.SubType)
	}
	if _, err := b.policy.Rule(direction, subType); err != nil {
		return nil, err
	}

	// El borrador se arma completo y se guarda en una sola transacción
	doc := b.newDraft(direction, subType, actor)
	doc.CompensatesID = src.ID
	doc.Terms.TaxRate = src.Terms.TaxRate
	doc.Terms.DiscountType = src.Terms.DiscountType
	doc.Terms.DiscountValue = src.Terms.DiscountValue
	for _, l := range src.Lines {
		line, err := mirrorLine(l, direction)
		if err != nil {
			return nil, err
		}
		doc.Lines = append(doc.Lines, line)
	}
	doc.AppendHistory(entity.ActionCompensates, entity.StatusDraft, actor, doc.CreatedAt, "compensa "+src.Number)
	if err := b.create(ctx, doc); err != nil {
		return nil, err
	}
	b.log.Info().Str("document_id", doc.ID).Str("number", doc.Number).
		Str("compensates", src.Number).Str("sub_type", string(subType)).Str("actor", actor.ID).Msg("borrador compensatorio creado")
	return b.evaluate(ctx, doc)
}

// mirrorLine copia la línea invirtiendo la forma de los datos de lote.
func mirrorLine(l entity.MovementLine, direction entity.Direction) (entity.MovementLine, error) {
	out := entity.MovementLine{
		ID:           uuid.New().String(),
		SKU:          l.SKU,
		ProductName:  l.ProductName,
		TrackingMode: l.TrackingMode,
		Quantity:     l.Quantity,
		UnitPrice:    l.UnitPrice,
		SerialIDs:    append([]string(nil), l.SerialIDs...),
	}
	if direction == entity.DirectionOutbound {
		out.CostPrice = l.UnitPrice
		if l.Batch != nil {
			out.Allocations = []entity.BatchAllocation{{BatchNumber: l.Batch.BatchNumber, Quantity: l.Quantity}}
		}
	} else if len(l.Allocations) == 1 {
		out.Batch = &entity.BatchInfo{BatchNumber: l.Allocations[0].BatchNumber}
	}
	total, err := inventory.LineAmount(out.SKU, out.Quantity, out.UnitPrice)
	if err != nil {
		return out, withLine(err, out.ID)
	}
	out.LineTotal = total
	return out, nil
}
