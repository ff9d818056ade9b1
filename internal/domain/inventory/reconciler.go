package inventory

import (
	"time"

	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

// WarningCode código estable de una advertencia (no bloqueante).
type WarningCode string

const (
	WarningExpirySoon  WarningCode = "ExpirySoonWarning"
	WarningOverpayment WarningCode = "OverpaymentWarning"
	// WarningStockShortage: en edición la línea pide más de lo disponible; al confirmar es InsufficientStock.
	WarningStockShortage WarningCode = "StockShortageWarning"
)

// Warning advertencia estructurada; el caller decide si pide confirmación.
type Warning struct {
	Code    WarningCode    `json:"code"`
	SKU     string         `json:"sku,omitempty"`
	LineID  string         `json:"line_id,omitempty"`
	Detail  string         `json:"detail"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Result salida del reconciliador para una línea.
type Result struct {
	Errors   []*domain.EngineError
	Warnings []Warning
}

// OK sin errores (las advertencias no cuentan).
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Err primer error o nil.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// LineCheck entrada del reconciliador.
// Item es el snapshot del ledger para el SKU; nil = solo validación estructural.
type LineCheck struct {
	Line          entity.MovementLine
	Effect        entity.LedgerEffect
	ShelfLifeDays int
	Item          *entity.StockItem
	SerialSource  entity.SerialStatus // estado exigido a los seriales en reversas
}

// Reconciler validación pura de asignaciones de lote/serial.
type Reconciler struct {
	ExpiryWarningDays int
	Now               func() time.Time
}

// NewReconciler construye el reconciliador con la ventana de aviso de vencimiento.
func NewReconciler(expiryWarningDays int) *Reconciler {
	return &Reconciler{ExpiryWarningDays: expiryWarningDays, Now: time.Now}
}

// ReconcileLine valida una línea. Con Item != nil también valida contra el ledger.
func (rc *Reconciler) ReconcileLine(chk LineCheck) Result {
	var res Result
	line := chk.Line
	fail := func(e *domain.EngineError) {
		res.Errors = append(res.Errors, e.WithLine(line.ID))
	}

	if line.Quantity <= 0 {
		fail(domain.NewError(domain.KindInvalidLine, line.SKU, "cantidad debe ser mayor a cero"))
	}
	if line.UnitPrice < 0 {
		fail(domain.NewError(domain.KindInvalidLine, line.SKU, "precio unitario negativo"))
	}
	mode := line.TrackingMode
	if chk.Item != nil && chk.Item.TrackingMode != mode {
		fail(domain.NewError(domain.KindInvalidLine, line.SKU, "el modo de seguimiento cambió a %s", chk.Item.TrackingMode))
		return res
	}

	switch mode {
	case entity.TrackingNone:
		if line.HasTrackingData() {
			fail(domain.NewError(domain.KindUnexpectedTrackingData, line.SKU, "el SKU no maneja lotes ni seriales"))
		}
	case entity.TrackingBatch:
		if len(line.SerialIDs) > 0 {
			fail(domain.NewError(domain.KindUnexpectedTrackingData, line.SKU, "el SKU se controla por lote, no por serial"))
		}
		if chk.Effect.Inbound() {
			rc.reconcileBatchInbound(chk, &res, fail)
		} else {
			rc.reconcileBatchOutbound(chk, fail)
		}
	case entity.TrackingSerial:
		if line.Batch != nil || len(line.Allocations) > 0 {
			fail(domain.NewError(domain.KindUnexpectedTrackingData, line.SKU, "el SKU se controla por serial, no por lote"))
		}
		rc.reconcileSerials(chk, fail)
	default:
		fail(domain.NewError(domain.KindInvalidLine, line.SKU, "modo de seguimiento desconocido %q", mode))
	}
	return res
}

func (rc *Reconciler) reconcileBatchInbound(chk LineCheck, res *Result, fail func(*domain.EngineError)) {
	line := chk.Line
	if len(line.Allocations) > 0 {
		fail(domain.NewError(domain.KindUnexpectedTrackingData, line.SKU, "las entradas llevan datos de lote, no asignaciones"))
	}
	if line.Batch == nil || line.Batch.BatchNumber == "" {
		fail(domain.NewError(domain.KindMissingBatchNumber, line.SKU, "número de lote requerido"))
		return
	}
	b := line.Batch
	if b.ManufactureDate != nil && b.ExpiryDate != nil && !b.ExpiryDate.After(*b.ManufactureDate) {
		fail(domain.NewError(domain.KindInvalidDateRange, line.SKU, "lote %s: vencimiento debe ser posterior a fabricación", b.BatchNumber))
		return
	}
	expiry := ComputeExpiry(b, chk.ShelfLifeDays)
	if expiry == nil || rc.ExpiryWarningDays <= 0 {
		return
	}
	now := rc.now()
	limit := now.AddDate(0, 0, rc.ExpiryWarningDays)
	if expiry.Before(limit) {
		days := int(expiry.Sub(now).Hours() / 24)
		res.Warnings = append(res.Warnings, Warning{
			Code:   WarningExpirySoon,
			SKU:    line.SKU,
			LineID: line.ID,
			Detail: "el lote vence en menos de la ventana configurada",
			Payload: map[string]any{
				"batch_number": b.BatchNumber,
				"expiry_date":  expiry.Format("2006-01-02"),
				"days_left":    days,
			},
		})
	}
}

func (rc *Reconciler) reconcileBatchOutbound(chk LineCheck, fail func(*domain.EngineError)) {
	line := chk.Line
	if line.Batch != nil {
		fail(domain.NewError(domain.KindUnexpectedTrackingData, line.SKU, "las salidas llevan asignaciones de lote, no datos de lote"))
	}
	per, err := sumAllocations(line.SKU, line.Quantity, line.Allocations)
	if err != nil {
		if ee, ok := domain.AsEngineError(err); ok {
			fail(ee)
		}
		return
	}
	if chk.Item == nil {
		return
	}
	for _, a := range line.Allocations {
		idx := chk.Item.BatchIndex(a.BatchNumber)
		if idx < 0 {
			fail(domain.NewError(domain.KindInsufficientStock, line.SKU, "el lote %s no existe", a.BatchNumber))
			continue
		}
		if have := chk.Item.Batches[idx].Quantity; per[a.BatchNumber] > have {
			fail(domain.NewError(domain.KindInsufficientStock, line.SKU, "lote %s: solicitado %d, disponible %d", a.BatchNumber, per[a.BatchNumber], have))
		}
	}
}

func (rc *Reconciler) reconcileSerials(chk LineCheck, fail func(*domain.EngineError)) {
	line := chk.Line
	if err := checkSerialList(line.SKU, line.Quantity, line.SerialIDs); err != nil {
		if ee, ok := domain.AsEngineError(err); ok {
			fail(ee)
		}
		return
	}
	if chk.Item == nil {
		return
	}
	for _, id := range line.SerialIDs {
		idx := chk.Item.SerialIndex(id)
		switch chk.Effect {
		case entity.EffectReceive:
			if idx >= 0 {
				fail(domain.NewError(domain.KindDuplicateSerial, line.SKU, "el serial %s ya existe", id))
			}
		case entity.EffectCustomerReturn:
			if idx < 0 || chk.Item.Serials[idx].Status != entity.SerialSold {
				fail(domain.NewError(domain.KindSerialUnavailable, line.SKU, "el serial %s no figura como vendido", id))
			}
		case entity.EffectReinstate, entity.EffectRevoke:
			if idx < 0 || chk.Item.Serials[idx].Status != chk.SerialSource {
				fail(domain.NewError(domain.KindSerialUnavailable, line.SKU, "el serial %s no está %s", id, chk.SerialSource))
			}
		default:
			if idx < 0 || chk.Item.Serials[idx].Status != entity.SerialAvailable {
				fail(domain.NewError(domain.KindSerialUnavailable, line.SKU, "el serial %s no está disponible", id))
			}
		}
	}
}

func (rc *Reconciler) now() time.Time {
	if rc.Now != nil {
		return rc.Now()
	}
	return time.Now()
}

// ComputeExpiry vencimiento explícito o fabricación + vida útil del catálogo.
func ComputeExpiry(b *entity.BatchInfo, shelfLifeDays int) *time.Time {
	if b == nil {
		return nil
	}
	if b.ExpiryDate != nil {
		return b.ExpiryDate
	}
	if b.ManufactureDate != nil && shelfLifeDays > 0 {
		t := b.ManufactureDate.AddDate(0, 0, shelfLifeDays)
		return &t
	}
	return nil
}
