package inventory

import (
	"fmt"
	"sort"
	"time"

	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

// StockLedger agregado dueño de los StockItem (y sus lotes/seriales) indexados por SKU.
// Toda mutación pasa por ApplyInbound / ApplyOutbound / Apply*Return; cada operación
// valida completa antes de tocar el estado, de modo que un error nunca deja cambios parciales.
// No es seguro para uso concurrente: el MovementRecorder lo usa dentro de su sección crítica.
type StockLedger struct {
	items map[string]*entity.StockItem
	now   func() time.Time
}

// NewStockLedger construye el ledger a partir de un snapshot (se copian los ítems).
func NewStockLedger(items []*entity.StockItem) *StockLedger {
	l := &StockLedger{items: make(map[string]*entity.StockItem, len(items)), now: time.Now}
	for _, it := range items {
		if it == nil {
			continue
		}
		cp := it.Clone()
		cp.Recompute()
		l.items[cp.SKU] = cp
	}
	return l
}

// Ensure registra un StockItem vacío si el SKU aún no tiene stock.
func (l *StockLedger) Ensure(sku string, mode entity.TrackingMode) {
	if _, ok := l.items[sku]; ok {
		return
	}
	l.items[sku] = &entity.StockItem{SKU: sku, TrackingMode: mode}
}

// Item copia del StockItem del SKU.
func (l *StockLedger) Item(sku string) (*entity.StockItem, bool) {
	it, ok := l.items[sku]
	if !ok {
		return nil, false
	}
	return it.Clone(), true
}

// Items copias de todos los ítems ordenadas por SKU.
func (l *StockLedger) Items() []*entity.StockItem {
	skus := make([]string, 0, len(l.items))
	for sku := range l.items {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	out := make([]*entity.StockItem, 0, len(skus))
	for _, sku := range skus {
		out = append(out, l.items[sku].Clone())
	}
	return out
}

// GetAvailable cantidad disponible: qoh (none), suma de lotes (batch) o seriales disponibles (serial).
func (l *StockLedger) GetAvailable(sku string) (int64, error) {
	it, ok := l.items[sku]
	if !ok {
		return 0, fmt.Errorf("%w: sku %s", domain.ErrNotFound, sku)
	}
	return Available(it), nil
}

// Available disponible de un StockItem según su modo de seguimiento.
func Available(it *entity.StockItem) int64 {
	if it == nil {
		return 0
	}
	switch it.TrackingMode {
	case entity.TrackingBatch:
		var total int64
		for _, b := range it.Batches {
			total += b.Quantity
		}
		return total
	case entity.TrackingSerial:
		var n int64
		for _, s := range it.Serials {
			if s.Status == entity.SerialAvailable {
				n++
			}
		}
		return n
	}
	return it.QuantityOnHand
}

func (l *StockLedger) item(sku string) (*entity.StockItem, error) {
	it, ok := l.items[sku]
	if !ok {
		return nil, fmt.Errorf("%w: sku %s", domain.ErrNotFound, sku)
	}
	return it, nil
}

// ApplyInbound suma stock. Lote existente: solo cambia la cantidad (fechas intactas).
// Seriales: se agregan como disponibles; falla con DuplicateSerial si alguno ya existe.
func (l *StockLedger) ApplyInbound(sku string, qty int64, batch *entity.BatchInfo, serials []string) error {
	it, err := l.item(sku)
	if err != nil {
		return err
	}
	if qty <= 0 {
		return domain.NewError(domain.KindInvalidLine, sku, "cantidad debe ser mayor a cero")
	}
	switch it.TrackingMode {
	case entity.TrackingNone:
		if batch != nil || len(serials) > 0 {
			return domain.NewError(domain.KindUnexpectedTrackingData, sku, "el SKU no maneja lotes ni seriales")
		}
		it.QuantityOnHand += qty
	case entity.TrackingBatch:
		if err := checkBatchInfo(sku, batch); err != nil {
			return err
		}
		if idx := it.BatchIndex(batch.BatchNumber); idx >= 0 {
			it.Batches[idx].Quantity += qty
		} else {
			it.Batches = append(it.Batches, entity.Batch{
				BatchNumber:     batch.BatchNumber,
				Quantity:        qty,
				ManufactureDate: copyTime(batch.ManufactureDate),
				ExpiryDate:      copyTime(batch.ExpiryDate),
			})
		}
	case entity.TrackingSerial:
		if err := checkSerialList(sku, qty, serials); err != nil {
			return err
		}
		for _, id := range serials {
			if it.SerialIndex(id) >= 0 {
				return domain.NewError(domain.KindDuplicateSerial, sku, "el serial %s ya existe", id)
			}
		}
		now := l.now()
		for _, id := range serials {
			it.Serials = append(it.Serials, entity.Serial{SerialID: id, Status: entity.SerialAvailable, UpdatedAt: now})
		}
	}
	it.Recompute()
	it.UpdatedAt = l.now()
	return nil
}

// ApplyOutbound descuenta stock. Lotes que llegan a cero se eliminan; seriales pasan de
// available a target (sold por defecto).
func (l *StockLedger) ApplyOutbound(sku string, qty int64, allocations []entity.BatchAllocation, serials []string, target entity.SerialStatus) error {
	it, err := l.item(sku)
	if err != nil {
		return err
	}
	if qty <= 0 {
		return domain.NewError(domain.KindInvalidLine, sku, "cantidad debe ser mayor a cero")
	}
	if target == "" {
		target = entity.SerialSold
	}
	switch it.TrackingMode {
	case entity.TrackingNone:
		if len(allocations) > 0 || len(serials) > 0 {
			return domain.NewError(domain.KindUnexpectedTrackingData, sku, "el SKU no maneja lotes ni seriales")
		}
		if qty > it.QuantityOnHand {
			return domain.NewError(domain.KindInsufficientStock, sku, "solicitado %d, disponible %d", qty, it.QuantityOnHand)
		}
		it.QuantityOnHand -= qty
	case entity.TrackingBatch:
		perBatch, err := sumAllocations(sku, qty, allocations)
		if err != nil {
			return err
		}
		for num, want := range perBatch {
			idx := it.BatchIndex(num)
			if idx < 0 {
				return domain.NewError(domain.KindInsufficientStock, sku, "el lote %s no existe", num)
			}
			if want > it.Batches[idx].Quantity {
				return domain.NewError(domain.KindInsufficientStock, sku, "lote %s: solicitado %d, disponible %d", num, want, it.Batches[idx].Quantity)
			}
		}
		kept := it.Batches[:0]
		for _, b := range it.Batches {
			b.Quantity -= perBatch[b.BatchNumber]
			if b.Quantity > 0 {
				kept = append(kept, b)
			}
		}
		it.Batches = kept
	case entity.TrackingSerial:
		if err := checkSerialList(sku, qty, serials); err != nil {
			return err
		}
		if err := l.transitionSerials(it, serials, entity.SerialAvailable, target); err != nil {
			return err
		}
	}
	it.Recompute()
	it.UpdatedAt = l.now()
	return nil
}

// ApplyCustomerReturn reingresa mercancía devuelta por un cliente. Los seriales deben estar
// vendidos y pasan a target (returned por defecto, para trazabilidad).
func (l *StockLedger) ApplyCustomerReturn(sku string, qty int64, batch *entity.BatchInfo, serials []string, target entity.SerialStatus) error {
	it, err := l.item(sku)
	if err != nil {
		return err
	}
	if it.TrackingMode != entity.TrackingSerial {
		return l.ApplyInbound(sku, qty, batch, serials)
	}
	if qty <= 0 {
		return domain.NewError(domain.KindInvalidLine, sku, "cantidad debe ser mayor a cero")
	}
	if target == "" {
		target = entity.SerialReturned
	}
	if err := checkSerialList(sku, qty, serials); err != nil {
		return err
	}
	if err := l.transitionSerials(it, serials, entity.SerialSold, target); err != nil {
		return err
	}
	it.Recompute()
	it.UpdatedAt = l.now()
	return nil
}

// ApplySupplierReturn salida hacia el proveedor; seriales disponibles pasan a target.
func (l *StockLedger) ApplySupplierReturn(sku string, qty int64, allocations []entity.BatchAllocation, serials []string, target entity.SerialStatus) error {
	if target == "" {
		target = entity.SerialReturned
	}
	return l.ApplyOutbound(sku, qty, allocations, serials, target)
}

// ApplyReinstate revierte una salida ya confirmada. Sin seriales equivale a ApplyInbound;
// con seriales, cada uno debe estar en from y pasa a to (available por defecto).
func (l *StockLedger) ApplyReinstate(sku string, qty int64, batch *entity.BatchInfo, serials []string, from, to entity.SerialStatus) error {
	it, err := l.item(sku)
	if err != nil {
		return err
	}
	if it.TrackingMode != entity.TrackingSerial {
		return l.ApplyInbound(sku, qty, batch, serials)
	}
	if to == "" {
		to = entity.SerialAvailable
	}
	return l.moveSerials(it, qty, serials, from, to)
}

// ApplyRevoke revierte una devolución de cliente. Sin seriales equivale a ApplyOutbound;
// con seriales, cada uno debe estar en from y pasa a to (sold por defecto).
func (l *StockLedger) ApplyRevoke(sku string, qty int64, allocations []entity.BatchAllocation, serials []string, from, to entity.SerialStatus) error {
	it, err := l.item(sku)
	if err != nil {
		return err
	}
	if to == "" {
		to = entity.SerialSold
	}
	if it.TrackingMode != entity.TrackingSerial {
		return l.ApplyOutbound(sku, qty, allocations, serials, to)
	}
	return l.moveSerials(it, qty, serials, from, to)
}

func (l *StockLedger) moveSerials(it *entity.StockItem, qty int64, serials []string, from, to entity.SerialStatus) error {
	if qty <= 0 {
		return domain.NewError(domain.KindInvalidLine, it.SKU, "cantidad debe ser mayor a cero")
	}
	if from == "" {
		return domain.NewError(domain.KindSerialUnavailable, it.SKU, "estado de origen de los seriales no definido")
	}
	if err := checkSerialList(it.SKU, qty, serials); err != nil {
		return err
	}
	if err := l.transitionSerials(it, serials, from, to); err != nil {
		return err
	}
	it.Recompute()
	it.UpdatedAt = l.now()
	return nil
}

// ApplyDelta aplica un delta según su efecto.
func (l *StockLedger) ApplyDelta(d entity.LedgerDelta) error {
	switch d.Effect {
	case entity.EffectReceive:
		return l.ApplyInbound(d.SKU, d.Quantity, d.Batch, d.SerialIDs)
	case entity.EffectIssue:
		return l.ApplyOutbound(d.SKU, d.Quantity, d.Allocations, d.SerialIDs, d.SerialTarget)
	case entity.EffectCustomerReturn:
		return l.ApplyCustomerReturn(d.SKU, d.Quantity, d.Batch, d.SerialIDs, d.SerialTarget)
	case entity.EffectSupplierReturn:
		return l.ApplySupplierReturn(d.SKU, d.Quantity, d.Allocations, d.SerialIDs, d.SerialTarget)
	case entity.EffectReinstate:
		return l.ApplyReinstate(d.SKU, d.Quantity, d.Batch, d.SerialIDs, d.SerialSource, d.SerialTarget)
	case entity.EffectRevoke:
		return l.ApplyRevoke(d.SKU, d.Quantity, d.Allocations, d.SerialIDs, d.SerialSource, d.SerialTarget)
	}
	return fmt.Errorf("%w: efecto desconocido %q", domain.ErrInvalidInput, d.Effect)
}

// Apply aplica todos los deltas o ninguno: ante cualquier error el ledger queda como estaba.
func (l *StockLedger) Apply(deltas []entity.LedgerDelta) error {
	backup := make(map[string]*entity.StockItem, len(deltas))
	for _, d := range deltas {
		if _, done := backup[d.SKU]; done {
			continue
		}
		if it, ok := l.items[d.SKU]; ok {
			backup[d.SKU] = it.Clone()
		}
	}
	for _, d := range deltas {
		if err := l.ApplyDelta(d); err != nil {
			for sku, it := range backup {
				l.items[sku] = it
			}
			return err
		}
	}
	return nil
}

func (l *StockLedger) transitionSerials(it *entity.StockItem, serials []string, from, to entity.SerialStatus) error {
	for _, id := range serials {
		idx := it.SerialIndex(id)
		if idx < 0 {
			return domain.NewError(domain.KindSerialUnavailable, it.SKU, "el serial %s no existe", id)
		}
		if it.Serials[idx].Status != from {
			return domain.NewError(domain.KindSerialUnavailable, it.SKU, "el serial %s está %s", id, it.Serials[idx].Status)
		}
	}
	now := l.now()
	for _, id := range serials {
		idx := it.SerialIndex(id)
		it.Serials[idx].Status = to
		it.Serials[idx].UpdatedAt = now
	}
	return nil
}

func checkBatchInfo(sku string, batch *entity.BatchInfo) error {
	if batch == nil || batch.BatchNumber == "" {
		return domain.NewError(domain.KindMissingBatchNumber, sku, "número de lote requerido")
	}
	if batch.ManufactureDate != nil && batch.ExpiryDate != nil && !batch.ExpiryDate.After(*batch.ManufactureDate) {
		return domain.NewError(domain.KindInvalidDateRange, sku, "lote %s: vencimiento debe ser posterior a fabricación", batch.BatchNumber)
	}
	return nil
}

func checkSerialList(sku string, qty int64, serials []string) error {
	seen := make(map[string]struct{}, len(serials))
	for _, id := range serials {
		if _, dup := seen[id]; dup {
			return domain.NewError(domain.KindDuplicateSerialInLine, sku, "serial %s repetido", id)
		}
		seen[id] = struct{}{}
	}
	if int64(len(seen)) != qty {
		return domain.NewError(domain.KindSerialCountMismatch, sku, "se esperaban %d seriales, se recibieron %d", qty, len(seen))
	}
	return nil
}

func sumAllocations(sku string, qty int64, allocations []entity.BatchAllocation) (map[string]int64, error) {
	per := make(map[string]int64, len(allocations))
	var total int64
	for _, a := range allocations {
		if a.BatchNumber == "" {
			return nil, domain.NewError(domain.KindMissingBatchNumber, sku, "asignación sin número de lote")
		}
		if a.Quantity <= 0 {
			return nil, domain.NewError(domain.KindBatchQuantityMismatch, sku, "lote %s: cantidad asignada debe ser positiva", a.BatchNumber)
		}
		if _, dup := per[a.BatchNumber]; dup {
			return nil, domain.NewError(domain.KindBatchQuantityMismatch, sku, "lote %s asignado dos veces", a.BatchNumber)
		}
		per[a.BatchNumber] = a.Quantity
		total += a.Quantity
	}
	if total != qty {
		return nil, domain.NewError(domain.KindBatchQuantityMismatch, sku, "asignado %d, solicitado %d", total, qty)
	}
	return per, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
