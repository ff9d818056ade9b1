package entity

import "time"

// LedgerEffect efecto que un documento produce sobre el StockLedger.
// Lo decide el sub-tipo del documento (ver inventory.Policy), no la operación.
type LedgerEffect string

const (
	EffectReceive        LedgerEffect = "RECEIVE"         // entrada de mercancía / ajuste positivo
	EffectIssue          LedgerEffect = "ISSUE"           // salida: venta, pedido online, daño
	EffectCustomerReturn LedgerEffect = "CUSTOMER_RETURN" // devolución de cliente (entrada)
	EffectSupplierReturn LedgerEffect = "SUPPLIER_RETURN" // devolución a proveedor (salida)
	EffectReinstate      LedgerEffect = "REINSTATE"       // reversa de una salida: seriales vuelven a disponibles
	EffectRevoke         LedgerEffect = "REVOKE"          // reversa de una devolución de cliente
)

// Inbound indica si el efecto suma stock.
func (e LedgerEffect) Inbound() bool {
	return e == EffectReceive || e == EffectCustomerReturn || e == EffectReinstate
}

// LedgerDelta cambio neto a aplicar sobre un SKU al confirmar un documento.
type LedgerDelta struct {
	SKU          string
	Effect       LedgerEffect
	Quantity     int64
	Batch        *BatchInfo        // entradas con lote
	Allocations  []BatchAllocation // salidas con lote
	SerialIDs    []string
	SerialTarget SerialStatus // estado destino de los seriales en salidas/devoluciones
	SerialSource SerialStatus // estado previo exigido en reversas
	UnitCost     int64
}

// InventoryMovement registro inmutable de un delta aplicado (auditoría por SKU).
type InventoryMovement struct {
	ID          string
	DocumentID  string
	SKU         string
	Effect      LedgerEffect
	Quantity    int64 // positivo entrada, negativo salida
	UnitCost    int64
	TotalCost   int64
	BatchNumber string   // lote afectado en entradas; vacío si no aplica
	SerialIDs   []string // seriales afectados
	CreatedAt   time.Time
	CreatedBy   string
}
