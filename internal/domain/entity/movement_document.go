package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction sentido del documento de movimiento.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// SubType tipo específico del documento; determina el efecto sobre el ledger.
type SubType string

const (
	// Entradas
	SubTypeNewStock   SubType = "new_stock"
	SubTypeReturn     SubType = "return" // devolución de cliente
	SubTypeAdjustment SubType = "adjustment"
	// Salidas
	SubTypeSale             SubType = "sale"
	SubTypeOnlineOrder      SubType = "online_order"
	SubTypeReturnToSupplier SubType = "return_to_supplier"
	SubTypeDamaged          SubType = "damaged"
	// Solo como documento compensatorio: mueven seriales existentes en lugar de crearlos o venderlos.
	SubTypeSupplierReturnReversal SubType = "supplier_return_reversal"
	SubTypeDamageReversal         SubType = "damage_reversal"
	SubTypeCustomerReturnReversal SubType = "customer_return_reversal"
)

// DocumentStatus estado lineal draft → pending → approved → completed.
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "draft"
	StatusPending   DocumentStatus = "pending"
	StatusApproved  DocumentStatus = "approved"
	StatusCompleted DocumentStatus = "completed"
)

var statusRank = map[DocumentStatus]int{
	StatusDraft:     0,
	StatusPending:   1,
	StatusApproved:  2,
	StatusCompleted: 3,
}

// Valid indica si el estado es uno de los cuatro permitidos.
func (s DocumentStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank posición en el flujo lineal.
func (s DocumentStatus) Rank() int { return statusRank[s] }

// Editable: las líneas solo se modifican en draft o pending.
func (s DocumentStatus) Editable() bool {
	return s == StatusDraft || s == StatusPending
}

// PostsStock indica si confirmar con este estado aplica el efecto sobre el ledger.
func (s DocumentStatus) PostsStock() bool {
	return s == StatusApproved || s == StatusCompleted
}

// DiscountType forma de expresar el descuento.
type DiscountType string

const (
	DiscountNone       DiscountType = ""
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// DiscountBase base sobre la que se calcula un descuento porcentual.
type DiscountBase string

const (
	DiscountOnSubtotal        DiscountBase = "subtotal"
	DiscountOnSubtotalPlusTax DiscountBase = "subtotal_plus_tax"
)

// BatchInfo datos de lote para una línea de entrada.
type BatchInfo struct {
	BatchNumber     string     `json:"batch_number"`
	ManufactureDate *time.Time `json:"manufacture_date,omitempty"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
}

// BatchAllocation cantidad tomada de un lote en una línea de salida.
type BatchAllocation struct {
	BatchNumber string `json:"batch_number"`
	Quantity    int64  `json:"quantity"`
}

// MovementLine fila editable del documento. Solo referencia entidades del ledger por identificador.
type MovementLine struct {
	ID           string            `json:"id"`
	SKU          string            `json:"sku"`
	ProductName  string            `json:"product_name"`
	TrackingMode TrackingMode      `json:"tracking_mode"`
	Quantity     int64             `json:"quantity"`
	UnitPrice    int64             `json:"unit_price"` // costo en entradas, precio de venta en salidas
	CostPrice    int64             `json:"cost_price"` // costo de referencia (salidas)
	LineTotal    int64             `json:"line_total"`
	Batch        *BatchInfo        `json:"batch,omitempty"`
	Allocations  []BatchAllocation `json:"allocations,omitempty"`
	SerialIDs    []string          `json:"serial_ids,omitempty"`
}

// HasTrackingData indica si la línea trae cualquier dato de lote/serial.
func (l *MovementLine) HasTrackingData() bool {
	return l.Batch != nil || len(l.Allocations) > 0 || len(l.SerialIDs) > 0
}

// Terms condiciones financieras editables del documento.
type Terms struct {
	TaxRate          decimal.Decimal // porcentaje
	DiscountType     DiscountType
	DiscountValue    decimal.Decimal // porcentaje o monto fijo en unidades menores
	PaidAmount       int64
	PaymentMethod    string
	AllowOverpayment bool
}

// FinancialSummary resultado del FinancialCalculator (unidades menores de moneda).
type FinancialSummary struct {
	Subtotal        int64           `json:"subtotal"`
	TaxAmount       int64           `json:"tax_amount"`
	DiscountAmount  int64           `json:"discount_amount"`
	GrandTotal      int64           `json:"grand_total"`
	PaidAmount      int64           `json:"paid_amount"`
	Debt            int64           `json:"debt"`
	Overpayment     bool            `json:"overpayment"`
	CostBasis       int64           `json:"cost_basis,omitempty"`
	Profit          int64           `json:"profit,omitempty"`
	ProfitMarginPct decimal.Decimal `json:"profit_margin_pct"`
}

// HistoryEntry registro append-only de una transición del documento.
type HistoryEntry struct {
	Action     string         `json:"action"`
	FromStatus DocumentStatus `json:"from_status,omitempty"`
	ToStatus   DocumentStatus `json:"to_status"`
	ActorID    string         `json:"actor_id"`
	ActorName  string         `json:"actor_name"`
	Timestamp  time.Time      `json:"timestamp"`
	Note       string         `json:"note,omitempty"`
}

// Acciones del historial.
const (
	ActionCreated     = "created"
	ActionSaved       = "saved"
	ActionStockPosted = "stock_posted"
	ActionCompensates = "compensates"
)

// Actor identidad que ejecuta la operación (explícita, nunca global).
type Actor struct {
	ID   string
	Name string
	Role string
}

// MovementDocument unidad de commit (un "comprobante" de entrada o salida).
type MovementDocument struct {
	ID            string
	Number        string
	Direction     Direction
	SubType       SubType
	Status        DocumentStatus
	Lines         []MovementLine
	Terms         Terms
	Financials    FinancialSummary
	History       []HistoryEntry
	StockPostedAt *time.Time // cuándo se aplicó el efecto sobre el ledger
	CompensatesID string     // documento que este compensa, si aplica
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Line devuelve la línea por ID o nil.
func (d *MovementDocument) Line(lineID string) *MovementLine {
	for i := range d.Lines {
		if d.Lines[i].ID == lineID {
			return &d.Lines[i]
		}
	}
	return nil
}

// HasSKU indica si ya existe una línea para el SKU.
func (d *MovementDocument) HasSKU(sku string) bool {
	for i := range d.Lines {
		if d.Lines[i].SKU == sku {
			return true
		}
	}
	return false
}

// SKUs lista de SKUs referenciados, en orden de línea.
func (d *MovementDocument) SKUs() []string {
	out := make([]string, 0, len(d.Lines))
	for _, l := range d.Lines {
		out = append(out, l.SKU)
	}
	return out
}

// AppendHistory agrega una entrada al historial (nunca se reescribe).
func (d *MovementDocument) AppendHistory(action string, to DocumentStatus, actor Actor, at time.Time, note string) {
	d.History = append(d.History, HistoryEntry{
		Action:     action,
		FromStatus: d.Status,
		ToStatus:   to,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		Timestamp:  at,
		Note:       note,
	})
}

// Clone copia profunda del documento.
func (d *MovementDocument) Clone() *MovementDocument {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Lines = make([]MovementLine, len(d.Lines))
	for i, l := range d.Lines {
		cp.Lines[i] = l
		if l.Batch != nil {
			b := *l.Batch
			cp.Lines[i].Batch = &b
		}
		cp.Lines[i].Allocations = append([]BatchAllocation(nil), l.Allocations...)
		cp.Lines[i].SerialIDs = append([]string(nil), l.SerialIDs...)
	}
	cp.History = append([]HistoryEntry(nil), d.History...)
	if d.StockPostedAt != nil {
		t := *d.StockPostedAt
		cp.StockPostedAt = &t
	}
	return &cp
}
