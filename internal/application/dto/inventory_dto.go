package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

// CreateMovementRequest body para POST /api/inventory/movements.
type CreateMovementRequest struct {
	Direction string `json:"direction" validate:"required,oneof=inbound outbound"`
	SubType   string `json:"sub_type" validate:"required"`
}

// BatchRequest datos de lote de una línea de entrada. Fechas en formato 2006-01-02.
type BatchRequest struct {
	BatchNumber     string `json:"batch_number" validate:"max=64"`
	ManufactureDate string `json:"manufacture_date" validate:"omitempty,datetime=2006-01-02"`
	ExpiryDate      string `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
}

// AllocationRequest cantidad tomada de un lote en una salida.
type AllocationRequest struct {
	BatchNumber string `json:"batch_number" validate:"required,max=64"`
	Quantity    int64  `json:"quantity" validate:"max=1000000"`
}

// LineRequest body para agregar o actualizar una línea. La cantidad y los datos de seguimiento
// se validan en el motor para reportar el error por línea; aquí solo se acotan los máximos
// para que qty × precio quepa en int64.
type LineRequest struct {
	SKU         string              `json:"sku" validate:"omitempty,max=100"`
	Quantity    int64               `json:"quantity" validate:"max=1000000"`
	UnitPrice   *int64              `json:"unit_price,omitempty" validate:"omitempty,max=1000000000000"`
	Batch       *BatchRequest       `json:"batch,omitempty"`
	Allocations []AllocationRequest `json:"allocations,omitempty" validate:"omitempty,dive"`
	SerialIDs   []string            `json:"serial_ids,omitempty" validate:"omitempty,dive,required,max=100"`
}

// TermsRequest body para PUT /movements/:id/terms.
type TermsRequest struct {
	TaxRate       decimal.Decimal `json:"tax_rate"`
	DiscountType  string          `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	PaidAmount    int64           `json:"paid_amount" validate:"min=0"`
	PaymentMethod string          `json:"payment_method" validate:"max=50"`
}

// CommitRequest body para POST /movements/:id/commit.
type CommitRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// MovementListQuery filtros de GET /movements.
type MovementListQuery struct {
	Direction string `query:"direction"`
	Status    string `query:"status"`
	PageRequest
}

// WarningResponse advertencia estructurada (no bloquea).
type WarningResponse struct {
	Code    string         `json:"code"`
	SKU     string         `json:"sku,omitempty"`
	LineID  string         `json:"line_id,omitempty"`
	Detail  string         `json:"detail"`
	Payload map[string]any `json:"payload,omitempty"`
}

// LineErrorResponse error de reconciliación de una línea.
type LineErrorResponse struct {
	Kind   string `json:"kind"`
	Class  string `json:"class"`
	Detail string `json:"detail"`
}

// LineIssueResponse errores y advertencias de una línea.
type LineIssueResponse struct {
	LineID   string              `json:"line_id"`
	SKU      string              `json:"sku"`
	Errors   []LineErrorResponse `json:"errors,omitempty"`
	Warnings []WarningResponse   `json:"warnings,omitempty"`
}

// LineResponse línea del documento.
type LineResponse struct {
	ID           string                   `json:"id"`
	SKU          string                   `json:"sku"`
	ProductName  string                   `json:"product_name"`
	TrackingMode string                   `json:"tracking_mode"`
	Quantity     int64                    `json:"quantity"`
	UnitPrice    int64                    `json:"unit_price"`
	CostPrice    int64                    `json:"cost_price"`
	LineTotal    int64                    `json:"line_total"`
	Batch        *entity.BatchInfo        `json:"batch,omitempty"`
	Allocations  []entity.BatchAllocation `json:"allocations,omitempty"`
	SerialIDs    []string                 `json:"serial_ids,omitempty"`
}

// TermsResponse condiciones financieras actuales.
type TermsResponse struct {
	TaxRate          decimal.Decimal `json:"tax_rate"`
	DiscountType     string          `json:"discount_type,omitempty"`
	DiscountValue    decimal.Decimal `json:"discount_value"`
	PaidAmount       int64           `json:"paid_amount"`
	PaymentMethod    string          `json:"payment_method,omitempty"`
	AllowOverpayment bool            `json:"allow_overpayment"`
}

// MovementResponse documento de movimiento con su reconciliación consultiva.
type MovementResponse struct {
	ID            string                  `json:"id"`
	Number        string                  `json:"number"`
	Direction     string                  `json:"direction"`
	SubType       string                  `json:"sub_type"`
	Status        string                  `json:"status"`
	Lines         []LineResponse          `json:"lines"`
	Terms         TermsResponse           `json:"terms"`
	Financials    entity.FinancialSummary `json:"financials"`
	History       []entity.HistoryEntry   `json:"history"`
	StockPostedAt *time.Time              `json:"stock_posted_at,omitempty"`
	CompensatesID string                  `json:"compensates_id,omitempty"`
	CreatedBy     string                  `json:"created_by"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	Valid         bool                    `json:"valid"`
	Issues        []LineIssueResponse     `json:"issues,omitempty"`
	Warnings      []WarningResponse       `json:"warnings,omitempty"`
}

// MovementListResponse lista paginada de documentos.
type MovementListResponse struct {
	Items []MovementResponse `json:"items"`
	Page  PageResponse       `json:"page"`
}

// CommitResponse resultado de un commit.
type CommitResponse struct {
	Document    MovementResponse  `json:"document"`
	StockPosted bool              `json:"stock_posted"`
	Warnings    []WarningResponse `json:"warnings,omitempty"`
}

// ExpiringBatchResponse lote próximo a vencer.
type ExpiringBatchResponse struct {
	SKU         string    `json:"sku"`
	BatchNumber string    `json:"batch_number"`
	Quantity    int64     `json:"quantity"`
	ExpiryDate  time.Time `json:"expiry_date"`
	DaysLeft    int       `json:"days_left"`
}

// AuditMovementResponse delta aplicado a un SKU.
type AuditMovementResponse struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Effect      string    `json:"effect"`
	Quantity    int64     `json:"quantity"`
	UnitCost    int64     `json:"unit_cost"`
	TotalCost   int64     `json:"total_cost"`
	BatchNumber string    `json:"batch_number,omitempty"`
	SerialIDs   []string  `json:"serial_ids,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
}
