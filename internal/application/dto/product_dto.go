package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateProductRequest entrada para dar de alta un producto en el catálogo.
// Cost es el costo inicial; después lo mantiene el motor con cada entrada.
type CreateProductRequest struct {
	SKU           string          `json:"sku" validate:"required,min=1,max=100"`
	Name          string          `json:"name" validate:"required,min=1,max=200"`
	DefaultPrice  int64           `json:"default_price" validate:"min=0"`
	Cost          int64           `json:"cost" validate:"min=0"`
	TrackingMode  string          `json:"tracking_mode" validate:"omitempty,oneof=none batch serial"`
	ShelfLifeDays int             `json:"shelf_life_days" validate:"min=0"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
}

// UpdateProductRequest entrada para actualizar un producto (sin Cost: se maneja vía movimientos).
type UpdateProductRequest struct {
	Name          *string          `json:"name" validate:"omitempty,min=1,max=200"`
	DefaultPrice  *int64           `json:"default_price" validate:"omitempty,min=0"`
	TrackingMode  *string          `json:"tracking_mode" validate:"omitempty,oneof=none batch serial"`
	ShelfLifeDays *int             `json:"shelf_life_days" validate:"omitempty,min=0"`
	TaxRate       *decimal.Decimal `json:"tax_rate"`
}

// ProductResponse salida de un producto.
type ProductResponse struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	DefaultPrice  int64           `json:"default_price"`
	Cost          int64           `json:"cost"`
	TrackingMode  string          `json:"tracking_mode"`
	ShelfLifeDays int             `json:"shelf_life_days"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
