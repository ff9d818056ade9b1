package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa un ítem del catálogo tal como lo consume el motor de movimientos.
// Cost es el costo promedio ponderado (unidades menores de moneda) recalculado en cada entrada.
type Product struct {
	SKU           string
	Name          string
	DefaultPrice  int64           // precio de venta sugerido
	Cost          int64           // costo promedio ponderado
	TrackingMode  TrackingMode    // none, batch, serial
	ShelfLifeDays int             // vida útil; 0 = sin cálculo automático de vencimiento
	TaxRate       decimal.Decimal // porcentaje sugerido (ej. 10 = 10%)
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
