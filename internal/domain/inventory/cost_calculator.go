package inventory

import "github.com/shopspring/decimal"

// CostCalculator implementa la lógica de costo promedio ponderado (servicio de dominio).
// NuevoCosto = ((StockActual * CostoActual) + (CantEntrada * CostoEntrada)) / (StockActual + CantEntrada)
// Montos en unidades menores; redondeo half-up al entero.
func CostCalculator(stockActual, costoActual, cantEntrada, costoEntrada int64) int64 {
	sum := stockActual + cantEntrada
	if sum <= 0 {
		return 0
	}
	num := decimal.NewFromInt(stockActual).Mul(decimal.NewFromInt(costoActual)).
		Add(decimal.NewFromInt(cantEntrada).Mul(decimal.NewFromInt(costoEntrada)))
	return num.Div(decimal.NewFromInt(sum)).Round(0).IntPart()
}
