package inventory

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.NewFromInt(math.MaxInt64)
)

// FinancialInput entrada del calculador de totales.
type FinancialInput struct {
	Direction        entity.Direction
	Lines            []entity.MovementLine
	Terms            entity.Terms
	DiscountBase     entity.DiscountBase
	AllowOverpayment bool
}

// LineAmount qty × precio en unidades menores. InvalidLine si el producto no cabe en int64.
func LineAmount(sku string, qty, price int64) (int64, error) {
	v := decimal.NewFromInt(qty).Mul(decimal.NewFromInt(price))
	if !fits(v) {
		return 0, domain.NewError(domain.KindInvalidLine, sku, "importe %d × %d fuera de rango", qty, price)
	}
	return v.IntPart(), nil
}

// CalculateFinancials calcula los totales del documento en unidades menores.
// Solo se redondea al final de cada cálculo porcentual (mitad hacia arriba).
// Los acumulados se llevan en decimal; un total que no cabe en int64 devuelve InvalidLine.
func CalculateFinancials(in FinancialInput) (entity.FinancialSummary, error) {
	var sum entity.FinancialSummary
	outbound := in.Direction == entity.DirectionOutbound

	subtotal, costBasis := decimal.Zero, decimal.Zero
	for _, l := range in.Lines {
		amount, err := LineAmount(l.SKU, l.Quantity, l.UnitPrice)
		if err != nil {
			return sum, withLineID(err, l.ID)
		}
		subtotal = subtotal.Add(decimal.NewFromInt(amount))
		if outbound {
			cost, err := LineAmount(l.SKU, l.Quantity, l.CostPrice)
			if err != nil {
				return sum, withLineID(err, l.ID)
			}
			costBasis = costBasis.Add(decimal.NewFromInt(cost))
		}
	}

	tax := percentOf(subtotal, in.Terms.TaxRate)
	gross := subtotal.Add(tax)
	if !fits(gross) || !fits(costBasis) {
		return sum, domain.NewError(domain.KindInvalidLine, "", "el total del documento está fuera de rango")
	}

	discount := decimal.Zero
	switch in.Terms.DiscountType {
	case entity.DiscountPercentage:
		base := subtotal
		if in.DiscountBase == entity.DiscountOnSubtotalPlusTax {
			base = gross
		}
		discount = percentOf(base, in.Terms.DiscountValue)
	case entity.DiscountFixed:
		discount = in.Terms.DiscountValue.Round(0)
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(gross) {
		discount = gross
	}

	sum.Subtotal = subtotal.IntPart()
	sum.TaxAmount = tax.IntPart()
	sum.DiscountAmount = discount.IntPart()
	sum.GrandTotal = sum.Subtotal + sum.TaxAmount - sum.DiscountAmount
	sum.PaidAmount = in.Terms.PaidAmount
	sum.Debt = sum.GrandTotal - sum.PaidAmount
	if sum.Debt < 0 {
		sum.Overpayment = true
		if !in.AllowOverpayment {
			sum.Debt = 0
		}
	}

	sum.ProfitMarginPct = decimal.Zero
	if outbound {
		sum.CostBasis = costBasis.IntPart()
		sum.Profit = sum.GrandTotal - sum.CostBasis
		if sum.GrandTotal > 0 {
			sum.ProfitMarginPct = decimal.NewFromInt(sum.Profit).
				Mul(hundred).
				Div(decimal.NewFromInt(sum.GrandTotal)).
				Round(2)
		}
	}
	return sum, nil
}

// percentOf round(amount × pct / 100) con redondeo mitad hacia arriba.
func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	if amount.IsZero() || pct.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(pct).Div(hundred).Round(0)
}

func fits(v decimal.Decimal) bool {
	return v.Abs().LessThanOrEqual(maxAmount)
}

func withLineID(err error, lineID string) error {
	if ee, ok := domain.AsEngineError(err); ok {
		return ee.WithLine(lineID)
	}
	return err
}

// FinancialWarnings advertencias derivadas del resumen.
func FinancialWarnings(sum entity.FinancialSummary) []Warning {
	if !sum.Overpayment {
		return nil
	}
	return []Warning{{
		Code:   WarningOverpayment,
		Detail: "el monto pagado supera el total",
		Payload: map[string]any{
			"grand_total": sum.GrandTotal,
			"paid_amount": sum.PaidAmount,
			"excess":      sum.PaidAmount - sum.GrandTotal,
		},
	}}
}
