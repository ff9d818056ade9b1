// Package pdf genera el comprobante imprimible de un documento de movimiento.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Tipo de comprobante  │  N° + Fecha + Estado         │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | SKU / Producto | Lote/Serial | P.Unit | Total │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Subtotal / Impuesto / Descuento / Total / Saldo    │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: QR de referencia + historial de estados             │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"fmt"
	"strconv"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/jhoicas/stock-engine/internal/application/inventory"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorWhite   = &props.Color{Red: 255, Green: 255, Blue: 255}
)

var subTypeTitles = map[entity.SubType]string{
	entity.SubTypeNewStock:               "ENTRADA DE MERCANCÍA",
	entity.SubTypeReturn:                 "DEVOLUCIÓN DE CLIENTE",
	entity.SubTypeAdjustment:             "AJUSTE DE INVENTARIO",
	entity.SubTypeSale:                   "COMPROBANTE DE VENTA",
	entity.SubTypeOnlineOrder:            "PEDIDO EN LÍNEA",
	entity.SubTypeReturnToSupplier:       "DEVOLUCIÓN A PROVEEDOR",
	entity.SubTypeDamaged:                "BAJA POR DAÑO",
	entity.SubTypeSupplierReturnReversal: "ANULACIÓN DE DEVOLUCIÓN A PROVEEDOR",
	entity.SubTypeDamageReversal:         "ANULACIÓN DE BAJA",
	entity.SubTypeCustomerReturnReversal: "ANULACIÓN DE DEVOLUCIÓN DE CLIENTE",
}

// ── Renderer ──────────────────────────────────────────────────────────────────

var _ inventory.ReceiptRenderer = (*MarotoReceiptRenderer)(nil)

// MarotoReceiptRenderer implementa inventory.ReceiptRenderer usando Maroto v2.
type MarotoReceiptRenderer struct {
	issuer string
}

// NewMarotoReceiptRenderer construye el renderer; issuer aparece como autor del PDF.
func NewMarotoReceiptRenderer(issuer string) *MarotoReceiptRenderer {
	return &MarotoReceiptRenderer{issuer: issuer}
}

// RenderMovement genera el PDF y devuelve sus bytes.
func (g *MarotoReceiptRenderer) RenderMovement(doc *entity.MovementDocument) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("pdf: documento nil")
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(title(doc), true).
		WithAuthor(g.issuer, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(doc))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))

	m.AddRows(tableHeaderRow())
	for _, r := range tableDetailRows(doc.Lines) {
		m.AddRows(r)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(doc.Financials))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	for _, r := range footerRows(doc) {
		m.AddRows(r)
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return out.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func title(doc *entity.MovementDocument) string {
	if t, ok := subTypeTitles[doc.SubType]; ok {
		return t
	}
	return strings.ToUpper(string(doc.SubType))
}

// headerRow: tipo de comprobante (izq) y N° + fecha + estado (der).
func headerRow(doc *entity.MovementDocument) core.Row {
	direction := "Entrada"
	if doc.Direction == entity.DirectionOutbound {
		direction = "Salida"
	}
	return row.New(18).Add(
		col.New(7).Add(
			text.New(title(doc), props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New(direction+"  |  Estado: "+string(doc.Status), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("COMPROBANTE N°", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(doc.Number, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha: "+doc.CreatedAt.Format("02/01/2006"), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorWhite, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("SKU / Producto", 4, align.Left),
		h("Lote / Serial", 3, align.Left),
		h("Precio Unit.", 2, align.Right),
		h("Total", 2, align.Right),
	)
}

// tableDetailRows: una fila por línea del documento.
func tableDetailRows(lines []entity.MovementLine) []core.Row {
	result := make([]core.Row, 0, len(lines))
	for _, l := range lines {
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				strconv.FormatInt(l.Quantity, 10),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(4).Add(text.New(
				l.SKU+"  "+l.ProductName,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(3).Add(text.New(
				trackingLabel(l),
				props.Text{Size: 7, Align: align.Left, Top: 1, Left: 1, Color: colorGray},
			)),
			col.New(2).Add(text.New(
				"$"+FormatMoney(l.UnitPrice),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(2).Add(text.New(
				"$"+FormatMoney(l.LineTotal),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// trackingLabel resume lote, asignaciones o seriales de la línea.
func trackingLabel(l entity.MovementLine) string {
	switch {
	case l.Batch != nil:
		s := "Lote " + l.Batch.BatchNumber
		if l.Batch.ExpiryDate != nil {
			s += " vence " + l.Batch.ExpiryDate.Format("02/01/2006")
		}
		return s
	case len(l.Allocations) > 0:
		parts := make([]string, 0, len(l.Allocations))
		for _, a := range l.Allocations {
			parts = append(parts, fmt.Sprintf("%s×%d", a.BatchNumber, a.Quantity))
		}
		return strings.Join(parts, ", ")
	case len(l.SerialIDs) > 0:
		return strings.Join(l.SerialIDs, ", ")
	}
	return "—"
}

// totalsRow: bloque de totales alineado a la derecha.
func totalsRow(f entity.FinancialSummary) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
		})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	grand := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 1,
		})
	}

	return row.New(34).Add(
		col.New(3),
		col.New(3).Add(
			label("Subtotal:"),
			label("Impuesto:"),
			label("Descuento:"),
			label("TOTAL:"),
			label("Pagado / Saldo:"),
		),
		col.New(3).Add(
			value("$"+FormatMoney(f.Subtotal)),
			value("$"+FormatMoney(f.TaxAmount)),
			value("-$"+FormatMoney(f.DiscountAmount)),
			grand("$"+FormatMoney(f.GrandTotal)),
			value("$"+FormatMoney(f.PaidAmount)+" / $"+FormatMoney(f.Debt)),
		),
		col.New(3),
	)
}

// footerRows: QR con la referencia del documento e historial de estados.
func footerRows(doc *entity.MovementDocument) []core.Row {
	rows := []core.Row{
		row.New(40).Add(
			col.New(4).Add(code.NewQr(doc.ID+"|"+doc.Number, props.Rect{
				Percent: 95,
				Center:  true,
			})),
			col.New(8).Add(
				text.New("Escanea el código para abrir el documento en bodega.", props.Text{
					Size: 8, Top: 4, Left: 3, Color: colorGray,
				}),
				text.New("Creado por: "+doc.CreatedBy, props.Text{
					Size: 8, Top: 12, Left: 3, Color: colorGray,
				}),
			),
		),
		row.New(6).Add(col.New(12).Add(
			text.New("HISTORIAL", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
	}
	for _, h := range doc.History {
		rows = append(rows, row.New(4).Add(col.New(12).Add(
			text.New(fmt.Sprintf("%s  %s  %s → %s  %s",
				h.Timestamp.Format("02/01/2006 15:04"), h.Action, nonEmpty(string(h.FromStatus), "—"),
				h.ToStatus, h.ActorName,
			), props.Text{Size: 6.5, Color: colorGray, Top: 0.5, Left: 2}),
		)))
	}
	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// FormatMoney formatea unidades menores con puntos de miles y coma decimal.
// Ej: 2500000 → "25.000,00", -1050 → "-10,50"
func FormatMoney(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	s := strconv.FormatInt(minor/100, 10)
	n := len(s)
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(s) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return fmt.Sprintf("%s%s,%02d", sign, buf, minor%100)
}
