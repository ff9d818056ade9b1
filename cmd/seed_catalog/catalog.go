package main

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

// columnas esperadas (separador ';', cabecera obligatoria):
// sku;nombre;precio;costo;seguimiento;vida_util_dias;iva
var header = []string{"sku", "nombre", "precio", "costo", "seguimiento", "vida_util_dias", "iva"}

// decodeReader detecta archivos exportados en ISO-8859-1 (Excel en español) y los pasa a UTF-8.
func decodeReader(r io.Reader) (io.Reader, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return bytes.NewReader(raw), nil
	}
	return transform.NewReader(bytes.NewReader(raw), charmap.ISO8859_1.NewDecoder()), nil
}

// parseCatalog lee el CSV y devuelve los productos. Precios en unidades menores.
func parseCatalog(r io.Reader) ([]*entity.Product, error) {
	dec, err := decodeReader(r)
	if err != nil {
		return nil, fmt.Errorf("leer catálogo: %w", err)
	}
	cr := csv.NewReader(bufio.NewReader(dec))
	cr.Comma = ';'
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("leer cabecera: %w", err)
	}
	if len(first) < len(header) || !strings.EqualFold(strings.TrimSpace(first[0]), header[0]) {
		return nil, fmt.Errorf("cabecera inválida: se esperaba %s", strings.Join(header, ";"))
	}

	var out []*entity.Product
	seen := make(map[string]int)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("línea %d: %w", line, err)
		}
		p, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("línea %d: %w", line, err)
		}
		if prev, dup := seen[p.SKU]; dup {
			return nil, fmt.Errorf("línea %d: sku %s repetido (línea %d)", line, p.SKU, prev)
		}
		seen[p.SKU] = line
		out = append(out, p)
	}
	return out, nil
}

func parseRow(rec []string) (*entity.Product, error) {
	if len(rec) < len(header) {
		return nil, fmt.Errorf("se esperaban %d columnas, hay %d", len(header), len(rec))
	}
	sku := strings.ToUpper(strings.TrimSpace(rec[0]))
	name := strings.TrimSpace(rec[1])
	if sku == "" || name == "" {
		return nil, fmt.Errorf("sku y nombre son obligatorios")
	}
	price, err := parseMoney(rec[2])
	if err != nil {
		return nil, fmt.Errorf("precio: %w", err)
	}
	cost, err := parseMoney(rec[3])
	if err != nil {
		return nil, fmt.Errorf("costo: %w", err)
	}
	mode := entity.TrackingMode(strings.ToLower(strings.TrimSpace(rec[4])))
	if mode == "" {
		mode = entity.TrackingNone
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("seguimiento %q inválido", rec[4])
	}
	shelf := 0
	if s := strings.TrimSpace(rec[5]); s != "" {
		if shelf, err = strconv.Atoi(s); err != nil || shelf < 0 {
			return nil, fmt.Errorf("vida útil %q inválida", rec[5])
		}
	}
	tax := decimal.Zero
	if s := strings.TrimSpace(rec[6]); s != "" {
		if tax, err = decimal.NewFromString(strings.ReplaceAll(s, ",", ".")); err != nil || tax.IsNegative() {
			return nil, fmt.Errorf("iva %q inválido", rec[6])
		}
	}
	return &entity.Product{
		SKU: sku, Name: name, DefaultPrice: price, Cost: cost,
		TrackingMode: mode, ShelfLifeDays: shelf, TaxRate: tax,
	}, nil
}

// parseMoney acepta "1.234,56" o "1234.56" y devuelve unidades menores.
func parseMoney(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%q no es un monto", s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%q es negativo", s)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// writeSQL genera el script de carga idempotente.
func writeSQL(w io.Writer, products []*entity.Product) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("-- Catálogo de productos\n")
	bw.WriteString("INSERT INTO products (sku, name, default_price, cost, tracking_mode, shelf_life_days, tax_rate) VALUES\n")
	for i, p := range products {
		sep := ","
		if i == len(products)-1 {
			sep = ""
		}
		fmt.Fprintf(bw, "  ('%s', '%s', %d, %d, '%s', %d, %s)%s\n",
			escapeSQL(p.SKU), escapeSQL(p.Name), p.DefaultPrice, p.Cost, p.TrackingMode, p.ShelfLifeDays,
			p.TaxRate.String(), sep)
	}
	bw.WriteString("ON CONFLICT (sku) DO UPDATE SET name = EXCLUDED.name, default_price = EXCLUDED.default_price,\n")
	bw.WriteString("  tracking_mode = EXCLUDED.tracking_mode, shelf_life_days = EXCLUDED.shelf_life_days,\n")
	bw.WriteString("  tax_rate = EXCLUDED.tax_rate, updated_at = now();\n")
	return bw.Flush()
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
