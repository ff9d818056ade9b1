package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

const catalogUTF8 = "sku;nombre;precio;costo;seguimiento;vida_util_dias;iva\n" +
	"cafe-500;Café 500g;12.500,00;8.000,50;none;;19\n" +
	"YOG-1L;Yogur 1L;4500;3000;batch;21;5\n" +
	"PHONE-X;Teléfono X;25000.00;19000.00;serial;0;19\n"

func TestParseCatalog_UTF8(t *testing.T) {
	products, err := parseCatalog(strings.NewReader(catalogUTF8))
	require.NoError(t, err)
	require.Len(t, products, 3)

	cafe := products[0]
	assert.Equal(t, "CAFE-500", cafe.SKU)
	assert.Equal(t, "Café 500g", cafe.Name)
	assert.Equal(t, int64(1250000), cafe.DefaultPrice)
	assert.Equal(t, int64(800050), cafe.Cost)
	assert.Equal(t, entity.TrackingNone, cafe.TrackingMode)
	assert.Equal(t, "19", cafe.TaxRate.String())

	assert.Equal(t, entity.TrackingBatch, products[1].TrackingMode)
	assert.Equal(t, 21, products[1].ShelfLifeDays)
	assert.Equal(t, int64(450000), products[1].DefaultPrice)
	assert.Equal(t, int64(1900000), products[2].Cost)
}

func TestParseCatalog_Latin1(t *testing.T) {
	// "Café" en ISO-8859-1: é = 0xE9
	latin1 := []byte("sku;nombre;precio;costo;seguimiento;vida_util_dias;iva\nCAFE-500;Caf\xe9;1;1;none;0;0\n")
	products, err := parseCatalog(bytes.NewReader(latin1))
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Café", products[0].Name)
}

func TestParseCatalog_Errores(t *testing.T) {
	cases := map[string]string{
		"cabecera":    "codigo;x\nA;B\n",
		"seguimiento": "sku;nombre;precio;costo;seguimiento;vida_util_dias;iva\nA;B;1;1;lote;0;0\n",
		"precio":      "sku;nombre;precio;costo;seguimiento;vida_util_dias;iva\nA;B;abc;1;none;0;0\n",
		"negativo":    "sku;nombre;precio;costo;seguimiento;vida_util_dias;iva\nA;B;-1;1;none;0;0\n",
		"repetido":    "sku;nombre;precio;costo;seguimiento;vida_util_dias;iva\nA;B;1;1;none;0;0\na;C;1;1;none;0;0\n",
		"sin nombre":  "sku;nombre;precio;costo;seguimiento;vida_util_dias;iva\nA;;1;1;none;0;0\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseCatalog(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestWriteSQL(t *testing.T) {
	products, err := parseCatalog(strings.NewReader(catalogUTF8 + "O'BRIEN;Té O'Brien;1;1;none;0;0\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeSQL(&buf, products))
	sql := buf.String()
	assert.Contains(t, sql, "('CAFE-500', 'Café 500g', 1250000, 800050, 'none', 0, 19),")
	assert.Contains(t, sql, "'O''BRIEN', 'Té O''Brien'")
	assert.Contains(t, sql, "ON CONFLICT (sku) DO UPDATE")
	assert.NotContains(t, sql, "cost = EXCLUDED.cost")
}
