package inventory_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appinventory "github.com/jhoicas/stock-engine/internal/application/inventory"
	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/inventory"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
	"github.com/jhoicas/stock-engine/internal/infrastructure/memory"
	"github.com/jhoicas/stock-engine/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Edición de borradores
// ──────────────────────────────────────────────────────────────────────────────

func TestBuilder_CrearBorrador(t *testing.T) {
	f := newFixture(t)
	state, err := f.builder.CreateDraft(context.Background(), entity.DirectionOutbound, entity.SubTypeSale, admin)
	require.NoError(t, err)

	doc := state.Document
	assert.Equal(t, entity.StatusDraft, doc.Status)
	assert.Contains(t, doc.Number, "OUT-")
	assert.Equal(t, "u-admin", doc.CreatedBy)
	require.Len(t, doc.History, 1)
	assert.Equal(t, entity.ActionCreated, doc.History[0].Action)
	assert.True(t, state.Valid())
}

func TestBuilder_SubTipoInvalidoParaLaDireccion(t *testing.T) {
	f := newFixture(t)
	_, err := f.builder.CreateDraft(context.Background(), entity.DirectionInbound, entity.SubTypeSale, admin)
	requireKind(t, err, domain.KindInvalidSubType)
}

func TestBuilder_LineaDuplicadaPorSKU(t *testing.T) {
	f := newFixture(t, product("NONE-1", entity.TrackingNone))
	ctx := context.Background()
	id := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "NONE-1", Quantity: 1})

	_, err := f.builder.AddLine(ctx, id, appinventory.LineInput{SKU: "NONE-1", Quantity: 2})
	requireKind(t, err, domain.KindDuplicateLineForSku)

	state, err := f.builder.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Len(t, state.Document.Lines, 1)
}

func TestBuilder_ProductoInexistente(t *testing.T) {
	f := newFixture(t)
	state, err := f.builder.CreateDraft(context.Background(), entity.DirectionInbound, entity.SubTypeNewStock, admin)
	require.NoError(t, err)
	_, err = f.builder.AddLine(context.Background(), state.Document.ID, appinventory.LineInput{SKU: "NO-EXISTE", Quantity: 1})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestBuilder_PrecioPorDefectoSegunDireccion(t *testing.T) {
	f := newFixture(t, product("NONE-1", entity.TrackingNone))
	ctx := context.Background()

	in := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "NONE-1", Quantity: 2})
	state, err := f.builder.GetDocument(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(600), state.Document.Lines[0].UnitPrice, "entrada usa el costo")
	assert.Equal(t, int64(1_200), state.Document.Lines[0].LineTotal)

	out := f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{SKU: "NONE-1", Quantity: 2})
	state, err = f.builder.GetDocument(ctx, out)
	require.NoError(t, err)
	line := state.Document.Lines[0]
	assert.Equal(t, int64(1_000), line.UnitPrice, "salida usa el precio de venta")
	assert.Equal(t, int64(600), line.CostPrice)

	// Al actualizar sin precio se conserva el anterior.
	state, err = f.builder.UpdateLine(ctx, out, line.ID, appinventory.LineInput{Quantity: 5, UnitPrice: price(900)})
	require.NoError(t, err)
	state, err = f.builder.UpdateLine(ctx, out, line.ID, appinventory.LineInput{Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(900), state.Document.Lines[0].UnitPrice)
	assert.Equal(t, int64(3_600), state.Document.Financials.Subtotal)
}

func TestBuilder_QuitarLinea(t *testing.T) {
	f := newFixture(t, product("NONE-1", entity.TrackingNone))
	ctx := context.Background()
	id := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "NONE-1", Quantity: 1})
	state, err := f.builder.GetDocument(ctx, id)
	require.NoError(t, err)

	state, err = f.builder.RemoveLine(ctx, id, state.Document.Lines[0].ID)
	require.NoError(t, err)
	assert.Empty(t, state.Document.Lines)
	assert.Zero(t, state.Document.Financials.GrandTotal)

	_, err = f.builder.RemoveLine(ctx, id, "no-existe")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestBuilder_TotalesDelDocumento(t *testing.T) {
	f := newFixture(t, product("NONE-1", entity.TrackingNone))
	ctx := context.Background()
	id := f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{
		SKU: "NONE-1", Quantity: 10, UnitPrice: price(100_000),
	})

	state, err := f.builder.UpdateTerms(ctx, id, appinventory.TermsInput{
		TaxRate:       decimal.NewFromInt(10),
		DiscountType:  entity.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(5),
		PaidAmount:    1_045_000,
	})
	require.NoError(t, err)

	fin := state.Document.Financials
	assert.Equal(t, int64(1_000_000), fin.Subtotal)
	assert.Equal(t, int64(100_000), fin.TaxAmount)
	assert.Equal(t, int64(55_000), fin.DiscountAmount)
	assert.Equal(t, int64(1_045_000), fin.GrandTotal)
	assert.Zero(t, fin.Debt)
}

func TestBuilder_CondicionesInvalidas(t *testing.T) {
	f := newFixture(t)
	state, err := f.builder.CreateDraft(context.Background(), entity.DirectionInbound, entity.SubTypeNewStock, admin)
	require.NoError(t, err)

	cases := []appinventory.TermsInput{
		{TaxRate: decimal.NewFromInt(-1)},
		{PaidAmount: -5},
		{DiscountType: entity.DiscountPercentage, DiscountValue: decimal.NewFromInt(101)},
		{DiscountType: "regalo"},
	}
	for _, in := range cases {
		_, err := f.builder.UpdateTerms(context.Background(), state.Document.ID, in)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput), "%+v", in)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Reconciliación consultiva
// ──────────────────────────────────────────────────────────────────────────────

func TestBuilder_AvisosNoBloquean(t *testing.T) {
	f := newFixture(t, product("NONE-1", entity.TrackingNone))
	ctx := context.Background()

	id := f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{SKU: "NONE-1", Quantity: 3})
	state, err := f.builder.UpdateTerms(ctx, id, appinventory.TermsInput{PaidAmount: 10_000})
	require.NoError(t, err)

	assert.True(t, state.Valid())
	require.Len(t, state.Issues, 1)
	require.Len(t, state.Issues[0].Warnings, 1)
	assert.Equal(t, inventory.WarningStockShortage, state.Issues[0].Warnings[0].Code)
	assert.Equal(t, int64(0), state.Issues[0].Warnings[0].Payload["available"])

	require.Len(t, state.Warnings, 1)
	assert.Equal(t, inventory.WarningOverpayment, state.Warnings[0].Code)
}

func TestBuilder_ErroresPorLinea(t *testing.T) {
	f := newFixture(t, product("SER-1", entity.TrackingSerial), product("BAT-1", entity.TrackingBatch))
	ctx := context.Background()

	id := f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{
		SKU: "SER-1", Quantity: 2, SerialIDs: []string{"S1"},
	})
	state, err := f.builder.AddLine(ctx, id, appinventory.LineInput{
		SKU: "BAT-1", Quantity: 2, Allocations: []entity.BatchAllocation{{BatchNumber: "L1", Quantity: 2}},
	})
	require.NoError(t, err, "la edición se guarda aunque la línea tenga errores")
	assert.False(t, state.Valid())
	require.Len(t, state.Issues, 2)

	bySKU := map[string]appinventory.LineIssues{}
	for _, li := range state.Issues {
		bySKU[li.SKU] = li
	}
	require.NotEmpty(t, bySKU["SER-1"].Errors)
	assert.Equal(t, domain.KindSerialCountMismatch, bySKU["SER-1"].Errors[0].Kind)
	require.NotEmpty(t, bySKU["BAT-1"].Errors)
	assert.Equal(t, domain.KindInsufficientStock, bySKU["BAT-1"].Errors[0].Kind)
}

func TestBuilder_DocumentoCompletadoNoSeEdita(t *testing.T) {
	f := newFixture(t, product("NONE-1", entity.TrackingNone), product("NONE-2", entity.TrackingNone))
	ctx := context.Background()
	id := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "NONE-1", Quantity: 1})

	_, err := f.recorder.Commit(ctx, id, entity.StatusApproved, admin, "")
	require.NoError(t, err)
	_, err = f.builder.AddLine(ctx, id, appinventory.LineInput{SKU: "NONE-2", Quantity: 1})
	requireKind(t, err, domain.KindDocumentLocked)

	_, err = f.builder.UpdateTerms(ctx, id, appinventory.TermsInput{PaidAmount: 1})
	requireKind(t, err, domain.KindDocumentLocked)
}

// ──────────────────────────────────────────────────────────────────────────────
// Compensación
// ──────────────────────────────────────────────────────────────────────────────

func TestBuilder_CompensarVentaConLote(t *testing.T) {
	f := newFixture(t, product("BAT-1", entity.TrackingBatch))
	ctx := context.Background()

	in := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{
		SKU: "BAT-1", Quantity: 8, Batch: &entity.BatchInfo{BatchNumber: "L1"},
	})
	_, err := f.recorder.Commit(ctx, in, entity.StatusCompleted, admin, "")
	require.NoError(t, err)
	sale := f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{
		SKU: "BAT-1", Quantity: 3, Allocations: []entity.BatchAllocation{{BatchNumber: "L1", Quantity: 3}},
	})

	_, err = f.builder.CreateCompensatingDraft(ctx, sale, admin)
	assert.True(t, errors.Is(err, domain.ErrConflict), "un borrador no se compensa")

	_, err = f.recorder.Commit(ctx, sale, entity.StatusCompleted, admin, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.available(t, "BAT-1"))

	state, err := f.builder.CreateCompensatingDraft(ctx, sale, admin)
	require.NoError(t, err)
	doc := state.Document
	assert.Equal(t, entity.DirectionInbound, doc.Direction)
	assert.Equal(t, entity.SubTypeReturn, doc.SubType)
	assert.Equal(t, sale, doc.CompensatesID)
	require.Len(t, doc.Lines, 1)
	require.NotNil(t, doc.Lines[0].Batch)
	assert.Equal(t, "L1", doc.Lines[0].Batch.BatchNumber)
	assert.Empty(t, doc.Lines[0].Allocations)

	_, err = f.recorder.Commit(ctx, doc.ID, entity.StatusCompleted, admin, "")
	require.NoError(t, err)
	assert.Equal(t, int64(8), f.available(t, "BAT-1"))
}

func TestBuilder_CompensarEntradaSerial(t *testing.T) {
	f := newFixture(t, product("SER-1", entity.TrackingSerial))
	ctx := context.Background()

	in := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{
		SKU: "SER-1", Quantity: 2, SerialIDs: []string{"S1", "S2"},
	})
	_, err := f.recorder.Commit(ctx, in, entity.StatusCompleted, admin, "")
	require.NoError(t, err)

	state, err := f.builder.CreateCompensatingDraft(ctx, in, admin)
	require.NoError(t, err)
	assert.Equal(t, entity.SubTypeReturnToSupplier, state.Document.SubType)
	assert.Equal(t, []string{"S1", "S2"}, state.Document.Lines[0].SerialIDs)

	_, err = f.recorder.Commit(ctx, state.Document.ID, entity.StatusCompleted, admin, "")
	require.NoError(t, err)

	av, err := f.query.GetAvailability(ctx, "SER-1")
	require.NoError(t, err)
	assert.Zero(t, av.Available)
	assert.Equal(t, int64(2), av.SerialsByStatus[entity.SerialReturned])
}

// serialsByStatus conteo de seriales del SKU por estado.
func (f *fixture) serialsByStatus(t *testing.T, sku string) map[entity.SerialStatus]int64 {
	t.Helper()
	av, err := f.query.GetAvailability(context.Background(), sku)
	require.NoError(t, err)
	return av.SerialsByStatus
}

// commitWith crea, llena y completa un documento de una línea.
func (f *fixture) commitWith(t *testing.T, dir entity.Direction, st entity.SubType, in appinventory.LineInput) string {
	t.Helper()
	id := f.draftWith(t, dir, st, in)
	_, err := f.recorder.Commit(context.Background(), id, entity.StatusCompleted, admin, "")
	require.NoError(t, err)
	return id
}

func TestBuilder_CompensarDevolucionAProveedorSerial(t *testing.T) {
	f := newFixture(t, product("SER-1", entity.TrackingSerial))
	ctx := context.Background()
	serials := []string{"S1", "S2"}

	f.commitWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "SER-1", Quantity: 2, SerialIDs: serials})
	ret := f.commitWith(t, entity.DirectionOutbound, entity.SubTypeReturnToSupplier, appinventory.LineInput{SKU: "SER-1", Quantity: 2, SerialIDs: serials})
	assert.Equal(t, int64(2), f.serialsByStatus(t, "SER-1")[entity.SerialReturned])

	state, err := f.builder.CreateCompensatingDraft(ctx, ret, admin)
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionInbound, state.Document.Direction)
	assert.Equal(t, entity.SubTypeSupplierReturnReversal, state.Document.SubType)
	assert.True(t, state.Valid(), "el borrador compensatorio no reporta seriales duplicados")

	_, err = f.recorder.Commit(ctx, state.Document.ID, entity.StatusCompleted, admin, "")
	require.NoError(t, err)
	byStatus := f.serialsByStatus(t, "SER-1")
	assert.Equal(t, int64(2), byStatus[entity.SerialAvailable])
	assert.Zero(t, byStatus[entity.SerialReturned])
	assert.Equal(t, int64(2), f.available(t, "SER-1"))
}

func TestBuilder_CompensarDevolucionDeClienteSerial(t *testing.T) {
	f := newFixture(t, product("SER-1", entity.TrackingSerial))
	ctx := context.Background()
	one := appinventory.LineInput{SKU: "SER-1", Quantity: 1, SerialIDs: []string{"S1"}}

	f.commitWith(t, entity.DirectionInbound, entity.SubTypeNewStock, one)
	f.commitWith(t, entity.DirectionOutbound, entity.SubTypeSale, one)
	ret := f.commitWith(t, entity.DirectionInbound, entity.SubTypeReturn, one)
	assert.Equal(t, int64(1), f.serialsByStatus(t, "SER-1")[entity.SerialReturned])

	state, err := f.builder.CreateCompensatingDraft(ctx, ret, admin)
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionOutbound, state.Document.Direction)
	assert.Equal(t, entity.SubTypeCustomerReturnReversal, state.Document.SubType)
	assert.True(t, state.Valid())

	res, err := f.recorder.Commit(ctx, state.Document.ID, entity.StatusCompleted, admin, "")
	require.NoError(t, err)
	assert.True(t, res.Posted)
	byStatus := f.serialsByStatus(t, "SER-1")
	assert.Equal(t, int64(1), byStatus[entity.SerialSold])
	assert.Zero(t, byStatus[entity.SerialReturned])
	assert.Zero(t, f.available(t, "SER-1"))
}

func TestBuilder_CompensarBajaSerialVuelveADisponible(t *testing.T) {
	f := newFixture(t, product("SER-1", entity.TrackingSerial))
	ctx := context.Background()
	one := appinventory.LineInput{SKU: "SER-1", Quantity: 1, SerialIDs: []string{"S1"}}

	f.commitWith(t, entity.DirectionInbound, entity.SubTypeNewStock, one)
	damaged := f.commitWith(t, entity.DirectionOutbound, entity.SubTypeDamaged, one)

	state, err := f.builder.CreateCompensatingDraft(ctx, damaged, admin)
	require.NoError(t, err)
	assert.Equal(t, entity.SubTypeDamageReversal, state.Document.SubType)
	_, err = f.recorder.Commit(ctx, state.Document.ID, entity.StatusCompleted, admin, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.available(t, "SER-1"))
}

// La reversa exige que el serial siga en el estado que dejó la devolución.
func TestBuilder_ReversaConSerialYaMovidoFalla(t *testing.T) {
	f := newFixture(t, product("SER-1", entity.TrackingSerial))
	ctx := context.Background()
	one := appinventory.LineInput{SKU: "SER-1", Quantity: 1, SerialIDs: []string{"S1"}}

	f.commitWith(t, entity.DirectionInbound, entity.SubTypeNewStock, one)
	ret := f.commitWith(t, entity.DirectionOutbound, entity.SubTypeReturnToSupplier, one)
	first, err := f.builder.CreateCompensatingDraft(ctx, ret, admin)
	require.NoError(t, err)
	second, err := f.builder.CreateCompensatingDraft(ctx, ret, admin)
	require.NoError(t, err)

	_, err = f.recorder.Commit(ctx, first.Document.ID, entity.StatusCompleted, admin, "")
	require.NoError(t, err)
	_, err = f.recorder.Commit(ctx, second.Document.ID, entity.StatusCompleted, admin, "")
	requireKind(t, err, domain.KindSerialUnavailable)
	assert.Equal(t, int64(1), f.available(t, "SER-1"))
}

func TestBuilder_SubTipoCompensatorioNoSeCreaDirecto(t *testing.T) {
	f := newFixture(t)
	_, err := f.builder.CreateDraft(context.Background(), entity.DirectionInbound, entity.SubTypeSupplierReturnReversal, admin)
	requireKind(t, err, domain.KindInvalidSubType)
	_, err = f.builder.CreateDraft(context.Background(), entity.DirectionOutbound, entity.SubTypeCustomerReturnReversal, admin)
	requireKind(t, err, domain.KindInvalidSubType)
}

// El borrador compensatorio se guarda completo en una sola transacción y su historial
// solo agrega entradas.
func TestBuilder_CompensacionEnUnaTransaccion(t *testing.T) {
	store := memory.New()
	tx := &flakyTx{inner: store}
	f := newFixtureWithTx(t, tx, store, product("NONE-1", entity.TrackingNone))
	ctx := context.Background()

	src := f.commitWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "NONE-1", Quantity: 3})
	srcState, err := f.builder.GetDocument(ctx, src)
	require.NoError(t, err)
	_, before, err := f.query.ListDocuments(ctx, repository.DocumentFilter{})
	require.NoError(t, err)

	tx.mu.Lock()
	tx.fails, tx.calls = 1, 0
	tx.mu.Unlock()
	_, err = f.builder.CreateCompensatingDraft(ctx, src, admin)
	require.Error(t, err)
	_, after, err := f.query.ListDocuments(ctx, repository.DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, before, after, "un fallo no deja borradores vacíos")

	tx.mu.Lock()
	tx.calls = 0
	tx.mu.Unlock()
	state, err := f.builder.CreateCompensatingDraft(ctx, src, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, tx.calls)

	stored, err := f.builder.GetDocument(ctx, state.Document.ID)
	require.NoError(t, err)
	require.Len(t, stored.Document.Lines, 1)
	history := stored.Document.History
	require.Len(t, history, 2)
	assert.Equal(t, entity.ActionCreated, history[0].Action)
	assert.Empty(t, history[0].Note)
	assert.Equal(t, entity.ActionCompensates, history[1].Action)
	assert.Equal(t, "compensa "+srcState.Document.Number, history[1].Note)
}

// ──────────────────────────────────────────────────────────────────────────────
// Importes fuera de rango
// ──────────────────────────────────────────────────────────────────────────────

func TestBuilder_ImporteDeLineaFueraDeRango(t *testing.T) {
	f := newFixture(t, product("NONE-1", entity.TrackingNone), product("NONE-2", entity.TrackingNone))
	ctx := context.Background()
	state, err := f.builder.CreateDraft(ctx, entity.DirectionInbound, entity.SubTypeNewStock, admin)
	require.NoError(t, err)
	id := state.Document.ID

	_, err = f.builder.AddLine(ctx, id, appinventory.LineInput{SKU: "NONE-1", Quantity: 4_000_000_000, UnitPrice: price(4_000_000_000)})
	requireKind(t, err, domain.KindInvalidLine)

	// Cada línea cabe, pero la suma no.
	_, err = f.builder.AddLine(ctx, id, appinventory.LineInput{SKU: "NONE-1", Quantity: 1, UnitPrice: price(math.MaxInt64 - 10)})
	require.NoError(t, err)
	_, err = f.builder.AddLine(ctx, id, appinventory.LineInput{SKU: "NONE-2", Quantity: 1, UnitPrice: price(100)})
	requireKind(t, err, domain.KindInvalidLine)

	stored, err := f.builder.GetDocument(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored.Document.Lines, 1, "la línea rechazada no se guarda")
	assert.Equal(t, int64(math.MaxInt64-10), stored.Document.Financials.GrandTotal)
}

// ──────────────────────────────────────────────────────────────────────────────
// Caché y consultas
// ──────────────────────────────────────────────────────────────────────────────

type spyCache struct {
	mu       sync.Mutex
	values   map[string]*appinventory.Availability
	versions map[string]int64
	evicted  []string
	// beforeSet se ejecuta entre la carga del stock y el Set (simula un commit concurrente).
	beforeSet func()
}

func newSpyCache() *spyCache {
	return &spyCache{values: map[string]*appinventory.Availability{}, versions: map[string]int64{}}
}

func (c *spyCache) Get(_ context.Context, sku string) (*appinventory.Availability, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[sku]
	return v, ok, nil
}

func (c *spyCache) Version(_ context.Context, sku string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[sku], nil
}

func (c *spyCache) Set(_ context.Context, v *appinventory.Availability, version int64) error {
	if c.beforeSet != nil {
		c.beforeSet()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[v.SKU] != version {
		return nil
	}
	c.values[v.SKU] = v
	return nil
}

func (c *spyCache) Evict(_ context.Context, skus ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range skus {
		delete(c.values, s)
		c.versions[s]++
	}
	c.evicted = append(c.evicted, skus...)
	return nil
}

func TestCommit_InvalidaCacheDeDisponibilidad(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Products().Upsert(ctx, product("NONE-1", entity.TrackingNone)))

	cache := newSpyCache()
	log := logger.NewNop()
	policy := inventory.DefaultPolicy()
	builder := appinventory.NewMovementBuilder(store, store.Documents(), store.Products(), store.Stock(), policy, log)
	recorder := appinventory.NewMovementRecorder(store, store.Documents(), policy, log,
		appinventory.WithRetry(fastRetry()), appinventory.WithCache(cache))
	query := appinventory.NewQueryUseCase(store.Stock(), store.Products(), store.Documents(), store.Movements(), cache, nil, log)

	av, err := query.GetAvailability(ctx, "NONE-1")
	require.NoError(t, err)
	assert.Zero(t, av.Available)

	state, err := builder.CreateDraft(ctx, entity.DirectionInbound, entity.SubTypeNewStock, admin)
	require.NoError(t, err)
	_, err = builder.AddLine(ctx, state.Document.ID, appinventory.LineInput{SKU: "NONE-1", Quantity: 7})
	require.NoError(t, err)
	_, err = recorder.Commit(ctx, state.Document.ID, entity.StatusCompleted, admin, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"NONE-1"}, cache.evicted)
	av, err = query.GetAvailability(ctx, "NONE-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), av.Available)
}

// Una lectura que cargó el stock antes de un commit no deja su vista en la caché.
func TestQuery_VistaObsoletaNoQuedaEnCache(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Products().Upsert(ctx, product("NONE-1", entity.TrackingNone)))

	cache := newSpyCache()
	log := logger.NewNop()
	policy := inventory.DefaultPolicy()
	builder := appinventory.NewMovementBuilder(store, store.Documents(), store.Products(), store.Stock(), policy, log)
	recorder := appinventory.NewMovementRecorder(store, store.Documents(), policy, log,
		appinventory.WithRetry(fastRetry()), appinventory.WithCache(cache))
	query := appinventory.NewQueryUseCase(store.Stock(), store.Products(), store.Documents(), store.Movements(), cache, nil, log)

	state, err := builder.CreateDraft(ctx, entity.DirectionInbound, entity.SubTypeNewStock, admin)
	require.NoError(t, err)
	_, err = builder.AddLine(ctx, state.Document.ID, appinventory.LineInput{SKU: "NONE-1", Quantity: 5})
	require.NoError(t, err)

	cache.beforeSet = func() {
		cache.beforeSet = nil
		_, err := recorder.Commit(ctx, state.Document.ID, entity.StatusCompleted, admin, "")
		require.NoError(t, err)
	}
	av, err := query.GetAvailability(ctx, "NONE-1")
	require.NoError(t, err)
	assert.Zero(t, av.Available, "la lectura en curso devuelve lo que cargó")

	_, cached, err := cache.Get(ctx, "NONE-1")
	require.NoError(t, err)
	assert.False(t, cached, "la vista anterior al commit no se guarda")

	av, err = query.GetAvailability(ctx, "NONE-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), av.Available)
	_, cached, err = cache.Get(ctx, "NONE-1")
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestQuery_ListarDocumentosYLotesPorVencer(t *testing.T) {
	p := product("BAT-1", entity.TrackingBatch)
	f := newFixture(t, p)
	ctx := context.Background()

	id := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{
		SKU: "BAT-1", Quantity: 4, Batch: &entity.BatchInfo{BatchNumber: "L1", ExpiryDate: day(2000, 1, 1)},
	})
	_, err := f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
	require.NoError(t, err)
	f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{SKU: "BAT-1", Quantity: 1})

	docs, total, err := f.query.ListDocuments(ctx, repository.DocumentFilter{Direction: entity.DirectionInbound})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, docs, 1)
	assert.Equal(t, entity.StatusCompleted, docs[0].Status)

	_, _, err = f.query.ListDocuments(ctx, repository.DocumentFilter{Status: "archivado"})
	requireKind(t, err, domain.KindInvalidStatus)

	batches, err := f.query.ListExpiringBatches(ctx, 30)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "L1", batches[0].BatchNumber)
	assert.Equal(t, int64(4), batches[0].Quantity)

	_, err = f.query.ListExpiringBatches(ctx, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

// ──────────────────────────────────────────────────────────────────────────────
// SKULocker
// ──────────────────────────────────────────────────────────────────────────────

func TestSKULocker_OrdenCruzadoSinInterbloqueo(t *testing.T) {
	locker := appinventory.NewSKULocker()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := locker.Lock([]string{"A", "B", "A"})
			counter++
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := locker.Lock([]string{"B", "A"})
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}
