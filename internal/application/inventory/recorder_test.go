package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appinventory "github.com/jhoicas/stock-engine/internal/application/inventory"
	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/inventory"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
	"github.com/jhoicas/stock-engine/internal/infrastructure/memory"
	"github.com/jhoicas/stock-engine/pkg/logger"
	"github.com/jhoicas/stock-engine/pkg/resilience"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

var (
	admin  = entity.Actor{ID: "u-admin", Name: "Ana Admin", Role: "admin"}
	vendor = entity.Actor{ID: "u-vend", Name: "Victor Ventas", Role: "vendedor"}
)

type fixture struct {
	store    *memory.Store
	builder  *appinventory.MovementBuilder
	recorder *appinventory.MovementRecorder
	query    *appinventory.QueryUseCase
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
}

func newFixtureWithTx(t *testing.T, tx appinventory.TxRunner, store *memory.Store, products ...*entity.Product) *fixture {
	t.Helper()
	ctx := context.Background()
	for _, p := range products {
		require.NoError(t, store.Products().Upsert(ctx, p))
	}
	log := logger.NewNop()
	policy := inventory.DefaultPolicy()
	return &fixture{
		store:    store,
		builder:  appinventory.NewMovementBuilder(tx, store.Documents(), store.Products(), store.Stock(), policy, log),
		recorder: appinventory.NewMovementRecorder(tx, store.Documents(), policy, log, appinventory.WithRetry(fastRetry())),
		query:    appinventory.NewQueryUseCase(store.Stock(), store.Products(), store.Documents(), store.Movements(), nil, nil, log),
	}
}

func newFixture(t *testing.T, products ...*entity.Product) *fixture {
	store := memory.New()
	return newFixtureWithTx(t, store, store, products...)
}

func product(sku string, mode entity.TrackingMode) *entity.Product {
	return &entity.Product{SKU: sku, Name: "Producto " + sku, DefaultPrice: 1_000, Cost: 600, TrackingMode: mode}
}

func price(v int64) *int64 { return &v }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// draftWith crea un borrador con una línea y devuelve su ID.
func (f *fixture) draftWith(t *testing.T, dir entity.Direction, st entity.SubType, in appinventory.LineInput) string {
	t.Helper()
	ctx := context.Background()
	state, err := f.builder.CreateDraft(ctx, dir, st, admin)
	require.NoError(t, err)
	_, err = f.builder.AddLine(ctx, state.Document.ID, in)
	require.NoError(t, err)
	return state.Document.ID
}

func (f *fixture) available(t *testing.T, sku string) int64 {
	t.Helper()
	av, err := f.query.GetAvailability(context.Background(), sku)
	require.NoError(t, err)
	return av.Available
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	ee, ok := domain.AsEngineError(err)
	require.True(t, ok, "se esperaba un EngineError, se obtuvo %v", err)
	assert.Equal(t, kind, ee.Kind)
}

// ──────────────────────────────────────────────────────────────────────────────
// Escenarios
// ──────────────────────────────────────────────────────────────────────────────

// T-100: entrada de 50 en B1 y salida de 30 desde B1 ⇒ disponible 20, B1 = 20.
func TestCommit_EscenarioT100(t *testing.T) {
	f := newFixture(t, product("T-100", entity.TrackingBatch))
	ctx := context.Background()

	inID := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{
		SKU: "T-100", Quantity: 50, UnitPrice: price(500),
		Batch: &entity.BatchInfo{BatchNumber: "B1", ManufactureDate: day(2024, 1, 1), ExpiryDate: day(2024, 6, 1)},
	})
	res, err := f.recorder.Commit(ctx, inID, entity.StatusCompleted, admin, "recepción")
	require.NoError(t, err)
	assert.True(t, res.Posted)
	assert.Equal(t, int64(50), f.available(t, "T-100"))

	outID := f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{
		SKU: "T-100", Quantity: 30,
		Allocations: []entity.BatchAllocation{{BatchNumber: "B1", Quantity: 30}},
	})
	_, err = f.recorder.Commit(ctx, outID, entity.StatusCompleted, admin, "")
	require.NoError(t, err)

	av, err := f.query.GetAvailability(ctx, "T-100")
	require.NoError(t, err)
	assert.Equal(t, int64(20), av.Available)
	require.Len(t, av.Batches, 1)
	assert.Equal(t, "B1", av.Batches[0].BatchNumber)
	assert.Equal(t, int64(20), av.Batches[0].Quantity)
	assert.Equal(t, *day(2024, 6, 1), *av.Batches[0].ExpiryDate)

	movs, err := f.query.ListMovements(ctx, "T-100", 10, 0)
	require.NoError(t, err)
	require.Len(t, movs, 2)
	assert.Equal(t, int64(-30), movs[0].Quantity)
	assert.Equal(t, int64(50), movs[1].Quantity)
}

func TestCommit_EntradaYSalidaCompletaEliminaLote(t *testing.T) {
	f := newFixture(t, product("BAT-1", entity.TrackingBatch))
	ctx := context.Background()

	inID := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{
		SKU: "BAT-1", Quantity: 10, Batch: &entity.BatchInfo{BatchNumber: "L1"},
	})
	_, err := f.recorder.Commit(ctx, inID, entity.StatusApproved, admin, "")
	require.NoError(t, err)

	outID := f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{
		SKU: "BAT-1", Quantity: 10, Allocations: []entity.BatchAllocation{{BatchNumber: "L1", Quantity: 10}},
	})
	_, err = f.recorder.Commit(ctx, outID, entity.StatusApproved, admin, "")
	require.NoError(t, err)

	av, err := f.query.GetAvailability(ctx, "BAT-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), av.Available)
	assert.Empty(t, av.Batches)
}

// Salida serial de 3 con solo 2 seriales ⇒ SerialCountMismatch y el ledger no cambia.
func TestCommit_SerialesIncompletosNoMutaLedger(t *testing.T) {
	f := newFixture(t, product("SER-1", entity.TrackingSerial))
	ctx := context.Background()

	inID := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{
		SKU: "SER-1", Quantity: 3, SerialIDs: []string{"S1", "S2", "S3"},
	})
	_, err := f.recorder.Commit(ctx, inID, entity.StatusCompleted, admin, "")
	require.NoError(t, err)

	outID := f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{
		SKU: "SER-1", Quantity: 3, SerialIDs: []string{"S1", "S2"},
	})
	_, err = f.recorder.Commit(ctx, outID, entity.StatusCompleted, admin, "")
	requireKind(t, err, domain.KindSerialCountMismatch)

	assert.Equal(t, int64(3), f.available(t, "SER-1"))
	doc, err := f.store.Documents().GetByID(ctx, outID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, doc.Status)
	assert.Nil(t, doc.StockPostedAt)
}

func TestCommit_SalidaSinStockSuficiente(t *testing.T) {
	f := newFixture(t, product("NONE-1", entity.TrackingNone))
	ctx := context.Background()

	outID := f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{SKU: "NONE-1", Quantity: 1})
	_, err := f.recorder.Commit(ctx, outID, entity.StatusApproved, admin, "")
	requireKind(t, err, domain.KindInsufficientStock)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))
	ee, _ := domain.AsEngineError(err)
	assert.Equal(t, "NONE-1", ee.SKU)
	assert.Equal(t, domain.ClassLedger, ee.Class())
}

// El efecto sobre el ledger se aplica una sola vez aunque el documento avance de approved a completed.
func TestCommit_StockSeAplicaUnaSolaVez(t *testing.T) {
	f := newFixture(t, product("NONE-1", entity.TrackingNone))
	ctx := context.Background()

	inID := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "NONE-1", Quantity: 5})

	res, err := f.recorder.Commit(ctx, inID, entity.StatusPending, admin, "")
	require.NoError(t, err)
	assert.False(t, res.Posted, "pending no mueve stock")
	_, err = f.query.GetAvailability(ctx, "NONE-1")
	require.NoError(t, err)

	res, err = f.recorder.Commit(ctx, inID, entity.StatusApproved, admin, "")
	require.NoError(t, err)
	assert.True(t, res.Posted)

	res, err = f.recorder.Commit(ctx, inID, entity.StatusCompleted, admin, "cierre")
	require.NoError(t, err)
	assert.False(t, res.Posted)
	assert.Equal(t, int64(5), f.available(t, "NONE-1"))

	doc := res.Document
	actions := make([]string, 0, len(doc.History))
	for _, h := range doc.History {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []string{
		entity.ActionCreated, entity.ActionSaved, entity.ActionSaved, entity.ActionStockPosted, entity.ActionSaved,
	}, actions)
	assert.Equal(t, entity.StatusApproved, doc.History[4].FromStatus)
	assert.Equal(t, "Ana Admin", doc.History[4].ActorName)
}

func TestCommit_TransicionesDeEstado(t *testing.T) {
	f := newFixture(t, product("NONE-1", entity.TrackingNone))
	ctx := context.Background()
	id := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "NONE-1", Quantity: 1})

	_, err := f.recorder.Commit(ctx, id, entity.DocumentStatus("archived"), admin, "")
	requireKind(t, err, domain.KindInvalidStatus)

	_, err = f.recorder.Commit(ctx, id, entity.StatusApproved, admin, "")
	require.NoError(t, err)

	_, err = f.recorder.Commit(ctx, id, entity.StatusPending, admin, "")
	requireKind(t, err, domain.KindInvalidStatusTransition)

	_, err = f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
	require.NoError(t, err)

	_, err = f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
	requireKind(t, err, domain.KindDocumentLocked)
	assert.True(t, errors.Is(err, domain.ErrDocumentLocked))
}

func TestCommit_RolSinPermisoNoAprueba(t *testing.T) {
	f := newFixture(t, product("NONE-1", entity.TrackingNone))
	id := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "NONE-1", Quantity: 1})

	_, err := f.recorder.Commit(context.Background(), id, entity.StatusApproved, vendor, "")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	// Guardar como pending sí está permitido.
	_, err = f.recorder.Commit(context.Background(), id, entity.StatusPending, vendor, "")
	assert.NoError(t, err)
}

func TestCommit_CostoPromedioPonderado(t *testing.T) {
	p := product("NONE-1", entity.TrackingNone)
	p.Cost = 0
	f := newFixture(t, p)
	ctx := context.Background()

	id := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "NONE-1", Quantity: 10, UnitPrice: price(100)})
	_, err := f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
	require.NoError(t, err)
	id = f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "NONE-1", Quantity: 10, UnitPrice: price(200)})
	_, err = f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
	require.NoError(t, err)

	got, err := f.store.Products().GetBySKU(ctx, "NONE-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.Cost)
}

func TestCommit_DevolucionDeClienteSerial(t *testing.T) {
	f := newFixture(t, product("SER-1", entity.TrackingSerial))
	ctx := context.Background()

	id := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "SER-1", Quantity: 2, SerialIDs: []string{"S1", "S2"}})
	_, err := f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
	require.NoError(t, err)

	// Devolver un serial que no se vendió falla.
	id = f.draftWith(t, entity.DirectionInbound, entity.SubTypeReturn, appinventory.LineInput{SKU: "SER-1", Quantity: 1, SerialIDs: []string{"S1"}})
	_, err = f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
	requireKind(t, err, domain.KindSerialUnavailable)

	sale := f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{SKU: "SER-1", Quantity: 1, SerialIDs: []string{"S1"}})
	_, err = f.recorder.Commit(ctx, sale, entity.StatusCompleted, admin, "")
	require.NoError(t, err)

	_, err = f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
	require.NoError(t, err)

	av, err := f.query.GetAvailability(ctx, "SER-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), av.Available)
	assert.Equal(t, int64(1), av.SerialsByStatus[entity.SerialReturned])
	assert.Equal(t, []string{"S2"}, av.AvailableSerials)
}

// ──────────────────────────────────────────────────────────────────────────────
// Concurrencia
// ──────────────────────────────────────────────────────────────────────────────

// Dos salidas concurrentes por todos los seriales disponibles: exactamente una gana.
func TestCommit_ConcurrenciaSeriales(t *testing.T) {
	f := newFixture(t, product("SER-1", entity.TrackingSerial))
	ctx := context.Background()

	inID := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{
		SKU: "SER-1", Quantity: 2, SerialIDs: []string{"S1", "S2"},
	})
	_, err := f.recorder.Commit(ctx, inID, entity.StatusCompleted, admin, "")
	require.NoError(t, err)

	ids := []string{
		f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{SKU: "SER-1", Quantity: 2, SerialIDs: []string{"S1", "S2"}}),
		f.draftWith(t, entity.DirectionOutbound, entity.SubTypeOnlineOrder, appinventory.LineInput{SKU: "SER-1", Quantity: 2, SerialIDs: []string{"S2", "S1"}}),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
		}(i, id)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			ee, ok := domain.AsEngineError(err)
			require.True(t, ok)
			assert.Contains(t, []domain.ErrorKind{domain.KindSerialUnavailable, domain.KindInsufficientStock}, ee.Kind)
		}
	}
	assert.Equal(t, 1, failures, "exactamente un commit debe fallar")

	av, err := f.query.GetAvailability(ctx, "SER-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), av.Available)
	assert.Equal(t, int64(2), av.SerialsByStatus[entity.SerialSold])
}

// ──────────────────────────────────────────────────────────────────────────────
// Fallos de almacenamiento
// ──────────────────────────────────────────────────────────────────────────────

// flakyTx falla las primeras n llamadas antes de delegar.
type flakyTx struct {
	inner appinventory.TxRunner
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyTx) Run(ctx context.Context, fn func(
	repository.MovementDocumentRepository,
	repository.StockRepository,
	repository.InventoryMovementRepository,
	repository.ProductRepository,
) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.fails > 0
	if fail {
		f.fails--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("conexión reiniciada por el servidor")
	}
	return f.inner.Run(ctx, fn)
}

func TestCommit_FalloDeAlmacenamientoEsDistinto(t *testing.T) {
	store := memory.New()
	tx := &flakyTx{inner: store}
	f := newFixtureWithTx(t, tx, store, product("NONE-1", entity.TrackingNone))
	ctx := context.Background()

	id := f.draftWith(t, entity.DirectionInbound, entity.SubTypeNewStock, appinventory.LineInput{SKU: "NONE-1", Quantity: 4})

	tx.mu.Lock()
	tx.fails, tx.calls = 10, 0
	tx.mu.Unlock()
	_, err := f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
	requireKind(t, err, domain.KindStorage)
	assert.True(t, domain.IsStorage(err))
	assert.True(t, errors.Is(err, domain.ErrStorage))
	assert.False(t, errors.Is(err, domain.ErrInsufficientStock))
	assert.Equal(t, 3, tx.calls, "se reintenta hasta agotar los intentos")

	// Tras fallos transitorios el reintento confirma.
	tx.mu.Lock()
	tx.fails, tx.calls = 1, 0
	tx.mu.Unlock()
	res, err := f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
	require.NoError(t, err)
	assert.True(t, res.Posted)
	assert.Equal(t, 2, tx.calls)
	assert.Equal(t, int64(4), f.available(t, "NONE-1"))
}

// Un error de validación nunca se reintenta.
func TestCommit_ValidacionNoSeReintenta(t *testing.T) {
	store := memory.New()
	tx := &flakyTx{inner: store}
	f := newFixtureWithTx(t, tx, store, product("BAT-1", entity.TrackingBatch))
	ctx := context.Background()

	id := f.draftWith(t, entity.DirectionOutbound, entity.SubTypeSale, appinventory.LineInput{
		SKU: "BAT-1", Quantity: 5, Allocations: []entity.BatchAllocation{{BatchNumber: "L1", Quantity: 4}},
	})
	tx.mu.Lock()
	tx.calls = 0
	tx.mu.Unlock()
	_, err := f.recorder.Commit(ctx, id, entity.StatusCompleted, admin, "")
	requireKind(t, err, domain.KindBatchQuantityMismatch)
	assert.Equal(t, 1, tx.calls)
}
