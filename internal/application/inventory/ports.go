package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Garantiza que deltas del ledger, auditoría y documento se persistan en una sola llamada atómica.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		docRepo repository.MovementDocumentRepository,
		stockRepo repository.StockRepository,
		movRepo repository.InventoryMovementRepository,
		productRepo repository.ProductRepository,
	) error) error
}

// BatchAvailability lote visible en la consulta de disponibilidad.
type BatchAvailability struct {
	BatchNumber     string     `json:"batch_number"`
	Quantity        int64      `json:"quantity"`
	ManufactureDate *time.Time `json:"manufacture_date,omitempty"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
}

// Availability vista de lectura del stock de un SKU (cacheable).
type Availability struct {
	SKU              string                        `json:"sku"`
	ProductName      string                        `json:"product_name"`
	TrackingMode     entity.TrackingMode           `json:"tracking_mode"`
	Available        int64                         `json:"available"`
	Batches          []BatchAvailability           `json:"batches,omitempty"`
	AvailableSerials []string                      `json:"available_serials,omitempty"`
	SerialsByStatus  map[entity.SerialStatus]int64 `json:"serials_by_status,omitempty"`
	AsOf             time.Time                     `json:"as_of"`
}

// AvailabilityCache caché de lectura; Evict se llama tras cada commit que mueve stock.
// Version devuelve la generación del SKU (Evict la incrementa). Set guarda solo si la
// generación sigue siendo la leída antes de cargar el stock; si no, descarta sin error.
type AvailabilityCache interface {
	Get(ctx context.Context, sku string) (*Availability, bool, error)
	Version(ctx context.Context, sku string) (int64, error)
	Set(ctx context.Context, value *Availability, version int64) error
	Evict(ctx context.Context, skus ...string) error
}

// NoopAvailabilityCache caché deshabilitada.
type NoopAvailabilityCache struct{}

func (NoopAvailabilityCache) Get(_ context.Context, _ string) (*Availability, bool, error) {
	return nil, false, nil
}

func (NoopAvailabilityCache) Version(_ context.Context, _ string) (int64, error) { return 0, nil }

func (NoopAvailabilityCache) Set(_ context.Context, _ *Availability, _ int64) error { return nil }

func (NoopAvailabilityCache) Evict(_ context.Context, _ ...string) error { return nil }

// ReceiptRenderer genera el comprobante imprimible de un documento.
type ReceiptRenderer interface {
	RenderMovement(doc *entity.MovementDocument) ([]byte, error)
}

// storageErr clasifica un error de repositorio: los errores de dominio pasan intactos,
// el resto se envuelve como fallo de almacenamiento (reintentable).
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsEngineError(err); ok {
		return err
	}
	for _, sentinel := range []error{
		domain.ErrNotFound, domain.ErrInvalidInput, domain.ErrForbidden,
		domain.ErrConflict, domain.ErrDuplicate, domain.ErrUnauthorized,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.StorageError(op, err)
}
