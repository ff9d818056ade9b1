package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/inventory"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
	"github.com/jhoicas/stock-engine/pkg/logger"
	"github.com/jhoicas/stock-engine/pkg/metrics"
)

// QueryUseCase consultas de solo lectura sobre stock y documentos.
type QueryUseCase struct {
	stockRepo   repository.StockRepository
	productRepo repository.ProductRepository
	docRepo     repository.MovementDocumentRepository
	movRepo     repository.InventoryMovementRepository
	cache       AvailabilityCache
	metrics     *metrics.Metrics
	log         *logger.Logger
	now         func() time.Time
}

// NewQueryUseCase construye el caso de uso. cache y m pueden ser nil.
func NewQueryUseCase(
	stockRepo repository.StockRepository,
	productRepo repository.ProductRepository,
	docRepo repository.MovementDocumentRepository,
	movRepo repository.InventoryMovementRepository,
	cache AvailabilityCache,
	m *metrics.Metrics,
	log *logger.Logger,
) *QueryUseCase {
	if cache == nil {
		cache = NoopAvailabilityCache{}
	}
	return &QueryUseCase{
		stockRepo:   stockRepo,
		productRepo: productRepo,
		docRepo:     docRepo,
		movRepo:     movRepo,
		cache:       cache,
		metrics:     m,
		log:         log.Component("inventory_query"),
		now:         time.Now,
	}
}

// GetAvailability disponible de un SKU. Lee de la caché si está; un fallo de caché no es fatal.
// La generación se lee antes del stock: si un commit invalida el SKU mientras tanto,
// la vista cargada no se guarda.
func (uc *QueryUseCase) GetAvailability(ctx context.Context, sku string) (*Availability, error) {
	cacheOK := true
	if cached, ok, err := uc.cache.Get(ctx, sku); err != nil {
		uc.log.Warn().Err(err).Str("sku", sku).Msg("caché de disponibilidad no disponible")
		cacheOK = false
	} else if ok {
		uc.countCache("hit")
		return cached, nil
	}
	uc.countCache("miss")
	version, err := uc.cache.Version(ctx, sku)
	if err != nil {
		cacheOK = false
	}

	product, err := uc.productRepo.GetBySKU(ctx, sku)
	if err != nil {
		return nil, storageErr("leer producto", err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: producto %s", domain.ErrNotFound, sku)
	}
	items, err := uc.stockRepo.Load(ctx, []string{sku})
	if err != nil {
		return nil, storageErr("leer stock", err)
	}
	item := &entity.StockItem{SKU: sku, TrackingMode: product.TrackingMode}
	if len(items) > 0 {
		item = items[0]
	}

	av := &Availability{
		SKU:          sku,
		ProductName:  product.Name,
		TrackingMode: item.TrackingMode,
		Available:    inventory.Available(item),
		AsOf:         uc.now(),
	}
	for _, b := range item.Batches {
		av.Batches = append(av.Batches, BatchAvailability{
			BatchNumber:     b.BatchNumber,
			Quantity:        b.Quantity,
			ManufactureDate: b.ManufactureDate,
			ExpiryDate:      b.ExpiryDate,
		})
	}
	if item.TrackingMode == entity.TrackingSerial {
		av.SerialsByStatus = make(map[entity.SerialStatus]int64)
		for _, s := range item.Serials {
			av.SerialsByStatus[s.Status]++
			if s.Status == entity.SerialAvailable {
				av.AvailableSerials = append(av.AvailableSerials, s.SerialID)
			}
		}
	}
	if !cacheOK {
		return av, nil
	}
	if err := uc.cache.Set(ctx, av, version); err != nil {
		uc.log.Warn().Err(err).Str("sku", sku).Msg("no se pudo guardar en caché")
	}
	return av, nil
}

// ListExpiringBatches lotes que vencen dentro de los próximos withinDays días.
func (uc *QueryUseCase) ListExpiringBatches(ctx context.Context, withinDays int) ([]repository.ExpiringBatch, error) {
	if withinDays <= 0 {
		return nil, fmt.Errorf("%w: días debe ser mayor a cero", domain.ErrInvalidInput)
	}
	before := uc.now().AddDate(0, 0, withinDays)
	batches, err := uc.stockRepo.ListExpiringBatches(ctx, before)
	if err != nil {
		return nil, storageErr("listar lotes por vencer", err)
	}
	return batches, nil
}

// ListDocuments lista documentos con filtros y paginación.
func (uc *QueryUseCase) ListDocuments(ctx context.Context, f repository.DocumentFilter) ([]*entity.MovementDocument, int64, error) {
	if f.Direction != "" && f.Direction != entity.DirectionInbound && f.Direction != entity.DirectionOutbound {
		return nil, 0, fmt.Errorf("%w: dirección %q", domain.ErrInvalidInput, f.Direction)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, domain.NewError(domain.KindInvalidStatus, "", "estado %q no permitido", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	docs, total, err := uc.docRepo.List(ctx, f)
	if err != nil {
		return nil, 0, storageErr("listar documentos", err)
	}
	return docs, total, nil
}

// ListMovements auditoría de deltas aplicados a un SKU.
func (uc *QueryUseCase) ListMovements(ctx context.Context, sku string, limit, offset int) ([]*entity.InventoryMovement, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	movs, err := uc.movRepo.ListBySKU(ctx, sku, limit, offset)
	if err != nil {
		return nil, storageErr("listar movimientos", err)
	}
	return movs, nil
}

func (uc *QueryUseCase) countCache(result string) {
	if uc.metrics != nil {
		uc.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}
