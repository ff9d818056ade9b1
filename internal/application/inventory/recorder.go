package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/inventory"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
	"github.com/jhoicas/stock-engine/pkg/logger"
	"github.com/jhoicas/stock-engine/pkg/metrics"
	"github.com/jhoicas/stock-engine/pkg/resilience"
)

// DefaultPostingRoles roles que pueden aprobar o completar un documento (aplicar stock).
var DefaultPostingRoles = []string{"admin", "bodeguero"}

// CommitResult resultado de un commit exitoso.
type CommitResult struct {
	Document *entity.MovementDocument
	Posted   bool // true si este commit aplicó el efecto sobre el ledger
	Deltas   []entity.LedgerDelta
	Warnings []inventory.Warning
}

// MovementRecorder confirma documentos: re-valida contra el ledger bloqueado, aplica todos
// los deltas de forma atómica y persiste documento, stock y auditoría en una sola transacción.
type MovementRecorder struct {
	txRunner     TxRunner
	docRepo      repository.MovementDocumentRepository
	cache        AvailabilityCache
	locker       *SKULocker
	policy       inventory.Policy
	reconciler   *inventory.Reconciler
	retry        resilience.RetryConfig
	breaker      *resilience.Breaker
	metrics      *metrics.Metrics
	log          *logger.Logger
	postingRoles map[string]struct{}
	now          func() time.Time
}

// RecorderOption configura el MovementRecorder.
type RecorderOption func(*MovementRecorder)

// WithCache usa la caché de disponibilidad indicada (Noop por defecto).
func WithCache(c AvailabilityCache) RecorderOption {
	return func(r *MovementRecorder) { r.cache = c }
}

// WithMetrics registra métricas de commit.
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *MovementRecorder) { r.metrics = m }
}

// WithRetry reemplaza la política de reintentos (solo aplica a errores de almacenamiento).
func WithRetry(cfg resilience.RetryConfig) RecorderOption {
	return func(r *MovementRecorder) { r.retry = cfg }
}

// WithBreaker reemplaza el circuit breaker del commit.
func WithBreaker(b *resilience.Breaker) RecorderOption {
	return func(r *MovementRecorder) { r.breaker = b }
}

// WithPostingRoles roles autorizados para approved/completed. Vacío = cualquiera.
func WithPostingRoles(roles ...string) RecorderOption {
	return func(r *MovementRecorder) {
		r.postingRoles = make(map[string]struct{}, len(roles))
		for _, role := range roles {
			r.postingRoles[role] = struct{}{}
		}
	}
}

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) RecorderOption {
	return func(r *MovementRecorder) { r.now = now }
}

// NewMovementRecorder construye el caso de uso de commit.
func NewMovementRecorder(
	txRunner TxRunner,
	docRepo repository.MovementDocumentRepository,
	policy inventory.Policy,
	log *logger.Logger,
	opts ...RecorderOption,
) *MovementRecorder {
	r := &MovementRecorder{
		txRunner:   txRunner,
		docRepo:    docRepo,
		cache:      NoopAvailabilityCache{},
		locker:     NewSKULocker(),
		policy:     policy,
		reconciler: inventory.NewReconciler(policy.ExpiryWarningDays),
		retry:      resilience.DefaultRetryConfig(),
		log:        log.Component("movement_recorder"),
		now:        time.Now,
	}
	WithPostingRoles(DefaultPostingRoles...)(r)
	for _, opt := range opts {
		opt(r)
	}
	r.retry.Retryable = domain.IsStorage
	if r.breaker == nil {
		cfg := resilience.DefaultBreakerConfig("movement_commit")
		cfg.IsFailure = domain.IsStorage
		var onChange func(string, gobreaker.State)
		if r.metrics != nil {
			onChange = r.metrics.ObserveBreaker
		}
		r.breaker = resilience.NewBreaker(cfg, r.log, onChange)
	}
	return r
}

// Commit lleva el documento al estado destino. Si el destino es approved/completed y el
// documento aún no movió stock, aplica el efecto sobre el ledger (una sola vez).
func (r *MovementRecorder) Commit(ctx context.Context, docID string, target entity.DocumentStatus, actor entity.Actor, note string) (*CommitResult, error) {
	start := r.now()
	if !target.Valid() {
		return nil, domain.NewError(domain.KindInvalidStatus, "", "estado %q no permitido", target)
	}
	if target.PostsStock() && len(r.postingRoles) > 0 {
		if _, ok := r.postingRoles[actor.Role]; !ok {
			return nil, fmt.Errorf("%w: el rol %q no puede aprobar documentos", domain.ErrForbidden, actor.Role)
		}
	}

	// 1. Lectura previa (sin bloqueo) para conocer los SKUs a serializar en el proceso
	current, err := r.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, storageErr("leer documento", err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: documento %s", domain.ErrNotFound, docID)
	}
	if target.PostsStock() && current.StockPostedAt == nil {
		unlock := r.locker.Lock(current.SKUs())
		defer unlock()
	}

	// 2. Transacción con reintentos (solo fallos de almacenamiento) y circuit breaker
	var result *CommitResult
	err = resilience.Retry(ctx, r.retry, func() error {
		return r.breaker.Execute(func() error {
			res, err := r.commitOnce(ctx, docID, target, actor, note)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = domain.StorageError("commit", err)
	}
	r.observe(current.Direction, target, start, err)
	if err != nil {
		ev := r.log.Warn()
		if domain.IsStorage(err) {
			ev = r.log.Error()
		}
		ev.Err(err).Str("document_id", docID).Str("target", string(target)).Str("actor", actor.ID).Msg("commit rechazado")
		return nil, err
	}

	// 3. Invalida la caché de disponibilidad de los SKUs movidos
	if result.Posted {
		skus := result.Document.SKUs()
		if err := r.cache.Evict(ctx, skus...); err != nil {
			r.log.Warn().Err(err).Strs("skus", skus).Msg("no se pudo invalidar la caché de disponibilidad")
		}
		if r.metrics != nil {
			for _, d := range result.Deltas {
				r.metrics.StockPosted.WithLabelValues(string(d.Effect)).Add(float64(d.Quantity))
			}
		}
	}
	r.log.Info().Str("document_id", docID).Str("number", result.Document.Number).
		Str("status", string(result.Document.Status)).Bool("stock_posted", result.Posted).
		Int("lines", len(result.Document.Lines)).Str("actor", actor.ID).Msg("documento confirmado")
	return result, nil
}

// commitOnce un intento completo dentro de una transacción.
func (r *MovementRecorder) commitOnce(ctx context.Context, docID string, target entity.DocumentStatus, actor entity.Actor, note string) (*CommitResult, error) {
	var result *CommitResult
	err := r.txRunner.Run(ctx, func(
		docRepo repository.MovementDocumentRepository,
		stockRepo repository.StockRepository,
		movRepo repository.InventoryMovementRepository,
		productRepo repository.ProductRepository,
	) error {
		doc, err := docRepo.GetByIDForUpdate(ctx, docID)
		if err != nil {
			return storageErr("leer documento", err)
		}
		if doc == nil {
			return fmt.Errorf("%w: documento %s", domain.ErrNotFound, docID)
		}
		if err := checkTransition(doc, target); err != nil {
			return err
		}
		rule, err := r.policy.Rule(doc.Direction, doc.SubType)
		if err != nil {
			return err
		}
		if rule.CompensationOnly && doc.CompensatesID == "" {
			return domain.NewError(domain.KindInvalidSubType, "", "el sub-tipo %q solo se usa para compensar", doc.SubType)
		}
		if err := r.reconcileStructure(doc, rule); err != nil {
			return err
		}

		now := r.now()
		res := &CommitResult{Document: doc}
		posting := target.PostsStock() && doc.StockPostedAt == nil
		if posting {
			if len(doc.Lines) == 0 {
				return domain.NewError(domain.KindInvalidLine, "", "el documento no tiene líneas")
			}
			deltas, warnings, err := r.post(ctx, doc, rule, actor, now, stockRepo, movRepo, productRepo)
			if err != nil {
				return err
			}
			res.Posted = true
			res.Deltas = deltas
			res.Warnings = warnings
		}

		doc.AppendHistory(entity.ActionSaved, target, actor, now, note)
		doc.Status = target
		if posting {
			doc.StockPostedAt = &now
			doc.AppendHistory(entity.ActionStockPosted, target, actor, now, "")
		}
		doc.UpdatedAt = now
		if err := docRepo.Update(ctx, doc); err != nil {
			return storageErr("guardar documento", err)
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, storageErr("commit", err)
	}
	return result, nil
}

// post aplica los deltas sobre el ledger bloqueado y persiste stock, costos y auditoría.
func (r *MovementRecorder) post(
	ctx context.Context,
	doc *entity.MovementDocument,
	rule inventory.SubTypeRule,
	actor entity.Actor,
	now time.Time,
	stockRepo repository.StockRepository,
	movRepo repository.InventoryMovementRepository,
	productRepo repository.ProductRepository,
) ([]entity.LedgerDelta, []inventory.Warning, error) {
	skus := doc.SKUs()
	products, err := productRepo.GetBySKUs(ctx, skus)
	if err != nil {
		return nil, nil, storageErr("leer catálogo", err)
	}
	modes := make(map[string]entity.TrackingMode, len(skus))
	shelfLife := make(map[string]int, len(skus))
	for _, line := range doc.Lines {
		p := products[line.SKU]
		if p == nil {
			return nil, nil, fmt.Errorf("%w: producto %s", domain.ErrNotFound, line.SKU)
		}
		modes[line.SKU] = p.TrackingMode
		shelfLife[line.SKU] = p.ShelfLifeDays
	}

	// Lectura autoritativa: filas bloqueadas en orden de SKU hasta el fin de la tx
	items, err := stockRepo.LoadForUpdate(ctx, modes)
	if err != nil {
		return nil, nil, storageErr("bloquear stock", err)
	}
	ledger := inventory.NewStockLedger(items)
	prevOnHand := make(map[string]int64, len(skus))
	for _, sku := range skus {
		ledger.Ensure(sku, modes[sku])
		it, _ := ledger.Item(sku)
		prevOnHand[sku] = it.QuantityOnHand
	}

	var warnings []inventory.Warning
	for _, line := range doc.Lines {
		item, _ := ledger.Item(line.SKU)
		res := r.reconciler.ReconcileLine(inventory.LineCheck{
			Line:          line,
			Effect:        rule.Effect,
			ShelfLifeDays: shelfLife[line.SKU],
			Item:          item,
			SerialSource:  rule.SerialSource,
		})
		if err := res.Err(); err != nil {
			return nil, nil, err
		}
		if rule.DrawsAvailable(line.TrackingMode) {
			if avail := inventory.Available(item); line.Quantity > avail {
				return nil, nil, domain.NewError(domain.KindInsufficientStock, line.SKU,
					"solicitado %d, disponible %d", line.Quantity, avail).WithLine(line.ID)
			}
		}
		warnings = append(warnings, res.Warnings...)
	}

	deltas := inventory.BuildDeltas(doc, rule, shelfLife)
	if err := ledger.Apply(deltas); err != nil {
		return nil, nil, err
	}

	changed := make([]*entity.StockItem, 0, len(skus))
	for _, sku := range uniqueSorted(skus) {
		it, _ := ledger.Item(sku)
		if err := it.CheckInvariants(); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
		changed = append(changed, it)
	}
	if err := stockRepo.Save(ctx, changed); err != nil {
		return nil, nil, storageErr("guardar stock", err)
	}

	// Costo promedio ponderado solo en recepciones con costo
	if rule.Effect == entity.EffectReceive {
		for _, d := range deltas {
			if d.UnitCost <= 0 {
				continue
			}
			p := products[d.SKU]
			newCost := inventory.CostCalculator(prevOnHand[d.SKU], p.Cost, d.Quantity, d.UnitCost)
			if err := productRepo.UpdateCost(ctx, d.SKU, newCost); err != nil {
				return nil, nil, storageErr("actualizar costo", err)
			}
		}
	}

	movements := inventory.Movements(doc.ID, actor.ID, now, deltas, func() string { return uuid.New().String() })
	if err := movRepo.CreateBatch(ctx, movements); err != nil {
		return nil, nil, storageErr("guardar movimientos", err)
	}
	return deltas, warnings, nil
}

// reconcileStructure validación estructural de todas las líneas (sin ledger).
func (r *MovementRecorder) reconcileStructure(doc *entity.MovementDocument, rule inventory.SubTypeRule) error {
	seen := make(map[string]struct{}, len(doc.Lines))
	for _, line := range doc.Lines {
		if _, dup := seen[line.SKU]; dup {
			return domain.NewError(domain.KindDuplicateLineForSku, line.SKU, "SKU repetido en el documento").WithLine(line.ID)
		}
		seen[line.SKU] = struct{}{}
		res := r.reconciler.ReconcileLine(inventory.LineCheck{Line: line, Effect: rule.Effect})
		if err := res.Err(); err != nil {
			return err
		}
	}
	return nil
}

// checkTransition: los estados solo avanzan y completed es inmutable.
func checkTransition(doc *entity.MovementDocument, target entity.DocumentStatus) error {
	if doc.Status == entity.StatusCompleted {
		return domain.NewError(domain.KindDocumentLocked, "", "documento %s completado", doc.Number)
	}
	if target.Rank() < doc.Status.Rank() {
		return domain.NewError(domain.KindInvalidStatusTransition, "", "%s → %s no permitido", doc.Status, target)
	}
	return nil
}

func (r *MovementRecorder) observe(direction entity.Direction, target entity.DocumentStatus, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		class, kind := "other", "other"
		if ee, ok := domain.AsEngineError(err); ok {
			class, kind = string(ee.Class()), string(ee.Kind)
		}
		r.metrics.CommitRejections.WithLabelValues(class, kind).Inc()
	}
	r.metrics.CommitsTotal.WithLabelValues(string(direction), string(target), outcome).Inc()
	r.metrics.CommitDuration.WithLabelValues(string(direction)).Observe(r.now().Sub(start).Seconds())
}
