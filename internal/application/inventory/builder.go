package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/inventory"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
	"github.com/jhoicas/stock-engine/pkg/logger"
)

// LineInput datos editables de una línea. UnitPrice nil = precio por defecto del catálogo
// (costo promedio en entradas, precio de venta en salidas).
type LineInput struct {
	SKU         string
	Quantity    int64
	UnitPrice   *int64
	Batch       *entity.BatchInfo
	Allocations []entity.BatchAllocation
	SerialIDs   []string
}

// TermsInput condiciones financieras editables.
type TermsInput struct {
	TaxRate       decimal.Decimal
	DiscountType  entity.DiscountType
	DiscountValue decimal.Decimal
	PaidAmount    int64
	PaymentMethod string
}

// LineIssues errores y advertencias de una línea.
type LineIssues struct {
	LineID   string                `json:"line_id"`
	SKU      string                `json:"sku"`
	Errors   []*domain.EngineError `json:"-"`
	Warnings []inventory.Warning   `json:"warnings,omitempty"`
}

// DocumentState documento más el resultado de la reconciliación en modo consultivo.
type DocumentState struct {
	Document *entity.MovementDocument
	Issues   []LineIssues
	Warnings []inventory.Warning
}

// Valid indica si ninguna línea tiene errores (las advertencias no bloquean).
func (s *DocumentState) Valid() bool {
	for _, li := range s.Issues {
		if len(li.Errors) > 0 {
			return false
		}
	}
	return true
}

// MovementBuilder edición de borradores de entrada/salida. No toca el ledger: solo lo lee
// sin bloqueos para informar problemas mientras se edita.
type MovementBuilder struct {
	txRunner    TxRunner
	docRepo     repository.MovementDocumentRepository
	productRepo repository.ProductRepository
	stockRepo   repository.StockRepository
	policy      inventory.Policy
	reconciler  *inventory.Reconciler
	log         *logger.Logger
	now         func() time.Time
}

// NewMovementBuilder construye el caso de uso. Los repos fuera de tx se usan solo para lectura.
func NewMovementBuilder(
	txRunner TxRunner,
	docRepo repository.MovementDocumentRepository,
	productRepo repository.ProductRepository,
	stockRepo repository.StockRepository,
	policy inventory.Policy,
	log *logger.Logger,
) *MovementBuilder {
	return &MovementBuilder{
		txRunner:    txRunner,
		docRepo:     docRepo,
		productRepo: productRepo,
		stockRepo:   stockRepo,
		policy:      policy,
		reconciler:  inventory.NewReconciler(policy.ExpiryWarningDays),
		log:         log.Component("movement_builder"),
		now:         time.Now,
	}
}

// CreateDraft crea un documento vacío en estado draft.
func (b *MovementBuilder) CreateDraft(ctx context.Context, direction entity.Direction, subType entity.SubType, actor entity.Actor) (*DocumentState, error) {
	rule, err := b.policy.Rule(direction, subType)
	if err != nil {
		return nil, err
	}
	if rule.CompensationOnly {
		return nil, domain.NewError(domain.KindInvalidSubType, "", "el sub-tipo %q solo se usa para compensar", subType)
	}
	doc := b.newDraft(direction, subType, actor)
	if err := b.create(ctx, doc); err != nil {
		return nil, err
	}
	b.log.Info().Str("document_id", doc.ID).Str("number", doc.Number).
		Str("sub_type", string(subType)).Str("actor", actor.ID).Msg("borrador creado")
	return b.evaluate(ctx, doc)
}

// newDraft arma el documento en memoria con su entrada de creación en el historial.
func (b *MovementBuilder) newDraft(direction entity.Direction, subType entity.SubType, actor entity.Actor) *entity.MovementDocument {
	now := b.now()
	prefix := "IN"
	if direction == entity.DirectionOutbound {
		prefix = "OUT"
	}
	doc := &entity.MovementDocument{
		ID:        uuid.New().String(),
		Number:    fmt.Sprintf("%s-%d", prefix, now.UnixMilli()),
		Direction: direction,
		SubType:   subType,
		Terms: entity.Terms{
			TaxRate:          decimal.Zero,
			DiscountValue:    decimal.Zero,
			AllowOverpayment: b.policy.AllowOverpayment,
		},
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.AppendHistory(entity.ActionCreated, entity.StatusDraft, actor, now, "")
	doc.Status = entity.StatusDraft
	return doc
}

// create recalcula totales y persiste el documento en una sola transacción.
func (b *MovementBuilder) create(ctx context.Context, doc *entity.MovementDocument) error {
	if err := b.recompute(doc); err != nil {
		return err
	}
	return b.txRunner.Run(ctx, func(
		docRepo repository.MovementDocumentRepository,
		_ repository.StockRepository,
		_ repository.InventoryMovementRepository,
		_ repository.ProductRepository,
	) error {
		return storageErr("crear documento", docRepo.Create(ctx, doc))
	})
}

// AddLine agrega una línea. Un SKU solo puede aparecer una vez por documento.
func (b *MovementBuilder) AddLine(ctx context.Context, docID string, in LineInput) (*DocumentState, error) {
	return b.edit(ctx, docID, func(doc *entity.MovementDocument, products repository.ProductRepository) error {
		if doc.HasSKU(in.SKU) {
			return domain.NewError(domain.KindDuplicateLineForSku, in.SKU, "el documento ya tiene una línea para este SKU")
		}
		product, err := lookupProduct(ctx, products, in.SKU)
		if err != nil {
			return err
		}
		line := entity.MovementLine{ID: uuid.New().String()}
		if err := fillLine(&line, doc.Direction, product, in, nil); err != nil {
			return err
		}
		doc.Lines = append(doc.Lines, line)
		return nil
	})
}

// UpdateLine reemplaza los datos de una línea existente.
func (b *MovementBuilder) UpdateLine(ctx context.Context, docID, lineID string, in LineInput) (*DocumentState, error) {
	return b.edit(ctx, docID, func(doc *entity.MovementDocument, products repository.ProductRepository) error {
		line := doc.Line(lineID)
		if line == nil {
			return fmt.Errorf("%w: línea %s", domain.ErrNotFound, lineID)
		}
		if in.SKU == "" {
			in.SKU = line.SKU
		}
		if in.SKU != line.SKU && doc.HasSKU(in.SKU) {
			return domain.NewError(domain.KindDuplicateLineForSku, in.SKU, "el documento ya tiene una línea para este SKU")
		}
		product, err := lookupProduct(ctx, products, in.SKU)
		if err != nil {
			return err
		}
		prev := *line
		return fillLine(line, doc.Direction, product, in, &prev)
	})
}

// RemoveLine elimina una línea.
func (b *MovementBuilder) RemoveLine(ctx context.Context, docID, lineID string) (*DocumentState, error) {
	return b.edit(ctx, docID, func(doc *entity.MovementDocument, _ repository.ProductRepository) error {
		for i := range doc.Lines {
			if doc.Lines[i].ID == lineID {
				doc.Lines = append(doc.Lines[:i], doc.Lines[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: línea %s", domain.ErrNotFound, lineID)
	})
}

// UpdateTerms cambia impuesto, descuento y pago; los totales se recalculan.
func (b *MovementBuilder) UpdateTerms(ctx context.Context, docID string, in TermsInput) (*DocumentState, error) {
	if err := validateTerms(in); err != nil {
		return nil, err
	}
	return b.edit(ctx, docID, func(doc *entity.MovementDocument, _ repository.ProductRepository) error {
		doc.Terms.TaxRate = in.TaxRate
		doc.Terms.DiscountType = in.DiscountType
		doc.Terms.DiscountValue = in.DiscountValue
		doc.Terms.PaidAmount = in.PaidAmount
		doc.Terms.PaymentMethod = in.PaymentMethod
		return nil
	})
}

// GetDocument devuelve el documento con su reconciliación actual.
func (b *MovementBuilder) GetDocument(ctx context.Context, docID string) (*DocumentState, error) {
	doc, err := b.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, storageErr("leer documento", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: documento %s", domain.ErrNotFound, docID)
	}
	return b.evaluate(ctx, doc)
}

// edit ejecuta una mutación sobre el documento bloqueado (solo draft/pending) y recalcula totales.
func (b *MovementBuilder) edit(ctx context.Context, docID string, mutate func(*entity.MovementDocument, repository.ProductRepository) error) (*DocumentState, error) {
	var doc *entity.MovementDocument
	err := b.txRunner.Run(ctx, func(
		docRepo repository.MovementDocumentRepository,
		_ repository.StockRepository,
		_ repository.InventoryMovementRepository,
		productRepo repository.ProductRepository,
	) error {
		d, err := docRepo.GetByIDForUpdate(ctx, docID)
		if err != nil {
			return storageErr("leer documento", err)
		}
		if d == nil {
			return fmt.Errorf("%w: documento %s", domain.ErrNotFound, docID)
		}
		if !d.Status.Editable() {
			return domain.NewError(domain.KindDocumentLocked, "", "documento %s en estado %s", d.Number, d.Status)
		}
		if err := mutate(d, productRepo); err != nil {
			return err
		}
		if err := b.recompute(d); err != nil {
			return err
		}
		d.UpdatedAt = b.now()
		if err := docRepo.Update(ctx, d); err != nil {
			return storageErr("guardar documento", err)
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.evaluate(ctx, doc)
}

func (b *MovementBuilder) recompute(doc *entity.MovementDocument) error {
	sum, err := inventory.CalculateFinancials(inventory.FinancialInput{
		Direction:        doc.Direction,
		Lines:            doc.Lines,
		Terms:            doc.Terms,
		DiscountBase:     b.policy.BaseFor(doc.Direction),
		AllowOverpayment: b.policy.AllowOverpayment || doc.Terms.AllowOverpayment,
	})
	if err != nil {
		return err
	}
	doc.Financials = sum
	return nil
}

// evaluate reconcilia cada línea contra un snapshot del ledger leído sin bloqueos.
func (b *MovementBuilder) evaluate(ctx context.Context, doc *entity.MovementDocument) (*DocumentState, error) {
	state := &DocumentState{Document: doc, Issues: []LineIssues{}}
	state.Warnings = inventory.FinancialWarnings(doc.Financials)
	if len(doc.Lines) == 0 {
		return state, nil
	}
	rule, err := b.policy.Rule(doc.Direction, doc.SubType)
	if err != nil {
		return nil, err
	}
	skus := doc.SKUs()
	items, err := b.stockRepo.Load(ctx, skus)
	if err != nil {
		return nil, storageErr("leer stock", err)
	}
	bySKU := make(map[string]*entity.StockItem, len(items))
	for _, it := range items {
		bySKU[it.SKU] = it
	}
	products, err := b.productRepo.GetBySKUs(ctx, skus)
	if err != nil {
		return nil, storageErr("leer catálogo", err)
	}

	for _, line := range doc.Lines {
		item := bySKU[line.SKU]
		if item == nil {
			item = &entity.StockItem{SKU: line.SKU, TrackingMode: line.TrackingMode}
		}
		shelfLife := 0
		if p := products[line.SKU]; p != nil {
			shelfLife = p.ShelfLifeDays
		}
		res := b.reconciler.ReconcileLine(inventory.LineCheck{
			Line:          line,
			Effect:        rule.Effect,
			ShelfLifeDays: shelfLife,
			Item:          item,
			SerialSource:  rule.SerialSource,
		})
		if rule.DrawsAvailable(line.TrackingMode) {
			if avail := inventory.Available(item); line.Quantity > avail {
				res.Warnings = append(res.Warnings, inventory.Warning{
					Code:   inventory.WarningStockShortage,
					SKU:    line.SKU,
					LineID: line.ID,
					Detail: "la cantidad supera el disponible actual",
					Payload: map[string]any{
						"requested": line.Quantity,
						"available": avail,
					},
				})
			}
		}
		if len(res.Errors) == 0 && len(res.Warnings) == 0 {
			continue
		}
		state.Issues = append(state.Issues, LineIssues{
			LineID:   line.ID,
			SKU:      line.SKU,
			Errors:   res.Errors,
			Warnings: res.Warnings,
		})
	}
	return state, nil
}

func lookupProduct(ctx context.Context, products repository.ProductRepository, sku string) (*entity.Product, error) {
	if sku == "" {
		return nil, domain.NewError(domain.KindInvalidLine, "", "SKU requerido")
	}
	p, err := products.GetBySKU(ctx, sku)
	if err != nil {
		return nil, storageErr("leer producto", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: producto %s", domain.ErrNotFound, sku)
	}
	return p, nil
}

// fillLine copia el input sobre la línea completando datos del catálogo.
// prev es la línea anterior (UpdateLine) para conservar el precio si no se envía.
func fillLine(line *entity.MovementLine, direction entity.Direction, p *entity.Product, in LineInput, prev *entity.MovementLine) error {
	line.SKU = p.SKU
	line.ProductName = p.Name
	line.TrackingMode = p.TrackingMode
	line.Quantity = in.Quantity
	switch {
	case in.UnitPrice != nil:
		line.UnitPrice = *in.UnitPrice
	case prev != nil && prev.SKU == p.SKU:
		line.UnitPrice = prev.UnitPrice
	case direction == entity.DirectionInbound:
		line.UnitPrice = p.Cost
	default:
		line.UnitPrice = p.DefaultPrice
	}
	line.CostPrice = 0
	if direction == entity.DirectionOutbound {
		line.CostPrice = p.Cost
	}
	total, err := inventory.LineAmount(line.SKU, line.Quantity, line.UnitPrice)
	if err != nil {
		return withLine(err, line.ID)
	}
	line.LineTotal = total
	line.Batch = in.Batch
	line.Allocations = in.Allocations
	line.SerialIDs = in.SerialIDs
	return nil
}

func withLine(err error, lineID string) error {
	if ee, ok := domain.AsEngineError(err); ok {
		return ee.WithLine(lineID)
	}
	return err
}

func validateTerms(in TermsInput) error {
	if in.TaxRate.IsNegative() {
		return fmt.Errorf("%w: tasa de impuesto negativa", domain.ErrInvalidInput)
	}
	if in.PaidAmount < 0 {
		return fmt.Errorf("%w: monto pagado negativo", domain.ErrInvalidInput)
	}
	switch in.DiscountType {
	case entity.DiscountNone:
	case entity.DiscountPercentage:
		if in.DiscountValue.IsNegative() || in.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: descuento porcentual fuera de rango", domain.ErrInvalidInput)
		}
	case entity.DiscountFixed:
		if in.DiscountValue.IsNegative() {
			return fmt.Errorf("%w: descuento negativo", domain.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: tipo de descuento %q", domain.ErrInvalidInput, in.DiscountType)
	}
	return nil
}
