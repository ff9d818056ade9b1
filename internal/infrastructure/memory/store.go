// Package memory implementa los repositorios del motor en memoria (modo desarrollo y tests).
// Run serializa todas las transacciones con un único lock y trabaja sobre una copia
// del estado que solo se publica si fn termina sin error.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/stock-engine/internal/application/inventory"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
)

var _ inventory.TxRunner = (*Store)(nil)

// Store estado completo en memoria.
type Store struct {
	mu   sync.Mutex
	data *state
}

type state struct {
	products  map[string]*entity.Product
	items     map[string]*entity.StockItem
	docs      map[string]*entity.MovementDocument
	movements []*entity.InventoryMovement
}

func newState() *state {
	return &state{
		products: make(map[string]*entity.Product),
		items:    make(map[string]*entity.StockItem),
		docs:     make(map[string]*entity.MovementDocument),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for k, p := range s.products {
		v := *p
		cp.products[k] = &v
	}
	for k, it := range s.items {
		cp.items[k] = it.Clone()
	}
	for k, d := range s.docs {
		cp.docs[k] = d.Clone()
	}
	cp.movements = append([]*entity.InventoryMovement(nil), s.movements...)
	return cp
}

// New crea un store vacío.
func New() *Store {
	return &Store{data: newState()}
}

// NewSeeded store con un catálogo de demostración (uno por modo de seguimiento).
func NewSeeded() *Store {
	s := New()
	now := time.Now()
	for _, p := range []*entity.Product{
		{SKU: "CAFE-500", Name: "Café molido 500g", DefaultPrice: 18_000, Cost: 11_000, TrackingMode: entity.TrackingNone},
		{SKU: "YOG-1L", Name: "Yogur natural 1L", DefaultPrice: 9_500, Cost: 6_000, TrackingMode: entity.TrackingBatch, ShelfLifeDays: 21},
		{SKU: "PHONE-X", Name: "Teléfono X 128GB", DefaultPrice: 2_400_000, Cost: 1_900_000, TrackingMode: entity.TrackingSerial},
	} {
		p.CreatedAt, p.UpdatedAt = now, now
		s.data.products[p.SKU] = p
	}
	return s
}

// Run ejecuta fn con repos atados a una copia del estado; la copia se publica solo si fn no falla.
func (s *Store) Run(ctx context.Context, fn func(
	docRepo repository.MovementDocumentRepository,
	stockRepo repository.StockRepository,
	movRepo repository.InventoryMovementRepository,
	productRepo repository.ProductRepository,
) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	b := base{st: work}
	if err := fn(&DocumentRepo{b}, &StockRepo{b}, &MovementRepo{b}, &ProductRepo{b}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// Documents repo de documentos fuera de transacción.
func (s *Store) Documents() *DocumentRepo { return &DocumentRepo{base{s: s}} }

// Stock repo del ledger fuera de transacción.
func (s *Store) Stock() *StockRepo { return &StockRepo{base{s: s}} }

// Movements repo de auditoría fuera de transacción.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{base{s: s}} }

// Products repo del catálogo fuera de transacción.
func (s *Store) Products() *ProductRepo { return &ProductRepo{base{s: s}} }

// base resuelve el estado: el de la tx si existe, si no el publicado bajo lock.
type base struct {
	s  *Store
	st *state
}

func (b base) with(fn func(st *state) error) error {
	if b.st != nil {
		return fn(b.st)
	}
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return fn(b.s.data)
}

// ──────────────────────────────────────────────────────────────────────────────
// Productos
// ──────────────────────────────────────────────────────────────────────────────

var _ repository.ProductRepository = (*ProductRepo)(nil)

// ProductRepo catálogo en memoria.
type ProductRepo struct{ base }

func (r *ProductRepo) GetBySKU(_ context.Context, sku string) (*entity.Product, error) {
	var out *entity.Product
	err := r.with(func(st *state) error {
		if p, ok := st.products[sku]; ok {
			v := *p
			out = &v
		}
		return nil
	})
	return out, err
}

func (r *ProductRepo) GetBySKUs(_ context.Context, skus []string) (map[string]*entity.Product, error) {
	out := make(map[string]*entity.Product, len(skus))
	err := r.with(func(st *state) error {
		for _, sku := range skus {
			if p, ok := st.products[sku]; ok {
				v := *p
				out[sku] = &v
			}
		}
		return nil
	})
	return out, err
}

func (r *ProductRepo) UpdateCost(_ context.Context, sku string, cost int64) error {
	return r.with(func(st *state) error {
		if p, ok := st.products[sku]; ok {
			p.Cost = cost
			p.UpdatedAt = time.Now()
		}
		return nil
	})
}

func (r *ProductRepo) Upsert(_ context.Context, product *entity.Product) error {
	return r.with(func(st *state) error {
		v := *product
		if v.CreatedAt.IsZero() {
			v.CreatedAt = time.Now()
		}
		v.UpdatedAt = time.Now()
		st.products[v.SKU] = &v
		return nil
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Stock
// ──────────────────────────────────────────────────────────────────────────────

var _ repository.StockRepository = (*StockRepo)(nil)

// StockRepo ledger en memoria.
type StockRepo struct{ base }

func (r *StockRepo) Load(_ context.Context, skus []string) ([]*entity.StockItem, error) {
	var out []*entity.StockItem
	err := r.with(func(st *state) error {
		for _, sku := range sortedUnique(skus) {
			if it, ok := st.items[sku]; ok {
				out = append(out, it.Clone())
			}
		}
		return nil
	})
	return out, err
}

// LoadForUpdate crea los ítems faltantes; el bloqueo lo da el lock del store en Run.
func (r *StockRepo) LoadForUpdate(_ context.Context, modes map[string]entity.TrackingMode) ([]*entity.StockItem, error) {
	skus := make([]string, 0, len(modes))
	for sku := range modes {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	var out []*entity.StockItem
	err := r.with(func(st *state) error {
		for _, sku := range skus {
			it, ok := st.items[sku]
			if !ok {
				it = &entity.StockItem{SKU: sku, TrackingMode: modes[sku], UpdatedAt: time.Now()}
				st.items[sku] = it
			}
			out = append(out, it.Clone())
		}
		return nil
	})
	return out, err
}

func (r *StockRepo) Save(_ context.Context, items []*entity.StockItem) error {
	return r.with(func(st *state) error {
		for _, it := range items {
			st.items[it.SKU] = it.Clone()
		}
		return nil
	})
}

func (r *StockRepo) ListExpiringBatches(_ context.Context, before time.Time) ([]repository.ExpiringBatch, error) {
	var out []repository.ExpiringBatch
	err := r.with(func(st *state) error {
		for _, it := range st.items {
			for _, b := range it.Batches {
				if b.ExpiryDate != nil && b.ExpiryDate.Before(before) {
					out = append(out, repository.ExpiringBatch{
						SKU: it.SKU, BatchNumber: b.BatchNumber, Quantity: b.Quantity, ExpiryDate: *b.ExpiryDate,
					})
				}
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].SKU < out[j].SKU
	})
	return out, err
}

// ──────────────────────────────────────────────────────────────────────────────
// Movimientos (auditoría)
// ──────────────────────────────────────────────────────────────────────────────

var _ repository.InventoryMovementRepository = (*MovementRepo)(nil)

// MovementRepo auditoría en memoria.
type MovementRepo struct{ base }

func (r *MovementRepo) CreateBatch(_ context.Context, movements []*entity.InventoryMovement) error {
	return r.with(func(st *state) error {
		for _, m := range movements {
			v := *m
			st.movements = append(st.movements, &v)
		}
		return nil
	})
}

func (r *MovementRepo) ListBySKU(_ context.Context, sku string, limit, offset int) ([]*entity.InventoryMovement, error) {
	var out []*entity.InventoryMovement
	err := r.with(func(st *state) error {
		for i := len(st.movements) - 1; i >= 0; i-- {
			if st.movements[i].SKU == sku {
				v := *st.movements[i]
				out = append(out, &v)
			}
		}
		return nil
	})
	return page(out, limit, offset), err
}

// ──────────────────────────────────────────────────────────────────────────────
// Documentos
// ──────────────────────────────────────────────────────────────────────────────

var _ repository.MovementDocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo documentos en memoria.
type DocumentRepo struct{ base }

func (r *DocumentRepo) Create(_ context.Context, doc *entity.MovementDocument) error {
	return r.with(func(st *state) error {
		st.docs[doc.ID] = doc.Clone()
		return nil
	})
}

func (r *DocumentRepo) Update(ctx context.Context, doc *entity.MovementDocument) error {
	return r.Create(ctx, doc)
}

func (r *DocumentRepo) GetByID(_ context.Context, id string) (*entity.MovementDocument, error) {
	var out *entity.MovementDocument
	err := r.with(func(st *state) error {
		if d, ok := st.docs[id]; ok {
			out = d.Clone()
		}
		return nil
	})
	return out, err
}

func (r *DocumentRepo) GetByIDForUpdate(ctx context.Context, id string) (*entity.MovementDocument, error) {
	return r.GetByID(ctx, id)
}

func (r *DocumentRepo) List(_ context.Context, f repository.DocumentFilter) ([]*entity.MovementDocument, int64, error) {
	var out []*entity.MovementDocument
	err := r.with(func(st *state) error {
		for _, d := range st.docs {
			if f.Direction != "" && d.Direction != f.Direction {
				continue
			}
			if f.Status != "" && d.Status != f.Status {
				continue
			}
			out = append(out, d.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	total := int64(len(out))
	return page(out, f.Limit, f.Offset), total, err
}

func page[T any](in []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func sortedUnique(skus []string) []string {
	seen := make(map[string]struct{}, len(skus))
	out := make([]string, 0, len(skus))
	for _, s := range skus {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
