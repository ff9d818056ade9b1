package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
)

var _ repository.StockRepository = (*StockRepo)(nil)

// StockRepo implementación de StockRepository sobre PostgreSQL (usable con pool o tx).
type StockRepo struct {
	q Querier
}

// NewStockRepository construye el adaptador de stock. Pasar pool o tx (Querier).
func NewStockRepository(q Querier) *StockRepo {
	return &StockRepo{q: q}
}

// Load obtiene los ítems existentes con sus lotes y seriales. Los SKUs sin fila se omiten.
func (r *StockRepo) Load(ctx context.Context, skus []string) ([]*entity.StockItem, error) {
	return r.load(ctx, sortedUnique(skus), false)
}

// LoadForUpdate crea las filas faltantes y bloquea todas con SELECT FOR UPDATE en orden de SKU,
// de modo que dos commits concurrentes sobre SKUs solapados nunca se bloquean en cruz.
func (r *StockRepo) LoadForUpdate(ctx context.Context, modes map[string]entity.TrackingMode) ([]*entity.StockItem, error) {
	skus := make([]string, 0, len(modes))
	for sku := range modes {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	b := &pgx.Batch{}
	for _, sku := range skus {
		b.Queue(`INSERT INTO stock_items (sku, tracking_mode) VALUES ($1, $2) ON CONFLICT (sku) DO NOTHING`,
			sku, string(modes[sku]))
	}
	if err := sendBatch(ctx, r.q, b); err != nil {
		return nil, fmt.Errorf("ensure stock items: %w", err)
	}
	return r.load(ctx, skus, true)
}

func (r *StockRepo) load(ctx context.Context, skus []string, forUpdate bool) ([]*entity.StockItem, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	query := `SELECT sku, tracking_mode, quantity_on_hand, updated_at FROM stock_items WHERE sku = ANY($1) ORDER BY sku`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := r.q.Query(ctx, query, skus)
	if err != nil {
		return nil, fmt.Errorf("load stock items: %w", err)
	}
	var items []*entity.StockItem
	bySKU := make(map[string]*entity.StockItem, len(skus))
	for rows.Next() {
		var it entity.StockItem
		var mode string
		if err := rows.Scan(&it.SKU, &mode, &it.QuantityOnHand, &it.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		it.TrackingMode = entity.TrackingMode(mode)
		items = append(items, &it)
		bySKU[it.SKU] = &it
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load stock items: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	rows, err = r.q.Query(ctx, `
		SELECT sku, batch_number, quantity, manufacture_date, expiry_date
		FROM stock_batches WHERE sku = ANY($1) ORDER BY sku, expiry_date NULLS LAST, batch_number`, skus)
	if err != nil {
		return nil, fmt.Errorf("load batches: %w", err)
	}
	for rows.Next() {
		var sku string
		var b entity.Batch
		if err := rows.Scan(&sku, &b.BatchNumber, &b.Quantity, &b.ManufactureDate, &b.ExpiryDate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if it, ok := bySKU[sku]; ok {
			it.Batches = append(it.Batches, b)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load batches: %w", err)
	}

	rows, err = r.q.Query(ctx, `
		SELECT sku, serial_id, status, updated_at
		FROM stock_serials WHERE sku = ANY($1) ORDER BY sku, serial_id`, skus)
	if err != nil {
		return nil, fmt.Errorf("load serials: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sku, status string
		var s entity.Serial
		if err := rows.Scan(&sku, &s.SerialID, &status, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan serial: %w", err)
		}
		s.Status = entity.SerialStatus(status)
		if it, ok := bySKU[sku]; ok {
			it.Serials = append(it.Serials, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load serials: %w", err)
	}
	return items, nil
}

// Save persiste el estado completo de los ítems en un único batch:
// cantidad, lotes (reemplazo total) y seriales (upsert, nunca se borran).
func (r *StockRepo) Save(ctx context.Context, items []*entity.StockItem) error {
	b := &pgx.Batch{}
	for _, it := range items {
		b.Queue(`
			INSERT INTO stock_items (sku, tracking_mode, quantity_on_hand, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (sku) DO UPDATE SET quantity_on_hand = EXCLUDED.quantity_on_hand, updated_at = now()`,
			it.SKU, string(it.TrackingMode), it.QuantityOnHand)

		if it.TrackingMode == entity.TrackingBatch {
			b.Queue(`DELETE FROM stock_batches WHERE sku = $1`, it.SKU)
			for _, bt := range it.Batches {
				b.Queue(`
					INSERT INTO stock_batches (sku, batch_number, quantity, manufacture_date, expiry_date)
					VALUES ($1, $2, $3, $4, $5)`,
					it.SKU, bt.BatchNumber, bt.Quantity, bt.ManufactureDate, bt.ExpiryDate)
			}
		}
		for _, s := range it.Serials {
			b.Queue(`
				INSERT INTO stock_serials (sku, serial_id, status, updated_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (sku, serial_id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
				it.SKU, s.SerialID, string(s.Status), s.UpdatedAt)
		}
	}
	if err := sendBatch(ctx, r.q, b); err != nil {
		return fmt.Errorf("save stock items: %w", err)
	}
	return nil
}

// ListExpiringBatches lotes con vencimiento anterior a before (incluye los ya vencidos).
func (r *StockRepo) ListExpiringBatches(ctx context.Context, before time.Time) ([]repository.ExpiringBatch, error) {
	rows, err := r.q.Query(ctx, `
		SELECT sku, batch_number, quantity, expiry_date
		FROM stock_batches
		WHERE expiry_date IS NOT NULL AND expiry_date < $1
		ORDER BY expiry_date, sku`, before)
	if err != nil {
		return nil, fmt.Errorf("list expiring batches: %w", err)
	}
	defer rows.Close()
	var out []repository.ExpiringBatch
	for rows.Next() {
		var e repository.ExpiringBatch
		if err := rows.Scan(&e.SKU, &e.BatchNumber, &e.Quantity, &e.ExpiryDate); err != nil {
			return nil, fmt.Errorf("scan expiring batch: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
