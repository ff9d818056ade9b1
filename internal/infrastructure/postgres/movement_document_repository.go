package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
)

var _ repository.MovementDocumentRepository = (*MovementDocumentRepo)(nil)

// MovementDocumentRepo persiste documentos de movimiento. Líneas, historial y totales van en JSONB;
// las condiciones financieras en columnas.
type MovementDocumentRepo struct {
	q Querier
}

// NewMovementDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMovementDocumentRepository(q Querier) *MovementDocumentRepo {
	return &MovementDocumentRepo{q: q}
}

const documentColumns = `id, number, direction, sub_type, status, lines, tax_rate, discount_type, discount_value,
	paid_amount, payment_method, allow_overpayment, financials, history, stock_posted_at, compensates_id,
	created_by, created_at, updated_at`

type documentJSON struct {
	lines      []byte
	financials []byte
	history    []byte
}

func marshalDocument(doc *entity.MovementDocument) (documentJSON, error) {
	var out documentJSON
	var err error
	lines := doc.Lines
	if lines == nil {
		lines = []entity.MovementLine{}
	}
	if out.lines, err = json.Marshal(lines); err != nil {
		return out, fmt.Errorf("marshal lines: %w", err)
	}
	if out.financials, err = json.Marshal(doc.Financials); err != nil {
		return out, fmt.Errorf("marshal financials: %w", err)
	}
	history := doc.History
	if history == nil {
		history = []entity.HistoryEntry{}
	}
	if out.history, err = json.Marshal(history); err != nil {
		return out, fmt.Errorf("marshal history: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserta el documento. Número repetido devuelve domain.ErrDuplicate.
func (r *MovementDocumentRepo) Create(ctx context.Context, doc *entity.MovementDocument) error {
	js, err := marshalDocument(doc)
	if err != nil {
		return err
	}
	query := `INSERT INTO movement_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	t := doc.Terms
	_, err = r.q.Exec(ctx, query,
		doc.ID, doc.Number, string(doc.Direction), string(doc.SubType), string(doc.Status), js.lines,
		t.TaxRate, string(t.DiscountType), t.DiscountValue, t.PaidAmount, t.PaymentMethod, t.AllowOverpayment,
		js.financials, js.history, doc.StockPostedAt, nullable(doc.CompensatesID),
		doc.CreatedBy, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert movement document: %w", err)
	}
	return nil
}

// Update reemplaza el estado mutable del documento.
func (r *MovementDocumentRepo) Update(ctx context.Context, doc *entity.MovementDocument) error {
	js, err := marshalDocument(doc)
	if err != nil {
		return err
	}
	query := `
		UPDATE movement_documents SET
			status = $2, lines = $3, tax_rate = $4, discount_type = $5, discount_value = $6,
			paid_amount = $7, payment_method = $8, allow_overpayment = $9, financials = $10,
			history = $11, stock_posted_at = $12, updated_at = $13
		WHERE id = $1`
	t := doc.Terms
	tag, err := r.q.Exec(ctx, query,
		doc.ID, string(doc.Status), js.lines, t.TaxRate, string(t.DiscountType), t.DiscountValue,
		t.PaidAmount, t.PaymentMethod, t.AllowOverpayment, js.financials, js.history,
		doc.StockPostedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update movement document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID devuelve nil, nil si no existe.
func (r *MovementDocumentRepo) GetByID(ctx context.Context, id string) (*entity.MovementDocument, error) {
	return r.get(ctx, `SELECT `+documentColumns+` FROM movement_documents WHERE id = $1`, id)
}

// GetByIDForUpdate bloquea la fila del documento hasta el fin de la tx.
func (r *MovementDocumentRepo) GetByIDForUpdate(ctx context.Context, id string) (*entity.MovementDocument, error) {
	return r.get(ctx, `SELECT `+documentColumns+` FROM movement_documents WHERE id = $1 FOR UPDATE`, id)
}

func (r *MovementDocumentRepo) get(ctx context.Context, query, id string) (*entity.MovementDocument, error) {
	doc, err := scanDocument(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get movement document: %w", err)
	}
	return doc, nil
}

// List devuelve la página solicitada (más recientes primero) y el total sin paginar.
func (r *MovementDocumentRepo) List(ctx context.Context, f repository.DocumentFilter) ([]*entity.MovementDocument, int64, error) {
	var where []string
	var args []any
	if f.Direction != "" {
		args = append(args, string(f.Direction))
		where = append(where, fmt.Sprintf("direction = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM movement_documents`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movement documents: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM movement_documents%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		documentColumns, cond, len(args)-1, len(args))
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list movement documents: %w", err)
	}
	defer rows.Close()
	var list []*entity.MovementDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan movement document: %w", err)
		}
		list = append(list, doc)
	}
	return list, total, rows.Err()
}

func scanDocument(row pgx.Row) (*entity.MovementDocument, error) {
	var d entity.MovementDocument
	var direction, subType, status, discountType string
	var lines, financials, history []byte
	var compensates *string
	if err := row.Scan(
		&d.ID, &d.Number, &direction, &subType, &status, &lines,
		&d.Terms.TaxRate, &discountType, &d.Terms.DiscountValue, &d.Terms.PaidAmount, &d.Terms.PaymentMethod,
		&d.Terms.AllowOverpayment, &financials, &history, &d.StockPostedAt, &compensates,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Direction = entity.Direction(direction)
	d.SubType = entity.SubType(subType)
	d.Status = entity.DocumentStatus(status)
	d.Terms.DiscountType = entity.DiscountType(discountType)
	if compensates != nil {
		d.CompensatesID = *compensates
	}
	if err := json.Unmarshal(lines, &d.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal lines: %w", err)
	}
	if err := json.Unmarshal(financials, &d.Financials); err != nil {
		return nil, fmt.Errorf("unmarshal financials: %w", err)
	}
	if err := json.Unmarshal(history, &d.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return &d, nil
}
