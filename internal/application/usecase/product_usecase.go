package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/stock-engine/internal/application/dto"
	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
)

// ProductUseCase mantenimiento del catálogo. Cost y stock se manejan vía movimientos.
type ProductUseCase struct {
	repo      repository.ProductRepository
	stockRepo repository.StockRepository
	now       func() time.Time
}

// NewProductUseCase construye el caso de uso.
func NewProductUseCase(repo repository.ProductRepository, stockRepo repository.StockRepository) *ProductUseCase {
	return &ProductUseCase{repo: repo, stockRepo: stockRepo, now: time.Now}
}

// Create da de alta un producto. SKU repetido devuelve domain.ErrDuplicate.
func (uc *ProductUseCase) Create(ctx context.Context, in dto.CreateProductRequest) (*dto.ProductResponse, error) {
	sku := strings.ToUpper(strings.TrimSpace(in.SKU))
	existing, err := uc.repo.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicate
	}
	if in.TaxRate.IsNegative() {
		return nil, fmt.Errorf("%w: tax_rate negativo", domain.ErrInvalidInput)
	}
	mode := entity.TrackingMode(in.TrackingMode)
	if mode == "" {
		mode = entity.TrackingNone
	}
	now := uc.now()
	product := &entity.Product{
		SKU:           sku,
		Name:          strings.TrimSpace(in.Name),
		DefaultPrice:  in.DefaultPrice,
		Cost:          in.Cost,
		TrackingMode:  mode,
		ShelfLifeDays: in.ShelfLifeDays,
		TaxRate:       in.TaxRate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.repo.Upsert(ctx, product); err != nil {
		return nil, err
	}
	return toProductResponse(product), nil
}

// GetBySKU obtiene un producto; domain.ErrNotFound si no existe.
func (uc *ProductUseCase) GetBySKU(ctx context.Context, sku string) (*dto.ProductResponse, error) {
	product, err := uc.repo.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}
	return toProductResponse(product), nil
}

// Update actualiza un producto. El modo de seguimiento solo cambia mientras el SKU no tenga
// ítem en el ledger: lotes y seriales existentes quedarían huérfanos.
func (uc *ProductUseCase) Update(ctx context.Context, sku string, in dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	product, err := uc.repo.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}
	if in.Name != nil {
		product.Name = strings.TrimSpace(*in.Name)
	}
	if in.DefaultPrice != nil {
		product.DefaultPrice = *in.DefaultPrice
	}
	if in.ShelfLifeDays != nil {
		product.ShelfLifeDays = *in.ShelfLifeDays
	}
	if in.TaxRate != nil {
		if in.TaxRate.IsNegative() {
			return nil, fmt.Errorf("%w: tax_rate negativo", domain.ErrInvalidInput)
		}
		product.TaxRate = *in.TaxRate
	}
	if in.TrackingMode != nil && entity.TrackingMode(*in.TrackingMode) != product.TrackingMode {
		items, err := uc.stockRepo.Load(ctx, []string{product.SKU})
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			return nil, fmt.Errorf("%w: %s ya tiene movimientos, no se puede cambiar el seguimiento", domain.ErrConflict, product.SKU)
		}
		product.TrackingMode = entity.TrackingMode(*in.TrackingMode)
	}
	product.UpdatedAt = uc.now()
	if err := uc.repo.Upsert(ctx, product); err != nil {
		return nil, err
	}
	return toProductResponse(product), nil
}

func toProductResponse(p *entity.Product) *dto.ProductResponse {
	if p == nil {
		return nil
	}
	return &dto.ProductResponse{
		SKU:           p.SKU,
		Name:          p.Name,
		DefaultPrice:  p.DefaultPrice,
		Cost:          p.Cost,
		TrackingMode:  string(p.TrackingMode),
		ShelfLifeDays: p.ShelfLifeDays,
		TaxRate:       p.TaxRate,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
