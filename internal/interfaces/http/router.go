package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-engine/internal/application/inventory"
	"github.com/jhoicas/stock-engine/internal/application/usecase"
	"github.com/jhoicas/stock-engine/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Builder   *inventory.MovementBuilder
	Recorder  *inventory.MovementRecorder
	Query     *inventory.QueryUseCase
	Receipt   *inventory.ReceiptUseCase
	Products  *usecase.ProductUseCase
	Logger    *logger.Logger
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	inv := api.Group("/inventory", AuthMiddleware(deps.JWTSecret))
	h := NewInventoryHandler(deps.Builder, deps.Recorder, deps.Query, deps.Receipt, deps.Logger)

	// Documentos de movimiento
	movements := inv.Group("/movements")
	movements.Post("/", h.CreateMovement)
	movements.Get("/", h.ListMovements)
	movements.Get("/:id", h.GetMovement)
	movements.Post("/:id/lines", h.AddLine)
	movements.Put("/:id/lines/:lineId", h.UpdateLine)
	movements.Delete("/:id/lines/:lineId", h.RemoveLine)
	movements.Put("/:id/terms", h.UpdateTerms)
	movements.Post("/:id/commit", h.Commit)
	movements.Post("/:id/compensate", RequireRole("admin", "bodeguero"), h.Compensate)
	movements.Get("/:id/pdf", h.GetReceiptPDF)

	// Consultas de stock
	stock := inv.Group("/stock")
	stock.Get("/expiring", h.ListExpiring)
	stock.Get("/:sku/availability", h.GetAvailability)
	stock.Get("/:sku/movements", h.ListStockMovements)

	// Catálogo
	if deps.Products != nil {
		ph := NewProductHandler(deps.Products, deps.Logger)
		products := inv.Group("/products")
		products.Post("/", RequireRole("admin"), ph.Create)
		products.Get("/:sku", ph.GetBySKU)
		products.Put("/:sku", RequireRole("admin"), ph.Update)
	}
}
