package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-engine/internal/application/dto"
	"github.com/jhoicas/stock-engine/internal/application/inventory"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
	"github.com/jhoicas/stock-engine/pkg/logger"
)

// InventoryHandler maneja los documentos de movimiento y las consultas de stock (protegido).
type InventoryHandler struct {
	builder  *inventory.MovementBuilder
	recorder *inventory.MovementRecorder
	query    *inventory.QueryUseCase
	receipt  *inventory.ReceiptUseCase
	log      *logger.Logger
}

// NewInventoryHandler construye el handler. receipt puede ser nil (sin PDF).
func NewInventoryHandler(
	builder *inventory.MovementBuilder,
	recorder *inventory.MovementRecorder,
	query *inventory.QueryUseCase,
	receipt *inventory.ReceiptUseCase,
	log *logger.Logger,
) *InventoryHandler {
	return &InventoryHandler{builder: builder, recorder: recorder, query: query, receipt: receipt, log: log.Component("inventory_handler")}
}

// CreateMovement godoc
// @Summary      Crear borrador de movimiento
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateMovementRequest  true  "direction (inbound|outbound) y sub_type"
// @Success      201   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [post]
func (h *InventoryHandler) CreateMovement(c *fiber.Ctx) error {
	var in dto.CreateMovementRequest
	if errResp := bindAndValidate(c, &in); errResp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp)
	}
	state, err := h.builder.CreateDraft(c.Context(), entity.Direction(in.Direction), entity.SubType(in.SubType), GetActor(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toStateResponse(state))
}

// ListMovements godoc
// @Summary      Listar documentos de movimiento
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        direction  query  string  false  "inbound | outbound"
// @Param        status     query  string  false  "draft | pending | approved | completed"
// @Param        limit      query  int     false  "máximo 100"
// @Param        offset     query  int     false  "desplazamiento"
// @Success      200  {object}  dto.MovementListResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [get]
func (h *InventoryHandler) ListMovements(c *fiber.Ctx) error {
	var q dto.MovementListQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "parámetros inválidos"})
	}
	q.DefaultPage()
	docs, total, err := h.query.ListDocuments(c.Context(), repository.DocumentFilter{
		Direction: entity.Direction(q.Direction),
		Status:    entity.DocumentStatus(q.Status),
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	items := make([]dto.MovementResponse, 0, len(docs))
	for _, d := range docs {
		items = append(items, toDocumentResponse(d))
	}
	return c.JSON(dto.MovementListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: q.Limit, Offset: q.Offset, Total: total},
	})
}

// GetMovement godoc
// @Summary      Obtener documento con su reconciliación actual
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.MovementResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id} [get]
func (h *InventoryHandler) GetMovement(c *fiber.Ctx) error {
	state, err := h.builder.GetDocument(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(toStateResponse(state))
}

// AddLine godoc
// @Summary      Agregar línea
// @Description  Un SKU solo puede aparecer una vez por documento. Los problemas de lote/serial se
// @Description  informan por línea en "issues" sin bloquear la edición.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string           true  "ID del documento"
// @Param        body  body  dto.LineRequest  true  "línea"
// @Success      201   {object}  dto.MovementResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id}/lines [post]
func (h *InventoryHandler) AddLine(c *fiber.Ctx) error {
	var in dto.LineRequest
	if errResp := bindAndValidate(c, &in); errResp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp)
	}
	state, err := h.builder.AddLine(c.Context(), c.Params("id"), toLineInput(in))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toStateResponse(state))
}

// UpdateLine godoc
// @Summary      Actualizar línea
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id      path  string           true  "ID del documento"
// @Param        lineId  path  string           true  "ID de la línea"
// @Param        body    body  dto.LineRequest  true  "línea"
// @Success      200     {object}  dto.MovementResponse
// @Failure      404     {object}  dto.ErrorResponse
// @Failure      409     {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id}/lines/{lineId} [put]
func (h *InventoryHandler) UpdateLine(c *fiber.Ctx) error {
	var in dto.LineRequest
	if errResp := bindAndValidate(c, &in); errResp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp)
	}
	state, err := h.builder.UpdateLine(c.Context(), c.Params("id"), c.Params("lineId"), toLineInput(in))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(toStateResponse(state))
}

// RemoveLine godoc
// @Summary      Quitar línea
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        id      path  string  true  "ID del documento"
// @Param        lineId  path  string  true  "ID de la línea"
// @Success      200     {object}  dto.MovementResponse
// @Failure      404     {object}  dto.ErrorResponse
// @Failure      409     {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id}/lines/{lineId} [delete]
func (h *InventoryHandler) RemoveLine(c *fiber.Ctx) error {
	state, err := h.builder.RemoveLine(c.Context(), c.Params("id"), c.Params("lineId"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(toStateResponse(state))
}

// UpdateTerms godoc
// @Summary      Actualizar impuesto, descuento y pago
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string            true  "ID del documento"
// @Param        body  body  dto.TermsRequest  true  "condiciones"
// @Success      200   {object}  dto.MovementResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id}/terms [put]
func (h *InventoryHandler) UpdateTerms(c *fiber.Ctx) error {
	var in dto.TermsRequest
	if errResp := bindAndValidate(c, &in); errResp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp)
	}
	state, err := h.builder.UpdateTerms(c.Context(), c.Params("id"), inventory.TermsInput{
		TaxRate:       in.TaxRate,
		DiscountType:  entity.DiscountType(in.DiscountType),
		DiscountValue: in.DiscountValue,
		PaidAmount:    in.PaidAmount,
		PaymentMethod: in.PaymentMethod,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(toStateResponse(state))
}

// Commit godoc
// @Summary      Confirmar documento
// @Description  approved/completed aplican el efecto sobre el stock una sola vez y requieren rol
// @Description  admin o bodeguero. completed es inmutable.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "ID del documento"
// @Param        body  body  dto.CommitRequest  true  "status destino y nota"
// @Success      200   {object}  dto.CommitResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id}/commit [post]
func (h *InventoryHandler) Commit(c *fiber.Ctx) error {
	var in dto.CommitRequest
	if errResp := bindAndValidate(c, &in); errResp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp)
	}
	res, err := h.recorder.Commit(c.Context(), c.Params("id"), entity.DocumentStatus(in.Status), GetActor(c), in.Note)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.CommitResponse{
		Document:    toDocumentResponse(res.Document),
		StockPosted: res.Posted,
		Warnings:    toWarnings(res.Warnings),
	})
}

// Compensate godoc
// @Summary      Crear borrador compensatorio
// @Description  Borrador en la dirección opuesta que revierte un documento que ya movió stock.
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del documento a compensar"
// @Success      201  {object}  dto.MovementResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id}/compensate [post]
func (h *InventoryHandler) Compensate(c *fiber.Ctx) error {
	state, err := h.builder.CreateCompensatingDraft(c.Context(), c.Params("id"), GetActor(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toStateResponse(state))
}

// GetReceiptPDF godoc
// @Summary      Comprobante PDF del documento
// @Tags         inventory
// @Security     Bearer
// @Produce      application/pdf
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {file}    binary
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id}/pdf [get]
func (h *InventoryHandler) GetReceiptPDF(c *fiber.Ctx) error {
	if h.receipt == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(dto.ErrorResponse{Code: "NOT_IMPLEMENTED", Message: "comprobantes deshabilitados"})
	}
	pdf, filename, err := h.receipt.Generate(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+filename+`"`)
	return c.Send(pdf)
}

// GetAvailability godoc
// @Summary      Disponible de un SKU
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        sku  path  string  true  "SKU"
// @Success      200  {object}  inventory.Availability
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/stock/{sku}/availability [get]
func (h *InventoryHandler) GetAvailability(c *fiber.Ctx) error {
	av, err := h.query.GetAvailability(c.Context(), c.Params("sku"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(av)
}

// ListStockMovements godoc
// @Summary      Auditoría de movimientos de un SKU
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        sku     path   string  true   "SKU"
// @Param        limit   query  int     false  "máximo 100"
// @Param        offset  query  int     false  "desplazamiento"
// @Success      200  {array}  dto.AuditMovementResponse
// @Router       /api/inventory/stock/{sku}/movements [get]
func (h *InventoryHandler) ListStockMovements(c *fiber.Ctx) error {
	movs, err := h.query.ListMovements(c.Context(), c.Params("sku"), c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(toAuditResponse(movs))
}

// ListExpiring godoc
// @Summary      Lotes por vencer
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        days  query  int  false  "ventana en días (por defecto 30)"
// @Success      200  {array}   dto.ExpiringBatchResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/inventory/stock/expiring [get]
func (h *InventoryHandler) ListExpiring(c *fiber.Ctx) error {
	batches, err := h.query.ListExpiringBatches(c.Context(), c.QueryInt("days", 30))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"total":   len(batches),
		"batches": toExpiringResponse(batches, time.Now()),
	})
}
