package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-engine/internal/application/dto"
	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/pkg/logger"
)

// errorResponse traduce un error de la capa de aplicación a status HTTP y cuerpo.
//   - validación del motor ⇒ 422 (DocumentLocked / InvalidStatusTransition ⇒ 409)
//   - ledger ⇒ 409
//   - almacenamiento ⇒ 503
func errorResponse(err error) (int, dto.ErrorResponse) {
	if ee, ok := domain.AsEngineError(err); ok {
		body := dto.ErrorResponse{
			Code:    strings.ToUpper(string(ee.Class())),
			Message: ee.Detail,
			Kind:    string(ee.Kind),
			SKU:     ee.SKU,
			LineID:  ee.LineID,
		}
		switch {
		case ee.Class() == domain.ClassStorage:
			body.Message = "almacenamiento no disponible, intente más tarde"
			return fiber.StatusServiceUnavailable, body
		case ee.Class() == domain.ClassLedger:
			return fiber.StatusConflict, body
		case ee.Kind == domain.KindDocumentLocked, ee.Kind == domain.KindInvalidStatusTransition:
			return fiber.StatusConflict, body
		default:
			return fiber.StatusUnprocessableEntity, body
		}
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden, dto.ErrorResponse{Code: "FORBIDDEN", Message: err.Error()}
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized, dto.ErrorResponse{Code: "UNAUTHORIZED", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusUnprocessableEntity, dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()}
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return fiber.StatusConflict, dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()}
	}
	return fiber.StatusInternalServerError, dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"}
}

// writeError responde el error; los 5xx se registran con la causa completa.
func writeError(c *fiber.Ctx, log *logger.Logger, err error) error {
	status, body := errorResponse(err)
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Str("method", c.Method()).Int("status", status).Msg("error en petición")
	}
	return c.Status(status).JSON(body)
}
