package inventory

import (
	"context"
	"fmt"
)

// ReceiptUseCase genera el comprobante PDF de un documento de movimiento.
type ReceiptUseCase struct {
	builder  *MovementBuilder
	renderer ReceiptRenderer
}

// NewReceiptUseCase construye el caso de uso.
func NewReceiptUseCase(builder *MovementBuilder, renderer ReceiptRenderer) *ReceiptUseCase {
	return &ReceiptUseCase{builder: builder, renderer: renderer}
}

// Generate devuelve el PDF y un nombre de archivo sugerido.
func (uc *ReceiptUseCase) Generate(ctx context.Context, docID string) ([]byte, string, error) {
	state, err := uc.builder.GetDocument(ctx, docID)
	if err != nil {
		return nil, "", err
	}
	pdf, err := uc.renderer.RenderMovement(state.Document)
	if err != nil {
		return nil, "", fmt.Errorf("generar comprobante: %w", err)
	}
	return pdf, state.Document.Number + ".pdf", nil
}
