package http

import (
	"time"

	"github.com/jhoicas/stock-engine/internal/application/dto"
	appinventory "github.com/jhoicas/stock-engine/internal/application/inventory"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
	"github.com/jhoicas/stock-engine/internal/domain/inventory"
	"github.com/jhoicas/stock-engine/internal/domain/repository"
)

const dateLayout = "2006-01-02"

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

func toLineInput(in dto.LineRequest) appinventory.LineInput {
	out := appinventory.LineInput{
		SKU:       in.SKU,
		Quantity:  in.Quantity,
		UnitPrice: in.UnitPrice,
		SerialIDs: in.SerialIDs,
	}
	if in.Batch != nil {
		out.Batch = &entity.BatchInfo{
			BatchNumber:     in.Batch.BatchNumber,
			ManufactureDate: parseDate(in.Batch.ManufactureDate),
			ExpiryDate:      parseDate(in.Batch.ExpiryDate),
		}
	}
	for _, a := range in.Allocations {
		out.Allocations = append(out.Allocations, entity.BatchAllocation{BatchNumber: a.BatchNumber, Quantity: a.Quantity})
	}
	return out
}

func toWarnings(ws []inventory.Warning) []dto.WarningResponse {
	if len(ws) == 0 {
		return nil
	}
	out := make([]dto.WarningResponse, 0, len(ws))
	for _, w := range ws {
		out = append(out, dto.WarningResponse{
			Code:    string(w.Code),
			SKU:     w.SKU,
			LineID:  w.LineID,
			Detail:  w.Detail,
			Payload: w.Payload,
		})
	}
	return out
}

func toDocumentResponse(doc *entity.MovementDocument) dto.MovementResponse {
	lines := make([]dto.LineResponse, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		lines = append(lines, dto.LineResponse{
			ID:           l.ID,
			SKU:          l.SKU,
			ProductName:  l.ProductName,
			TrackingMode: string(l.TrackingMode),
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			CostPrice:    l.CostPrice,
			LineTotal:    l.LineTotal,
			Batch:        l.Batch,
			Allocations:  l.Allocations,
			SerialIDs:    l.SerialIDs,
		})
	}
	return dto.MovementResponse{
		ID:        doc.ID,
		Number:    doc.Number,
		Direction: string(doc.Direction),
		SubType:   string(doc.SubType),
		Status:    string(doc.Status),
		Lines:     lines,
		Terms: dto.TermsResponse{
			TaxRate:          doc.Terms.TaxRate,
			DiscountType:     string(doc.Terms.DiscountType),
			DiscountValue:    doc.Terms.DiscountValue,
			PaidAmount:       doc.Terms.PaidAmount,
			PaymentMethod:    doc.Terms.PaymentMethod,
			AllowOverpayment: doc.Terms.AllowOverpayment,
		},
		Financials:    doc.Financials,
		History:       doc.History,
		StockPostedAt: doc.StockPostedAt,
		CompensatesID: doc.CompensatesID,
		CreatedBy:     doc.CreatedBy,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		Valid:         true,
	}
}

func toStateResponse(state *appinventory.DocumentState) dto.MovementResponse {
	out := toDocumentResponse(state.Document)
	out.Valid = state.Valid()
	out.Warnings = toWarnings(state.Warnings)
	for _, li := range state.Issues {
		issue := dto.LineIssueResponse{LineID: li.LineID, SKU: li.SKU, Warnings: toWarnings(li.Warnings)}
		for _, e := range li.Errors {
			issue.Errors = append(issue.Errors, dto.LineErrorResponse{
				Kind:   string(e.Kind),
				Class:  string(e.Class()),
				Detail: e.Detail,
			})
		}
		out.Issues = append(out.Issues, issue)
	}
	return out
}

func toExpiringResponse(batches []repository.ExpiringBatch, now time.Time) []dto.ExpiringBatchResponse {
	out := make([]dto.ExpiringBatchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, dto.ExpiringBatchResponse{
			SKU:         b.SKU,
			BatchNumber: b.BatchNumber,
			Quantity:    b.Quantity,
			ExpiryDate:  b.ExpiryDate,
			DaysLeft:    int(b.ExpiryDate.Sub(now).Hours() / 24),
		})
	}
	return out
}

func toAuditResponse(movs []*entity.InventoryMovement) []dto.AuditMovementResponse {
	out := make([]dto.AuditMovementResponse, 0, len(movs))
	for _, m := range movs {
		out = append(out, dto.AuditMovementResponse{
			ID:          m.ID,
			DocumentID:  m.DocumentID,
			Effect:      string(m.Effect),
			Quantity:    m.Quantity,
			UnitCost:    m.UnitCost,
			TotalCost:   m.TotalCost,
			BatchNumber: m.BatchNumber,
			SerialIDs:   m.SerialIDs,
			CreatedAt:   m.CreatedAt,
			CreatedBy:   m.CreatedBy,
		})
	}
	return out
}
