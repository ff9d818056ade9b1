package inventory

import (
	"github.com/jhoicas/stock-engine/internal/domain"
	"github.com/jhoicas/stock-engine/internal/domain/entity"
)

// SubTypeRule efecto sobre el ledger de un sub-tipo de documento.
type SubTypeRule struct {
	Direction    entity.Direction
	Effect       entity.LedgerEffect
	SerialTarget entity.SerialStatus // estado final de los seriales tocados (salidas y devoluciones)
	// SerialSource estado que deben tener los seriales en las reversas (REINSTATE / REVOKE).
	SerialSource entity.SerialStatus
	// CompensationOnly: el sub-tipo solo nace de CreateCompensatingDraft.
	CompensationOnly bool
}

// DrawsAvailable indica si la línea consume disponible y debe validarse contra él.
// Las reversas seriales mueven seriales no disponibles; el reconciliador valida su estado.
func (r SubTypeRule) DrawsAvailable(mode entity.TrackingMode) bool {
	if r.Effect.Inbound() {
		return false
	}
	return !(r.Effect == entity.EffectRevoke && mode == entity.TrackingSerial)
}

// Policy parámetros de negocio del motor.
type Policy struct {
	Rules             map[entity.SubType]SubTypeRule
	DiscountBase      map[entity.Direction]entity.DiscountBase
	AllowOverpayment  bool
	ExpiryWarningDays int
}

// DefaultPolicy: descuento después de impuestos en salidas, sobre subtotal en entradas;
// seriales devueltos quedan en "returned" (no vuelven a disponibles).
func DefaultPolicy() Policy {
	return Policy{
		Rules: map[entity.SubType]SubTypeRule{
			entity.SubTypeNewStock:         {Direction: entity.DirectionInbound, Effect: entity.EffectReceive, SerialTarget: entity.SerialAvailable},
			entity.SubTypeAdjustment:       {Direction: entity.DirectionInbound, Effect: entity.EffectReceive, SerialTarget: entity.SerialAvailable},
			entity.SubTypeReturn:           {Direction: entity.DirectionInbound, Effect: entity.EffectCustomerReturn, SerialTarget: entity.SerialReturned},
			entity.SubTypeSale:             {Direction: entity.DirectionOutbound, Effect: entity.EffectIssue, SerialTarget: entity.SerialSold},
			entity.SubTypeOnlineOrder:      {Direction: entity.DirectionOutbound, Effect: entity.EffectIssue, SerialTarget: entity.SerialSold},
			entity.SubTypeDamaged:          {Direction: entity.DirectionOutbound, Effect: entity.EffectIssue, SerialTarget: entity.SerialSold},
			entity.SubTypeReturnToSupplier: {Direction: entity.DirectionOutbound, Effect: entity.EffectSupplierReturn, SerialTarget: entity.SerialReturned},

			entity.SubTypeSupplierReturnReversal: {
				Direction: entity.DirectionInbound, Effect: entity.EffectReinstate, CompensationOnly: true,
				SerialSource: entity.SerialReturned, SerialTarget: entity.SerialAvailable,
			},
			entity.SubTypeDamageReversal: {
				Direction: entity.DirectionInbound, Effect: entity.EffectReinstate, CompensationOnly: true,
				SerialSource: entity.SerialSold, SerialTarget: entity.SerialAvailable,
			},
			entity.SubTypeCustomerReturnReversal: {
				Direction: entity.DirectionOutbound, Effect: entity.EffectRevoke, CompensationOnly: true,
				SerialSource: entity.SerialReturned, SerialTarget: entity.SerialSold,
			},
		},
		DiscountBase: map[entity.Direction]entity.DiscountBase{
			entity.DirectionInbound:  entity.DiscountOnSubtotal,
			entity.DirectionOutbound: entity.DiscountOnSubtotalPlusTax,
		},
		ExpiryWarningDays: 30,
	}
}

// WithReturnSerialStatus cambia el estado destino de los seriales en ambos tipos de devolución.
// Solo se aceptan returned o available. Las reversas de devolución exigen ese mismo estado de origen.
func (p Policy) WithReturnSerialStatus(status entity.SerialStatus) Policy {
	if status != entity.SerialReturned && status != entity.SerialAvailable {
		return p
	}
	rules := make(map[entity.SubType]SubTypeRule, len(p.Rules))
	for st, r := range p.Rules {
		if r.Effect == entity.EffectCustomerReturn || r.Effect == entity.EffectSupplierReturn {
			r.SerialTarget = status
		}
		if st == entity.SubTypeSupplierReturnReversal || st == entity.SubTypeCustomerReturnReversal {
			r.SerialSource = status
		}
		rules[st] = r
	}
	p.Rules = rules
	return p
}

// Rule devuelve la regla del sub-tipo validando que pertenezca a la dirección.
func (p Policy) Rule(direction entity.Direction, subType entity.SubType) (SubTypeRule, error) {
	r, ok := p.Rules[subType]
	if !ok || r.Direction != direction {
		return SubTypeRule{}, domain.NewError(domain.KindInvalidSubType, "", "sub-tipo %q no válido para %s", subType, direction)
	}
	return r, nil
}

// BaseFor base de descuento para la dirección (subtotal si no está configurada).
func (p Policy) BaseFor(direction entity.Direction) entity.DiscountBase {
	if b, ok := p.DiscountBase[direction]; ok {
		return b
	}
	return entity.DiscountOnSubtotal
}

// CompensatingSubType sub-tipo que revierte el efecto de otro.
func CompensatingSubType(st entity.SubType) (entity.Direction, entity.SubType) {
	switch st {
	case entity.SubTypeSale, entity.SubTypeOnlineOrder, entity.SubTypeCustomerReturnReversal:
		return entity.DirectionInbound, entity.SubTypeReturn
	case entity.SubTypeDamaged:
		return entity.DirectionInbound, entity.SubTypeDamageReversal
	case entity.SubTypeReturnToSupplier:
		return entity.DirectionInbound, entity.SubTypeSupplierReturnReversal
	case entity.SubTypeNewStock, entity.SubTypeSupplierReturnReversal:
		return entity.DirectionOutbound, entity.SubTypeReturnToSupplier
	case entity.SubTypeAdjustment, entity.SubTypeDamageReversal:
		return entity.DirectionOutbound, entity.SubTypeDamaged
	case entity.SubTypeReturn:
		return entity.DirectionOutbound, entity.SubTypeCustomerReturnReversal
	}
	return "", ""
}
