package entity

import (
	"fmt"
	"time"
)

// TrackingMode granularidad con la que se controla el stock de un SKU.
type TrackingMode string

const (
	TrackingNone   TrackingMode = "none"
	TrackingBatch  TrackingMode = "batch"
	TrackingSerial TrackingMode = "serial"
)

// Valid indica si el modo es uno de los tres soportados.
func (m TrackingMode) Valid() bool {
	return m == TrackingNone || m == TrackingBatch || m == TrackingSerial
}

// SerialStatus estado de una unidad serializada.
type SerialStatus string

const (
	SerialAvailable SerialStatus = "available"
	SerialReserved  SerialStatus = "reserved"
	SerialSold      SerialStatus = "sold"
	SerialReturned  SerialStatus = "returned"
)

// Valid indica si el estado es conocido.
func (s SerialStatus) Valid() bool {
	switch s {
	case SerialAvailable, SerialReserved, SerialSold, SerialReturned:
		return true
	}
	return false
}

// Batch lote de un StockItem. BatchNumber es único dentro del ítem.
type Batch struct {
	BatchNumber     string
	Quantity        int64
	ManufactureDate *time.Time
	ExpiryDate      *time.Time
}

// Serial unidad individual. Nunca se elimina (trazabilidad).
type Serial struct {
	SerialID  string
	Status    SerialStatus
	UpdatedAt time.Time
}

// StockItem estado autoritativo de un SKU.
// QuantityOnHand es la suma de lotes (batch) o el conteo de seriales disponibles (serial).
type StockItem struct {
	SKU            string
	TrackingMode   TrackingMode
	QuantityOnHand int64
	Batches        []Batch
	Serials        []Serial
	UpdatedAt      time.Time
}

// Clone copia profunda; el ledger trabaja siempre sobre copias propias.
func (s *StockItem) Clone() *StockItem {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Batches = make([]Batch, len(s.Batches))
	for i, b := range s.Batches {
		cp.Batches[i] = b
		if b.ManufactureDate != nil {
			t := *b.ManufactureDate
			cp.Batches[i].ManufactureDate = &t
		}
		if b.ExpiryDate != nil {
			t := *b.ExpiryDate
			cp.Batches[i].ExpiryDate = &t
		}
	}
	cp.Serials = append([]Serial(nil), s.Serials...)
	return &cp
}

// BatchIndex posición del lote o -1.
func (s *StockItem) BatchIndex(batchNumber string) int {
	for i := range s.Batches {
		if s.Batches[i].BatchNumber == batchNumber {
			return i
		}
	}
	return -1
}

// SerialIndex posición del serial o -1.
func (s *StockItem) SerialIndex(serialID string) int {
	for i := range s.Serials {
		if s.Serials[i].SerialID == serialID {
			return i
		}
	}
	return -1
}

// Recompute recalcula QuantityOnHand desde lotes/seriales. No aplica a mode=none.
func (s *StockItem) Recompute() {
	switch s.TrackingMode {
	case TrackingBatch:
		var total int64
		for _, b := range s.Batches {
			total += b.Quantity
		}
		s.QuantityOnHand = total
	case TrackingSerial:
		var n int64
		for _, sr := range s.Serials {
			if sr.Status == SerialAvailable {
				n++
			}
		}
		s.QuantityOnHand = n
	}
}

// CheckInvariants valida las invariantes del agregado.
func (s *StockItem) CheckInvariants() error {
	if !s.TrackingMode.Valid() {
		return fmt.Errorf("sku %s: modo de seguimiento inválido %q", s.SKU, s.TrackingMode)
	}
	if s.QuantityOnHand < 0 {
		return fmt.Errorf("sku %s: cantidad negativa", s.SKU)
	}
	switch s.TrackingMode {
	case TrackingBatch:
		seen := make(map[string]struct{}, len(s.Batches))
		var total int64
		for _, b := range s.Batches {
			if _, dup := seen[b.BatchNumber]; dup {
				return fmt.Errorf("sku %s: lote %s repetido", s.SKU, b.BatchNumber)
			}
			seen[b.BatchNumber] = struct{}{}
			if b.Quantity <= 0 {
				return fmt.Errorf("sku %s: lote %s sin cantidad", s.SKU, b.BatchNumber)
			}
			if b.ManufactureDate != nil && b.ExpiryDate != nil && !b.ExpiryDate.After(*b.ManufactureDate) {
				return fmt.Errorf("sku %s: lote %s con vencimiento anterior a fabricación", s.SKU, b.BatchNumber)
			}
			total += b.Quantity
		}
		if total != s.QuantityOnHand {
			return fmt.Errorf("sku %s: cantidad %d distinta a la suma de lotes %d", s.SKU, s.QuantityOnHand, total)
		}
	case TrackingSerial:
		seen := make(map[string]struct{}, len(s.Serials))
		var avail int64
		for _, sr := range s.Serials {
			if _, dup := seen[sr.SerialID]; dup {
				return fmt.Errorf("sku %s: serial %s repetido", s.SKU, sr.SerialID)
			}
			seen[sr.SerialID] = struct{}{}
			if sr.Status == SerialAvailable {
				avail++
			}
		}
		if avail != s.QuantityOnHand {
			return fmt.Errorf("sku %s: cantidad %d distinta a seriales disponibles %d", s.SKU, s.QuantityOnHand, avail)
		}
	}
	return nil
}
