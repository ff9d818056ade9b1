package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrDuplicate         = errors.New("recurso duplicado")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")
	ErrConflict          = errors.New("conflicto con el estado actual")
	ErrInsufficientStock = errors.New("stock insuficiente")
	ErrSerialUnavailable = errors.New("serial no disponible")
	ErrDuplicateSerial   = errors.New("serial duplicado")
	ErrDocumentLocked    = errors.New("documento bloqueado")
	ErrStorage           = errors.New("fallo de almacenamiento")
)

// ErrorClass agrupa los Kind según cómo debe reaccionar el caller.
type ErrorClass string

const (
	// ClassValidation: corregible localmente, nunca se aplica parcialmente.
	ClassValidation ErrorClass = "validation"
	// ClassLedger: solo detectable de forma autoritativa al confirmar; aborta el commit completo.
	ClassLedger ErrorClass = "ledger"
	// ClassStorage: los datos eran válidos pero la persistencia falló; se puede reintentar.
	ClassStorage ErrorClass = "storage"
)

// ErrorKind es el código estable, legible por máquina, de un rechazo.
type ErrorKind string

const (
	KindBatchQuantityMismatch   ErrorKind = "BatchQuantityMismatch"
	KindSerialCountMismatch     ErrorKind = "SerialCountMismatch"
	KindInvalidDateRange        ErrorKind = "InvalidDateRange"
	KindDuplicateSerialInLine   ErrorKind = "DuplicateSerialInLine"
	KindUnexpectedTrackingData  ErrorKind = "UnexpectedTrackingData"
	KindDuplicateLineForSku     ErrorKind = "DuplicateLineForSku"
	KindMissingBatchNumber      ErrorKind = "MissingBatchNumber"
	KindInvalidLine             ErrorKind = "InvalidLine"
	KindInvalidStatus           ErrorKind = "InvalidStatus"
	KindInvalidStatusTransition ErrorKind = "InvalidStatusTransition"
	KindInvalidSubType          ErrorKind = "InvalidSubType"
	KindDocumentLocked          ErrorKind = "DocumentLocked"

	KindInsufficientStock ErrorKind = "InsufficientStock"
	KindSerialUnavailable ErrorKind = "SerialUnavailable"
	KindDuplicateSerial   ErrorKind = "DuplicateSerial"

	KindStorage ErrorKind = "Storage"
)

var kindClass = map[ErrorKind]ErrorClass{
	KindInsufficientStock: ClassLedger,
	KindSerialUnavailable: ClassLedger,
	KindDuplicateSerial:   ClassLedger,
	KindStorage:           ClassStorage,
}

var kindSentinel = map[ErrorKind]error{
	KindInsufficientStock: ErrInsufficientStock,
	KindSerialUnavailable: ErrSerialUnavailable,
	KindDuplicateSerial:   ErrDuplicateSerial,
	KindDocumentLocked:    ErrDocumentLocked,
	KindStorage:           ErrStorage,
}

// EngineError es el rechazo estructurado del motor de movimientos.
// SKU y LineID identifican la línea culpable cuando aplica.
type EngineError struct {
	Kind   ErrorKind
	SKU    string
	LineID string
	Detail string
	Err    error // causa (solo para errores de almacenamiento)
}

// NewError construye un EngineError con detalle formateado.
func NewError(kind ErrorKind, sku, format string, args ...any) *EngineError {
	return &EngineError{Kind: kind, SKU: sku, Detail: fmt.Sprintf(format, args...)}
}

// StorageError envuelve un fallo del colaborador de persistencia.
func StorageError(op string, err error) *EngineError {
	return &EngineError{Kind: KindStorage, Detail: op, Err: err}
}

// Class devuelve la clase del error (validation por defecto).
func (e *EngineError) Class() ErrorClass {
	if c, ok := kindClass[e.Kind]; ok {
		return c
	}
	return ClassValidation
}

// WithLine devuelve una copia con la línea identificada.
func (e *EngineError) WithLine(lineID string) *EngineError {
	cp := *e
	cp.LineID = lineID
	return &cp
}

func (e *EngineError) Error() string {
	msg := string(e.Kind)
	if e.SKU != "" {
		msg += " [" + e.SKU + "]"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap permite errors.Is contra los sentinelas (ErrInsufficientStock, ErrStorage, ...).
func (e *EngineError) Unwrap() []error {
	var errs []error
	if s, ok := kindSentinel[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AsEngineError extrae el EngineError de una cadena de errores.
func AsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// IsStorage indica si err es un fallo de almacenamiento (reintentable).
func IsStorage(err error) bool {
	ee, ok := AsEngineError(err)
	return ok && ee.Class() == ClassStorage
}
