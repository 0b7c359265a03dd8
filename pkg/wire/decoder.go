package wire

import (
	"errors"
	"fmt"
	"sync"
)

// ErrorCode classifies decode failures reported to an ErrorHandler.
type ErrorCode uint8

const (
	ErrCodeMalformed ErrorCode = iota + 1
	ErrCodeUnknownRecord
	ErrCodeInvalidRecord
	ErrCodeNoHandler
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeMalformed:
		return "MALFORMED"
	case ErrCodeUnknownRecord:
		return "UNKNOWN_RECORD"
	case ErrCodeInvalidRecord:
		return "INVALID_RECORD"
	case ErrCodeNoHandler:
		return "NO_HANDLER"
	default:
		return "UNKNOWN"
	}
}

// ErrorHandler is called for every input the Decoder cannot dispatch.
// Errors are never fatal to the Decoder.
type ErrorHandler func(code ErrorCode, err error)

// RecordHandler receives one decoded record.
type RecordHandler func(r Record)

// Decoder dispatches decoded records to handlers registered per type.
// Registration and DecodeOne are safe for concurrent use.
type Decoder struct {
	mu       sync.RWMutex
	handlers map[RecordType]RecordHandler
	onError  ErrorHandler
}

// NewDecoder creates a Decoder. onError may be nil.
func NewDecoder(onError ErrorHandler) *Decoder {
	return &Decoder{
		handlers: make(map[RecordType]RecordHandler),
		onError:  onError,
	}
}

// Register installs the handler for a record type, replacing any
// existing one.
func (d *Decoder) Register(t RecordType, h RecordHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
}

// Handle registers a typed handler for records of type *T.
func Handle[T any, PT interface {
	*T
	Record
}](d *Decoder, fn func(PT)) {
	var zero PT = new(T)
	d.Register(zero.RecordType(), func(r Record) {
		if typed, ok := r.(PT); ok {
			fn(typed)
		}
	})
}

// DecodeOne decodes exactly one record from data and dispatches it to its
// handler. On failure the error handler is called and the error returned.
func (d *Decoder) DecodeOne(data []byte) error {
	r, _, err := Decode(data)
	if err != nil {
		d.report(classify(err), err)
		return err
	}

	d.mu.RLock()
	h, ok := d.handlers[r.RecordType()]
	d.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("no handler for %s", r.RecordType())
		d.report(ErrCodeNoHandler, err)
		return err
	}

	h(r)
	return nil
}

func (d *Decoder) report(code ErrorCode, err error) {
	if d.onError != nil {
		d.onError(code, err)
	}
}

func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrUnknownRecord):
		return ErrCodeUnknownRecord
	case errors.Is(err, ErrInvalidRecord):
		return ErrCodeInvalidRecord
	default:
		return ErrCodeMalformed
	}
}
