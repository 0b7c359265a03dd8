package wire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for firefly records.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for firefly records.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical, // Deterministic key ordering
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient for forward compatibility: unknown keys are ignored.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Codec errors.
var (
	ErrUnknownRecord = errors.New("unknown record type")
	ErrMalformed     = errors.New("malformed record")
	ErrInvalidRecord = errors.New("invalid record")
)

// envelope is the outer CBOR map of every datagram.
type envelope struct {
	Type RecordType      `cbor:"1,keyasint"`
	Body cbor.RawMessage `cbor:"2,keyasint"`
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encode validates r and encodes it in an envelope.
func Encode(r Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	body, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", r.RecordType(), err)
	}
	return encMode.Marshal(envelope{Type: r.RecordType(), Body: body})
}

// Decode decodes the first record in data. Bytes following the first
// envelope are returned unconsumed in rest.
func Decode(data []byte) (r Record, rest []byte, err error) {
	var env envelope
	rest, err = decMode.UnmarshalFirst(data, &env)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	r = newRecord(env.Type)
	if r == nil {
		return nil, rest, fmt.Errorf("%w: %d", ErrUnknownRecord, env.Type)
	}
	if len(env.Body) == 0 {
		return nil, rest, fmt.Errorf("%w: %s without body", ErrMalformed, env.Type)
	}
	if err := decMode.Unmarshal(env.Body, r); err != nil {
		return nil, rest, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	if err := r.Validate(); err != nil {
		return nil, rest, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return r, rest, nil
}

// PeekRecordType returns the envelope type without decoding the body.
func PeekRecordType(data []byte) (RecordType, error) {
	var peek struct {
		Type RecordType `cbor:"1,keyasint"`
	}
	if _, err := decMode.UnmarshalFirst(data, &peek); err != nil {
		return RecordTypeUnknown, fmt.Errorf("failed to peek record: %w", err)
	}
	return peek.Type, nil
}

// Equal compares two values by their CBOR encoding.
func Equal(a, b any) bool {
	dataA, errA := Marshal(a)
	dataB, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(dataA, dataB)
}
