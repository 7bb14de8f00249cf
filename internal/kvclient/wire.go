// Package kvclient defines the JSON wire format cmd/kvstored speaks and
// provides an HTTP client for it, following Torua's usual request/response
// DTO convention for JSON payloads exchanged over HTTP.
package kvclient

import (
	"fmt"

	"github.com/dreamware/torua-kv/internal/kv"
)

// ValueDTO is the wire representation of a kv.Value: exactly one of the
// typed fields is set, selected by Type.
type ValueDTO struct {
	Type    string   `json:"type"`
	Bytes   string   `json:"bytes,omitempty"`
	Int64   *int64   `json:"int64,omitempty"`
	Uint64  *uint64  `json:"uint64,omitempty"`
	Float64 *float64 `json:"float64,omitempty"`
}

// Wire value types.
const (
	TypeBytes   = "bytes"
	TypeInt64   = "int64"
	TypeUint64  = "uint64"
	TypeFloat64 = "float64"
)

// SetRequest is the JSON body of PUT /kv/{namespace}/{key}.
type SetRequest struct {
	Value ValueDTO `json:"value"`

	// ExpirationUnixMillis sets an absolute expiration, or is omitted for
	// "never expires". Ignored when KeepExistingExpiration is true.
	ExpirationUnixMillis *int64 `json:"expiration_unix_ms,omitempty"`

	KeepExistingExpiration bool `json:"keep_existing_expiration,omitempty"`

	// Check is one of "", "exists", "not_exists".
	Check string `json:"check,omitempty"`

	ReturnPrevious bool `json:"return_previous,omitempty"`
}

// IncrDecrRequest is the JSON body of POST /kv/{namespace}/{key}/incr and
// .../decr.
type IncrDecrRequest struct {
	Amount     ValueDTO `json:"amount"`
	Saturating bool     `json:"saturating,omitempty"`
}

// Response is the JSON body returned by every mutating or reading
// endpoint.
type Response struct {
	// Kind is one of "value", "inserted", "updated", "deleted",
	// "not_changed".
	Kind  string    `json:"kind"`
	Value *ValueDTO `json:"value,omitempty"`
}

// Validate reports whether v's Type is known and, for the numeric types,
// whether the matching field is set. Fields belonging to other types are
// not checked.
func (v ValueDTO) Validate() error {
	switch v.Type {
	case TypeBytes:
		return nil
	case TypeInt64:
		if v.Int64 == nil {
			return fmt.Errorf("kvclient: type %q requires \"int64\" field", v.Type)
		}
	case TypeUint64:
		if v.Uint64 == nil {
			return fmt.Errorf("kvclient: type %q requires \"uint64\" field", v.Type)
		}
	case TypeFloat64:
		if v.Float64 == nil {
			return fmt.Errorf("kvclient: type %q requires \"float64\" field", v.Type)
		}
	default:
		return fmt.Errorf("kvclient: unknown value type %q", v.Type)
	}
	return nil
}

// ToKV converts a validated ValueDTO to a kv.Value.
func (v ValueDTO) ToKV() (kv.Value, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	switch v.Type {
	case TypeBytes:
		return kv.Bytes(v.Bytes), nil
	case TypeInt64:
		return kv.Int64(*v.Int64), nil
	case TypeUint64:
		return kv.Uint64(*v.Uint64), nil
	default:
		return kv.Float64(*v.Float64), nil
	}
}

// FromKV converts a kv.Value to its wire representation.
func FromKV(v kv.Value) *ValueDTO {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case kv.Bytes:
		return &ValueDTO{Type: TypeBytes, Bytes: string(x)}
	case kv.Int64:
		n := int64(x)
		return &ValueDTO{Type: TypeInt64, Int64: &n}
	case kv.Uint64:
		n := uint64(x)
		return &ValueDTO{Type: TypeUint64, Uint64: &n}
	case kv.Float64:
		f := float64(x)
		return &ValueDTO{Type: TypeFloat64, Float64: &f}
	default:
		return nil
	}
}

// outputKindString maps a kv.OutputKind to its wire label.
func outputKindString(k kv.OutputKind) string {
	switch k {
	case kv.OutputInserted:
		return "inserted"
	case kv.OutputUpdated:
		return "updated"
	case kv.OutputDeleted:
		return "deleted"
	case kv.OutputNotChanged:
		return "not_changed"
	default:
		return "value"
	}
}

// ResponseFromOutput builds the wire Response for a kv.Output.
func ResponseFromOutput(out kv.Output) Response {
	return Response{Kind: outputKindString(out.Kind), Value: FromKV(out.Value)}
}
