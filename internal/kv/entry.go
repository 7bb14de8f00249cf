package kv

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Value is the tagged union of data a key can hold. It is implemented by
// Bytes, Int64, Uint64, and Float64 only; the interface is sealed via the
// unexported isValue method so no other package can add a fifth variant.
type Value interface {
	isValue()
	String() string
}

// Bytes is an opaque byte-string value. It carries no validation
// constraint beyond being a valid byte slice.
type Bytes []byte

func (Bytes) isValue() {}

func (b Bytes) String() string { return fmt.Sprintf("Bytes(%d bytes)", len(b)) }

// Int64 is a signed 64-bit numeric value.
type Int64 int64

func (Int64) isValue() {}
func (v Int64) String() string { return fmt.Sprintf("Int64(%d)", int64(v)) }

// Uint64 is an unsigned 64-bit numeric value.
type Uint64 uint64

func (Uint64) isValue() {}
func (v Uint64) String() string { return fmt.Sprintf("Uint64(%d)", uint64(v)) }

// Float64 is a 64-bit floating-point numeric value.
type Float64 float64

func (Float64) isValue() {}
func (v Float64) String() string { return fmt.Sprintf("Float64(%v)", float64(v)) }

// validate rejects values that can never be stored: NaN floats. Bytes
// values have no constraint.
func validate(v Value) error {
	if f, ok := v.(Float64); ok && math.IsNaN(float64(f)) {
		return ErrValueInvalid
	}
	return nil
}

// Entry is the stored record for a single full-key.
type Entry struct {
	// Value holds the entry's data, one of Bytes/Int64/Uint64/Float64.
	Value Value
	// Expiration is the absolute time at which the entry becomes eligible
	// for removal. Nil means the entry never expires.
	Expiration *time.Time
	// LastUpdated is set by the engine on every successful mutation.
	LastUpdated time.Time
}

// clone returns a shallow copy of the entry; Value implementations are
// treated as immutable once constructed (Bytes is never mutated in place
// by the store), so a shallow copy is sufficient to break aliasing between
// the dirty map and any snapshot handed to a caller.
func (e *Entry) clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Expiration != nil {
		t := *e.Expiration
		cp.Expiration = &t
	}
	return &cp
}

// fullKeySep is the NUL byte separating namespace from key inside a full
// key. NUL is reserved: neither namespace nor key may legally be
// interpreted as containing one once encoded, so the split below is
// unambiguous.
const fullKeySep = "\x00"

// fullKey concatenates a namespace (or "" if absent) and a key into the
// flat key used inside the underlying tree.
func fullKey(namespace, key string) string {
	return namespace + fullKeySep + key
}

// splitFullKey reverses fullKey. It panics if fk was not produced by
// fullKey, which would indicate a bug in the caller rather than bad input,
// since every full key handled by this package originates from fullKey.
func splitFullKey(fk string) (namespace, key string) {
	i := strings.IndexByte(fk, 0)
	if i < 0 {
		panic("kv: malformed full key: missing namespace separator")
	}
	return fk[:i], fk[i+1:]
}

// EntryKey identifies an entry by its public-facing (namespace, key) pair,
// as returned from AllEntries. Namespace is nil when the entry has no
// namespace, mirroring the optional namespace of a full key.
type EntryKey struct {
	Namespace *string
	Key       string
}

func entryKeyFromFullKey(fk string) EntryKey {
	ns, key := splitFullKey(fk)
	if ns == "" {
		return EntryKey{Key: key}
	}
	return EntryKey{Namespace: &ns, Key: key}
}
