package kv

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// On-disk encoding of an Entry. Stable and length-prefixed so the format
// round-trips identically across restarts (spec requirement: compatibility
// matters).
//
// Layout:
//
//	byte    valueTag
//	...     value payload (tag-dependent, see below)
//	byte    hasExpiration (0 or 1)
//	[int64] expiration unix nanos, present iff hasExpiration == 1
//	int64   lastUpdated unix nanos
//
// Value payloads:
//
//	tagBytes:   uint32 length, then that many bytes
//	tagInt64:   8 bytes, big-endian two's complement
//	tagUint64:  8 bytes, big-endian
//	tagFloat64: 8 bytes, big-endian IEEE-754 bits
const (
	tagBytes byte = iota
	tagInt64
	tagUint64
	tagFloat64
)

// encodeEntry serializes e into the canonical binary form.
func encodeEntry(e *Entry) ([]byte, error) {
	var buf []byte

	switch v := e.Value.(type) {
	case Bytes:
		buf = append(buf, tagBytes)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, v...)
	case Int64:
		buf = append(buf, tagInt64)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v))
		buf = append(buf, b[:]...)
	case Uint64:
		buf = append(buf, tagUint64)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v))
		buf = append(buf, b[:]...)
	case Float64:
		buf = append(buf, tagFloat64)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(float64(v)))
		buf = append(buf, b[:]...)
	default:
		return nil, fmt.Errorf("kv: encode: unknown value type %T", e.Value)
	}

	if e.Expiration != nil {
		buf = append(buf, 1)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(e.Expiration.UnixNano()))
		buf = append(buf, b[:]...)
	} else {
		buf = append(buf, 0)
	}

	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(e.LastUpdated.UnixNano()))
	buf = append(buf, b[:]...)

	return buf, nil
}

// decodeEntry is the inverse of encodeEntry. It returns an error on
// truncated or malformed input; callers in the layered read path treat
// such an error as "key absent" per the documented SerializationFailure
// compromise (see DESIGN.md), rather than propagating it.
func decodeEntry(data []byte) (*Entry, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("kv: decode: empty input")
	}
	tag := data[0]
	data = data[1:]

	var value Value
	switch tag {
	case tagBytes:
		if len(data) < 4 {
			return nil, fmt.Errorf("kv: decode: truncated bytes length")
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint64(len(data)) < uint64(n) {
			return nil, fmt.Errorf("kv: decode: truncated bytes payload")
		}
		var b []byte
		if n > 0 {
			b = make([]byte, n)
			copy(b, data[:n])
		}
		value = Bytes(b)
		data = data[n:]
	case tagInt64:
		if len(data) < 8 {
			return nil, fmt.Errorf("kv: decode: truncated int64")
		}
		value = Int64(int64(binary.BigEndian.Uint64(data[:8])))
		data = data[8:]
	case tagUint64:
		if len(data) < 8 {
			return nil, fmt.Errorf("kv: decode: truncated uint64")
		}
		value = Uint64(binary.BigEndian.Uint64(data[:8]))
		data = data[8:]
	case tagFloat64:
		if len(data) < 8 {
			return nil, fmt.Errorf("kv: decode: truncated float64")
		}
		value = Float64(math.Float64frombits(binary.BigEndian.Uint64(data[:8])))
		data = data[8:]
	default:
		return nil, fmt.Errorf("kv: decode: unknown value tag %d", tag)
	}

	if len(data) < 1 {
		return nil, fmt.Errorf("kv: decode: truncated expiration flag")
	}
	hasExpiration := data[0] == 1
	data = data[1:]

	e := &Entry{Value: value}

	if hasExpiration {
		if len(data) < 8 {
			return nil, fmt.Errorf("kv: decode: truncated expiration")
		}
		t := time.Unix(0, int64(binary.BigEndian.Uint64(data[:8]))).UTC()
		e.Expiration = &t
		data = data[8:]
	}

	if len(data) < 8 {
		return nil, fmt.Errorf("kv: decode: truncated last_updated")
	}
	e.LastUpdated = time.Unix(0, int64(binary.BigEndian.Uint64(data[:8]))).UTC()

	return e, nil
}

// ChangedKey records one key touched by a persistence commit, in the order
// the compare-swap pass visited it (ascending full-key bytes). This is the
// "Keys changed" transaction log payload attached to every commit.
type ChangedKey struct {
	Namespace *string
	Key       string
	Deleted   bool
}

// encodeChangedKeys serializes a changed-key list for the transaction log.
// Layout: uint32 count, then per entry: byte hasNamespace, [uint32 len,
// bytes]*2 (namespace if present, key), byte deleted.
func encodeChangedKeys(keys []ChangedKey) []byte {
	var buf []byte
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(keys)))
	buf = append(buf, countBuf[:]...)

	putString := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, s...)
	}

	for _, ck := range keys {
		if ck.Namespace != nil {
			buf = append(buf, 1)
			putString(*ck.Namespace)
		} else {
			buf = append(buf, 0)
		}
		putString(ck.Key)
		if ck.Deleted {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}
