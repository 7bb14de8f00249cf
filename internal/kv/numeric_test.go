package kv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsInt64LossyClampsOutOfRange(t *testing.T) {
	assert.Equal(t, int64(5), asInt64Lossy(Int64(5)))
	assert.Equal(t, int64(math.MaxInt64), asInt64Lossy(Uint64(math.MaxUint64)))
	assert.Equal(t, int64(math.MaxInt64), asInt64Lossy(Float64(1e30)))
	assert.Equal(t, int64(math.MinInt64), asInt64Lossy(Float64(-1e30)))
}

func TestAsUint64LossyClampsNegative(t *testing.T) {
	assert.Equal(t, uint64(5), asUint64Lossy(Uint64(5)))
	assert.Equal(t, uint64(0), asUint64Lossy(Int64(-1)))
	assert.Equal(t, uint64(5), asUint64Lossy(Int64(5)))
	assert.Equal(t, uint64(0), asUint64Lossy(Float64(-1)))
}

func TestAsFloat64LossyIsExactForIntegers(t *testing.T) {
	assert.Equal(t, float64(5), asFloat64Lossy(Int64(5)))
	assert.Equal(t, float64(5), asFloat64Lossy(Uint64(5)))
	assert.Equal(t, 2.5, asFloat64Lossy(Float64(2.5)))
}

func TestSaturatingAddI64(t *testing.T) {
	assert.Equal(t, int64(math.MaxInt64), saturatingAddI64(math.MaxInt64, 1))
	assert.Equal(t, int64(math.MinInt64), saturatingAddI64(math.MinInt64, -1))
	assert.Equal(t, int64(10), saturatingAddI64(4, 6))
}

func TestSaturatingSubI64(t *testing.T) {
	assert.Equal(t, int64(math.MinInt64), saturatingSubI64(math.MinInt64, 1))
	assert.Equal(t, int64(math.MaxInt64), saturatingSubI64(math.MaxInt64, -1))
	assert.Equal(t, int64(4), saturatingSubI64(10, 6))
}

func TestSaturatingAddU64Overflow(t *testing.T) {
	assert.Equal(t, uint64(math.MaxUint64), saturatingAddU64(math.MaxUint64, 1))
	assert.Equal(t, uint64(10), saturatingAddU64(4, 6))
}

func TestSaturatingSubU64Underflow(t *testing.T) {
	assert.Equal(t, uint64(0), saturatingSubU64(0, 1))
	assert.Equal(t, uint64(4), saturatingSubU64(10, 6))
}
