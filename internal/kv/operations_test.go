package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueOfNilEntryIsNilValue(t *testing.T) {
	assert.Nil(t, valueOf(nil))
}

func TestValueOfReturnsEntryValue(t *testing.T) {
	e := &Entry{Value: Bytes("x")}
	assert.Equal(t, Bytes("x"), valueOf(e))
}

func TestValidateRejectsNaNOnly(t *testing.T) {
	assert.NoError(t, validate(Bytes("x")))
	assert.NoError(t, validate(Int64(1)))
	assert.NoError(t, validate(Float64(1.5)))

	var zero float64
	assert.ErrorIs(t, validate(Float64(zero/zero)), ErrValueInvalid)
}

func TestFullKeyAndSplitFullKeyRoundTrip(t *testing.T) {
	fk := fullKey("ns", "key")
	ns, key := splitFullKey(fk)
	assert.Equal(t, "ns", ns)
	assert.Equal(t, "key", key)
}

func TestFullKeyWithEmptyNamespace(t *testing.T) {
	fk := fullKey("", "key")
	ns, key := splitFullKey(fk)
	assert.Equal(t, "", ns)
	assert.Equal(t, "key", key)
}

func TestEntryKeyFromFullKeyNilsEmptyNamespace(t *testing.T) {
	k := entryKeyFromFullKey(fullKey("", "key"))
	assert.Nil(t, k.Namespace)
	assert.Equal(t, "key", k.Key)

	k2 := entryKeyFromFullKey(fullKey("ns", "key"))
	if assert.NotNil(t, k2.Namespace) {
		assert.Equal(t, "ns", *k2.Namespace)
	}
}
