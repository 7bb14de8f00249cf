package kvclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/torua-kv/internal/kv"
)

func TestValueDTORoundTrip(t *testing.T) {
	n := int64(42)
	u := uint64(7)
	f := 3.5

	cases := []ValueDTO{
		{Type: TypeBytes, Bytes: "hello"},
		{Type: TypeInt64, Int64: &n},
		{Type: TypeUint64, Uint64: &u},
		{Type: TypeFloat64, Float64: &f},
	}

	for _, dto := range cases {
		t.Run(dto.Type, func(t *testing.T) {
			require.NoError(t, dto.Validate())

			v, err := dto.ToKV()
			require.NoError(t, err)

			back := FromKV(v)
			require.NotNil(t, back)
			assert.Equal(t, dto, *back)
		})
	}
}

func TestValueDTOValidateRejectsMissingField(t *testing.T) {
	assert.Error(t, ValueDTO{Type: TypeInt64}.Validate())
	assert.Error(t, ValueDTO{Type: TypeUint64}.Validate())
	assert.Error(t, ValueDTO{Type: TypeFloat64}.Validate())
	assert.Error(t, ValueDTO{Type: "nonsense"}.Validate())
}

func TestFromKVNilValue(t *testing.T) {
	assert.Nil(t, FromKV(nil))
}

func TestResponseFromOutputKinds(t *testing.T) {
	cases := []struct {
		kind kv.OutputKind
		want string
	}{
		{kv.OutputValue, "value"},
		{kv.OutputInserted, "inserted"},
		{kv.OutputUpdated, "updated"},
		{kv.OutputDeleted, "deleted"},
		{kv.OutputNotChanged, "not_changed"},
	}
	for _, c := range cases {
		resp := ResponseFromOutput(kv.Output{Kind: c.kind, Value: kv.Int64(1)})
		assert.Equal(t, c.want, resp.Kind)
		require.NotNil(t, resp.Value)
		assert.Equal(t, int64(1), *resp.Value.Int64)
	}
}
