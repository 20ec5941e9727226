package values

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/davidthor/pypes/pkg/errors"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		val  cty.Value
	}{
		{"string", cty.StringVal("hello")},
		{"number", cty.NumberIntVal(42)},
		{"float", cty.NumberFloatVal(2.5)},
		{"bool", cty.True},
		{"null option", cty.NullVal(cty.String)},
		{"list", cty.ListVal([]cty.Value{cty.StringVal("9am"), cty.StringVal("10am")})},
		{"empty list", cty.ListValEmpty(cty.Number)},
		{"tuple", cty.TupleVal([]cty.Value{cty.StringVal("x"), cty.NumberIntVal(1)})},
		{"record", cty.ObjectVal(map[string]cty.Value{
			"start": cty.StringVal("9:00"),
			"end":   cty.StringVal("9:30"),
			"busy":  cty.False,
		})},
		{"nested", cty.ObjectVal(map[string]cty.Value{
			"slots": cty.ListVal([]cty.Value{
				cty.ObjectVal(map[string]cty.Value{"start": cty.StringVal("9:00")}),
			}),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ToJSON(tt.val)
			require.NoError(t, err)

			back, err := FromJSON(data, tt.val.Type())
			require.NoError(t, err)
			assert.True(t, tt.val.RawEquals(back),
				"round trip changed value: %s", cmp.Diff(tt.val.GoString(), back.GoString()))
		})
	}
}

func TestToJSON_Shapes(t *testing.T) {
	data, err := ToJSON(cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(data))

	data, err = ToJSON(cty.ObjectVal(map[string]cty.Value{"tag": cty.StringVal("ok"), "val": cty.NumberIntVal(1)}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag":"ok","val":1}`, string(data))
}

func TestFromJSON_Dynamic(t *testing.T) {
	v, err := FromJSON([]byte(`{"a": [1, 2], "b": "x"}`), cty.DynamicPseudoType)
	require.NoError(t, err)
	assert.True(t, v.Type().IsObjectType())
	assert.Equal(t, "x", v.GetAttr("b").AsString())
}

func TestFromJSON_ConvertsCompatibleShapes(t *testing.T) {
	// A JSON number fits a string slot through conversion.
	v, err := FromJSON([]byte(`42`), cty.String)
	require.NoError(t, err)
	assert.Equal(t, "42", v.AsString())
}

func TestFromJSON_Mismatch(t *testing.T) {
	_, err := FromJSON([]byte(`{"not": "a number"}`), cty.Number)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeArgTypeMismatch, errors.CodeOf(err))
}

func TestEncodeArgs(t *testing.T) {
	data, err := EncodeArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	data, err = EncodeArgs([]cty.Value{cty.StringVal("x"), cty.NumberIntVal(3)})
	require.NoError(t, err)
	assert.JSONEq(t, `["x",3]`, string(data))
}

func TestDecodeResults(t *testing.T) {
	results, err := DecodeResults([]byte(`["hello"]`), []cty.Type{cty.String})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hello", results[0].AsString())

	// No declared results: payload ignored.
	results, err = DecodeResults([]byte(`["ignored"]`), nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Missing trailing results decode as nulls.
	results, err = DecodeResults([]byte(`[]`), []cty.Type{cty.String})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsNull())

	// Non-array payload is rejected.
	_, err = DecodeResults([]byte(`"scalar"`), []cty.Type{cty.String})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeArgTypeMismatch, errors.CodeOf(err))
}
