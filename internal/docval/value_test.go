package docval

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_UnmarshalJSON_Scalars(t *testing.T) {
	tests := []struct {
		name string
		json string
		kind Kind
	}{
		{"null", `null`, KindNull},
		{"bool", `true`, KindBool},
		{"int", `42`, KindInt},
		{"float", `3.14`, KindFloat},
		{"string", `"hello"`, KindString},
		{"array", `[1,2,3]`, KindArray},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var v Value
			require.NoError(t, json.Unmarshal([]byte(tc.json), &v))
			assert.Equal(t, tc.kind, v.Kind)
		})
	}
}

func TestValue_UnmarshalJSON_RejectsObject(t *testing.T) {
	var v Value
	err := json.Unmarshal([]byte(`{"a":1}`), &v)
	require.Error(t, err)
}

func TestValue_MarshalJSON_RoundTrips(t *testing.T) {
	original := FromArray([]Value{FromInt(1), FromString("x"), Null})

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var parsed Value
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, original, parsed)
}

func TestValue_Interface(t *testing.T) {
	assert.Nil(t, Null.Interface())
	assert.Equal(t, true, FromBool(true).Interface())
	assert.Equal(t, int64(7), FromInt(7).Interface())
	assert.Equal(t, "s", FromString("s").Interface())
	assert.Equal(t, []interface{}{int64(1), int64(2)}, FromArray([]Value{FromInt(1), FromInt(2)}).Interface())
}

func TestValue_AsFloat32Vector(t *testing.T) {
	v := FromArray([]Value{FromFloat(1.5), FromInt(2)})

	out, err := v.AsFloat32Vector()

	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 2.0}, out)
}

func TestValue_AsFloat32Vector_RejectsNonNumeric(t *testing.T) {
	v := FromArray([]Value{FromString("x")})

	_, err := v.AsFloat32Vector()

	assert.Error(t, err)
}

func TestValue_AsFloat32Vector_RejectsNonArray(t *testing.T) {
	_, err := FromInt(1).AsFloat32Vector()
	assert.Error(t, err)
}

func TestValue_AsStringArray(t *testing.T) {
	v := FromArray([]Value{FromString("a"), FromString("b")})

	out, err := v.AsStringArray()

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestValue_AsStringArray_RejectsNonString(t *testing.T) {
	v := FromArray([]Value{FromInt(1)})

	_, err := v.AsStringArray()

	assert.Error(t, err)
}

func TestDocument_SortedFieldNames(t *testing.T) {
	doc := Document{"zeta": FromInt(1), "alpha": FromInt(2), "mid": FromInt(3)}

	names := doc.SortedFieldNames()

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}
