package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAnyToAnyRoundTrip(t *testing.T) {
	in := map[string]any{
		"name":   "alice",
		"age":    float64(30),
		"active": true,
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"k": "v"},
		"empty":  nil,
	}
	attr := FromAny(in)
	require.Equal(t, AttrMap, attr.Kind)
	out := attr.ToAny().(map[string]any)
	assert.Equal(t, in, out)
}

func TestAttrValueJSONRoundTrip(t *testing.T) {
	attr := MapAttr(map[string]AttrValue{
		"n": NumberAttr(42),
		"s": StringAttr("hi"),
		"b": BoolAttr(false),
		"l": ListAttr([]AttrValue{StringAttr("x"), NumberAttr(1)}),
	})

	b, err := json.Marshal(attr)
	require.NoError(t, err)

	var decoded AttrValue
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, attr.ToAny(), decoded.ToAny())
}

func TestFromAnyScalarFallback(t *testing.T) {
	attr := FromAny(int32(7))
	assert.Equal(t, AttrNumber, attr.Kind)
	assert.Equal(t, float64(7), attr.Num)
}

func TestNullAttr(t *testing.T) {
	attr := FromAny(nil)
	assert.Equal(t, AttrNull, attr.Kind)
	assert.Nil(t, attr.ToAny())
}
