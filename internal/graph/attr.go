// Package graph implements the typed node/edge memory store (C3) on
// top of the persistence layer (C2).
package graph

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// AttrKind discriminates the AttrValue variant in play.
type AttrKind string

const (
	AttrString AttrKind = "string"
	AttrNumber AttrKind = "number"
	AttrBool   AttrKind = "bool"
	AttrList   AttrKind = "list"
	AttrMap    AttrKind = "map"
	AttrNull   AttrKind = "null"
)

// AttrValue is a bounded sum type for GraphNode.attributes values.
// Per DESIGN NOTES §9 we never store a raw map[string]interface{} on
// the model; every value entering the graph is coerced into one of
// these variants at the boundary.
type AttrValue struct {
	Kind AttrKind
	Str  string
	Num  float64
	Bool bool
	List []AttrValue
	Map  map[string]AttrValue
}

func StringAttr(s string) AttrValue { return AttrValue{Kind: AttrString, Str: s} }
func NumberAttr(n float64) AttrValue { return AttrValue{Kind: AttrNumber, Num: n} }
func BoolAttr(b bool) AttrValue     { return AttrValue{Kind: AttrBool, Bool: b} }
func ListAttr(v []AttrValue) AttrValue { return AttrValue{Kind: AttrList, List: v} }
func MapAttr(m map[string]AttrValue) AttrValue { return AttrValue{Kind: AttrMap, Map: m} }
func NullAttr() AttrValue { return AttrValue{Kind: AttrNull} }

// FromAny coerces an arbitrary decoded value (as produced by
// encoding/json or mapstructure) into an AttrValue, using spf13/cast
// for the scalar coercions at this single boundary.
func FromAny(v any) AttrValue {
	switch t := v.(type) {
	case nil:
		return NullAttr()
	case string:
		return StringAttr(t)
	case bool:
		return BoolAttr(t)
	case []any:
		out := make([]AttrValue, 0, len(t))
		for _, item := range t {
			out = append(out, FromAny(item))
		}
		return ListAttr(out)
	case map[string]any:
		out := make(map[string]AttrValue, len(t))
		for k, item := range t {
			out[k] = FromAny(item)
		}
		return MapAttr(out)
	default:
		if n, err := cast.ToFloat64E(v); err == nil {
			return NumberAttr(n)
		}
		return StringAttr(fmt.Sprintf("%v", v))
	}
}

// ToAny expands an AttrValue back into a plain Go value tree, useful
// when handing data to external callers (LLM prompts, adapters) that
// expect untyped JSON-like structures.
func (a AttrValue) ToAny() any {
	switch a.Kind {
	case AttrString:
		return a.Str
	case AttrNumber:
		return a.Num
	case AttrBool:
		return a.Bool
	case AttrList:
		out := make([]any, 0, len(a.List))
		for _, v := range a.List {
			out = append(out, v.ToAny())
		}
		return out
	case AttrMap:
		out := make(map[string]any, len(a.Map))
		for k, v := range a.Map {
			out[k] = v.ToAny()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler by delegating to the plain
// value representation, keeping the on-disk JSON blob human-readable.
func (a AttrValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler by decoding into a plain
// value tree first and then coercing with FromAny.
func (a *AttrValue) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = FromAny(v)
	return nil
}

// Attributes is the typed key-value bag carried by a GraphNode.
type Attributes map[string]AttrValue

// MarshalJSON/UnmarshalJSON are inherited from the underlying map type
// since AttrValue already implements the Marshaler/Unmarshaler pair.
