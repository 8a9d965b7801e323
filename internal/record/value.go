package record

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
)

// Record is a single document in a store.
type Record map[string]any

// Kind classifies a record value for ordering.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindOther
)

// KindOf returns the Kind of a (normalized or raw) value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case string:
		return KindString
	case []any:
		return KindArray
	case map[string]any, Record:
		return KindObject
	}
	if _, ok := toFloat(v); ok {
		return KindNumber
	}
	return KindOther
}

// Clone returns a deep copy of the record. A nil record clones to nil.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = Clone(v)
	}
	return out
}

// Clone deep copies maps and slices inside v. Scalars are returned as-is.
func Clone(v any) any {
	switch val := v.(type) {
	case Record:
		return map[string]any(val.Clone())
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	default:
		return v
	}
}

// AsObject returns v as a plain object if it is one.
func AsObject(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case Record:
		return map[string]any(val), true
	}
	return nil, false
}

// IsPlainObject reports whether v is a plain nested structure (an object).
func IsPlainObject(v any) bool {
	_, ok := AsObject(v)
	return ok
}

// Normalize converts v into the record value shape.
// Integer kinds become int64, float kinds float64, json.Number the narrowest
// of the two, slices []any and string-keyed maps map[string]any.
// Values of other types are returned unchanged.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, string, int64, float64:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return normalizeUint(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return normalizeUint(val)
	case float32:
		return float64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case Record:
		return normalizeMap(map[string]any(val))
	case map[string]any:
		return normalizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Normalize(elem)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			// []byte stays opaque.
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	}
	return v
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, elem := range m {
		out[k] = Normalize(elem)
	}
	return out
}

// From converts a map into a normalized Record.
func From(m map[string]any) Record {
	if m == nil {
		return nil
	}
	return Record(normalizeMap(m))
}

// toFloat extracts a numeric value.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint8:
		return float64(n), true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

// Equal reports deep equality of two record values.
// Numbers compare by value regardless of Go type.
func Equal(a, b any) bool {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return false
	}
	switch ka {
	case KindNull:
		return true
	case KindBool:
		return a.(bool) == b.(bool)
	case KindNumber:
		return compareNumbers(a, b) == 0
	case KindString:
		return a.(string) == b.(string)
	case KindArray:
		xa, xb := a.([]any), b.([]any)
		if len(xa) != len(xb) {
			return false
		}
		for i := range xa {
			if !Equal(xa[i], xb[i]) {
				return false
			}
		}
		return true
	case KindObject:
		oa, _ := AsObject(a)
		ob, _ := AsObject(b)
		if len(oa) != len(ob) {
			return false
		}
		for k, va := range oa {
			vb, ok := ob[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

// Comparable reports whether a and b are scalars of the same kind, so that
// ordering comparisons between them are meaningful.
func Comparable(a, b any) bool {
	ka := KindOf(a)
	if ka != KindOf(b) {
		return false
	}
	return ka == KindBool || ka == KindNumber || ka == KindString
}

// Compare orders two record values. Values of different kinds order by kind:
// nil < bool < number < string < array < object < other.
func Compare(a, b any) int {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return cmp.Compare(ka, kb)
	}
	switch ka {
	case KindNull:
		return 0
	case KindBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case KindNumber:
		return compareNumbers(a, b)
	case KindString:
		return strings.Compare(a.(string), b.(string))
	case KindArray:
		xa, xb := a.([]any), b.([]any)
		for i := 0; i < len(xa) && i < len(xb); i++ {
			if c := Compare(xa[i], xb[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(xa), len(xb))
	case KindObject:
		oa, _ := AsObject(a)
		ob, _ := AsObject(b)
		keysA, keysB := sortedKeys(oa), sortedKeys(ob)
		for i := 0; i < len(keysA) && i < len(keysB); i++ {
			if c := strings.Compare(keysA[i], keysB[i]); c != 0 {
				return c
			}
			if c := Compare(oa[keysA[i]], ob[keysB[i]]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(keysA), len(keysB))
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func compareNumbers(a, b any) int {
	// Exact comparison when both are integers, to avoid float rounding.
	if ia, ok := toInt(a); ok {
		if ib, ok := toInt(b); ok {
			return cmp.Compare(ia, ib)
		}
	}
	fa, _ := toFloat(a)
	fb, _ := toFloat(b)
	return cmp.Compare(fa, fb)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Scalar renders a scalar value as an identity string: strings as-is,
// integral numbers without a fraction, other numbers in shortest form.
// Returns false for nil and composite values.
func Scalar(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	}
	if i, ok := toInt(v); ok {
		return fmt.Sprintf("%d", i), true
	}
	if f, ok := toFloat(v); ok {
		return formatFloat(f), true
	}
	return "", false
}
