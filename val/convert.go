package val

import (
	"encoding/json"
	"fmt"
	"math"
)

// FromGo converts a plain Go value, as produced by yaml.v3 or
// encoding/json decoding into any, to a Value. Integral kinds map to
// Int, floating kinds to Float, nil to Null. A Value passes through
// unchanged. Unsupported types are errors.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return uintToValue(uint64(val))
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		return uintToValue(val)
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		return numberToValue(val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		if isRemovedMarker(obj) {
			return Removed{}, nil
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// MustFromGo is FromGo for literals known to convert; panics on error.
func MustFromGo(v any) Value {
	out, err := FromGo(v)
	if err != nil {
		panic(fmt.Sprintf("val: %v", err))
	}
	return out
}

func uintToValue(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("unsigned value out of int64 range: %d", u)
	}
	return Int(u), nil
}

// ToGo converts a Value to plain Go data: Object to map[string]any,
// Array to []any, scalars to their Go kinds, Null to nil. The removal
// marker converts to its reserved object form so patches stay
// representable.
func ToGo(v Value) any {
	switch val := v.(type) {
	case Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	case Removed:
		return map[string]any{removedKey: true}
	default:
		return nil
	}
}
