package config

import "fmt"

// fromGo converts a decoded Go value (as produced by encoding/json,
// yaml.v3, or go-toml/v2, all of which decode into the same family of
// map[string]any / []any / scalar shapes) into a Value tree.
func fromGo(x any) (*Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case []any:
		items := make([]*Value, len(t))
		for i, elem := range t {
			v, err := fromGo(elem)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return List(items...), nil
	case map[string]any:
		m := Map()
		for _, k := range mapKeysInOrder(t) {
			v, err := fromGo(t[k])
			if err != nil {
				return nil, err
			}
			m.Set(k, v)
		}
		return m, nil
	case map[any]any:
		// yaml.v3 can produce map[string]interface{} directly when keys
		// are strings; map[any]any only shows up for non-string keys,
		// which configs never use. Stringify defensively rather than
		// erroring the whole load.
		m := Map()
		for k, val := range t {
			v, err := fromGo(val)
			if err != nil {
				return nil, err
			}
			m.Set(fmt.Sprintf("%v", k), v)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("config: unsupported decoded type %T", x)
	}
}

// mapKeysInOrder is a seam for key ordering; plain decode into
// map[string]any has no stable order, so callers that care (YAML) walk a
// yaml.Node tree instead and never reach this path. JSON/TOML configs
// are typically short enough that the lost order is cosmetic only.
func mapKeysInOrder(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// toGo converts a Value tree back into the plain Go shapes the format
// encoders expect.
func toGo(v *Value) any {
	if v == nil {
		return nil
	}
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, elem := range v.list {
			out[i] = toGo(elem)
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m.keys))
		for _, k := range v.m.keys {
			out[k] = toGo(v.m.values[k])
		}
		return out
	default:
		return nil
	}
}
