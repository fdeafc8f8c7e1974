package config

import (
	"fmt"
	"sort"

	"github.com/danmuck/nodectl/internal/signal"
)

// Properties converts a decoded TOML table into component options. Keys are
// applied in sorted order since TOML tables carry no order.
func Properties(raw map[string]any) (*signal.Options, error) {
	out := signal.NewOptions()
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := toValue(raw[k])
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		out.Set(k, v)
	}
	return out, nil
}

func toValue(raw any) (signal.Value, error) {
	switch v := raw.(type) {
	case string:
		return signal.StringValue(v), nil
	case bool:
		return signal.BoolValue(v), nil
	case int64:
		return signal.IntValue(v), nil
	case int:
		return signal.IntValue(int64(v)), nil
	case float64:
		return signal.FloatValue(v), nil
	case []any:
		return toArray(v)
	default:
		return signal.Value{}, fmt.Errorf("unsupported type %T", raw)
	}
}

// toArray requires every element to share the first element's type. An
// empty array becomes an empty string array.
func toArray(in []any) (signal.Value, error) {
	if len(in) == 0 {
		return signal.StringsValue(nil), nil
	}
	switch in[0].(type) {
	case string:
		out := make([]string, 0, len(in))
		for i, e := range in {
			s, ok := e.(string)
			if !ok {
				return signal.Value{}, fmt.Errorf("mixed array at index %d", i)
			}
			out = append(out, s)
		}
		return signal.StringsValue(out), nil
	case int64:
		out := make([]int64, 0, len(in))
		for i, e := range in {
			n, ok := e.(int64)
			if !ok {
				return signal.Value{}, fmt.Errorf("mixed array at index %d", i)
			}
			out = append(out, n)
		}
		return signal.IntsValue(out), nil
	case float64:
		out := make([]float64, 0, len(in))
		for i, e := range in {
			switch n := e.(type) {
			case float64:
				out = append(out, n)
			case int64:
				out = append(out, float64(n))
			default:
				return signal.Value{}, fmt.Errorf("mixed array at index %d", i)
			}
		}
		return signal.FloatsValue(out), nil
	case bool:
		out := make([]bool, 0, len(in))
		for i, e := range in {
			b, ok := e.(bool)
			if !ok {
				return signal.Value{}, fmt.Errorf("mixed array at index %d", i)
			}
			out = append(out, b)
		}
		return signal.BoolsValue(out), nil
	default:
		return signal.Value{}, fmt.Errorf("unsupported array element %T", in[0])
	}
}
