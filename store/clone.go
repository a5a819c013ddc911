package store

import "slices"

// Copy returns a deep copy of a record. Maps and slices are copied
// recursively; every other value, including numbers, times and structs,
// keeps its Go type and is copied by assignment.
func Copy(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Copy(x)
	case []any:
		out := slices.Clone(x)
		for i := range out {
			out[i] = copyValue(out[i])
		}
		return out
	case []map[string]any:
		out := slices.Clone(x)
		for i := range out {
			out[i] = Copy(out[i])
		}
		return out
	case []string:
		return slices.Clone(x)
	case []float64:
		return slices.Clone(x)
	case []int:
		return slices.Clone(x)
	}
	return v
}
