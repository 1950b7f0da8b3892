package session

// CopyValue returns a deep copy of the JSON-shaped parts of v: nested
// map[string]any and []any values are copied recursively. Other values,
// including scalars and opaque references, are returned as is.
func CopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return val
		}
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = CopyValue(e)
		}
		return out
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = CopyValue(e)
		}
		return out
	default:
		return v
	}
}
