package graph

// GetString extracts a string value from a Record.
func GetString(r Record, key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// GetInt extracts an int value from a Record.
// Handles int, int64, and float64 (truncated).
func GetInt(r Record, key string) int {
	switch n := r[key].(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

// GetFloat extracts a float64 value from a Record.
func GetFloat(r Record, key string) float64 {
	switch n := r[key].(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

// GetFloat32Slice extracts a vector stored as a list property.
func GetFloat32Slice(r Record, key string) []float32 {
	switch s := r[key].(type) {
	case []float32:
		return s
	case []float64:
		out := make([]float32, len(s))
		for i, v := range s {
			out[i] = float32(v)
		}
		return out
	case []any:
		out := make([]float32, 0, len(s))
		for _, v := range s {
			switch f := v.(type) {
			case float64:
				out = append(out, float32(f))
			case int64:
				out = append(out, float32(f))
			}
		}
		return out
	}
	return nil
}
