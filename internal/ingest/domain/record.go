package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is one untyped ingested row as delivered by the upstream agent.
// Field mapping per logical type happens in the backing store; the core only
// checks required fields and routes to a table.
type Record map[string]any

// String returns the trimmed string value for key, or "" when absent or not a
// string.
func (r Record) String(key string) string {
	v, ok := r[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// Excerpt renders the record as JSON truncated to 200 bytes, for bounded
// error reporting on large batches.
func (r Record) Excerpt() string {
	const maxExcerpt = 200

	raw, err := json.Marshal(r)
	if err != nil {
		return "<unrenderable record>"
	}
	if len(raw) <= maxExcerpt {
		return string(raw)
	}
	return string(raw[:maxExcerpt])
}

// numeric reports whether the value under key can be read as a number.
// Absent values are fine; the store applies a zero default.
func (r Record) numeric(key string) bool {
	v, ok := r[key]
	if !ok || v == nil {
		return true
	}
	switch n := v.(type) {
	case float64, float32, int, int32, int64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return err == nil
	default:
		return false
	}
}

// integer reports whether the value under key is present and coercible to an
// integer.
func (r Record) integer(key string) bool {
	v, ok := r[key]
	if !ok || v == nil {
		return false
	}
	switch n := v.(type) {
	case int, int32, int64:
		return true
	case float64:
		return n == float64(int64(n))
	case json.Number:
		_, err := n.Int64()
		return err == nil
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return err == nil
	default:
		return false
	}
}
