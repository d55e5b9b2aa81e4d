// Package fieldpath resolves dotted paths ("data.items.0.id") inside decoded
// JSON values built from map[string]interface{}, []interface{} and scalars.
package fieldpath

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

func split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Lookup returns the value at path. The boolean is false when any segment is
// missing, which keeps "absent" distinct from a present JSON null.
func Lookup(root interface{}, path string) (interface{}, bool) {
	cur := root
	for _, seg := range split(path) {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func isContainer(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	}
	return false
}

// Set writes value at path, creating intermediate objects as needed. It
// reports false when the path runs through a scalar root or an out of range
// list index.
func Set(root interface{}, path string, value interface{}) bool {
	segs := split(path)
	if len(segs) == 0 {
		return false
	}

	cur := root
	for i, seg := range segs {
		last := i == len(segs)-1
		switch node := cur.(type) {
		case map[string]interface{}:
			if last {
				node[seg] = value
				return true
			}
			next, ok := node[seg]
			if !ok || !isContainer(next) {
				next = map[string]interface{}{}
				node[seg] = next
			}
			cur = next
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return false
			}
			if last {
				node[idx] = value
				return true
			}
			next := node[idx]
			if !isContainer(next) {
				next = map[string]interface{}{}
				node[idx] = next
			}
			cur = next
		default:
			return false
		}
	}
	return false
}

// Delete removes the object key at path. Missing paths and list elements are
// left untouched.
func Delete(root interface{}, path string) bool {
	segs := split(path)
	if len(segs) == 0 {
		return false
	}
	parent, ok := Lookup(root, strings.Join(segs[:len(segs)-1], "."))
	if !ok {
		return false
	}
	m, ok := parent.(map[string]interface{})
	if !ok {
		return false
	}
	if _, exists := m[segs[len(segs)-1]]; !exists {
		return false
	}
	delete(m, segs[len(segs)-1])
	return true
}

// Clone deep-copies maps and lists. Scalars are returned as is.
func Clone(v interface{}) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(node))
		for k, val := range node {
			out[k] = Clone(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(node))
		for i, val := range node {
			out[i] = Clone(val)
		}
		return out
	default:
		return v
	}
}

// String renders v the way a JSON document would print it: integral numbers
// without a fraction, null as "null", objects and lists as compact JSON.
func String(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}

// Number coerces v to a float64. Anything that is not a number or a numeric
// string yields NaN.
func Number(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
