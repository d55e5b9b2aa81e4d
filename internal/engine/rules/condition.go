package rules

import (
	"math"
	"reflect"
	"regexp"
	"strings"

	"hookrelay/internal/pkg/fieldpath"
	"hookrelay/internal/platform/models"
)

const (
	OpEquals      = "equals"
	OpContains    = "contains"
	OpStartsWith  = "startsWith"
	OpEndsWith    = "endsWith"
	OpRegex       = "regex"
	OpExists      = "exists"
	OpGreaterThan = "greaterThan"
	OpLessThan    = "lessThan"
)

// Operators lists every supported condition operator.
var Operators = []string{OpEquals, OpContains, OpStartsWith, OpEndsWith, OpRegex, OpExists, OpGreaterThan, OpLessThan}

// IsOperator reports whether op is a known operator.
func IsOperator(op string) bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

// Match evaluates one condition against the request view. An unresolvable
// field, an invalid pattern or an unknown operator all evaluate to false.
func Match(c models.Condition, view *RequestView) bool {
	value, found := fieldpath.Lookup(view.Root(), c.Field)
	if !found {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return equals(value, c.Value)
	case OpContains:
		return strings.Contains(fieldpath.String(value), fieldpath.String(c.Value))
	case OpStartsWith:
		return strings.HasPrefix(fieldpath.String(value), fieldpath.String(c.Value))
	case OpEndsWith:
		return strings.HasSuffix(fieldpath.String(value), fieldpath.String(c.Value))
	case OpRegex:
		pattern, ok := c.Value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(fieldpath.String(value))
	case OpExists:
		return value != nil
	case OpGreaterThan:
		a, b := fieldpath.Number(value), fieldpath.Number(c.Value)
		return !math.IsNaN(a) && !math.IsNaN(b) && a > b
	case OpLessThan:
		a, b := fieldpath.Number(value), fieldpath.Number(c.Value)
		return !math.IsNaN(a) && !math.IsNaN(b) && a < b
	default:
		return false
	}
}

func isComposite(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	}
	return false
}

func equals(actual, expected interface{}) bool {
	if isComposite(actual) || isComposite(expected) {
		return reflect.DeepEqual(actual, expected)
	}
	return fieldpath.String(actual) == fieldpath.String(expected)
}
