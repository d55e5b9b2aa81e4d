package transform

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"hookrelay/internal/pkg/fieldpath"
	"hookrelay/internal/platform/models"
)

const (
	Uppercase    = "uppercase"
	Lowercase    = "lowercase"
	Trim         = "trim"
	JSONParse    = "json-parse"
	Base64Encode = "base64-encode"
)

// ValueTransforms lists the per-field transforms a mapping may name.
var ValueTransforms = []string{Uppercase, Lowercase, Trim, JSONParse, Base64Encode}

var placeholder = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Apply reshapes body per cfg: template, then mappings, then removals, then
// additions. The input is never mutated. A template that cannot be parsed is
// skipped and the remaining steps run on a copy of the body; the parse error
// is returned alongside that result.
func Apply(cfg models.TransformationConfig, body interface{}) (interface{}, error) {
	result := fieldpath.Clone(body)

	var templateErr error
	if strings.TrimSpace(cfg.Template) != "" {
		var tmpl interface{}
		if err := json.Unmarshal([]byte(cfg.Template), &tmpl); err != nil {
			templateErr = fmt.Errorf("parse template: %w", err)
		} else {
			result = substitute(tmpl, body)
		}
	}

	for _, m := range cfg.Mappings {
		value, found := fieldpath.Lookup(body, m.From)
		if !found {
			continue
		}
		fieldpath.Set(result, m.To, convert(fieldpath.Clone(value), m.Transform))
	}

	for _, path := range cfg.RemoveFields {
		fieldpath.Delete(result, path)
	}

	for _, add := range cfg.AddFields {
		fieldpath.Set(result, add.Path, fieldpath.Clone(add.Value))
	}

	return result, templateErr
}

// substitute resolves {{path}} placeholders inside template strings against
// the original body. A string holding only a placeholder takes the typed value.
func substitute(node interface{}, body interface{}) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		for k, child := range v {
			v[k] = substitute(child, body)
		}
		return v
	case []interface{}:
		for i, child := range v {
			v[i] = substitute(child, body)
		}
		return v
	case string:
		if m := placeholder.FindStringSubmatch(v); m != nil && m[0] == strings.TrimSpace(v) {
			value, found := fieldpath.Lookup(body, m[1])
			if !found {
				return ""
			}
			return fieldpath.Clone(value)
		}
		return placeholder.ReplaceAllStringFunc(v, func(match string) string {
			path := placeholder.FindStringSubmatch(match)[1]
			value, found := fieldpath.Lookup(body, path)
			if !found {
				return ""
			}
			return fieldpath.String(value)
		})
	default:
		return v
	}
}

func convert(value interface{}, name string) interface{} {
	switch name {
	case Uppercase:
		if s, ok := value.(string); ok {
			return strings.ToUpper(s)
		}
	case Lowercase:
		if s, ok := value.(string); ok {
			return strings.ToLower(s)
		}
	case Trim:
		if s, ok := value.(string); ok {
			return strings.TrimSpace(s)
		}
	case JSONParse:
		if s, ok := value.(string); ok {
			var parsed interface{}
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				return parsed
			}
		}
	case Base64Encode:
		return base64.StdEncoding.EncodeToString([]byte(fieldpath.String(value)))
	}
	return value
}
