// Package schema validates request bodies before they reach the service.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ValidationError lists everything wrong with a document. InvalidKeys
// holds properties the schema does not allow; Problems holds one
// message per property with a bad or missing value.
type ValidationError struct {
	InvalidKeys []string
	Problems    []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.InvalidKeys) > 0 {
		parts = append(parts, "The following keys are invalid: "+strings.Join(e.InvalidKeys, ", "))
	}
	if len(e.Problems) > 0 {
		parts = append(parts, "The following properties have invalid values:\n  "+strings.Join(e.Problems, "\n  "))
	}
	return strings.Join(parts, "\n")
}

func (e *ValidationError) empty() bool {
	return len(e.InvalidKeys) == 0 && len(e.Problems) == 0
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Validate checks a document against a JSON Schema (draft-07 subset).
// Returns nil if validation passes or the schema is nil, otherwise a
// *ValidationError describing every violation found.
//
// Supported JSON Schema keywords:
//   - type (string, number, integer, boolean, object, array, null)
//   - properties, required, additionalProperties
//   - items (for arrays)
//   - minimum, maximum
//   - minLength, maxLength
//   - enum
func Validate(schema map[string]any, doc any) error {
	if schema == nil {
		return nil
	}
	verr := &ValidationError{}
	validateValue(schema, doc, "", verr)
	if verr.empty() {
		return nil
	}
	return verr
}

func validateValue(schema map[string]any, value any, path string, verr *ValidationError) {
	name := path
	if name == "" {
		name = "body"
	}

	if t, ok := schema["type"].(string); ok && !typeMatches(t, value) {
		verr.add("%s must be %s.", name, article(t))
		return
	}

	if enumList, ok := schema["enum"].([]any); ok && !inEnum(enumList, value) {
		verr.add("%s must be one of %v.", name, enumList)
		return
	}

	switch v := value.(type) {
	case map[string]any:
		validateObject(schema, v, path, verr)
	case []any:
		validateArray(schema, v, name, verr)
	case string:
		validateString(schema, v, name, verr)
	case float64:
		validateNumber(schema, v, name, verr)
	case json.Number:
		f, _ := v.Float64()
		validateNumber(schema, f, name, verr)
	}
}

func article(t string) string {
	switch t {
	case "object", "array", "integer":
		return "an " + t
	}
	return "a " + t
}

func typeMatches(expected string, value any) bool {
	actual := jsonType(value)
	switch expected {
	case "integer":
		if f, ok := value.(float64); ok {
			return f == float64(int64(f))
		}
		return actual == "integer"
	case "number":
		return actual == "number" || actual == "integer"
	}
	return actual == expected
}

func jsonType(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case int, int64:
		return "integer"
	default:
		return reflect.TypeOf(v).String()
	}
}

func inEnum(allowed []any, value any) bool {
	for _, a := range allowed {
		if reflect.DeepEqual(a, value) {
			return true
		}
	}
	return false
}

func validateObject(schema map[string]any, obj map[string]any, path string, verr *ValidationError) {
	propsMap, _ := schema["properties"].(map[string]any)

	if ap, ok := schema["additionalProperties"].(bool); ok && !ap {
		var extra []string
		for field := range obj {
			if _, defined := propsMap[field]; !defined {
				extra = append(extra, join(path, field))
			}
		}
		sort.Strings(extra)
		verr.InvalidKeys = append(verr.InvalidKeys, extra...)
	}

	if reqList, ok := schema["required"].([]any); ok {
		for _, r := range reqList {
			field, ok := r.(string)
			if !ok {
				continue
			}
			if _, exists := obj[field]; !exists {
				verr.add("%s is required.", join(path, field))
			}
		}
	}

	// Walk properties in a fixed order so messages are stable.
	fields := make([]string, 0, len(propsMap))
	for field := range propsMap {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		val, exists := obj[field]
		if !exists {
			continue
		}
		ps, ok := propsMap[field].(map[string]any)
		if !ok {
			continue
		}
		validateValue(ps, val, join(path, field), verr)
	}
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func validateArray(schema map[string]any, arr []any, name string, verr *ValidationError) {
	if v, ok := toFloat(schema["minItems"]); ok && float64(len(arr)) < v {
		verr.add("%s must have at least %v items.", name, v)
	}
	if v, ok := toFloat(schema["maxItems"]); ok && float64(len(arr)) > v {
		verr.add("%s must have at most %v items.", name, v)
	}
	if itemSchema, ok := schema["items"].(map[string]any); ok {
		for i, elem := range arr {
			validateValue(itemSchema, elem, fmt.Sprintf("%s[%d]", name, i), verr)
		}
	}
}

func validateString(schema map[string]any, s string, name string, verr *ValidationError) {
	if v, ok := toFloat(schema["minLength"]); ok && float64(len(s)) < v {
		verr.add("%s must be at least %v characters long.", name, v)
	}
	if v, ok := toFloat(schema["maxLength"]); ok && float64(len(s)) > v {
		verr.add("%s must be at most %v characters long.", name, v)
	}
}

func validateNumber(schema map[string]any, n float64, name string, verr *ValidationError) {
	if v, ok := toFloat(schema["minimum"]); ok && n < v {
		verr.add("%s must be at least %v.", name, v)
	}
	if v, ok := toFloat(schema["maximum"]); ok && n > v {
		verr.add("%s must be at most %v.", name, v)
	}
}

func toFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
