package util

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema creates a JSON schema from a Go struct using reflection.
//
// Supported struct tags besides json:
//
//	description:"..."   field description shown to the reasoning provider
//	enum:"a,b,c"        allowed values (string fields)
//	minimum:"1"         inclusive lower bound (numeric fields)
//	maximum:"5"         inclusive upper bound (numeric fields)
//	default:"3"         value applied by ApplyDefaults when absent
//
// Fields without omitempty that are not pointers and carry no default are
// required. The resulting object schema rejects unknown properties.
func CreateSchema(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	properties := make(map[string]any)
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				fieldName = parts[0]
			}
		}

		jsonType := getJSONType(field.Type)
		fieldSchema := map[string]any{
			"type": jsonType,
		}

		if description := field.Tag.Get("description"); description != "" {
			fieldSchema["description"] = description
		}

		if enum := field.Tag.Get("enum"); enum != "" {
			values := strings.Split(enum, ",")
			for j := range values {
				values[j] = strings.TrimSpace(values[j])
			}
			fieldSchema["enum"] = values
		}

		if min, ok := parseBound(field.Tag.Get("minimum")); ok {
			fieldSchema["minimum"] = min
		}

		if max, ok := parseBound(field.Tag.Get("maximum")); ok {
			fieldSchema["maximum"] = max
		}

		def, hasDefault := field.Tag.Lookup("default")
		if hasDefault {
			fieldSchema["default"] = parseDefault(def, jsonType)
		}

		properties[fieldName] = fieldSchema

		if !hasOmitEmpty(jsonTag) && !isPointer(field.Type) && !hasDefault {
			required = append(required, fieldName)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// RequiredFields returns the schema's required list regardless of whether it
// was declared as []string (CreateSchema) or []any (decoded JSON).
func RequiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ValidateParameters validates parameters against a JSON schema.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, fieldName := range RequiredFields(schema) {
		if v, exists := params[fieldName]; !exists || v == nil {
			return &ValidationError{
				Field:   fieldName,
				Message: "required field is missing",
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	closed := schema["additionalProperties"] == false

	// sorted for deterministic error reporting
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, fieldName := range names {
		value := params[fieldName]

		propSchema, exists := properties[fieldName]
		if !exists {
			if closed {
				return &ValidationError{Field: fieldName, Value: value, Message: "unknown field"}
			}
			continue
		}

		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}

		expectedType, _ := propMap["type"].(string)
		if !isValidType(value, expectedType) {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", expectedType, value),
			}
		}

		if err := validateConstraints(fieldName, value, propMap); err != nil {
			return err
		}
	}

	return nil
}

// ApplyDefaults returns a copy of params with schema defaults filled in for
// absent fields. Integer-typed fields holding float64 values (as produced by
// encoding/json) are normalized to int.
func ApplyDefaults(params map[string]any, schema map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}

	properties, _ := schema["properties"].(map[string]any)
	for name, prop := range properties {
		propMap, ok := prop.(map[string]any)
		if !ok {
			continue
		}

		if _, exists := out[name]; !exists {
			if def, ok := propMap["default"]; ok {
				out[name] = def
			}
		}

		if propMap["type"] == "integer" {
			if f, ok := out[name].(float64); ok && f == float64(int64(f)) {
				out[name] = int(f)
			}
		}
	}

	return out
}

func validateConstraints(field string, value any, prop map[string]any) error {
	if value == nil {
		return nil
	}

	if enum, ok := prop["enum"]; ok {
		if !inEnum(value, enum) {
			return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be one of %v", enum)}
		}
	}

	n, isNumber := toFloat(value)
	if !isNumber {
		return nil
	}

	if min, ok := toFloat(prop["minimum"]); ok && n < min {
		return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be >= %v", prop["minimum"])}
	}

	if max, ok := toFloat(prop["maximum"]); ok && n > max {
		return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be <= %v", prop["maximum"])}
	}

	return nil
}

func inEnum(value any, enum any) bool {
	switch e := enum.(type) {
	case []string:
		s, ok := value.(string)
		if !ok {
			return false
		}
		for _, v := range e {
			if v == s {
				return true
			}
		}
	case []any:
		for _, v := range e {
			if v == value {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func parseBound(tag string) (float64, bool) {
	if tag == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(tag, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseDefault(tag, jsonType string) any {
	switch jsonType {
	case "integer":
		if n, err := strconv.Atoi(tag); err == nil {
			return n
		}
	case "number":
		if f, err := strconv.ParseFloat(tag, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(tag); err == nil {
			return b
		}
	}
	return tag
}

// getJSONType returns the JSON schema type for a given Go type.
func getJSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return getJSONType(t.Elem())
	default:
		return "string"
	}
}

// hasOmitEmpty checks if a JSON tag has the "omitempty" option.
func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// isPointer checks if a type is a pointer.
func isPointer(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // encoding/json decodes every number as float64
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
