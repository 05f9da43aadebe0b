package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildExtractionSchema returns the canonical-extraction JSON-Schema as a
// generic map. It is handed to providers as the structured-output constraint
// and compiled locally to validate direct payloads.
func BuildExtractionSchema() map[string]any {
	lineItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description":           map[string]any{"type": "string"},
			"quantity":              map[string]any{"type": "number", "minimum": 0},
			"unit_price":            map[string]any{"type": "number"},
			"total_price":           map[string]any{"type": "number"},
			"category":              map[string]any{"type": "string"},
			"suggested_object_type": map[string]any{"type": "string"},
		},
		"required": []string{"description"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"vendor_name":    map[string]any{"type": "string", "minLength": 1},
			"date":           map[string]any{"type": "string"},
			"total_amount":   map[string]any{"type": []string{"number", "string"}},
			"subtotal":       map[string]any{"type": []string{"number", "string", "null"}},
			"tax_amount":     map[string]any{"type": []string{"number", "string", "null"}},
			"fees":           map[string]any{"type": []string{"number", "string", "null"}},
			"receipt_number": map[string]any{"type": "string"},
			"due_date":       map[string]any{"type": "string"},
			"line_items":     map[string]any{"type": "array", "items": lineItem},
			"confidence":     map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"event_details":  map[string]any{"type": "object"},
			"people_found":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"digital_assets": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"vendor_name", "total_amount"},
	}
}

// extractionSchema is the compiled form used by the normalizer on every
// response; the source map is static, so a compile failure is a programming
// error.
var extractionSchema = mustCompileSchema(BuildExtractionSchema())

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func mustCompileSchema(schemaMap map[string]any) *jsonschema.Schema {
	schema, err := compileSchema(schemaMap)
	if err != nil {
		panic(err)
	}
	return schema
}

// ValidateAgainstSchema validates data against schemaMap.
func ValidateAgainstSchema(schemaMap map[string]any, data []byte) error {
	schema, err := compileSchema(schemaMap)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
