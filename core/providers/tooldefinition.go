package providers

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
)

// ToolDefinition describes one callable tool the model may request.
// Parameters is any Go value whose type reflects to a JSON schema (a struct,
// or a map for hand-written schemas).
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  any
}

// ParameterSchema translates the definition's parameter type into a JSON
// schema object once, at configure time. A definition that cannot be
// translated falls back to an empty permissive object schema instead of
// failing the whole configure call.
func (t ToolDefinition) ParameterSchema() json.RawMessage {
	schema := reflectSchema(t.Parameters)
	data, err := json.Marshal(schema)
	if err != nil {
		return placeholderSchema()
	}
	return data
}

func reflectSchema(parameters any) (schema *jsonschema.Schema) {
	// Reflection on exotic types can panic inside the reflector; treat that
	// the same as an untranslatable schema.
	defer func() {
		if recover() != nil {
			schema = nil
		}
	}()

	if parameters == nil {
		return nil
	}

	if raw, ok := parameters.(json.RawMessage); ok {
		var schema jsonschema.Schema
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil
		}
		return &schema
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	if reflect.TypeOf(parameters).Kind() == reflect.Ptr {
		return reflector.ReflectFromType(reflect.TypeOf(parameters).Elem())
	}
	return reflector.Reflect(parameters)
}

func placeholderSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

// SchemaOrPlaceholder is the translation entry point adapters use: it never
// returns an unusable value.
func (t ToolDefinition) SchemaOrPlaceholder() json.RawMessage {
	schema := t.ParameterSchema()
	if len(schema) == 0 || string(schema) == "null" {
		return placeholderSchema()
	}
	return schema
}
