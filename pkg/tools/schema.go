package tools

import (
	"encoding/json"

	"github.com/brightloom/aicore/pkg/coretypes"
)

// anthropicSchema is the `{name, description, input_schema:{...}}` shape
// spec §4.7 assigns to Anthropic-like wire formats.
type anthropicSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// openAIFunctionSchema is the `{type:"function", function:{...}}` envelope
// shared by OpenAI-like and OpenRouter-like wire formats.
type openAIFunctionSchema struct {
	Type     string       `json:"type"`
	Function functionBody `json:"function"`
}

type functionBody struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// geminiFunctionSchema mirrors the Gemini REST functionDeclarations shape,
// whose nested parameter types use uppercase JSON-Schema-like names.
type geminiFunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// jsonSchemaLowercase builds the `{type, properties, required}` object
// shared by Anthropic-like, OpenAI-like, and OpenRouter-like wire formats,
// all of which use lowercase JSON-Schema type names.
func jsonSchemaLowercase(td coretypes.ToolDefinition) map[string]any {
	props := make(map[string]any, len(td.Parameters))
	var required []string
	for _, p := range td.Parameters {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// jsonSchemaUppercase is the Gemini-like variant of jsonSchemaLowercase,
// using uppercase JSON-Schema-like type names (STRING/NUMBER/INTEGER/
// BOOLEAN/ARRAY/OBJECT).
func jsonSchemaUppercase(td coretypes.ToolDefinition) map[string]any {
	props := make(map[string]any, len(td.Parameters))
	var required []string
	for _, p := range td.Parameters {
		prop := map[string]any{"type": uppercaseType(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{"type": "OBJECT", "properties": props, "required": required}
}

func uppercaseType(t coretypes.ParamType) string {
	switch t {
	case coretypes.ParamString:
		return "STRING"
	case coretypes.ParamNumber:
		return "NUMBER"
	case coretypes.ParamInteger:
		return "INTEGER"
	case coretypes.ParamBoolean:
		return "BOOLEAN"
	case coretypes.ParamArray:
		return "ARRAY"
	case coretypes.ParamObject:
		return "OBJECT"
	default:
		return "STRING"
	}
}

// ToJSON renders every registered tool's schema for kind, returning a JSON
// array (or the literal `[]` when nothing is registered), per spec §4.7
// `tools_to_json(provider_kind)`.
func (r *Registry) ToJSON(kind coretypes.ProviderKind) []byte {
	defs := r.All()
	if len(defs) == 0 {
		return []byte("[]")
	}

	var payload any
	switch kind {
	case coretypes.AnthropicLike:
		schemas := make([]anthropicSchema, 0, len(defs))
		for _, td := range defs {
			schemas = append(schemas, anthropicSchema{
				Name:        td.Name,
				Description: td.Description,
				InputSchema: jsonSchemaLowercase(td),
			})
		}
		payload = schemas
	case coretypes.OpenAILike, coretypes.OpenRouterLike:
		schemas := make([]openAIFunctionSchema, 0, len(defs))
		for _, td := range defs {
			schemas = append(schemas, openAIFunctionSchema{
				Type: "function",
				Function: functionBody{
					Name:        td.Name,
					Description: td.Description,
					Parameters:  jsonSchemaLowercase(td),
				},
			})
		}
		payload = schemas
	case coretypes.GeminiLike:
		schemas := make([]geminiFunctionSchema, 0, len(defs))
		for _, td := range defs {
			schemas = append(schemas, geminiFunctionSchema{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  jsonSchemaUppercase(td),
			})
		}
		payload = schemas
	default:
		// Ollama-like and on-device adapters have no stable tool-schema
		// wire shape (spec §4.5); emit the OpenAI-compatible envelope,
		// which is the closest approximation a served model might expect.
		schemas := make([]openAIFunctionSchema, 0, len(defs))
		for _, td := range defs {
			schemas = append(schemas, openAIFunctionSchema{
				Type: "function",
				Function: functionBody{
					Name:        td.Name,
					Description: td.Description,
					Parameters:  jsonSchemaLowercase(td),
				},
			})
		}
		payload = schemas
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return []byte("[]")
	}
	return b
}
