package gemini

import (
	"testing"

	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/providers"
)

func TestToolSchemaUsesLowercaseJSONSchemaTypes(t *testing.T) {
	td := coretypes.ToolDefinition{
		Name: "get_weather",
		Parameters: []coretypes.ToolParameter{
			{Name: "city", Type: coretypes.ParamString, Required: true},
		},
	}
	schema := toolSchema(td)
	if schema["type"] != "object" {
		t.Errorf("type = %v, want object", schema["type"])
	}
	props := schema["properties"].(map[string]any)
	city := props["city"].(map[string]any)
	if city["type"] != "string" {
		t.Errorf("city type = %v, want string", city["type"])
	}
	required := schema["required"].([]string)
	if len(required) != 1 || required[0] != "city" {
		t.Errorf("required = %v, want [city]", required)
	}
}

func TestBuildParamsIncludesSystemAndTools(t *testing.T) {
	td := coretypes.ToolDefinition{Name: "lookup", Description: "looks things up"}
	req := providers.ChatRequest{System: "you are helpful", User: "hello"}
	params := buildParams("gemini-2.0-flash", req, []coretypes.ToolDefinition{td})

	if len(params.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2 (system + user)", len(params.Messages))
	}
	if params.Messages[0].Role != "system" || params.Messages[0].Content != "you are helpful" {
		t.Errorf("system message = %+v", params.Messages[0])
	}
	if params.Messages[1].Role != "user" || params.Messages[1].Content != "hello" {
		t.Errorf("user message = %+v", params.Messages[1])
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "lookup" {
		t.Errorf("Tools = %+v, want one tool named lookup", params.Tools)
	}
}

func TestKindReportsGeminiLike(t *testing.T) {
	p := New("test-key")
	if p.Kind() != coretypes.GeminiLike {
		t.Errorf("Kind() = %v, want GeminiLike", p.Kind())
	}
}
