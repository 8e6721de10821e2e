// Package tools implements the Tool Registry (spec component H): a
// process-wide, insertion-ordered registry of Tool Definitions plus
// per-wire-format schema emission, grounded in the teacher's
// internal/mcp/tools.Tool{Definition,Handler} shape generalized from one
// LLM-facing schema to the gateway's five wire formats.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/brightloom/aicore/pkg/coretypes"
)

// Registry holds Tool Definitions in registration order. Mutated only at
// startup and treated as read-only thereafter (spec §5), but every method
// is still mutex-guarded for safety under concurrent registration in tests
// and plugin-style startup code.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byName map[string]coretypes.ToolDefinition
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]coretypes.ToolDefinition)}
}

// Register adds td, preserving insertion order. Re-registering an existing
// name replaces its definition in place without disturbing its position.
func (r *Registry) Register(td coretypes.ToolDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[td.Name]; !exists {
		r.order = append(r.order, td.Name)
	}
	r.byName[td.Name] = td
}

// Unregister removes name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; !exists {
		return
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Find returns the definition registered under name.
func (r *Registry) Find(name string) (coretypes.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	td, ok := r.byName[name]
	return td, ok
}

// All returns every registered definition in insertion order.
func (r *Registry) All() []coretypes.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]coretypes.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Execute invokes name's handler with argsJSON and returns its JSON-string
// result. A missing tool or a tool registered without a handler produces
// `{"error": "..."}` JSON rather than an error return, per spec §4.7.
func (r *Registry) Execute(name, argsJSON string) string {
	td, ok := r.Find(name)
	if !ok {
		return errJSON(fmt.Sprintf("unknown tool %q", name))
	}
	if td.Handler == nil {
		return errJSON(fmt.Sprintf("tool %q has no handler", name))
	}
	result, err := td.Handler(td.HandlerCtx, argsJSON)
	if err != nil {
		return errJSON(err.Error())
	}
	return result
}

func errJSON(message string) string {
	b, _ := json.Marshal(map[string]string{"error": message})
	return string(b)
}
