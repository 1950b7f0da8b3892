package capability

import (
	"github.com/tmc/langchaingo/llms"
)

// LLMTools exposes the registry as function definitions for an external
// planner. Capabilities registered without a schema get an open object.
func LLMTools(r *Registry) []llms.Tool {
	var out []llms.Tool
	for e := range r.List() {
		params := r.parameters(e.Name)
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        e.Name,
				Description: e.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
