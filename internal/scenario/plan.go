// Package scenario compiles plans into executable scenarios and reads the
// scenario text form back.
package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Step is one intended action of a plan. Only Description is required; a
// step naming a Capability compiles to a real CALL, any other step to a
// placeholder.
type Step struct {
	Description string         `json:"description" yaml:"description"`
	Capability  string         `json:"capability,omitempty" yaml:"capability,omitempty"`
	Args        map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	Store       string         `json:"store,omitempty" yaml:"store,omitempty"`
}

// Actionable reports whether the step names a capability to call.
func (s Step) Actionable() bool {
	return strings.TrimSpace(s.Capability) != ""
}

// Plan is the ordered list of steps produced by an external planner.
type Plan struct {
	Task  string `json:"task,omitempty" yaml:"task,omitempty"`
	Steps []Step `json:"steps" yaml:"steps"`
}

const planSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "step": {
      "type": "object",
      "required": ["description"],
      "properties": {
        "description": {"type": "string", "minLength": 1},
        "capability": {"type": "string"},
        "args": {"type": "object"},
        "store": {"type": "string", "pattern": "^[^\\s]*$"}
      }
    },
    "steps": {"type": "array", "items": {"$ref": "#/$defs/step"}}
  },
  "oneOf": [
    {
      "type": "object",
      "required": ["steps"],
      "properties": {
        "task": {"type": "string"},
        "steps": {"$ref": "#/$defs/steps"}
      }
    },
    {"$ref": "#/$defs/steps"}
  ]
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func planValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("plan.json", strings.NewReader(planSchema)); err != nil {
			schemaErr = fmt.Errorf("failed to add plan schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("plan.json")
	})
	return compiledSchema, schemaErr
}

// LoadPlan reads a plan from a JSON, JSONC or YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	plan, err := ParsePlan(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

// ParsePlan decodes and validates a plan. format is "json" (comments and
// trailing commas allowed) or "yaml". The document is either an object
// with task and steps or a bare list of steps.
func ParsePlan(data []byte, format string) (*Plan, error) {
	var doc any
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid plan YAML: %w", err)
		}
		// Normalise YAML scalars to their JSON equivalents.
		normalised, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("invalid plan YAML: %w", err)
		}
		data = normalised
	default:
		data = jsonc.ToJSON(data)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid plan JSON: %w", err)
	}

	validator, err := planValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return nil, formatValidationError(verr)
		}
		return nil, fmt.Errorf("plan validation failed: %w", err)
	}

	plan := &Plan{}
	if _, isList := doc.([]any); isList {
		err = json.Unmarshal(data, &plan.Steps)
	} else {
		err = json.Unmarshal(data, plan)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return plan, nil
}

func formatValidationError(err *jsonschema.ValidationError) error {
	var messages []string
	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if e.Message != "" && len(e.Causes) == 0 {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			messages = append(messages, fmt.Sprintf("%s: %s", location, e.Message))
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(err)

	if len(messages) == 0 {
		return fmt.Errorf("plan validation failed: %s", err.Message)
	}
	return fmt.Errorf("plan validation failed:\n    - %s", strings.Join(messages, "\n    - "))
}
