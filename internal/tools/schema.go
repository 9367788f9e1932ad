package tools

import (
	"fmt"
	"strings"
)

// Parameter types understood by the model endpoint.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeNumber  = "number"
)

var typeAliases = map[string]string{
	TypeString:  TypeString,
	TypeInteger: TypeInteger,
	TypeBoolean: TypeBoolean,
	TypeNumber:  TypeNumber,
	"int":       TypeInteger,
	"bool":      TypeBoolean,
	"float":     TypeNumber,
}

// Param declares one named argument of a tool.
type Param struct {
	Name        string `json:"name" toml:"name"`
	Type        string `json:"type" toml:"type"`
	Description string `json:"description" toml:"description"`
	Example     string `json:"example" toml:"example"`
	Required    bool   `json:"required" toml:"required"`
}

// ToolSpec is the declarative description a tool is registered with.
type ToolSpec struct {
	Name        string
	Description string
	Params      []Param
}

// Property is the schema of a single parameter.
type Property struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
}

// Schema is the JSON-schema object describing a tool's parameters.
type Schema struct {
	Type       string              `json:"type" yaml:"type"`
	Properties map[string]Property `json:"properties" yaml:"properties"`
	Required   []string            `json:"required" yaml:"required"`
}

// Descriptor is the tool description sent to the model endpoint.
type Descriptor struct {
	Type        string `json:"type" yaml:"type"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Strict      bool   `json:"strict" yaml:"strict"`
	Parameters  Schema `json:"parameters" yaml:"parameters"`
}

// BuildDescriptor validates spec and derives its descriptor. It has no side
// effects, so a failed registration leaves nothing behind.
func BuildDescriptor(spec ToolSpec) (Descriptor, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return Descriptor{}, &SchemaError{Tool: spec.Name, Err: ErrInvalidName}
	}

	schema := Schema{
		Type:       "object",
		Properties: make(map[string]Property, len(spec.Params)),
		Required:   []string{},
	}
	for _, p := range spec.Params {
		if strings.TrimSpace(p.Name) == "" {
			return Descriptor{}, &SchemaError{Tool: spec.Name, Param: p.Name, Err: ErrInvalidName}
		}
		if _, dup := schema.Properties[p.Name]; dup {
			return Descriptor{}, &SchemaError{Tool: spec.Name, Param: p.Name, Err: ErrDuplicateParameter}
		}
		typ, ok := typeAliases[strings.ToLower(strings.TrimSpace(p.Type))]
		if !ok {
			return Descriptor{}, &SchemaError{
				Tool:  spec.Name,
				Param: p.Name,
				Err:   fmt.Errorf("%w: %q", ErrUnsupportedParameterType, p.Type),
			}
		}
		if p.Description == "" || p.Example == "" {
			return Descriptor{}, &SchemaError{Tool: spec.Name, Param: p.Name, Err: ErrMissingParameterMetadata}
		}

		schema.Properties[p.Name] = Property{
			Type:        typ,
			Description: p.Description + ". Example: " + p.Example,
		}
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}

	return Descriptor{
		Type:        "function",
		Name:        spec.Name,
		Description: spec.Description,
		Strict:      false,
		Parameters:  schema,
	}, nil
}
