package tools

import (
	"sort"

	"github.com/aictl/itaccess/internal/provider"
)

// Registry manages all registered tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Kind returns the kind declared by the named tool.
func (r *Registry) Kind(name string) (Kind, bool) {
	t, ok := r.tools[name]
	if !ok {
		return 0, false
	}
	return t.Kind(), true
}

// All returns every registered tool, sorted by name.
func (r *Registry) All() []Tool {
	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// Schemas converts every tool into the provider-neutral schema.
func (r *Registry) Schemas() []provider.ToolSchema {
	all := r.All()
	schemas := make([]provider.ToolSchema, 0, len(all))
	for _, t := range all {
		schemas = append(schemas, provider.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
			Required:    t.Required(),
		})
	}
	return schemas
}
