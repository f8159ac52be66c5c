package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ghostbot/internal/logging"
)

// Registry maps tool names to tools. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds tool. Names are unique; a zero Priority becomes 50.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	if tool.Priority == 0 {
		tool.Priority = 50
	}
	r.tools[tool.Name] = tool
	logging.ToolsDebug("Registered tool %s in %s", tool.Name, tool.Category)
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("register tool %s: %v", tool.Name, err))
	}
}

// Get returns the named tool or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// GetByCategory returns the tools of one category, highest priority first.
func (r *Registry) GetByCategory(category ToolCategory) []*Tool {
	var out []*Tool
	for _, t := range r.All() {
		if t.Category == category {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// All returns every registered tool in name order.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name
	}
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs the named tool after checking its required arguments. The
// returned result is non-nil whenever the tool exists.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	start := time.Now()
	result := &ToolResult{ToolName: name}
	for _, required := range tool.Schema.Required {
		if _, ok := args[required]; !ok {
			result.Error = fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
			return result, result.Error
		}
	}

	result.Result, result.Error = tool.Execute(ctx, args)
	result.DurationMs = time.Since(start).Milliseconds()
	logging.ToolsDebug("Tool %s finished in %dms (ok=%v)", name, result.DurationMs, result.Error == nil)
	return result, result.Error
}
