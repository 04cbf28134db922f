package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/chat"
)

// Registry holds the enabled tools, keyed by name.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry returns an empty registry. logger may be nil.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{tools: make(map[string]Tool), logger: logger}
}

// Register adds a tool. Panics if the name is already taken.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Definition().Name
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tools: tool %q already registered", name))
	}
	r.tools[name] = t
}

// Get retrieves a tool by name. Returns nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the schemas of all tools in name order.
func (r *Registry) Definitions() []ai.ToolDefinition {
	names := r.Names()
	defs := make([]ai.ToolDefinition, 0, len(names))
	for _, n := range names {
		if t := r.Get(n); t != nil {
			defs = append(defs, t.Definition())
		}
	}
	return defs
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute validates args and runs the named tool. Tool failures never
// surface as Go errors: an unknown tool, invalid arguments, an error or a
// panic all become a Result with Status false and an "error: ..." content.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res Result) {
	start := time.Now()
	log := r.logger.With("tool", name)

	defer func() {
		if p := recover(); p != nil {
			res = r.fail(log, name, fmt.Errorf("panic: %v", p))
		}
	}()

	t := r.Get(name)
	if t == nil {
		return r.fail(log, name, fmt.Errorf("unknown tool %q", name))
	}

	coerced, err := ValidateAndCoerce(t, args)
	if err != nil {
		return r.fail(log, name, err)
	}

	res, err = t.Execute(ctx, coerced)
	if err != nil {
		return r.fail(log, name, err)
	}
	log.Debug("tool: executed", "status", res.Status, "duration", time.Since(start))
	return res
}

func (r *Registry) fail(log *slog.Logger, name string, err error) Result {
	terr := &chat.ToolError{Tool: name, Err: err}
	log.Warn("tool: failed", "err", terr)
	return Failed(err)
}
