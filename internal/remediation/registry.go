package remediation

import (
	"context"
	"fmt"
	"sync"

	"github.com/serpstack/aiops-engine/internal/executor"
	"github.com/serpstack/aiops-engine/internal/models"
)

// Handler carries out one action type. Implementations return a structured
// result payload on success.
type Handler func(ctx context.Context, target string, params map[string]any) (map[string]any, error)

// Registry maps action types to their handlers. Safe for concurrent reads;
// Register should only be called at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.ActionType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.ActionType]Handler)}
}

// Register adds a handler. Panics on duplicate type to surface
// misconfiguration early.
func (r *Registry) Register(t models.ActionType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		panic(fmt.Sprintf("remediation registry: duplicate action type %q", t))
	}
	r.handlers[t] = h
}

// Get returns the handler for the given type.
func (r *Registry) Get(t models.ActionType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("no handler registered for action type %q", t)
	}
	return h, nil
}

// Types returns all registered action types.
func (r *Registry) Types() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ActionType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// DefaultRegistry wires every supported action type to the given executor.
// Handlers stay thin: they validate the inputs the back-end cannot check
// and delegate the side effect.
func DefaultRegistry(exec executor.Executor) *Registry {
	reg := NewRegistry()

	delegate := func(t models.ActionType) Handler {
		return func(ctx context.Context, target string, params map[string]any) (map[string]any, error) {
			if target == "" {
				return nil, fmt.Errorf("action %s requires a target", t)
			}
			return exec.Execute(ctx, t, target, params)
		}
	}

	reg.Register(models.ActionRestartService, delegate(models.ActionRestartService))
	reg.Register(models.ActionScaleUp, delegate(models.ActionScaleUp))
	reg.Register(models.ActionScaleDown, delegate(models.ActionScaleDown))
	reg.Register(models.ActionClearCache, delegate(models.ActionClearCache))
	reg.Register(models.ActionOptimizeQuery, delegate(models.ActionOptimizeQuery))
	reg.Register(models.ActionSendAlert, delegate(models.ActionSendAlert))
	reg.Register(models.ActionRollback, delegate(models.ActionRollback))

	reg.Register(models.ActionBlockIP, func(ctx context.Context, target string, params map[string]any) (map[string]any, error) {
		ip, _ := params["ip"].(string)
		if ip == "" {
			return nil, fmt.Errorf("block_ip requires an ip parameter")
		}
		return exec.Execute(ctx, models.ActionBlockIP, target, params)
	})

	reg.Register(models.ActionCustomScript, func(ctx context.Context, target string, params map[string]any) (map[string]any, error) {
		script, _ := params["script"].(string)
		if script == "" {
			return nil, fmt.Errorf("custom_script requires a script parameter")
		}
		return exec.Execute(ctx, models.ActionCustomScript, target, params)
	})

	return reg
}
