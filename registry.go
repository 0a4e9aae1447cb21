package toolweave

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InvokerRegistry routes tool invocations to the invoker of the server the
// tool belongs to. It implements ToolInvoker and is safe for concurrent
// use.
type InvokerRegistry struct {
	mutex    sync.RWMutex
	invokers map[string]ToolInvoker
}

// NewInvokerRegistry creates an empty registry.
func NewInvokerRegistry() *InvokerRegistry {
	return &InvokerRegistry{
		invokers: make(map[string]ToolInvoker),
	}
}

// Register adds a server's invoker. Registering the same server twice is an
// error.
func (r *InvokerRegistry) Register(server string, invoker ToolInvoker) error {
	if invoker == nil {
		return NewConfigurationError(fmt.Sprintf("invoker for server '%s' cannot be nil", server), nil)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.invokers[server]; exists {
		return NewConfigurationError(fmt.Sprintf("server '%s' is already registered", server), nil)
	}
	r.invokers[server] = invoker
	return nil
}

// Deregister removes a server's invoker. Removing an unknown server is a
// no-op.
func (r *InvokerRegistry) Deregister(server string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.invokers, server)
}

// Servers returns the registered server names in sorted order.
func (r *InvokerRegistry) Servers() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.invokers))
	for name := range r.invokers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke routes the call to the invoker registered for the tool's server.
func (r *InvokerRegistry) Invoke(ctx context.Context, tool ToolID, args map[string]interface{}) (map[string]interface{}, error) {
	r.mutex.RLock()
	invoker, exists := r.invokers[tool.Server]
	r.mutex.RUnlock()

	if !exists {
		return nil, NewToolNotFoundError("invoke", tool)
	}
	return invoker.Invoke(ctx, tool, args)
}
