package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Registry lazily creates and owns one engine per tenant. Engines outlive
// the request that first touched them; their subscriptions are bound to the
// registry's lifetime and torn down in Shutdown.
type Registry struct {
	deps   Deps
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewRegistry creates an engine registry
func NewRegistry(deps Deps) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		deps:    deps,
		logger:  deps.Logger.Named("registry"),
		ctx:     ctx,
		cancel:  cancel,
		engines: make(map[string]*Engine),
	}
}

// Engine returns the tenant's engine, creating and initializing it on
// first use. ctx bounds only this call; initialization uses the registry's
// own context so the engine's detectors stay attached after the caller
// returns.
func (r *Registry) Engine(ctx context.Context, tenantID string) (*Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[tenantID]; ok {
		return e, nil
	}

	e := New(tenantID, r.deps)
	if err := e.Initialize(r.ctx); err != nil {
		return nil, err
	}
	r.engines[tenantID] = e
	r.logger.Info("Engine created for tenant", zap.String("tenant_id", tenantID))
	return e, nil
}

// Tenants returns the IDs with live engines
func (r *Registry) Tenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.engines))
	for id := range r.engines {
		out = append(out, id)
	}
	return out
}

// Shutdown destroys every engine
func (r *Registry) Shutdown() {
	r.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.engines {
		e.Destroy()
		delete(r.engines, id)
	}
}
