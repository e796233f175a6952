// Router picks the configured provider and, when asked for a completion
// directly, falls through the remaining providers in registration order.

package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoProvider is returned when the router has nothing to route to.
var ErrNoProvider = errors.New("llm router: no provider registered")

// Router selects a LLMProvider for each request. It also satisfies
// LLMProvider itself so callers can treat the whole chain as one model.
type Router struct {
	mu              sync.RWMutex
	providers       map[string]LLMProvider
	order           []string
	defaultProvider string
}

// NewRouter creates a Router with an initial set of providers and a default key.
// Fallback order is the default first, then the remaining keys as given in order.
func NewRouter(providers map[string]LLMProvider, defaultProvider string, order ...string) *Router {
	ps := make(map[string]LLMProvider, len(providers))
	for k, v := range providers {
		ps[k] = v
	}
	r := &Router{providers: ps, defaultProvider: defaultProvider}
	r.order = append(r.order, order...)
	return r
}

// Register adds (or replaces) a provider under the given key.
func (r *Router) Register(key string, p LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = p
}

// Route returns the default provider.
func (r *Router) Route(_ context.Context) (LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[r.defaultProvider]
	if !ok {
		if len(r.providers) == 0 {
			return nil, ErrNoProvider
		}
		return nil, fmt.Errorf("llm router: provider %q not registered (available: %v)", r.defaultProvider, r.keys())
	}
	return p, nil
}

// ChatCompletion tries the default provider, then each entry of the fallback
// order. The first successful response wins; a canceled context stops the walk.
func (r *Router) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	chain := r.chain()
	if len(chain) == 0 {
		return nil, ErrNoProvider
	}
	var errs []error
	for _, p := range chain {
		resp, err := p.ChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// ModelInfo reports the default provider's metadata.
func (r *Router) ModelInfo() ModelMeta {
	p, err := r.Route(context.Background())
	if err != nil {
		return ModelMeta{Provider: "router"}
	}
	return p.ModelInfo()
}

// HealthCheck succeeds when any provider in the chain is healthy.
func (r *Router) HealthCheck(ctx context.Context) error {
	chain := r.chain()
	if len(chain) == 0 {
		return ErrNoProvider
	}
	var errs []error
	for _, p := range chain {
		err := p.HealthCheck(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Router) chain() []LLMProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(r.order)+1)
	out := make([]LLMProvider, 0, len(r.providers))
	for _, k := range append([]string{r.defaultProvider}, r.order...) {
		if seen[k] {
			continue
		}
		seen[k] = true
		if p, ok := r.providers[k]; ok {
			out = append(out, p)
		}
	}
	return out
}

// keys returns the registered provider names (for error messages).
func (r *Router) keys() []string {
	out := make([]string, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	return out
}
