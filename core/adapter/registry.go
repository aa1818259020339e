package adapter

import (
	"fmt"
	"sync"

	"github.com/bselee/enviroflow/core/factory"
	"github.com/bselee/enviroflow/core/model"
)

// Registry builds a fresh adapter per request from the factory registered
// for the controller brand. Per-brand settings are passed to the factory.
type Registry struct {
	factories *factory.Registry[Adapter]

	mu    sync.RWMutex
	confs map[model.Brand]map[string]any
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: factory.NewRegistry[Adapter](),
		confs:     make(map[model.Brand]map[string]any),
	}
}

// Register adds the factory for brand. Read-only brands cannot be registered.
func (r *Registry) Register(brand model.Brand, f factory.Factory[Adapter]) error {
	if brand.IsReadOnly() {
		return fmt.Errorf("adapter: brand %s has no control capability", brand)
	}
	return r.factories.Register(string(brand), f)
}

// Configure sets the raw settings handed to the brand factory.
func (r *Registry) Configure(brand model.Brand, conf map[string]any) {
	r.mu.Lock()
	r.confs[brand] = conf
	r.mu.Unlock()
}

// Adapter instantiates the adapter for brand.
func (r *Registry) Adapter(brand model.Brand) (Adapter, error) {
	if !r.factories.Has(string(brand)) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBrand, brand)
	}
	r.mu.RLock()
	conf := r.confs[brand]
	r.mu.RUnlock()
	a, err := r.factories.Create(factory.ModuleConfig{Type: string(brand), Conf: conf})
	if err != nil {
		return nil, fmt.Errorf("adapter %s: %w", brand, err)
	}
	return a, nil
}

// IsBrandSupported reports whether an adapter is registered for brand.
func (r *Registry) IsBrandSupported(brand model.Brand) bool {
	return r.factories.Has(string(brand))
}

// Brands lists registered brands.
func (r *Registry) Brands() []model.Brand {
	names := r.factories.Names()
	out := make([]model.Brand, len(names))
	for i, n := range names {
		out[i] = model.Brand(n)
	}
	return out
}
