package mqtt

import (
	"github.com/bselee/enviroflow/core/adapter"
	"github.com/bselee/enviroflow/core/factory"
)

// Register adds the MQTT brand to r. Settings configured on the registry for
// the brand are decoded over base.
func Register(r *adapter.Registry, base Config) error {
	return r.Register(Brand, func(conf map[string]any) (adapter.Adapter, error) {
		cfg := base
		if err := factory.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		return New(cfg)
	})
}
