// Package factory provides a small generic registry used to instantiate
// modules from configuration: brand adapters, metrics sinks and audit
// stores. A module is described by a type string and a map of raw settings
// which factories decode into typed structs.
//
// Example usage:
//
//	reg := factory.NewRegistry[audit.Store]()
//	reg.Register("jsonl", func(conf map[string]any) (audit.Store, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return audit.NewJSONLStore(c.Path)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "audit.log"}})
package factory
