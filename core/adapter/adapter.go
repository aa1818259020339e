// Package adapter defines the capability every brand adapter exposes and a
// registry that resolves adapters by brand.
package adapter

import (
	"context"
	"errors"

	"github.com/bselee/enviroflow/core/credentials"
	"github.com/bselee/enviroflow/core/model"
)

// ErrUnsupportedBrand is returned when no adapter is registered for a brand.
var ErrUnsupportedBrand = errors.New("adapter: unsupported brand")

// ControlResult is the device response to a command.
type ControlResult struct {
	// ActualValue is the level reported by the device, when it reports one.
	ActualValue *float64
}

// Adapter translates normalized commands into a vendor protocol.
//
// Connect returns the session controller id used by the other calls.
// Disconnect must be safe to call after a failed ControlDevice.
type Adapter interface {
	Connect(ctx context.Context, creds credentials.Credentials) (controllerID string, err error)
	ControlDevice(ctx context.Context, controllerID string, port int, cmd model.Command) (ControlResult, error)
	Disconnect(ctx context.Context, controllerID string) error
}

// Provider resolves adapters by brand.
type Provider interface {
	Adapter(brand model.Brand) (Adapter, error)
	IsBrandSupported(brand model.Brand) bool
}
