package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bselee/enviroflow/core/credentials"
	"github.com/bselee/enviroflow/core/factory"
	"github.com/bselee/enviroflow/core/model"
)

type stubAdapter struct{ prefix string }

func (s stubAdapter) Connect(context.Context, credentials.Credentials) (string, error) {
	return s.prefix + "-session", nil
}
func (stubAdapter) ControlDevice(context.Context, string, int, model.Command) (ControlResult, error) {
	return ControlResult{}, nil
}
func (stubAdapter) Disconnect(context.Context, string) error { return nil }

func TestRegistryResolvesConfiguredAdapter(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("govee", func(conf map[string]any) (Adapter, error) {
		var c struct {
			Prefix string `json:"prefix"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return stubAdapter{prefix: c.Prefix}, nil
	}))
	reg.Configure("govee", map[string]any{"prefix": "g"})

	assert.True(t, reg.IsBrandSupported("govee"))
	a, err := reg.Adapter("govee")
	require.NoError(t, err)
	id, err := a.Connect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "g-session", id)
	assert.Equal(t, []model.Brand{"govee"}, reg.Brands())
}

func TestRegistryUnsupported(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.IsBrandSupported("ecowitt"))
	_, err := reg.Adapter("ecowitt")
	assert.ErrorIs(t, err, ErrUnsupportedBrand)
}

func TestRegistryRejectsReadOnlyBrand(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(model.BrandCSVUpload, func(map[string]any) (Adapter, error) { return stubAdapter{}, nil })
	assert.Error(t, err)
	assert.False(t, reg.IsBrandSupported(model.BrandCSVUpload))
}
