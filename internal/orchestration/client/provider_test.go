package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientForModel(t *testing.T) {
	tests := []struct {
		model string
		want  ClientType
	}{
		{"devin-standard", ClientDevin},
		{"devin-deep", ClientDevin},
		{"DEVIN-deep", ClientDevin},
		{"devin-experimental", ClientDevin},
		{"o4-mini", ClientCodex},
		{"devin", ClientCodex},
		{"", ClientCodex},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientForModel(tt.model))
		})
	}
}

func TestIsDevinModelSupported(t *testing.T) {
	for _, m := range DevinModels {
		assert.True(t, IsDevinModelSupported(m))
		assert.True(t, IsDevinModel(m))
	}
	assert.True(t, IsDevinModel("devin-experimental"))
	assert.False(t, IsDevinModelSupported("devin-experimental"))
}

func TestDevinProvider(t *testing.T) {
	assert.Equal(t, "DEVIN_API_KEY", DevinProvider.EnvKey)
	assert.Contains(t, DevinProvider.KeyInstructions, "DEVIN_API_KEY")
	assert.Equal(t, "https://api.devin.ai/v1", DevinProvider.BaseURL)
}

func TestNewAgentProvider(t *testing.T) {
	t.Run("routes by model and fills extensions", func(t *testing.T) {
		p := NewAgentProvider(Params{Config: Config{Model: "devin-deep"}})

		assert.Equal(t, ClientDevin, p.Type())
		assert.NotNil(t, p.Params().Config.Extensions)
	})

	t.Run("unregistered client type errors", func(t *testing.T) {
		p := NewAgentProviderFor("unknown", Params{})

		loop, err := p.Loop()

		assert.Nil(t, loop)
		assert.ErrorIs(t, err, ErrUnknownClientType)
	})

	t.Run("caches loop on subsequent calls", func(t *testing.T) {
		calls := 0
		RegisterClient(ClientMock, func(p Params) (AgentLoop, error) {
			calls++
			return &stubLoop{params: p}, nil
		})
		t.Cleanup(func() { unregisterClient(ClientMock) })

		p := NewAgentProviderFor(ClientMock, Params{APIKey: "k"})

		first, err := p.Loop()
		require.NoError(t, err)
		second, err := p.Loop()
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, calls)
	})
}
