package client

import (
	"slices"
	"strings"
	"sync"
)

// ProviderInfo describes how to reach and authenticate with a provider.
type ProviderInfo struct {
	Name            string
	BaseURL         string
	EnvKey          string
	KeyInstructions string
}

// DevinProvider describes the Devin API.
var DevinProvider = ProviderInfo{
	Name:    "Devin",
	BaseURL: "https://api.devin.ai/v1",
	EnvKey:  "DEVIN_API_KEY",
	KeyInstructions: "Create an API key at https://app.devin.ai/settings/api-keys " +
		"and export it as DEVIN_API_KEY, or set devin.api_key in the config file.",
}

// DevinModelPrefix marks a model identifier as a Devin agent tier.
const DevinModelPrefix = "devin-"

// DevinModels lists the supported Devin agent tiers.
var DevinModels = []string{"devin-standard", "devin-deep"}

// IsDevinModel reports whether model routes to the Devin adapter.
func IsDevinModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), DevinModelPrefix)
}

// IsDevinModelSupported reports whether model is one of DevinModels.
func IsDevinModelSupported(model string) bool {
	return slices.Contains(DevinModels, strings.ToLower(model))
}

// ClientForModel picks the client type for a model identifier.
func ClientForModel(model string) ClientType {
	if IsDevinModel(model) {
		return ClientDevin
	}
	return ClientCodex
}

// AgentProvider creates the AgentLoop for a configured model.
// It bundles the params with lazy client construction so the command
// layer can pass one object around.
type AgentProvider interface {
	// Type returns the client type the model routes to.
	Type() ClientType

	// Loop returns the AgentLoop, creating it lazily on first call.
	// The loop is cached and reused for subsequent calls.
	Loop() (AgentLoop, error)

	// Params returns the construction parameters.
	Params() Params
}

type agentProvider struct {
	clientType ClientType
	params     Params

	loop     AgentLoop
	loopOnce sync.Once
	loopErr  error
}

// NewAgentProvider creates a provider routed by params.Config.Model.
func NewAgentProvider(params Params) AgentProvider {
	if params.Config.Extensions == nil {
		params.Config.Extensions = make(map[string]any)
	}
	return &agentProvider{
		clientType: ClientForModel(params.Config.Model),
		params:     params,
	}
}

// NewAgentProviderFor creates a provider for an explicit client type.
func NewAgentProviderFor(clientType ClientType, params Params) AgentProvider {
	p := NewAgentProvider(params).(*agentProvider)
	p.clientType = clientType
	return p
}

func (p *agentProvider) Type() ClientType {
	return p.clientType
}

// Loop returns an error if the client type is not registered or the
// factory rejects the params.
func (p *agentProvider) Loop() (AgentLoop, error) {
	p.loopOnce.Do(func() {
		p.loop, p.loopErr = NewClient(p.clientType, p.params)
	})
	return p.loop, p.loopErr
}

func (p *agentProvider) Params() Params {
	return p.params
}
