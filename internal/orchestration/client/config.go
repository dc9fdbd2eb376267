package client

import (
	"context"
	"net/http"
	"time"
)

// Config holds provider-agnostic configuration for an agent loop.
type Config struct {
	// Model is the configured model identifier (e.g. "devin-deep", "o4-mini").
	Model string

	// WorkDir is the local working directory of the CLI invocation.
	WorkDir string

	// Extensions holds provider-specific configuration.
	// Use the Ext* constants for standard keys.
	Extensions map[string]any
}

// Extension keys for provider-specific configuration.
const (
	// ExtDevinBaseURL overrides the Devin API base URL (string).
	ExtDevinBaseURL = "devin.base_url"
	// ExtDevinPollInterval is the status poll cadence (time.Duration).
	ExtDevinPollInterval = "devin.poll_interval"
	// ExtDevinMaxRetries is the retry ceiling for retryable calls (int).
	ExtDevinMaxRetries = "devin.max_retries"
	// ExtDevinRetryBaseDelay is the linear retry base delay (time.Duration).
	ExtDevinRetryBaseDelay = "devin.retry_base_delay"
	// ExtHTTPClient supplies the *http.Client used for outbound calls.
	ExtHTTPClient = "http.client"
)

// DevinBaseURL returns the Devin base URL from Extensions, or the provider default.
func (c *Config) DevinBaseURL() string {
	if v := c.GetExtensionString(ExtDevinBaseURL); v != "" {
		return v
	}
	return DevinProvider.BaseURL
}

// HTTPClient returns the configured *http.Client, or nil.
func (c *Config) HTTPClient() *http.Client {
	if v, ok := c.GetExtension(ExtHTTPClient).(*http.Client); ok {
		return v
	}
	return nil
}

// SetExtension sets a provider-specific extension value.
// Creates the Extensions map if nil.
func (c *Config) SetExtension(key string, value any) {
	if c.Extensions == nil {
		c.Extensions = make(map[string]any)
	}
	c.Extensions[key] = value
}

// GetExtension returns a provider-specific extension value.
// Returns nil if the key doesn't exist.
func (c *Config) GetExtension(key string) any {
	if c.Extensions == nil {
		return nil
	}
	return c.Extensions[key]
}

// GetExtensionString returns a provider-specific extension value as a string.
// Returns empty string if the key doesn't exist or isn't a string.
func (c *Config) GetExtensionString(key string) string {
	if v, ok := c.GetExtension(key).(string); ok {
		return v
	}
	return ""
}

// GetExtensionDuration returns a duration extension, or def when the key is
// missing, not a positive time.Duration.
func (c *Config) GetExtensionDuration(key string, def time.Duration) time.Duration {
	if v, ok := c.GetExtension(key).(time.Duration); ok && v > 0 {
		return v
	}
	return def
}

// GetExtensionInt returns an int extension, or def when the key is missing,
// negative or not an int.
func (c *Config) GetExtensionInt(key string, def int) int {
	if v, ok := c.GetExtension(key).(int); ok && v >= 0 {
		return v
	}
	return def
}

// Params is everything a Factory needs to construct an AgentLoop.
type Params struct {
	// APIKey is the provider credential.
	APIKey string

	// ApprovalPolicy governs how much the agent may do without asking.
	ApprovalPolicy ApprovalPolicy

	// Config carries the model identifier and extensions.
	Config Config

	// Callbacks connect the loop to the UI.
	Callbacks Callbacks
}

// CommandConfirmation is the user's answer to a proposed command.
type CommandConfirmation struct {
	Approved    bool
	Explanation string
}

// Callbacks are invoked by an AgentLoop. Any of them may be nil.
type Callbacks struct {
	// OnItem receives every normalized response item, in emission order.
	// It must not call Run on the same loop.
	OnItem func(item ResponseItem)

	// OnLoading reports whether a run is in flight.
	OnLoading func(loading bool)

	// OnLastResponseID reports the identifier to pass as
	// previousResponseID to continue the conversation.
	OnLastResponseID func(id string)

	// GetCommandConfirmation asks the user to approve a shell command.
	// The Devin adapter accepts it for parity with the OpenAI loop but
	// never calls it.
	GetCommandConfirmation func(ctx context.Context, command []string) (CommandConfirmation, error)
}

// Item calls OnItem if set.
func (c Callbacks) Item(item ResponseItem) {
	if c.OnItem != nil {
		c.OnItem(item)
	}
}

// Loading calls OnLoading if set.
func (c Callbacks) Loading(loading bool) {
	if c.OnLoading != nil {
		c.OnLoading(loading)
	}
}

// LastResponseID calls OnLastResponseID if set.
func (c Callbacks) LastResponseID(id string) {
	if c.OnLastResponseID != nil {
		c.OnLastResponseID(id)
	}
}
