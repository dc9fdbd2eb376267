// Package config provides configuration types, defaults, validation and
// persistence for agentbridge.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/agentbridge/internal/log"
	"github.com/zjrosen/agentbridge/internal/orchestration/client"
	"github.com/zjrosen/agentbridge/internal/orchestration/tracing"
)

// Config holds all configuration options for agentbridge.
type Config struct {
	Model          string        `mapstructure:"model"`
	ApprovalPolicy string        `mapstructure:"approval_policy"`
	Debug          bool          `mapstructure:"debug"`
	LogFile        string        `mapstructure:"log_file"`
	Devin          DevinConfig   `mapstructure:"devin"`
	UI             UIConfig      `mapstructure:"ui"`
	Tracing        TracingConfig `mapstructure:"tracing"`
}

// DevinConfig holds Devin API settings.
type DevinConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	// MaxUploadBytes is the size at and above which detected files are
	// processed locally instead of uploaded.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// UIConfig holds terminal rendering options.
type UIConfig struct {
	MarkdownStyle string `mapstructure:"markdown_style"` // "dark" (default) or "light"
	Width         int    `mapstructure:"width"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is one of "none", "file", "stdout", "otlp".
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	// Default: ~/.config/agentbridge/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Tracing converts to the tracing package config, filling the default
// trace file path.
func (t TracingConfig) Tracing() tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.Enabled = t.Enabled
	if t.Exporter != "" {
		cfg.Exporter = t.Exporter
	}
	cfg.FilePath = t.FilePath
	if cfg.FilePath == "" && cfg.Exporter == "file" {
		cfg.FilePath = DefaultTracesFilePath()
	}
	if t.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = t.OTLPEndpoint
	}
	if t.SampleRate > 0 {
		cfg.SampleRate = t.SampleRate
	}
	return cfg
}

// Dir returns ~/.config/agentbridge, or "" if the home dir is unavailable.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "agentbridge")
}

// DefaultLogPath returns the default debug log location.
func DefaultLogPath() string {
	if dir := Dir(); dir != "" {
		return filepath.Join(dir, "debug.log")
	}
	return "debug.log"
}

// DefaultTracesFilePath returns the default trace export file.
func DefaultTracesFilePath() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns the default configuration.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	return Config{
		Model:          client.DevinModels[0],
		ApprovalPolicy: string(client.PolicyFullAuto),
		Devin: DevinConfig{
			BaseURL:        client.DevinProvider.BaseURL,
			PollInterval:   2 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			MaxUploadBytes: 10 << 20,
		},
		UI: UIConfig{
			MarkdownStyle: "dark",
			Width:         100,
		},
		Tracing: TracingConfig{
			Enabled:      tc.Enabled,
			Exporter:     tc.Exporter,
			OTLPEndpoint: tc.OTLPEndpoint,
			SampleRate:   tc.SampleRate,
		},
	}
}

// SetDefaults registers Defaults() with v so unset keys resolve.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("model", d.Model)
	v.SetDefault("approval_policy", d.ApprovalPolicy)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("devin.base_url", d.Devin.BaseURL)
	v.SetDefault("devin.api_key", "")
	v.SetDefault("devin.poll_interval", d.Devin.PollInterval)
	v.SetDefault("devin.max_retries", d.Devin.MaxRetries)
	v.SetDefault("devin.retry_base_delay", d.Devin.RetryBaseDelay)
	v.SetDefault("devin.max_upload_bytes", d.Devin.MaxUploadBytes)
	v.SetDefault("ui.markdown_style", d.UI.MarkdownStyle)
	v.SetDefault("ui.width", d.UI.Width)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", "")
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

// KnownKeys lists the dotted keys accepted by SaveSetting.
var KnownKeys = []string{
	"model", "approval_policy", "debug", "log_file",
	"devin.base_url", "devin.api_key", "devin.poll_interval", "devin.max_retries",
	"devin.retry_base_delay", "devin.max_upload_bytes",
	"ui.markdown_style", "ui.width",
	"tracing.enabled", "tracing.exporter", "tracing.file_path", "tracing.otlp_endpoint", "tracing.sample_rate",
}

// IsKnownKey reports whether key is one of KnownKeys.
func IsKnownKey(key string) bool {
	for _, k := range KnownKeys {
		if k == key {
			return true
		}
	}
	return false
}

// APIKey returns the Devin key: the environment variable wins over the
// config file.
func (c Config) APIKey() string {
	if key := strings.TrimSpace(os.Getenv(client.DevinProvider.EnvKey)); key != "" {
		return key
	}
	return c.Devin.APIKey
}

// ClientConfig builds the client.Config carrying the Devin extensions.
func (c Config) ClientConfig(workDir string) client.Config {
	cc := client.Config{Model: c.Model, WorkDir: workDir}
	cc.SetExtension(client.ExtDevinBaseURL, c.Devin.BaseURL)
	cc.SetExtension(client.ExtDevinPollInterval, c.Devin.PollInterval)
	cc.SetExtension(client.ExtDevinMaxRetries, c.Devin.MaxRetries)
	cc.SetExtension(client.ExtDevinRetryBaseDelay, c.Devin.RetryBaseDelay)
	return cc
}

// Validate checks the whole configuration.
func Validate(c Config) error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if client.IsDevinModel(c.Model) && !client.IsDevinModelSupported(c.Model) {
		return fmt.Errorf("model %q is not a supported Devin model (want one of %s)",
			c.Model, strings.Join(client.DevinModels, ", "))
	}
	if _, err := client.ParseApprovalPolicy(c.ApprovalPolicy); err != nil {
		return fmt.Errorf("approval_policy: %w", err)
	}
	if err := ValidateDevin(c.Devin); err != nil {
		return err
	}
	if err := ValidateUI(c.UI); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidateDevin checks Devin API settings.
func ValidateDevin(d DevinConfig) error {
	if d.BaseURL != "" {
		u, err := url.Parse(d.BaseURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("devin.base_url %q is not a valid URL", d.BaseURL)
		}
		local := u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1"
		if u.Scheme != "https" && !(local && u.Scheme == "http") {
			return fmt.Errorf("devin.base_url must use https (got %q)", d.BaseURL)
		}
	}
	if d.PollInterval <= 0 {
		return fmt.Errorf("devin.poll_interval must be positive, got %s", d.PollInterval)
	}
	if d.MaxRetries < 0 {
		return fmt.Errorf("devin.max_retries must not be negative, got %d", d.MaxRetries)
	}
	if d.RetryBaseDelay < 0 {
		return fmt.Errorf("devin.retry_base_delay must not be negative, got %s", d.RetryBaseDelay)
	}
	if d.MaxUploadBytes < 0 {
		return fmt.Errorf("devin.max_upload_bytes must not be negative, got %d", d.MaxUploadBytes)
	}
	return nil
}

// ValidateUI checks rendering options. Empty values use defaults.
func ValidateUI(ui UIConfig) error {
	switch ui.MarkdownStyle {
	case "", "dark", "light":
	default:
		return fmt.Errorf("ui.markdown_style must be \"dark\" or \"light\", got %q", ui.MarkdownStyle)
	}
	if ui.Width < 0 {
		return fmt.Errorf("ui.width must not be negative, got %d", ui.Width)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(t TracingConfig) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}

	switch t.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
	}

	if t.Enabled && t.Exporter == "otlp" && t.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}
	return nil
}

// DefaultConfigTemplate returns the commented config written on first run.
func DefaultConfigTemplate() string {
	return `# agentbridge configuration

# Model: devin-standard | devin-deep, or any OpenAI model id
model: devin-standard

# How much the agent may do without asking:
# suggest | auto-edit | full-auto | approve-plan
approval_policy: full-auto

# Write a debug log (also enabled by --debug or AGENTBRIDGE_DEBUG)
debug: false
# log_file: ~/.config/agentbridge/debug.log

devin:
  base_url: https://api.devin.ai/v1
  # The DEVIN_API_KEY environment variable takes precedence.
  api_key: ""
  poll_interval: 2s
  max_retries: 3
  retry_base_delay: 1s
  # Files at or above this size are processed locally instead of uploaded
  max_upload_bytes: 10485760

ui:
  markdown_style: dark
  width: 100

tracing:
  enabled: false
  # none | file | stdout | otlp
  exporter: file
  # file_path: ~/.config/agentbridge/traces/traces.jsonl
  otlp_endpoint: localhost:4317
  sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file with default settings.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
