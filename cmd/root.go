package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/agentbridge/internal/config"
	"github.com/zjrosen/agentbridge/internal/log"
)

func init() {
	// Query the terminal background once, before any prompt reads stdin,
	// so the OSC 11 response cannot leak into huh input fields.
	_ = lipgloss.HasDarkBackground()
}

// localConfigPath is checked before the user config directory.
const localConfigPath = ".agentbridge/config.yaml"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
	closeLog  = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "agentbridge [prompt]",
	Short: "Send coding requests to the Devin agent from your terminal",
	Long: `agentbridge dispatches a coding request to the Devin autonomous agent,
follows the remote session until it finishes and renders the results.

Local file paths mentioned in the prompt are detected and can be uploaded
so Devin can read them.

Examples:
  agentbridge "add a --json flag to the list command"
  agentbridge run --attach ./schema.sql "write migrations for this schema"
  agentbridge run --session devin-abc123 "also update the README"
  agentbridge sessions`,
	Version:           version,
	Args:              cobra.ArbitraryArgs,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(*cobra.Command, []string) { closeLog() },
	RunE:              runRequest,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .agentbridge/config.yaml, then ~/.config/agentbridge/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write a debug log (see log_file)")

	addRunFlags(rootCmd)
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	viper.SetEnvPrefix("AGENTBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .agentbridge/config.yaml (current directory)
		// 2. ~/.config/agentbridge/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else if dir := config.Dir(); dir != "" {
			viper.AddConfigPath(dir)
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config anywhere: write the commented default to the user dir
			// and continue with defaults if that fails.
			if defaultPath := userConfigPath(); defaultPath != "" {
				if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
					viper.SetConfigFile(defaultPath)
					_ = viper.ReadInConfig()
				}
			}
		} else {
			fmt.Fprintf(os.Stderr, "Warning: reading config: %v\n", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: decoding config: %v\n", err)
	}
}

// userConfigPath is ~/.config/agentbridge/config.yaml, or "".
func userConfigPath() string {
	dir := config.Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// configPath is the file `config set` writes to.
func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	if cfgFile != "" {
		return cfgFile
	}
	if p := userConfigPath(); p != "" {
		return p
	}
	return localConfigPath
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	if !debugFlag && !cfg.Debug {
		return nil
	}
	path := cfg.LogFile
	if path == "" {
		path = config.DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	cleanup, err := log.Init(path)
	if err != nil {
		return err
	}
	closeLog = cleanup
	log.Info(log.CatCLI, "starting", "command", cmd.CommandPath(), "version", version)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
