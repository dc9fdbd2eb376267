package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/agentbridge/internal/config"
	"github.com/zjrosen/agentbridge/internal/credential"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the agentbridge config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := cfgFile
		if path == "" {
			path = userConfigPath()
		}
		if err := initConfigFile(path, configInitForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set one config key, keeping comments",
	Long: `Set one dotted config key in the config file in use.

Examples:
  agentbridge config set model devin-deep
  agentbridge config set devin.poll_interval 5s
  agentbridge config set tracing.enabled true`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if err := setConfigValue(path, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return showConfig(cmd.OutOrStdout(), viper.AllSettings(), viper.ConfigFileUsed())
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configSetCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfigFile(path string, force bool) error {
	if path == "" {
		return errors.New("no config path: pass --config")
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	return config.WriteDefaultConfig(path)
}

// setConfigValue validates the result of applying key=value to the file
// at path before saving it.
func setConfigValue(path, key, value string) error {
	if !config.IsKnownKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}

	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	v.Set(key, value)

	var next config.Config
	if err := v.Unmarshal(&next); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := config.Validate(next); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return config.SaveSetting(path, key, value)
}

// showConfig prints settings as YAML with the API key masked.
func showConfig(w io.Writer, settings map[string]any, used string) error {
	if devin, ok := settings["devin"].(map[string]any); ok {
		if key, ok := devin["api_key"].(string); ok && key != "" {
			devin["api_key"] = credential.Mask(key)
		}
	}
	if used != "" {
		if _, err := fmt.Fprintf(w, "# %s\n", used); err != nil {
			return err
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
