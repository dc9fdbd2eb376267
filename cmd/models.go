package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/agentbridge/internal/orchestration/client"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the supported Devin models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printModels(cmd.OutOrStdout(), cfg.Model)
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

// printModels lists the Devin tiers, marking current.
func printModels(w io.Writer, current string) error {
	for _, m := range client.DevinModels {
		marker := " "
		if strings.EqualFold(m, current) {
			marker = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", marker, m); err != nil {
			return err
		}
	}
	if current != "" && !client.IsDevinModel(current) {
		_, err := fmt.Fprintf(w, "\nConfigured model %q uses the %s client.\n", current, client.ClientForModel(current))
		return err
	}
	return nil
}
