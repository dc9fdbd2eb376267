package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/agentbridge/internal/orchestration/devin"
)

var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Upload files to Devin and print their URLs",
	Long: `Upload files to Devin and print the URL of each one. The URLs can be
referenced in later prompts.

Examples:
  agentbridge upload ./design.pdf ./schema.sql`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, remote, err := openRemote(cfg, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer b.Close()

		for _, path := range args {
			data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the user
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			ctx, cancel := context.WithTimeout(commandContext(cmd), requestTimeout)
			att, err := remote.UploadFile(ctx, path, data, false)
			cancel()
			if err != nil {
				return fmt.Errorf("uploading %s: %s", filepath.Base(path), devin.DescribeError(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", att.Filename, att.MimeType, att.URL)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
