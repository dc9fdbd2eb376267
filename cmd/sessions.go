package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/zjrosen/agentbridge/internal/config"
	"github.com/zjrosen/agentbridge/internal/orchestration/client"
	"github.com/zjrosen/agentbridge/internal/orchestration/devin"
)

const (
	maxListedTitleWidth = 50
	requestTimeout      = 2 * time.Minute
)

var sessionsJSON bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List your Devin sessions",
	Long: `List the sessions known to the Devin API.

Examples:
  agentbridge sessions
  agentbridge sessions --json | jq '.[].id'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, remote, err := openRemote(cfg, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer b.Close()

		ctx, cancel := context.WithTimeout(commandContext(cmd), requestTimeout)
		defer cancel()

		sessions, err := remote.ListSessions(ctx)
		if err != nil {
			return errors.New(devin.DescribeError(err))
		}
		return formatSessions(cmd.OutOrStdout(), sessions, sessionsJSON)
	},
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "print sessions as JSON")
	rootCmd.AddCommand(sessionsCmd)
}

// openRemote validates c and opens a bridge whose loop keeps remote sessions.
func openRemote(c config.Config, out io.Writer) (*bridge, client.RemoteSessions, error) {
	if err := config.Validate(c); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	b, err := openBridge(c, bridgeOptions{Out: out})
	if err != nil {
		return nil, nil, err
	}
	remote, err := b.requireRemote(c.Model)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return b, remote, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// formatSessions writes sessions as an aligned table or as JSON. Titles are
// truncated by display width so wide characters stay aligned.
func formatSessions(w io.Writer, sessions []client.SessionInfo, asJSON bool) error {
	if asJSON {
		if sessions == nil {
			sessions = []client.SessionInfo{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions.")
		return err
	}

	idWidth, statusWidth := runewidth.StringWidth("ID"), runewidth.StringWidth("STATUS")
	for _, s := range sessions {
		idWidth = max(idWidth, runewidth.StringWidth(s.ID))
		statusWidth = max(statusWidth, runewidth.StringWidth(string(s.Status)))
	}

	var b strings.Builder
	row := func(id, status, title string) {
		b.WriteString(runewidth.FillRight(id, idWidth))
		b.WriteString("  ")
		b.WriteString(runewidth.FillRight(status, statusWidth))
		b.WriteString("  ")
		b.WriteString(strings.TrimRight(title, " "))
		b.WriteString("\n")
	}
	row("ID", "STATUS", "TITLE")
	for _, s := range sessions {
		row(s.ID, string(s.Status), runewidth.Truncate(s.Title, maxListedTitleWidth, "…"))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
