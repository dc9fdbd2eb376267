package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/agentbridge/internal/config"
	"github.com/zjrosen/agentbridge/internal/log"
	"github.com/zjrosen/agentbridge/internal/orchestration/client"
	"github.com/zjrosen/agentbridge/internal/orchestration/devin"
	"github.com/zjrosen/agentbridge/internal/pathdetect"
	"github.com/zjrosen/agentbridge/internal/ui/chatrender"
)

// errRequestFailed is returned when the request ended with an error item.
// The item itself has already been shown.
var errRequestFailed = errors.New("request failed")

const canceledNotice = "Request canceled."

// runOptions are the per-invocation settings of a request.
type runOptions struct {
	SessionID      string
	Attach         []string
	Model          string
	ApprovalPolicy string
	Yes            bool
	NoDetect       bool
	JSON           bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Send a request to Devin and follow it to completion",
	Long: `Send a request to Devin and follow the session until it finishes.

The prompt is taken from the arguments, or from stdin when no arguments are
given and stdin is not a terminal.

Examples:
  agentbridge run "fix the flaky test in ./pkg/cache/cache_test.go"
  agentbridge run --session devin-abc123 "now add a benchmark"
  agentbridge run --approval-policy approve-plan "refactor the config loader"
  git diff | agentbridge run --attach ./notes.md`,
	Args: cobra.ArbitraryArgs,
	RunE: runRequest,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

// addRunFlags registers the request flags on c. The root command and run
// share the same options.
func addRunFlags(c *cobra.Command) {
	c.Flags().StringVarP(&runOpts.SessionID, "session", "s", "", "continue an existing Devin session")
	c.Flags().StringArrayVarP(&runOpts.Attach, "attach", "a", nil, "upload a file with the request (repeatable)")
	c.Flags().StringVarP(&runOpts.Model, "model", "m", "", "model to use (default from config)")
	c.Flags().StringVar(&runOpts.ApprovalPolicy, "approval-policy", "",
		"suggest | auto-edit | full-auto | approve-plan (default from config)")
	c.Flags().BoolVarP(&runOpts.Yes, "yes", "y", false, "upload detected files and approve plans without asking")
	c.Flags().BoolVar(&runOpts.NoDetect, "no-detect", false, "do not look for local file paths in the prompt")
	c.Flags().BoolVar(&runOpts.JSON, "json", false, "print items as JSON lines")
}

func runRequest(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	c := cfg
	if runOpts.Model != "" {
		c.Model = runOpts.Model
	}
	if runOpts.ApprovalPolicy != "" {
		c.ApprovalPolicy = runOpts.ApprovalPolicy
	}
	if err := config.Validate(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	format := chatrender.FormatPretty
	if runOpts.JSON {
		format = chatrender.FormatJSON
	}
	b, err := openBridge(c, bridgeOptions{Out: cmd.OutOrStdout(), Format: format})
	if err != nil {
		return err
	}
	defer b.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	r := &runner{
		bridge:   b,
		prompter: huhPrompter{},
		detector: pathdetect.NewDetector(),
		out:      cmd.OutOrStdout(),
		signals:  sigCh,
		opts:     runOpts,
		maxBytes: c.Devin.MaxUploadBytes,
	}
	return r.run(cmd.Context(), prompt)
}

// readPrompt joins args, falling back to piped stdin.
func readPrompt(args []string, stdin io.Reader) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && stdinIsPiped(stdin) {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return "", errors.New("a prompt is required")
	}
	return prompt, nil
}

func stdinIsPiped(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice == 0
}

// runner drives one request through the loop, including plan approval
// round trips.
type runner struct {
	bridge   *bridge
	prompter prompter
	detector pathdetect.Detector
	out      io.Writer
	signals  <-chan os.Signal
	opts     runOptions
	maxBytes int64
}

func (r *runner) run(ctx context.Context, prompt string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	prompt, proceed, err := r.resolvePaths(ctx, prompt)
	if err != nil {
		return err
	}
	if !proceed {
		fmt.Fprintln(r.out, canceledNotice)
		return nil
	}

	attachments, err := r.uploadAttachments(ctx)
	if err != nil {
		return err
	}

	input := []client.InputItem{client.UserText(prompt)}
	sessionID := r.opts.SessionID
	for {
		done := r.bridge.events.arm()
		if err := r.bridge.loop.Run(ctx, input, sessionID, attachments); err != nil {
			return err
		}
		attachments = nil

		reply, again, err := r.wait(ctx, done)
		if err != nil {
			return err
		}
		if !again {
			break
		}
		log.Info(log.CatCLI, "plan reply", "reply", reply)
		input = []client.InputItem{client.UserText(reply)}
		sessionID = r.bridge.events.session()
	}

	if r.bridge.events.runFailed() {
		return errRequestFailed
	}
	return nil
}

// wait blocks until the run finishes, a plan needs an answer or the user
// interrupts. It returns the reply to send when the loop should go again.
func (r *runner) wait(ctx context.Context, done <-chan struct{}) (string, bool, error) {
	select {
	case <-done:
		select {
		case <-r.bridge.events.approvals:
			return r.answerPlan()
		default:
			return "", false, nil
		}
	case <-r.bridge.events.approvals:
		return r.answerPlan()
	case sig := <-r.signals:
		log.Info(log.CatCLI, "interrupted", "signal", sig.String())
		r.bridge.loop.Cancel()
		fmt.Fprintln(r.out, canceledNotice)
		return "", false, nil
	case <-ctx.Done():
		r.bridge.loop.Cancel()
		return "", false, ctx.Err()
	}
}

func (r *runner) answerPlan() (string, bool, error) {
	approve := r.opts.Yes
	if !approve {
		var err error
		approve, err = r.prompter.ConfirmPlan()
		if err != nil {
			return "", false, err
		}
	}
	if approve {
		return "yes", true, nil
	}
	return "no", true, nil
}

// resolvePaths uploads the local files named in prompt, as the user
// chooses, and substitutes their URLs. proceed is false when the user
// canceled.
func (r *runner) resolvePaths(ctx context.Context, prompt string) (string, bool, error) {
	if r.opts.NoDetect || r.bridge.remote == nil {
		return prompt, true, nil
	}

	var replacements []pathdetect.Replacement
	for _, d := range r.detector.Detect(prompt) {
		if !pathdetect.ShouldProcessRemotely(d.Path, r.maxBytes) {
			log.Info(log.CatUpload, "file too large to upload", "path", d.Path)
			fmt.Fprintf(r.out, "%s is too large to upload; leaving the path as written.\n", d.Written)
			continue
		}

		choice := pathdetect.Upload
		if !r.opts.Yes {
			var err error
			choice, err = r.prompter.ChooseHandling(d.Written)
			if err != nil {
				return "", false, err
			}
		}

		switch choice {
		case pathdetect.Cancel:
			return "", false, nil
		case pathdetect.ProcessLocally:
			continue
		}

		att, err := r.upload(ctx, d.Path)
		if err != nil {
			return "", false, err
		}
		replacements = append(replacements, pathdetect.Replacement{Written: d.Written, URL: att.URL})
	}
	return pathdetect.Substitute(prompt, replacements), true, nil
}

// uploadAttachments uploads every --attach file and returns their URLs.
func (r *runner) uploadAttachments(ctx context.Context) ([]string, error) {
	if len(r.opts.Attach) == 0 {
		return nil, nil
	}
	if r.bridge.remote == nil {
		return nil, errors.New("--attach needs a model that keeps remote sessions")
	}
	urls := make([]string, 0, len(r.opts.Attach))
	for _, path := range r.opts.Attach {
		att, err := r.upload(ctx, path)
		if err != nil {
			return nil, err
		}
		urls = append(urls, att.URL)
	}
	return urls, nil
}

func (r *runner) upload(ctx context.Context, path string) (client.Attachment, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the user
	if err != nil {
		return client.Attachment{}, fmt.Errorf("reading %s: %w", path, err)
	}
	att, err := r.bridge.remote.UploadFile(ctx, path, data, false)
	if err != nil {
		return client.Attachment{}, fmt.Errorf("uploading %s: %s", filepath.Base(path), devin.DescribeError(err))
	}
	fmt.Fprintf(r.out, "Uploaded %s (%s)\n", att.Filename, att.MimeType)
	return att, nil
}
