package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/agentbridge/internal/config"
	"github.com/zjrosen/agentbridge/internal/orchestration/client"
	"github.com/zjrosen/agentbridge/internal/pathdetect"
	"github.com/zjrosen/agentbridge/internal/ui/chatrender"
)

// fakeRun records one Run call.
type fakeRun struct {
	prompt      string
	previous    string
	attachments []string
}

// fakeLoop is a scripted AgentLoop with remote sessions. script[i] runs in
// its own goroutine after the i-th Run returns.
type fakeLoop struct {
	params client.Params
	script []func(f *fakeLoop)

	mu         sync.Mutex
	runs       []fakeRun
	uploads    []string
	canceled   int
	terminated bool

	sessions  []client.SessionInfo
	listErr   error
	uploadErr error
}

var _ client.AgentLoop = (*fakeLoop)(nil)
var _ client.RemoteSessions = (*fakeLoop)(nil)

func (f *fakeLoop) Type() client.ClientType { return client.ClientMock }

func (f *fakeLoop) Run(_ context.Context, input []client.InputItem, previous string, attachments []string) error {
	f.mu.Lock()
	if f.terminated {
		f.mu.Unlock()
		return errors.New("terminated")
	}
	idx := len(f.runs)
	run := fakeRun{previous: previous, attachments: attachments}
	for _, in := range input {
		for _, c := range in.Content {
			run.prompt += c.Text
		}
	}
	f.runs = append(f.runs, run)
	f.mu.Unlock()

	f.params.Callbacks.Loading(true)
	if idx < len(f.script) {
		go f.script[idx](f)
	}
	return nil
}

func (f *fakeLoop) Cancel() {
	f.mu.Lock()
	f.canceled++
	f.mu.Unlock()
	f.params.Callbacks.Loading(false)
}

func (f *fakeLoop) Terminate() {
	f.mu.Lock()
	f.terminated = true
	f.mu.Unlock()
}

func (f *fakeLoop) UploadFile(_ context.Context, path string, _ []byte, _ bool) (client.Attachment, error) {
	if f.uploadErr != nil {
		return client.Attachment{}, f.uploadErr
	}
	name := filepath.Base(path)
	f.mu.Lock()
	f.uploads = append(f.uploads, name)
	f.mu.Unlock()
	return client.Attachment{URL: "https://files.test/" + name, Filename: name, MimeType: "text/plain"}, nil
}

func (f *fakeLoop) ListSessions(context.Context) ([]client.SessionInfo, error) {
	return f.sessions, f.listErr
}

func (f *fakeLoop) ActiveSessions() map[string]client.SessionInfo { return nil }

func (f *fakeLoop) CreateRecursiveSession(context.Context, string, string) (string, error) {
	return "", errors.New("not supported")
}

func (f *fakeLoop) snapshot() []fakeRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeRun(nil), f.runs...)
}

// finishWith emits items, reports sessionID and ends the run.
func finishWith(sessionID string, items ...client.ResponseItem) func(*fakeLoop) {
	return func(f *fakeLoop) {
		f.params.Callbacks.LastResponseID(sessionID)
		for _, it := range items {
			f.params.Callbacks.Item(it)
		}
		f.params.Callbacks.Loading(false)
	}
}

// useFakeLoop routes openBridge to f for the duration of the test.
func useFakeLoop(t *testing.T, f *fakeLoop) {
	t.Helper()
	prev := newAgentLoop
	newAgentLoop = func(params client.Params) (client.AgentLoop, error) {
		f.params = params
		return f, nil
	}
	t.Cleanup(func() { newAgentLoop = prev })
}

// syncBuffer is a bytes.Buffer safe for the loop goroutine and the runner.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// scriptedPrompter answers with fixed choices and counts calls.
type scriptedPrompter struct {
	mu       sync.Mutex
	handling pathdetect.HandlingOption
	approve  bool
	asked    int
}

func (p *scriptedPrompter) ChooseHandling(string) (pathdetect.HandlingOption, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked++
	return p.handling, nil
}

func (p *scriptedPrompter) ConfirmPlan() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked++
	return p.approve, nil
}

func (p *scriptedPrompter) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asked
}

type testRunner struct {
	*runner
	out     *syncBuffer
	signals chan os.Signal
	dir     string
}

func newTestRunner(t *testing.T, f *fakeLoop, p prompter, opts runOptions) *testRunner {
	t.Helper()
	useFakeLoop(t, f)

	out := &syncBuffer{}
	b, err := openBridge(config.Defaults(), bridgeOptions{Out: out, Format: chatrender.FormatPretty})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	dir := t.TempDir()
	signals := make(chan os.Signal, 1)
	return &testRunner{
		runner: &runner{
			bridge:   b,
			prompter: p,
			detector: pathdetect.Detector{BaseDir: dir, HomeDir: dir},
			out:      out,
			signals:  signals,
			opts:     opts,
			maxBytes: 1 << 20,
		},
		out:     out,
		signals: signals,
		dir:     dir,
	}
}
