package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/zjrosen/agentbridge/internal/config"
	"github.com/zjrosen/agentbridge/internal/credential"
	"github.com/zjrosen/agentbridge/internal/log"
	"github.com/zjrosen/agentbridge/internal/orchestration/client"
	_ "github.com/zjrosen/agentbridge/internal/orchestration/devin" // registers the devin client
	"github.com/zjrosen/agentbridge/internal/orchestration/tracing"
	"github.com/zjrosen/agentbridge/internal/ui/chatrender"
	"github.com/zjrosen/agentbridge/internal/ui/markdown"
)

// newAgentLoop builds the loop for params. Tests replace it.
var newAgentLoop = func(params client.Params) (client.AgentLoop, error) {
	return client.NewAgentProvider(params).Loop()
}

// bridge connects one agent loop to the terminal for a command invocation.
type bridge struct {
	loop    client.AgentLoop
	remote  client.RemoteSessions // nil when the loop keeps no remote sessions
	printer *chatrender.Printer
	events  *runEvents
	tracer  *tracing.Provider
}

// bridgeOptions carries the output settings of a command.
type bridgeOptions struct {
	Out    io.Writer
	Format chatrender.Format
}

// openBridge builds the loop from c with tracing and rendering wired in.
func openBridge(c config.Config, opts bridgeOptions) (*bridge, error) {
	md, err := markdown.New(c.UI.Width, c.UI.MarkdownStyle)
	if err != nil {
		log.Warn(log.CatCLI, "markdown renderer unavailable", "error", err)
		md = nil
	}
	b := &bridge{
		printer: chatrender.NewPrinter(opts.Out, md, opts.Format),
		events:  newRunEvents(),
	}

	policy, err := client.ParseApprovalPolicy(c.ApprovalPolicy)
	if err != nil {
		return nil, err
	}

	wd, _ := os.Getwd()
	cc := c.ClientConfig(wd)

	tp, err := tracing.NewProvider(c.Tracing.Tracing())
	if err != nil {
		log.Warn(log.CatCLI, "tracing disabled", "error", err)
	} else {
		b.tracer = tp
		cc.SetExtension(client.ExtHTTPClient, tp.HTTPClient())
	}

	loop, err := newAgentLoop(client.Params{
		APIKey:         c.APIKey(),
		ApprovalPolicy: policy,
		Config:         cc,
		Callbacks: client.Callbacks{
			OnItem:           b.onItem,
			OnLoading:        b.events.loading,
			OnLastResponseID: b.events.lastResponseID,
		},
	})
	if err != nil {
		b.shutdownTracing()
		return nil, describeLoopError(c.Model, err)
	}
	b.loop = loop
	b.remote, _ = loop.(client.RemoteSessions)
	return b, nil
}

func describeLoopError(model string, err error) error {
	switch {
	case errors.Is(err, credential.ErrInvalidCredential):
		return fmt.Errorf("%w\n%s", err, client.DevinProvider.KeyInstructions)
	case errors.Is(err, client.ErrUnknownClientType):
		return fmt.Errorf("model %q is served by the %s client, which this build does not include",
			model, client.ClientForModel(model))
	default:
		return err
	}
}

func (b *bridge) onItem(item client.ResponseItem) {
	if err := b.printer.Print(item); err != nil {
		log.ErrorErr(log.CatCLI, "writing item failed", err)
	}
	b.events.item(item)
}

// requireRemote returns the remote session API or an error naming the model.
func (b *bridge) requireRemote(model string) (client.RemoteSessions, error) {
	if b.remote == nil {
		return nil, fmt.Errorf("model %q does not keep remote sessions", model)
	}
	return b.remote, nil
}

// Close terminates the loop and flushes traces.
func (b *bridge) Close() {
	if b.loop != nil {
		b.loop.Terminate()
	}
	b.shutdownTracing()
}

func (b *bridge) shutdownTracing() {
	if b.tracer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.tracer.Shutdown(ctx); err != nil {
		log.ErrorErr(log.CatCLI, "tracing shutdown failed", err)
	}
}

// runEvents turns loop callbacks into channel signals for the command
// goroutine. Callbacks never block.
type runEvents struct {
	mu        sync.Mutex
	done      chan struct{}
	closed    bool
	sessionID string
	failed    bool
	approvals chan struct{}
}

func newRunEvents() *runEvents {
	return &runEvents{approvals: make(chan struct{}, 1)}
}

// arm starts waiting for the next loading-finished signal.
func (e *runEvents) arm() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done = make(chan struct{})
	e.closed = false
	e.failed = false
	return e.done
}

func (e *runEvents) loading(loading bool) {
	if loading {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != nil && !e.closed {
		close(e.done)
		e.closed = true
	}
}

func (e *runEvents) lastResponseID(id string) {
	e.mu.Lock()
	e.sessionID = id
	e.mu.Unlock()
}

func (e *runEvents) item(item client.ResponseItem) {
	switch item.Kind {
	case client.KindApprovalRequest:
		select {
		case e.approvals <- struct{}{}:
		default:
		}
	case client.KindError:
		e.mu.Lock()
		e.failed = true
		e.mu.Unlock()
	}
}

func (e *runEvents) session() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

func (e *runEvents) runFailed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed
}
