package devin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/agentbridge/internal/log"
	"github.com/zjrosen/agentbridge/internal/orchestration/client"
)

const (
	// DefaultPollInterval is the status poll cadence.
	DefaultPollInterval = 2 * time.Second

	// AutomationTag marks sessions created by CreateRecursiveSession.
	AutomationTag = "spawned-by-automation"

	maxTitleWidth = 60
)

func init() {
	client.RegisterClient(client.ClientDevin, func(params client.Params) (client.AgentLoop, error) {
		agent, err := New(params)
		if err != nil {
			return nil, err
		}
		return agent, nil
	})
}

// Agent drives Devin sessions for one logical client.
//
// A generation counter identifies the current run. Run and Cancel bump it
// while holding the emit lock, and every emission re-checks it under the
// same lock, so a superseded poller can never deliver items after the
// next generation starts. Callbacks run with the emit lock held and must
// not call Run, Cancel or Terminate synchronously.
type Agent struct {
	client       *Client
	registry     *SessionRegistry
	policy       client.ApprovalPolicy
	model        string
	callbacks    client.Callbacks
	normalizer   Normalizer
	pollInterval time.Duration

	generation atomic.Uint64

	mu             sync.Mutex
	state          client.RunState
	terminated     bool
	currentSession string
	hardCtx        context.Context
	hardCancel     context.CancelFunc
	signalCtx      context.Context
	signalCancel   context.CancelFunc
	pollCancel     context.CancelFunc

	emitMu sync.Mutex
}

// New validates the credential and builds an Agent from params.
func New(params client.Params) (*Agent, error) {
	cfg := params.Config
	c, err := NewClient(ClientConfig{
		BaseURL:        cfg.DevinBaseURL(),
		APIKey:         params.APIKey,
		HTTPClient:     cfg.HTTPClient(),
		MaxRetries:     cfg.GetExtensionInt(client.ExtDevinMaxRetries, DefaultMaxRetries),
		RetryBaseDelay: cfg.GetExtensionDuration(client.ExtDevinRetryBaseDelay, DefaultRetryBaseDelay),
	})
	if err != nil {
		return nil, err
	}

	policy := params.ApprovalPolicy
	if policy == "" {
		policy = client.PolicyFullAuto
	}

	hardCtx, hardCancel := context.WithCancel(context.Background())
	signalCtx, signalCancel := context.WithCancel(hardCtx)

	return &Agent{
		client:       c,
		registry:     NewSessionRegistry(),
		policy:       policy,
		model:        cfg.Model,
		callbacks:    params.Callbacks,
		normalizer:   Normalizer{Policy: policy},
		pollInterval: cfg.GetExtensionDuration(client.ExtDevinPollInterval, DefaultPollInterval),
		hardCtx:      hardCtx,
		hardCancel:   hardCancel,
		signalCtx:    signalCtx,
		signalCancel: signalCancel,
	}, nil
}

// Type returns client.ClientDevin.
func (a *Agent) Type() client.ClientType {
	return client.ClientDevin
}

// Generation returns the current generation number.
func (a *Agent) Generation() uint64 {
	return a.generation.Load()
}

// State returns the state of the current run.
func (a *Agent) State() client.RunState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// CurrentSession returns the session of the latest run, or "".
func (a *Agent) CurrentSession() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentSession
}

// Run supersedes any previous run, creates or continues a session, emits
// a processing notice and starts polling in the background. Failures are
// reported as items; the only error returned is ErrAgentTerminated.
func (a *Agent) Run(ctx context.Context, input []client.InputItem, previousResponseID string, attachments []string) error {
	a.mu.Lock()
	if a.terminated {
		a.mu.Unlock()
		return ErrAgentTerminated
	}
	gen := a.bumpGeneration()
	a.stopPollerLocked()
	a.signalCancel()
	a.signalCtx, a.signalCancel = context.WithCancel(a.hardCtx)
	runCtx, runCancel := context.WithCancel(a.signalCtx)
	a.state = client.StateStarting
	a.mu.Unlock()

	stopAfter := context.AfterFunc(ctx, runCancel)
	release := func() {
		stopAfter()
		runCancel()
	}

	a.setLoading(gen, true)

	prompt := PromptFromInput(input)
	all := append(ExtractAttachments(input), attachments...)

	log.Info(log.CatAgent, "run started", "generation", gen, "continue", previousResponseID != "", "attachments", len(all))

	sessionID, err := a.resolveSession(runCtx, gen, prompt, previousResponseID, all)
	if err != nil {
		release()
		if a.generation.Load() != gen {
			log.Debug(log.CatAgent, "superseded run dropped session error", "generation", gen, "error", err)
			return nil
		}
		if errors.Is(err, context.Canceled) {
			a.finish(gen, client.StateCanceled, client.NewSystemText(client.KindNotice, "Request canceled."))
			return nil
		}
		log.ErrorErr(log.CatAgent, "session setup failed", err, "generation", gen)
		a.finish(gen, client.StateFailed, client.NewSystemText(client.KindError, DescribeError(err)))
		return nil
	}

	if !a.emit(gen, client.NewSystemText(client.KindNotice, fmt.Sprintf("Devin is working on it (session %s)...", sessionID))) {
		release()
		return nil
	}
	a.lastResponseID(gen, sessionID)
	a.startPolling(runCtx, gen, sessionID, release)
	return nil
}

func (a *Agent) resolveSession(ctx context.Context, gen uint64, prompt, previousID string, attachments []string) (string, error) {
	if previousID != "" {
		if err := a.client.SendMessage(ctx, previousID, prompt, attachments); err != nil {
			return "", err
		}
		a.setCurrentSession(gen, previousID)
		return previousID, nil
	}

	info, err := a.client.CreateSession(ctx, CreateSessionRequest{
		Prompt:       prompt,
		EffortLevel:  EffortForModel(a.model),
		PlanningMode: PlanningModeForPolicy(a.policy),
	})
	if err != nil {
		return "", err
	}
	if info.Title == "" {
		info.Title = titleFromPrompt(prompt)
	}
	if info.Status == "" {
		info.Status = client.SessionCreated
	}
	a.registry.Observe(info)
	a.setCurrentSession(gen, info.ID)

	if len(attachments) > 0 {
		if err := a.client.SendMessage(ctx, info.ID, "Files attached for this request.", attachments); err != nil {
			return "", err
		}
	}
	return info.ID, nil
}

func (a *Agent) startPolling(runCtx context.Context, gen uint64, sessionID string, release func()) {
	a.mu.Lock()
	if a.generation.Load() != gen {
		a.mu.Unlock()
		release()
		return
	}
	a.stopPollerLocked()
	pollCtx, pollCancel := context.WithCancel(runCtx)
	a.pollCancel = pollCancel
	a.state = client.StatePolling
	a.mu.Unlock()

	go a.poll(pollCtx, gen, sessionID, release)
}

// poll checks the session every pollInterval until it reaches a terminal
// status or ctx ends. A completed session ends the run even without
// output; the caller then sees a notice instead of a silent stop. A
// pending plan seen mid-run is announced once and not repeated at
// completion. Status errors are logged and retried on the next tick.
func (a *Agent) poll(ctx context.Context, gen uint64, sessionID string, release func()) {
	defer release()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	var announced string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if a.generation.Load() != gen {
			return
		}

		resp, err := a.client.GetStatus(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn(log.CatAgent, "poll failed", "session", sessionID, "generation", gen, "error", err)
			continue
		}
		if a.generation.Load() != gen {
			return
		}

		a.registry.Observe(client.SessionInfo{ID: sessionID, Status: resp.Status, Title: resp.Title})

		switch resp.Status {
		case client.SessionCompleted:
			view := *resp
			if view.Plan != nil && planKey(view.Plan) == announced {
				view.Plan = nil
			}
			items := a.normalizer.Normalize(&view)
			if !resp.HasOutput() {
				items = append(items, client.NewSystemText(client.KindNotice, "Devin finished without producing output."))
			}
			a.finish(gen, client.StateCompleted, items...)
			return

		case client.SessionFailed:
			msg := resp.ErrorText()
			if msg == "" {
				msg = "Unknown error"
			}
			a.finish(gen, client.StateFailed, client.NewSystemText(client.KindError, "Devin session failed: "+msg))
			return

		default:
			if resp.Plan != nil && resp.Plan.Status == PlanPending {
				if key := planKey(resp.Plan); key != announced {
					announced = key
					a.emit(gen, a.normalizer.Plan(resp.Plan)...)
				}
			}
		}
	}
}

func planKey(plan *Plan) string {
	return string(plan.Status) + "\x00" + plan.Content
}

// finish emits the final items of generation gen, records its terminal
// state and signals loading-finished.
func (a *Agent) finish(gen uint64, state client.RunState, items ...client.ResponseItem) {
	if !a.emit(gen, items...) {
		return
	}
	a.mu.Lock()
	if a.generation.Load() == gen {
		a.state = state
	}
	a.mu.Unlock()
	a.setLoading(gen, false)
	log.Info(log.CatAgent, "run finished", "generation", gen, "state", state)
}

// Cancel stops the current run. It is a no-op after Terminate.
func (a *Agent) Cancel() {
	a.mu.Lock()
	if a.terminated {
		a.mu.Unlock()
		return
	}
	a.cancelLocked()
	a.mu.Unlock()
	a.loadingFinished()
}

// Terminate permanently shuts the agent down, aborting any in-flight call.
func (a *Agent) Terminate() {
	a.mu.Lock()
	if a.terminated {
		a.mu.Unlock()
		return
	}
	a.terminated = true
	a.hardCancel()
	a.cancelLocked()
	a.mu.Unlock()
	a.loadingFinished()
	log.Info(log.CatAgent, "agent terminated")
}

// cancelLocked aborts the current signal, arms a fresh one and supersedes
// the current generation. Caller must hold a.mu.
func (a *Agent) cancelLocked() {
	a.signalCancel()
	a.signalCtx, a.signalCancel = context.WithCancel(a.hardCtx)
	a.stopPollerLocked()
	gen := a.bumpGeneration()
	if a.state == client.StateStarting || a.state == client.StatePolling {
		a.state = client.StateCanceled
	}
	log.Debug(log.CatAgent, "canceled", "generation", gen)
}

func (a *Agent) stopPollerLocked() {
	if a.pollCancel != nil {
		a.pollCancel()
		a.pollCancel = nil
	}
}

func (a *Agent) bumpGeneration() uint64 {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	return a.generation.Add(1)
}

// emit delivers items if gen is still current. It reports whether gen
// was current.
func (a *Agent) emit(gen uint64, items ...client.ResponseItem) bool {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	if a.generation.Load() != gen {
		return false
	}
	for _, item := range items {
		a.callbacks.Item(item)
	}
	return true
}

func (a *Agent) setLoading(gen uint64, loading bool) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	if a.generation.Load() == gen {
		a.callbacks.Loading(loading)
	}
}

func (a *Agent) loadingFinished() {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	a.callbacks.Loading(false)
}

func (a *Agent) lastResponseID(gen uint64, id string) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	if a.generation.Load() == gen {
		a.callbacks.LastResponseID(id)
	}
}

func (a *Agent) setCurrentSession(gen uint64, id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation.Load() == gen {
		a.currentSession = id
	}
}

// withHard derives a context that is also canceled by Terminate.
func (a *Agent) withHard(ctx context.Context) (context.Context, context.CancelFunc) {
	a.mu.Lock()
	hard := a.hardCtx
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(hard, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// UploadFile uploads data under the base name of path. When presentToAgent
// is set and a session is active, the file is also sent to that session
// and a confirmation notice is emitted.
func (a *Agent) UploadFile(ctx context.Context, path string, data []byte, presentToAgent bool) (client.Attachment, error) {
	ctx, cancel := a.withHard(ctx)
	defer cancel()

	name := filepath.Base(path)
	att := client.Attachment{Filename: name, MimeType: DetectMIMEType(name, data)}

	url, err := a.client.UploadFile(ctx, name, data, att.MimeType)
	if err != nil {
		log.ErrorErr(log.CatUpload, "upload failed", err, "file", name)
		return client.Attachment{}, err
	}
	att.URL = url
	log.Info(log.CatUpload, "uploaded", "file", name, "mime", att.MimeType, "bytes", len(data))

	if !presentToAgent {
		return att, nil
	}
	sessionID := a.CurrentSession()
	if sessionID == "" {
		return att, nil
	}
	if err := a.client.SendMessage(ctx, sessionID, fmt.Sprintf("I've uploaded %s for you to use.", name), []string{url}); err != nil {
		return att, err
	}
	a.emit(a.generation.Load(), client.NewSystemText(client.KindNotice, fmt.Sprintf("Uploaded %s to session %s.", name, sessionID)))
	return att, nil
}

// ListSessions fetches the remote session list and records it.
func (a *Agent) ListSessions(ctx context.Context) ([]client.SessionInfo, error) {
	ctx, cancel := a.withHard(ctx)
	defer cancel()

	sessions, err := a.client.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	a.registry.ObserveAll(sessions)
	return sessions, nil
}

// ActiveSessions returns a snapshot of the session registry.
func (a *Agent) ActiveSessions() map[string]client.SessionInfo {
	return a.registry.Snapshot()
}

// CreateRecursiveSession starts a session tagged as spawned by automation.
// It does not touch the current run or its poller.
func (a *Agent) CreateRecursiveSession(ctx context.Context, prompt, parentID string) (string, error) {
	ctx, cancel := a.withHard(ctx)
	defer cancel()

	info, err := a.client.CreateSession(ctx, CreateSessionRequest{
		Prompt:          prompt,
		EffortLevel:     EffortForModel(a.model),
		PlanningMode:    PlanningAutoConfirm,
		Tags:            []string{AutomationTag},
		ParentSessionID: parentID,
	})
	if err != nil {
		return "", err
	}
	if info.Title == "" {
		info.Title = "[auto] " + titleFromPrompt(prompt)
	}
	if info.Status == "" {
		info.Status = client.SessionCreated
	}
	a.registry.Observe(info)
	log.Info(log.CatSession, "recursive session created", "id", info.ID, "parent", parentID)
	return info.ID, nil
}

func titleFromPrompt(prompt string) string {
	title := strings.TrimSpace(prompt)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if title == "" {
		return "Untitled session"
	}
	return runewidth.Truncate(title, maxTitleWidth, "...")
}

var (
	_ client.AgentLoop      = (*Agent)(nil)
	_ client.RemoteSessions = (*Agent)(nil)
)
