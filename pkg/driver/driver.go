// Package driver owns run lifecycle: it creates sessions, claims them
// for advancement, assembles the per-session graph, and executes it
// asynchronously so HTTP callers only ever poll.
package driver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"devteam/pkg/agent"
	"devteam/pkg/agent/llm"
	"devteam/pkg/config"
	"devteam/pkg/contextmgr"
	"devteam/pkg/dispatch"
	"devteam/pkg/graph"
	"devteam/pkg/logx"
	"devteam/pkg/persistence"
	"devteam/pkg/proto"
	"devteam/pkg/session"
	"devteam/pkg/team"
	"devteam/pkg/tools"
	"devteam/pkg/workspace"
)

// Driver coordinates run execution over the session store. One driver
// serves the whole process; per-session state lives in the store and in
// the graph collaborators built fresh for each advance.
type Driver struct {
	cfg     *config.Config
	store   session.Store
	client  llm.Client
	counter *contextmgr.TokenCounter
	events  *persistence.EventLog
	logger  *logx.Logger

	wg sync.WaitGroup
}

// New builds a driver. events may be nil when persistence is disabled;
// counter may be nil when the tokenizer failed to load.
func New(cfg *config.Config, store session.Store, client llm.Client,
	counter *contextmgr.TokenCounter, events *persistence.EventLog) *Driver {
	return &Driver{
		cfg:     cfg,
		store:   store,
		client:  client,
		counter: counter,
		events:  events,
		logger:  logx.NewLogger("driver"),
	}
}

// StartRun creates a session for the prompt and begins advancing it in
// the background. Returns the session id immediately.
func (d *Driver) StartRun(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", session.ErrEmptyPrompt
	}

	id, err := d.store.Create(prompt)
	if err != nil {
		return "", err
	}
	d.events.Record(id, persistence.EventSessionCreated, map[string]string{"prompt": prompt})

	if err := d.store.BeginAdvance(id); err != nil {
		// The session was just created; a claim failure here means the
		// store is broken, not a racing caller.
		return "", err
	}
	d.advanceAsync(ctx, id)

	d.logger.Info("started run %s", id)
	return id, nil
}

// Resume feeds a human response into a suspended or errored session and
// resumes the graph at the PM node, which re-reads the whole transcript.
// Errored sessions are resumable so a human can salvage a run after a
// model invocation failure.
func (d *Driver) Resume(ctx context.Context, sessionID, response string) error {
	response = strings.TrimSpace(response)
	if response == "" {
		return session.ErrEmptyResponse
	}

	if err := d.store.BeginAdvance(sessionID); err != nil {
		return err
	}

	var wrongState proto.Status
	err := d.store.Update(sessionID, func(s *session.Session) {
		if s.Status != proto.StatusWaitingForHuman && s.Status != proto.StatusError {
			wrongState = s.Status
			return
		}
		s.Transcript = append(s.Transcript, proto.NewHumanMessage(response))
		s.Log = append(s.Log, proto.HumanLogLine(response))
		s.Status = proto.StatusRunning
		s.Node = team.RolePM
		s.Question = ""
	})
	if err != nil {
		d.store.EndAdvance(sessionID)
		return err
	}
	if wrongState != "" {
		d.store.EndAdvance(sessionID)
		return fmt.Errorf("%w: session %s is %s and cannot take a response",
			session.ErrInvalidState, sessionID, wrongState)
	}

	d.events.Record(sessionID, persistence.EventHumanResponse, map[string]string{"response": response})
	d.advanceAsync(ctx, sessionID)

	d.logger.Info("resumed run %s", sessionID)
	return nil
}

// advanceAsync runs the graph for one advance cycle. The claim taken by
// the caller is released when the cycle ends, whatever the outcome.
// The run must outlive the HTTP request that triggered it, so request
// cancellation is detached while values are kept.
func (d *Driver) advanceAsync(ctx context.Context, sessionID string) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.store.EndAdvance(sessionID)

		runner, err := d.buildRunner(sessionID)
		if err != nil {
			d.failSession(sessionID, err)
			return
		}
		if err := runner.Run(ctx, sessionID); err != nil {
			d.logger.Error("run %s stopped: %v", sessionID, err)
		}
		if snap, err := d.store.Get(sessionID); err == nil {
			d.events.Record(sessionID, persistence.EventStatusChanged,
				map[string]string{"status": string(snap.Status)})
		}
	}()
}

// buildRunner assembles the graph for one session: a workspace rooted at
// the session id, one agent and one dispatcher per role with that role's
// tool allowlist.
func (d *Driver) buildRunner(sessionID string) (*graph.Runner, error) {
	ws, err := workspace.New(d.cfg.WorkspaceDir, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare workspace: %w", err)
	}
	agentCtx := tools.AgentContext{
		Workspace:    ws,
		SearchAPIKey: d.cfg.GoogleAPIKey,
		SearchCSEID:  d.cfg.GoogleCSEID,
	}

	agents := make(map[string]graph.TurnTaker)
	dispatchers := make(map[string]graph.ToolExecutor)
	for _, spec := range team.Pipeline(d.cfg.Pipeline.QAEnabled) {
		provider := tools.NewProvider(agentCtx, spec.AllowedTools)
		agents[spec.ID] = agent.New(spec, d.client, provider, d.cfg, sessionID, d.counter)
		dispatchers[spec.ID] = dispatch.New(provider, d.cfg.Timeouts.ToolCall)
	}

	return graph.NewRunner(d.store, agents, dispatchers, graph.Config{
		QAEnabled:        d.cfg.Pipeline.QAEnabled,
		MaxQARework:      d.cfg.Pipeline.MaxQARework,
		MaxTurns:         d.cfg.Pipeline.MaxTurns,
		FinishOnComplete: d.cfg.Pipeline.FinishOnComplete,
	}), nil
}

func (d *Driver) failSession(sessionID string, cause error) {
	d.logger.Error("run %s failed before execution: %v", sessionID, cause)
	_ = d.store.Update(sessionID, func(s *session.Session) {
		s.Log = append(s.Log, proto.ErrorLogLine(cause.Error()))
		s.Status = proto.StatusError
		s.Node = ""
	})
}

// Status returns a read-only snapshot for pollers.
func (d *Driver) Status(sessionID string) (session.Snapshot, error) {
	return d.store.Get(sessionID)
}

// Wait blocks until all in-flight advance cycles finish or the context
// expires. Used during shutdown.
func (d *Driver) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out with runs in flight: %w", ctx.Err())
	}
}

// StartEviction launches a TTL sweeper over the session store. A TTL of
// zero disables it. Returns a stop function.
func (d *Driver) StartEviction(ttl time.Duration) func() {
	if ttl <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if evicted := d.store.EvictIdle(ttl); evicted > 0 {
					d.logger.Info("evicted %d idle sessions", evicted)
				}
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}
