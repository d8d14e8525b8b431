package driver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"devteam/pkg/agent/llm"
	"devteam/pkg/config"
	"devteam/pkg/proto"
	"devteam/pkg/session"
)

// scriptedClient replays canned completions in order, repeating the last
// one once the script runs out.
type scriptedClient struct {
	mu        sync.Mutex
	responses []*llm.CompletionResponse
	i         int
}

func (c *scriptedClient) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.i >= len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	resp := c.responses[c.i]
	c.i++
	return resp, nil
}

func (c *scriptedClient) Provider() config.Provider { return config.ProviderGoogle }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.WorkspaceDir = t.TempDir()
	cfg.Persistence.Enabled = false
	cfg.Pipeline.QAEnabled = false
	return cfg
}

func newTestDriver(t *testing.T, responses ...*llm.CompletionResponse) (*Driver, session.Store) {
	t.Helper()
	store := session.NewMemoryStore()
	d := New(testConfig(t), store, &scriptedClient{responses: responses}, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Wait(ctx)
	})
	return d, store
}

func waitForStatus(t *testing.T, d *Driver, id string, want proto.Status) session.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, err := d.Status(id)
		if err != nil {
			t.Fatal(err)
		}
		if snap.Status == want {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %s, want %s; log:\n%s", snap.Status, want, strings.Join(snap.Log, "\n"))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartRunRejectsEmptyPrompt(t *testing.T) {
	d, _ := newTestDriver(t, &llm.CompletionResponse{Content: "hi"})
	if _, err := d.StartRun(context.Background(), "   "); err == nil {
		t.Error("blank prompt should be rejected")
	}
}

func TestStartRunAndResumeRoundTrip(t *testing.T) {
	d, _ := newTestDriver(t,
		&llm.CompletionResponse{Content: "CLARIFICATION_NEEDED: Single user or multi user?"},
		&llm.CompletionResponse{Content: "PROJECT_COMPLETED: Nothing further to build."},
	)

	id, err := d.StartRun(context.Background(), "Build a todo app")
	if err != nil {
		t.Fatal(err)
	}

	snap := waitForStatus(t, d, id, proto.StatusWaitingForHuman)
	if snap.Question != "Single user or multi user?" {
		t.Errorf("question = %q", snap.Question)
	}

	if err := d.Resume(context.Background(), id, "Single user"); err != nil {
		t.Fatal(err)
	}

	snap = waitForStatus(t, d, id, proto.StatusWaitingForHuman)
	joined := strings.Join(snap.Log, "\n")
	if !strings.Contains(joined, "**Human**: Single user") {
		t.Errorf("human response missing from log:\n%s", joined)
	}
	if !strings.Contains(joined, "Nothing further to build.") {
		t.Errorf("completion message missing:\n%s", joined)
	}
	if snap.Question != "" {
		t.Errorf("question should clear after completion, got %q", snap.Question)
	}
}

// recoveringClient fails a fixed number of calls before delegating to
// the script.
type recoveringClient struct {
	mu       sync.Mutex
	failures int
	inner    scriptedClient
}

func (c *recoveringClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	if c.failures > 0 {
		c.failures--
		c.mu.Unlock()
		return nil, errors.New("model unavailable")
	}
	c.mu.Unlock()
	return c.inner.Complete(ctx, req)
}

func (c *recoveringClient) Provider() config.Provider { return config.ProviderGoogle }

func TestResumeAfterModelError(t *testing.T) {
	store := session.NewMemoryStore()
	client := &recoveringClient{
		failures: 1,
		inner: scriptedClient{responses: []*llm.CompletionResponse{
			{Content: "PROJECT_COMPLETED: Recovered and finished."},
		}},
	}
	d := New(testConfig(t), store, client, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Wait(ctx)
	})

	id, err := d.StartRun(context.Background(), "Build a todo app")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, d, id, proto.StatusError)

	// An errored session stays answerable so the human can retry.
	if err := d.Resume(context.Background(), id, "try again"); err != nil {
		t.Fatalf("resume from error state failed: %v", err)
	}

	snap := waitForStatus(t, d, id, proto.StatusWaitingForHuman)
	joined := strings.Join(snap.Log, "\n")
	if !strings.Contains(joined, "**Human**: try again") {
		t.Errorf("retry response missing from log:\n%s", joined)
	}
	if !strings.Contains(joined, "Recovered and finished.") {
		t.Errorf("completion after retry missing:\n%s", joined)
	}
}

func TestFinishOnCompleteConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.FinishOnComplete = true

	store := session.NewMemoryStore()
	d := New(cfg, store, &scriptedClient{responses: []*llm.CompletionResponse{
		{Content: "PROJECT_COMPLETED: Done."},
	}}, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Wait(ctx)
	})

	id, err := d.StartRun(context.Background(), "Build a todo app")
	if err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, d, id, proto.StatusFinished)
}

func TestResumeUnknownSession(t *testing.T) {
	d, _ := newTestDriver(t, &llm.CompletionResponse{Content: "hi"})
	if err := d.Resume(context.Background(), "nope", "x"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResumeRunningSessionIsInvalid(t *testing.T) {
	d, store := newTestDriver(t, &llm.CompletionResponse{Content: "hi"})
	id, err := store.Create("x") // running, unclaimed
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Resume(context.Background(), id, "answer"); !errors.Is(err, session.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestResumeBusySession(t *testing.T) {
	d, store := newTestDriver(t, &llm.CompletionResponse{Content: "hi"})
	id, err := store.Create("x")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.BeginAdvance(id); err != nil {
		t.Fatal(err)
	}
	defer store.EndAdvance(id)

	if err := d.Resume(context.Background(), id, "answer"); !errors.Is(err, session.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestResumeEmptyResponse(t *testing.T) {
	d, _ := newTestDriver(t, &llm.CompletionResponse{Content: "hi"})
	if err := d.Resume(context.Background(), "any", ""); err == nil {
		t.Error("blank response should be rejected")
	}
}
