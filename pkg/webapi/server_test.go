package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"devteam/pkg/agent/llm"
	"devteam/pkg/config"
	"devteam/pkg/driver"
	"devteam/pkg/metrics"
	"devteam/pkg/session"
)

type stubClient struct {
	mu        sync.Mutex
	responses []*llm.CompletionResponse
	i         int
}

func (c *stubClient) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.i >= len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	resp := c.responses[c.i]
	c.i++
	return resp, nil
}

func (c *stubClient) Provider() config.Provider { return config.ProviderGoogle }

func newTestServer(t *testing.T, responses ...*llm.CompletionResponse) (*httptest.Server, session.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.WorkspaceDir = t.TempDir()
	cfg.Persistence.Enabled = false
	cfg.Pipeline.QAEnabled = false

	store := session.NewMemoryStore()
	d := driver.New(cfg, store, &stubClient{responses: responses}, nil, nil)

	mux := http.NewServeMux()
	NewServer(d).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Wait(ctx)
	})
	return srv, store
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	return resp, decoded
}

func pollStatus(t *testing.T, base, id, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, body := getJSON(t, base+"/get_status/"+id)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get_status = %d: %v", resp.StatusCode, body)
		}
		if body["status"] == want {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %v, want %s", body["status"], want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartRunAndPollClarification(t *testing.T) {
	srv, _ := newTestServer(t,
		&llm.CompletionResponse{Content: "CLARIFICATION_NEEDED: Web or desktop?"})

	resp, body := postJSON(t, srv.URL+"/start_run", map[string]string{"prompt": "Build a todo app"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start_run = %d", resp.StatusCode)
	}
	id, _ := body["sessionId"].(string)
	if id == "" {
		t.Fatalf("missing sessionId: %v", body)
	}

	status := pollStatus(t, srv.URL, id, "waiting_for_human")
	if status["question"] != "Web or desktop?" {
		t.Errorf("question = %v", status["question"])
	}
	log, _ := status["log"].([]any)
	if len(log) == 0 {
		t.Fatal("log is empty")
	}
	if first, _ := log[0].(string); !strings.HasPrefix(first, "**Human**: ") {
		t.Errorf("log[0] = %v", log[0])
	}
}

func TestRespondRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t,
		&llm.CompletionResponse{Content: "CLARIFICATION_NEEDED: Which framework?"},
		&llm.CompletionResponse{Content: "PROJECT_COMPLETED: Done."})

	_, body := postJSON(t, srv.URL+"/start_run", map[string]string{"prompt": "Build a todo app"})
	id := body["sessionId"].(string)
	pollStatus(t, srv.URL, id, "waiting_for_human")

	resp, respBody := postJSON(t, srv.URL+"/respond",
		map[string]string{"sessionId": id, "response": "Plain HTML please"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("respond = %d: %v", resp.StatusCode, respBody)
	}
	if respBody["status"] != "resumed" {
		t.Errorf("body = %v", respBody)
	}

	status := pollStatus(t, srv.URL, id, "waiting_for_human")
	joined := fmt.Sprintf("%v", status["log"])
	if !strings.Contains(joined, "**Human**: Plain HTML please") {
		t.Errorf("human turn missing from log: %s", joined)
	}
}

func TestStartRunValidation(t *testing.T) {
	srv, _ := newTestServer(t, &llm.CompletionResponse{Content: "hi"})

	resp, _ := postJSON(t, srv.URL+"/start_run", map[string]string{"prompt": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty prompt = %d, want 400", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/start_run")
	if err != nil {
		t.Fatal(err)
	}
	_ = getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET start_run = %d, want 405", getResp.StatusCode)
	}
}

func TestGetStatusUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, &llm.CompletionResponse{Content: "hi"})
	resp, _ := getJSON(t, srv.URL+"/get_status/nope")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRespondErrors(t *testing.T) {
	srv, store := newTestServer(t, &llm.CompletionResponse{Content: "hi"})

	resp, _ := postJSON(t, srv.URL+"/respond", map[string]string{"sessionId": "nope", "response": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session = %d, want 404", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/respond", map[string]string{"response": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing sessionId = %d, want 400", resp.StatusCode)
	}

	// A running, unclaimed session is not answerable.
	id, err := store.Create("x")
	if err != nil {
		t.Fatal(err)
	}
	resp, _ = postJSON(t, srv.URL+"/respond", map[string]string{"sessionId": id, "response": "x"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("running session = %d, want 409", resp.StatusCode)
	}

	// A claimed session reports busy, also as a conflict.
	busyID, err := store.Create("y")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.BeginAdvance(busyID); err != nil {
		t.Fatal(err)
	}
	defer store.EndAdvance(busyID)
	resp, _ = postJSON(t, srv.URL+"/respond", map[string]string{"sessionId": busyID, "response": "x"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("busy session = %d, want 409", resp.StatusCode)
	}
}

func TestArtifactsEndpoint(t *testing.T) {
	srv, store := newTestServer(t, &llm.CompletionResponse{Content: "hi"})

	id, err := store.Create("x")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Update(id, func(s *session.Session) {
		s.Artifacts["index.html"] = "<html>"
	}); err != nil {
		t.Fatal(err)
	}

	resp, body := getJSON(t, srv.URL+"/artifacts/"+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("artifacts = %d", resp.StatusCode)
	}
	files, _ := body["files"].(map[string]any)
	if files["index.html"] != "<html>" {
		t.Errorf("files = %v", files)
	}
}

func TestUsageUnconfigured(t *testing.T) {
	srv, store := newTestServer(t, &llm.CompletionResponse{Content: "hi"})

	id, err := store.Create("x")
	if err != nil {
		t.Fatal(err)
	}
	resp, body := getJSON(t, srv.URL+"/usage/"+id)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("usage = %d %v, want 404 without a Prometheus URL", resp.StatusCode, body)
	}
}

func TestUsageQueriesPrometheus(t *testing.T) {
	// Stand-in Prometheus answering every instant query with one sample.
	prom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[{"metric":{"model":"gemini-2.5-flash"},"value":[1756600000,"42"]}]}}`)
	}))
	t.Cleanup(prom.Close)

	cfg := config.Default()
	cfg.WorkspaceDir = t.TempDir()
	cfg.Persistence.Enabled = false

	store := session.NewMemoryStore()
	d := driver.New(cfg, store, &stubClient{responses: []*llm.CompletionResponse{{Content: "hi"}}}, nil, nil)
	api := NewServer(d)
	usage, err := metrics.NewQueryService(prom.URL)
	if err != nil {
		t.Fatal(err)
	}
	api.SetUsageService(usage)

	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	id, err := store.Create("x")
	if err != nil {
		t.Fatal(err)
	}

	resp, body := getJSON(t, srv.URL+"/usage/"+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("usage = %d %v", resp.StatusCode, body)
	}
	if body["total_tokens"] != float64(84) {
		t.Errorf("total_tokens = %v", body["total_tokens"])
	}

	resp, body = getJSON(t, srv.URL+"/usage/"+id+"?by=model")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("usage by model = %d %v", resp.StatusCode, body)
	}
	perModel, _ := body["gemini-2.5-flash"].(map[string]any)
	if perModel == nil || perModel["total_tokens"] != float64(84) {
		t.Errorf("per-model usage = %v", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, &llm.CompletionResponse{Content: "hi"})

	resp, body := getJSON(t, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}

	mResp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	_ = mResp.Body.Close()
	if mResp.StatusCode != http.StatusOK {
		t.Errorf("metrics = %d", mResp.StatusCode)
	}
}
