package llm

import (
	"context"
	"testing"

	"devteam/pkg/agent/llmerrors"
	"devteam/pkg/config"
)

// scriptedClient returns canned responses or errors in order.
type scriptedClient struct {
	responses []*CompletionResponse
	errs      []error
	calls     int
}

func (s *scriptedClient) Provider() config.Provider { return config.ProviderGoogle }

func (s *scriptedClient) Complete(_ context.Context, _ CompletionRequest) (*CompletionResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &CompletionResponse{Content: "done"}, nil
}

func fastRetryConfigs(t *testing.T) {
	t.Helper()
	orig := llmerrors.DefaultRetryConfigs
	fast := make(map[llmerrors.ErrorType]llmerrors.RetryConfig, len(orig))
	for k, v := range orig {
		v.InitialDelay = 0
		v.MaxDelay = 0
		v.Jitter = false
		fast[k] = v
	}
	llmerrors.DefaultRetryConfigs = fast
	t.Cleanup(func() { llmerrors.DefaultRetryConfigs = orig })
}

func TestRetryRecoversFromTransient(t *testing.T) {
	fastRetryConfigs(t)

	inner := &scriptedClient{
		errs: []error{
			llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection reset"),
			llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection reset"),
			nil,
		},
		responses: []*CompletionResponse{nil, nil, {Content: "recovered"}},
	}

	resp, err := NewRetryingClient(inner).Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("content = %q", resp.Content)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryStopsOnAuthError(t *testing.T) {
	fastRetryConfigs(t)

	inner := &scriptedClient{
		errs: []error{llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")},
	}

	_, err := NewRetryingClient(inner).Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !llmerrors.Is(err, llmerrors.ErrorTypeAuth) {
		t.Errorf("expected auth error, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("auth error should not retry, calls = %d", inner.calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	fastRetryConfigs(t)

	errs := make([]error, 10)
	for i := range errs {
		errs[i] = llmerrors.NewError(llmerrors.ErrorTypeTransient, "down")
	}
	inner := &scriptedClient{errs: errs}

	_, err := NewRetryingClient(inner).Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	want := llmerrors.DefaultRetryConfigs[llmerrors.ErrorTypeTransient].MaxRetries + 1
	if inner.calls != want {
		t.Errorf("calls = %d, want %d", inner.calls, want)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	inner := &scriptedClient{
		errs: []error{llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429")},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRetryingClient(inner).Complete(ctx, CompletionRequest{})
	if err == nil {
		t.Fatal("expected context error")
	}
}
