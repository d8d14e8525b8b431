// Package dispatch executes the tool calls emitted by an agent turn,
// sequentially and in order, and folds the results back into
// conversation form.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/proto"
	"devteam/pkg/tools"
)

// Result is the outcome of dispatching one turn's tool calls.
type Result struct {
	// Results holds exactly one entry per requested call, in request order.
	Results []proto.ToolResult
	// LogLines holds the human-visible log fragment. Only file writes are
	// surfaced; read and search traffic stays out of the client log.
	LogLines []string
	// Artifacts lists files created or replaced by this dispatch.
	Artifacts []proto.Artifact
}

// Dispatcher executes tool calls against one session's tool provider.
type Dispatcher struct {
	provider *tools.Provider
	timeout  time.Duration
	logger   *logx.Logger
}

// New creates a dispatcher. timeout bounds each individual tool execution.
func New(provider *tools.Provider, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		provider: provider,
		timeout:  timeout,
		logger:   logx.NewLogger("dispatch"),
	}
}

// Dispatch executes every call of the turn in order. A failing call
// produces an error result for that call only; siblings still run. The
// returned results slice always matches the calls slice in length and
// order.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []proto.ToolCall) *Result {
	out := &Result{
		Results: make([]proto.ToolResult, 0, len(calls)),
	}

	for i := range calls {
		call := &calls[i]
		result := d.execOne(ctx, call)
		out.Results = append(out.Results, result)

		if result.IsError {
			continue
		}
		if call.Name == tools.ToolFileWrite {
			out.LogLines = append(out.LogLines, proto.ToolLogLine(call.Name, result.Content))
			if artifact, ok := artifactFromWrite(call); ok {
				out.Artifacts = append(out.Artifacts, artifact)
			}
		}
	}
	return out
}

func (d *Dispatcher) execOne(ctx context.Context, call *proto.ToolCall) proto.ToolResult {
	result := proto.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}

	tool, err := d.provider.Get(call.Name)
	if err != nil {
		d.logger.Warn("tool lookup failed: %v", err)
		metrics.RecordToolCall(call.Name, err)
		result.Content = fmt.Sprintf("tool error: %v", err)
		result.IsError = true
		return result
	}

	if err := tools.ValidateArgs(tool.Definition().InputSchema, call.Args); err != nil {
		metrics.RecordToolCall(call.Name, err)
		result.Content = fmt.Sprintf("tool error: %v", err)
		result.IsError = true
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	execResult, err := tool.Exec(execCtx, call.Args)
	metrics.RecordToolCall(call.Name, err)
	if err != nil {
		d.logger.Error("tool %s execution failed: %v", call.Name, err)
		result.Content = fmt.Sprintf("tool error: %v", err)
		result.IsError = true
		return result
	}

	result.Content = execResult.Content
	return result
}

// artifactFromWrite recovers the written file from the call arguments.
func artifactFromWrite(call *proto.ToolCall) (proto.Artifact, bool) {
	path, ok := call.Args["path"].(string)
	if !ok || path == "" {
		return proto.Artifact{}, false
	}
	content, ok := call.Args["content"].(string)
	if !ok {
		return proto.Artifact{}, false
	}
	return proto.Artifact{Path: path, Content: content}, true
}
