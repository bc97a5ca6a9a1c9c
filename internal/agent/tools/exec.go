package tools

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// ExecConfig configures the bounded-parallelism execution engine (C8).
//
// Grounded on the teacher's ToolExecConfig/DefaultToolExecConfig
// (internal/agent/tool_exec.go) with two spec-driven changes: the
// concurrency cap is raised from 4 to 100 (spec §5.3 names 100 explicitly,
// reflecting that tool calls here are typically short filesystem/search
// operations rather than the teacher's heavier channel-integration calls),
// and per-tool timeout is resolved per call via TimeoutFor rather than one
// fixed config value, to support the sub-agent 90s/180s variants spec
// names alongside the 30s default.
type ExecConfig struct {
	Concurrency int
	// TimeoutFor returns the timeout for a named tool; nil means use
	// DefaultTimeout for every tool.
	TimeoutFor     func(toolName string) time.Duration
	DefaultTimeout time.Duration
}

func DefaultExecConfig() ExecConfig {
	return ExecConfig{Concurrency: 100, DefaultTimeout: 30 * time.Second}
}

func (c ExecConfig) timeoutFor(name string) time.Duration {
	if c.TimeoutFor != nil {
		if t := c.TimeoutFor(name); t > 0 {
			return t
		}
	}
	if c.DefaultTimeout > 0 {
		return c.DefaultTimeout
	}
	return 30 * time.Second
}

// Engine runs tool calls with bounded parallelism against a Registry.
type Engine struct {
	registry *Registry
	config   ExecConfig
}

func NewEngine(registry *Registry, config ExecConfig) *Engine {
	if config.Concurrency <= 0 {
		config.Concurrency = 100
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	return &Engine{registry: registry, config: config}
}

// CallResult pairs one tool call with its outcome and timing.
type CallResult struct {
	Call      agentcore.ToolCall
	Result    Result
	StartTime time.Time
	EndTime   time.Time
	TimedOut  bool
}

// ExecuteConcurrently runs every call in calls under a semaphore bounding
// in-flight executions to config.Concurrency, preserving input order in the
// returned slice regardless of completion order — matching the teacher's
// ExecuteConcurrently exactly in structure (semaphore + WaitGroup +
// pre-sized result slice indexed by position).
func (e *Engine) ExecuteConcurrently(ctx context.Context, calls []agentcore.ToolCall, sandboxRoot, workingDir string) []CallResult {
	results := make([]CallResult, len(calls))
	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc agentcore.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = CallResult{Call: tc, Result: Result{Output: "context canceled", IsError: true}}
				return
			}

			start := time.Now()
			timeout := e.config.timeoutFor(tc.Name)
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			toolCtx := NewToolContext(callCtx, sandboxRoot, workingDir)

			result, timedOut := e.executeWithTimeout(toolCtx, tc, timeout)
			cancel()

			results[idx] = CallResult{
				Call:      tc,
				Result:    result,
				StartTime: start,
				EndTime:   time.Now(),
				TimedOut:  timedOut,
			}
		}(i, call)
	}

	wg.Wait()
	return results
}

// executeWithTimeout runs one call, distinguishing a timed-out execution
// from a completed one even when the handler itself ignores cancellation —
// matching the teacher's own channel-select race between ctx.Done() and a
// buffered result channel.
func (e *Engine) executeWithTimeout(ctx *ToolContext, call agentcore.ToolCall, timeout time.Duration) (Result, bool) {
	resultCh := make(chan Result, 1)

	go func() {
		resultCh <- e.registry.Invoke(ctx, call.Name, call.Input)
	}()

	select {
	case <-ctx.Done():
		content := "tool execution canceled"
		timedOut := ctx.Err() == context.DeadlineExceeded
		if timedOut {
			content = "tool execution timed out"
		}
		return Result{Output: content, IsError: true}, timedOut
	case res := <-resultCh:
		return res, false
	}
}
