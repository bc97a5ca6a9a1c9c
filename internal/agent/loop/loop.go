package loop

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/haasonsaas/nexus-core/internal/agent/agenterr"
	"github.com/haasonsaas/nexus-core/internal/agent/registry"
	"github.com/haasonsaas/nexus-core/internal/agent/sse"
	"github.com/haasonsaas/nexus-core/internal/agent/tools"
	"github.com/haasonsaas/nexus-core/internal/agent/transport"
	"github.com/haasonsaas/nexus-core/internal/agent/wire"
	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// CredentialSource resolves a stored API key, as internal/auth.CredentialStore
// does.
type CredentialSource interface {
	Get(provider agentcore.ProviderID) (string, bool, error)
}

// TokenSource resolves a stored OAuth token record, as
// internal/auth.TokenStore does.
type TokenSource interface {
	Get(provider agentcore.ProviderID) (agentcore.OAuthTokenRecord, bool, error)
}

// UIToolResolver answers a tool call the core cannot execute itself (spec
// §4.6): the external collaborator supplies the result synchronously. The
// loop does not synthesize a reply on its own.
type UIToolResolver func(ctx context.Context, call agentcore.ToolCall) (tools.Result, error)

// Loop drives turns for any number of independent sessions. One Loop is
// shared process-wide; per-session state lives only in the sessionLocks map
// and the caller-owned Session/history values passed into RunTurn.
type Loop struct {
	Registry    *registry.Registry
	Transport   *transport.Client
	Tools       *tools.Registry
	Engine      *tools.Engine
	Credentials CredentialSource
	Tokens      TokenSource

	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

// New builds a Loop from its collaborators. Tokens may be nil if the
// deployment never issues OAuth credentials (every provider falls back to
// plain API keys).
func New(reg *registry.Registry, transportClient *transport.Client, toolRegistry *tools.Registry, engine *tools.Engine, creds CredentialSource, tokens TokenSource) *Loop {
	return &Loop{
		Registry:     reg,
		Transport:    transportClient,
		Tools:        toolRegistry,
		Engine:       engine,
		Credentials:  creds,
		Tokens:       tokens,
		sessionLocks: map[string]*sync.Mutex{},
	}
}

func (l *Loop) lockSession(id string) func() {
	l.mu.Lock()
	sl, ok := l.sessionLocks[id]
	if !ok {
		sl = &sync.Mutex{}
		l.sessionLocks[id] = sl
	}
	l.mu.Unlock()
	sl.Lock()
	return sl.Unlock
}

// TurnRequest is everything one call to RunTurn needs to drive a session
// through a full turn, including any number of tool round trips.
type TurnRequest struct {
	SessionID string
	Session   *agentcore.Session // optional; when set, its AgentState is driven through the DAG

	Provider agentcore.ProviderID
	Model    string

	// History is the session's already-committed message log. RunTurn never
	// mutates it.
	History []agentcore.Message
	// UserMessage, if non-nil, is appended ahead of the first provider call
	// and returned as the first entry of TurnResult.NewMessages.
	UserMessage *agentcore.Message

	Options agentcore.CompletionOptions
	// IncludeTools attaches Loop.Tools' descriptors to every request in this
	// turn. Helper calls (title/summarize) leave this false.
	IncludeTools bool

	SandboxRoot string
	WorkingDir  string

	// UIResolver answers tool calls registered as UI-only. Required only if
	// such a tool is actually invoked during the turn.
	UIResolver UIToolResolver
}

// TurnResult is the turn's net effect on the session log: the messages to
// append, in order, plus turn-level accounting. A non-nil error from
// RunTurn means TurnResult is the zero value — nothing should be persisted,
// preserving the "commit everything or nothing" half of the cancellation
// invariant. The one exception is a turn paused on a UI-only tool call with
// no resolver: RunTurn then returns the messages produced so far together
// with a KindInvalidRequest error, and the session is left in
// AwaitingInput.
type TurnResult struct {
	NewMessages []agentcore.Message
	Usage       agentcore.Usage
	Finish      agentcore.FinishReason
}

// RunTurn drives req.SessionID through one external turn: one or more
// provider calls separated by tool-execution rounds, per spec §4.8's state
// machine. At most one RunTurn is ever in flight per session (enforced by a
// per-session mutex); concurrent calls for different sessions never block
// each other.
//
// emit may be nil. When non-nil it receives every event on the turn's
// external stream (spec §6): SessionStart, UserMessage, TextDelta,
// ThinkingDelta, ToolStart, ToolEnd, Usage, Finish, Error.
func (l *Loop) RunTurn(ctx context.Context, req TurnRequest, emit func(Event)) (TurnResult, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	if len(req.History) == 0 && (req.UserMessage == nil || req.UserMessage.Text() == "") {
		return TurnResult{}, agenterr.New(agenterr.KindInvalidRequest, "empty history and empty user message")
	}

	unlock := l.lockSession(req.SessionID)
	defer unlock()

	if err := transition(req.Session, agentcore.AgentStateComposing); err != nil {
		return TurnResult{}, agenterr.Wrap(agenterr.KindInternal, err)
	}
	emit(Event{Type: EventSessionStart})

	working := append([]agentcore.Message(nil), req.History...)
	var newMessages []agentcore.Message
	if req.UserMessage != nil {
		um := *req.UserMessage
		um.Role = agentcore.RoleUser
		working = append(working, um)
		newMessages = append(newMessages, um)
		emit(Event{Type: EventUserMessage, TextDelta: um.Text()})
	}

	descriptor, ok := l.Registry.Get(req.Provider)
	if !ok {
		_ = transition(req.Session, agentcore.AgentStateError)
		return TurnResult{}, agenterr.New(agenterr.KindInvalidRequest, fmt.Sprintf("unknown provider %q", req.Provider))
	}

	opts := req.Options
	// Descriptor metadata reaches the translators as context directives; a
	// directive the caller already set takes precedence.
	directives := map[string]string{}
	if descriptor.PreserveAllThinking {
		directives["preserve_all_thinking"] = "true"
	}
	if m, ok := descriptor.ModelByID(req.Model); ok && m.ReasoningFormat != agentcore.ReasoningNone {
		directives["reasoning_format"] = string(m.ReasoningFormat)
	}
	for k, v := range opts.ContextDirectives {
		directives[k] = v
	}
	opts.ContextDirectives = directives
	if req.IncludeTools && l.Tools != nil {
		opts.Tools = l.Tools.Descriptors()
	}

	var totalUsage agentcore.Usage
	var finalFinish agentcore.FinishReason

	for {
		format, cred, err := l.resolveRequest(descriptor, req.Provider, req.Model)
		if err != nil {
			_ = transition(req.Session, agentcore.AgentStateAwaitingInput)
			emit(Event{Type: EventError, Err: err})
			return TurnResult{}, err
		}

		translator, err := wire.For(format)
		if err != nil {
			_ = transition(req.Session, agentcore.AgentStateError)
			wrapped := agenterr.Wrap(agenterr.KindInternal, err)
			emit(Event{Type: EventError, Err: wrapped})
			return TurnResult{}, wrapped
		}

		body, err := translator.BuildRequestBody(req.Model, working, opts)
		if err != nil {
			_ = transition(req.Session, agentcore.AgentStateError)
			wrapped := agenterr.Wrap(agenterr.KindInvalidRequest, err)
			emit(Event{Type: EventError, Err: wrapped})
			return TurnResult{}, wrapped
		}

		if err := transition(req.Session, agentcore.AgentStateStreaming); err != nil {
			return TurnResult{}, agenterr.Wrap(agenterr.KindInternal, err)
		}

		assistantMsg, usage, finish, err := l.streamOnce(ctx, descriptor, format, cred, translator, req.Model, body, req.Session, emit)
		if err != nil {
			_ = transition(req.Session, agentcore.AgentStateError)
			emit(Event{Type: EventError, Err: err})
			return TurnResult{}, err
		}

		totalUsage.Add(usage)
		finalFinish = finish
		emit(Event{Type: EventUsage, Usage: usage})

		working = append(working, assistantMsg)
		newMessages = append(newMessages, assistantMsg)

		if !finish.IsToolUse() {
			if err := transition(req.Session, agentcore.AgentStateIdle); err != nil {
				return TurnResult{}, agenterr.Wrap(agenterr.KindInternal, err)
			}
			emit(Event{Type: EventFinish, Finish: finish})
			return TurnResult{NewMessages: newMessages, Usage: totalUsage, Finish: finalFinish}, nil
		}

		toolUses := assistantMsg.ToolUses()
		if len(toolUses) == 0 {
			_ = transition(req.Session, agentcore.AgentStateError)
			protoErr := agenterr.New(agenterr.KindProtocolError, "finish reason tool_use but no tool calls present")
			emit(Event{Type: EventError, Err: protoErr})
			return TurnResult{}, protoErr
		}

		if err := transition(req.Session, agentcore.AgentStateExecuting); err != nil {
			return TurnResult{}, agenterr.Wrap(agenterr.KindInternal, err)
		}

		toolMsg, awaitingInput, err := l.executeTools(ctx, toolUses, req, emit)
		if err != nil {
			_ = transition(req.Session, agentcore.AgentStateError)
			emit(Event{Type: EventError, Err: err})
			return TurnResult{}, err
		}
		if awaitingInput {
			if err := transition(req.Session, agentcore.AgentStateAwaitingInput); err != nil {
				return TurnResult{}, agenterr.Wrap(agenterr.KindInternal, err)
			}
			return TurnResult{NewMessages: newMessages, Usage: totalUsage, Finish: finalFinish},
				agenterr.New(agenterr.KindInvalidRequest, "turn paused: a ui-only tool call has no resolver registered")
		}

		working = append(working, toolMsg)
		newMessages = append(newMessages, toolMsg)

		if err := transition(req.Session, agentcore.AgentStateComposing); err != nil {
			return TurnResult{}, agenterr.Wrap(agenterr.KindInternal, err)
		}
		// loop: another provider call follows, now with the tool results in
		// history (§4.8's Executing -> Composing edge).
	}
}

// resolveRequest picks the wire format and resolves the credential for one
// provider call. OpenAI's two-endpoint split (spec §4.1) is decided fresh
// here on every call, never cached past the request.
func (l *Loop) resolveRequest(descriptor agentcore.ProviderDescriptor, provider agentcore.ProviderID, model string) (agentcore.ApiFormat, transport.Credential, error) {
	modelDesc, ok := descriptor.ModelByID(model)
	format := agentcore.ApiFormat("")
	if ok {
		format = modelDesc.ApiFormat
	}

	if provider == agentcore.ProviderOpenAI {
		hasOAuth := false
		if l.Tokens != nil {
			if _, found, err := l.Tokens.Get(provider); err == nil && found {
				hasOAuth = true
			}
		}
		format = registry.ResolveOpenAIFormat(hasOAuth)
	}
	if format == "" {
		return "", transport.Credential{}, agenterr.New(agenterr.KindInvalidRequest, fmt.Sprintf("unknown model %q for provider %q", model, provider))
	}

	if format == agentcore.FormatOpenAIResponses {
		if l.Tokens == nil {
			return "", transport.Credential{}, agenterr.New(agenterr.KindAuthRequired, "no oauth token store configured").WithProvider(string(provider))
		}
		rec, found, err := l.Tokens.Get(provider)
		if err != nil {
			return "", transport.Credential{}, agenterr.Wrap(agenterr.KindInternal, err).WithProvider(string(provider))
		}
		if !found {
			return "", transport.Credential{}, agenterr.New(agenterr.KindAuthRequired, "no oauth token stored").WithProvider(string(provider))
		}
		return format, transport.Credential{BearerToken: rec.AccessToken}, nil
	}

	if l.Credentials == nil {
		return "", transport.Credential{}, agenterr.New(agenterr.KindAuthRequired, "no credential store configured").WithProvider(string(provider))
	}
	key, found, err := l.Credentials.Get(provider)
	if err != nil {
		return "", transport.Credential{}, agenterr.Wrap(agenterr.KindInternal, err).WithProvider(string(provider))
	}
	if !found {
		return "", transport.Credential{}, agenterr.New(agenterr.KindAuthRequired, "no api key stored").WithProvider(string(provider))
	}
	return format, transport.Credential{APIKey: key}, nil
}

// streamOnce issues one provider call, retrying per retry.go's schedule
// while no SSE byte has yet arrived, then parses and accumulates the
// response into a single assistant message.
func (l *Loop) streamOnce(
	ctx context.Context,
	descriptor agentcore.ProviderDescriptor,
	format agentcore.ApiFormat,
	cred transport.Credential,
	translator wire.Translator,
	model string,
	body []byte,
	sess *agentcore.Session,
	emit func(Event),
) (agentcore.Message, agentcore.Usage, agentcore.FinishReason, error) {
	var respBody io.ReadCloser
	var lastErr error

	for attempt := 1; attempt <= maxTransportAttempts; attempt++ {
		r, err := l.Transport.Do(ctx, transport.Request{
			Provider: descriptor,
			Method:   "POST",
			Path:     translator.EndpointPath(model),
			Body:     body,
			Cred:     cred,
		})
		if err == nil {
			respBody = r
			lastErr = nil
			break
		}
		lastErr = err
		if !agenterr.IsRetryable(err) || attempt == maxTransportAttempts {
			break
		}
		select {
		case <-time.After(retryDelay(attempt)):
		case <-ctx.Done():
			return agentcore.Message{}, agentcore.Usage{}, agentcore.FinishReason{}, agenterr.New(agenterr.KindCancelled, "turn cancelled during transport retry backoff")
		}
	}
	if lastErr != nil {
		return agentcore.Message{}, agentcore.Usage{}, agentcore.FinishReason{}, lastErr
	}
	defer respBody.Close()

	parser, err := sse.NewForFormat(format)
	if err != nil {
		return agentcore.Message{}, agentcore.Usage{}, agentcore.FinishReason{}, agenterr.Wrap(agenterr.KindInternal, err)
	}

	if err := transition(sess, agentcore.AgentStateAccumulating); err != nil {
		return agentcore.Message{}, agentcore.Usage{}, agentcore.FinishReason{}, agenterr.Wrap(agenterr.KindInternal, err)
	}

	acc := newTurnAccumulator()
	var usage agentcore.Usage
	var finish agentcore.FinishReason
	var sawFinish bool

	_, readErr := transport.ReadSSE(ctx, respBody, func(raw transport.RawEvent) error {
		for _, ev := range parser.Parse(raw, nil) {
			switch ev.Type {
			case sse.TypeTextDelta:
				acc.appendText(ev.TextDelta)
				emit(Event{Type: EventTextDelta, TextDelta: ev.TextDelta})
			case sse.TypeThinkingDelta:
				acc.appendThinking(ev.ThinkingDelta)
				emit(Event{Type: EventThinkingDelta, ThinkingDelta: ev.ThinkingDelta})
			case sse.TypeThinkingSignature:
				acc.setSignature(ev.Signature)
			case sse.TypeToolCallStart:
				acc.startTool(ev.ToolCallID, ev.ToolCallName)
				emit(Event{Type: EventToolStart, ToolCallID: ev.ToolCallID, ToolCallName: ev.ToolCallName})
			case sse.TypeToolCallEnd:
				acc.endTool(ev.ToolCallID, ev.ArgsDelta)
			case sse.TypeUsage:
				usage.Add(ev.Usage)
			case sse.TypeFinish:
				sawFinish = true
				finish = ev.Finish
			}
		}
		return nil
	})
	if readErr != nil {
		if ctx.Err() != nil {
			return agentcore.Message{}, agentcore.Usage{}, agentcore.FinishReason{}, agenterr.New(agenterr.KindCancelled, "turn cancelled mid-stream")
		}
		return agentcore.Message{}, agentcore.Usage{}, agentcore.FinishReason{}, agenterr.Wrap(agenterr.KindTransport, readErr)
	}
	if !sawFinish {
		return agentcore.Message{}, agentcore.Usage{}, agentcore.FinishReason{}, agenterr.New(agenterr.KindProtocolError, "sse stream ended without a finish event")
	}
	if acc.hasUnclosedTool() {
		return agentcore.Message{}, agentcore.Usage{}, agentcore.FinishReason{}, agenterr.New(agenterr.KindProtocolError, "tool call arguments never completed")
	}

	return acc.toMessage(), usage, finish, nil
}

// executeTools runs every pending tool call and returns the tool-role
// message that answers them, in the same order as toolUses. If any call
// targets a UI-only tool with no resolver wired, awaitingInput is true and
// the caller must not append a tool-role message: the turn pauses, per spec
// §4.6, until the collaborator supplies an answer out of band.
func (l *Loop) executeTools(ctx context.Context, toolUses []agentcore.ToolUse, req TurnRequest, emit func(Event)) (agentcore.Message, bool, error) {
	calls := make([]agentcore.ToolCall, len(toolUses))
	uiOnly := make([]bool, len(toolUses))
	for i, tu := range toolUses {
		calls[i] = agentcore.ToolCall{ID: tu.ID, Name: tu.Name, Input: tu.Input}
		emit(Event{Type: EventToolStart, ToolCallID: tu.ID, ToolCallName: tu.Name})
		if l.Tools != nil {
			uiOnly[i] = l.Tools.IsUIOnly(tu.Name)
		}
	}

	if req.UIResolver == nil {
		for _, ui := range uiOnly {
			if ui {
				return agentcore.Message{}, true, nil
			}
		}
	}

	results := make([]tools.Result, len(calls))

	nonUICalls := make([]agentcore.ToolCall, 0, len(calls))
	nonUIIdx := make([]int, 0, len(calls))
	for i, c := range calls {
		if uiOnly[i] {
			continue
		}
		nonUICalls = append(nonUICalls, c)
		nonUIIdx = append(nonUIIdx, i)
	}

	if l.Engine != nil && len(nonUICalls) > 0 {
		engineResults := l.Engine.ExecuteConcurrently(ctx, nonUICalls, req.SandboxRoot, req.WorkingDir)
		for j, r := range engineResults {
			results[nonUIIdx[j]] = r.Result
		}
	}

	for i, c := range calls {
		if !uiOnly[i] {
			continue
		}
		res, err := req.UIResolver(ctx, c)
		if err != nil {
			results[i] = tools.Result{Output: err.Error(), IsError: true}
		} else {
			results[i] = res
		}
	}

	blocks := make([]agentcore.Block, len(calls))
	for i, c := range calls {
		blocks[i] = agentcore.ToolResult{ToolUseID: c.ID, Output: results[i].Output, IsError: results[i].IsError}
		emit(Event{Type: EventToolEnd, ToolCallID: c.ID, ToolCallName: c.Name, ToolOutput: results[i].Output, ToolIsError: results[i].IsError})
	}
	return agentcore.Message{Role: agentcore.RoleTool, Content: blocks}, false, nil
}
