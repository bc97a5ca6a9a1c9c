// Package agenterr implements the error taxonomy from spec §7: a closed set
// of kinds with a single propagation policy attached to each, spanning the
// transport, parser, tool-execution, and loop layers.
//
// Grounded on the teacher's internal/agent/providers/errors.go
// (ProviderError/FailoverReason), generalized from provider-only failures
// into the taxonomy's full eight kinds.
package agenterr

import "fmt"

// Kind is the taxonomy's closed enum.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindAuthRequired   Kind = "auth_required"
	KindAuthFailed     Kind = "auth_failed"
	KindCancelled      Kind = "cancelled"
	KindTransport      Kind = "transport"
	KindProtocolError  Kind = "protocol_error"
	KindProviderError  Kind = "provider_error"
	KindToolError      Kind = "tool_error"
	KindInternal       Kind = "internal"
)

// AgentError is the concrete error type carrying a Kind plus context.
type AgentError struct {
	Kind      Kind
	Provider  string
	Status    int
	Code      string
	RequestID string
	Message   string
	Cause     error
}

func (e *AgentError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *AgentError) Unwrap() error { return e.Cause }

// New builds a bare AgentError of the given kind with a message.
func New(kind Kind, message string) *AgentError {
	return &AgentError{Kind: kind, Message: message}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, cause error) *AgentError {
	return &AgentError{Kind: kind, Cause: cause}
}

func (e *AgentError) WithProvider(p string) *AgentError {
	e.Provider = p
	return e
}

func (e *AgentError) WithStatus(status int) *AgentError {
	e.Status = status
	return e
}

func (e *AgentError) WithCode(code string) *AgentError {
	e.Code = code
	return e
}

func (e *AgentError) WithRequestID(id string) *AgentError {
	e.RequestID = id
	return e
}

// ClassifyHTTPStatus maps an HTTP status code from a provider response to a
// taxonomy kind, mirroring the teacher's classifyStatusCode.
func ClassifyHTTPStatus(status int) Kind {
	switch {
	case status == 401:
		return KindAuthFailed
	case status == 403:
		return KindAuthFailed
	case status == 400 || status == 422:
		return KindInvalidRequest
	case status == 408 || status == 504:
		return KindTransport
	case status == 429:
		return KindProviderError
	case status >= 500:
		return KindProviderError
	case status >= 400:
		return KindProviderError
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the taxonomy's propagation policy allows a
// transport-level retry for err (only Transport errors before any SSE byte
// was delivered are retried; see spec §4.8/§7).
func IsRetryable(err error) bool {
	var ae *AgentError
	if !asAgentError(err, &ae) {
		return false
	}
	return ae.Kind == KindTransport
}

// AbortsTurn reports whether the taxonomy's propagation policy requires the
// current turn to be aborted outright (protocol errors, exhausted transport
// retries, and internal errors all abort; tool errors never do).
func AbortsTurn(err error) bool {
	var ae *AgentError
	if !asAgentError(err, &ae) {
		return true // unclassified errors are treated conservatively as fatal
	}
	switch ae.Kind {
	case KindToolError:
		return false
	default:
		return true
	}
}

// asAgentError is a small local errors.As to avoid importing "errors" twice
// across call sites that already use it; kept trivial on purpose.
func asAgentError(err error, target **AgentError) bool {
	for err != nil {
		if ae, ok := err.(*AgentError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
