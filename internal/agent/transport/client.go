// Package transport (continued): the shared HTTP client, authenticated
// request construction, and non-2xx response classification.
//
// Grounded on internal/agent/providers/ollama.go's raw net/http client
// construction (the teacher's only non-vendor-SDK provider) and on
// internal/agent/providers/anthropic.go's header set (x-api-key,
// anthropic-version, anthropic-beta), generalized across all four dialects
// via agentcore.ProviderDescriptor.AuthHeader/CustomHeaders.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/haasonsaas/nexus-core/internal/agent/agenterr"
	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

const (
	// connectTimeout bounds dial+TLS handshake; the overall per-call timeout
	// is enforced separately so a slow-but-live stream isn't cut short.
	connectTimeout = 30 * time.Second
	overallTimeout = 600 * time.Second

	anthropicVersion = "2023-06-01"
)

// Client is the one shared HTTP client used for every provider call. A
// single client (and its connection pool) is reused across requests per
// spec §4.4, rather than one per call as some teacher provider files do.
type Client struct {
	http *http.Client
}

// NewClient builds the shared client with the spec's fixed timeout budget.
func NewClient() *Client {
	return &Client{
		http: &http.Client{
			Timeout: overallTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
			},
		},
	}
}

// NewClientWithRoundTripper builds a Client around a caller-supplied
// http.RoundTripper instead of the default dialer, so the loop's tests can
// exercise Do/ReadSSE against an in-process fake transport without a real
// network call.
func NewClientWithRoundTripper(rt http.RoundTripper) *Client {
	return &Client{
		http: &http.Client{
			Timeout:   overallTimeout,
			Transport: rt,
		},
	}
}

// Credential is the resolved secret attached to an outbound request; it is
// either an API key or an OAuth access token, never both.
type Credential struct {
	APIKey      string
	BearerToken string
}

// Request describes one provider call at the transport layer: a built wire
// body (from a C4 translator) plus routing/auth metadata.
type Request struct {
	Provider agentcore.ProviderDescriptor
	Method   string
	Path     string // joined with Provider.BaseURL; C4's Translator.EndpointPath
	Body     []byte
	Cred     Credential
	Beta     []string // anthropic-beta feature flags, if any
}

// Do issues one HTTP request and returns the raw response body reader on a
// 2xx status. The caller is responsible for closing the returned body. Non-
// 2xx responses have up to 64 KiB of their body read, are classified into
// the agenterr taxonomy, and are returned as an error; this layer performs
// no retries itself — the caller (C9's loop, streamOnce) retries Do using
// agenterr.IsRetryable and the schedule in internal/agent/loop/retry.go.
func (c *Client) Do(ctx context.Context, req Request) (io.ReadCloser, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindInternal, err).WithProvider(string(req.Provider.ID))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, agenterr.New(agenterr.KindCancelled, "request cancelled").WithProvider(string(req.Provider.ID))
		}
		return nil, agenterr.Wrap(agenterr.KindTransport, err).WithProvider(string(req.Provider.ID))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		kind := agenterr.ClassifyHTTPStatus(resp.StatusCode)
		return nil, (&agenterr.AgentError{
			Kind:     kind,
			Provider: string(req.Provider.ID),
			Status:   resp.StatusCode,
			Message:  string(body),
		})
	}

	return resp.Body, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := req.Provider.BaseURL + req.Path
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}

	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("accept", "text/event-stream")

	switch req.Provider.AuthHeader {
	case agentcore.AuthHeaderXApiKey:
		httpReq.Header.Set("x-api-key", req.Cred.APIKey)
	case agentcore.AuthHeaderBearer:
		token := req.Cred.BearerToken
		if token == "" {
			token = req.Cred.APIKey
		}
		httpReq.Header.Set("authorization", "Bearer "+token)
	}

	if req.Provider.ID == agentcore.ProviderAnthropic || req.Provider.ID == agentcore.ProviderBedrock {
		httpReq.Header.Set("anthropic-version", anthropicVersion)
	}
	if len(req.Beta) > 0 {
		betaHeader := ""
		for i, b := range req.Beta {
			if i > 0 {
				betaHeader += ","
			}
			betaHeader += b
		}
		httpReq.Header.Set("anthropic-beta", betaHeader)
	}

	for k, v := range req.Provider.CustomHeaders {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}
