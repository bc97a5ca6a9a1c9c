// Package transport is the HTTP+SSE layer (C5): one shared client per
// process, authenticated request construction, and a line-oriented SSE
// reader producing raw (eventType, data) pairs for C6's parsers to
// interpret. It never interprets event payloads itself and never retries —
// retry lives in the caller (C9's loop, internal/agent/loop/retry.go).
//
// The SSE reader is generalized from the teacher's own exported
// ParseSSEStream (internal/agent/providers/anthropic.go), which the teacher
// documents as a generic low-level parser for "advanced use cases" that
// bypasses its vendor SDK's streaming client — exactly the escape hatch
// this module needs to own a single transport across all provider dialects,
// per spec §4.4/§4.5. The structural template (raw net/http + bufio,
// without a vendor SDK) is additionally grounded on
// internal/agent/providers/ollama.go, the teacher's own non-SDK dialect.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// RawEvent is one parsed SSE frame, handed to a C6 parser for
// format-specific interpretation.
type RawEvent struct {
	EventType string // may be empty; Anthropic-style events set this
	Data      string
}

// Done is a sentinel error returned by ReadSSE's iterator function when the
// stream ends (either naturally or via the literal "[DONE]" sentinel).
var Done = fmt.Errorf("transport: sse stream done")

// ReadSSE reads Server-Sent Events from r, calling emit for each frame.
// Parsing stops at a literal "[DONE]" data line or at EOF. firstByteSeen is
// flipped to true on the first successfully parsed frame, letting the
// caller's retry policy distinguish "never got a response" from
// "connection dropped mid-stream" (only the former is retried, per spec
// §4.8).
func ReadSSE(ctx context.Context, r io.Reader, emit func(RawEvent) error) (firstByteSeen bool, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return firstByteSeen, err
		}

		line := scanner.Text()
		if line == "" {
			if err := flushEvent(&eventType, &dataLines, &firstByteSeen, emit); err != nil {
				if err == Done {
					return firstByteSeen, nil
				}
				return firstByteSeen, err
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		default:
			// comments (":"), "id:", "retry:" lines are ignored.
		}
	}
	if err := scanner.Err(); err != nil {
		return firstByteSeen, err
	}
	return firstByteSeen, nil
}

func flushEvent(eventType *string, dataLines *[]string, firstByteSeen *bool, emit func(RawEvent) error) error {
	if *eventType == "" && len(*dataLines) == 0 {
		return nil
	}
	data := strings.Join(*dataLines, "\n")
	et := *eventType
	*eventType, *dataLines = "", nil

	if data == "[DONE]" {
		return Done
	}
	*firstByteSeen = true
	return emit(RawEvent{EventType: et, Data: data})
}
