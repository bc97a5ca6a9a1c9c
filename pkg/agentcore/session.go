package agentcore

import "time"

// AgentState is a session's position in the turn state machine (C9). The
// valid transitions form a DAG: Idle -> Composing -> Streaming ->
// Accumulating -> Executing -> Composing -> ... -> Idle, with Error and
// AwaitingInput reachable as side states from Composing, Streaming,
// Accumulating and Executing.
type AgentState string

const (
	AgentStateIdle          AgentState = "idle"
	AgentStateComposing     AgentState = "composing"
	AgentStateStreaming     AgentState = "streaming"
	AgentStateAccumulating  AgentState = "accumulating"
	AgentStateExecuting     AgentState = "executing"
	AgentStateAwaitingInput AgentState = "awaiting_input"
	AgentStateError         AgentState = "error"
)

// Session is the persisted, addressable unit of conversation.
type Session struct {
	ID               string
	Title            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	WorkingDir       string
	AgentState       AgentState
	AgentStartedAt   *time.Time
	AgentLastEventAt *time.Time
}

// FileActivity tracks how a session has touched one file, feeding the
// importance-ranking query used before context compaction.
type FileActivity struct {
	SessionID      string
	FilePath       string
	ReadCount      int
	WriteCount     int
	EditCount      int
	LastAccessed   time.Time
	UserReferenced bool
}

// ImportanceScore computes the ranking formula from spec §4.9:
//
//	(write*3 + edit*2 + read + (5 if user_referenced else 0))
//	  × (0.5 + 0.5 / (1 + hours_since_last_accessed/24))
//
// now is injected so the score is deterministic and testable.
func (a FileActivity) ImportanceScore(now time.Time) float64 {
	base := float64(a.WriteCount)*3 + float64(a.EditCount)*2 + float64(a.ReadCount)
	if a.UserReferenced {
		base += 5
	}
	hours := now.Sub(a.LastAccessed).Hours()
	if hours < 0 {
		hours = 0
	}
	recency := 0.5 + 0.5/(1+hours/24)
	return base * recency
}
