package loop

import (
	"fmt"
	"time"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// validTransitions encodes the DAG from spec §4.8: Idle -> Composing ->
// Streaming -> Accumulating -> Executing -> Composing -> ... -> Idle, with
// Error and AwaitingInput reachable as side states from Composing,
// Streaming, Accumulating and Executing (AwaitingInput from Executing is a
// UI-only tool call with no resolver wired). Both side states lead back to
// Composing when the next turn starts.
var validTransitions = map[agentcore.AgentState]map[agentcore.AgentState]bool{
	agentcore.AgentStateIdle: {
		agentcore.AgentStateComposing: true,
	},
	agentcore.AgentStateComposing: {
		agentcore.AgentStateStreaming:     true,
		agentcore.AgentStateError:         true,
		agentcore.AgentStateAwaitingInput: true,
	},
	agentcore.AgentStateStreaming: {
		agentcore.AgentStateAccumulating:  true,
		agentcore.AgentStateError:         true,
		agentcore.AgentStateAwaitingInput: true,
	},
	agentcore.AgentStateAccumulating: {
		agentcore.AgentStateExecuting:     true,
		agentcore.AgentStateIdle:          true,
		agentcore.AgentStateError:         true,
		agentcore.AgentStateAwaitingInput: true,
	},
	agentcore.AgentStateExecuting: {
		agentcore.AgentStateComposing:     true,
		agentcore.AgentStateError:         true,
		agentcore.AgentStateAwaitingInput: true,
	},
	agentcore.AgentStateError: {
		agentcore.AgentStateComposing: true,
		agentcore.AgentStateIdle:      true,
	},
	agentcore.AgentStateAwaitingInput: {
		agentcore.AgentStateComposing: true,
		agentcore.AgentStateIdle:      true,
	},
}

// transition moves sess to the next state, enforcing the DAG above. sess
// may be nil (a Session isn't always attached to a turn, e.g. the C11
// helper calls), in which case it is a no-op.
func transition(sess *agentcore.Session, to agentcore.AgentState) error {
	if sess == nil {
		return nil
	}
	from := sess.AgentState
	if from == "" {
		from = agentcore.AgentStateIdle
	}
	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		return fmt.Errorf("loop: invalid agent_state transition %s -> %s", from, to)
	}
	now := time.Now()
	sess.AgentState = to
	sess.AgentLastEventAt = &now
	switch to {
	case agentcore.AgentStateComposing:
		if from == agentcore.AgentStateIdle || from == agentcore.AgentStateError || from == agentcore.AgentStateAwaitingInput {
			sess.AgentStartedAt = &now
		}
	case agentcore.AgentStateIdle, agentcore.AgentStateError:
		sess.AgentStartedAt = nil
	}
	return nil
}
