// Package aloop implements the AI Interaction Loop (spec.md §4.3): the
// state machine driving one task from an initial prompt through repeated
// model calls and tool dispatch rounds to a final assistant message.
package aloop

import "time"

// State is one lifecycle value of the AI Loop state machine.
type State string

const (
	StateStarting       State = "starting"
	StateAwaitingModel  State = "awaiting_model"
	StateExecutingTools State = "executing_tools"
	StatePaused         State = "paused"
	StateStopping       State = "stopping"
	StateStopped        State = "stopped"
	StateFailed         State = "failed"
)

// LoopState is a snapshot of one in-flight loop's bookkeeping, mirroring
// spec.md §3's "AI Loop State" data model.
type LoopState struct {
	TaskID              string
	Iteration           int
	ConsecutiveToolCall int
	Model               string
	Temperature         float64
	ToolFingerprint     string
	Lifecycle           State
	StartedAt           time.Time
}
