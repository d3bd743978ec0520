package models

import (
	"go.uber.org/zap"
)

// ExecutionState is a point in an execution command's lifecycle. Ordinals
// are a progress axis: a command never moves to a lower ordinal.
type ExecutionState int

const (
	StatePreExecution ExecutionState = iota
	StateExecuting
	StateExecuted
	StateSuccess
	StateFailed
)

// Failed must keep the highest ordinal. Its reachability from every
// non-terminal state depends on that, not on a separate rule.
var stateOrdinals = map[ExecutionState]int{
	StatePreExecution: 0,
	StateExecuting:    1,
	StateExecuted:     2,
	StateSuccess:      3,
	StateFailed:       4,
}

var stateNames = map[ExecutionState]string{
	StatePreExecution: "Pre-Execution",
	StateExecuting:    "Executing",
	StateExecuted:     "Executed",
	StateSuccess:      "Success",
	StateFailed:       "Failed",
}

// ExecutionStates lists every state in ordinal order.
func ExecutionStates() []ExecutionState {
	return []ExecutionState{StatePreExecution, StateExecuting, StateExecuted, StateSuccess, StateFailed}
}

func (s ExecutionState) Ordinal() int {
	if o, ok := stateOrdinals[s]; ok {
		return o
	}
	return -1
}

func (s ExecutionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// ParseExecutionState maps a display name back to its state.
func ParseExecutionState(name string) (ExecutionState, bool) {
	for state, n := range stateNames {
		if n == name {
			return state, true
		}
	}
	return StatePreExecution, false
}

// Internal error codes. A non-zero ErrCode means the pipeline itself failed,
// independent of the process exit code.
const (
	ErrCodeFailed    = 1
	ErrCodeSpawn     = 2
	ErrCodeCancelled = 3
	ErrCodeStorage   = 4
)

// PluginCaller identifies the external caller that requested a command.
// It is only ever read for display.
type PluginCaller interface {
	Creator() string
}

// CallerName is a PluginCaller known only by its creator identity.
type CallerName string

func (c CallerName) Creator() string { return string(c) }

// ExecutionCommand is the record of a single process invocation. It is
// owned by one driver at a time and is not safe for concurrent mutation.
type ExecutionCommand struct {
	ID *int

	Label         string
	Description   string
	Help          string
	PluginAPIHelp string

	Executable       string
	ExecutableURI    string
	Arguments        []string
	WorkingDirectory string
	InBackground     bool
	IsFailsafe       bool
	SessionAction    string

	IsPluginCommand bool
	PluginCaller    PluginCaller

	CurrentState  ExecutionState
	PreviousState ExecutionState

	Stdout   *string
	Stderr   *string
	ExitCode *int

	ErrCode *int
	Errmsg  string
	Faults  []error
}

func NewExecutionCommand() *ExecutionCommand {
	return &ExecutionCommand{
		CurrentState:  StatePreExecution,
		PreviousState: StatePreExecution,
	}
}

func NewExecutionCommandWithID(id int) *ExecutionCommand {
	c := NewExecutionCommand()
	c.ID = &id
	return c
}

func NewExecutionCommandWithParams(id *int, executable string, arguments []string, workingDirectory string, inBackground, isFailsafe bool) *ExecutionCommand {
	c := NewExecutionCommand()
	if id != nil {
		v := *id
		c.ID = &v
	}
	c.Executable = executable
	c.Arguments = arguments
	c.WorkingDirectory = workingDirectory
	c.InBackground = inBackground
	c.IsFailsafe = isFailsafe
	return c
}

// SetState moves the command to newState. It refuses to go back to a lower
// ordinal or to leave Success, logging the rejected transition.
func (c *ExecutionCommand) SetState(newState ExecutionState) bool {
	if newState.Ordinal() < c.CurrentState.Ordinal() || c.CurrentState == StateSuccess {
		fields := []zap.Field{
			zap.Stringer("from", c.CurrentState),
			zap.Stringer("to", newState),
		}
		if c.ID != nil {
			fields = append(fields, zap.Int("id", *c.ID))
		}
		zap.L().Error("invalid execution command state transition", fields...)
		return false
	}

	// Failed may be set again to add errors; keep the last state before it.
	if c.CurrentState != StateFailed {
		c.PreviousState = c.CurrentState
	}

	c.CurrentState = newState
	return true
}

// SetStateFailed marks the command as internally failed. errCode must be
// at least 1. Repeated calls overwrite the code and message and accumulate
// faults.
func (c *ExecutionCommand) SetStateFailed(errCode int, errmsg string, fault error) bool {
	if errCode < 1 {
		return false
	}

	if !c.SetState(StateFailed) {
		return false
	}

	c.ErrCode = &errCode
	c.Errmsg = errmsg

	if c.Faults == nil {
		c.Faults = make([]error, 0, 1)
	}
	if fault != nil {
		c.Faults = append(c.Faults, fault)
	}

	return true
}

func (c *ExecutionCommand) IsStateFailed() bool {
	return c.CurrentState == StateFailed
}

// IsInternalFailure reports whether ErrCode signals a pipeline failure.
func (c *ExecutionCommand) IsInternalFailure() bool {
	return c.ErrCode != nil && *c.ErrCode != 0
}

// SetOutput records the process result.
func (c *ExecutionCommand) SetOutput(stdout, stderr string, exitCode int) {
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.ExitCode = &exitCode
}
