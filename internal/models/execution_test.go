package models

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// commandAt drives a fresh command through valid transitions until it
// reaches target.
func commandAt(t *testing.T, target ExecutionState) *ExecutionCommand {
	t.Helper()

	c := NewExecutionCommand()
	if target == StateFailed {
		if !c.SetState(StateFailed) {
			t.Fatalf("failed to reach %s", target)
		}
		return c
	}
	for _, s := range []ExecutionState{StateExecuting, StateExecuted, StateSuccess} {
		if s.Ordinal() > target.Ordinal() {
			break
		}
		if !c.SetState(s) {
			t.Fatalf("failed to reach %s", s)
		}
	}
	return c
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestStateOrdinals(t *testing.T) {
	want := map[ExecutionState]int{
		StatePreExecution: 0,
		StateExecuting:    1,
		StateExecuted:     2,
		StateSuccess:      3,
		StateFailed:       4,
	}
	for state, ordinal := range want {
		if state.Ordinal() != ordinal {
			t.Errorf("%s: expected ordinal %d, got %d", state, ordinal, state.Ordinal())
		}
	}

	// Failed must stay on top for it to be reachable from every state
	for _, s := range ExecutionStates() {
		if s != StateFailed && s.Ordinal() >= StateFailed.Ordinal() {
			t.Errorf("%s has ordinal >= Failed", s)
		}
	}
}

func TestParseExecutionState(t *testing.T) {
	for _, s := range ExecutionStates() {
		got, ok := ParseExecutionState(s.String())
		if !ok || got != s {
			t.Errorf("ParseExecutionState(%q) = %v, %v", s.String(), got, ok)
		}
	}
	if _, ok := ParseExecutionState("Running"); ok {
		t.Errorf("expected unknown state name to be rejected")
	}
}

func TestConstructors(t *testing.T) {
	c := NewExecutionCommand()
	if c.ID != nil || c.CurrentState != StatePreExecution || c.PreviousState != StatePreExecution {
		t.Fatalf("unexpected defaults: %+v", c)
	}

	c = NewExecutionCommandWithID(3)
	if c.ID == nil || *c.ID != 3 {
		t.Fatalf("expected id 3, got %v", c.ID)
	}

	id := 9
	c = NewExecutionCommandWithParams(&id, "/bin/ls", []string{"-l"}, "/tmp", true, false)
	id = 10
	if *c.ID != 9 {
		t.Errorf("constructor should copy the id, got %d", *c.ID)
	}
	if c.Executable != "/bin/ls" || len(c.Arguments) != 1 || c.WorkingDirectory != "/tmp" || !c.InBackground || c.IsFailsafe {
		t.Errorf("unexpected params: %+v", c)
	}
}

func TestSetStateFromSuccessIsRejected(t *testing.T) {
	logs := observeLogs(t)

	for _, next := range ExecutionStates() {
		c := commandAt(t, StateSuccess)
		if c.SetState(next) {
			t.Errorf("Success -> %s should be rejected", next)
		}
		if c.CurrentState != StateSuccess || c.PreviousState != StateExecuted {
			t.Errorf("state changed after rejected transition: %s/%s", c.PreviousState, c.CurrentState)
		}
	}

	if logs.Len() != len(ExecutionStates()) {
		t.Errorf("expected one diagnostic per rejection, got %d", logs.Len())
	}
}

func TestSetStateRejectsRegression(t *testing.T) {
	logs := observeLogs(t)

	for _, from := range ExecutionStates() {
		for _, to := range ExecutionStates() {
			if to.Ordinal() >= from.Ordinal() {
				continue
			}
			c := commandAt(t, from)
			prev := c.PreviousState
			if c.SetState(to) {
				t.Errorf("%s -> %s should be rejected", from, to)
			}
			if c.CurrentState != from || c.PreviousState != prev {
				t.Errorf("%s -> %s mutated state", from, to)
			}
		}
	}

	entries := logs.FilterMessage("invalid execution command state transition").All()
	if len(entries) == 0 {
		t.Fatalf("expected rejected transitions to be logged")
	}
	fields := entries[0].ContextMap()
	if fields["from"] == nil || fields["to"] == nil {
		t.Errorf("expected from/to fields, got %v", fields)
	}
}

func TestSetStateSameStateUpdatesPrevious(t *testing.T) {
	c := commandAt(t, StateExecuting)
	if !c.SetState(StateExecuting) {
		t.Fatalf("Executing -> Executing should succeed")
	}
	if c.PreviousState != StateExecuting {
		t.Errorf("expected previous state Executing, got %s", c.PreviousState)
	}
}

func TestSetStateLogsCommandID(t *testing.T) {
	logs := observeLogs(t)

	c := NewExecutionCommandWithID(42)
	c.SetState(StateExecuted)
	c.SetState(StateExecuting)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.ErrorLevel {
		t.Errorf("expected error level, got %s", entries[0].Level)
	}
	if id, ok := entries[0].ContextMap()["id"].(int64); !ok || id != 42 {
		t.Errorf("expected id field 42, got %v", entries[0].ContextMap()["id"])
	}
}

func TestFailedReachableFromNonSuccess(t *testing.T) {
	for _, from := range []ExecutionState{StatePreExecution, StateExecuting, StateExecuted} {
		c := commandAt(t, from)
		if !c.SetStateFailed(ErrCodeFailed, "first", errors.New("first")) {
			t.Fatalf("%s -> Failed should succeed", from)
		}
		if c.PreviousState != from {
			t.Errorf("expected previous state %s, got %s", from, c.PreviousState)
		}

		if !c.SetStateFailed(ErrCodeSpawn, "second", errors.New("second")) {
			t.Fatalf("Failed -> Failed should succeed")
		}
		if c.PreviousState != from {
			t.Errorf("re-failure overwrote previous state: %s", c.PreviousState)
		}
		if *c.ErrCode != ErrCodeSpawn || c.Errmsg != "second" {
			t.Errorf("expected error fields to be overwritten, got %d %q", *c.ErrCode, c.Errmsg)
		}
		if len(c.Faults) != 2 || c.Faults[0].Error() != "first" || c.Faults[1].Error() != "second" {
			t.Errorf("expected accumulated faults, got %v", c.Faults)
		}
	}
}

func TestSetStateFailedRejectsInvalidCode(t *testing.T) {
	for _, code := range []int{0, -1} {
		c := commandAt(t, StateExecuting)
		if c.SetStateFailed(code, "nope", errors.New("nope")) {
			t.Errorf("SetStateFailed(%d) should fail", code)
		}
		if c.CurrentState != StateExecuting || c.ErrCode != nil || c.Errmsg != "" || c.Faults != nil {
			t.Errorf("SetStateFailed(%d) mutated the command: %+v", code, c)
		}
	}
}

func TestSetStateFailedAfterSuccess(t *testing.T) {
	observeLogs(t)

	c := commandAt(t, StateSuccess)
	if c.SetStateFailed(ErrCodeFailed, "late", errors.New("late")) {
		t.Fatalf("Success -> Failed should be rejected")
	}
	if c.ErrCode != nil || c.Errmsg != "" || len(c.Faults) != 0 {
		t.Errorf("error fields were mutated: %+v", c)
	}
}

func TestSetStateFailedNilFault(t *testing.T) {
	c := NewExecutionCommand()
	if !c.SetStateFailed(ErrCodeFailed, "no fault", nil) {
		t.Fatalf("expected success")
	}
	if c.Faults == nil || len(c.Faults) != 0 {
		t.Errorf("expected empty fault collection, got %v", c.Faults)
	}
	if !c.IsStateFailed() || !c.IsInternalFailure() {
		t.Errorf("expected failed command with internal failure")
	}
}

func TestExitCodeIsNotInternalFailure(t *testing.T) {
	c := commandAt(t, StateExecuted)
	c.SetOutput("", "boom", 127)
	if !c.SetState(StateSuccess) {
		t.Fatalf("Executed -> Success should succeed")
	}
	if c.IsInternalFailure() {
		t.Errorf("non-zero exit code must not be an internal failure")
	}
}
