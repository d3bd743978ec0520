package models

import (
	"errors"
	"strings"
	"testing"
)

func pingCommand() *ExecutionCommand {
	id := 7
	c := NewExecutionCommandWithParams(&id, "/bin/echo", []string{"hi"}, "", false, false)
	c.Label = "Ping"
	return c
}

func TestInputLogIgnoreNull(t *testing.T) {
	c := pingCommand()

	want := "(7) Ping:\n" +
		"Current State: `Pre-Execution`\n" +
		"Executable: `/bin/echo`\n" +
		"Arguments:\n```\nArg 1: `hi``\n```\n" +
		"Working Directory: -\n" +
		"inBackground: `false`\n" +
		"isFailsafe: `false`\n" +
		"isPluginExecutionCommand: `false`"

	if got := c.InputLog(IgnoreNull); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
	if got := c.String(); got != want {
		t.Errorf("String() should use the input view before execution, got:\n%s", got)
	}
}

func TestInputLogIncludeNull(t *testing.T) {
	c := pingCommand()
	c.SetState(StateExecuting)

	want := "(7) Ping:\n" +
		"Previous State: `Pre-Execution`\n" +
		"Current State: `Executing`\n" +
		"Executable: `/bin/echo`\n" +
		"Arguments:\n```\nArg 1: `hi``\n```\n" +
		"Working Directory: -\n" +
		"inBackground: `false`\n" +
		"isFailsafe: `false`\n" +
		"Session Action: -\n" +
		"isPluginExecutionCommand: `false`\n" +
		"Pending Intent Creator: -"

	if got := c.InputLog(IncludeNull); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestInputLogPreviousStateShownOnceMoved(t *testing.T) {
	c := pingCommand()
	c.SetState(StateExecuting)

	got := c.InputLog(IgnoreNull)
	if !strings.HasPrefix(got, "(7) Ping:\nPrevious State: `Pre-Execution`\nCurrent State: `Executing`\n") {
		t.Errorf("unexpected header:\n%s", got)
	}
}

func TestInputLogPluginCaller(t *testing.T) {
	c := NewExecutionCommand()
	c.Executable = "/bin/true"
	c.SessionAction = "0"
	c.IsPluginCommand = true
	c.PluginCaller = CallerName("com.example.tasker")

	want := "Execution Command:\n" +
		"Current State: `Pre-Execution`\n" +
		"Executable: `/bin/true`\n" +
		"Arguments: -\n" +
		"Working Directory: -\n" +
		"inBackground: `false`\n" +
		"isFailsafe: `false`\n" +
		"Session Action: `0`\n" +
		"isPluginExecutionCommand: `true`\n" +
		"Pending Intent Creator: `com.example.tasker`"

	if got := c.InputLog(IgnoreNull); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}

	// plugin command without a caller omits the creator line
	c.PluginCaller = nil
	if got := c.InputLog(IgnoreNull); strings.Contains(got, "Pending Intent Creator") {
		t.Errorf("expected no creator line, got:\n%s", got)
	}
}

func TestOutputLogSuccess(t *testing.T) {
	c := pingCommand()
	c.SetState(StateExecuting)
	c.SetOutput("hi", "", 0)
	c.SetState(StateExecuted)
	c.SetState(StateSuccess)

	want := "(7) Ping:\n" +
		"Previous State: `Executed`\n" +
		"Current State: `Success`\n" +
		"Stdout:\n```\nhi\n```\n\n" +
		"Stderr:\n```\n\n```\n\n" +
		"Exit Code: `0`"

	if got := c.OutputLog(IgnoreNull); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
	if got := c.String(); got != want {
		t.Errorf("String() should use the output view after execution, got:\n%s", got)
	}
}

func TestErrLog(t *testing.T) {
	c := pingCommand()
	if got := c.ErrLog(IgnoreNull); got != "" {
		t.Errorf("expected empty error view, got %q", got)
	}

	zero := 0
	c.ErrCode = &zero
	if got := c.ErrLog(IgnoreNull); got != "" {
		t.Errorf("expected empty error view for zero code, got %q", got)
	}

	c.ErrCode = nil
	want := "\nErr Code: -\nErrmsg: -\nStackTraces: -"
	if got := c.ErrLog(IncludeNull); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	c.SetStateFailed(ErrCodeSpawn, "spawn failed", errors.New("exec: not found"))
	want = "\nErr Code: `2`\n" +
		"Errmsg:\n```\nspawn failed\n```\n\n" +
		"StackTraces:\n\nStackTrace 1:\n```\nexec: not found\n```"
	if got := c.ErrLog(IgnoreNull); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOutputLogFailed(t *testing.T) {
	c := pingCommand()
	c.SetState(StateExecuting)
	c.SetStateFailed(ErrCodeSpawn, "spawn failed", errors.New("exec: not found"))

	want := "(7) Ping:\n" +
		"Previous State: `Executing`\n" +
		"Current State: `Failed`\n" +
		"Stdout: -\n" +
		"Stderr: -\n" +
		"Exit Code: -" +
		"\nErr Code: `2`\n" +
		"Errmsg:\n```\nspawn failed\n```\n\n" +
		"StackTraces:\n\nStackTrace 1:\n```\nexec: not found\n```"

	if got := c.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestDetailedLogOrdering(t *testing.T) {
	c := pingCommand()
	c.Description = "Says hi"

	got := c.DetailedLog()
	prefix := c.InputLog(IncludeNull) + c.OutputLog(IncludeNull)
	if !strings.HasPrefix(got, prefix) {
		t.Fatalf("detailed log should start with input and output views:\n%s", got)
	}

	wantTail := "\nCommand Description: `Says hi`\nCommand Help: -\nPlugin API Help: -"
	if got[len(prefix):] != wantTail {
		t.Errorf("got tail %q, want %q", got[len(prefix):], wantTail)
	}
}

func TestDetailedMarkdown(t *testing.T) {
	c := pingCommand()
	c.SetState(StateExecuting)
	c.SetOutput("hi", "", 0)
	c.SetState(StateExecuted)
	c.SetState(StateSuccess)

	want := "### Ping\n" +
		"\n**Previous State**: `Executed`  " +
		"\n**Current State**: `Success`  " +
		"\n**Executable**: `/bin/echo`  " +
		"\n**Arguments:**\n**Arg 1**:\n```\nhi\n```\n\n" +
		"\n**Working Directory**: -  " +
		"\n**inBackground**: `false`  " +
		"\n**isFailsafe**: `false`  " +
		"\n**Session Action**: -  " +
		"\n**isPluginExecutionCommand**: `false`  " +
		"\n**Pending Intent Creator:** -  " +
		"\n\n**Stdout**:\n```\nhi\n```\n" +
		"\n**Stderr**:\n\n" +
		"\n**Exit Code**: `0`  " +
		"\n\n**Err Code**: -  " +
		"\n**Errmsg:**\n-" +
		"\n\n### StackTraces:\n\n`-`\n\n##\n"

	if got := c.DetailedMarkdown(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestDetailedMarkdownOptionalSections(t *testing.T) {
	c := NewExecutionCommand()
	c.Description = "Lists files"
	c.Help = "Check permissions"
	c.PluginAPIHelp = "See the plugin docs"
	c.Arguments = []string{}

	got := c.DetailedMarkdown()
	if !strings.HasPrefix(got, "### Execution Command\n") {
		t.Errorf("expected default heading, got:\n%s", got)
	}
	if c.Label != "" {
		t.Errorf("rendering must not mutate the label, got %q", c.Label)
	}
	if !strings.Contains(got, "\n**Arguments:** -\n") {
		t.Errorf("expected empty arguments placeholder, got:\n%s", got)
	}

	wantTail := "\n\n#### Command Description\n\nLists files\n" +
		"\n\n#### Command Help\n\nCheck permissions\n" +
		"\n##\n" +
		"\n\n#### Plugin API Help\n\nSee the plugin docs" +
		"\n##\n"
	if !strings.HasSuffix(got, wantTail) {
		t.Errorf("unexpected optional sections:\n%s", got)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	c := pingCommand()
	s := c.Snapshot()

	c.Arguments[0] = "changed"
	c.SetStateFailed(ErrCodeFailed, "later", errors.New("later"))
	*c.ID = 8

	if s.Arguments[0] != "hi" || *s.ID != 7 || s.ErrCode != nil || len(s.Traces) != 0 {
		t.Errorf("snapshot shares state with the record: %+v", s)
	}
}

func TestNilCommandRendersNull(t *testing.T) {
	var c *ExecutionCommand
	if c.String() != "null" || c.DetailedLog() != "null" || c.DetailedMarkdown() != "null" {
		t.Errorf("expected nil command to render as null")
	}
}

func TestDetailedMarkdownCreatorAndTraces(t *testing.T) {
	c := pingCommand()
	c.IsPluginCommand = true
	c.PluginCaller = CallerName("com.example.tasker")
	c.SetStateFailed(ErrCodeSpawn, "spawn failed", errors.New("exec: not found"))

	got := c.DetailedMarkdown()
	if !strings.Contains(got, "\n**Pending Intent Creator**: `com.example.tasker`  \n") {
		t.Errorf("expected creator entry, got:\n%s", got)
	}
	want := "\n\n### StackTraces:\n\n\n#### Stacktrace 1\n\n```\nexec: not found\n```\n\n##\n"
	if !strings.HasSuffix(got, want) {
		t.Errorf("stack traces section should share the log label, got:\n%s", got)
	}
}
