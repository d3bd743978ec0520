package models

import (
	"slices"
	"strconv"
	"strings"

	"github.com/mpataki/execlog/internal/diag"
)

const (
	defaultLabel = "Execution Command"
	creatorLabel = "Pending Intent Creator"
)

// NullMode controls how absent optional fields are rendered.
type NullMode int

const (
	// IgnoreNull suppresses absent optional fields.
	IgnoreNull NullMode = iota
	// IncludeNull renders absent optional fields with "-" placeholders.
	IncludeNull
)

// Snapshot is a read-only copy of an ExecutionCommand used for rendering.
// It shares no mutable state with the record it was taken from.
type Snapshot struct {
	ID *int

	Label         string
	Description   string
	Help          string
	PluginAPIHelp string

	Executable       string
	Arguments        []string
	WorkingDirectory string
	InBackground     bool
	IsFailsafe       bool
	SessionAction    string

	IsPluginCommand bool
	CallerCreator   *string

	CurrentState  ExecutionState
	PreviousState ExecutionState

	Stdout   *string
	Stderr   *string
	ExitCode *int

	ErrCode *int
	Errmsg  string
	Traces  []string
}

// Snapshot copies the record for rendering.
func (c *ExecutionCommand) Snapshot() Snapshot {
	s := Snapshot{
		ID:               cloneInt(c.ID),
		Label:            c.Label,
		Description:      c.Description,
		Help:             c.Help,
		PluginAPIHelp:    c.PluginAPIHelp,
		Executable:       c.Executable,
		Arguments:        slices.Clone(c.Arguments),
		WorkingDirectory: c.WorkingDirectory,
		InBackground:     c.InBackground,
		IsFailsafe:       c.IsFailsafe,
		SessionAction:    c.SessionAction,
		IsPluginCommand:  c.IsPluginCommand,
		CurrentState:     c.CurrentState,
		PreviousState:    c.PreviousState,
		Stdout:           cloneString(c.Stdout),
		Stderr:           cloneString(c.Stderr),
		ExitCode:         cloneInt(c.ExitCode),
		ErrCode:          cloneInt(c.ErrCode),
		Errmsg:           c.Errmsg,
		Traces:           diag.Traces(c.Faults),
	}
	if c.PluginCaller != nil {
		creator := c.PluginCaller.Creator()
		s.CallerCreator = &creator
	}
	return s
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// optional values are boxed so that absent ones compare equal to nil
func optInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func optPtr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func optString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s Snapshot) idLog() string {
	if s.ID == nil {
		return ""
	}
	return "(" + strconv.Itoa(*s.ID) + ") "
}

func (s Snapshot) labelLog() string {
	if s.Label == "" {
		return defaultLabel
	}
	return s.Label
}

func (s Snapshot) header() string {
	return s.idLog() + s.labelLog() + ":"
}

func (s Snapshot) creatorLog() string {
	return diag.SingleLineEntry(creatorLabel, optPtr(s.CallerCreator), "-")
}

// InputLog renders the execution input parameters.
func (s Snapshot) InputLog(mode NullMode) string {
	ignoreNull := mode == IgnoreNull

	var b strings.Builder
	b.WriteString(s.header())

	if s.PreviousState != StatePreExecution {
		b.WriteString("\n" + diag.SingleLineEntry("Previous State", s.PreviousState.String(), "-"))
	}
	b.WriteString("\n" + diag.SingleLineEntry("Current State", s.CurrentState.String(), "-"))

	b.WriteString("\n" + diag.SingleLineEntry("Executable", optString(s.Executable), "-"))
	b.WriteString("\n" + diag.ArgumentsLog(s.Arguments))
	b.WriteString("\n" + diag.SingleLineEntry("Working Directory", optString(s.WorkingDirectory), "-"))
	b.WriteString("\n" + diag.SingleLineEntry("inBackground", s.InBackground, "-"))
	b.WriteString("\n" + diag.SingleLineEntry("isFailsafe", s.IsFailsafe, "-"))

	if !ignoreNull || s.SessionAction != "" {
		b.WriteString("\n" + diag.SingleLineEntry("Session Action", optString(s.SessionAction), "-"))
	}

	b.WriteString("\n" + diag.SingleLineEntry("isPluginExecutionCommand", s.IsPluginCommand, "-"))
	if (!ignoreNull || s.IsPluginCommand) && (!ignoreNull || s.CallerCreator != nil) {
		b.WriteString("\n" + s.creatorLog())
	}

	return b.String()
}

// OutputLog renders the execution output followed by ErrLog.
func (s Snapshot) OutputLog(mode NullMode) string {
	var b strings.Builder
	b.WriteString(s.header())

	b.WriteString("\n" + diag.SingleLineEntry("Previous State", s.PreviousState.String(), "-"))
	b.WriteString("\n" + diag.SingleLineEntry("Current State", s.CurrentState.String(), "-"))

	b.WriteString("\n" + diag.MultiLineEntry("Stdout", optPtr(s.Stdout), "-"))
	b.WriteString("\n" + diag.MultiLineEntry("Stderr", optPtr(s.Stderr), "-"))
	b.WriteString("\n" + diag.SingleLineEntry("Exit Code", optInt(s.ExitCode), "-"))

	b.WriteString(s.ErrLog(mode))

	return b.String()
}

// ErrLog renders the internal error facet. With IgnoreNull it is empty
// unless ErrCode is set and non-zero.
func (s Snapshot) ErrLog(mode NullMode) string {
	if mode == IgnoreNull && (s.ErrCode == nil || *s.ErrCode == 0) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n" + diag.SingleLineEntry("Err Code", optInt(s.ErrCode), "-"))
	b.WriteString("\n" + diag.MultiLineEntry("Errmsg", optString(s.Errmsg), "-"))
	b.WriteString("\n" + diag.StackTraces("StackTraces:", s.Traces))
	return b.String()
}

// DetailedLog renders every facet with placeholders for absent values.
func (s Snapshot) DetailedLog() string {
	var b strings.Builder

	b.WriteString(s.InputLog(IncludeNull))
	b.WriteString(s.OutputLog(IncludeNull))

	b.WriteString("\n" + diag.SingleLineEntry("Command Description", optString(s.Description), "-"))
	b.WriteString("\n" + diag.SingleLineEntry("Command Help", optString(s.Help), "-"))
	b.WriteString("\n" + diag.SingleLineEntry("Plugin API Help", optString(s.PluginAPIHelp), "-"))

	return b.String()
}

// DetailedMarkdown renders the command as a markdown report.
func (s Snapshot) DetailedMarkdown() string {
	var b strings.Builder

	b.WriteString("### " + s.labelLog() + "\n")

	b.WriteString("\n" + diag.SingleLineMarkdownEntry("Previous State", s.PreviousState.String(), "-"))
	b.WriteString("\n" + diag.SingleLineMarkdownEntry("Current State", s.CurrentState.String(), "-"))

	b.WriteString("\n" + diag.SingleLineMarkdownEntry("Executable", optString(s.Executable), "-"))
	b.WriteString("\n" + diag.ArgumentsMarkdown(s.Arguments))
	b.WriteString("\n" + diag.SingleLineMarkdownEntry("Working Directory", optString(s.WorkingDirectory), "-"))
	b.WriteString("\n" + diag.SingleLineMarkdownEntry("inBackground", s.InBackground, "-"))
	b.WriteString("\n" + diag.SingleLineMarkdownEntry("isFailsafe", s.IsFailsafe, "-"))
	b.WriteString("\n" + diag.SingleLineMarkdownEntry("Session Action", optString(s.SessionAction), "-"))

	b.WriteString("\n" + diag.SingleLineMarkdownEntry("isPluginExecutionCommand", s.IsPluginCommand, "-"))
	if s.CallerCreator != nil {
		b.WriteString("\n" + diag.SingleLineMarkdownEntry(creatorLabel, *s.CallerCreator, "-"))
	} else {
		b.WriteString("\n**" + creatorLabel + ":** -  ")
	}

	b.WriteString("\n\n" + diag.MultiLineMarkdownEntry("Stdout", optPtr(s.Stdout), "-"))
	b.WriteString("\n" + diag.MultiLineMarkdownEntry("Stderr", optPtr(s.Stderr), "-"))
	b.WriteString("\n" + diag.SingleLineMarkdownEntry("Exit Code", optInt(s.ExitCode), "-"))

	b.WriteString("\n\n" + diag.SingleLineMarkdownEntry("Err Code", optInt(s.ErrCode), "-"))
	errmsg := s.Errmsg
	if errmsg == "" {
		errmsg = "-"
	}
	b.WriteString("\n**Errmsg:**\n" + errmsg)
	b.WriteString("\n\n" + diag.StackTracesMarkdown("StackTraces:", s.Traces))

	if s.Description != "" || s.Help != "" {
		if s.Description != "" {
			b.WriteString("\n\n#### Command Description\n\n" + s.Description + "\n")
		}
		if s.Help != "" {
			b.WriteString("\n\n#### Command Help\n\n" + s.Help + "\n")
		}
		b.WriteString("\n##\n")
	}

	if s.PluginAPIHelp != "" {
		b.WriteString("\n\n#### Plugin API Help\n\n" + s.PluginAPIHelp)
		b.WriteString("\n##\n")
	}

	return b.String()
}

// String renders the input view before the command has executed and the
// output view afterwards.
func (s Snapshot) String() string {
	if s.CurrentState.Ordinal() < StateExecuted.Ordinal() {
		return s.InputLog(IgnoreNull)
	}
	return s.OutputLog(IgnoreNull)
}

func (c *ExecutionCommand) String() string {
	if c == nil {
		return "null"
	}
	return c.Snapshot().String()
}

func (c *ExecutionCommand) InputLog(mode NullMode) string {
	if c == nil {
		return "null"
	}
	return c.Snapshot().InputLog(mode)
}

func (c *ExecutionCommand) OutputLog(mode NullMode) string {
	if c == nil {
		return "null"
	}
	return c.Snapshot().OutputLog(mode)
}

func (c *ExecutionCommand) ErrLog(mode NullMode) string {
	if c == nil {
		return ""
	}
	return c.Snapshot().ErrLog(mode)
}

func (c *ExecutionCommand) DetailedLog() string {
	if c == nil {
		return "null"
	}
	return c.Snapshot().DetailedLog()
}

func (c *ExecutionCommand) DetailedMarkdown() string {
	if c == nil {
		return "null"
	}
	return c.Snapshot().DetailedMarkdown()
}
