// Package diag renders labeled diagnostic entries for log lines and
// markdown reports. All functions are pure.
package diag

import (
	"fmt"
	"strconv"
	"strings"
)

// SingleLineEntry returns "label: `value`", or "label: def" when value is nil.
func SingleLineEntry(label string, value any, def string) string {
	if value == nil {
		return label + ": " + def
	}
	return label + ": `" + fmt.Sprint(value) + "`"
}

// MultiLineEntry returns the value fenced in a code block under label,
// or "label: def" when value is nil.
func MultiLineEntry(label string, value any, def string) string {
	if value == nil {
		return label + ": " + def
	}
	return label + ":\n```\n" + fmt.Sprint(value) + "\n```\n"
}

// ArgumentsLog renders an argument list in log format:
//
//	Arguments:
//	```
//	Arg 1: `value``
//	```
//
// The trailing extra backtick on each Arg line is part of the established
// output and tooling downstream matches on it.
func ArgumentsLog(args []string) string {
	var b strings.Builder
	b.WriteString("Arguments:")

	if len(args) == 0 {
		b.WriteString(" -")
		return b.String()
	}

	b.WriteString("\n```\n")
	for i, arg := range args {
		b.WriteString(SingleLineEntry("Arg "+strconv.Itoa(i+1), arg, "-"))
		b.WriteString("`\n")
	}
	b.WriteString("```")

	return b.String()
}

// StackTraces renders fault traces under label, one fenced block each.
func StackTraces(label string, traces []string) string {
	var b strings.Builder
	b.WriteString(label)

	if len(traces) == 0 {
		b.WriteString(" -")
		return b.String()
	}

	for i, trace := range traces {
		b.WriteString("\n\nStackTrace ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(":\n```\n")
		b.WriteString(trace)
		b.WriteString("\n```")
	}

	return b.String()
}

// Traces converts faults into trace strings in insertion order. Errors that
// carry stack information print it through the %+v verb.
func Traces(faults []error) []string {
	traces := make([]string, 0, len(faults))
	for _, fault := range faults {
		if fault == nil {
			continue
		}
		traces = append(traces, fmt.Sprintf("%+v", fault))
	}
	return traces
}
