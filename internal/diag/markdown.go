package diag

import (
	"fmt"
	"strconv"
	"strings"
)

// MarkdownCode wraps s in an inline code span, or in a fenced block when
// block is true. Fences grow to avoid colliding with backticks in s.
func MarkdownCode(s string, block bool) string {
	if s == "" {
		return ""
	}

	maxRun := maxBacktickRun(s)

	if block {
		if maxRun < 3 {
			return "```\n" + s + "\n```"
		}
		return "~~~\n" + s + "\n~~~"
	}

	if maxRun < 1 {
		return "`" + s + "`"
	}
	fence := strings.Repeat("`", maxRun+1)
	return fence + " " + s + " " + fence
}

func maxBacktickRun(s string) int {
	maxRun, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 0
		}
	}
	return maxRun
}

// SingleLineMarkdownEntry returns "**label**: `value`  " or "**label**: def  ".
func SingleLineMarkdownEntry(label string, value any, def string) string {
	if value == nil {
		return "**" + label + "**: " + def + "  "
	}
	return "**" + label + "**: " + MarkdownCode(fmt.Sprint(value), false) + "  "
}

// MultiLineMarkdownEntry returns the value fenced under a bold label.
func MultiLineMarkdownEntry(label string, value any, def string) string {
	if value == nil {
		return "**" + label + "**: " + def + "\n"
	}
	return "**" + label + "**:\n" + MarkdownCode(fmt.Sprint(value), true) + "\n"
}

// ArgumentsMarkdown renders an argument list as one fenced entry per
// argument under an "**Arguments:**" heading.
func ArgumentsMarkdown(args []string) string {
	var b strings.Builder
	b.WriteString("**Arguments:**")

	if len(args) == 0 {
		b.WriteString(" -")
		return b.String()
	}

	b.WriteString("\n")
	for i, arg := range args {
		b.WriteString(MultiLineMarkdownEntry("Arg "+strconv.Itoa(i+1), arg, "-"))
		b.WriteString("\n")
	}

	return b.String()
}

// StackTracesMarkdown renders fault traces as a "### label" section.
func StackTracesMarkdown(label string, traces []string) string {
	var b strings.Builder
	b.WriteString("### ")
	b.WriteString(label)

	if len(traces) == 0 {
		b.WriteString("\n\n`-`")
	} else {
		for i, trace := range traces {
			b.WriteString("\n\n\n#### Stacktrace ")
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString("\n\n```\n")
			b.WriteString(trace)
			b.WriteString("\n```")
		}
	}

	b.WriteString("\n\n##\n")
	return b.String()
}
