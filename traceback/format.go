package traceback

import (
	"fmt"
	"sort"
	"strings"
)

// Joining sentences between chained tracebacks. The wording matches the peer
// implementation so formatted text is identical on both sides of the wire.
const (
	causeMessage = "\nThe above exception was the direct cause " +
		"of the following exception:\n\n"
	contextMessage = "\nDuring handling of the above exception, " +
		"another exception occurred:\n\n"
)

// Format renders the traceback into display chunks: chained causes/contexts
// first (oldest error at the top), then the stack block, then the final
// "Type: message" line. Joining the chunks yields the complete text.
func (t *Traceback) Format() []string {
	var out []string
	t.format(&out, 0)
	return out
}

// String is the fully-joined formatted text.
func (t *Traceback) String() string {
	return strings.Join(t.Format(), "")
}

func (t *Traceback) format(out *[]string, depth int) {
	if t == nil || depth >= maxDepth {
		return
	}
	if t.Cause != nil {
		t.Cause.format(out, depth+1)
		*out = append(*out, causeMessage)
	} else if t.Context != nil && !t.SuppressContext {
		t.Context.format(out, depth+1)
		*out = append(*out, contextMessage)
	}
	if len(t.Stack) > 0 {
		*out = append(*out, "Traceback (most recent call last):\n")
		*out = append(*out, t.Stack.format()...)
	}
	*out = append(*out, t.formatExceptionOnly()...)
}

// format renders the stack block, one chunk per frame, outermost call first.
func (s Stack) format() []string {
	out := make([]string, 0, len(s))
	for _, f := range s {
		var b strings.Builder
		fmt.Fprintf(&b, "  File \"%s\", line %d, in %s\n", f.Filename, f.Line, f.Function)
		if f.SourceLine != "" {
			fmt.Fprintf(&b, "    %s\n", f.SourceLine)
		}
		for _, name := range sortedKeys(f.Locals) {
			fmt.Fprintf(&b, "    %s = %s\n", name, f.Locals[name])
		}
		out = append(out, b.String())
	}
	return out
}

// formatExceptionOnly renders the final lines: the syntax-error source block
// when present, then "module.Type: message".
func (t *Traceback) formatExceptionOnly() []string {
	var out []string
	if t.Syntax != nil {
		out = append(out, t.formatSyntax()...)
	}
	name := t.Type.qualified()
	if name == "" {
		name = t.Type.Repr
	}
	msg := t.Msg
	if t.Syntax != nil {
		msg = t.Syntax.Msg
	}
	if msg == "" {
		out = append(out, name+"\n")
	} else {
		out = append(out, fmt.Sprintf("%s: %s\n", name, msg))
	}
	return out
}

// formatSyntax renders the offending source line with a caret marker:
//
//	  File "prog.py", line 3
//	    bad source
//	        ^
func (t *Traceback) formatSyntax() []string {
	si := t.Syntax
	var out []string
	out = append(out, fmt.Sprintf("  File \"%s\", line %d\n", si.Filename, si.Line))
	text := strings.TrimRight(si.Text, "\n")
	if text == "" {
		return out
	}
	indent := len(text) - len(strings.TrimLeft(text, " "))
	out = append(out, fmt.Sprintf("    %s\n", strings.TrimSpace(text)))
	if si.Offset > 0 {
		caret := si.Offset - 1 - indent
		if caret < 0 {
			caret = 0
		}
		width := si.EndOffset - si.Offset
		if width < 1 {
			width = 1
		}
		out = append(out, "    "+strings.Repeat(" ", caret)+strings.Repeat("^", width)+"\n")
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
