package traceback

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
)

// Causer marks an error as explicitly chained from another (the "raised from"
// relationship). An explicit cause suppresses the implicit context when the
// traceback is formatted.
type Causer interface {
	Cause() error
}

// Contexter exposes the error that was being handled when this one was
// raised (the implicit chaining relationship).
type Contexter interface {
	HandlingContext() error
}

// StackTracer exposes a captured call stack.
type StackTracer interface {
	StackTrace() Stack
}

// Recorder exposes an already-built traceback record. Errors reconstructed
// from a remote failure implement this so that re-serializing them yields the
// original record unchanged instead of a re-derivation.
type Recorder interface {
	TracebackRecord() *Traceback
}

// FromError builds the serializable traceback for a live error, walking its
// cause/context links. Depth is bounded and revisited errors terminate the
// walk, so malformed chains cannot recurse forever.
func FromError(err error) *Traceback {
	return fromError(err, 0, make(map[error]bool))
}

func fromError(err error, depth int, seen map[error]bool) *Traceback {
	if err == nil || depth >= maxDepth || seen[err] {
		return nil
	}
	seen[err] = true

	if rec, ok := err.(Recorder); ok {
		if t := rec.TracebackRecord(); t != nil {
			return t
		}
	}

	t := &Traceback{
		Msg:  err.Error(),
		Type: TypeOf(err),
	}
	if st, ok := err.(StackTracer); ok {
		t.Stack = st.StackTrace()
	}
	if se, ok := err.(interface{ Syntax() *SyntaxInfo }); ok {
		t.Syntax = se.Syntax()
	}

	var cause, context error
	if c, ok := err.(Causer); ok {
		cause = c.Cause()
	} else {
		// plain wrapped errors (fmt.Errorf %w and friends) count as causes
		cause = errors.Unwrap(err)
	}
	if c, ok := err.(Contexter); ok {
		context = c.HandlingContext()
	}

	t.Cause = fromError(cause, depth+1, seen)
	t.Context = fromError(context, depth+1, seen)
	t.SuppressContext = t.Cause != nil
	if sc, ok := err.(interface{ SuppressedContext() bool }); ok {
		t.SuppressContext = sc.SuppressedContext()
	}
	return t
}

// Error is the raising-side building block: an error with a captured call
// stack and explicit cause/context chaining, everything FromError needs to
// produce a fully-populated traceback record.
type Error struct {
	msg      string
	stack    Stack
	cause    error
	context  error
	syntax   *SyntaxInfo
	suppress bool
}

// New creates an Error and captures the caller's stack.
func New(msg string) *Error {
	return &Error{msg: msg, stack: CaptureStack(1)}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...), stack: CaptureStack(1)}
}

// CausedBy chains e explicitly from cause and suppresses implicit context,
// mirroring how an explicit re-raise chain is reported.
func (e *Error) CausedBy(cause error) *Error {
	e.cause = cause
	e.suppress = true
	return e
}

// While records the error that was being handled when e was raised.
func (e *Error) While(context error) *Error {
	e.context = context
	return e
}

// WithSyntax marks e as a syntax-class error carrying source-location info.
func (e *Error) WithSyntax(si *SyntaxInfo) *Error {
	e.syntax = si
	return e
}

// WithLocals attaches a stringified locals snapshot to the innermost frame.
// Snapshots are opt-in: they can be large and can leak sensitive values, so
// nothing captures them automatically.
func (e *Error) WithLocals(locals map[string]string) *Error {
	if len(e.stack) > 0 {
		e.stack[len(e.stack)-1].Locals = locals
	}
	return e
}

func (e *Error) Error() string           { return e.msg }
func (e *Error) Unwrap() error           { return e.cause }
func (e *Error) Cause() error            { return e.cause }
func (e *Error) HandlingContext() error  { return e.context }
func (e *Error) StackTrace() Stack       { return e.stack }
func (e *Error) Syntax() *SyntaxInfo     { return e.syntax }
func (e *Error) SuppressedContext() bool { return e.suppress }

// CaptureStack records the current call stack, outermost frame first,
// skipping the given number of frames above the caller. Runtime frames and
// the testing driver are left in place; trimming is the formatter's business,
// not the capturer's.
func CaptureStack(skip int) Stack {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var stack Stack
	for {
		fr, more := frames.Next()
		if fr.Function != "" {
			stack = append(stack, Frame{
				Filename:   fr.File,
				Line:       fr.Line,
				Function:   shortFuncName(fr.Function),
				SourceLine: sourceLine(fr.File, fr.Line),
			})
		}
		if !more {
			break
		}
	}

	// runtime.Callers reports innermost first; the wire order is outermost first
	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}
	return stack
}

// shortFuncName strips the package path prefix: "wrap-rpc/traceback.New" → "New".
func shortFuncName(full string) string {
	if i := strings.LastIndex(full, "/"); i >= 0 {
		full = full[i+1:]
	}
	if i := strings.Index(full, "."); i >= 0 {
		full = full[i+1:]
	}
	return full
}

// sourceLine reads the text of one source line, best effort. Results are
// cached per file; unreadable files simply yield an empty line.
var (
	srcMu    sync.Mutex
	srcCache = make(map[string][]string)
)

func sourceLine(file string, line int) string {
	if file == "" || line <= 0 {
		return ""
	}
	srcMu.Lock()
	lines, ok := srcCache[file]
	if !ok {
		if data, err := os.ReadFile(file); err == nil {
			lines = strings.Split(string(data), "\n")
		}
		srcCache[file] = lines
	}
	srcMu.Unlock()

	if line > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[line-1])
}
