package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Basic writes formatted log lines to a writer. It exists so cmd/ binaries
// and examples have something usable without pulling a logging framework
// into the module's dependency graph.
type Basic struct {
	mu     *sync.Mutex
	out    io.Writer
	fields []Field
}

var _ Logger = (*Basic)(nil)

// New returns a Basic logger writing to stderr.
func New() *Basic {
	return &Basic{mu: &sync.Mutex{}, out: os.Stderr}
}

// NewWithWriter returns a Basic logger writing to the given writer.
func NewWithWriter(w io.Writer) *Basic {
	return &Basic{mu: &sync.Mutex{}, out: w}
}

func (l *Basic) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	next := &Basic{mu: l.mu, out: l.out}
	next.fields = append(append(next.fields, l.fields...), fields...)
	return next
}

func (l *Basic) Debug(msg string, fields ...Field) { l.log("DEBUG", msg, fields) }
func (l *Basic) Info(msg string, fields ...Field)  { l.log("INFO", msg, fields) }
func (l *Basic) Warn(msg string, fields ...Field)  { l.log("WARN", msg, fields) }
func (l *Basic) Error(msg string, fields ...Field) { l.log("ERROR", msg, fields) }

func (l *Basic) log(level, msg string, fields []Field) {
	line := fmt.Sprintf("[%s] %s", level, msg)
	if rendered := formatFields(append(l.fields, fields...)); rendered != "" {
		line += " " + rendered
	}
	l.mu.Lock()
	fmt.Fprintln(l.out, line)
	l.mu.Unlock()
}

func formatFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", f.Key, f.Value))
	}
	return strings.Join(parts, " ")
}
