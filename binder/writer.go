package binder

import (
	"fmt"
	"strings"
)

// srcWriter manages indented source output for the two emitters. It
// encapsulates the output buffer and indentation level; the indent unit is
// per-writer so the JavaScript and C++ artifacts can differ.
type srcWriter struct {
	sb     strings.Builder
	indent int
	unit   string
}

func newWriter(unit string) *srcWriter {
	return &srcWriter{unit: unit}
}

// Line writes an indented line with a trailing newline appended.
func (w *srcWriter) Line(s string) {
	if s == "" {
		w.sb.WriteByte('\n')
		return
	}
	w.sb.WriteString(strings.Repeat(w.unit, w.indent))
	w.sb.WriteString(s)
	w.sb.WriteByte('\n')
}

// Linef writes an indented, formatted line with a trailing newline appended.
func (w *srcWriter) Linef(format string, args ...interface{}) {
	w.Line(fmt.Sprintf(format, args...))
}

// Raw writes unindented text directly to the buffer.
func (w *srcWriter) Raw(s string) {
	w.sb.WriteString(s)
}

// Indent increases the indentation level.
func (w *srcWriter) Indent() { w.indent++ }

// Dedent decreases the indentation level.
func (w *srcWriter) Dedent() { w.indent-- }

// String returns the accumulated output.
func (w *srcWriter) String() string { return w.sb.String() }
